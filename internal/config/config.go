// Package config loads the engine's YAML configuration file, the way
// alexisbeaulieu97-Streamy's internal/config package parses and validates a
// pipeline file: read, unmarshal with yaml.v3, then run struct-tag
// validation with go-playground/validator before handing the result to the
// caller.
package config

import (
	"os"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	werrors "github.com/webql/webql/errors"
)

// Config is the file-based engine configuration. Fields mirror engine.Config
// but are the serializable, operator-editable subset of it.
type Config struct {
	// DefaultTimeout bounds a query's total wall-clock time when
	// QueryOptions.Timeout is zero.
	DefaultTimeoutMS int `yaml:"defaultTimeoutMs" validate:"required,min=1"`
	// MaxNestingDepth feeds semantic.Config.MaxNestingDepth.
	MaxNestingDepth int `yaml:"maxNestingDepth" validate:"omitempty,min=1,max=1000"`
	// OptimizerMaxPasses feeds optimizer.Config.MaxPasses.
	OptimizerMaxPasses int `yaml:"optimizerMaxPasses" validate:"omitempty,min=1,max=20"`
	// AllowedURLProtocols feeds semantic.Config.AllowedURLProtocols.
	AllowedURLProtocols []string `yaml:"allowedUrlProtocols" validate:"omitempty,dive,oneof=http: https: about:"`
	// DefaultFormat is the output format used when QueryOptions.Format is
	// empty.
	DefaultFormat string `yaml:"defaultFormat" validate:"required,oneof=JSON TABLE CSV HTML XML YAML STREAM"`
	// DefaultPermissions is a list of granted permission names (read,
	// write, navigate).
	DefaultPermissions []string `yaml:"defaultPermissions" validate:"omitempty,dive,oneof=read write navigate"`
	// LogLevel feeds the engine's logrus logger.
	LogLevel string `yaml:"logLevel" validate:"omitempty,oneof=debug info warn error"`
}

// DefaultTimeout returns DefaultTimeoutMS as a time.Duration.
func (c *Config) DefaultTimeout() time.Duration {
	return time.Duration(c.DefaultTimeoutMS) * time.Millisecond
}

// Default returns a Config with every field set to the engine's built-in
// defaults, valid on its own.
func Default() *Config {
	return &Config{
		DefaultTimeoutMS:    30000,
		MaxNestingDepth:     10,
		OptimizerMaxPasses:  3,
		AllowedURLProtocols: []string{"http:", "https:", "about:"},
		DefaultFormat:       "JSON",
		DefaultPermissions:  []string{"read", "navigate"},
		LogLevel:            "info",
	}
}

// Load reads, unmarshals, and validates the YAML file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, werrors.Resource.New("reading config %q: %s", path, err).WithContext("path", path)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, werrors.Validation.New("parsing config %q: %s", path, err).WithContext("path", path)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

var (
	validatorOnce sync.Once
	validatorInst *validator.Validate
)

func instance() *validator.Validate {
	validatorOnce.Do(func() {
		validatorInst = validator.New()
	})
	return validatorInst
}

// Validate runs struct-tag validation over cfg.
func Validate(cfg *Config) error {
	if err := instance().Struct(cfg); err != nil {
		return werrors.Validation.New("invalid config: %s", err).WithContext("cause", err.Error())
	}
	return nil
}
