package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValidates(t *testing.T) {
	require.NoError(t, Validate(Default()))
}

func TestLoadReadsAndValidatesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "webql.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
defaultTimeoutMs: 5000
defaultFormat: JSON
allowedUrlProtocols: ["https:"]
defaultPermissions: ["read"]
logLevel: debug
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 5000, cfg.DefaultTimeoutMS)
	require.Equal(t, []string{"https:"}, cfg.AllowedURLProtocols)
	require.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load("/nonexistent/webql.yaml")
	require.Error(t, err)
}

func TestValidateRejectsUnknownFormat(t *testing.T) {
	cfg := Default()
	cfg.DefaultFormat = "PROTOBUF"
	require.Error(t, Validate(cfg))
}

func TestValidateRejectsZeroTimeout(t *testing.T) {
	cfg := Default()
	cfg.DefaultTimeoutMS = 0
	require.Error(t, Validate(cfg))
}
