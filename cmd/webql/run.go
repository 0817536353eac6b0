package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/webql/webql/controllers"
	"github.com/webql/webql/engine"
	"github.com/webql/webql/internal/config"
	"github.com/webql/webql/optimizer"
	"github.com/webql/webql/semantic"
)

var (
	successStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	failureStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
)

func newRunCmd(flags *rootFlags) *cobra.Command {
	var (
		timeout string
		format  string
	)

	cmd := &cobra.Command{
		Use:   "run <query>",
		Short: "Compile and execute a WebQL query against the mock browser/proxy controllers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, cfg, err := buildEngine(flags)
			if err != nil {
				return err
			}

			if format == "" {
				format = cfg.DefaultFormat
			}
			opts := engine.QueryOptions{
				Format:      engine.Format(format),
				Permissions: engine.ParsePermissions(cfg.DefaultPermissions),
			}
			if timeout != "" {
				d, err := time.ParseDuration(timeout)
				if err != nil {
					return fmt.Errorf("invalid --timeout: %w", err)
				}
				opts.Timeout = d
			}

			result, err := eng.Execute(cmd.Context(), args[0], opts)
			if err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), failureStyle.Render("FAILED"), err)
				return err
			}

			payload, _ := json.MarshalIndent(result.Data, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("OK"), labelStyle.Render(result.QueryID))
			fmt.Fprintln(cmd.OutOrStdout(), string(payload))
			fmt.Fprintf(cmd.OutOrStdout(), "%s %.2fms (%d steps)\n",
				labelStyle.Render("total"), result.Timing.TotalMS, result.Metadata.StepCount)
			return nil
		},
	}

	cmd.Flags().StringVar(&timeout, "timeout", "", "query timeout, e.g. 5s (default from config)")
	cmd.Flags().StringVar(&format, "format", "", "output format: JSON, TABLE, CSV, HTML, XML, YAML, STREAM (default from config)")

	return cmd
}

// buildEngine wires an Engine against the in-memory mock controllers; a
// real deployment would pass a headless-browser and proxy implementation
// here instead, per controllers.Browser/controllers.Proxy.
func buildEngine(flags *rootFlags) (*engine.Engine, *config.Config, error) {
	cfg := config.Default()
	if flags.configPath != "" {
		loaded, err := config.Load(flags.configPath)
		if err != nil {
			return nil, nil, err
		}
		cfg = loaded
	}

	log := logrus.StandardLogger()
	if flags.verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	log.SetOutput(os.Stderr)

	engCfg := engine.Config{
		SemanticConfig: semantic.Config{
			MaxNestingDepth:     cfg.MaxNestingDepth,
			AllowedURLProtocols: cfg.AllowedURLProtocols,
		},
		OptimizerConfig: optimizer.Config{MaxPasses: cfg.OptimizerMaxPasses},
		DefaultTimeout:  cfg.DefaultTimeout(),
		Logger:          log,
	}

	browser := controllers.NewMockBrowser()
	proxy := controllers.NewMockProxy()
	formatter := controllers.MockFormatter{}

	return engine.New(browser, proxy, formatter, engCfg), cfg, nil
}
