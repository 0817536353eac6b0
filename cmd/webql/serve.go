package main

import (
	"bufio"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/webql/webql/engine"
)

// newServeCmd is a stub interactive REPL: it reads one query per line from
// stdin and runs it with the same engine newRunCmd uses, until EOF. A real
// deployment would swap this loop for a network listener; the engine facade
// underneath (engine.Engine.Execute) is already transport-agnostic.
func newServeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Read WebQL queries from stdin, one per line, and execute each (stub REPL)",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, cfg, err := buildEngine(flags)
			if err != nil {
				return err
			}
			opts := engine.QueryOptions{
				Format:      engine.Format(cfg.DefaultFormat),
				Permissions: engine.ParsePermissions(cfg.DefaultPermissions),
			}

			out := cmd.OutOrStdout()
			scanner := bufio.NewScanner(cmd.InOrStdin())
			for scanner.Scan() {
				query := scanner.Text()
				if query == "" {
					continue
				}
				result, err := eng.Execute(cmd.Context(), query, opts)
				if err != nil {
					fmt.Fprintln(out, failureStyle.Render("FAILED"), err)
					continue
				}
				fmt.Fprintln(out, successStyle.Render("OK"), labelStyle.Render(result.QueryID))
			}
			if err := scanner.Err(); err != nil && err != io.EOF {
				return err
			}
			return nil
		},
	}
}
