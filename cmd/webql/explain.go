package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/webql/webql/ast"
	"github.com/webql/webql/depgraph"
	"github.com/webql/webql/optimizer"
	"github.com/webql/webql/parser"
	"github.com/webql/webql/plan"
	"github.com/webql/webql/semantic"
)

var stepIndent = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).PaddingLeft(2)

func newExplainCmd(_ *rootFlags) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "explain <query>",
		Short: "Compile a query and print its optimized plan without executing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stmt, err := parser.Parse(args[0])
			if err != nil {
				return err
			}

			analyzer := semantic.New(semantic.Config{AllowUndefinedVariables: true})
			if _, err := analyzer.Analyze(stmt); err != nil {
				return err
			}

			opt := optimizer.New(optimizer.Config{})
			res := opt.Optimize(stmt)

			p := plan.New(res.Cache).Plan(res.Statement)
			graph, err := depgraph.Build(p.Steps)
			if err != nil {
				return err
			}
			groups := graph.ParallelGroups()

			out := cmd.OutOrStdout()

			if asJSON {
				snapshot, err := plan.Serialize(p)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, snapshot)
				return nil
			}

			fmt.Fprintf(out, "query: %s\n", ast.Print(res.Statement))
			fmt.Fprintf(out, "passes applied: %v\n", res.AppliedPasses)
			fmt.Fprintf(out, "cost: %.2fms -> %.2fms (est. wall %.2fms)\n", res.CostBefore.Total(), res.CostAfter.Total(), res.EstimatedTotalMS)
			fmt.Fprintf(out, "steps: %d\n", len(p.Steps))
			for _, s := range p.Steps {
				line := fmt.Sprintf("%s %s deps=%v cacheable=%v cost=%.2fms",
					s.ID, s.Kind, s.Dependencies, s.Cacheable, s.EstimatedCost)
				fmt.Fprintln(out, stepIndent.Render(line))
			}
			if len(groups) > 0 {
				fmt.Fprintf(out, "parallel groups: %v\n", groups)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the plan as a serialized JSON snapshot (plan.Serialize)")
	return cmd
}
