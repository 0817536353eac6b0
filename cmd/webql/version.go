package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print webql's build information",
		RunE: func(cmd *cobra.Command, args []string) error {
			border := lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("63")).
				Padding(0, 1)
			title := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))

			body := fmt.Sprintf("%s\nversion %s (%s)", title.Render("webql"), version, commit)
			fmt.Fprintln(cmd.OutOrStdout(), border.Render(body))
			return nil
		},
	}
}
