package main

import (
	"fmt"
	"strings"

	"evacsim/internal/format"

	"github.com/spf13/cobra"
)

var scenariosFlags struct {
	format string
}

var scenariosCmd = &cobra.Command{
	Use:   "scenarios",
	Short: "List the experiment scenarios and their post-setup commands",
	RunE:  runScenarios,
}

func init() {
	scenariosCmd.Flags().StringVar(&scenariosFlags.format, "format", "ascii", "Output format (ascii, markdown)")
}

func runScenarios(cmd *cobra.Command, _ []string) error {
	mode, err := format.ParseMode(scenariosFlags.format)
	if err != nil {
		return err
	}
	list, err := cfg.ScenarioList()
	if err != nil {
		return err
	}
	tb := format.NewTable(mode)
	tb.Header("#", "Scenario", "Commands")
	for i, s := range list {
		cmds := "(none)"
		if len(s.Commands) > 0 {
			cmds = strings.Join(s.Commands, "; ")
		}
		tb.Row(i+1, s.Name, cmds)
	}
	fmt.Fprintln(cmd.OutOrStdout(), tb.String())
	return nil
}
