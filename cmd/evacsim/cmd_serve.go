package main

import (
	"context"
	"errors"
	"io/fs"

	"evacsim/internal/logging"
	mcpserver "evacsim/internal/mcp"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server over stdio",
	Long: `Starts an MCP server over stdin/stdout exposing get_help_probability,
compare_scenarios, list_scenarios and get_decisions.

The trained model and encoder are loaded when present; without them the
decision tool reports that no analyser is loaded. The server exits when its
parent process goes away.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	log := logging.New("mcp")
	list, err := cfg.ScenarioList()
	if err != nil {
		return err
	}
	srv := mcpserver.NewServer(mcpserver.Options{
		Scenarios:   list,
		ResultsPath: cfg.Experiment.ResultsPath,
		Version:     version,
	})

	ctl, enc, err := loadAnalyser(cfg.Analyser.ModelFile, cfg.Analyser.EncoderFile)
	switch {
	case err == nil:
		srv.SetAnalyser(ctl, enc)
	case errors.Is(err, fs.ErrNotExist):
		log.Warn("no trained analyser, decisions disabled", "model", cfg.Analyser.ModelFile, "error", err)
	default:
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	mcpserver.WatchParent(ctx, 0, cancel)

	log.Info("starting evacsim MCP server over stdio (parent watchdog active)")
	return srv.Run(ctx)
}
