// evacsim runs robot-assisted evacuation experiments against a NetLogo
// model, analyses their results and serves the robot's help decisions.
//
// Usage:
//
//	evacsim experiment [--samples=100] [--workers=N] [--scenario=name ...]
//	evacsim analyze [results.csv ...] [--alternative=less]
//	evacsim decide <simulation_id> <helper_gender> <helper_culture> <helper_age> <fallen_gender> <fallen_culture> <fallen_age> <helper_fallen_distance> <staff_fallen_distance>
//	evacsim train [--data-dir=data/training]
//	evacsim scenarios
//	evacsim runs [run-id]
//	evacsim serve
package main

import (
	"fmt"
	"os"

	"evacsim/internal/config"
	"evacsim/internal/logging"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	configPath  string
	logLevel    string
	logFormat   string
	metricsAddr string
}

// cfg is loaded once per invocation by the root PersistentPreRunE.
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "evacsim",
	Short: "Robot-assisted evacuation experiments on a NetLogo model",
	Long: "evacsim drives a NetLogo evacuation model through a bridge process across\n" +
		"support scenarios, compares the resulting evacuation times, and trains and\n" +
		"serves the classifier a robot consults when a passenger falls.",
	SilenceUsage: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	PersistentPreRunE: setup,
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&rootFlags.configPath, "config", "", "Config file (YAML or JSON); defaults apply when empty")
	f.StringVar(&rootFlags.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	f.StringVar(&rootFlags.logFormat, "log-format", "text", "Log format (text, json)")
	f.StringVar(&rootFlags.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9464); empty = disabled")

	rootCmd.AddCommand(experimentCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(decideCmd)
	rootCmd.AddCommand(trainCmd)
	rootCmd.AddCommand(scenariosCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.Version = version
}

func setup(cmd *cobra.Command, _ []string) error {
	level, err := logging.ParseLevel(rootFlags.logLevel)
	if err != nil {
		return err
	}
	switch rootFlags.logFormat {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q (text, json)", rootFlags.logFormat)
	}
	logging.Init(level, rootFlags.logFormat, cmd.ErrOrStderr())

	c, err := config.Load(rootFlags.configPath)
	if err != nil {
		return err
	}
	if rootFlags.metricsAddr != "" {
		c.MetricsAddr = rootFlags.metricsAddr
	}
	cfg = c
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
