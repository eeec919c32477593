package main

import (
	"fmt"
	"strconv"

	"evacsim/internal/logging"
	"evacsim/internal/sensor"

	"github.com/spf13/cobra"
)

var decideFlags struct {
	model   string
	encoder string
}

var decideCmd = &cobra.Command{
	Use: "decide <simulation_id> <helper_gender> <helper_culture> <helper_age> <fallen_gender> " +
		"<fallen_culture> <fallen_age> <helper_fallen_distance> <staff_fallen_distance>",
	Short: "Print the probability that a bystander offers help to a fallen passenger",
	Long: `Decide encodes one sensor reading with the trained encoder and asks the
decision controller for the probability that the helper shares the fallen
passenger's identity. The probability is printed on stdout.`,
	Args: cobra.ExactArgs(1 + len(sensor.Columns)),
	RunE: runDecide,
}

func init() {
	f := decideCmd.Flags()
	f.StringVar(&decideFlags.model, "model", "", "Trained model file (default from config)")
	f.StringVar(&decideFlags.encoder, "encoder", "", "Encoder file (default from config)")
}

func runDecide(cmd *cobra.Command, args []string) error {
	simID, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("simulation_id %q is not an integer", args[0])
	}
	reading, err := sensor.FromArgs(args[1:])
	if err != nil {
		return err
	}

	modelPath, encoderPath := cfg.Analyser.ModelFile, cfg.Analyser.EncoderFile
	if decideFlags.model != "" {
		modelPath = decideFlags.model
	}
	if decideFlags.encoder != "" {
		encoderPath = decideFlags.encoder
	}
	ctl, enc, err := loadAnalyser(modelPath, encoderPath)
	if err != nil {
		return err
	}

	features, err := reading.Encode(enc)
	if err != nil {
		return err
	}
	p, err := ctl.SharedIdentityProbability(features)
	if err != nil {
		return err
	}
	logging.New("decide").Debug("decision", "simulation_id", simID, "probability", p)
	fmt.Fprintln(cmd.OutOrStdout(), strconv.FormatFloat(p, 'f', -1, 64))
	return nil
}
