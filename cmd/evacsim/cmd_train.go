package main

import (
	"fmt"

	"evacsim/internal/analyser"
	"evacsim/internal/format"

	"github.com/spf13/cobra"
)

var trainFlags struct {
	dataDir        string
	model          string
	encoder        string
	maxEpochs      int
	batchSize      int
	learningRate   float64
	targetAccuracy float64
	seed           uint64
}

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train the type analyser on NetLogo request-for-help data",
	Long: `Train reads every <i>_request-for-help-results.csv in --data-dir, holds out a
stratified third for validation, one-hot encodes the categorical columns,
undersamples the majority class and fits a logistic-regression classifier of
the "offer-help" label. The best model by validation loss and its encoder are
written to --model and --encoder.`,
	RunE: runTrain,
}

func init() {
	f := trainCmd.Flags()
	f.StringVar(&trainFlags.dataDir, "data-dir", "", "Directory of request-for-help CSVs (default from config, data/training)")
	f.StringVar(&trainFlags.model, "model", "", "Output model file (default from config)")
	f.StringVar(&trainFlags.encoder, "encoder", "", "Output encoder file (default from config)")
	f.IntVar(&trainFlags.maxEpochs, "max-epochs", 0, "Maximum training epochs (default 500)")
	f.IntVar(&trainFlags.batchSize, "batch-size", 0, "Mini-batch size (default 2048)")
	f.Float64Var(&trainFlags.learningRate, "learning-rate", 0, "Adam learning rate (default 0.001)")
	f.Float64Var(&trainFlags.targetAccuracy, "target-accuracy", 0, "Stop once validation accuracy reaches this; 0 = patience-based early stopping")
	f.Uint64Var(&trainFlags.seed, "seed", 0, "Seed for the split, undersampling and shuffling")
}

func runTrain(cmd *cobra.Command, _ []string) error {
	dataDir, modelPath, encoderPath := cfg.Analyser.TrainingDir, cfg.Analyser.ModelFile, cfg.Analyser.EncoderFile
	if trainFlags.dataDir != "" {
		dataDir = trainFlags.dataDir
	}
	if trainFlags.model != "" {
		modelPath = trainFlags.model
	}
	if trainFlags.encoder != "" {
		encoderPath = trainFlags.encoder
	}
	tc := cfg.TrainConfig()
	if trainFlags.maxEpochs > 0 {
		tc.MaxEpochs = trainFlags.maxEpochs
	}
	if trainFlags.batchSize > 0 {
		tc.BatchSize = trainFlags.batchSize
	}
	if trainFlags.learningRate > 0 {
		tc.LearningRate = trainFlags.learningRate
	}
	if trainFlags.targetAccuracy > 0 {
		tc.TargetAccuracy = trainFlags.targetAccuracy
	}
	tc.Seed = trainFlags.seed

	a, err := analyser.TrainFiles(cmd.Context(), dataDir, modelPath, encoderPath, tc)
	if err != nil {
		return err
	}

	best := a.History.Epochs[a.History.BestEpoch]
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Training rows:    %s\n", format.Count(a.TrainRows))
	fmt.Fprintf(out, "Validation rows:  %s\n", format.Count(a.TestRows))
	fmt.Fprintf(out, "Features:         %d\n", a.Model.NumFeatures)
	fmt.Fprintf(out, "Epochs:           %d (best %d, %s)\n", len(a.History.Epochs), a.History.BestEpoch+1, a.History.Stopped)
	fmt.Fprintf(out, "Validation loss:  %s\n", format.Float(best.ValLoss, 4))
	fmt.Fprintf(out, "Validation acc:   %s\n", format.Float(best.ValAccuracy, 4))
	fmt.Fprintf(out, "Model:            %s\n", modelPath)
	fmt.Fprintf(out, "Encoder:          %s\n", encoderPath)
	return nil
}
