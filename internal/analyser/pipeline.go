package analyser

import (
	"context"
	"fmt"
)

// Artefacts is what TrainFiles produces.
type Artefacts struct {
	Encoder   *Encoder
	Model     *Model
	History   History
	TrainRows int
	TestRows  int
}

// TrainFiles loads the request-for-help CSVs in dataDir, splits them, fits
// the encoder on the training half and trains a model validated on the test
// half. Both artefacts are written when their paths are non-empty.
func TrainFiles(ctx context.Context, dataDir, modelPath, encoderPath string, cfg TrainConfig) (*Artefacts, error) {
	cfg = cfg.withDefaults()
	d, err := LoadRequestForHelp(dataDir)
	if err != nil {
		return nil, err
	}
	train, test, err := StratifiedSplit(d, DefaultTestFraction, cfg.Seed)
	if err != nil {
		return nil, err
	}
	if train.Len() == 0 || test.Len() == 0 {
		return nil, fmt.Errorf("dataset of %d rows is too small to split", d.Len())
	}
	cfg.Logger.Info("dataset loaded", "dir", dataDir, "rows", d.Len(), "train", train.Len(), "test", test.Len())

	enc, err := FitEncoder(train.Columns, train.Rows)
	if err != nil {
		return nil, err
	}
	xTrain, err := enc.TransformAll(train.Rows)
	if err != nil {
		return nil, fmt.Errorf("encode training set: %w", err)
	}
	xTest := encodeKnown(enc, test)
	if len(xTest.x) == 0 {
		return nil, fmt.Errorf("every test row holds a category unseen in training")
	}

	m, h, err := Train(ctx, xTrain, train.Labels, xTest.x, xTest.y, cfg)
	if err != nil {
		return nil, err
	}
	if encoderPath != "" {
		if err := enc.Save(encoderPath); err != nil {
			return nil, err
		}
	}
	if modelPath != "" {
		if err := m.Save(modelPath); err != nil {
			return nil, err
		}
		cfg.Logger.Info("model saved", "path", modelPath, "features", m.NumFeatures)
	}
	return &Artefacts{Encoder: enc, Model: m, History: h, TrainRows: train.Len(), TestRows: test.Len()}, nil
}

type encoded struct {
	x [][]float64
	y []float64
}

// encodeKnown encodes the rows of d, skipping any whose categories the
// encoder never saw.
func encodeKnown(enc *Encoder, d *Dataset) encoded {
	var out encoded
	for i, row := range d.Rows {
		x, err := enc.Transform(row)
		if err != nil {
			continue
		}
		out.x = append(out.x, x)
		out.y = append(out.y, d.Labels[i])
	}
	return out
}
