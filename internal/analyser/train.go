package analyser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"

	"evacsim/internal/logging"

	"gonum.org/v1/gonum/floats"
)

// Training defaults.
const (
	DefaultMaxEpochs    = 500
	DefaultBatchSize    = 2048
	DefaultLearningRate = 0.001
	DefaultTestFraction = 0.33
)

// TrainConfig controls Train. Zero values take the defaults above.
type TrainConfig struct {
	MaxEpochs    int
	BatchSize    int
	LearningRate float64
	// TargetAccuracy stops training once validation accuracy reaches it.
	// Zero disables it in favour of patience-based early stopping.
	TargetAccuracy float64
	// Patience is the number of epochs without a validation-loss improvement
	// before stopping. Zero means 2% of MaxEpochs (at least 1).
	Patience int
	Seed     uint64
	Logger   *slog.Logger
}

func (c TrainConfig) withDefaults() TrainConfig {
	if c.MaxEpochs <= 0 {
		c.MaxEpochs = DefaultMaxEpochs
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.LearningRate <= 0 {
		c.LearningRate = DefaultLearningRate
	}
	if c.Patience <= 0 {
		c.Patience = max(1, int(float64(c.MaxEpochs)*0.02))
	}
	if c.Logger == nil {
		c.Logger = logging.New("analyser")
	}
	return c
}

// Epoch is the record of one training epoch.
type Epoch struct {
	Loss, ValLoss, ValAccuracy float64
}

// History is the outcome of Train.
type History struct {
	Epochs    []Epoch
	BestEpoch int // index into Epochs of the returned model
	Stopped   string
}

// Train fits a logistic-regression model with mini-batch Adam on binary
// cross-entropy. An imbalanced training set is first undersampled to equal
// class counts. The model with the lowest validation loss is returned.
func Train(ctx context.Context, x [][]float64, y []float64, valX [][]float64, valY []float64, cfg TrainConfig) (*Model, History, error) {
	cfg = cfg.withDefaults()
	log := cfg.Logger
	if len(x) == 0 || len(x) != len(y) {
		return nil, History{}, fmt.Errorf("training set has %d rows and %d labels", len(x), len(y))
	}
	if len(valX) == 0 || len(valX) != len(valY) {
		return nil, History{}, fmt.Errorf("validation set has %d rows and %d labels", len(valX), len(valY))
	}
	width := len(x[0])
	for _, rows := range [][][]float64{x, valX} {
		for i, r := range rows {
			if len(r) != width {
				return nil, History{}, fmt.Errorf("%w: row %d has %d features, want %d", ErrFeatureWidth, i, len(r), width)
			}
		}
	}

	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))
	x, y = undersample(x, y, rng, log)

	m := NewModel(width)
	opt := newAdam(width+1, cfg.LearningRate)
	grad := make([]float64, width+1)
	order := make([]int, len(x))
	for i := range order {
		order[i] = i
	}

	var h History
	best := m.clone()
	bestLoss := math.Inf(1)
	sinceBest := 0
	for epoch := 0; epoch < cfg.MaxEpochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return nil, h, err
		}
		rng.Shuffle(len(order), func(a, b int) { order[a], order[b] = order[b], order[a] })
		for start := 0; start < len(order); start += cfg.BatchSize {
			batch := order[start:min(start+cfg.BatchSize, len(order))]
			gradient(m, x, y, batch, grad)
			opt.step(m, grad)
		}

		e := Epoch{Loss: loss(m, x, y)}
		e.ValLoss, e.ValAccuracy = evaluate(m, valX, valY)
		h.Epochs = append(h.Epochs, e)

		if e.ValLoss < bestLoss {
			bestLoss = e.ValLoss
			best = m.clone()
			h.BestEpoch = epoch
			sinceBest = 0
		} else {
			sinceBest++
		}

		if cfg.TargetAccuracy > 0 && e.ValAccuracy >= cfg.TargetAccuracy {
			h.Stopped = fmt.Sprintf("target accuracy %.3f reached at epoch %d", cfg.TargetAccuracy, epoch)
			break
		}
		if cfg.TargetAccuracy <= 0 && sinceBest >= cfg.Patience {
			h.Stopped = fmt.Sprintf("no validation improvement for %d epochs", cfg.Patience)
			break
		}
	}
	if h.Stopped == "" {
		h.Stopped = fmt.Sprintf("max epochs %d reached", cfg.MaxEpochs)
	}
	if math.IsInf(bestLoss, 1) || math.IsNaN(bestLoss) {
		return nil, h, errors.New("training diverged")
	}
	log.Info("training finished", "epochs", len(h.Epochs), "best_epoch", h.BestEpoch,
		"val_loss", bestLoss, "val_accuracy", h.Epochs[h.BestEpoch].ValAccuracy, "stopped", h.Stopped)
	return best, h, nil
}

// undersample draws, without replacement, as many majority-class rows as
// there are minority-class rows.
func undersample(x [][]float64, y []float64, rng *rand.Rand, log *slog.Logger) ([][]float64, []float64) {
	var pos, neg []int
	for i, v := range y {
		if v >= 0.5 {
			pos = append(pos, i)
		} else {
			neg = append(neg, i)
		}
	}
	log.Info("training data", "positive", len(pos), "negative", len(neg))
	if len(pos) == len(neg) || len(pos) == 0 || len(neg) == 0 {
		return x, y
	}
	majority, minority := pos, neg
	if len(majority) < len(minority) {
		majority, minority = minority, majority
	}
	rng.Shuffle(len(majority), func(a, b int) { majority[a], majority[b] = majority[b], majority[a] })
	keep := append(append([]int(nil), majority[:len(minority)]...), minority...)
	rng.Shuffle(len(keep), func(a, b int) { keep[a], keep[b] = keep[b], keep[a] })

	log.Info("imbalanced dataset, undersampling", "kept_per_class", len(minority))
	ox := make([][]float64, len(keep))
	oy := make([]float64, len(keep))
	for i, j := range keep {
		ox[i], oy[i] = x[j], y[j]
	}
	return ox, oy
}

// gradient writes the mean BCE gradient over batch into grad; the last
// element is the bias term.
func gradient(m *Model, x [][]float64, y []float64, batch []int, grad []float64) {
	for i := range grad {
		grad[i] = 0
	}
	w := len(m.Weights)
	for _, i := range batch {
		diff := sigmoid(floats.Dot(m.Weights, x[i])+m.Bias) - y[i]
		floats.AddScaled(grad[:w], diff, x[i])
		grad[w] += diff
	}
	floats.Scale(1/float64(len(batch)), grad)
}

const epsLog = 1e-7

func bce(p, y float64) float64 {
	p = math.Min(math.Max(p, epsLog), 1-epsLog)
	return -(y*math.Log(p) + (1-y)*math.Log(1-p))
}

func loss(m *Model, x [][]float64, y []float64) float64 {
	var sum float64
	for i := range x {
		sum += bce(sigmoid(floats.Dot(m.Weights, x[i])+m.Bias), y[i])
	}
	return sum / float64(len(x))
}

func evaluate(m *Model, x [][]float64, y []float64) (lossValue, accuracy float64) {
	var sum float64
	correct := 0
	for i := range x {
		p := sigmoid(floats.Dot(m.Weights, x[i]) + m.Bias)
		sum += bce(p, y[i])
		if (p >= 0.5) == (y[i] >= 0.5) {
			correct++
		}
	}
	n := float64(len(x))
	return sum / n, float64(correct) / n
}

type adam struct {
	lr, beta1, beta2, eps float64
	m, v                  []float64
	t                     int
}

func newAdam(n int, lr float64) *adam {
	return &adam{lr: lr, beta1: 0.9, beta2: 0.999, eps: 1e-7, m: make([]float64, n), v: make([]float64, n)}
}

func (a *adam) step(model *Model, grad []float64) {
	a.t++
	c1 := 1 - math.Pow(a.beta1, float64(a.t))
	c2 := 1 - math.Pow(a.beta2, float64(a.t))
	w := len(model.Weights)
	for i, g := range grad {
		a.m[i] = a.beta1*a.m[i] + (1-a.beta1)*g
		a.v[i] = a.beta2*a.v[i] + (1-a.beta2)*g*g
		delta := a.lr * (a.m[i] / c1) / (math.Sqrt(a.v[i]/c2) + a.eps)
		if i < w {
			model.Weights[i] -= delta
		} else {
			model.Bias -= delta
		}
	}
}
