package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
)

// LinearModel is a softmax classifier over an average-pooled grid of the input.
// It is read-only after loading and safe for concurrent use.
type LinearModel struct {
	Name    string      `json:"name"`
	Grid    int         `json:"grid"`
	Weights [][]float32 `json:"weights"`
	Bias    []float32   `json:"bias"`
}

// LoadLinearModel reads and validates a model file.
func LoadLinearModel(path string) (*LinearModel, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model file: %w", err)
	}
	var m LinearModel
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode model file %s: %w", path, err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("model file %s: %w", path, err)
	}
	return &m, nil
}

// Features is the length of the pooled feature vector.
func (m *LinearModel) Features() int {
	return m.Grid * m.Grid * Channels
}

// Validate checks that the weights agree with the grid and with each other.
func (m *LinearModel) Validate() error {
	if m.Grid <= 0 || m.Grid > InputSize {
		return fmt.Errorf("grid must be within 1..%d, got %d", InputSize, m.Grid)
	}
	if len(m.Weights) == 0 {
		return fmt.Errorf("model has no classes")
	}
	if len(m.Bias) != len(m.Weights) {
		return fmt.Errorf("bias has %d entries for %d classes", len(m.Bias), len(m.Weights))
	}
	for i, row := range m.Weights {
		if len(row) != m.Features() {
			return fmt.Errorf("class %d has %d weights, want %d", i, len(row), m.Features())
		}
	}
	return nil
}

// Predict returns per-class probabilities for input.
func (m *LinearModel) Predict(ctx context.Context, input *Tensor) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if input == nil || input.Shape[0] != 1 || input.Shape[3] != Channels {
		return nil, fmt.Errorf("%w: unexpected input shape", ErrInference)
	}
	features := m.pool(input)

	logits := make([]float64, len(m.Weights))
	for k, row := range m.Weights {
		sum := float64(m.Bias[k])
		for i, w := range row {
			sum += float64(w) * features[i]
		}
		logits[k] = sum
	}
	return softmax(logits), nil
}

// pool averages each grid cell per channel and scales the result to 0..1.
func (m *LinearModel) pool(input *Tensor) []float64 {
	h, w := input.Shape[1], input.Shape[2]
	out := make([]float64, m.Features())
	for gy := 0; gy < m.Grid; gy++ {
		y0, y1 := gy*h/m.Grid, (gy+1)*h/m.Grid
		for gx := 0; gx < m.Grid; gx++ {
			x0, x1 := gx*w/m.Grid, (gx+1)*w/m.Grid
			n := float64((y1 - y0) * (x1 - x0))
			base := (gy*m.Grid + gx) * Channels
			if n == 0 {
				continue
			}
			for y := y0; y < y1; y++ {
				for x := x0; x < x1; x++ {
					for c := 0; c < Channels; c++ {
						out[base+c] += float64(input.At(y, x, c))
					}
				}
			}
			for c := 0; c < Channels; c++ {
				out[base+c] /= n * 255
			}
		}
	}
	return out
}

func softmax(logits []float64) []float32 {
	maxLogit := math.Inf(-1)
	for _, l := range logits {
		maxLogit = math.Max(maxLogit, l)
	}
	var total float64
	exps := make([]float64, len(logits))
	for i, l := range logits {
		exps[i] = math.Exp(l - maxLogit)
		total += exps[i]
	}
	out := make([]float32, len(logits))
	for i := range exps {
		out[i] = float32(exps[i] / total)
	}
	return out
}
