// Package classifier turns a stored retinal image into a category index.
package classifier

import (
	"context"
	"errors"
	"fmt"
)

// ErrInference marks every failure to classify an image: undecodable input,
// an unavailable model or an unusable score vector.
var ErrInference = errors.New("model inference failed")

// PositiveIndex is the category the model uses for glaucoma.
const PositiveIndex = 0

// Classifier exposes the single operation the prediction flow needs.
// Implementations are loaded once and must be safe for concurrent use.
type Classifier interface {
	Classify(ctx context.Context, imagePath string) (int, error)
}

// Model scores a preprocessed input tensor.
type Model interface {
	Predict(ctx context.Context, input *Tensor) ([]float32, error)
}

// ModelClassifier runs preprocessing and a Model to produce a category index.
type ModelClassifier struct {
	model Model
}

// NewModelClassifier wraps a loaded model.
func NewModelClassifier(model Model) *ModelClassifier {
	return &ModelClassifier{model: model}
}

// Classify loads imagePath, scores it and returns the highest-scoring category.
func (c *ModelClassifier) Classify(ctx context.Context, imagePath string) (int, error) {
	if c == nil || c.model == nil {
		return 0, fmt.Errorf("%w: model not loaded", ErrInference)
	}
	input, err := LoadTensor(imagePath)
	if err != nil {
		return 0, err
	}
	scores, err := c.model.Predict(ctx, input)
	if err != nil {
		if errors.Is(err, ErrInference) {
			return 0, err
		}
		return 0, fmt.Errorf("%w: %v", ErrInference, err)
	}
	return Argmax(scores)
}

// Argmax returns the index of the highest score. Ties resolve to the lowest index.
func Argmax(scores []float32) (int, error) {
	if len(scores) == 0 {
		return 0, fmt.Errorf("%w: empty score vector", ErrInference)
	}
	best := 0
	for i := 1; i < len(scores); i++ {
		if scores[i] > scores[best] {
			best = i
		}
	}
	return best, nil
}
