package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/example/glaucoscan/internal/repository"
)

// colourModel picks the dominant channel: red -> 0, green -> 1, blue -> 2.
func colourModel() *LinearModel {
	return &LinearModel{
		Name: "colour",
		Grid: 1,
		Weights: [][]float32{
			{4, -2, -2},
			{-2, 4, -2},
			{-2, -2, 4},
		},
		Bias: []float32{0, 0, 0},
	}
}

func writeImage(t *testing.T, dir, name string, w, h int, c color.Color) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create image: %v", err)
	}
	defer f.Close()
	if filepath.Ext(name) == ".jpg" {
		err = jpeg.Encode(f, img, &jpeg.Options{Quality: 95})
	} else {
		err = png.Encode(f, img)
	}
	if err != nil {
		t.Fatalf("encode image: %v", err)
	}
	return path
}

func TestClassifyPicksHighestScoringCategory(t *testing.T) {
	dir := t.TempDir()
	c := NewModelClassifier(colourModel())

	cases := []struct {
		name   string
		colour color.Color
		want   int
	}{
		{"red.png", color.RGBA{R: 220, G: 10, B: 10, A: 255}, 0},
		{"green.png", color.RGBA{R: 10, G: 220, B: 10, A: 255}, 1},
		{"blue.jpg", color.RGBA{R: 10, G: 10, B: 220, A: 255}, 2},
	}
	for _, tc := range cases {
		path := writeImage(t, dir, tc.name, 300, 180, tc.colour)
		got, err := c.Classify(context.Background(), path)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
		if got != tc.want {
			t.Fatalf("%s: expected category %d, got %d", tc.name, tc.want, got)
		}
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	path := writeImage(t, t.TempDir(), "sample.png", 64, 64, color.RGBA{R: 120, G: 90, B: 60, A: 255})
	c := NewModelClassifier(colourModel())

	first, err := c.Classify(context.Background(), path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 5; i++ {
		got, err := c.Classify(context.Background(), path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != first {
			t.Fatalf("expected stable category %d, got %d", first, got)
		}
	}
}

func TestClassifyRejectsUndecodableImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.png")
	if err := os.WriteFile(path, []byte("not an image"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	_, err := NewModelClassifier(colourModel()).Classify(context.Background(), path)
	if !errors.Is(err, ErrInference) {
		t.Fatalf("expected ErrInference, got %v", err)
	}

	_, err = NewModelClassifier(colourModel()).Classify(context.Background(), filepath.Join(t.TempDir(), "missing.png"))
	if !errors.Is(err, ErrInference) {
		t.Fatalf("expected ErrInference for missing file, got %v", err)
	}
}

func TestClassifyWithoutModelFails(t *testing.T) {
	path := writeImage(t, t.TempDir(), "x.png", 8, 8, color.White)

	_, err := NewModelClassifier(nil).Classify(context.Background(), path)
	if !errors.Is(err, ErrInference) {
		t.Fatalf("expected ErrInference, got %v", err)
	}
}

type failingModel struct{}

func (failingModel) Predict(context.Context, *Tensor) ([]float32, error) {
	return nil, errors.New("runtime unavailable")
}

func TestClassifyWrapsModelErrors(t *testing.T) {
	path := writeImage(t, t.TempDir(), "x.png", 8, 8, color.White)

	_, err := NewModelClassifier(failingModel{}).Classify(context.Background(), path)
	if !errors.Is(err, ErrInference) {
		t.Fatalf("expected ErrInference, got %v", err)
	}
}

func TestLoadTensorShape(t *testing.T) {
	path := writeImage(t, t.TempDir(), "wide.png", 512, 100, color.RGBA{R: 1, G: 2, B: 3, A: 255})

	tensor, err := LoadTensor(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tensor.Shape != [4]int{1, InputSize, InputSize, Channels} {
		t.Fatalf("unexpected shape %v", tensor.Shape)
	}
	if len(tensor.Data) != InputSize*InputSize*Channels {
		t.Fatalf("unexpected data length %d", len(tensor.Data))
	}
	if got := tensor.At(255, 255, 2); got != 3 {
		t.Fatalf("expected raw channel value 3, got %v", got)
	}
}

func TestLoadTensorIgnoresAlpha(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 200, G: 100, B: 50, A: 128})
		}
	}
	path := filepath.Join(t.TempDir(), "translucent.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create image: %v", err)
	}
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode image: %v", err)
	}
	f.Close()

	tensor, err := LoadTensor(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, pos := range [][2]int{{0, 0}, {128, 64}, {255, 255}} {
		r, g, b := tensor.At(pos[0], pos[1], 0), tensor.At(pos[0], pos[1], 1), tensor.At(pos[0], pos[1], 2)
		if r != 200 || g != 100 || b != 50 {
			t.Fatalf("pixel %v: expected RGB 200 100 50, got %v %v %v", pos, r, g, b)
		}
	}
}

func TestArgmax(t *testing.T) {
	if _, err := Argmax(nil); !errors.Is(err, ErrInference) {
		t.Fatalf("expected ErrInference for empty scores, got %v", err)
	}
	got, err := Argmax([]float32{0.1, 0.7, 0.7, 0.2})
	if err != nil || got != 1 {
		t.Fatalf("expected first maximum at 1, got %d (%v)", got, err)
	}
}

func TestLabel(t *testing.T) {
	if Label(0) != repository.LabelPositive {
		t.Fatalf("category 0 must be Positive")
	}
	for _, idx := range []int{1, 2, -1} {
		if Label(idx) != repository.LabelNegative {
			t.Fatalf("category %d must be Negative", idx)
		}
	}
}

func TestLoadLinearModel(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "good.json")
	raw, _ := json.Marshal(colourModel())
	if err := os.WriteFile(good, raw, 0o600); err != nil {
		t.Fatalf("write model: %v", err)
	}
	m, err := LoadLinearModel(good)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Features() != 3 || len(m.Weights) != 3 {
		t.Fatalf("unexpected model dimensions: %+v", m)
	}

	bad := colourModel()
	bad.Weights[1] = []float32{1}
	raw, _ = json.Marshal(bad)
	badPath := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(badPath, raw, 0o600); err != nil {
		t.Fatalf("write model: %v", err)
	}
	if _, err := LoadLinearModel(badPath); err == nil {
		t.Fatal("expected validation error for mismatched weights")
	}

	if _, err := LoadLinearModel(filepath.Join(dir, "missing.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
