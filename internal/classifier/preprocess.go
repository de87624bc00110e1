package classifier

import (
	"fmt"
	"image"
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"os"

	"golang.org/x/image/draw"
)

// InputSize is the square resolution the model expects.
const InputSize = 256

// Channels is the number of colour channels per pixel (RGB).
const Channels = 3

// Tensor is a dense NHWC float32 tensor with a batch dimension of 1.
type Tensor struct {
	Shape [4]int
	Data  []float32
}

// At returns the value at (y, x, channel) of the single batch entry.
func (t *Tensor) At(y, x, c int) float32 {
	return t.Data[(y*t.Shape[2]+x)*t.Shape[3]+c]
}

// LoadTensor decodes the image at path, resizes it to InputSize x InputSize
// with nearest-neighbour sampling and returns raw 0..255 RGB values.
func LoadTensor(path string) (*Tensor, error) {
	img, err := LoadResized(path)
	if err != nil {
		return nil, err
	}
	return ToTensor(img), nil
}

// LoadResized decodes the image at path and resizes it to the model input size.
// Colours stay non-premultiplied so translucent pixels keep their RGB values.
func LoadResized(path string) (*image.NRGBA, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open image: %v", ErrInference, err)
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: decode image: %v", ErrInference, err)
	}
	return Resize(src), nil
}

// Resize scales src to InputSize x InputSize.
func Resize(src image.Image) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, InputSize, InputSize))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

// ToTensor converts an image to a 1 x H x W x 3 tensor. Alpha is dropped
// without being applied to the colour channels.
func ToTensor(img *image.NRGBA) *Tensor {
	b := img.Bounds()
	h, w := b.Dy(), b.Dx()
	t := &Tensor{
		Shape: [4]int{1, h, w, Channels},
		Data:  make([]float32, h*w*Channels),
	}
	i := 0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			off := img.PixOffset(b.Min.X+x, b.Min.Y+y)
			t.Data[i] = float32(img.Pix[off])
			t.Data[i+1] = float32(img.Pix[off+1])
			t.Data[i+2] = float32(img.Pix[off+2])
			i += Channels
		}
	}
	return t
}
