package extract

import (
	"bytes"
	"fmt"
	"image"

	// codecs registered for image.Decode
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/bramasta/verimedia/internal/domain/analysis"
)

// ImageNet input statistics, the convention the pretrained classifiers
// were trained with.
var (
	rgbMean = [3]float32{0.485, 0.456, 0.406}
	rgbStd  = [3]float32{0.229, 0.224, 0.225}
)

// ImageFeatures is one model-ready unit: the normalized HWC tensor plus
// the decoded pixels the heuristic analyzer works from.
type ImageFeatures struct {
	Tensor []float32 // inputSize*inputSize*3, normalized RGB
	Pixels *image.RGBA
	Width  int // original dimensions
	Height int
}

type ImageExtractor struct {
	inputSize int
}

func NewImageExtractor(inputSize int) *ImageExtractor {
	return &ImageExtractor{inputSize: inputSize}
}

// Extract decodes, resizes to the model input dimensions and normalizes
// per the model's expected statistics. Undecodable bytes are corrupt
// input, not an internal error.
func (e *ImageExtractor) Extract(data []byte) (*ImageFeatures, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %v: %w", err, analysis.ErrCorruptInput)
	}

	b := img.Bounds()
	scaled := image.NewRGBA(image.Rect(0, 0, e.inputSize, e.inputSize))
	draw.CatmullRom.Scale(scaled, scaled.Bounds(), img, b, draw.Over, nil)

	tensor := make([]float32, e.inputSize*e.inputSize*3)
	i := 0
	for y := 0; y < e.inputSize; y++ {
		for x := 0; x < e.inputSize; x++ {
			o := scaled.PixOffset(x, y)
			r := float32(scaled.Pix[o]) / 255.0
			g := float32(scaled.Pix[o+1]) / 255.0
			bl := float32(scaled.Pix[o+2]) / 255.0
			tensor[i] = (r - rgbMean[0]) / rgbStd[0]
			tensor[i+1] = (g - rgbMean[1]) / rgbStd[1]
			tensor[i+2] = (bl - rgbMean[2]) / rgbStd[2]
			i += 3
		}
	}

	return &ImageFeatures{
		Tensor: tensor,
		Pixels: scaled,
		Width:  b.Dx(),
		Height: b.Dy(),
	}, nil
}
