// Package imageprep normalises raster images for OCR: forced RGB, upscaling
// of small images, grayscale, median denoise, adaptive Gaussian binarisation
// and a morphological closing.
package imageprep

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"math"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/adverant/nexus/textextract-worker/internal/logging"
)

// Options tunes the pipeline; DefaultOptions matches the OCR tuning
type Options struct {
	MinDimension    int     // upscale when width or height is below this
	MedianSize      int     // median kernel edge, odd
	BlockSize       int     // adaptive threshold window edge, odd
	ThresholdBias   float64 // subtracted from the local weighted mean
	CloseKernelSize int     // closing structuring element edge; 1 is a no-op
}

// DefaultOptions returns 300px floor, 3x3 median, 11x11 block, C=2, 1x1 close
func DefaultOptions() Options {
	return Options{
		MinDimension:    300,
		MedianSize:      3,
		BlockSize:       11,
		ThresholdBias:   2,
		CloseKernelSize: 1,
	}
}

// Step is one best-effort transformation
type Step struct {
	Name  string
	Apply func(img image.Image) (image.Image, error)
}

// Preprocessor runs the steps in order
type Preprocessor struct {
	opts   Options
	steps  []Step
	logger *logging.Logger
}

// NewPreprocessor builds the standard step list
func NewPreprocessor(opts Options, logger *logging.Logger) *Preprocessor {
	if logger == nil {
		logger = logging.NewLogger("ImagePrep")
	}
	p := &Preprocessor{opts: opts, logger: logger}
	p.steps = []Step{
		{Name: "rgb", Apply: func(img image.Image) (image.Image, error) { return ToRGB(img), nil }},
		{Name: "upscale", Apply: func(img image.Image) (image.Image, error) { return Upscale(img, opts.MinDimension) }},
		{Name: "grayscale", Apply: func(img image.Image) (image.Image, error) { return ToGray(img), nil }},
		{Name: "median", Apply: func(img image.Image) (image.Image, error) { return MedianFilter(asGray(img), opts.MedianSize) }},
		{Name: "threshold", Apply: func(img image.Image) (image.Image, error) {
			return AdaptiveThreshold(asGray(img), opts.BlockSize, opts.ThresholdBias)
		}},
		{Name: "close", Apply: func(img image.Image) (image.Image, error) { return Close(asGray(img), opts.CloseKernelSize) }},
	}
	return p
}

// Steps exposes the ordered step list
func (p *Preprocessor) Steps() []Step {
	return p.steps
}

// Process runs every step. A failing step stops the pipeline and the image
// produced by the previous step is returned unchanged.
func (p *Preprocessor) Process(img image.Image) image.Image {
	current := img
	for _, step := range p.steps {
		next, err := runStep(step, current)
		if err != nil {
			p.logger.Warn("Image preprocessing step failed, using image as is", "step", step.Name, "error", err)
			return current
		}
		current = next
	}
	return current
}

// ProcessBytes decodes an encoded image, processes it and returns PNG bytes
// with the original pixel dimensions.
func (p *Preprocessor) ProcessBytes(data []byte) ([]byte, image.Point, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, image.Point{}, fmt.Errorf("failed to decode image: %w", err)
	}
	size := img.Bounds().Size()

	out := p.Process(img)

	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return nil, size, fmt.Errorf("failed to encode PNG: %w", err)
	}
	return buf.Bytes(), size, nil
}

func runStep(step Step, img image.Image) (out image.Image, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s: %v", step.Name, r)
		}
	}()
	return step.Apply(img)
}

// ToRGB flattens img onto an opaque white RGBA canvas
func ToRGB(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)
	return dst
}

// Lanczos is a three-lobe Lanczos resampling kernel
var Lanczos = &draw.Kernel{
	Support: 3,
	At: func(t float64) float64 {
		if t < 0 {
			t = -t
		}
		if t < 1e-9 {
			return 1
		}
		if t >= 3 {
			return 0
		}
		x := math.Pi * t
		return 3 * math.Sin(x) * math.Sin(x/3) / (x * x)
	},
}

// Upscale scales img uniformly by max(floor/w, floor/h) when either side is
// below floor. Larger images are returned unchanged.
func Upscale(img image.Image, floor int) (image.Image, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("empty image %dx%d", w, h)
	}
	if w >= floor && h >= floor {
		return img, nil
	}

	scale := math.Max(float64(floor)/float64(w), float64(floor)/float64(h))
	nw, nh := int(float64(w)*scale), int(float64(h)*scale)

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	Lanczos.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst, nil
}

// ToGray converts with ITU-R 601 luma weights
func ToGray(img image.Image) *image.Gray {
	b := img.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			dst.SetGray(x, y, color.GrayModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray))
		}
	}
	return dst
}

func asGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok && g.Bounds().Min == (image.Point{}) {
		return g
	}
	return ToGray(img)
}
