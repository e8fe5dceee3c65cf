package imageprep

import (
	"fmt"
	"image"
	"math"
	"sort"
)

// Filters operate on zero-origin *image.Gray and replicate edge pixels.

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

// MedianFilter replaces each pixel with the median of its size x size window
func MedianFilter(src *image.Gray, size int) (*image.Gray, error) {
	if size < 1 || size%2 == 0 {
		return nil, fmt.Errorf("median size must be odd and positive, got %d", size)
	}
	if size == 1 {
		return src, nil
	}

	w, h := src.Rect.Dx(), src.Rect.Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))
	r := size / 2
	window := make([]uint8, 0, size*size)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			window = window[:0]
			for dy := -r; dy <= r; dy++ {
				row := clampIndex(y+dy, h) * src.Stride
				for dx := -r; dx <= r; dx++ {
					window = append(window, src.Pix[row+clampIndex(x+dx, w)])
				}
			}
			sort.Slice(window, func(i, j int) bool { return window[i] < window[j] })
			dst.Pix[y*dst.Stride+x] = window[len(window)/2]
		}
	}
	return dst, nil
}

// gaussianKernel returns normalised 1-D weights. The sigma for a given
// window follows 0.3*((n-1)*0.5-1)+0.8, so an 11 window has sigma 2.
func gaussianKernel(n int) []float64 {
	sigma := 0.3*(float64(n-1)*0.5-1) + 0.8
	k := make([]float64, n)
	sum := 0.0
	c := n / 2
	for i := range k {
		d := float64(i - c)
		k[i] = math.Exp(-(d * d) / (2 * sigma * sigma))
		sum += k[i]
	}
	for i := range k {
		k[i] /= sum
	}
	return k
}

// AdaptiveThreshold binarises src against a Gaussian-weighted local mean of
// a block x block window: white where pixel > round(mean) - bias, else black.
func AdaptiveThreshold(src *image.Gray, block int, bias float64) (*image.Gray, error) {
	if block < 3 || block%2 == 0 {
		return nil, fmt.Errorf("block size must be odd and at least 3, got %d", block)
	}

	w, h := src.Rect.Dx(), src.Rect.Dy()
	k := gaussianKernel(block)
	r := block / 2

	// separable blur: rows then columns
	tmp := make([]float64, w*h)
	for y := 0; y < h; y++ {
		row := y * src.Stride
		for x := 0; x < w; x++ {
			acc := 0.0
			for i := -r; i <= r; i++ {
				acc += k[i+r] * float64(src.Pix[row+clampIndex(x+i, w)])
			}
			tmp[y*w+x] = acc
		}
	}

	dst := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			acc := 0.0
			for i := -r; i <= r; i++ {
				acc += k[i+r] * tmp[clampIndex(y+i, h)*w+x]
			}
			mean := math.Round(acc)
			if float64(src.Pix[y*src.Stride+x]) > mean-bias {
				dst.Pix[y*dst.Stride+x] = 255
			}
		}
	}
	return dst, nil
}

// Close dilates then erodes with a size x size square. Size 1 is identity.
func Close(src *image.Gray, size int) (*image.Gray, error) {
	if size < 1 {
		return nil, fmt.Errorf("closing kernel size must be positive, got %d", size)
	}
	if size == 1 {
		return src, nil
	}
	return morph(morph(src, size, true), size, false), nil
}

// morph applies max (dilate) or min (erode) over the window anchored at its centre
func morph(src *image.Gray, size int, dilate bool) *image.Gray {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))
	lo := -(size / 2)
	hi := lo + size - 1

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := src.Pix[y*src.Stride+x]
			for dy := lo; dy <= hi; dy++ {
				row := clampIndex(y+dy, h) * src.Stride
				for dx := lo; dx <= hi; dx++ {
					p := src.Pix[row+clampIndex(x+dx, w)]
					if (dilate && p > v) || (!dilate && p < v) {
						v = p
					}
				}
			}
			dst.Pix[y*dst.Stride+x] = v
		}
	}
	return dst
}
