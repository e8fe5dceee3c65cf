package pdfdoc

import (
	"fmt"

	"github.com/tsawler/tabula/reader"
)

// UnsupportedImageError marks images the pixel encoder cannot represent
type UnsupportedImageError struct {
	Reason string
}

func (e *UnsupportedImageError) Error() string {
	return "unsupported image: " + e.Reason
}

var supportedColorSpaces = map[string]bool{
	"DeviceGray": true,
	"CalGray":    true,
	"DeviceRGB":  true,
	"CalRGB":     true,
	"DeviceCMYK": true,
}

// Encode returns bytes an image decoder understands. JPEG streams pass
// through; raw samples in gray, RGB or CMYK become PNG. ICC-based images are
// classified by their sample count. Other color spaces are unsupported.
func Encode(img reader.PageImage) ([]byte, error) {
	if img.Width <= 0 || img.Height <= 0 {
		return nil, &UnsupportedImageError{Reason: fmt.Sprintf("empty image %dx%d", img.Width, img.Height)}
	}

	switch img.Filter {
	case "DCTDecode", "DCT":
		return img.Data, nil
	case "JPXDecode":
		return nil, &UnsupportedImageError{Reason: "JPEG 2000 streams are not decoded"}
	}

	if img.ColorSpace == "ICCBased" {
		cs, err := classifyICC(img)
		if err != nil {
			return nil, err
		}
		img.ColorSpace = cs
	}

	if !supportedColorSpaces[img.ColorSpace] {
		return nil, &UnsupportedImageError{Reason: "color space " + img.ColorSpace}
	}

	data, err := img.ToPNG()
	if err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return data, nil
}

func classifyICC(img reader.PageImage) (string, error) {
	if img.BitsPerComponent != 8 {
		// sub-byte ICC samples are only meaningful as gray
		return "DeviceGray", nil
	}
	switch len(img.Data) / (img.Width * img.Height) {
	case 1:
		return "DeviceGray", nil
	case 3:
		return "DeviceRGB", nil
	case 4:
		return "DeviceCMYK", nil
	}
	return "", &UnsupportedImageError{Reason: fmt.Sprintf("ICC-based image with %d bytes for %dx%d pixels", len(img.Data), img.Width, img.Height)}
}
