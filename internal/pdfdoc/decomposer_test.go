package pdfdoc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsawler/tabula/model"
	"github.com/tsawler/tabula/reader"

	"github.com/adverant/nexus/textextract-worker/internal/document"
)

// buildPDF numbers objects from 1 and writes a classic xref table
func buildPDF(objects []string) []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")

	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func stream(dict, data string) string {
	return fmt.Sprintf("<< %s /Length %d >>\nstream\n%s\nendstream", dict, len(data), data)
}

// twoPagePDF has two text lines on page 1 and two images on page 2, one of
// them in a Separation color space
func twoPagePDF() []byte {
	return buildPDF([]string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R 4 0 R] /Count 2 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 5 0 R >> >> /Contents 6 0 R >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /XObject << /Im1 7 0 R /Im2 8 0 R >> >> /Contents 9 0 R >>",
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
		stream("", "BT\n/F1 12 Tf\n72 720 Td\n(Invoice #100) Tj\n0 -20 Td\n(Total: $50.00) Tj\nET"),
		stream("/Type /XObject /Subtype /Image /Width 2 /Height 2 /ColorSpace /DeviceGray /BitsPerComponent 8", "ABCD"),
		stream("/Type /XObject /Subtype /Image /Width 2 /Height 2 /ColorSpace /Separation /BitsPerComponent 8", "ABCD"),
		stream("", "q 100 0 0 100 72 600 cm /Im1 Do Q"),
	})
}

func TestDecompose(t *testing.T) {
	d := NewDecomposer(t.TempDir(), nil)

	out, err := d.Decompose(context.Background(), twoPagePDF())
	require.NoError(t, err)
	require.Len(t, out.Pages, 2)

	first := out.Pages[0]
	assert.Equal(t, 1, first.Number)
	assert.NoError(t, first.Err)
	assert.Equal(t, 612.0, first.Width)
	assert.Equal(t, 792.0, first.Height)
	require.Len(t, first.Blocks, 2)
	assert.Equal(t, "Invoice #100", strings.TrimSpace(first.Blocks[0].Text))
	assert.Equal(t, "Total: $50.00", strings.TrimSpace(first.Blocks[1].Text))
	assert.Less(t, first.Blocks[0].BBox.Y1, first.Blocks[1].BBox.Y1, "top line first")
	assert.Empty(t, first.Images)

	second := out.Pages[1]
	assert.Equal(t, 2, second.Number)
	assert.Empty(t, second.Blocks)
	require.Len(t, second.Images, 1)
	assert.Equal(t, 0, second.Images[0].Index)
	assert.Equal(t, 2, second.Images[0].Width)

	decoded, err := png.Decode(bytes.NewReader(second.Images[0].Data))
	require.NoError(t, err)
	assert.Equal(t, 2, decoded.Bounds().Dx())

	require.Len(t, out.Warnings, 1)
	assert.Contains(t, out.Warnings[0], "Im2")
	assert.Contains(t, out.Warnings[0], "Separation")
}

func TestPageCount(t *testing.T) {
	d := NewDecomposer(t.TempDir(), nil)

	n, err := d.PageCount(context.Background(), twoPagePDF())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestDecomposeRejectsGarbage(t *testing.T) {
	d := NewDecomposer(t.TempDir(), nil)

	_, err := d.Decompose(context.Background(), []byte("definitely not a pdf"))
	assert.Error(t, err)

	_, err = d.PageCount(context.Background(), []byte("definitely not a pdf"))
	assert.Error(t, err)
}

func TestDecomposeHonoursCancelledContext(t *testing.T) {
	d := NewDecomposer(t.TempDir(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.Decompose(ctx, twoPagePDF())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestToTopLeft(t *testing.T) {
	got := toTopLeft(model.BBox{X: 72, Y: 700, Width: 100, Height: 12}, 792)
	assert.Equal(t, document.BoundingBox{X1: 72, Y1: 80, X2: 172, Y2: 92}, got)
}

func TestEncode(t *testing.T) {
	jpeg := []byte{0xFF, 0xD8, 0xFF, 0xE0}

	tests := []struct {
		name        string
		img         reader.PageImage
		wantErr     bool
		unsupported bool
		passthrough bool
	}{
		{"jpeg passthrough", reader.PageImage{Width: 1, Height: 1, Filter: "DCTDecode", Data: jpeg}, false, false, true},
		{"jpeg 2000", reader.PageImage{Width: 1, Height: 1, Filter: "JPXDecode"}, true, true, false},
		{"gray", reader.PageImage{Width: 2, Height: 1, ColorSpace: "DeviceGray", BitsPerComponent: 8, Data: []byte{0, 255}}, false, false, false},
		{"rgb", reader.PageImage{Width: 1, Height: 1, ColorSpace: "DeviceRGB", BitsPerComponent: 8, Data: []byte{1, 2, 3}}, false, false, false},
		{"icc rgb", reader.PageImage{Width: 1, Height: 1, ColorSpace: "ICCBased", BitsPerComponent: 8, Data: []byte{1, 2, 3}}, false, false, false},
		{"icc odd", reader.PageImage{Width: 1, Height: 1, ColorSpace: "ICCBased", BitsPerComponent: 8, Data: []byte{1, 2}}, true, true, false},
		{"separation", reader.PageImage{Width: 1, Height: 1, ColorSpace: "Separation", BitsPerComponent: 8, Data: []byte{1}}, true, true, false},
		{"lab", reader.PageImage{Width: 1, Height: 1, ColorSpace: "Lab", BitsPerComponent: 8, Data: []byte{1, 2, 3}}, true, true, false},
		{"empty", reader.PageImage{ColorSpace: "DeviceGray"}, true, true, false},
		{"short data", reader.PageImage{Width: 4, Height: 4, ColorSpace: "DeviceGray", BitsPerComponent: 8, Data: []byte{1}}, true, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Encode(tt.img)
			if tt.wantErr {
				require.Error(t, err)
				var unsupported *UnsupportedImageError
				assert.Equal(t, tt.unsupported, errors.As(err, &unsupported))
				return
			}
			require.NoError(t, err)
			if tt.passthrough {
				assert.Equal(t, tt.img.Data, out)
				return
			}
			_, err = png.Decode(bytes.NewReader(out))
			assert.NoError(t, err)
		})
	}
}
