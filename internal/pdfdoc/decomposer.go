// Package pdfdoc decomposes PDF documents into pages of native text lines
// and embedded raster images using the tabula reader.
package pdfdoc

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/tsawler/tabula/layout"
	"github.com/tsawler/tabula/model"
	"github.com/tsawler/tabula/reader"

	"github.com/adverant/nexus/textextract-worker/internal/document"
	"github.com/adverant/nexus/textextract-worker/internal/logging"
)

// Decomposition is the ordered page list plus warnings raised on the way
type Decomposition struct {
	Pages    []document.Page
	Warnings []string
}

// Decomposer reads PDFs through a scratch file in TempDir
type Decomposer struct {
	tempDir string
	logger  *logging.Logger
}

// NewDecomposer creates a decomposer; an empty tempDir uses the OS default
func NewDecomposer(tempDir string, logger *logging.Logger) *Decomposer {
	if logger == nil {
		logger = logging.NewLogger("PDFDecomposer")
	}
	return &Decomposer{tempDir: tempDir, logger: logger}
}

// Decompose returns one Page per PDF page. A page that fails is returned
// empty with Err set, so len(Pages) always equals the page count.
func (d *Decomposer) Decompose(ctx context.Context, data []byte) (*Decomposition, error) {
	r, cleanup, err := d.open(data)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	count, err := r.PageCount()
	if err != nil {
		return nil, fmt.Errorf("failed to read page tree: %w", err)
	}

	out := &Decomposition{Pages: make([]document.Page, 0, count)}
	for i := 0; i < count; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page, warnings := d.decomposePage(r, i)
		out.Pages = append(out.Pages, page)
		out.Warnings = append(out.Warnings, warnings...)
	}

	return out, nil
}

// open writes data to a scratch file and opens a reader over it
func (d *Decomposer) open(data []byte) (*reader.Reader, func(), error) {
	f, err := os.CreateTemp(d.tempDir, "textextract-*.pdf")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create scratch file: %w", err)
	}
	path := f.Name()

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return nil, nil, fmt.Errorf("failed to write scratch file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return nil, nil, fmt.Errorf("failed to write scratch file: %w", err)
	}

	r, err := reader.Open(path)
	if err != nil {
		os.Remove(path)
		return nil, nil, fmt.Errorf("failed to open PDF: %w", err)
	}

	return r, func() {
		r.Close()
		os.Remove(path)
	}, nil
}

// decomposePage never panics; a failure yields an error-flagged empty page
func (d *Decomposer) decomposePage(r *reader.Reader, index int) (page document.Page, warnings []string) {
	number := index + 1
	page.Number = number

	defer func() {
		if rec := recover(); rec != nil {
			page = document.Page{Number: number, Err: fmt.Errorf("page %d: %v", number, rec)}
		}
		if page.Err != nil {
			d.logger.Warn("Page decomposition failed", "page", number, "error", page.Err)
			warnings = append(warnings, fmt.Sprintf("Page %d could not be processed: %v", number, page.Err))
		}
	}()

	p, err := r.GetPage(index)
	if err != nil {
		page.Err = err
		return page, nil
	}

	width, err := p.Width()
	if err != nil {
		page.Err = fmt.Errorf("failed to read page size: %w", err)
		return page, nil
	}
	height, err := p.Height()
	if err != nil {
		page.Err = fmt.Errorf("failed to read page size: %w", err)
		return page, nil
	}
	page.Width, page.Height = width, height

	fragments, err := r.ExtractTextFragments(p)
	if err != nil {
		return document.Page{Number: number, Err: fmt.Errorf("failed to extract text: %w", err)}, nil
	}

	if len(fragments) > 0 {
		lines := layout.NewLineDetector().Detect(fragments, width, height)
		for _, line := range lines.Lines {
			if strings.TrimSpace(line.Text) == "" {
				continue
			}
			page.Blocks = append(page.Blocks, document.TextBlock{
				BBox: toTopLeft(line.BBox, height),
				Text: line.Text,
			})
		}
	}

	images, err := r.ExtractPageImages(p)
	if err != nil {
		warnings = append(warnings, fmt.Sprintf("Failed to extract images on page %d: %v", number, err))
		return page, warnings
	}

	// map iteration inside the reader; order by XObject name for stable output
	sort.SliceStable(images, func(i, j int) bool { return images[i].Name < images[j].Name })

	for i := range images {
		encoded, err := Encode(images[i])
		if err != nil {
			d.logger.Warn("Skipping image", "page", number, "image", images[i].Name, "error", err)
			warnings = append(warnings, fmt.Sprintf("Skipped image %s on page %d: %v", images[i].Name, number, err))
			continue
		}
		page.Images = append(page.Images, document.EmbeddedImage{
			Index:  i,
			Data:   encoded,
			BBox:   document.BoundingBox{X2: float64(images[i].Width), Y2: float64(images[i].Height)},
			Width:  images[i].Width,
			Height: images[i].Height,
		})
	}

	return page, warnings
}

// toTopLeft converts a bottom-left PDF box to x1,y1,x2,y2 with y growing down
func toTopLeft(b model.BBox, pageHeight float64) document.BoundingBox {
	return document.BoundingBox{
		X1: b.X,
		Y1: pageHeight - (b.Y + b.Height),
		X2: b.X + b.Width,
		Y2: pageHeight - b.Y,
	}
}
