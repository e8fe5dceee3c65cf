package pdfdoc

import (
	"bytes"
	"context"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PageCount reads the page count without decomposing. pdfcpu is tried first
// in relaxed validation mode; documents it rejects fall back to the page tree
// read by tabula.
func (d *Decomposer) PageCount(ctx context.Context, data []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	n, err := countWithPDFCPU(data)
	if err == nil {
		return n, nil
	}
	d.logger.Debug("pdfcpu page count failed, reading page tree", "error", err)

	r, cleanup, openErr := d.open(data)
	if openErr != nil {
		return 0, fmt.Errorf("failed to count pages: %w", openErr)
	}
	defer cleanup()

	n, err = r.PageCount()
	if err != nil {
		return 0, fmt.Errorf("failed to count pages: %w", err)
	}
	return n, nil
}

func countWithPDFCPU(data []byte) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdfcpu panic: %v", r)
		}
	}()

	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	return api.PageCount(bytes.NewReader(data), cfg)
}
