package internal

import (
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Margins cuts running headers and footers off PDF pages. Top and Bottom
// are in points (1 pt = 1/72 inch); zero keeps the whole page.
type Margins struct {
	Top    float64
	Bottom float64
}

func (m Margins) band(pageHeight float64) band {
	if pageHeight <= 0 || (m.Top <= 0 && m.Bottom <= 0) {
		return band{all: true}
	}
	return band{low: m.Bottom, high: pageHeight - m.Top}
}

// band is the vertical range of a page whose text is kept.
type band struct {
	all       bool
	low, high float64
}

func (b band) contains(y float64) bool {
	return b.all || (y >= b.low && y <= b.high)
}

func pageHeights(ctx *model.Context) ([]float64, error) {
	dims, err := ctx.PageDims()
	if err != nil {
		return nil, fmt.Errorf("page dimensions: %w", err)
	}
	heights := make([]float64, len(dims))
	for i, d := range dims {
		heights[i] = d.Height
	}
	return heights, nil
}
