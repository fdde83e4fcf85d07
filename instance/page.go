package instance

import (
	"fmt"

	bundles "github.com/jhosm/ProductBundles-sub000"
)

// MaxPageSize is the largest permitted page size.
const MaxPageSize = 1000

// PageRequest identifies one page of a bundle's instances.
// Number is 1-based; Size must be in [1, MaxPageSize].
type PageRequest struct {
	Number int `json:"page_number"`
	Size   int `json:"page_size"`
}

// Validate rejects page requests outside the permitted bounds.
func (r PageRequest) Validate() error {
	if r.Number < 1 {
		return fmt.Errorf("%w: page number %d must be >= 1", bundles.ErrInvalidPage, r.Number)
	}
	if r.Size < 1 || r.Size > MaxPageSize {
		return fmt.Errorf("%w: page size %d outside [1, %d]", bundles.ErrInvalidPage, r.Size, MaxPageSize)
	}
	return nil
}

// Skip returns the number of items preceding this page.
func (r PageRequest) Skip() int {
	return (r.Number - 1) * r.Size
}

// Page is one page of instances. Pages over a full scan are disjoint and
// their union equals the complete instance set for the filter at a given
// point in time; no invariant holds across concurrent mutation.
type Page struct {
	Items       []*Instance `json:"items"`
	Number      int         `json:"page_number"`
	Size        int         `json:"page_size"`
	HasPrevious bool        `json:"has_previous_page"`
}

// NewPage builds a Page for the given request.
func NewPage(items []*Instance, req PageRequest) *Page {
	return &Page{
		Items:       items,
		Number:      req.Number,
		Size:        req.Size,
		HasPrevious: req.Number > 1,
	}
}
