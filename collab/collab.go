// Package collab declares the capabilities the pipeline consumes from the
// browser. The browser package implements them with go-rod; tests use
// in-memory fakes.
package collab

import (
	"context"
	"time"
)

// Element is one entry of the rendered list.
type Element struct {
	Href string
}

// Region is the text content of a named page region.
type Region struct {
	Text     string // newline-separated visible text
	HTML     string // outer HTML of the region (or body on fallback)
	Fallback bool   // true when the region was absent and the whole document was used
}

// Lister lists the elements currently matching a selector in the watched list.
type Lister interface {
	ListElements(ctx context.Context, selector string) ([]Element, error)
}

// Page is an opened detail page.
type Page interface {
	// Region returns the text of the region matching selector, or of the
	// whole document when the region is absent and fallbackWhole is set.
	Region(ctx context.Context, selector string, fallbackWhole bool) (Region, error)
	// WaitPopupDismissed waits up to timeout for the popup to be closed.
	// It returns false when the popup could not be dismissed in time.
	WaitPopupDismissed(ctx context.Context, timeout time.Duration) bool
	Close() error
}

// Opener opens detail pages.
type Opener interface {
	OpenPage(ctx context.Context, url string) (Page, error)
}
