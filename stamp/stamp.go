// Package stamp places provenance QR images onto PDF pages.
package stamp

import (
	"math"

	"github.com/georgepadayatti/pdfseal/errs"
	"github.com/georgepadayatti/pdfseal/provenance"
)

// Default placement, in PDF user space units.
const (
	DefaultX      = 50
	DefaultY      = 50
	DefaultWidth  = 100
	DefaultHeight = 100
)

// Placement is the box the image is drawn into. Page is 1-based and the
// origin is the lower-left corner of the page.
type Placement struct {
	Page   int
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// DefaultPlacement returns the placement used when the caller gives none.
func DefaultPlacement() Placement {
	return Placement{Page: 1, X: DefaultX, Y: DefaultY, Width: DefaultWidth, Height: DefaultHeight}
}

// Validate checks the box dimensions. The page index is checked against
// the document in Apply.
func (p Placement) Validate() error {
	for _, v := range []float64{p.X, p.Y, p.Width, p.Height} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errs.Wrapf(errs.ErrInvalidPlacement, "stamp", "coordinates must be finite, got (%g, %g) %gx%g", p.X, p.Y, p.Width, p.Height)
		}
	}
	if p.Width <= 0 || p.Height <= 0 {
		return errs.Wrapf(errs.ErrInvalidPlacement, "stamp", "width and height must be positive, got %gx%g", p.Width, p.Height)
	}
	return nil
}

// Request describes one stamp.
type Request struct {
	// PNG is the image to draw, normally the rendered QR code.
	PNG       []byte
	Marker    provenance.Marker
	Placement Placement
}
