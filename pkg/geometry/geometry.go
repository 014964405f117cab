// Package geometry converts normalized region descriptors into source-pixel
// coordinates.
//
// Areas are described by their center and size relative to the image, so a
// rectangle expands symmetrically around its center:
//
//	x0 = (x - w/2) * W    x1 = (x + w/2) * W
//	y0 = (y - h/2) * H    y1 = (y + h/2) * H
//
// Every normalized value must lie in the closed interval [0,1]. Values outside
// that range are reported as ErrInvalidAreaValue and never clamped. A box
// with a zero width or height is reported the same way.
package geometry

import (
	"errors"
	"fmt"
	"math"

	"github.com/menta2k/image-regions/pkg/types"
)

var (
	// ErrInvalidAreaValue is returned for a coordinate or size outside [0,1]
	// and for a box of zero width or height.
	ErrInvalidAreaValue = errors.New("invalid area value")

	// ErrIncompleteArea is returned when a node lacks an attribute the
	// conversion needs (x and y for points, x, y, w and h for boxes).
	ErrIncompleteArea = errors.New("incomplete area")
)

// ToRect converts a normalized box into an absolute rectangle
func ToRect(a types.Area, size types.Size) (types.Rect, error) {
	if !a.Has(types.AttrBox) {
		return types.Rect{}, fmt.Errorf("%w: box needs x, y, w and h", ErrIncompleteArea)
	}
	if err := checkUnit(a.X, a.Y, a.W, a.H); err != nil {
		return types.Rect{}, err
	}
	if a.W == 0 || a.H == 0 {
		return types.Rect{}, fmt.Errorf("%w: empty box %gx%g", ErrInvalidAreaValue, a.W, a.H)
	}

	width, height := float64(size.Width), float64(size.Height)
	return types.Rect{
		X0: (a.X - a.W/2) * width,
		Y0: (a.Y - a.H/2) * height,
		X1: (a.X + a.W/2) * width,
		Y1: (a.Y + a.H/2) * height,
	}, nil
}

// ToPoint converts a normalized point into absolute coordinates
func ToPoint(a types.Area, size types.Size) (types.Point, error) {
	if !a.Has(types.AttrPoint) {
		return types.Point{}, fmt.Errorf("%w: point needs x and y", ErrIncompleteArea)
	}
	if err := checkUnit(a.X, a.Y); err != nil {
		return types.Point{}, err
	}
	return types.Point{
		X: a.X * float64(size.Width),
		Y: a.Y * float64(size.Height),
	}, nil
}

// FromRect is the inverse of ToRect: it returns the normalized center/size
// box of r. Bounds such as MinWidth are not recoverable and stay unset.
func FromRect(r types.Rect, size types.Size) types.Area {
	width, height := float64(size.Width), float64(size.Height)
	c := r.Center()
	return types.Area{
		X:       c.X / width,
		Y:       c.Y / height,
		W:       r.Width() / width,
		H:       r.Height() / height,
		Present: types.AttrBox,
	}
}

// FromPoint is the inverse of ToPoint
func FromPoint(p types.Point, size types.Size) types.Area {
	return types.Area{
		X:       p.X / float64(size.Width),
		Y:       p.Y / float64(size.Height),
		Present: types.AttrPoint,
	}
}

func checkUnit(values ...float64) error {
	for _, v := range values {
		if math.IsNaN(v) || v < 0 || v > 1 {
			return fmt.Errorf("%w: %g is outside [0,1]", ErrInvalidAreaValue, v)
		}
	}
	return nil
}
