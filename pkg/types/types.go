package types

import (
	"fmt"
	"image"
	"math"
)

// Size is a pixel extent of an image
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Aspect returns width / height
func (s Size) Aspect() float64 {
	return float64(s.Width) / float64(s.Height)
}

// Valid reports whether both sides are positive
func (s Size) Valid() bool {
	return s.Width > 0 && s.Height > 0
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// Attr is a bit set of the attributes present on an Area node
type Attr uint8

const (
	AttrX Attr = 1 << iota
	AttrY
	AttrW
	AttrH
	AttrMinWidth
	AttrMaxWidth
	AttrMinAspectRatio
	AttrMaxAspectRatio
)

// AttrPoint and AttrBox are the attribute sets of a complete point and box.
const (
	AttrPoint = AttrX | AttrY
	AttrBox   = AttrX | AttrY | AttrW | AttrH
)

// Area represents a normalized region: center (X,Y) and size (W,H), all in
// [0,1] relative to the image. A node without W is a point.
type Area struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w,omitempty"`
	H float64 `json:"h,omitempty"`

	MinWidth       float64 `json:"min_width,omitempty"`
	MaxWidth       float64 `json:"max_width,omitempty"`
	MinAspectRatio float64 `json:"min_aspect_ratio,omitempty"`
	MaxAspectRatio float64 `json:"max_aspect_ratio,omitempty"`

	Present Attr `json:"-"`
}

// Has reports whether every attribute in attrs is present
func (a Area) Has(attrs Attr) bool {
	return a.Present&attrs == attrs
}

// IsPoint reports whether the node carries no width and therefore is a point
func (a Area) IsPoint() bool {
	return a.Present&AttrW == 0
}

// Aspect returns the normalized w/h ratio of the node
func (a Area) Aspect() float64 {
	return a.W / a.H
}

// Point is a position in source-pixel coordinates
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Rect is a rectangle in source-pixel float coordinates
type Rect struct {
	X0 float64 `json:"x0"`
	Y0 float64 `json:"y0"`
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
}

// FullRect returns the rectangle covering the whole image
func FullRect(size Size) Rect {
	return Rect{X1: float64(size.Width), Y1: float64(size.Height)}
}

// Width returns the horizontal extent
func (r Rect) Width() float64 { return r.X1 - r.X0 }

// Height returns the vertical extent
func (r Rect) Height() float64 { return r.Y1 - r.Y0 }

// Aspect returns width / height
func (r Rect) Aspect() float64 { return r.Width() / r.Height() }

// Center returns the middle of the rectangle
func (r Rect) Center() Point {
	return Point{X: (r.X0 + r.X1) / 2, Y: (r.Y0 + r.Y1) / 2}
}

// Contains reports whether o lies completely inside r
func (r Rect) Contains(o Rect) bool {
	return r.X0 <= o.X0 && r.Y0 <= o.Y0 && r.X1 >= o.X1 && r.Y1 >= o.Y1
}

// Round snaps every edge to the nearest pixel, halves away from zero.
// A rectangle that would collapse keeps a width or height of one pixel.
func (r Rect) Round() Crop {
	c := Crop{
		Left:   int(math.Round(r.X0)),
		Top:    int(math.Round(r.Y0)),
		Right:  int(math.Round(r.X1)),
		Bottom: int(math.Round(r.Y1)),
	}
	if c.Right <= c.Left {
		c.Right = c.Left + 1
	}
	if c.Bottom <= c.Top {
		c.Bottom = c.Top + 1
	}
	return c
}

func (r Rect) String() string {
	return fmt.Sprintf("(%.2f,%.2f)-(%.2f,%.2f)", r.X0, r.Y0, r.X1, r.Y1)
}

// Crop is a rectangle with integer pixel edges
type Crop struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
}

// Width returns Right - Left
func (c Crop) Width() int { return c.Right - c.Left }

// Height returns Bottom - Top
func (c Crop) Height() int { return c.Bottom - c.Top }

// Rectangle converts the crop to an image.Rectangle
func (c Crop) Rectangle() image.Rectangle {
	return image.Rect(c.Left, c.Top, c.Right, c.Bottom)
}

// Interpolation selects how the final region is chosen once the safe area
// no longer constrains the crop.
type Interpolation string

const (
	InterpolationStep   Interpolation = "step"
	InterpolationLinear Interpolation = "linear"
)

// ParseInterpolation maps a metadata value to an Interpolation; anything
// other than "linear" means step.
func ParseInterpolation(s string) Interpolation {
	if s == string(InterpolationLinear) {
		return InterpolationLinear
	}
	return InterpolationStep
}

// TargetSize is the requested output size in device-independent pixels
type TargetSize struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Aspect returns width / height. A target without a usable height is
// treated as one pixel tall.
func (t TargetSize) Aspect() float64 {
	if !(t.Height > 0) {
		return t.Width
	}
	return t.Width / t.Height
}

// Decision is the outcome of one crop resolution
type Decision struct {
	Crop       Crop       `json:"crop"`
	Rect       Rect       `json:"rect"`
	ShouldCrop bool       `json:"should_crop"`
	FitIn      bool       `json:"fit_in"`
	Target     TargetSize `json:"target"`
	Stage      string     `json:"stage"`
	Issues     []string   `json:"issues,omitempty"`
}

// OutputOptions controls how processed images are written
type OutputOptions struct {
	OutputDir    string
	Prefix       string
	Suffix       string
	Format       string
	Quality      int
	Lossless     bool
	TargetSizes  [][2]int
	DPR          float64
	DebugOverlay bool
}
