// Package metadatatest provides in-memory metadata stores of the reference
// images used across the test suites.
package metadatatest

import (
	"fmt"
	"strconv"

	"github.com/menta2k/image-regions/pkg/metadata"
)

// Box is a normalized area with optional bounds; zero bounds are omitted.
type Box struct {
	X, Y, W, H     float64
	MinWidth       float64
	MaxWidth       float64
	MinAspectRatio float64
	MaxAspectRatio float64
}

// Builder assembles a metadata.MapStore using exiv2-style keys
type Builder struct {
	m metadata.MapStore
}

// NewBuilder starts an empty store
func NewBuilder() *Builder {
	return &Builder{m: metadata.MapStore{}}
}

// Dimensions sets AppliedToDimensions
func (b *Builder) Dimensions(w, h int) *Builder {
	b.m["Xmp.rmd.AppliedToDimensions"] = "type=Struct"
	b.m["Xmp.rmd.AppliedToDimensions/stDim:w"] = strconv.Itoa(w)
	b.m["Xmp.rmd.AppliedToDimensions/stDim:h"] = strconv.Itoa(h)
	b.m["Xmp.rmd.AppliedToDimensions/stDim:unit"] = "pixel"
	return b
}

// CropPolicy sets AllowedDerivates/rmd:Crop
func (b *Builder) CropPolicy(policy string) *Builder {
	b.m["Xmp.rmd.AllowedDerivates"] = "type=Struct"
	b.m["Xmp.rmd.AllowedDerivates/rmd:Crop"] = policy
	return b
}

// Interpolation sets the final-region selection mode
func (b *Builder) Interpolation(mode string) *Builder {
	b.m["Xmp.rmd.Interpolation"] = mode
	return b
}

// CropArea sets the crop area node
func (b *Builder) CropArea(box Box) *Builder {
	b.area("Xmp.rmd.CropArea", box)
	return b
}

// SafeArea sets the safe area node
func (b *Builder) SafeArea(box Box) *Builder {
	b.area("Xmp.rmd.SafeArea", box)
	return b
}

// Pivot sets the pivot point node
func (b *Builder) Pivot(x, y float64) *Builder {
	b.m["Xmp.rmd.PivotPoint"] = "type=Struct"
	b.m["Xmp.rmd.PivotPoint/stArea:x"] = format(x)
	b.m["Xmp.rmd.PivotPoint/stArea:y"] = format(y)
	return b
}

// EmptyPivot adds a pivot node without coordinates
func (b *Builder) EmptyPivot() *Builder {
	b.m["Xmp.rmd.PivotPoint"] = "type=Struct"
	return b
}

// Frame appends a recommended frame
func (b *Builder) Frame(box Box) *Builder {
	b.m["Xmp.rmd.RecommendedFrames"] = "type=Seq"
	n := 1
	for b.m.Has(fmt.Sprintf("Xmp.rmd.RecommendedFrames[%d]", n)) {
		n++
	}
	b.area(fmt.Sprintf("Xmp.rmd.RecommendedFrames[%d]", n), box)
	return b
}

// Set stores a raw key
func (b *Builder) Set(key, value string) *Builder {
	b.m[key] = value
	return b
}

// Delete removes a raw key
func (b *Builder) Delete(key string) *Builder {
	delete(b.m, key)
	return b
}

// Store returns a copy of the assembled store
func (b *Builder) Store() metadata.MapStore {
	out := make(metadata.MapStore, len(b.m))
	out.Merge(b.m)
	return out
}

func (b *Builder) area(key string, box Box) {
	b.m[key] = "type=Struct"
	b.m[key+"/stArea:x"] = format(box.X)
	b.m[key+"/stArea:y"] = format(box.Y)
	b.m[key+"/stArea:w"] = format(box.W)
	b.m[key+"/stArea:h"] = format(box.H)
	b.m[key+"/stArea:unit"] = "normalized"
	bounds := []struct {
		name string
		v    float64
	}{
		{"MinWidth", box.MinWidth},
		{"MaxWidth", box.MaxWidth},
		{"MinAspectRatio", box.MinAspectRatio},
		{"MaxAspectRatio", box.MaxAspectRatio},
	}
	for _, bound := range bounds {
		if bound.v != 0 {
			b.m[key+"/rmd:"+bound.name] = format(bound.v)
		}
	}
}

func format(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// RegionsBuilder returns the 640x640 "regions" image metadata: a centered
// crop area, a centered safe area, one square full-frame recommendation and a
// centered pivot. Crop policy "all", linear interpolation.
func RegionsBuilder() *Builder {
	return NewBuilder().
		Dimensions(640, 640).
		CropPolicy("all").
		Interpolation("linear").
		CropArea(Box{X: 0.5, Y: 0.5, W: 1, H: 0.75, MinWidth: 480}).
		SafeArea(Box{X: 0.5, Y: 0.5, W: 0.46875, H: 0.3125, MaxWidth: 300}).
		Frame(Box{X: 0.5, Y: 0.5, W: 1, H: 1, MinAspectRatio: 1, MaxAspectRatio: 1}).
		Pivot(0.5, 0.5)
}

// Regions is RegionsBuilder().Store()
func Regions() metadata.MapStore {
	return RegionsBuilder().Store()
}

// Regions2Builder is the "regions" metadata with the safe area and the pivot
// moved up and to the left.
func Regions2Builder() *Builder {
	return NewBuilder().
		Dimensions(640, 640).
		CropPolicy("all").
		Interpolation("linear").
		CropArea(Box{X: 0.5, Y: 0.5, W: 1, H: 0.75, MinWidth: 480}).
		SafeArea(Box{X: 0.46875, Y: 0.46875, W: 0.46875, H: 0.3125, MaxWidth: 300}).
		Frame(Box{X: 0.5, Y: 0.5, W: 1, H: 1, MinAspectRatio: 1, MaxAspectRatio: 1}).
		Pivot(0.34375, 0.34375)
}

// Regions2 is Regions2Builder().Store()
func Regions2() metadata.MapStore {
	return Regions2Builder().Store()
}

// MonksBuilder returns the 1200x900 "monks" photo metadata: off-center crop
// and safe areas, two recommended frames and an empty pivot node. No crop
// policy, step interpolation.
func MonksBuilder() *Builder {
	return NewBuilder().
		Dimensions(1200, 900).
		CropArea(Box{X: 0.5181107954545454, Y: 0.5274621212121212, W: 0.9026988636363636, H: 0.8011363636363636, MinWidth: 400}).
		SafeArea(Box{X: 0.4776278409090909, Y: 0.5821496212121212, W: 0.5987215909090909, H: 0.556344696969697, MaxWidth: 320}).
		Frame(Box{X: 0.4557883522727273, Y: 0.5243844696969697, W: 0.7120028409090909, H: 0.9512310606060606, MinAspectRatio: 1, MaxAspectRatio: 1}).
		Frame(Box{X: 0.4362571022727273, Y: 0.5712594696969697, W: 0.71484375, H: 0.6283143939393939, MinWidth: 340, MaxWidth: 360}).
		EmptyPivot()
}

// Monks is MonksBuilder().Store()
func Monks() metadata.MapStore {
	return MonksBuilder().Store()
}
