// Package imageregions resolves art-direction crops from the region metadata
// (RMD) embedded in images.
//
// An image carries normalized regions in its XMP packet: an allowed crop
// area, a safe area that must stay visible, a pivot point and a list of
// recommended frames. Given a requested output size, the resolver walks
// those regions in a fixed order and commits one crop rectangle in source
// pixels.
//
// Basic usage:
//
//	package main
//
//	import (
//		"fmt"
//		"log"
//
//		imageregions "github.com/menta2k/image-regions"
//		"github.com/menta2k/image-regions/pkg/filter"
//	)
//
//	func main() {
//		ir := imageregions.New()
//
//		res, err := ir.ResolveFile("monks.jpg", filter.Request{Width: 380, Height: 380})
//		if err != nil {
//			log.Fatal(err)
//		}
//		fmt.Printf("crop %+v from stage %s\n", res.Crop, res.Stage)
//	}
//
// The package consists of these components:
//
//  1. Metadata (pkg/metadata, pkg/xmp): typed access to the flattened XMP keys
//  2. Geometry (pkg/geometry): normalized areas to pixel rectangles
//  3. Cropper (pkg/cropper): the staged crop resolver
//  4. Filter (pkg/filter): request sizes, DPR and client hints
//  5. Processing (pkg/processing): crop, resize and encode pixels
package imageregions

import (
	"bytes"
	"fmt"
	"image"
	"path/filepath"

	"github.com/menta2k/image-regions/internal/utils"
	"github.com/menta2k/image-regions/pkg/analyzer"
	"github.com/menta2k/image-regions/pkg/cropper"
	"github.com/menta2k/image-regions/pkg/filter"
	"github.com/menta2k/image-regions/pkg/geometry"
	"github.com/menta2k/image-regions/pkg/metadata"
	"github.com/menta2k/image-regions/pkg/processing"
	"github.com/menta2k/image-regions/pkg/types"
)

// Version of the image regions library
const Version = "1.0.0"

// ImageRegions provides a high-level interface for resolving and rendering
// metadata-driven crops
type ImageRegions struct {
	analyzer  *analyzer.ImageAnalyzer
	filter    *filter.Filter
	processor *processing.Processor
}

// New creates a new ImageRegions with default configuration
func New() *ImageRegions {
	return &ImageRegions{
		analyzer:  analyzer.New(),
		filter:    filter.New(),
		processor: processing.NewProcessor(),
	}
}

// NewWithConfig creates a new ImageRegions with custom configuration
func NewWithConfig(analyzerConfig analyzer.Config, filterConfig filter.Config, logger cropper.Logger) *ImageRegions {
	return &ImageRegions{
		analyzer:  analyzer.NewWithConfig(analyzerConfig),
		filter:    filter.NewWithConfig(filterConfig, logger),
		processor: processing.NewProcessor(),
	}
}

// Rendition is one processed output of ProcessImageFile
type Rendition struct {
	Path        string        `json:"path"`
	OverlayPath string        `json:"overlay_path,omitempty"`
	Result      filter.Result `json:"result"`
}

// Fetch returns the encoded bytes of a file path or an http(s) URL
func (ir *ImageRegions) Fetch(source string) ([]byte, error) {
	return ir.processor.Fetch(source)
}

// Inspect returns the size and metadata of an encoded image
func (ir *ImageRegions) Inspect(data []byte) (analyzer.ImageInfo, error) {
	return ir.analyzer.Inspect(data)
}

// InspectFile returns the size and metadata of an image file
func (ir *ImageRegions) InspectFile(path string) (analyzer.ImageInfo, error) {
	return ir.analyzer.InspectFile(path)
}

// Resolve computes the crop decision for an encoded image
func (ir *ImageRegions) Resolve(data []byte, req filter.Request) (filter.Result, error) {
	info, err := ir.analyzer.Inspect(data)
	if err != nil {
		return filter.Result{}, err
	}
	return ir.filter.Run(info.Size, info.Metadata, req)
}

// ResolveFile computes the crop decision for an image file
func (ir *ImageRegions) ResolveFile(path string, req filter.Request) (filter.Result, error) {
	info, err := ir.analyzer.InspectFile(path)
	if err != nil {
		return filter.Result{}, err
	}
	return ir.filter.Run(info.Size, info.Metadata, req)
}

// Render decodes data and applies res to it
func (ir *ImageRegions) Render(data []byte, res filter.Result) (image.Image, error) {
	img, err := ir.processor.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return ir.processor.Apply(img, res)
}

// Overlay draws res together with the safe area and pivot declared in the
// metadata of data. Regions are only drawn when the metadata applies to the
// image.
func (ir *ImageRegions) Overlay(data []byte, res filter.Result) (image.Image, error) {
	img, err := ir.processor.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	info, err := ir.analyzer.Inspect(data)
	if err != nil {
		return nil, err
	}
	return ir.processor.CreateDebugOverlay(img, overlayFor(info, res)), nil
}

func overlayFor(info analyzer.ImageInfo, res filter.Result) processing.Overlay {
	o := processing.Overlay{
		Crop:  res.Crop,
		Pivot: types.FullRect(info.Size).Center(),
	}
	if !res.ShouldCrop {
		o.Crop = types.FullRect(info.Size).Round()
	}

	r := metadata.NewReader(info.Metadata)
	if !r.Applicable(info.Size) {
		return o
	}

	if area, ok, err := r.Area(metadata.NodeSafeArea); err == nil && ok {
		if rect, err := geometry.ToRect(area, info.Size); err == nil {
			o.Safe, o.HasSafe = rect, true
			o.Pivot = rect.Center()
		}
	}
	if area, ok, err := r.Area(metadata.NodePivotPoint); err == nil && ok && area.Has(types.AttrPoint) {
		if p, err := geometry.ToPoint(area, info.Size); err == nil {
			o.Pivot = p
		}
	}
	return o
}

// ProcessImageFile resolves and renders inputPath once per target size and
// writes the results to opts.OutputDir. inputPath may be an http(s) URL.
func (ir *ImageRegions) ProcessImageFile(inputPath string, opts types.OutputOptions) ([]Rendition, error) {
	data, err := ir.processor.Fetch(inputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load image: %w", err)
	}
	info, err := ir.analyzer.Inspect(data)
	if err != nil {
		return nil, fmt.Errorf("image validation failed: %w", err)
	}
	img, err := ir.processor.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	if err := utils.EnsureDir(opts.OutputDir); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	format := opts.Format
	if format == "" {
		format = "jpg"
	}
	if opts.Quality == 0 {
		opts.Quality = 85
	}

	var out []Rendition
	for _, sz := range opts.TargetSizes {
		req := filter.Request{Width: sz[0], Height: sz[1], DPR: opts.DPR}
		res, err := ir.filter.Run(info.Size, info.Metadata, req)
		if err != nil {
			return out, fmt.Errorf("failed to resolve %dx%d: %w", sz[0], sz[1], err)
		}

		rendered, err := ir.processor.Apply(img, res)
		if err != nil {
			return out, fmt.Errorf("failed to render %dx%d: %w", sz[0], sz[1], err)
		}
		path := utils.GenerateOutputFilename(inputPath, opts.OutputDir, opts.Prefix, opts.Suffix, format, sz[0], sz[1])
		if err := ir.processor.SaveImage(rendered, path, format, opts.Quality, opts.Lossless); err != nil {
			return out, fmt.Errorf("failed to save crop %s: %w", filepath.Base(path), err)
		}

		r := Rendition{Path: path, Result: res}
		if opts.DebugOverlay {
			dbg := ir.processor.CreateDebugOverlay(img, overlayFor(info, res))
			r.OverlayPath = utils.GenerateOutputFilename(inputPath, opts.OutputDir, opts.Prefix, opts.Suffix+"_debug", "png", sz[0], sz[1])
			if err := ir.processor.SaveImage(dbg, r.OverlayPath, "png", opts.Quality, false); err != nil {
				return out, fmt.Errorf("failed to save overlay %s: %w", filepath.Base(r.OverlayPath), err)
			}
		}
		out = append(out, r)
	}

	return out, nil
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}

// Encode serializes img as jpg, png or webp
func (ir *ImageRegions) Encode(img image.Image, format string, quality int, lossless bool) ([]byte, error) {
	var buf bytes.Buffer
	if err := ir.processor.Encode(&buf, img, format, quality, lossless); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
