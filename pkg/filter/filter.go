// Package filter adapts the crop resolver to an image-serving request: it
// turns request parameters and client hints into resolver input and commits
// the decision back into host state.
package filter

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/gommon/log"

	"github.com/menta2k/image-regions/pkg/cropper"
	"github.com/menta2k/image-regions/pkg/metadata"
	"github.com/menta2k/image-regions/pkg/types"
)

// Client hint headers
const (
	HeaderDPR      = "Dpr"
	HeaderDownlink = "Downlink"
)

// Config bounds the display resolution factor
type Config struct {
	MinDPR      float64 `json:"min_dpr" yaml:"min_dpr"`
	MaxDPR      float64 `json:"max_dpr" yaml:"max_dpr"`
	MinDownlink float64 `json:"min_downlink" yaml:"min_downlink"` // Mbit/s
}

// DefaultConfig returns the standard bounds
func DefaultConfig() Config {
	return Config{
		MinDPR:      0.5,
		MaxDPR:      4.0,
		MinDownlink: 1.0,
	}
}

// Request is the host's view of one image request. Zero Width, Height or
// DPR mean the value was not given.
type Request struct {
	Width   int
	Height  int
	DPR     float64
	Headers http.Header
}

// Result is the committed outcome of one request
type Result struct {
	SourceSize types.Size `json:"source_size"`
	Crop       types.Crop `json:"crop"`
	ShouldCrop bool       `json:"should_crop"`
	FitIn      bool       `json:"fit_in"`
	Width      int        `json:"width"`
	Height     int        `json:"height"`
	DPR        float64    `json:"dpr"`
	Stage      string     `json:"stage"`
	Issues     []string   `json:"issues,omitempty"`
}

// OutputSize returns the pixel size to render: the target scaled by DPR
func (r Result) OutputSize() types.Size {
	return types.Size{
		Width:  int(math.Round(float64(r.Width) * r.DPR)),
		Height: int(math.Round(float64(r.Height) * r.DPR)),
	}
}

// Host is the mutable crop and sizing state of an image pipeline
type Host interface {
	SetCrop(c types.Crop)
	SetSize(width, height int)
	SetFitIn(fitIn bool)
}

// Commit writes r into h. The crop is only set when cropping applies.
func (r Result) Commit(h Host) {
	if r.ShouldCrop {
		h.SetCrop(r.Crop)
	}
	h.SetSize(r.Width, r.Height)
	if r.FitIn {
		h.SetFitIn(true)
	}
}

// Filter runs the resolver for host requests
type Filter struct {
	resolver *cropper.Resolver
	config   Config
	logger   cropper.Logger
}

// New creates a Filter with default bounds
func New() *Filter {
	return NewWithConfig(DefaultConfig(), log.New("filter"))
}

// NewWithConfig creates a Filter with custom bounds and logger
func NewWithConfig(cfg Config, logger cropper.Logger) *Filter {
	return &Filter{
		resolver: cropper.NewWithLogger(logger),
		config:   cfg,
		logger:   logger,
	}
}

// Run resolves the crop for an image of the given size and metadata
func (f *Filter) Run(size types.Size, store metadata.Store, req Request) (Result, error) {
	f.logger.Debugf("resolving %v for %dx%d", size, req.Width, req.Height)

	d, err := f.resolver.Resolve(cropper.Input{
		Size:     size,
		Metadata: store,
		Width:    req.Width,
		Height:   req.Height,
	})
	if err != nil {
		return Result{}, fmt.Errorf("failed to resolve crop: %w", err)
	}

	return Result{
		SourceSize: size,
		Crop:       d.Crop,
		ShouldCrop: d.ShouldCrop,
		FitIn:      d.FitIn,
		Width:      int(math.Round(d.Target.Width)),
		Height:     int(math.Round(d.Target.Height)),
		DPR:        f.DPR(req),
		Stage:      d.Stage,
		Issues:     d.Issues,
	}, nil
}

// DPR returns the display resolution factor for req. The Dpr header sets the
// base, an explicit value inside the configured bounds overrides it, and a
// slow Downlink caps the result at 1.
func (f *Filter) DPR(req Request) float64 {
	dpr := 1.0

	if v, ok := f.hint(req.Headers, HeaderDPR); ok && v > 0 {
		f.logger.Debugf("Dpr in header found, using %g", v)
		dpr = v
	}

	if req.DPR != 0 {
		if req.DPR >= f.config.MinDPR && req.DPR <= f.config.MaxDPR {
			dpr = req.DPR
		} else {
			f.logger.Debugf("illegal dpr value: %g", req.DPR)
		}
	}

	if v, ok := f.hint(req.Headers, HeaderDownlink); ok && v < f.config.MinDownlink {
		dpr = math.Min(dpr, 1.0)
	}
	return dpr
}

func (f *Filter) hint(h http.Header, name string) (float64, bool) {
	raw := strings.TrimSpace(h.Get(name))
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		f.logger.Debugf("ignoring unparsable %s hint %q", name, raw)
		return 0, false
	}
	return v, true
}
