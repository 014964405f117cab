package metadata

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/menta2k/image-regions/pkg/types"
)

// Reader exposes typed lookups of the region metadata held by a Store
type Reader struct {
	store Store
}

// NewReader wraps s. A nil store yields a reader whose metadata is never
// applicable.
func NewReader(s Store) *Reader {
	return &Reader{store: s}
}

// Store returns the underlying key/value store
func (r *Reader) Store() Store {
	return r.store
}

// AppliedToDimensions returns the image size the metadata was authored
// against.
func (r *Reader) AppliedToDimensions() (types.Size, error) {
	if _, ok := Scalar(r.store, keyAppliedToDimensions); !ok {
		return types.Size{}, fmt.Errorf("%s marker missing", NodeAppliedToDimensions)
	}
	w, err := r.dimension(keyDimensionWidth)
	if err != nil {
		return types.Size{}, err
	}
	h, err := r.dimension(keyDimensionHeight)
	if err != nil {
		return types.Size{}, err
	}
	return types.Size{Width: w, Height: h}, nil
}

// Applicable reports whether the metadata was authored against exactly
// size. It fails closed on any missing or malformed marker.
func (r *Reader) Applicable(size types.Size) bool {
	applied, err := r.AppliedToDimensions()
	if err != nil {
		return false
	}
	return applied == size
}

func (r *Reader) dimension(key string) (int, error) {
	raw, ok := Scalar(r.store, key)
	if !ok {
		return 0, fmt.Errorf("%s missing", key)
	}
	raw = strings.TrimSpace(raw)
	if n, err := strconv.Atoi(raw); err == nil {
		return n, nil
	}
	// Some writers store dimensions as reals ("640.0").
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f != math.Trunc(f) {
		return 0, fmt.Errorf("%w: %s = %q", ErrMalformedNumber, key, raw)
	}
	return int(f), nil
}

// CropPolicy returns the AllowedDerivates crop policy, if any
func (r *Reader) CropPolicy() (string, bool) {
	for _, key := range nodePaths[NodeAllowedCrop] {
		if v, ok := Scalar(r.store, key); ok {
			return strings.TrimSpace(v), true
		}
	}
	return "", false
}

// Interpolation returns the final-region selection mode; step when absent
func (r *Reader) Interpolation() types.Interpolation {
	v, _ := Scalar(r.store, NodeInterpolation.Path())
	return types.ParseInterpolation(strings.TrimSpace(v))
}

// Area returns the area or point stored for n. The boolean is false when the
// node is absent.
func (r *Reader) Area(n Node) (types.Area, bool, error) {
	switch n {
	case NodeCropArea, NodeSafeArea, NodePivotPoint:
		return AreaAt(r.store, n.Path())
	default:
		return types.Area{}, false, fmt.Errorf("%s is not an area node", n)
	}
}

// RecommendedFrames returns the recommended frames in authored order
func (r *Reader) RecommendedFrames() ([]types.Area, error) {
	return AreasAt(r.store, NodeRecommendedFrames.Path())
}
