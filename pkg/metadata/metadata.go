// Package metadata reads region metadata (RMD) nodes from an opaque
// key/value store.
//
// Raw exiv2-style paths are only handled here. Callers address nodes through
// the typed Node enum and receive parsed values (types.Area, types.Size,
// strings), so no other package manipulates path strings.
package metadata

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/menta2k/image-regions/pkg/types"
)

// ErrMalformedNumber is returned when a node that must hold a number holds
// text that cannot be parsed as one.
var ErrMalformedNumber = errors.New("malformed numeric literal")

// Node identifies a known region metadata node
type Node int

const (
	NodeAppliedToDimensions Node = iota
	NodeAllowedCrop
	NodeCropArea
	NodeSafeArea
	NodePivotPoint
	NodeRecommendedFrames
	NodeInterpolation
)

const (
	keyAppliedToDimensions = "Xmp.rmd.AppliedToDimensions"
	keyDimensionWidth      = keyAppliedToDimensions + "/stDim:w"
	keyDimensionHeight     = keyAppliedToDimensions + "/stDim:h"
)

var nodeNames = map[Node]string{
	NodeAppliedToDimensions: "AppliedToDimensions",
	NodeAllowedCrop:         "AllowedDerivates.Crop",
	NodeCropArea:            "CropArea",
	NodeSafeArea:            "SafeArea",
	NodePivotPoint:          "PivotPoint",
	NodeRecommendedFrames:   "RecommendedFrames",
	NodeInterpolation:       "Interpolation",
}

// nodePaths lists the store keys of each node, preferred spelling first.
var nodePaths = map[Node][]string{
	NodeAppliedToDimensions: {keyAppliedToDimensions},
	NodeAllowedCrop:         {"Xmp.rmd.AllowedDerivates/rmd:Crop", "Xmp.rmd.AllowedDerivatives/rmd:Crop"},
	NodeCropArea:            {"Xmp.rmd.CropArea"},
	NodeSafeArea:            {"Xmp.rmd.SafeArea"},
	NodePivotPoint:          {"Xmp.rmd.PivotPoint"},
	NodeRecommendedFrames:   {"Xmp.rmd.RecommendedFrames"},
	NodeInterpolation:       {"Xmp.rmd.Interpolation"},
}

func (n Node) String() string {
	if name, ok := nodeNames[n]; ok {
		return name
	}
	return fmt.Sprintf("Node(%d)", int(n))
}

// Path returns the preferred store key of the node
func (n Node) Path() string {
	return nodePaths[n][0]
}

// attributes maps the local names an area node may carry to their bit.
// Anything else (units, vendor fields) is ignored.
var attributes = map[string]types.Attr{
	"x":              types.AttrX,
	"y":              types.AttrY,
	"w":              types.AttrW,
	"h":              types.AttrH,
	"MinWidth":       types.AttrMinWidth,
	"MaxWidth":       types.AttrMaxWidth,
	"MinAspectRatio": types.AttrMinAspectRatio,
	"MaxAspectRatio": types.AttrMaxAspectRatio,
}

// Scalar returns the literal value stored under key
func Scalar(s Store, key string) (string, bool) {
	if s == nil || !s.Has(key) {
		return "", false
	}
	return s.Value(key)
}

// AreaAt collects the attributes of the area node stored under key. The
// boolean is false when the node itself is absent. Children are the keys
// key + "/" + attribute; the attribute's local name is the text after its
// last namespace separator.
func AreaAt(s Store, key string) (types.Area, bool, error) {
	if s == nil || !s.Has(key) {
		return types.Area{}, false, nil
	}

	var area types.Area
	prefix := key + "/"
	for _, k := range s.Keys() {
		if !strings.HasPrefix(k, prefix) || len(k) <= len(prefix) {
			continue
		}
		rest := k[len(prefix):]
		if strings.ContainsAny(rest, "/[") {
			continue
		}
		bit, ok := attributes[localName(rest)]
		if !ok {
			continue
		}
		raw, _ := s.Value(k)
		v, err := parseNumber(k, raw)
		if err != nil {
			return types.Area{}, true, err
		}
		area.Present |= bit
		setAttr(&area, bit, v)
	}
	return area, true, nil
}

// AreasAt probes key[1], key[2], ... and returns the areas in index order,
// stopping at the first missing index.
func AreasAt(s Store, key string) ([]types.Area, error) {
	var areas []types.Area
	for i := 1; ; i++ {
		a, ok, err := AreaAt(s, fmt.Sprintf("%s[%d]", key, i))
		if err != nil {
			return nil, err
		}
		if !ok {
			return areas, nil
		}
		areas = append(areas, a)
	}
}

func localName(attr string) string {
	if i := strings.LastIndex(attr, ":"); i >= 0 {
		return attr[i+1:]
	}
	return attr
}

func parseNumber(key, raw string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %s = %q", ErrMalformedNumber, key, raw)
	}
	return v, nil
}

func setAttr(a *types.Area, bit types.Attr, v float64) {
	switch bit {
	case types.AttrX:
		a.X = v
	case types.AttrY:
		a.Y = v
	case types.AttrW:
		a.W = v
	case types.AttrH:
		a.H = v
	case types.AttrMinWidth:
		a.MinWidth = v
	case types.AttrMaxWidth:
		a.MaxWidth = v
	case types.AttrMinAspectRatio:
		a.MinAspectRatio = v
	case types.AttrMaxAspectRatio:
		a.MaxAspectRatio = v
	}
}
