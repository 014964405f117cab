// Package cropper resolves region metadata and a requested output size into a
// single crop rectangle.
//
// Resolution is a cascade of stages run in a fixed order. Each stage receives
// the State left by its predecessor and either continues with an updated
// State or commits a Decision; the first stage to commit wins.
package cropper

import (
	"errors"
	"fmt"

	"github.com/labstack/gommon/log"

	"github.com/menta2k/image-regions/pkg/geometry"
	"github.com/menta2k/image-regions/pkg/metadata"
	"github.com/menta2k/image-regions/pkg/types"
)

// Logger is the subset of a leveled logger the resolver writes to
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
}

// Input is one resolution request. A zero Width or Height means the caller
// did not constrain that axis.
type Input struct {
	Size     types.Size
	Metadata metadata.Store
	Width    int
	Height   int
}

// Resolver runs the crop decision cascade
type Resolver struct {
	logger Logger
	stages []stage
}

// New creates a Resolver logging through gommon
func New() *Resolver {
	return NewWithLogger(log.New("cropper"))
}

// NewWithLogger creates a Resolver with a custom logger
func NewWithLogger(logger Logger) *Resolver {
	return &Resolver{
		logger: logger,
		stages: defaultStages(),
	}
}

// Resolve runs the cascade for in. The only error it returns is a malformed
// numeric literal in the metadata (metadata.ErrMalformedNumber); every other
// problem degrades to a conservative decision.
func (r *Resolver) Resolve(in Input) (types.Decision, error) {
	if !in.Size.Valid() {
		return types.Decision{}, fmt.Errorf("invalid image size %v", in.Size)
	}

	res := &resolution{
		reader: metadata.NewReader(in.Metadata),
		logger: r.logger,
	}
	s := newState(in)

	for _, st := range r.stages {
		out, err := st.run(res, s)
		if err != nil {
			return types.Decision{}, fmt.Errorf("%s stage: %w", st.name, err)
		}
		if out.committed {
			return out.decision, nil
		}
		s = out.state
	}

	// The final-region stage always commits; a shortened cascade ends with
	// whatever its last stage left.
	return s.commit(stageEnd, s.ShouldCrop), nil
}

// resolution carries the per-call collaborators shared by the stages
type resolution struct {
	reader *metadata.Reader
	logger Logger
}

// rect loads node n and converts it to an absolute rectangle. The boolean is
// false when the node is absent, lacks one of the required attributes or
// holds an out-of-range value; the latter is recorded on s as an issue.
func (r *resolution) rect(n metadata.Node, required types.Attr, s *State) (types.Area, types.Rect, bool, error) {
	area, ok, err := r.reader.Area(n)
	if err != nil {
		return types.Area{}, types.Rect{}, false, err
	}
	if !ok {
		return types.Area{}, types.Rect{}, false, nil
	}
	if !area.Has(required) {
		r.logger.Debugf("%s is incomplete, skipping", n)
		return types.Area{}, types.Rect{}, false, nil
	}

	rect, err := geometry.ToRect(area, s.Size)
	if err != nil {
		r.skip(n.String(), err, s)
		return types.Area{}, types.Rect{}, false, nil
	}
	return area, rect, true, nil
}

// skip logs a downgraded area error and records authoring bugs on s
func (r *resolution) skip(what string, err error, s *State) {
	if errors.Is(err, geometry.ErrInvalidAreaValue) {
		r.logger.Warnf("%s ignored: %v", what, err)
		s.addIssue(fmt.Sprintf("%s: %v", what, err))
		return
	}
	r.logger.Debugf("%s ignored: %v", what, err)
}
