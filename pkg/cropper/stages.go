package cropper

import (
	"math"
	"sort"

	"github.com/menta2k/image-regions/pkg/geometry"
	"github.com/menta2k/image-regions/pkg/metadata"
	"github.com/menta2k/image-regions/pkg/types"
)

// Crop policies accepted by the policy gate
const (
	PolicyVisibilityOnly = "visibilityOnly"
	PolicyAll            = "all"
)

// Stage names as reported on Decision.Stage
const (
	StageApplicability = "applicability"
	StagePivot         = "pivot"
	StageCropArea      = "crop-area"
	StagePolicy        = "policy"
	StageSafeArea      = "safe-area"
	StageFinalRegion   = "final-region"
	StageLinear        = "linear"
	StageStep          = "step"

	stageEnd = "end"
)

type stageFunc func(r *resolution, s State) (Outcome, error)

// stage is a named cascade step
type stage struct {
	name string
	run  stageFunc
}

// defaultStages returns the cascade in execution order
func defaultStages() []stage {
	return []stage{
		{StageApplicability, applicabilityStage},
		{StagePivot, pivotStage},
		{StageCropArea, cropAreaStage},
		{StagePolicy, policyStage},
		{StageSafeArea, safeAreaStage},
		{StageFinalRegion, finalRegionStage},
	}
}

func applicabilityStage(r *resolution, s State) (Outcome, error) {
	if !r.reader.Applicable(s.Size) {
		r.logger.Debugf("region metadata not applicable to %v", s.Size)
		return Commit(s, StageApplicability, false), nil
	}
	return Continue(s), nil
}

// pivotStage picks the anchor for later growth: the PivotPoint node, else the
// safe area center, else the image center.
func pivotStage(r *resolution, s State) (Outcome, error) {
	pivot, ok, err := r.reader.Area(metadata.NodePivotPoint)
	if err != nil {
		return Outcome{}, err
	}
	if ok {
		p, err := geometry.ToPoint(pivot, s.Size)
		if err == nil {
			s.Pivot = p
			return Continue(s), nil
		}
		r.skip(metadata.NodePivotPoint.String(), err, &s)
	}

	// Problems with the safe area are reported by the safe-area stage.
	safe, ok, err := r.reader.Area(metadata.NodeSafeArea)
	if err != nil {
		return Outcome{}, err
	}
	if ok {
		if rect, err := geometry.ToRect(safe, s.Size); err == nil {
			s.Pivot = rect.Center()
			return Continue(s), nil
		}
	}

	s.Pivot = types.FullRect(s.Size).Center()
	return Continue(s), nil
}

func cropAreaStage(r *resolution, s State) (Outcome, error) {
	area, rect, ok, err := r.rect(metadata.NodeCropArea, types.AttrBox, &s)
	if err != nil {
		return Outcome{}, err
	}
	if !ok {
		s.deriveTarget(types.FullRect(s.Size))
		return Continue(s), nil
	}

	s.CropArea, s.CropRect = area, rect
	s.Rect = rect
	s.ShouldCrop = true
	s.deriveTarget(rect)

	if area.Has(types.AttrMinWidth) && area.MinWidth <= s.Target.Width {
		if policy, _ := r.reader.CropPolicy(); policy != PolicyAll {
			s.FitIn = true
			return Commit(s, StageCropArea, true), nil
		}
		if s.Target.Height == math.Round(s.Target.Width/rect.Aspect()) {
			return Commit(s, StageCropArea, true), nil
		}
	}
	return Continue(s), nil
}

func policyStage(r *resolution, s State) (Outcome, error) {
	policy, ok := r.reader.CropPolicy()
	if ok && policy != PolicyVisibilityOnly && policy != PolicyAll {
		r.logger.Debugf("crop policy %q forbids art-direction crops", policy)
		s.FitIn = true
		return Commit(s, StagePolicy, false), nil
	}
	return Continue(s), nil
}

// safeAreaStage keeps small targets from cutting into the safe area. Larger
// targets fall through with the safe rectangle recorded as a constraint.
func safeAreaStage(r *resolution, s State) (Outcome, error) {
	area, safe, ok, err := r.rect(metadata.NodeSafeArea, types.AttrBox|types.AttrMaxWidth, &s)
	if err != nil {
		return Outcome{}, err
	}
	if !ok {
		return Continue(s), nil
	}
	s.SafeArea, s.SafeRect = area, safe

	if s.Target.Width > area.MaxWidth {
		return Continue(s), nil
	}

	safeAspect := safe.Aspect()
	switch {
	case s.WidthRequested && !s.HeightRequested:
		s.Target.Height = pixels(s.Target.Width / safeAspect)
		s.Rect = safe
		return Commit(s, StageSafeArea, true), nil
	case s.HeightRequested && !s.WidthRequested:
		s.Target.Width = pixels(s.Target.Height * safeAspect)
		s.Rect = safe
		return Commit(s, StageSafeArea, true), nil
	}

	targetAspect := s.Target.Aspect()
	next := safe
	if s.Target.Height >= s.Target.Width/safeAspect {
		height := safe.Width() / targetAspect
		if height > s.Rect.Height() {
			next.Y0, next.Y1 = s.Rect.Y0, s.Rect.Y1
			s.FitIn = true
		} else {
			next.Y0, next.Y1 = place(s.Pivot.Y, s.Rect.Y0, s.Rect.Y1, height)
			next.Y0, next.Y1 = contain(next.Y0, next.Y1, safe.Y0, safe.Y1)
		}
	} else {
		width := safe.Height() * targetAspect
		if width > s.Rect.Width() {
			next.X0, next.X1 = s.Rect.X0, s.Rect.X1
			s.FitIn = true
		} else {
			next.X0, next.X1 = place(s.Pivot.X, s.Rect.X0, s.Rect.X1, width)
			next.X0, next.X1 = contain(next.X0, next.X1, safe.X0, safe.X1)
		}
	}

	s.Rect = next
	return Commit(s, StageSafeArea, true), nil
}

func finalRegionStage(r *resolution, s State) (Outcome, error) {
	if r.reader.Interpolation() == types.InterpolationLinear {
		return linearStage(r, s)
	}
	return stepStage(r, s)
}

// linearStage sizes the crop between the crop area at its minimum width and
// the requested target, anchored on the pivot.
func linearStage(r *resolution, s State) (Outcome, error) {
	if !s.CropArea.Has(types.AttrMinWidth) || !s.HasSafeArea() {
		r.logger.Debugf("linear interpolation needs CropArea.MinWidth and SafeArea.MaxWidth")
		return Commit(s, StageLinear, false), nil
	}

	targetAspect := s.Target.Aspect()
	minWidth := s.CropArea.MinWidth

	var width, height float64
	if s.Target.Height > minWidth/s.CropRect.Aspect() {
		height = s.Rect.Height()
		width = height * targetAspect
	} else {
		width = (s.Rect.Width() / minWidth) * s.Target.Width
		height = width / targetAspect
	}

	var next types.Rect
	next.X0, next.X1 = place(s.Pivot.X, s.Rect.X0, s.Rect.X1, width)
	next.Y0, next.Y1 = place(s.Pivot.Y, s.Rect.Y0, s.Rect.Y1, height)
	next.X0, next.X1 = contain(next.X0, next.X1, s.SafeRect.X0, s.SafeRect.X1)
	next.Y0, next.Y1 = contain(next.Y0, next.Y1, s.SafeRect.Y0, s.SafeRect.Y1)

	s.Rect = next
	return Commit(s, StageLinear, true), nil
}

type candidate struct {
	rect     types.Rect
	distance float64
}

// stepStage picks the recommended frame whose aspect is closest to the
// target among those whose bounds admit it.
func stepStage(r *resolution, s State) (Outcome, error) {
	frames, err := r.reader.RecommendedFrames()
	if err != nil {
		return Outcome{}, err
	}

	targetAspect := s.Target.Aspect()
	var candidates []candidate
	for i, frame := range frames {
		if !frame.Has(types.AttrBox) {
			r.logger.Debugf("recommended frame %d is incomplete, skipping", i+1)
			continue
		}
		if excluded(frame, s.Target.Width, targetAspect) {
			continue
		}
		rect, err := geometry.ToRect(frame, s.Size)
		if err != nil {
			r.skip(metadata.NodeRecommendedFrames.String(), err, &s)
			continue
		}
		candidates = append(candidates, candidate{
			rect:     rect,
			distance: math.Abs(frame.Aspect() - targetAspect),
		})
	}

	if len(candidates) == 0 {
		return Commit(s, StageStep, false), nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].distance < candidates[j].distance
	})
	s.Rect = candidates[0].rect
	return Commit(s, StageStep, true), nil
}

// excluded applies a frame's bounds to the target. The aspect bounds are
// compared exactly as authored in existing metadata.
func excluded(frame types.Area, targetWidth, targetAspect float64) bool {
	switch {
	case frame.Has(types.AttrMinWidth) && frame.MinWidth > targetWidth:
		return true
	case frame.Has(types.AttrMaxWidth) && frame.MaxWidth < targetWidth:
		return true
	case frame.Has(types.AttrMinAspectRatio) && frame.MinAspectRatio < targetAspect:
		return true
	case frame.Has(types.AttrMaxAspectRatio) && frame.MaxAspectRatio > targetAspect:
		return true
	}
	return false
}
