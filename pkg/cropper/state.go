package cropper

import (
	"math"

	"github.com/menta2k/image-regions/pkg/types"
)

// State is the value threaded through the cascade. Stages receive a copy and
// hand back an updated copy, so no stage observes another's later edits.
type State struct {
	Size   types.Size
	Target types.TargetSize

	// WidthRequested and HeightRequested record the axes the caller asked
	// for. They are never changed by target derivation.
	WidthRequested  bool
	HeightRequested bool

	// Rect is the working rectangle; it starts as the whole image.
	Rect  types.Rect
	Pivot types.Point

	CropArea types.Area
	CropRect types.Rect
	SafeArea types.Area
	SafeRect types.Rect

	ShouldCrop bool
	FitIn      bool
	Issues     []string
}

func newState(in Input) State {
	return State{
		Size:            in.Size,
		Target:          types.TargetSize{Width: float64(in.Width), Height: float64(in.Height)},
		WidthRequested:  in.Width > 0,
		HeightRequested: in.Height > 0,
		Rect:            types.FullRect(in.Size),
		Pivot:           types.FullRect(in.Size).Center(),
	}
}

// HasCropArea reports whether a usable crop area was loaded
func (s State) HasCropArea() bool {
	return s.CropArea.Has(types.AttrBox)
}

// HasSafeArea reports whether a usable safe area was loaded
func (s State) HasSafeArea() bool {
	return s.SafeArea.Has(types.AttrBox | types.AttrMaxWidth)
}

// deriveTarget fills in the target axes the caller left open so that the
// target takes the aspect of ref, or ref's pixel size when neither axis was
// given. Derived sides are whole pixels, at least one.
func (s *State) deriveTarget(ref types.Rect) {
	aspect := ref.Aspect()
	switch {
	case s.WidthRequested && !s.HeightRequested:
		s.Target.Height = pixels(s.Target.Width / aspect)
	case s.HeightRequested && !s.WidthRequested:
		s.Target.Width = pixels(s.Target.Height * aspect)
	case !s.WidthRequested && !s.HeightRequested:
		s.Target = types.TargetSize{Width: pixels(ref.Width()), Height: pixels(ref.Height())}
	}
}

// pixels rounds a derived side to a whole pixel count of at least one
func pixels(v float64) float64 {
	if math.IsNaN(v) || v < 1 {
		return 1
	}
	return math.Round(v)
}

func (s *State) addIssue(issue string) {
	// Full slice expression so the append never writes into a predecessor's
	// backing array.
	s.Issues = append(s.Issues[:len(s.Issues):len(s.Issues)], issue)
}

func (s State) commit(stage string, shouldCrop bool) types.Decision {
	d := types.Decision{
		Crop:       s.Rect.Round(),
		Rect:       s.Rect,
		ShouldCrop: shouldCrop,
		FitIn:      s.FitIn,
		Target:     s.Target,
		Stage:      stage,
	}
	if len(s.Issues) > 0 {
		d.Issues = append([]string(nil), s.Issues...)
	}
	return d
}

// Outcome is the result of one stage: either a State to continue with or a
// committed Decision.
type Outcome struct {
	state     State
	decision  types.Decision
	committed bool
}

// Continue hands s to the next stage
func Continue(s State) Outcome {
	return Outcome{state: s}
}

// Commit ends the cascade with the current rectangle of s
func Commit(s State, stage string, shouldCrop bool) Outcome {
	return Outcome{state: s, decision: s.commit(stage, shouldCrop), committed: true}
}

// Committed reports whether the stage decided
func (o Outcome) Committed() bool { return o.committed }

// Decision returns the committed decision
func (o Outcome) Decision() types.Decision { return o.decision }

// State returns the state handed onwards
func (o Outcome) State() State { return o.state }
