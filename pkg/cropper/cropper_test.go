package cropper

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/menta2k/image-regions/pkg/geometry"
	"github.com/menta2k/image-regions/pkg/metadata"
	"github.com/menta2k/image-regions/pkg/metadata/metadatatest"
	"github.com/menta2k/image-regions/pkg/types"
)

// recorder captures log output so tests can assert on it
type recorder struct {
	debug []string
	info  []string
	warn  []string
}

func (r *recorder) Debugf(format string, args ...interface{}) {
	r.debug = append(r.debug, fmt.Sprintf(format, args...))
}

func (r *recorder) Infof(format string, args ...interface{}) {
	r.info = append(r.info, fmt.Sprintf(format, args...))
}

func (r *recorder) Warnf(format string, args ...interface{}) {
	r.warn = append(r.warn, fmt.Sprintf(format, args...))
}

var (
	square = types.Size{Width: 640, Height: 640}
	monks  = types.Size{Width: 1200, Height: 900}
)

func crop(l, t, r, b int) types.Crop {
	return types.Crop{Left: l, Top: t, Right: r, Bottom: b}
}

type fixtureCase struct {
	width, height int
	want          types.Crop
	stage         string
	shouldCrop    bool
	fitIn         bool
}

func runFixture(t *testing.T, store metadata.Store, size types.Size, tests []fixtureCase) {
	t.Helper()
	resolver := NewWithLogger(&recorder{})

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%dx%d", tt.width, tt.height), func(t *testing.T) {
			d, err := resolver.Resolve(Input{Size: size, Metadata: store, Width: tt.width, Height: tt.height})
			if err != nil {
				t.Fatalf("Resolve failed: %v", err)
			}
			if d.Crop != tt.want {
				t.Errorf("crop = %+v, want %+v", d.Crop, tt.want)
			}
			if d.Stage != tt.stage {
				t.Errorf("stage = %q, want %q", d.Stage, tt.stage)
			}
			if d.ShouldCrop != tt.shouldCrop {
				t.Errorf("should_crop = %v, want %v", d.ShouldCrop, tt.shouldCrop)
			}
			if d.FitIn != tt.fitIn {
				t.Errorf("fit_in = %v, want %v", d.FitIn, tt.fitIn)
			}
		})
	}
}

func TestResolve_Regions(t *testing.T) {
	runFixture(t, metadatatest.Regions(), square, []fixtureCase{
		{0, 0, crop(0, 80, 640, 560), StageCropArea, true, false},
		{480, 0, crop(0, 80, 640, 560), StageCropArea, true, false},
		{0, 480, crop(0, 80, 640, 560), StageCropArea, true, false},
		{300, 200, crop(170, 220, 470, 420), StageSafeArea, true, false},
		{240, 160, crop(170, 220, 470, 420), StageSafeArea, true, false},
		{200, 200, crop(170, 170, 470, 470), StageSafeArea, true, false},
		{300, 150, crop(120, 220, 520, 420), StageSafeArea, true, false},
		{200, 300, crop(170, 95, 470, 545), StageSafeArea, true, false},
		{400, 300, crop(53, 120, 587, 520), StageLinear, true, false},
		{480, 480, crop(80, 80, 560, 560), StageLinear, true, false},
		{400, 400, crop(80, 80, 560, 560), StageLinear, true, false},
	})
}

func TestResolve_Regions2(t *testing.T) {
	runFixture(t, metadatatest.Regions2(), square, []fixtureCase{
		{300, 200, crop(150, 200, 450, 400), StageSafeArea, true, false},
		{240, 160, crop(150, 200, 450, 400), StageSafeArea, true, false},
		{200, 200, crop(150, 133, 450, 433), StageSafeArea, true, false},
		{300, 150, crop(83, 200, 483, 400), StageSafeArea, true, false},
		{200, 300, crop(150, 89, 450, 539), StageSafeArea, true, false},
		{400, 300, crop(37, 103, 570, 503), StageLinear, true, false},
		{480, 480, crop(55, 80, 535, 560), StageLinear, true, false},
		{400, 400, crop(55, 80, 535, 560), StageLinear, true, false},
	})
}

func TestResolve_Monks(t *testing.T) {
	runFixture(t, metadatatest.Monks(), monks, []fixtureCase{
		{320, 0, crop(214, 274, 932, 774), StageSafeArea, true, false},
		{240, 160, crop(181, 274, 932, 774), StageSafeArea, true, false},
		{200, 200, crop(214, 116, 932, 834), StageSafeArea, true, false},
		{300, 150, crop(117, 274, 1119, 774), StageSafeArea, true, false},
		{200, 300, crop(214, 114, 932, 835), StageSafeArea, true, true},
		{380, 380, crop(120, 44, 974, 900), StageStep, true, false},
		{350, 350, crop(95, 231, 952, 797), StageStep, true, false},
		{360, 240, crop(95, 231, 952, 797), StageStep, true, false},
		{500, 250, crop(80, 114, 1163, 835), StageCropArea, true, true},
	})
}

func TestResolve_StepInterpolation(t *testing.T) {
	store := metadatatest.RegionsBuilder().Delete("Xmp.rmd.Interpolation").Store()
	runFixture(t, store, square, []fixtureCase{
		{400, 400, crop(0, 0, 640, 640), StageStep, true, false},
		// The square frame's aspect bounds exclude a 4:3 target.
		{400, 300, crop(0, 80, 640, 560), StageStep, false, false},
	})
}

func TestResolve_TargetDerivation(t *testing.T) {
	resolver := NewWithLogger(&recorder{})

	tests := []struct {
		name          string
		store         metadata.Store
		size          types.Size
		width, height int
		want          types.TargetSize
	}{
		{"natural size takes crop area", metadatatest.Regions(), square, 0, 0, types.TargetSize{Width: 640, Height: 480}},
		{"width only", metadatatest.Regions(), square, 480, 0, types.TargetSize{Width: 480, Height: 360}},
		{"height only", metadatatest.Regions(), square, 0, 480, types.TargetSize{Width: 640, Height: 480}},
		{"width only on the safe area", metadatatest.Monks(), monks, 320, 0, types.TargetSize{Width: 320, Height: 223}},
		{"natural size on monks", metadatatest.Monks(), monks, 0, 0, types.TargetSize{Width: 1083, Height: 721}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := resolver.Resolve(Input{Size: tt.size, Metadata: tt.store, Width: tt.width, Height: tt.height})
			if err != nil {
				t.Fatalf("Resolve failed: %v", err)
			}
			if diff := cmp.Diff(tt.want, d.Target); diff != "" {
				t.Errorf("target mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestResolve_Inapplicable(t *testing.T) {
	resolver := NewWithLogger(&recorder{})

	tests := []struct {
		name  string
		store metadata.Store
		size  types.Size
	}{
		{"size mismatch", metadatatest.Regions(), types.Size{Width: 641, Height: 640}},
		{"no metadata", nil, square},
		{"marker missing", metadatatest.RegionsBuilder().Delete("Xmp.rmd.AppliedToDimensions").Store(), square},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := resolver.Resolve(Input{Size: tt.size, Metadata: tt.store, Width: 300, Height: 200})
			if err != nil {
				t.Fatalf("Resolve failed: %v", err)
			}
			want := types.Decision{
				Crop:   crop(0, 0, tt.size.Width, tt.size.Height),
				Rect:   types.FullRect(tt.size),
				Target: types.TargetSize{Width: 300, Height: 200},
				Stage:  StageApplicability,
			}
			if diff := cmp.Diff(want, d); diff != "" {
				t.Errorf("decision mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestResolve_PolicyGate(t *testing.T) {
	store := metadatatest.RegionsBuilder().CropPolicy("editorial").Store()
	d, err := NewWithLogger(&recorder{}).Resolve(Input{Size: square, Metadata: store, Width: 400, Height: 300})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if d.ShouldCrop {
		t.Error("expected should_crop=false")
	}
	if !d.FitIn {
		t.Error("expected fit_in=true")
	}
	if d.Crop != crop(0, 80, 640, 560) {
		t.Errorf("expected the crop area to be kept, got %+v", d.Crop)
	}
	if d.Stage != StagePolicy {
		t.Errorf("stage = %q", d.Stage)
	}
}

func TestResolve_CropAreaPolicyFitIn(t *testing.T) {
	store := metadatatest.RegionsBuilder().CropPolicy(PolicyVisibilityOnly).Store()
	d, err := NewWithLogger(&recorder{}).Resolve(Input{Size: square, Metadata: store, Width: 480, Height: 480})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !d.ShouldCrop || !d.FitIn || d.Stage != StageCropArea {
		t.Errorf("unexpected decision %+v", d)
	}
}

func TestResolve_MalformedNumber(t *testing.T) {
	store := metadatatest.RegionsBuilder().Set("Xmp.rmd.SafeArea/stArea:h", "0.3125px").Store()
	_, err := NewWithLogger(&recorder{}).Resolve(Input{Size: square, Metadata: store, Width: 300, Height: 200})
	if !errors.Is(err, metadata.ErrMalformedNumber) {
		t.Fatalf("expected ErrMalformedNumber, got %v", err)
	}
}

func TestResolve_InvalidAreaValueIsReported(t *testing.T) {
	log := &recorder{}
	store := metadatatest.RegionsBuilder().Set("Xmp.rmd.CropArea/stArea:x", "1.5").Store()

	d, err := NewWithLogger(log).Resolve(Input{Size: square, Metadata: store, Width: 300, Height: 200})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	// The crop area is treated as absent; the safe area still protects.
	if d.Crop != crop(170, 220, 470, 420) {
		t.Errorf("crop = %+v", d.Crop)
	}
	if len(d.Issues) != 1 {
		t.Fatalf("expected one issue, got %v", d.Issues)
	}
	if len(log.warn) != 1 {
		t.Errorf("expected one warning, got %v", log.warn)
	}
}

func TestResolve_EmptyAreasAreReported(t *testing.T) {
	step := func() *metadatatest.Builder {
		return metadatatest.RegionsBuilder().Delete("Xmp.rmd.Interpolation")
	}

	tests := []struct {
		name          string
		store         metadata.Store
		width, height int
	}{
		{"crop area zero width", metadatatest.RegionsBuilder().Set("Xmp.rmd.CropArea/stArea:w", "0").Store(), 400, 0},
		{"crop area zero height", metadatatest.RegionsBuilder().Set("Xmp.rmd.CropArea/stArea:h", "0").Store(), 400, 0},
		{
			"crop area empty",
			metadatatest.RegionsBuilder().
				Set("Xmp.rmd.CropArea/stArea:w", "0").
				Set("Xmp.rmd.CropArea/stArea:h", "0").Store(),
			400, 0,
		},
		{"crop area empty height only request", metadatatest.RegionsBuilder().Set("Xmp.rmd.CropArea/stArea:h", "0").Store(), 0, 300},
		{"safe area zero width", metadatatest.RegionsBuilder().Set("Xmp.rmd.SafeArea/stArea:w", "0").Store(), 200, 0},
		{"safe area zero height", metadatatest.RegionsBuilder().Set("Xmp.rmd.SafeArea/stArea:h", "0").Store(), 300, 200},
		{"frame zero width", step().Set("Xmp.rmd.RecommendedFrames[1]/stArea:w", "0").Store(), 400, 400},
		{"frame zero height", step().Set("Xmp.rmd.RecommendedFrames[1]/stArea:h", "0").Store(), 400, 400},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := &recorder{}
			d, err := NewWithLogger(log).Resolve(Input{Size: square, Metadata: tt.store, Width: tt.width, Height: tt.height})
			if err != nil {
				t.Fatalf("Resolve failed: %v", err)
			}

			for _, v := range []float64{d.Rect.X0, d.Rect.Y0, d.Rect.X1, d.Rect.Y1, d.Target.Width, d.Target.Height} {
				if math.IsNaN(v) || math.IsInf(v, 0) {
					t.Fatalf("non-finite decision %+v", d)
				}
			}
			if d.Crop.Right <= d.Crop.Left || d.Crop.Bottom <= d.Crop.Top {
				t.Errorf("degenerate crop %+v", d.Crop)
			}
			if !d.Rect.Round().Rectangle().In(types.Crop{Right: square.Width, Bottom: square.Height}.Rectangle()) {
				t.Errorf("crop %+v leaves the image", d.Crop)
			}
			if len(d.Issues) != 1 {
				t.Errorf("expected one issue, got %v", d.Issues)
			}
			if len(log.warn) != 1 {
				t.Errorf("expected one warning, got %v", log.warn)
			}
			if _, err := json.Marshal(d); err != nil {
				t.Errorf("decision does not serialize: %v", err)
			}
		})
	}
}

func TestResolve_IncompleteSafeArea(t *testing.T) {
	log := &recorder{}
	store := metadatatest.RegionsBuilder().Delete("Xmp.rmd.SafeArea/rmd:MaxWidth").Store()

	d, err := NewWithLogger(log).Resolve(Input{Size: square, Metadata: store, Width: 300, Height: 200})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	// Without a usable safe area linear interpolation cannot run.
	if d.ShouldCrop || d.Stage != StageLinear {
		t.Errorf("unexpected decision %+v", d)
	}
	if d.Crop != crop(0, 80, 640, 560) {
		t.Errorf("crop = %+v", d.Crop)
	}
	if len(log.debug) == 0 {
		t.Error("expected the skipped safe area to be logged at debug")
	}
	if len(d.Issues) != 0 {
		t.Errorf("incomplete areas are not authoring issues: %v", d.Issues)
	}
}

func TestResolve_InvalidSize(t *testing.T) {
	if _, err := New().Resolve(Input{Metadata: metadatatest.Regions()}); err == nil {
		t.Error("expected error for a zero image size")
	}
}

func TestResolve_StepSelectionIsDeterministic(t *testing.T) {
	size := types.Size{Width: 1000, Height: 1000}
	far := metadatatest.Box{X: 0.5, Y: 0.5, W: 0.55, H: 0.5}   // aspect 1.1
	near := metadatatest.Box{X: 0.5, Y: 0.5, W: 0.525, H: 0.5} // aspect 1.05

	wantRect, err := geometry.ToRect(types.Area{X: near.X, Y: near.Y, W: near.W, H: near.H, Present: types.AttrBox}, size)
	if err != nil {
		t.Fatalf("ToRect failed: %v", err)
	}

	orders := map[string][]metadatatest.Box{
		"near first": {near, far},
		"far first":  {far, near},
	}
	for name, frames := range orders {
		t.Run(name, func(t *testing.T) {
			b := metadatatest.NewBuilder().Dimensions(size.Width, size.Height)
			for _, f := range frames {
				b.Frame(f)
			}
			d, err := NewWithLogger(&recorder{}).Resolve(Input{Size: size, Metadata: b.Store(), Width: 500, Height: 500})
			if err != nil {
				t.Fatalf("Resolve failed: %v", err)
			}
			if d.Rect != wantRect {
				t.Errorf("rect = %v, want %v", d.Rect, wantRect)
			}
		})
	}
}

func TestResolve_StepTieKeepsAuthoredOrder(t *testing.T) {
	size := types.Size{Width: 1000, Height: 1000}
	first := metadatatest.Box{X: 0.25, Y: 0.5, W: 0.5, H: 0.5}
	second := metadatatest.Box{X: 0.75, Y: 0.5, W: 0.5, H: 0.5}

	store := metadatatest.NewBuilder().Dimensions(1000, 1000).Frame(first).Frame(second).Store()
	d, err := NewWithLogger(&recorder{}).Resolve(Input{Size: size, Metadata: store, Width: 300, Height: 300})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if d.Crop != crop(0, 250, 500, 750) {
		t.Errorf("expected the first frame to win the tie, got %+v", d.Crop)
	}
}

func TestResolve_Invariants(t *testing.T) {
	fixtures := []struct {
		name  string
		store metadata.Store
		size  types.Size
	}{
		{"regions", metadatatest.Regions(), square},
		{"regions2", metadatatest.Regions2(), square},
		{"monks", metadatatest.Monks(), monks},
		{"regions step", metadatatest.RegionsBuilder().Delete("Xmp.rmd.Interpolation").Store(), square},
	}
	dims := []int{0, 50, 120, 200, 240, 300, 320, 400, 480, 640, 1000}
	resolver := NewWithLogger(&recorder{})

	for _, f := range fixtures {
		safeRect := safeRectOf(t, f.store, f.size)
		for _, w := range dims {
			for _, h := range dims {
				in := Input{Size: f.size, Metadata: f.store, Width: w, Height: h}
				d, err := resolver.Resolve(in)
				if err != nil {
					t.Fatalf("%s %dx%d: %v", f.name, w, h, err)
				}
				if d.Crop.Right <= d.Crop.Left || d.Crop.Bottom <= d.Crop.Top {
					t.Errorf("%s %dx%d: degenerate crop %+v", f.name, w, h, d.Crop)
				}
				if d.Stage == StageSafeArea && !containsApprox(d.Rect, safeRect) {
					t.Errorf("%s %dx%d: %v does not contain safe area %v", f.name, w, h, d.Rect, safeRect)
				}

				again, err := resolver.Resolve(in)
				if err != nil {
					t.Fatalf("%s %dx%d second run: %v", f.name, w, h, err)
				}
				if diff := cmp.Diff(d, again); diff != "" {
					t.Errorf("%s %dx%d: resolution is not idempotent:\n%s", f.name, w, h, diff)
				}
			}
		}
	}
}

func safeRectOf(t *testing.T, store metadata.Store, size types.Size) types.Rect {
	t.Helper()
	area, ok, err := metadata.NewReader(store).Area(metadata.NodeSafeArea)
	if err != nil || !ok {
		t.Fatalf("fixture has no safe area: %v", err)
	}
	r, err := geometry.ToRect(area, size)
	if err != nil {
		t.Fatalf("ToRect failed: %v", err)
	}
	return r
}

func containsApprox(outer, inner types.Rect) bool {
	const eps = 1e-9
	return outer.X0 <= inner.X0+eps && outer.Y0 <= inner.Y0+eps &&
		outer.X1 >= inner.X1-eps && outer.Y1 >= inner.Y1-eps
}

func TestStages_PolicyGate(t *testing.T) {
	tests := []struct {
		policy    string
		committed bool
	}{
		{"", false},
		{PolicyAll, false},
		{PolicyVisibilityOnly, false},
		{"editorial", true},
	}

	for _, tt := range tests {
		t.Run(tt.policy, func(t *testing.T) {
			b := metadatatest.RegionsBuilder()
			if tt.policy == "" {
				b.Delete("Xmp.rmd.AllowedDerivates/rmd:Crop")
			} else {
				b.CropPolicy(tt.policy)
			}
			res := &resolution{reader: metadata.NewReader(b.Store()), logger: &recorder{}}

			out, err := policyStage(res, newState(Input{Size: square, Width: 400, Height: 300}))
			if err != nil {
				t.Fatalf("policyStage failed: %v", err)
			}
			if out.Committed() != tt.committed {
				t.Errorf("committed = %v, want %v", out.Committed(), tt.committed)
			}
			if tt.committed && (!out.Decision().FitIn || out.Decision().ShouldCrop) {
				t.Errorf("unexpected decision %+v", out.Decision())
			}
		})
	}
}

func TestStages_PivotPriority(t *testing.T) {
	tests := []struct {
		name  string
		store metadata.Store
		size  types.Size
		want  types.Point
	}{
		{"explicit pivot", metadatatest.Regions2(), square, types.Point{X: 220, Y: 220}},
		{"safe area center", metadatatest.Regions2Builder().Delete("Xmp.rmd.PivotPoint").Store(), square, types.Point{X: 300, Y: 300}},
		{"empty pivot falls back to safe area", metadatatest.Monks(), monks, safeRectOf(t, metadatatest.Monks(), monks).Center()},
		{
			"image center",
			metadatatest.Regions2Builder().Delete("Xmp.rmd.PivotPoint").Delete("Xmp.rmd.SafeArea").Store(),
			square,
			types.Point{X: 320, Y: 320},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := &resolution{reader: metadata.NewReader(tt.store), logger: &recorder{}}
			out, err := pivotStage(res, newState(Input{Size: tt.size}))
			if err != nil {
				t.Fatalf("pivotStage failed: %v", err)
			}
			if out.Committed() {
				t.Fatal("pivot stage must not commit")
			}
			if got := out.State().Pivot; got != tt.want {
				t.Errorf("pivot = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStages_StateIsNotShared(t *testing.T) {
	res := &resolution{reader: metadata.NewReader(metadatatest.Regions()), logger: &recorder{}}
	before := newState(Input{Size: square, Width: 480})
	before.Issues = make([]string, 1, 8)

	out, err := cropAreaStage(res, before)
	if err != nil {
		t.Fatalf("cropAreaStage failed: %v", err)
	}
	after := out.State()
	after.addIssue("later")

	if before.Target.Height != 0 || before.Rect != types.FullRect(square) {
		t.Errorf("predecessor state was modified: %+v", before)
	}
	if got := before.Issues[:cap(before.Issues)][1]; got != "" {
		t.Errorf("issue leaked into predecessor's backing array: %q", got)
	}
}

func TestPlace(t *testing.T) {
	tests := []struct {
		name          string
		p, lo, hi     float64
		size          float64
		wantLo, wantH float64
	}{
		{"centered", 320, 0, 640, 400, 120, 520},
		{"off center", 200, 80, 560, 300, 125, 425},
		{"degenerate span", 10, 5, 5, 4, 8, 12},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lo, hi := place(tt.p, tt.lo, tt.hi, tt.size)
			if lo != tt.wantLo || hi != tt.wantH {
				t.Errorf("place = (%v, %v), want (%v, %v)", lo, hi, tt.wantLo, tt.wantH)
			}
		})
	}
}

func TestContain(t *testing.T) {
	tests := []struct {
		name           string
		lo, hi         float64
		safeLo, safeHi float64
		wantLo, wantHi float64
	}{
		{"already contained", 100, 500, 200, 400, 100, 500},
		{"near edge exposed", 250, 450, 200, 400, 200, 400},
		{"far edge exposed", 100, 300, 200, 400, 200, 400},
		{"near exposed aligns far edges", 231, 982, 214, 932, 181, 932},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lo, hi := contain(tt.lo, tt.hi, tt.safeLo, tt.safeHi)
			if lo != tt.wantLo || hi != tt.wantHi {
				t.Errorf("contain = (%v, %v), want (%v, %v)", lo, hi, tt.wantLo, tt.wantHi)
			}
		})
	}
}

func TestResolve_ShortenedCascadeCommitsLastState(t *testing.T) {
	r := &Resolver{logger: &recorder{}, stages: defaultStages()[:3]}

	d, err := r.Resolve(Input{Size: square, Metadata: metadatatest.Regions(), Width: 400, Height: 300})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if d.Stage != stageEnd {
		t.Errorf("stage = %q, want %q", d.Stage, stageEnd)
	}
	if !d.ShouldCrop || d.Crop != crop(0, 80, 640, 560) {
		t.Errorf("expected the crop area to be committed, got %+v", d)
	}
}

func TestResolve_StageErrorNamesStage(t *testing.T) {
	failing := func(*resolution, State) (Outcome, error) {
		return Outcome{}, metadata.ErrMalformedNumber
	}
	r := &Resolver{logger: &recorder{}, stages: []stage{{"broken", failing}}}

	_, err := r.Resolve(Input{Size: square, Metadata: metadatatest.Regions()})
	if !errors.Is(err, metadata.ErrMalformedNumber) {
		t.Fatalf("expected ErrMalformedNumber, got %v", err)
	}
	if got := err.Error(); !strings.HasPrefix(got, "broken stage: ") {
		t.Errorf("error should name the stage, got %q", got)
	}
}
