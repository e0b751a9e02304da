package arbiter

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/sydlexius/artpersona/internal/artist"
	"github.com/sydlexius/artpersona/internal/axis"
	"github.com/sydlexius/artpersona/internal/profile"
	"github.com/sydlexius/artpersona/internal/strategy"
	"github.com/sydlexius/artpersona/internal/taxonomy"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeStrategy struct {
	kind  strategy.Kind
	res   strategy.Result
	err   error
	order *[]strategy.Kind
}

func (f *fakeStrategy) Kind() strategy.Kind { return f.kind }

func (f *fakeStrategy) Run(_ context.Context, _ *artist.Record) (strategy.Result, error) {
	if f.order != nil {
		*f.order = append(*f.order, f.kind)
	}
	if f.err != nil {
		return strategy.Result{}, f.err
	}
	res := f.res
	res.Kind = f.kind
	return res, nil
}

func codeResult(code taxonomy.Code, conf int) strategy.Result {
	return strategy.Result{Code: code, Confidence: conf, Reasoning: string(code), Sources: []string{"test"}}
}

func vectorResult(t *testing.T, code taxonomy.Code, strength, conf int) strategy.Result {
	t.Helper()
	v, err := axis.FromCode(code, strength)
	if err != nil {
		t.Fatalf("FromCode: %v", err)
	}
	return strategy.Result{Vector: &v, Code: code, Confidence: conf, Reasoning: string(code)}
}

func richRecord() *artist.Record {
	return &artist.Record{
		ID:          "artist-1",
		Name:        "Test Artist",
		Biographies: []artist.Biography{{Lang: "en", Text: strings.Repeat("word ", 200)}},
	}
}

func assertCandidates(t *testing.T, d *Decision) {
	t.Helper()
	if d.Draft == nil {
		t.Fatal("decision has no draft")
	}
	if err := d.Draft.Validate(); err != nil {
		t.Fatalf("draft does not validate: %v", err)
	}
	if d.Candidates[0].Type != d.Top || d.Draft.Log.Code != d.Top {
		t.Errorf("top %s, candidates[0] %s, log %s disagree", d.Top, d.Candidates[0].Type, d.Draft.Log.Code)
	}
}

func TestDecide_FixedPriorityOrder(t *testing.T) {
	var order []strategy.Kind
	a := New([]strategy.Strategy{
		&fakeStrategy{kind: strategy.KindBiography, res: codeResult(taxonomy.LAEF, 60), order: &order},
		&fakeStrategy{kind: strategy.KindMetadata, res: codeResult(taxonomy.LAEF, 40), order: &order},
		&fakeStrategy{kind: strategy.KindExternal, res: codeResult(taxonomy.LAEF, 80), order: &order},
	}, Options{}, testLogger())

	d, err := a.Decide(context.Background(), richRecord(), "")
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	want := []strategy.Kind{strategy.KindExternal, strategy.KindMetadata, strategy.KindBiography}
	if diff := cmp.Diff(want, order); diff != "" {
		t.Errorf("run order (-want +got):\n%s", diff)
	}
	wantPath := []State{StateNoStrategyRun, StatePartial, StateMerged, StateFinalized}
	if diff := cmp.Diff(wantPath, d.Path); diff != "" {
		t.Errorf("state path (-want +got):\n%s", diff)
	}
	if d.Method != profile.MethodMerged {
		t.Errorf("method = %s, want merged", d.Method)
	}
	assertCandidates(t, d)
}

func TestDecide_ExternalSkippedForShortBiography(t *testing.T) {
	var order []strategy.Kind
	a := New([]strategy.Strategy{
		&fakeStrategy{kind: strategy.KindExternal, res: codeResult(taxonomy.SRMC, 90), order: &order},
		&fakeStrategy{kind: strategy.KindMetadata, res: codeResult(taxonomy.LAEF, 40), order: &order},
	}, Options{}, testLogger())

	rec := &artist.Record{ID: "a", Name: "Short", Biographies: []artist.Biography{{Lang: "en", Text: "Brief."}}}
	d, err := a.Decide(context.Background(), rec, "")
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if diff := cmp.Diff([]strategy.Kind{strategy.KindMetadata}, order); diff != "" {
		t.Errorf("run order (-want +got):\n%s", diff)
	}
	if d.Method != profile.MethodMetadataOnly {
		t.Errorf("method = %s, want metadata_only", d.Method)
	}
	if !strings.Contains(d.Reasoning, "external skipped") {
		t.Errorf("reasoning should record the skip: %q", d.Reasoning)
	}
	wantPath := []State{StateNoStrategyRun, StatePartial, StateFinalized}
	if diff := cmp.Diff(wantPath, d.Path); diff != "" {
		t.Errorf("state path (-want +got):\n%s", diff)
	}
}

func TestDecide_UnconfiguredExternalIsSkipped(t *testing.T) {
	a := New([]strategy.Strategy{
		strategy.NewExternal(nil, 0),
		strategy.NewMetadata(axis.NewScorer()),
	}, Options{}, testLogger())

	d, err := a.Decide(context.Background(), richRecord(), "")
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if len(d.Failures) != 0 {
		t.Errorf("unconfigured collaborator should be skipped, not failed: %+v", d.Failures)
	}
	if !strings.Contains(d.Reasoning, "no collaborator configured") {
		t.Errorf("reasoning = %q", d.Reasoning)
	}
}

func TestDecide_InsufficientEvidence(t *testing.T) {
	a := New([]strategy.Strategy{
		&fakeStrategy{kind: strategy.KindExternal, err: &strategy.UnavailableError{Kind: strategy.KindExternal, Reason: "timed out"}},
		&fakeStrategy{kind: strategy.KindMetadata, err: errors.New("boom")},
		&fakeStrategy{kind: strategy.KindBiography, err: &strategy.UnavailableError{Kind: strategy.KindBiography, Reason: "no keyword hits"}},
	}, Options{}, testLogger())

	d, err := a.Decide(context.Background(), richRecord(), "")
	if !errors.Is(err, ErrInsufficientEvidence) {
		t.Fatalf("error = %v, want ErrInsufficientEvidence", err)
	}
	if d == nil || d.Draft == nil {
		t.Fatal("expected a finalized decision with a log entry")
	}
	if d.State != StateFinalized {
		t.Errorf("state = %s, want FINALIZED", d.State)
	}
	log := d.Draft.Log
	if log.Method != profile.MethodUnclassified || log.Code != "" || log.Confidence != 0 || log.ID == "" {
		t.Errorf("unexpected log entry: %+v", log)
	}
	if len(d.Failures) != 3 {
		t.Errorf("failures = %d, want 3", len(d.Failures))
	}
	for _, want := range []string{"timed out", "unexpected error", "no keyword hits"} {
		if !strings.Contains(log.Reasoning, want) {
			t.Errorf("reasoning missing %q: %q", want, log.Reasoning)
		}
	}
}

func TestDecide_ConfidenceArithmetic(t *testing.T) {
	tests := []struct {
		name    string
		results map[strategy.Kind]strategy.Result
		want    int
	}{
		{
			name: "single strategy keeps its confidence",
			results: map[strategy.Kind]strategy.Result{
				strategy.KindMetadata: codeResult(taxonomy.LAEF, 42),
			},
			want: 42,
		},
		{
			name: "agreement bonus",
			results: map[strategy.Kind]strategy.Result{
				strategy.KindExternal:  codeResult(taxonomy.LAEF, 70),
				strategy.KindBiography: codeResult(taxonomy.LAEF, 60),
			},
			want: 85,
		},
		{
			name: "capped at 95",
			results: map[strategy.Kind]strategy.Result{
				strategy.KindExternal:  codeResult(taxonomy.LAEF, 90),
				strategy.KindBiography: codeResult(taxonomy.LAEF, 85),
			},
			want: MaxConfidence,
		},
		{
			name: "strong disagreement penalty",
			results: map[strategy.Kind]strategy.Result{
				strategy.KindExternal: codeResult(taxonomy.LAEF, 70),
				strategy.KindMetadata: codeResult(taxonomy.SRMC, 40),
			},
			want: 60,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ss []strategy.Strategy
			for k, r := range tt.results {
				ss = append(ss, &fakeStrategy{kind: k, res: r})
			}
			d, err := New(ss, Options{}, testLogger()).Decide(context.Background(), richRecord(), "")
			if err != nil {
				t.Fatalf("Decide: %v", err)
			}
			if d.Confidence != tt.want {
				t.Errorf("confidence = %d, want %d (%s)", d.Confidence, tt.want, d.Reasoning)
			}
			assertCandidates(t, d)
		})
	}
}

func TestDecide_MergeWeightsByReliability(t *testing.T) {
	// Equal confidence, opposite codes: external reliability outweighs metadata.
	a := New([]strategy.Strategy{
		&fakeStrategy{kind: strategy.KindExternal, res: codeResult(taxonomy.LAEF, 60)},
		&fakeStrategy{kind: strategy.KindMetadata, res: codeResult(taxonomy.SRMC, 60)},
	}, Options{}, testLogger())
	d, err := a.Decide(context.Background(), richRecord(), "")
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if d.Top != taxonomy.LAEF {
		t.Errorf("top = %s, want LAEF", d.Top)
	}
	for _, ax := range taxonomy.Axes() {
		first, second := ax.Letters()
		if d.Vector.Get(first)+d.Vector.Get(second) != 100 {
			t.Errorf("merged axis %s does not sum to 100", ax)
		}
	}
}

func TestDecide_AttributionCapsEveryCandidate(t *testing.T) {
	a := New([]strategy.Strategy{
		&fakeStrategy{kind: strategy.KindExternal, res: codeResult(taxonomy.LRMC, 90)},
		&fakeStrategy{kind: strategy.KindBiography, res: codeResult(taxonomy.LRMC, 85)},
	}, Options{}, testLogger())
	rec := richRecord()
	rec.Name = "Workshop of Jan van Eyck"

	d, err := a.Decide(context.Background(), rec, "")
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	for _, c := range d.Candidates {
		if c.Confidence > strategy.AttributionCeiling {
			t.Errorf("candidate %s confidence %d above ceiling", c.Type, c.Confidence)
		}
	}
	if d.Draft.Log.Confidence > strategy.AttributionCeiling {
		t.Errorf("log confidence %d above ceiling", d.Draft.Log.Confidence)
	}
}

func TestDecide_SuppressionPromotesAlternative(t *testing.T) {
	ext := codeResult(taxonomy.LAEF, 80)
	ext.Alternates = []taxonomy.Code{taxonomy.SAEF}
	a := New([]strategy.Strategy{
		&fakeStrategy{kind: strategy.KindExternal, res: ext},
	}, Options{}, testLogger())

	d, err := a.Decide(context.Background(), richRecord(), taxonomy.LAEF)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if d.Top == taxonomy.LAEF {
		t.Fatalf("suppressed code stayed on top: %s", d.Reasoning)
	}
	if d.Confidence < DefaultMinAlternativeConfidence {
		t.Errorf("promoted confidence %d below minimum", d.Confidence)
	}
	for _, c := range d.Candidates {
		if c.Type == taxonomy.LAEF {
			t.Error("suppressed code should not appear among candidates once replaced")
		}
	}
	if d.Draft.Log.SuppressedType != taxonomy.LAEF || d.Draft.Meta.SuppressedType != taxonomy.LAEF {
		t.Error("suppressed type not recorded")
	}
	assertCandidates(t, d)
}

func TestDecide_SuppressionKeepsCodeWithoutAlternative(t *testing.T) {
	a := New([]strategy.Strategy{
		&fakeStrategy{kind: strategy.KindMetadata, res: vectorResult(t, taxonomy.LAEF, 55, 30)},
	}, Options{}, testLogger())

	d, err := a.Decide(context.Background(), richRecord(), taxonomy.LAEF)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if d.Top != taxonomy.LAEF {
		t.Errorf("top = %s, want LAEF kept", d.Top)
	}
	if !strings.Contains(d.Reasoning, "suppressed LAEF kept") {
		t.Errorf("reasoning should explain the kept code: %q", d.Reasoning)
	}
	assertCandidates(t, d)
}

func TestDecide_RejectsUnknownSuppressCode(t *testing.T) {
	a := New([]strategy.Strategy{&fakeStrategy{kind: strategy.KindMetadata, res: codeResult(taxonomy.LAEF, 30)}}, Options{}, testLogger())
	_, err := a.Decide(context.Background(), richRecord(), "SAIF")
	var unk *taxonomy.UnknownCodeError
	if !errors.As(err, &unk) {
		t.Fatalf("error = %v, want *taxonomy.UnknownCodeError", err)
	}
}

func TestDecide_InvalidStrategyCodeIsAFailure(t *testing.T) {
	a := New([]strategy.Strategy{
		&fakeStrategy{kind: strategy.KindExternal, res: codeResult("SAIF", 90)},
		&fakeStrategy{kind: strategy.KindMetadata, res: codeResult(taxonomy.SRMC, 35)},
	}, Options{}, testLogger())
	d, err := a.Decide(context.Background(), richRecord(), "")
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if d.Top != taxonomy.SRMC || d.Method != profile.MethodMetadataOnly {
		t.Errorf("got %s/%s, want SRMC/metadata_only", d.Top, d.Method)
	}
	if len(d.Failures) != 1 {
		t.Errorf("failures = %+v", d.Failures)
	}
}

func TestBestStrategyCode_EarliestWinsTies(t *testing.T) {
	results := []strategy.Result{{Confidence: 50}, {Confidence: 70}, {Confidence: 70}}
	codes := []taxonomy.Code{taxonomy.LAEF, taxonomy.SRMC, taxonomy.SAEF}
	if got := bestStrategyCode(results, codes); got != taxonomy.SRMC {
		t.Errorf("got %s, want SRMC", got)
	}
}

func TestBuildCandidates(t *testing.T) {
	v, _ := axis.FromCode(taxonomy.SRMC, 80)
	ranking := rankCodes(v)
	cands := buildCandidates(taxonomy.SRMC, 70, ranking, "", false)
	if len(cands) != candidateCount {
		t.Fatalf("len = %d, want %d", len(cands), candidateCount)
	}
	sum := 0.0
	for i, c := range cands {
		if i > 0 && c.Weight > cands[i-1].Weight {
			t.Errorf("weights not descending: %+v", cands)
		}
		if c.Confidence > 70 {
			t.Errorf("candidate %s confidence %d above top", c.Type, c.Confidence)
		}
		sum += c.Weight
	}
	if sum > 1.0 {
		t.Errorf("weights sum to %v", sum)
	}
	if cands[0].Type != taxonomy.SRMC {
		t.Errorf("top = %s", cands[0].Type)
	}
}

func TestDecide_ReportsUncertainAxes(t *testing.T) {
	v, err := axis.FromCode(taxonomy.LAEF, 80)
	if err != nil {
		t.Fatalf("FromCode: %v", err)
	}
	v.Set(taxonomy.Abstract, 55)
	v.Set(taxonomy.Free, 58)
	a := New([]strategy.Strategy{
		&fakeStrategy{kind: strategy.KindMetadata, res: strategy.Result{Vector: &v, Code: taxonomy.LAEF, Confidence: 40, Reasoning: "metadata"}},
	}, Options{}, testLogger())

	d, err := a.Decide(context.Background(), &artist.Record{ID: "a1", Name: "Test Artist"}, "")
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if diff := cmp.Diff([]taxonomy.Axis{taxonomy.AxisAR, taxonomy.AxisFC}, d.Uncertain); diff != "" {
		t.Errorf("uncertain axes (-want +got):\n%s", diff)
	}
	if !strings.Contains(d.Reasoning, "uncertain axes: A/R (margin 5), F/C (margin 8)") {
		t.Errorf("reasoning should list uncertain axes: %q", d.Reasoning)
	}

	sure, err := axis.FromCode(taxonomy.LAEF, 80)
	if err != nil {
		t.Fatalf("FromCode: %v", err)
	}
	a = New([]strategy.Strategy{
		&fakeStrategy{kind: strategy.KindMetadata, res: strategy.Result{Vector: &sure, Code: taxonomy.LAEF, Confidence: 40}},
	}, Options{}, testLogger())
	d, err = a.Decide(context.Background(), &artist.Record{ID: "a2", Name: "Test Artist"}, "")
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if len(d.Uncertain) != 0 || strings.Contains(d.Reasoning, "uncertain") {
		t.Errorf("decided vector reported uncertain axes: %v %q", d.Uncertain, d.Reasoning)
	}
}
