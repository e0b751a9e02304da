// Package arbiter runs the strategies for one artist in priority order and
// merges whatever they produce into one ranked decision.
package arbiter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sydlexius/artpersona/internal/artist"
	"github.com/sydlexius/artpersona/internal/axis"
	"github.com/sydlexius/artpersona/internal/profile"
	"github.com/sydlexius/artpersona/internal/strategy"
	"github.com/sydlexius/artpersona/internal/taxonomy"
)

// ErrInsufficientEvidence is returned when no strategy produced usable
// output. The decision still carries the log entry for the attempt.
var ErrInsufficientEvidence = errors.New("insufficient evidence: no strategy produced a result")

// State is the per-artist arbiter state.
type State string

// Arbiter states, in the order a decision moves through them.
const (
	StateNoStrategyRun State = "NO_STRATEGY_RUN"
	StatePartial       State = "PARTIAL"
	StateMerged        State = "MERGED"
	StateFinalized     State = "FINALIZED"
)

// Defaults for Options.
const (
	DefaultRichBioRunes             = 500
	DefaultMinAlternativeConfidence = 40
	MaxConfidence                   = 95
	AgreementBonus                  = 15
	DisagreementPenalty             = 10
	// DisagreementAxes is how many axes two strategy codes must differ on to
	// count as strong disagreement.
	DisagreementAxes = 3
	// UncertainMargin is the distance from the midpoint below which a merged
	// axis is reported as uncertain.
	UncertainMargin = 15
	candidateCount  = 3
)

// Options tunes the arbiter.
type Options struct {
	// RichBioRunes is the biography length at which the external
	// collaborator is consulted.
	RichBioRunes int
	// MinAlternativeConfidence is the confidence an alternative must reach
	// to replace a suppressed code.
	MinAlternativeConfidence int
}

func (o Options) withDefaults() Options {
	if o.RichBioRunes <= 0 {
		o.RichBioRunes = DefaultRichBioRunes
	}
	if o.MinAlternativeConfidence <= 0 {
		o.MinAlternativeConfidence = DefaultMinAlternativeConfidence
	}
	return o
}

// Failure records a strategy that ran and could not produce a result.
type Failure struct {
	Kind   strategy.Kind
	Reason string
}

// Decision is the outcome of arbitrating one artist.
type Decision struct {
	ArtistID string
	State    State
	// Path lists every state the decision passed through.
	Path       []State
	Results    []strategy.Result
	Failures   []Failure
	Skipped    []string
	Vector     axis.Vector
	Top        taxonomy.Code
	Confidence int
	Candidates []profile.TypeWeight
	// Uncertain lists merged axes within UncertainMargin of the midpoint,
	// least decided first.
	Uncertain  []taxonomy.Axis
	Method     profile.Method
	Suppressed taxonomy.Code
	Reasoning  string
	Sources    []string
	Draft      *profile.Draft
}

// Arbiter owns the strategies and merge policy.
type Arbiter struct {
	strategies []strategy.Strategy
	opts       Options
	logger     *slog.Logger
	now        func() time.Time
}

// New creates an Arbiter. Strategies are ordered by fixed priority
// (external, metadata, biography) regardless of the order given.
func New(strategies []strategy.Strategy, opts Options, logger *slog.Logger) *Arbiter {
	ordered := make([]strategy.Strategy, 0, len(strategies))
	for _, s := range strategies {
		if s != nil {
			ordered = append(ordered, s)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return priority(ordered[i].Kind()) < priority(ordered[j].Kind())
	})
	return &Arbiter{
		strategies: ordered,
		opts:       opts.withDefaults(),
		logger:     logger.With(slog.String("component", "arbiter")),
		now:        time.Now,
	}
}

func priority(k strategy.Kind) int {
	switch k {
	case strategy.KindExternal:
		return 0
	case strategy.KindMetadata:
		return 1
	case strategy.KindBiography:
		return 2
	}
	return 3
}

// Decide runs the strategies for rec and finalizes a decision. suppress, when
// set, is barred as top-1 unless no alternative reaches the minimum
// confidence. On ErrInsufficientEvidence the returned decision is finalized
// with an unclassified log entry.
func (a *Arbiter) Decide(ctx context.Context, rec *artist.Record, suppress taxonomy.Code) (*Decision, error) {
	if suppress != "" && !taxonomy.IsValid(suppress) {
		return nil, &taxonomy.UnknownCodeError{Code: string(suppress)}
	}

	d := &Decision{ArtistID: rec.ID, Suppressed: suppress}
	d.enter(StateNoStrategyRun)
	bioRunes := rec.BiographyRunes()

	for _, s := range a.strategies {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if skip := a.skipReason(s.Kind(), bioRunes); skip != "" {
			d.Skipped = append(d.Skipped, fmt.Sprintf("%s skipped: %s", s.Kind(), skip))
			continue
		}

		res, err := s.Run(ctx, rec)
		if err != nil {
			var ue *strategy.UnavailableError
			if !errors.As(err, &ue) {
				ue = &strategy.UnavailableError{Kind: s.Kind(), Reason: "unexpected error", Cause: err}
			}
			a.logger.Debug("strategy unavailable",
				slog.String("artist_id", rec.ID),
				slog.String("strategy", string(s.Kind())),
				slog.String("error", ue.Error()))
			d.Failures = append(d.Failures, Failure{Kind: s.Kind(), Reason: ue.Error()})
			continue
		}
		if _, err := res.TopCode(); err != nil {
			d.Failures = append(d.Failures, Failure{Kind: s.Kind(), Reason: err.Error()})
			continue
		}

		d.Results = append(d.Results, res)
		switch len(d.Results) {
		case 1:
			d.enter(StatePartial)
		case 2:
			d.enter(StateMerged)
		}
	}

	if len(d.Results) == 0 {
		a.finalizeUnclassified(d)
		return d, ErrInsufficientEvidence
	}

	attributed := strategy.IsAttribution(rec.Name)
	for _, r := range d.Results {
		attributed = attributed || r.Attribution
	}

	if err := a.merge(d, attributed); err != nil {
		return nil, err
	}
	a.finalize(d)
	return d, nil
}

func (a *Arbiter) skipReason(k strategy.Kind, bioRunes int) string {
	switch k {
	case strategy.KindExternal:
		if ext, ok := a.external(); ok && !ext.Configured() {
			return "no collaborator configured"
		}
		if bioRunes < a.opts.RichBioRunes {
			return fmt.Sprintf("biography has %d runes, below %d", bioRunes, a.opts.RichBioRunes)
		}
	case strategy.KindBiography:
		if bioRunes == 0 {
			return "no biography text"
		}
	}
	return ""
}

func (a *Arbiter) external() (*strategy.External, bool) {
	for _, s := range a.strategies {
		if ext, ok := s.(*strategy.External); ok {
			return ext, true
		}
	}
	return nil, false
}

func methodFor(results []strategy.Result) profile.Method {
	if len(results) > 1 {
		return profile.MethodMerged
	}
	switch results[0].Kind {
	case strategy.KindExternal:
		return profile.MethodExternalOnly
	case strategy.KindBiography:
		return profile.MethodBiographyOnly
	}
	return profile.MethodMetadataOnly
}

func (a *Arbiter) finalize(d *Decision) {
	now := a.now().UTC()
	kinds := make([]string, 0, len(d.Results))
	for _, r := range d.Results {
		kinds = append(kinds, string(r.Kind))
	}
	d.Draft = &profile.Draft{
		ArtistID:   d.ArtistID,
		Dimensions: d.Vector,
		Candidates: d.Candidates,
		Meta: profile.Meta{
			Method:         d.Method,
			AnalysisDate:   now,
			Reasoning:      d.Reasoning,
			Sources:        d.Sources,
			SuppressedType: d.Suppressed,
		},
		Log: profile.MappingLogEntry{
			ID:             uuid.New().String(),
			ArtistID:       d.ArtistID,
			Method:         d.Method,
			Code:           d.Top,
			Confidence:     d.Confidence,
			Reasoning:      d.Reasoning,
			Strategies:     kinds,
			SuppressedType: d.Suppressed,
			CreatedAt:      now,
		},
	}
	d.enter(StateFinalized)
}

func (d *Decision) enter(s State) {
	d.State = s
	d.Path = append(d.Path, s)
}

func (a *Arbiter) finalizeUnclassified(d *Decision) {
	d.Method = profile.MethodUnclassified
	d.Vector = axis.NewNeutral()
	d.Reasoning = joinReasoning(nil, d.Failures, d.Skipped, "no strategy produced a usable result")
	d.Sources = []string{}
	d.Candidates = []profile.TypeWeight{}
	a.finalize(d)
}

func joinReasoning(results []strategy.Result, failures []Failure, skipped []string, summary string) string {
	var parts []string
	for _, r := range results {
		parts = append(parts, r.Reasoning)
	}
	for _, f := range failures {
		parts = append(parts, f.Reason)
	}
	parts = append(parts, skipped...)
	if summary != "" {
		parts = append(parts, summary)
	}
	return strings.Join(parts, "\n")
}
