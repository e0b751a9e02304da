package axis

import (
	"fmt"
	"math"
	"time"

	"github.com/sydlexius/artpersona/internal/taxonomy"
)

// Delta bounds for keyword-driven adjustments.
const (
	MinDelta = 15
	MaxDelta = 25
)

// Evidence is whatever subset of signals is available for one artist. Zero
// values mean "absent".
type Evidence struct {
	// Name should already have any attribution prefix removed.
	Name        string
	Nationality string
	Era         string
	Medium      string
	BirthYear   int
	DeathYear   int
	BioRunes    int
	KeywordHits map[taxonomy.Letter]int
}

// Score is the scorer's output.
type Score struct {
	Vector   Vector
	Richness float64
	Signals  int
	Fired    []string
}

// Scorer computes axis vectors from evidence using named adjustment rules.
type Scorer struct {
	now func() time.Time
}

// NewScorer creates a Scorer.
func NewScorer() *Scorer {
	return &Scorer{now: time.Now}
}

// Score starts every axis at 50/50 and applies each matching rule as its
// own batch, renormalizing after each one.
func (s *Scorer) Score(ev Evidence) Score {
	out := Score{Vector: NewNeutral()}

	apply := func(rule string, deltas []Delta) {
		out.Vector.Apply(deltas...)
		out.Signals++
		out.Fired = append(out.Fired, rule)
	}

	if rule, deltas, ok := matchKnownArtist(ev.Name); ok {
		apply(rule, deltas)
	}

	if name, deltas, ok := matchNationality(ev.Nationality); ok {
		apply("nationality:"+name, deltas)
	}

	if r, ok := matchEra(ev.Era); ok {
		apply("era:"+r.name, r.deltas)
	}

	if r, ok := matchMedium(ev.Medium); ok {
		apply("medium:"+r.name, r.deltas)
	}

	if rule, deltas := s.lifePattern(ev.BirthYear, ev.DeathYear); rule != "" {
		apply("life:"+rule, deltas)
	}

	if ev.BioRunes > 0 {
		out.Signals++
		out.Fired = append(out.Fired, fmt.Sprintf("biography:%d", ev.BioRunes))
	}

	for _, a := range taxonomy.Axes() {
		first, second := a.Letters()
		net := ev.KeywordHits[first] - ev.KeywordHits[second]
		if net == 0 {
			continue
		}
		letter := first
		if net < 0 {
			letter = second
			net = -net
		}
		apply(fmt.Sprintf("keywords:%c", letter), []Delta{{Letter: letter, Amount: keywordDelta(net)}})
	}

	out.Richness = Richness(out.Signals)
	return out
}

// Richness maps a count of independent signals onto [0,1): 0 with no
// signals, approaching 1 as signals accumulate.
func Richness(signals int) float64 {
	if signals <= 0 {
		return 0
	}
	return 1 - math.Pow(0.6, float64(signals))
}

func keywordDelta(hits int) int {
	d := MinDelta + 2*(hits-1)
	if d > MaxDelta {
		return MaxDelta
	}
	return d
}

func (s *Scorer) lifePattern(born, died int) (string, []Delta) {
	if born <= 0 {
		return "", nil
	}
	if died > 0 && died < born {
		return "", nil
	}
	end := died
	if end == 0 {
		end = s.now().Year()
		// No death year recorded for someone born long ago: lifespan unknown.
		if end-born > 110 {
			end = born
		}
	}
	lifespan := end - born

	switch {
	case died > 0 && lifespan < 40:
		return "short-tragic", []Delta{
			{Letter: taxonomy.Lone, Amount: 15},
			{Letter: taxonomy.Emotional, Amount: 20},
		}
	case lifespan > 70:
		return "long-evolving", []Delta{
			{Letter: taxonomy.Free, Amount: 15},
			{Letter: taxonomy.Meaning, Amount: 15},
		}
	case born < 1800:
		return "pre-modern", []Delta{
			{Letter: taxonomy.Structured, Amount: 15},
		}
	}
	return "", nil
}
