package strategy

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/sydlexius/artpersona/internal/artist"
	"github.com/sydlexius/artpersona/internal/axis"
)

// Metadata confidence band.
const (
	metadataBase   = 30
	metadataSpread = 15
)

// Metadata scores structured fields only. It never reads biography text.
type Metadata struct {
	scorer *axis.Scorer
}

// NewMetadata creates the metadata rule engine.
func NewMetadata(scorer *axis.Scorer) *Metadata {
	return &Metadata{scorer: scorer}
}

// Kind implements Strategy.
func (m *Metadata) Kind() Kind { return KindMetadata }

// Run implements Strategy. Any record with a name produces a result.
func (m *Metadata) Run(_ context.Context, rec *artist.Record) (Result, error) {
	if rec == nil || strings.TrimSpace(rec.Name) == "" {
		return Result{}, unavailable(KindMetadata, "record has no name", nil)
	}

	score := m.scorer.Score(axis.Evidence{
		Name:        UnderlyingName(rec.Name),
		Nationality: rec.Nationality,
		Era:         rec.Era,
		Medium:      rec.Medium,
		BirthYear:   rec.BirthYear,
		DeathYear:   rec.DeathYear,
	})

	marker, attributed := AttributionMarker(rec.Name)
	conf := metadataBase + int(math.Round(metadataSpread*score.Richness))
	conf = capConfidence(conf, attributed)

	// Tied axes lean one point toward a pole picked from the name.
	v := score.Vector
	v.BreakTies(rec.Name)
	code, err := v.DominantCode()
	if err != nil {
		return Result{}, unavailable(KindMetadata, "dominant letters do not form a registered code", err)
	}

	var sources []string
	if rec.Nationality != "" {
		sources = append(sources, "nationality")
	}
	if rec.Era != "" {
		sources = append(sources, "era")
	}
	if rec.BirthYear > 0 {
		sources = append(sources, "birth_year")
	}
	if rec.DeathYear > 0 {
		sources = append(sources, "death_year")
	}
	if rec.Medium != "" {
		sources = append(sources, "medium")
	}
	sources = append(sources, "name")

	reasoning := "metadata: no structured signals, neutral vector"
	if len(score.Fired) > 0 {
		reasoning = "metadata: " + strings.Join(score.Fired, ", ")
	}
	if attributed {
		reasoning += fmt.Sprintf("; attribution marker %q caps confidence at %d", marker, AttributionCeiling)
	}

	return Result{
		Kind:        KindMetadata,
		Vector:      &v,
		Code:        code,
		Confidence:  conf,
		Reasoning:   reasoning,
		Sources:     sources,
		Attribution: attributed,
	}, nil
}
