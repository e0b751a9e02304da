package profile

import (
	"fmt"
	"time"

	"github.com/sydlexius/artpersona/internal/axis"
	"github.com/sydlexius/artpersona/internal/taxonomy"
)

// Method identifies which strategies produced a profile.
type Method string

// Known methods.
const (
	MethodMetadataOnly  Method = "metadata_only"
	MethodBiographyOnly Method = "biography_only"
	MethodExternalOnly  Method = "external_only"
	MethodMerged        Method = "merged"
	MethodUnclassified  Method = "unclassified"
)

// TypeWeight is one ranked candidate code.
type TypeWeight struct {
	Type       taxonomy.Code `json:"type"`
	Confidence int           `json:"confidence"`
	Weight     float64       `json:"weight"`
}

// Meta carries provenance for a profile.
type Meta struct {
	Method         Method        `json:"method"`
	AnalysisDate   time.Time     `json:"analysis_date"`
	Reasoning      string        `json:"reasoning"`
	Sources        []string      `json:"sources"`
	PreviousType   taxonomy.Code `json:"previous_type,omitempty"`
	SuppressedType taxonomy.Code `json:"suppressed_type,omitempty"`
	InputHash      string        `json:"input_hash,omitempty"`
}

// APTProfile is the persisted classification of one artist. It is overwritten
// on reclassification.
type APTProfile struct {
	ArtistID     string       `json:"artist_id"`
	Dimensions   axis.Vector  `json:"dimensions"`
	PrimaryTypes []TypeWeight `json:"primary_types"`
	Meta         Meta         `json:"meta"`
}

// Primary returns the top-ranked code, or "" for an unclassified profile.
func (p *APTProfile) Primary() taxonomy.Code {
	if p == nil || len(p.PrimaryTypes) == 0 {
		return ""
	}
	return p.PrimaryTypes[0].Type
}

// Confidence returns the top-ranked confidence, 0 when unclassified.
func (p *APTProfile) Confidence() int {
	if p == nil || len(p.PrimaryTypes) == 0 {
		return 0
	}
	return p.PrimaryTypes[0].Confidence
}

// IsUnclassified reports whether p is the unclassified marker.
func (p *APTProfile) IsUnclassified() bool {
	return p != nil && p.Meta.Method == MethodUnclassified
}

// NewUnclassified builds the marker returned when no strategy produced
// usable output. It is never persisted as a profile.
func NewUnclassified(artistID, reasoning string, now time.Time) *APTProfile {
	return &APTProfile{
		ArtistID:     artistID,
		Dimensions:   axis.NewNeutral(),
		PrimaryTypes: []TypeWeight{},
		Meta: Meta{
			Method:       MethodUnclassified,
			AnalysisDate: now.UTC(),
			Reasoning:    reasoning,
			Sources:      []string{},
		},
	}
}

// MappingLogEntry is an immutable record of one classification attempt.
type MappingLogEntry struct {
	ID             string        `json:"id"`
	ArtistID       string        `json:"artist_id"`
	Method         Method        `json:"method"`
	Code           taxonomy.Code `json:"code"`
	Confidence     int           `json:"confidence"`
	Reasoning      string        `json:"reasoning"`
	Strategies     []string      `json:"strategies"`
	SuppressedType taxonomy.Code `json:"suppressed_type,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
}

// Draft is a finalized arbiter decision awaiting validation and persistence.
type Draft struct {
	ArtistID   string
	Dimensions axis.Vector
	Candidates []TypeWeight
	Meta       Meta
	Log        MappingLogEntry
}

// InvalidTaxonomyError reports a draft that cannot be persisted. Nothing is
// written when it is returned.
type InvalidTaxonomyError struct {
	ArtistID string
	Reason   string
	Cause    error
}

func (e *InvalidTaxonomyError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("invalid taxonomy for artist %s: %s: %v", e.ArtistID, e.Reason, e.Cause)
	}
	return fmt.Sprintf("invalid taxonomy for artist %s: %s", e.ArtistID, e.Reason)
}

func (e *InvalidTaxonomyError) Unwrap() error { return e.Cause }

// Validate checks a draft against the registry and the structural rules of
// primary_types: non-empty, every code registered and unique, confidences in
// [0,100], weights in [0,1], descending by weight, summing to at most 1.
func (d *Draft) Validate() error {
	invalid := func(reason string, cause error) error {
		return &InvalidTaxonomyError{ArtistID: d.ArtistID, Reason: reason, Cause: cause}
	}
	if d.ArtistID == "" {
		return invalid("missing artist id", nil)
	}
	if len(d.Candidates) == 0 {
		return invalid("empty primary_types", nil)
	}
	seen := make(map[taxonomy.Code]bool, len(d.Candidates))
	sum := 0.0
	for i, c := range d.Candidates {
		if _, err := taxonomy.Describe(c.Type); err != nil {
			return invalid(fmt.Sprintf("candidate %d", i), err)
		}
		if seen[c.Type] {
			return invalid(fmt.Sprintf("duplicate code %s", c.Type), nil)
		}
		seen[c.Type] = true
		if c.Confidence < 0 || c.Confidence > 100 {
			return invalid(fmt.Sprintf("confidence %d out of range", c.Confidence), nil)
		}
		if c.Weight < 0 || c.Weight > 1 {
			return invalid(fmt.Sprintf("weight %.2f out of range", c.Weight), nil)
		}
		if i > 0 && c.Weight > d.Candidates[i-1].Weight {
			return invalid("primary_types not ordered by descending weight", nil)
		}
		sum += c.Weight
	}
	// Allow for float noise on weights floored to two decimals.
	if sum > 1.0+1e-9 {
		return invalid(fmt.Sprintf("weights sum to %.3f", sum), nil)
	}
	if d.Log.Code != "" && d.Log.Code != d.Candidates[0].Type {
		return invalid("log entry code does not match top candidate", nil)
	}
	return nil
}
