// Package strategy holds the independent inference methods that propose an
// axis vector and/or a type code for one artist.
package strategy

import (
	"context"
	"fmt"

	"github.com/sydlexius/artpersona/internal/artist"
	"github.com/sydlexius/artpersona/internal/axis"
	"github.com/sydlexius/artpersona/internal/taxonomy"
)

// Kind identifies a strategy.
type Kind string

// Known strategies, in arbiter priority order.
const (
	KindExternal  Kind = "external"
	KindMetadata  Kind = "metadata"
	KindBiography Kind = "biography"
)

// Reliability is the fixed merge weight multiplier for a strategy.
func (k Kind) Reliability() float64 {
	switch k {
	case KindExternal:
		return 1.0
	case KindBiography:
		return 0.9
	case KindMetadata:
		return 0.6
	}
	return 0
}

// CodeOnlyStrength is the lean given to each letter when a strategy reports
// a code without axis scores.
const CodeOnlyStrength = 70

// Result is the tagged output of one strategy. Vector is nil for code-only
// results; Code is empty for vector-only results.
type Result struct {
	Kind        Kind
	Vector      *axis.Vector
	Code        taxonomy.Code
	Alternates  []taxonomy.Code
	Confidence  int
	Reasoning   string
	Sources     []string
	Attribution bool
}

// MergeVector returns the vector this result contributes to a merge.
func (r Result) MergeVector() (axis.Vector, error) {
	if r.Vector != nil {
		return *r.Vector, nil
	}
	return axis.FromCode(r.Code, CodeOnlyStrength)
}

// TopCode returns the code the strategy itself would pick.
func (r Result) TopCode() (taxonomy.Code, error) {
	if r.Code != "" {
		if !taxonomy.IsValid(r.Code) {
			return "", &taxonomy.UnknownCodeError{Code: string(r.Code)}
		}
		return r.Code, nil
	}
	if r.Vector == nil {
		return "", fmt.Errorf("%s result has neither code nor vector", r.Kind)
	}
	return r.Vector.DominantCode()
}

// Strategy is one pluggable inference method.
type Strategy interface {
	Kind() Kind
	// Run returns a result or an *UnavailableError. It never panics on
	// missing data.
	Run(ctx context.Context, rec *artist.Record) (Result, error)
}

// UnavailableError means a strategy could not produce a result: missing
// data, a parse failure or a boundary timeout. It is recovered by the
// arbiter and never reaches the caller.
type UnavailableError struct {
	Kind   Kind
	Reason string
	Cause  error
}

func (e *UnavailableError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("strategy %s unavailable: %s: %v", e.Kind, e.Reason, e.Cause)
	}
	return fmt.Sprintf("strategy %s unavailable: %s", e.Kind, e.Reason)
}

func (e *UnavailableError) Unwrap() error { return e.Cause }

func unavailable(k Kind, reason string, cause error) *UnavailableError {
	return &UnavailableError{Kind: k, Reason: reason, Cause: cause}
}

// AttributionCeiling is the highest confidence any strategy may report for
// an attribution-style record.
const AttributionCeiling = 35

func capConfidence(conf int, attribution bool) int {
	if conf < 0 {
		conf = 0
	}
	if conf > 100 {
		conf = 100
	}
	if attribution && conf > AttributionCeiling {
		return AttributionCeiling
	}
	return conf
}
