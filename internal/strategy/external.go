package strategy

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sydlexius/artpersona/internal/artist"
	"github.com/sydlexius/artpersona/internal/axis"
	"github.com/sydlexius/artpersona/internal/taxonomy"
)

// DefaultExternalTimeout bounds one collaborator call.
const DefaultExternalTimeout = 20 * time.Second

// External confidence handling.
const (
	externalDefaultConfidence = 70
	externalMaxConfidence     = 90
	maxReasoningRunes         = 600
)

// Request is what the collaborator sees about an artist.
type Request struct {
	ArtistID    string
	Name        string
	Nationality string
	Era         string
	Medium      string
	BirthYear   int
	DeathYear   int
	Biography   string
	Language    string
	// Attribution is the full record name when Name was extracted from an
	// attribution-style name such as "Workshop of ...".
	Attribution string
	// Taxonomy is a plain-text description of the 16 codes and four axes.
	Taxonomy string
}

// Collaborator is an opaque inference service that answers with free text
// naming a primary code, optional secondary and tertiary codes, and a
// reasoning paragraph.
type Collaborator interface {
	Infer(ctx context.Context, req Request) (string, error)
}

// External delegates to a Collaborator and parses its answer strictly.
type External struct {
	collab  Collaborator
	timeout time.Duration
}

// NewExternal creates the external inference strategy. A nil collaborator
// makes the strategy permanently unavailable.
func NewExternal(collab Collaborator, timeout time.Duration) *External {
	if timeout <= 0 {
		timeout = DefaultExternalTimeout
	}
	return &External{collab: collab, timeout: timeout}
}

// Kind implements Strategy.
func (e *External) Kind() Kind { return KindExternal }

// Configured reports whether a collaborator is attached.
func (e *External) Configured() bool { return e != nil && e.collab != nil }

// Run implements Strategy. Every failure mode of the boundary call becomes an
// *UnavailableError.
func (e *External) Run(ctx context.Context, rec *artist.Record) (Result, error) {
	if !e.Configured() {
		return Result{}, unavailable(KindExternal, "no collaborator configured", nil)
	}
	if rec == nil {
		return Result{}, unavailable(KindExternal, "no record", nil)
	}

	attributed := IsAttribution(rec.Name)
	req := Request{
		ArtistID:    rec.ID,
		Name:        UnderlyingName(rec.Name),
		Nationality: rec.Nationality,
		Era:         rec.Era,
		Medium:      rec.Medium,
		BirthYear:   rec.BirthYear,
		DeathYear:   rec.DeathYear,
		Taxonomy:    taxonomy.Summary(),
	}
	if attributed {
		req.Attribution = strings.TrimSpace(rec.Name)
	}
	if bio, ok := rec.PrimaryBiography(); ok {
		req.Biography = strings.TrimSpace(bio.Text)
		req.Language = bio.Lang
	}

	text, err := e.infer(ctx, req)
	if err != nil {
		return Result{}, err
	}

	parsed, err := ParseResponse(text)
	if err != nil {
		return Result{}, unavailable(KindExternal, "unparseable response", err)
	}

	res := Result{
		Kind:        KindExternal,
		Vector:      parsed.Vector,
		Code:        parsed.Primary,
		Alternates:  parsed.Alternates,
		Confidence:  capConfidence(parsed.Confidence, attributed),
		Reasoning:   "external: " + parsed.Reasoning,
		Sources:     []string{"external"},
		Attribution: attributed,
	}
	if parsed.Reasoning == "" {
		res.Reasoning = "external: primary " + string(parsed.Primary)
	}
	return res, nil
}

type inferResult struct {
	text string
	err  error
}

// infer bounds the collaborator call by the strategy timeout even when the
// collaborator ignores its context. A late answer is dropped.
func (e *External) infer(ctx context.Context, req Request) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	done := make(chan inferResult, 1)
	go func() {
		text, err := e.collab.Infer(callCtx, req)
		done <- inferResult{text: text, err: err}
	}()

	select {
	case r := <-done:
		if r.err == nil {
			return r.text, nil
		}
		if errors.Is(r.err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return "", unavailable(KindExternal, fmt.Sprintf("timed out after %s", e.timeout), r.err)
		}
		return "", unavailable(KindExternal, "collaborator call failed", r.err)
	case <-callCtx.Done():
		err := callCtx.Err()
		if errors.Is(err, context.DeadlineExceeded) {
			return "", unavailable(KindExternal, fmt.Sprintf("timed out after %s", e.timeout), err)
		}
		return "", unavailable(KindExternal, "call canceled", err)
	}
}

// Parsed is the validated content of a collaborator answer.
type Parsed struct {
	Primary    taxonomy.Code
	Alternates []taxonomy.Code
	Confidence int
	Vector     *axis.Vector
	Reasoning  string
	Discarded  []string
}

var (
	codeLineRe   = regexp.MustCompile(`(?im)^[\s*#>\-]*(primary|secondary|tertiary)(?:\s+(?:type|code|apt))?[\s*]*[:=][\s*]*([A-Za-z]{4})\b`)
	confidenceRe = regexp.MustCompile(`(?im)^[\s*#>\-]*confidence[\s*]*[:=][\s*]*(\d{1,3}(?:\.\d+)?)`)
	axisLineRe   = regexp.MustCompile(`(?im)^[\s*#>\-]*(L/S|A/R|E/M|F/C)[\s*]*[:=][\s*]*([+-]?\d{1,3})`)
	reasoningRe  = regexp.MustCompile(`(?is)(?:^|\n)[\s*#>\-]*reasoning[\s*]*[:=][\s*]*(.+)`)
	codeShapeRe  = regexp.MustCompile(`^[LS][AR][EM][FC]$`)
)

// ParseResponse extracts codes, confidence, axis scores and reasoning from a
// collaborator answer. Codes that do not match the taxonomy pattern or fail
// registry validation are discarded; a missing valid primary is an error.
func ParseResponse(text string) (Parsed, error) {
	out := Parsed{Confidence: externalDefaultConfidence}
	if strings.TrimSpace(text) == "" {
		return out, errors.New("empty response")
	}

	seen := make(map[taxonomy.Code]bool)
	for _, m := range codeLineRe.FindAllStringSubmatch(text, -1) {
		field := strings.ToLower(m[1])
		raw := strings.ToUpper(m[2])
		if !codeShapeRe.MatchString(raw) {
			out.Discarded = append(out.Discarded, field+":"+raw)
			continue
		}
		code, err := taxonomy.Parse(raw)
		if err != nil || (seen[code] && field != "primary") {
			out.Discarded = append(out.Discarded, field+":"+raw)
			continue
		}
		switch {
		case field == "primary" && out.Primary == "":
			out.Primary = code
		case field != "primary":
			out.Alternates = append(out.Alternates, code)
		default:
			out.Discarded = append(out.Discarded, field+":"+raw)
			continue
		}
		seen[code] = true
	}
	if out.Primary == "" {
		return out, errors.New("no valid primary code")
	}
	// An alternate listed before the primary may duplicate it.
	alts := out.Alternates[:0]
	for _, c := range out.Alternates {
		if c != out.Primary {
			alts = append(alts, c)
		}
	}
	out.Alternates = alts
	if len(out.Alternates) > 2 {
		out.Alternates = out.Alternates[:2]
	}

	if m := confidenceRe.FindStringSubmatch(text); m != nil {
		if f, err := strconv.ParseFloat(m[1], 64); err == nil {
			// "0.8" is a fraction, "80" a percentage.
			if strings.Contains(m[1], ".") && f <= 1 {
				f *= 100
			}
			out.Confidence = min(max(int(math.Round(f)), 0), externalMaxConfidence)
		}
	}

	if axes := axisLineRe.FindAllStringSubmatch(text, -1); len(axes) > 0 {
		v, err := axis.FromCode(out.Primary, CodeOnlyStrength)
		if err != nil {
			return out, err
		}
		for _, m := range axes {
			n, err := strconv.Atoi(m[2])
			if err != nil {
				continue
			}
			n = min(max(n, -100), 100)
			// -100 is full lean to the first letter, +100 to the second.
			v.Set(taxonomy.Letter(strings.ToUpper(m[1])[0]), 50-n/2)
		}
		out.Vector = &v
	}

	if m := reasoningRe.FindStringSubmatch(text); m != nil {
		out.Reasoning = truncateRunes(strings.TrimSpace(m[1]), maxReasoningRunes)
	}
	return out, nil
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "…"
}
