package arbiter

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/sydlexius/artpersona/internal/axis"
	"github.com/sydlexius/artpersona/internal/profile"
	"github.com/sydlexius/artpersona/internal/strategy"
	"github.com/sydlexius/artpersona/internal/taxonomy"
)

// ranked is a code with its support in the merged vector.
type ranked struct {
	code    taxonomy.Code
	support float64
}

// alternative is a code that may replace a suppressed top-1.
type alternative struct {
	code       taxonomy.Code
	confidence int
	source     string
}

func (a *Arbiter) merge(d *Decision, attributed bool) error {
	vs := make([]axis.Vector, 0, len(d.Results))
	ws := make([]float64, 0, len(d.Results))
	codes := make([]taxonomy.Code, 0, len(d.Results))
	maxConf := 0
	for _, r := range d.Results {
		v, err := r.MergeVector()
		if err != nil {
			return fmt.Errorf("merge vector for %s: %w", r.Kind, err)
		}
		code, err := r.TopCode()
		if err != nil {
			return fmt.Errorf("top code for %s: %w", r.Kind, err)
		}
		vs = append(vs, v)
		ws = append(ws, float64(r.Confidence)*r.Kind.Reliability())
		codes = append(codes, code)
		maxConf = max(maxConf, r.Confidence)
	}
	d.Vector = axis.WeightedAverage(vs, ws)

	top, err := d.Vector.DominantCode()
	fallback := ""
	if err != nil {
		top = bestStrategyCode(d.Results, codes)
		fallback = fmt.Sprintf("merged letters invalid (%v), using highest-confidence strategy code", err)
	}

	bonus := 0
	agree := 0
	for _, c := range codes {
		if c == top {
			agree++
		}
	}
	if agree >= 2 {
		bonus += AgreementBonus
	}
	if disagree(codes) {
		bonus -= DisagreementPenalty
	}
	conf := clampConfidence(maxConf+bonus, attributed)

	ranking := rankCodes(d.Vector)
	d.Top = top
	d.Confidence = conf
	d.Method = methodFor(d.Results)

	summary := fmt.Sprintf("%s: %d strategies, top %s, max confidence %d, adjustment %+d, final %d",
		d.Method, len(d.Results), top, maxConf, bonus, conf)
	if fallback != "" {
		summary = fallback + "; " + summary
	}
	if attributed {
		summary += fmt.Sprintf("; attribution record capped at %d", strategy.AttributionCeiling)
	}

	if d.Suppressed != "" && top == d.Suppressed {
		alt, ok := a.pickAlternative(d, codes, ranking, attributed)
		if ok {
			summary += fmt.Sprintf("; suppressed %s, promoted %s from %s at %d", d.Suppressed, alt.code, alt.source, alt.confidence)
			d.Top = alt.code
			d.Confidence = clampConfidence(alt.confidence, attributed)
		} else {
			summary += fmt.Sprintf("; suppressed %s kept: no alternative reached %d", d.Suppressed, a.minAlternative(attributed))
		}
	}

	d.Uncertain = d.Vector.UncertainAxes(UncertainMargin)
	if len(d.Uncertain) > 0 {
		parts := make([]string, len(d.Uncertain))
		for i, ax := range d.Uncertain {
			parts[i] = fmt.Sprintf("%s (margin %d)", ax, d.Vector.Margin(ax))
		}
		summary += "; uncertain axes: " + strings.Join(parts, ", ")
	}

	d.Candidates = buildCandidates(d.Top, d.Confidence, ranking, d.Suppressed, attributed)
	d.Sources = collectSources(d.Results)
	d.Reasoning = joinReasoning(d.Results, d.Failures, d.Skipped, summary)
	return nil
}

// bestStrategyCode returns the highest-confidence strategy code; the earliest
// strategy wins ties.
func bestStrategyCode(results []strategy.Result, codes []taxonomy.Code) taxonomy.Code {
	best := -1
	for i, r := range results {
		if best < 0 || r.Confidence > results[best].Confidence {
			best = i
		}
	}
	return codes[best]
}

func disagree(codes []taxonomy.Code) bool {
	for i := range codes {
		for j := i + 1; j < len(codes); j++ {
			if taxonomy.Distance(codes[i], codes[j]) >= DisagreementAxes {
				return true
			}
		}
	}
	return false
}

func clampConfidence(c int, attributed bool) int {
	c = min(max(c, 0), MaxConfidence)
	if attributed {
		c = min(c, strategy.AttributionCeiling)
	}
	return c
}

// rankCodes orders all registered codes by support in v, registry order
// breaking ties.
func rankCodes(v axis.Vector) []ranked {
	all := taxonomy.All()
	out := make([]ranked, len(all))
	for i, c := range all {
		out[i] = ranked{code: c, support: v.Support(c)}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].support > out[j].support })
	return out
}

func supportOf(ranking []ranked, code taxonomy.Code) float64 {
	for _, r := range ranking {
		if r.code == code {
			return r.support
		}
	}
	return 0
}

func (a *Arbiter) minAlternative(attributed bool) int {
	if attributed {
		return min(a.opts.MinAlternativeConfidence, strategy.AttributionCeiling)
	}
	return a.opts.MinAlternativeConfidence
}

// pickAlternative chooses the best replacement for a suppressed top-1 among
// strategy codes, collaborator alternates and the merged-vector runner-up.
func (a *Arbiter) pickAlternative(d *Decision, codes []taxonomy.Code, ranking []ranked, attributed bool) (alternative, bool) {
	var alts []alternative
	for i, r := range d.Results {
		alts = append(alts, alternative{code: codes[i], confidence: r.Confidence, source: string(r.Kind)})
		for rank, c := range r.Alternates {
			// Secondary and tertiary answers carry less weight than the primary.
			alts = append(alts, alternative{
				code:       c,
				confidence: r.Confidence * (8 - rank) / 10,
				source:     string(r.Kind) + " alternate",
			})
		}
	}
	topSupport := supportOf(ranking, d.Suppressed)
	for _, rc := range ranking {
		if rc.code == d.Suppressed || topSupport == 0 {
			continue
		}
		alts = append(alts, alternative{
			code:       rc.code,
			confidence: int(math.Round(float64(d.Confidence) * rc.support / topSupport)),
			source:     "merged vector runner-up",
		})
		break
	}

	threshold := a.minAlternative(attributed)
	best := alternative{}
	found := false
	for _, alt := range alts {
		if alt.code == d.Suppressed || !taxonomy.IsValid(alt.code) || alt.confidence < threshold {
			continue
		}
		if !found || alt.confidence > best.confidence {
			best = alt
			found = true
		}
	}
	return best, found
}

// buildCandidates returns top plus the next best codes by support. Weights
// are support normalized over the chosen codes and floored to two decimals,
// assigned in descending order.
func buildCandidates(top taxonomy.Code, conf int, ranking []ranked, suppressed taxonomy.Code, attributed bool) []profile.TypeWeight {
	chosen := []ranked{{code: top, support: supportOf(ranking, top)}}
	for _, r := range ranking {
		if len(chosen) == candidateCount {
			break
		}
		if r.code == top || (suppressed != "" && r.code == suppressed && top != suppressed) {
			continue
		}
		chosen = append(chosen, r)
	}

	total := 0.0
	for _, c := range chosen {
		total += c.support
	}
	weights := make([]float64, len(chosen))
	for i, c := range chosen {
		if total > 0 {
			weights[i] = math.Floor(c.support/total*100) / 100
		}
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(weights)))

	topSupport := chosen[0].support
	out := make([]profile.TypeWeight, len(chosen))
	for i, c := range chosen {
		cc := conf
		if i > 0 && topSupport > 0 {
			cc = min(conf, int(math.Round(float64(conf)*c.support/topSupport)))
		}
		out[i] = profile.TypeWeight{
			Type:       c.code,
			Confidence: clampConfidence(cc, attributed),
			Weight:     weights[i],
		}
	}
	return out
}

func collectSources(results []strategy.Result) []string {
	seen := make(map[string]bool)
	out := []string{}
	for _, r := range results {
		for _, s := range r.Sources {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	return out
}
