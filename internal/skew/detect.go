// Package skew watches the population distribution of primary codes and
// nudges over-represented codes back toward the uniform share.
package skew

import (
	"sort"

	"github.com/sydlexius/artpersona/internal/profile"
	"github.com/sydlexius/artpersona/internal/taxonomy"
)

// DefaultThresholdRatio flags a code holding more than twice its uniform
// share.
const DefaultThresholdRatio = 2.0

// Overshare describes one over-represented code.
type Overshare struct {
	Code  taxonomy.Code `json:"code"`
	Count int           `json:"count"`
	Share float64       `json:"share"`
	// Ratio is Share divided by the uniform share 1/16.
	Ratio float64 `json:"ratio"`
}

// Detect returns the codes whose share of snapshot exceeds thresholdRatio
// times the uniform share, most over-represented first. A thresholdRatio of
// zero or less uses DefaultThresholdRatio.
func Detect(snapshot []profile.Member, thresholdRatio float64) []Overshare {
	if thresholdRatio <= 0 {
		thresholdRatio = DefaultThresholdRatio
	}
	counts := countCodes(snapshot)
	total := len(snapshot)
	if total == 0 {
		return nil
	}

	uniform := 1.0 / float64(len(taxonomy.All()))
	var out []Overshare
	for _, code := range taxonomy.All() {
		n := counts[code]
		if n == 0 {
			continue
		}
		share := float64(n) / float64(total)
		ratio := share / uniform
		if ratio > thresholdRatio {
			out = append(out, Overshare{Code: code, Count: n, Share: share, Ratio: ratio})
		}
	}
	// Stable over registry order, so equal ratios keep registry order.
	sort.SliceStable(out, func(i, j int) bool { return out[i].Ratio > out[j].Ratio })
	return out
}

// Share returns the fraction of snapshot assigned to code.
func Share(snapshot []profile.Member, code taxonomy.Code) float64 {
	if len(snapshot) == 0 {
		return 0
	}
	return float64(countCodes(snapshot)[code]) / float64(len(snapshot))
}

func countCodes(snapshot []profile.Member) map[taxonomy.Code]int {
	counts := make(map[taxonomy.Code]int)
	for _, m := range snapshot {
		counts[m.Code]++
	}
	return counts
}
