package strategy

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/sydlexius/artpersona/internal/artist"
	"github.com/sydlexius/artpersona/internal/axis"
	"github.com/sydlexius/artpersona/internal/taxonomy"
)

// Biography confidence shaping.
const (
	bioBase          = 25
	bioLengthWeight  = 45
	bioHitWeight     = 25
	bioFullRunes     = 2000
	bioFullHits      = 12
	bioCap           = 85
	bioSparseRunes   = 100
	bioSparseCeiling = 60
)

// keywordTable maps each letter to its keyword family. Entries containing
// non-ASCII runes match as substrings (Hangul has no reliable word
// boundaries once particles attach); ASCII entries match whole tokens.
var keywordTable = map[taxonomy.Letter][]string{
	taxonomy.Lone: {
		"solitary", "solitude", "isolation", "isolated", "alone", "lonely", "loneliness",
		"recluse", "reclusive", "withdrawn", "introspective", "introspection", "hermit",
		"고독", "은둔", "고립", "내성적", "홀로",
	},
	taxonomy.Shared: {
		"collaboration", "collaborated", "collaborative", "collective", "friendship",
		"community", "salon", "salons", "social", "sociable", "patrons", "taught",
		"students", "mentor", "gatherings",
		"협업", "교류", "공동체", "사교", "동료",
	},
	taxonomy.Abstract: {
		"abstract", "abstraction", "color", "colour", "colors", "colours", "symbolic",
		"imagination", "imaginative", "dream", "dreams", "visionary", "distorted",
		"swirling", "spiritual",
		"추상", "상징", "상상", "환상", "색채",
	},
	taxonomy.Realistic: {
		"realistic", "realism", "naturalistic", "precise", "precision", "detailed",
		"portrait", "portraits", "observation", "likeness", "lifelike", "anatomy",
		"perspective", "documentary",
		"사실적", "사실주의", "정밀", "묘사", "초상",
	},
	taxonomy.Emotional: {
		"emotion", "emotional", "emotions", "passion", "passionate", "turmoil", "anguish",
		"intense", "intensity", "feeling", "feelings", "melancholy", "despair",
		"torment", "tormented", "suffering", "grief",
		"감정", "열정", "격정", "고뇌", "슬픔",
	},
	taxonomy.Meaning: {
		"meaning", "philosophy", "philosophical", "theory", "theoretical", "intellectual",
		"conceptual", "scholarly", "analysis", "analytical", "knowledge", "allegory",
		"allegorical", "treatise",
		"철학", "사상", "이론", "지적", "의미",
	},
	taxonomy.Free: {
		"freedom", "spontaneous", "spontaneity", "experimental", "experimented", "bold",
		"rebellious", "rebel", "unconventional", "improvised", "restless", "wandering",
		"impulsive",
		"자유", "실험", "즉흥", "반항", "방랑",
	},
	taxonomy.Structured: {
		"structured", "structure", "discipline", "disciplined", "methodical", "systematic",
		"academic", "academy", "classical", "orderly", "rigorous", "geometric",
		"traditional", "formal",
		"체계", "규율", "전통", "고전", "질서",
	},
}

// normalizeText applies NFC composition and Unicode case folding so that
// decomposed Hangul and mixed-case Latin text match the tables. A Caser is
// stateful, so each call gets its own.
func normalizeText(s string) string {
	return cases.Fold().String(norm.NFC.String(s))
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// countKeywordHits returns per-letter hit counts and the matched keywords.
func countKeywordHits(text string) (map[taxonomy.Letter]int, []string) {
	folded := normalizeText(text)
	tokens := make(map[string]int)
	for _, tok := range strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		tokens[tok]++
	}

	hits := make(map[taxonomy.Letter]int)
	var matched []string
	for letter, words := range keywordTable {
		for _, kw := range words {
			var n int
			if isASCII(kw) {
				n = tokens[kw]
			} else {
				n = strings.Count(folded, normalizeText(kw))
			}
			if n > 0 {
				hits[letter] += n
				matched = append(matched, kw)
			}
		}
	}
	sort.Strings(matched)
	return hits, matched
}

// Biography scans free-text biographies for keyword families.
type Biography struct {
	scorer *axis.Scorer
}

// NewBiography creates the biography text analyzer.
func NewBiography(scorer *axis.Scorer) *Biography {
	return &Biography{scorer: scorer}
}

// Kind implements Strategy.
func (b *Biography) Kind() Kind { return KindBiography }

// Run implements Strategy. The primary-language biography is used when it
// has text; otherwise the first non-empty fallback language.
func (b *Biography) Run(_ context.Context, rec *artist.Record) (Result, error) {
	if rec == nil {
		return Result{}, unavailable(KindBiography, "no record", nil)
	}
	bio, ok := rec.PrimaryBiography()
	if !ok {
		return Result{}, unavailable(KindBiography, "no biography text", nil)
	}
	text := strings.TrimSpace(bio.Text)
	runes := utf8.RuneCountInString(text)

	hits, matched := countKeywordHits(text)
	total := 0
	for _, n := range hits {
		total += n
	}
	if total == 0 {
		return Result{}, unavailable(KindBiography, fmt.Sprintf("no keyword hits in %d runes of %q text", runes, bio.Lang), nil)
	}

	score := b.scorer.Score(axis.Evidence{BioRunes: runes, KeywordHits: hits})
	code, err := score.Vector.DominantCode()
	if err != nil {
		return Result{}, unavailable(KindBiography, "dominant letters do not form a registered code", err)
	}

	attributed := IsAttribution(rec.Name)
	conf := capConfidence(biographyConfidence(runes, total), attributed)

	reasoning := fmt.Sprintf("biography (%s, %d runes, %d hits): %s",
		bio.Lang, runes, total, strings.Join(matched, ", "))
	if attributed {
		reasoning += fmt.Sprintf("; attribution caps confidence at %d", AttributionCeiling)
	}

	v := score.Vector
	return Result{
		Kind:        KindBiography,
		Vector:      &v,
		Code:        code,
		Confidence:  conf,
		Reasoning:   reasoning,
		Sources:     []string{"biography:" + bio.Lang},
		Attribution: attributed,
	}, nil
}

// biographyConfidence grows with text length and keyword density. Sparse
// text never exceeds the medium band.
func biographyConfidence(runes, hits int) int {
	length := math.Min(1, float64(runes)/bioFullRunes)
	density := math.Min(1, float64(hits)/bioFullHits)
	conf := int(math.Round(bioBase + bioLengthWeight*length + bioHitWeight*density))
	if conf > bioCap {
		conf = bioCap
	}
	if runes < bioSparseRunes && conf > bioSparseCeiling {
		conf = bioSparseCeiling
	}
	return conf
}
