package strategy

import (
	"strings"
	"unicode"
)

// attributionPhrases mark names that describe a workshop, follower or
// copyist rather than an individual hand. Matched anywhere in the name.
var attributionPhrases = []string{
	"attributed to",
	"workshop of",
	"follower of",
	"followers of",
	"circle of",
	"school of",
	"studio of",
	"manner of",
	"style of",
	"copy after",
	"imitator of",
	"pupil of",
	"공방",
	"작자 미상",
	"작자미상",
	"추정",
}

// attributionWords are single-word markers matched as whole tokens.
var attributionWords = map[string]bool{
	"anonymous": true,
	"unknown":   true,
}

// AttributionMarker returns the marker found in name, if any. "After" counts
// only as a leading word ("After Rubens").
func AttributionMarker(name string) (string, bool) {
	lower := strings.ToLower(strings.TrimSpace(name))
	if lower == "" {
		return "", false
	}
	for _, p := range attributionPhrases {
		if strings.Contains(lower, p) {
			return p, true
		}
	}
	tokens := strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(tokens) > 1 && tokens[0] == "after" {
		return "after", true
	}
	for _, tok := range tokens {
		if attributionWords[tok] {
			return tok, true
		}
	}
	return "", false
}

// IsAttribution reports whether name is an attribution-style name.
func IsAttribution(name string) bool {
	_, ok := AttributionMarker(name)
	return ok
}

// attributionPrefixes are leading phrases that name the master a work is
// attributed to. Longer phrases precede the phrases they start with.
var attributionPrefixes = []string{
	"attributed to",
	"workshop of",
	"followers of",
	"follower of",
	"circle of",
	"school of",
	"studio of",
	"manner of",
	"style of",
	"copy after",
	"imitator of",
	"pupil of",
	"after",
}

// attributionSuffixes trail the master's name.
var attributionSuffixes = []string{"공방", "추정"}

// UnderlyingName returns the master's name inside an attribution-style name,
// "Workshop of Jan van Eyck" giving "Jan van Eyck". Other names come back
// trimmed and otherwise unchanged.
func UnderlyingName(name string) string {
	trimmed := strings.TrimSpace(name)
	for _, p := range attributionPrefixes {
		if len(trimmed) > len(p)+1 && strings.EqualFold(trimmed[:len(p)], p) && unicode.IsSpace(rune(trimmed[len(p)])) {
			if rest := strings.TrimSpace(trimmed[len(p):]); rest != "" {
				return rest
			}
		}
	}
	for _, s := range attributionSuffixes {
		if rest, ok := strings.CutSuffix(trimmed, s); ok {
			if rest = strings.TrimSpace(rest); rest != "" {
				return rest
			}
		}
	}
	return trimmed
}
