package inference

import (
	"fmt"
	"strings"

	"github.com/sydlexius/artpersona/internal/strategy"
)

const systemPrompt = `You classify visual artists into exactly one of 16 Art Personality Types.
Only the codes listed below exist. Never invent a code and never combine both
letters of one axis.

%s
Answer in this format and nothing else:
Primary: <code>
Secondary: <code>
Tertiary: <code>
Confidence: <0-100>
L/S: <-100 (fully L) to 100 (fully S)>
A/R: <-100 to 100>
E/M: <-100 to 100>
F/C: <-100 to 100>
Reasoning: <one short paragraph>`

// maxBiographyRunes bounds how much biography text is sent.
const maxBiographyRunes = 4000

func buildMessages(req strategy.Request) []chatMessage {
	var b strings.Builder
	fmt.Fprintf(&b, "Artist: %s\n", req.Name)
	if req.Attribution != "" {
		fmt.Fprintf(&b, "Attribution: %s (classify the master named above)\n", req.Attribution)
	}
	if req.Nationality != "" {
		fmt.Fprintf(&b, "Nationality: %s\n", req.Nationality)
	}
	if req.Era != "" {
		fmt.Fprintf(&b, "Era / movement: %s\n", req.Era)
	}
	if req.Medium != "" {
		fmt.Fprintf(&b, "Medium: %s\n", req.Medium)
	}
	if req.BirthYear > 0 || req.DeathYear > 0 {
		fmt.Fprintf(&b, "Life: %s-%s\n", yearOrUnknown(req.BirthYear), yearOrUnknown(req.DeathYear))
	}
	if req.Biography != "" {
		bio := []rune(req.Biography)
		if len(bio) > maxBiographyRunes {
			bio = bio[:maxBiographyRunes]
		}
		lang := req.Language
		if lang == "" {
			lang = "unknown language"
		}
		fmt.Fprintf(&b, "\nBiography (%s):\n%s\n", lang, string(bio))
	}

	return []chatMessage{
		{Role: "system", Content: fmt.Sprintf(systemPrompt, req.Taxonomy)},
		{Role: "user", Content: b.String()},
	}
}

func yearOrUnknown(y int) string {
	if y <= 0 {
		return "?"
	}
	return fmt.Sprintf("%d", y)
}
