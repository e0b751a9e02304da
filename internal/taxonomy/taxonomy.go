package taxonomy

import (
	"fmt"
	"strings"
)

// Code is a four-letter Art Personality Type code. Only the 16 codes in the
// registry are valid; a Code value obtained any other way must go through
// Parse or IsValid before it is trusted.
type Code string

// The 16 registered type codes.
const (
	LAEF Code = "LAEF"
	LAEC Code = "LAEC"
	LAMF Code = "LAMF"
	LAMC Code = "LAMC"
	LREF Code = "LREF"
	LREC Code = "LREC"
	LRMF Code = "LRMF"
	LRMC Code = "LRMC"
	SAEF Code = "SAEF"
	SAEC Code = "SAEC"
	SAMF Code = "SAMF"
	SAMC Code = "SAMC"
	SREF Code = "SREF"
	SREC Code = "SREC"
	SRMF Code = "SRMF"
	SRMC Code = "SRMC"
)

// Letter is one pole of an axis.
type Letter byte

// Axis letters.
const (
	Lone       Letter = 'L'
	Shared     Letter = 'S'
	Abstract   Letter = 'A'
	Realistic  Letter = 'R'
	Emotional  Letter = 'E'
	Meaning    Letter = 'M'
	Free       Letter = 'F'
	Structured Letter = 'C'
)

// Axis identifies one of the four bipolar dimensions.
type Axis int

// The four axes in code position order.
const (
	AxisLS Axis = iota
	AxisAR
	AxisEM
	AxisFC
)

// NumAxes is the number of axes in a code.
const NumAxes = 4

var axisLetters = [NumAxes][2]Letter{
	{Lone, Shared},
	{Abstract, Realistic},
	{Emotional, Meaning},
	{Free, Structured},
}

var axisNames = [NumAxes]string{"L/S", "A/R", "E/M", "F/C"}

// Letters returns the two poles of the axis, first pole first.
func (a Axis) Letters() (Letter, Letter) {
	return axisLetters[a][0], axisLetters[a][1]
}

// String returns the axis label, e.g. "L/S".
func (a Axis) String() string {
	if a < 0 || a >= NumAxes {
		return fmt.Sprintf("Axis(%d)", int(a))
	}
	return axisNames[a]
}

// Axes returns all four axes in code position order.
func Axes() []Axis {
	return []Axis{AxisLS, AxisAR, AxisEM, AxisFC}
}

// AxisOf returns the axis a letter belongs to and whether the letter is the
// first pole of that axis.
func AxisOf(l Letter) (axis Axis, first bool, ok bool) {
	for i, pair := range axisLetters {
		switch l {
		case pair[0]:
			return Axis(i), true, true
		case pair[1]:
			return Axis(i), false, true
		}
	}
	return 0, false, false
}

// Opposite returns the other pole of the letter's axis.
func Opposite(l Letter) (Letter, bool) {
	axis, first, ok := AxisOf(l)
	if !ok {
		return 0, false
	}
	a, b := axis.Letters()
	if first {
		return b, true
	}
	return a, true
}

// Entry describes a registered type.
type Entry struct {
	Code        Code            `json:"code"`
	Title       string          `json:"title"`
	Animal      string          `json:"animal"`
	AxisLetters [NumAxes]Letter `json:"-"`
}

// registry is the closed set of types. It is never mutated.
var registry = map[Code]Entry{
	LAEF: {Code: LAEF, Title: "Dreamy Wanderer", Animal: "fox"},
	LAEC: {Code: LAEC, Title: "Emotional Curator", Animal: "cat"},
	LAMF: {Code: LAMF, Title: "Intuitive Explorer", Animal: "owl"},
	LAMC: {Code: LAMC, Title: "Philosophical Collector", Animal: "turtle"},
	LREF: {Code: LREF, Title: "Solitary Observer", Animal: "chameleon"},
	LREC: {Code: LREC, Title: "Delicate Connoisseur", Animal: "hedgehog"},
	LRMF: {Code: LRMF, Title: "Digital Explorer", Animal: "octopus"},
	LRMC: {Code: LRMC, Title: "Scholarly Researcher", Animal: "beaver"},
	SAEF: {Code: SAEF, Title: "Emotion Sharer", Animal: "butterfly"},
	SAEC: {Code: SAEC, Title: "Art Networker", Animal: "penguin"},
	SAMF: {Code: SAMF, Title: "Inspiration Evangelist", Animal: "parrot"},
	SAMC: {Code: SAMC, Title: "Cultural Planner", Animal: "deer"},
	SREF: {Code: SREF, Title: "Passionate Viewer", Animal: "dog"},
	SREC: {Code: SREC, Title: "Warm Guide", Animal: "duck"},
	SRMF: {Code: SRMF, Title: "Knowledge Mentor", Animal: "elephant"},
	SRMC: {Code: SRMC, Title: "Systematic Educator", Animal: "eagle"},
}

var ordered = []Code{
	LAEF, LAEC, LAMF, LAMC,
	LREF, LREC, LRMF, LRMC,
	SAEF, SAEC, SAMF, SAMC,
	SREF, SREC, SRMF, SRMC,
}

// UnknownCodeError is returned when a code outside the registry is looked up.
type UnknownCodeError struct {
	Code string
}

func (e *UnknownCodeError) Error() string {
	return fmt.Sprintf("unknown type code %q", e.Code)
}

// IsValid reports whether code is one of the 16 registered codes.
func IsValid(code Code) bool {
	_, ok := registry[code]
	return ok
}

// Describe returns the registry entry for code.
func Describe(code Code) (Entry, error) {
	e, ok := registry[code]
	if !ok {
		return Entry{}, &UnknownCodeError{Code: string(code)}
	}
	s := string(code)
	for i := range NumAxes {
		e.AxisLetters[i] = Letter(s[i])
	}
	return e, nil
}

// All returns the 16 codes in a stable order.
func All() []Code {
	out := make([]Code, len(ordered))
	copy(out, ordered)
	return out
}

// Parse trims and upper-cases s and validates it against the registry.
func Parse(s string) (Code, error) {
	c := Code(strings.ToUpper(strings.TrimSpace(s)))
	if !IsValid(c) {
		return "", &UnknownCodeError{Code: s}
	}
	return c, nil
}

// FromLetters assembles a code from four letters and validates it. Letters
// that do not form one-letter-per-axis in position order are rejected rather
// than reordered.
func FromLetters(letters [NumAxes]Letter) (Code, error) {
	b := make([]byte, NumAxes)
	for i, l := range letters {
		b[i] = byte(l)
	}
	return Parse(string(b))
}

// Letter returns the letter at the given axis position of a valid code.
func (c Code) Letter(a Axis) Letter {
	if len(c) != NumAxes || a < 0 || a >= NumAxes {
		return 0
	}
	return Letter(c[a])
}

// Distance returns the number of axes on which two codes differ.
func Distance(a, b Code) int {
	if len(a) != NumAxes || len(b) != NumAxes {
		return NumAxes
	}
	n := 0
	for i := range NumAxes {
		if a[i] != b[i] {
			n++
		}
	}
	return n
}

// Summary renders the registry as a compact multi-line description, one type
// per line, suitable for inclusion in an inference prompt.
func Summary() string {
	var sb strings.Builder
	for _, a := range Axes() {
		first, second := a.Letters()
		fmt.Fprintf(&sb, "Axis %s: %c (%s) vs %c (%s)\n", a, first, letterMeaning[first], second, letterMeaning[second])
	}
	for _, c := range ordered {
		e := registry[c]
		fmt.Fprintf(&sb, "%s: %s (%s)\n", c, e.Title, e.Animal)
	}
	return sb.String()
}

var letterMeaning = map[Letter]string{
	Lone:       "solitary viewing",
	Shared:     "shared viewing",
	Abstract:   "abstract",
	Realistic:  "representational",
	Emotional:  "emotional",
	Meaning:    "meaning-driven",
	Free:       "free interpretation",
	Structured: "structured understanding",
}
