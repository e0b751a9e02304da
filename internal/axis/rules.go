package axis

import (
	"strings"

	t "github.com/sydlexius/artpersona/internal/taxonomy"
)

// eraRule maps an era or movement label to axis deltas. Rules are matched in
// order, so more specific labels must precede the labels they contain.
type eraRule struct {
	name     string
	keywords []string
	deltas   []Delta
}

var eraRules = []eraRule{
	{"post-impressionism", []string{"post-impressionis", "후기 인상", "후기인상"}, []Delta{
		{Letter: t.Lone, Amount: 15}, {Letter: t.Emotional, Amount: 20}, {Letter: t.Free, Amount: 15},
	}},
	{"neo-impressionism", []string{"neo-impressionis", "pointill", "신인상"}, []Delta{
		{Letter: t.Realistic, Amount: 15}, {Letter: t.Meaning, Amount: 15}, {Letter: t.Structured, Amount: 20},
	}},
	{"abstract-expressionism", []string{"abstract expressionis", "추상표현", "추상 표현"}, []Delta{
		{Letter: t.Lone, Amount: 15}, {Letter: t.Abstract, Amount: 25}, {Letter: t.Emotional, Amount: 20}, {Letter: t.Free, Amount: 20},
	}},
	{"impressionism", []string{"impressionis", "인상주의", "인상파"}, []Delta{
		{Letter: t.Lone, Amount: 15}, {Letter: t.Realistic, Amount: 15}, {Letter: t.Emotional, Amount: 20}, {Letter: t.Free, Amount: 15},
	}},
	{"expressionism", []string{"expressionis", "표현주의"}, []Delta{
		{Letter: t.Lone, Amount: 15}, {Letter: t.Abstract, Amount: 15}, {Letter: t.Emotional, Amount: 25}, {Letter: t.Free, Amount: 20},
	}},
	{"renaissance", []string{"renaissance", "quattrocento", "cinquecento", "르네상스"}, []Delta{
		{Letter: t.Realistic, Amount: 20}, {Letter: t.Meaning, Amount: 15}, {Letter: t.Structured, Amount: 20},
	}},
	{"baroque", []string{"baroque", "rococo", "바로크", "로코코"}, []Delta{
		{Letter: t.Shared, Amount: 15}, {Letter: t.Realistic, Amount: 20}, {Letter: t.Emotional, Amount: 15}, {Letter: t.Structured, Amount: 20},
	}},
	{"neoclassicism", []string{"neoclassic", "신고전"}, []Delta{
		{Letter: t.Realistic, Amount: 20}, {Letter: t.Meaning, Amount: 15}, {Letter: t.Structured, Amount: 25},
	}},
	{"romanticism", []string{"romantic", "낭만주의"}, []Delta{
		{Letter: t.Lone, Amount: 15}, {Letter: t.Emotional, Amount: 20}, {Letter: t.Free, Amount: 15},
	}},
	{"realism", []string{"realism", "realist", "사실주의"}, []Delta{
		{Letter: t.Realistic, Amount: 25}, {Letter: t.Meaning, Amount: 15}, {Letter: t.Structured, Amount: 15},
	}},
	{"academic", []string{"academic", "academism", "아카데미"}, []Delta{
		{Letter: t.Shared, Amount: 15}, {Letter: t.Realistic, Amount: 20}, {Letter: t.Structured, Amount: 25},
	}},
	{"symbolism", []string{"symbolis", "상징주의"}, []Delta{
		{Letter: t.Abstract, Amount: 15}, {Letter: t.Meaning, Amount: 15}, {Letter: t.Emotional, Amount: 15},
	}},
	{"cubism", []string{"cubis", "입체주의", "입체파"}, []Delta{
		{Letter: t.Abstract, Amount: 25}, {Letter: t.Meaning, Amount: 20}, {Letter: t.Free, Amount: 15},
	}},
	{"surrealism", []string{"surreal", "초현실"}, []Delta{
		{Letter: t.Lone, Amount: 15}, {Letter: t.Abstract, Amount: 20}, {Letter: t.Meaning, Amount: 15}, {Letter: t.Free, Amount: 20},
	}},
	{"pop-art", []string{"pop art", "pop-art", "팝아트", "팝 아트"}, []Delta{
		{Letter: t.Shared, Amount: 25}, {Letter: t.Realistic, Amount: 15}, {Letter: t.Meaning, Amount: 15}, {Letter: t.Free, Amount: 15},
	}},
	{"minimalism", []string{"minimalis", "미니멀"}, []Delta{
		{Letter: t.Lone, Amount: 15}, {Letter: t.Abstract, Amount: 20}, {Letter: t.Meaning, Amount: 20}, {Letter: t.Structured, Amount: 15},
	}},
	{"contemporary", []string{"contemporary", "present day", "현대", "동시대"}, []Delta{
		{Letter: t.Shared, Amount: 20}, {Letter: t.Abstract, Amount: 15}, {Letter: t.Meaning, Amount: 15}, {Letter: t.Free, Amount: 15},
	}},
	{"modern", []string{"modern", "근대"}, []Delta{
		{Letter: t.Abstract, Amount: 15}, {Letter: t.Free, Amount: 15},
	}},
}

// nationalityRules maps a lowercased nationality or country name to two
// cultural-context leanings.
var nationalityRules = map[string][]Delta{
	"american":  {{Letter: t.Shared, Amount: 15}, {Letter: t.Free, Amount: 15}},
	"french":    {{Letter: t.Meaning, Amount: 15}, {Letter: t.Structured, Amount: 15}},
	"japanese":  {{Letter: t.Lone, Amount: 15}, {Letter: t.Emotional, Amount: 15}},
	"german":    {{Letter: t.Meaning, Amount: 15}, {Letter: t.Structured, Amount: 15}},
	"italian":   {{Letter: t.Emotional, Amount: 15}, {Letter: t.Structured, Amount: 15}},
	"spanish":   {{Letter: t.Emotional, Amount: 15}, {Letter: t.Free, Amount: 15}},
	"dutch":     {{Letter: t.Realistic, Amount: 15}, {Letter: t.Structured, Amount: 15}},
	"flemish":   {{Letter: t.Realistic, Amount: 15}, {Letter: t.Structured, Amount: 15}},
	"russian":   {{Letter: t.Lone, Amount: 15}, {Letter: t.Emotional, Amount: 15}},
	"korean":    {{Letter: t.Lone, Amount: 15}, {Letter: t.Emotional, Amount: 15}},
	"british":   {{Letter: t.Realistic, Amount: 15}, {Letter: t.Structured, Amount: 15}},
	"mexican":   {{Letter: t.Shared, Amount: 15}, {Letter: t.Emotional, Amount: 15}},
	"chinese":   {{Letter: t.Meaning, Amount: 15}, {Letter: t.Structured, Amount: 15}},
	"norwegian": {{Letter: t.Lone, Amount: 15}, {Letter: t.Emotional, Amount: 15}},
}

var nationalityAliases = map[string]string{
	"united states":   "american",
	"usa":             "american",
	"us":              "american",
	"france":          "french",
	"japan":           "japanese",
	"germany":         "german",
	"italy":           "italian",
	"spain":           "spanish",
	"netherlands":     "dutch",
	"the netherlands": "dutch",
	"holland":         "dutch",
	"belgian":         "flemish",
	"belgium":         "flemish",
	"russia":          "russian",
	"korea":           "korean",
	"south korea":     "korean",
	"english":         "british",
	"scottish":        "british",
	"united kingdom":  "british",
	"uk":              "british",
	"mexico":          "mexican",
	"china":           "chinese",
	"norway":          "norwegian",
	"미국":              "american",
	"프랑스":             "french",
	"일본":              "japanese",
	"독일":              "german",
	"이탈리아":            "italian",
	"스페인":             "spanish",
	"네덜란드":            "dutch",
	"러시아":             "russian",
	"한국":              "korean",
	"대한민국":            "korean",
	"영국":              "british",
	"멕시코":             "mexican",
	"중국":              "chinese",
	"노르웨이":            "norwegian",
}

func matchEra(era string) (eraRule, bool) {
	lower := strings.ToLower(strings.TrimSpace(era))
	if lower == "" {
		return eraRule{}, false
	}
	for _, r := range eraRules {
		for _, kw := range r.keywords {
			if strings.Contains(lower, kw) {
				return r, true
			}
		}
	}
	return eraRule{}, false
}

func matchNationality(nationality string) (string, []Delta, bool) {
	lower := strings.ToLower(strings.TrimSpace(nationality))
	if lower == "" {
		return "", nil, false
	}
	if canonical, ok := nationalityAliases[lower]; ok {
		lower = canonical
	}
	if d, ok := nationalityRules[lower]; ok {
		return lower, d, true
	}
	// "Dutch-born French" and similar compound labels: first known token wins.
	for _, tok := range strings.FieldsFunc(lower, func(r rune) bool { return r == '-' || r == ' ' || r == '/' || r == ',' }) {
		if canonical, ok := nationalityAliases[tok]; ok {
			tok = canonical
		}
		if d, ok := nationalityRules[tok]; ok {
			return tok, d, true
		}
	}
	return "", nil, false
}

// mediumRule maps a working medium to the letters it tends to favor.
type mediumRule struct {
	name     string
	keywords []string
	deltas   []Delta
}

// mediumRules are matched in order; compound media precede the single media
// they mention.
var mediumRules = []mediumRule{
	{"mixed-media", []string{"mixed media", "mixed-media", "collage", "assemblage", "혼합"}, []Delta{
		{Letter: t.Abstract, Amount: 15}, {Letter: t.Free, Amount: 15},
	}},
	{"digital", []string{"digital", "video", "new media", "디지털", "영상", "미디어"}, []Delta{
		{Letter: t.Abstract, Amount: 15}, {Letter: t.Free, Amount: 15},
	}},
	{"installation", []string{"installation", "설치"}, []Delta{
		{Letter: t.Shared, Amount: 15}, {Letter: t.Free, Amount: 15},
	}},
	{"watercolor", []string{"watercolo", "aquarelle", "gouache", "수채"}, []Delta{
		{Letter: t.Emotional, Amount: 15}, {Letter: t.Free, Amount: 15},
	}},
	{"print", []string{"print", "etching", "engraving", "woodcut", "lithograph", "판화"}, []Delta{
		{Letter: t.Meaning, Amount: 15}, {Letter: t.Shared, Amount: 15},
	}},
	{"sculpture", []string{"sculpt", "bronze", "marble", "조각"}, []Delta{
		{Letter: t.Realistic, Amount: 15}, {Letter: t.Shared, Amount: 15},
	}},
	{"oil", []string{"oil", "유화"}, []Delta{
		{Letter: t.Structured, Amount: 15},
	}},
}

func matchMedium(medium string) (mediumRule, bool) {
	lower := strings.ToLower(strings.TrimSpace(medium))
	if lower == "" {
		return mediumRule{}, false
	}
	for _, r := range mediumRules {
		for _, kw := range r.keywords {
			if strings.Contains(lower, kw) {
				return r, true
			}
		}
	}
	return mediumRule{}, false
}

// Known-artist leanings. A surname-only match carries 70% of the full weight.
const (
	knownArtistAmount   = 20
	knownSurnameAmount  = knownArtistAmount * 7 / 10
	knownArtistRuleName = "artist:"
	knownSurnameRule    = "surname:"
)

// knownArtists lists artists whose type is well established, keyed by
// normalized full name. The value is the code the name leans toward.
var knownArtists = map[string]t.Code{
	"vincent van gogh": t.LAEF,
	"pablo picasso":    t.SAMF,
	"claude monet":     t.LREF,
	"andy warhol":      t.SAMC,
	"frida kahlo":      t.LAEC,
}

// knownSurnames indexes knownArtists by last name token.
var knownSurnames = func() map[string]string {
	out := make(map[string]string, len(knownArtists))
	for full := range knownArtists {
		tokens := strings.Fields(full)
		out[tokens[len(tokens)-1]] = full
	}
	return out
}()

// matchKnownArtist looks name up in knownArtists, first by full name and then
// by its last token.
func matchKnownArtist(name string) (string, []Delta, bool) {
	norm := normalizeName(name)
	if norm == "" {
		return "", nil, false
	}
	if code, ok := knownArtists[norm]; ok {
		return knownArtistRuleName + norm, leanToward(code, knownArtistAmount), true
	}
	tokens := strings.Fields(norm)
	surname := tokens[len(tokens)-1]
	if full, ok := knownSurnames[surname]; ok {
		return knownSurnameRule + surname, leanToward(knownArtists[full], knownSurnameAmount), true
	}
	return "", nil, false
}

func normalizeName(name string) string {
	fields := strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return r == ' ' || r == '.' || r == ',' || r == '\t'
	})
	return strings.Join(fields, " ")
}

func leanToward(code t.Code, amount int) []Delta {
	out := make([]Delta, 0, t.NumAxes)
	for _, a := range t.Axes() {
		out = append(out, Delta{Letter: code.Letter(a), Amount: amount})
	}
	return out
}
