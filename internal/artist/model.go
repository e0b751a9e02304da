package artist

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sydlexius/artpersona/internal/profile"
)

// Record is an artist as supplied by the upstream collection pipeline. Only
// Name is guaranteed; every other field may be empty.
type Record struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Nationality string              `json:"nationality,omitempty"`
	Era         string              `json:"era,omitempty"`
	BirthYear   int                 `json:"birth_year,omitempty"`
	DeathYear   int                 `json:"death_year,omitempty"`
	Medium      string              `json:"medium,omitempty"`
	Biographies []Biography         `json:"biographies,omitempty"`
	Profile     *profile.APTProfile `json:"profile,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// Biography is free text in one language. Records list the primary language
// first.
type Biography struct {
	Lang string `json:"lang"`
	Text string `json:"text"`
}

// PrimaryBiography returns the first non-blank biography, falling back
// through secondary languages.
func (r *Record) PrimaryBiography() (Biography, bool) {
	for _, b := range r.Biographies {
		if strings.TrimSpace(b.Text) != "" {
			return b, true
		}
	}
	return Biography{}, false
}

// BiographyRunes returns the length in runes of the primary biography.
func (r *Record) BiographyRunes() int {
	b, ok := r.PrimaryBiography()
	if !ok {
		return 0
	}
	return utf8.RuneCountInString(strings.TrimSpace(b.Text))
}
