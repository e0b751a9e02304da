package main

import (
	"context"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/sydlexius/artpersona/internal/artist"
)

// importFile is the on-disk shape accepted by the import command.
type importFile struct {
	Artists []importArtist `yaml:"artists"`
}

type importArtist struct {
	Name        string            `yaml:"name"`
	Nationality string            `yaml:"nationality"`
	Era         string            `yaml:"era"`
	BirthYear   int               `yaml:"birth_year"`
	DeathYear   int               `yaml:"death_year"`
	Medium      string            `yaml:"medium"`
	Biographies []importBiography `yaml:"biographies"`
}

type importBiography struct {
	Lang string `yaml:"lang"`
	Text string `yaml:"text"`
}

// importArtists creates every artist in r and returns the new ids in file
// order.
func importArtists(ctx context.Context, svc *artist.Service, r io.Reader) ([]string, error) {
	var f importFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("decoding import file: %w", err)
	}
	ids := make([]string, 0, len(f.Artists))
	for i, in := range f.Artists {
		rec := &artist.Record{
			Name:        in.Name,
			Nationality: in.Nationality,
			Era:         in.Era,
			BirthYear:   in.BirthYear,
			DeathYear:   in.DeathYear,
			Medium:      in.Medium,
		}
		for _, b := range in.Biographies {
			rec.Biographies = append(rec.Biographies, artist.Biography{Lang: b.Lang, Text: b.Text})
		}
		if err := svc.Create(ctx, rec); err != nil {
			return ids, fmt.Errorf("artist %d (%q): %w", i, in.Name, err)
		}
		ids = append(ids, rec.ID)
	}
	return ids, nil
}
