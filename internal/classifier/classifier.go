// Package classifier is the entry point for classifying one artist: it
// fingerprints the inputs, runs the arbiter and persists the outcome.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sydlexius/artpersona/internal/arbiter"
	"github.com/sydlexius/artpersona/internal/artist"
	"github.com/sydlexius/artpersona/internal/event"
	"github.com/sydlexius/artpersona/internal/profile"
	"github.com/sydlexius/artpersona/internal/taxonomy"
)

// Options controls a single classification.
type Options struct {
	// Force reclassifies even when the stored profile matches the inputs.
	Force bool
	// Suppress bars a code from top-1 unless nothing else qualifies.
	Suppress taxonomy.Code
}

// Service classifies artists and persists their profiles.
type Service struct {
	artists  *artist.Service
	profiles *profile.Service
	writer   *profile.Writer
	arbiter  *arbiter.Arbiter
	bus      *event.Bus
	logger   *slog.Logger
}

// NewService creates a classifier. bus may be nil.
func NewService(artists *artist.Service, profiles *profile.Service, writer *profile.Writer, arb *arbiter.Arbiter, bus *event.Bus, logger *slog.Logger) *Service {
	return &Service{
		artists:  artists,
		profiles: profiles,
		writer:   writer,
		arbiter:  arb,
		bus:      bus,
		logger:   logger.With(slog.String("component", "classifier")),
	}
}

// ClassifyByID loads the artist and classifies it.
func (s *Service) ClassifyByID(ctx context.Context, id string, opts Options) (*profile.APTProfile, error) {
	rec, err := s.artists.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading artist %s: %w", id, err)
	}
	return s.Classify(ctx, rec, opts)
}

// Classify produces and stores the profile for rec. When no strategy yields
// a result it returns the unclassified marker, which is logged but not
// stored as a profile. An unchanged record returns its stored profile
// unless opts asks for a fresh decision.
func (s *Service) Classify(ctx context.Context, rec *artist.Record, opts Options) (*profile.APTProfile, error) {
	if rec == nil || rec.ID == "" {
		return nil, errors.New("classify: record has no id")
	}
	if opts.Suppress != "" && !taxonomy.IsValid(opts.Suppress) {
		return nil, &taxonomy.UnknownCodeError{Code: string(opts.Suppress)}
	}

	hash := Fingerprint(rec)
	existing, err := s.profiles.Get(ctx, rec.ID)
	if err != nil && !errors.Is(err, profile.ErrNotFound) {
		return nil, err
	}
	if existing != nil && !opts.Force && opts.Suppress == "" && existing.Meta.InputHash == hash {
		s.logger.Debug("inputs unchanged, keeping profile",
			slog.String("artist_id", rec.ID),
			slog.String("code", string(existing.Primary())))
		return existing, nil
	}

	d, err := s.arbiter.Decide(ctx, rec, opts.Suppress)
	if errors.Is(err, arbiter.ErrInsufficientEvidence) {
		return s.unclassified(ctx, rec, d)
	}
	if err != nil {
		return nil, fmt.Errorf("classifying %s: %w", rec.ID, err)
	}

	draft := d.Draft
	draft.Meta.InputHash = hash
	if existing != nil {
		draft.Meta.PreviousType = existing.Meta.PreviousType
		if existing.Primary() != d.Top {
			draft.Meta.PreviousType = existing.Primary()
		}
	}

	p, err := s.writer.Write(ctx, draft)
	if err != nil {
		var ite *profile.InvalidTaxonomyError
		if errors.As(err, &ite) {
			s.bus.Publish(event.Event{
				Type: event.TaxonomyRejected,
				Data: map[string]any{
					"artist_id": rec.ID,
					"name":      rec.Name,
					"reason":    ite.Error(),
				},
			})
		}
		return nil, err
	}

	s.logger.Info("artist classified",
		slog.String("artist_id", rec.ID),
		slog.String("code", string(p.Primary())),
		slog.Int("confidence", p.Confidence()),
		slog.String("method", string(p.Meta.Method)))
	s.bus.Publish(event.Event{
		Type: event.ArtistClassified,
		Data: map[string]any{
			"artist_id":     rec.ID,
			"name":          rec.Name,
			"code":          string(p.Primary()),
			"confidence":    p.Confidence(),
			"method":        string(p.Meta.Method),
			"previous_type": string(p.Meta.PreviousType),
		},
	})
	return p, nil
}

func (s *Service) unclassified(ctx context.Context, rec *artist.Record, d *arbiter.Decision) (*profile.APTProfile, error) {
	if err := s.writer.Record(ctx, &d.Draft.Log); err != nil {
		return nil, fmt.Errorf("recording unclassified attempt: %w", err)
	}
	s.logger.Warn("artist unclassified",
		slog.String("artist_id", rec.ID),
		slog.String("reasoning", d.Reasoning))
	s.bus.Publish(event.Event{
		Type: event.ArtistUnclassified,
		Data: map[string]any{
			"artist_id": rec.ID,
			"name":      rec.Name,
		},
	})
	return profile.NewUnclassified(rec.ID, d.Reasoning, d.Draft.Meta.AnalysisDate), nil
}
