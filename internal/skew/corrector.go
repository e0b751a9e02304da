package skew

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/sydlexius/artpersona/internal/artist"
	"github.com/sydlexius/artpersona/internal/bulk"
	"github.com/sydlexius/artpersona/internal/classifier"
	"github.com/sydlexius/artpersona/internal/event"
	"github.com/sydlexius/artpersona/internal/profile"
	"github.com/sydlexius/artpersona/internal/strategy"
	"github.com/sydlexius/artpersona/internal/taxonomy"
)

// Defaults for Options.
const (
	DefaultSampleSize    = 50
	DefaultMaxPasses     = 5
	DefaultLowConfidence = 70
	DefaultParallel      = 4
)

// Options tunes the corrector.
type Options struct {
	ThresholdRatio float64
	SampleSize     int
	MaxPasses      int
	// LowConfidence is the confidence below which a profile may be
	// resubmitted.
	LowConfidence int
	Parallel      int
}

func (o Options) withDefaults() Options {
	if o.ThresholdRatio <= 0 {
		o.ThresholdRatio = DefaultThresholdRatio
	}
	if o.SampleSize <= 0 {
		o.SampleSize = DefaultSampleSize
	}
	if o.MaxPasses <= 0 {
		o.MaxPasses = DefaultMaxPasses
	}
	if o.LowConfidence <= 0 {
		o.LowConfidence = DefaultLowConfidence
	}
	if o.Parallel <= 0 {
		o.Parallel = DefaultParallel
	}
	return o
}

// Pass records one correction round.
type Pass struct {
	Code        taxonomy.Code `json:"code"`
	Before      Overshare     `json:"before"`
	ShareAfter  float64       `json:"share_after"`
	Resubmitted []string      `json:"resubmitted"`
}

// Report summarizes a Run.
type Report struct {
	Passes []Pass `json:"passes"`
	// Remaining lists codes still flagged when Run stopped.
	Remaining []Overshare `json:"remaining"`
}

// Corrector resubmits low-confidence members of over-represented codes with
// that code suppressed.
type Corrector struct {
	profiles   *profile.Service
	artists    *artist.Service
	classifier bulk.Classifier
	opts       Options
	bus        *event.Bus
	logger     *slog.Logger
}

// NewCorrector creates a Corrector. bus may be nil.
func NewCorrector(profiles *profile.Service, artists *artist.Service, c bulk.Classifier, opts Options, bus *event.Bus, logger *slog.Logger) *Corrector {
	return &Corrector{
		profiles:   profiles,
		artists:    artists,
		classifier: c,
		opts:       opts.withDefaults(),
		bus:        bus,
		logger:     logger.With(slog.String("component", "skew-corrector")),
	}
}

// Detect reads the current population and reports over-represented codes.
func (c *Corrector) Detect(ctx context.Context) ([]Overshare, error) {
	snap, err := c.profiles.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return Detect(snap, c.opts.ThresholdRatio), nil
}

// CorrectSkew resubmits up to sampleSize eligible artists currently on code
// with code suppressed and returns the ids that were resubmitted. A
// sampleSize of zero or less uses the configured sample size.
func (c *Corrector) CorrectSkew(ctx context.Context, code taxonomy.Code, sampleSize int) ([]string, error) {
	if !taxonomy.IsValid(code) {
		return nil, &taxonomy.UnknownCodeError{Code: string(code)}
	}
	if sampleSize <= 0 {
		sampleSize = c.opts.SampleSize
	}
	snap, err := c.profiles.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	sample, err := c.eligible(ctx, snap, code)
	if err != nil {
		return nil, err
	}
	if len(sample) > sampleSize {
		sample = sample[:sampleSize]
	}
	return c.resubmit(ctx, code, sample)
}

// eligible returns members on code that are low-confidence or attribution
// records and have not already been resubmitted against code. Attribution
// records come first, then ascending confidence.
func (c *Corrector) eligible(ctx context.Context, snap []profile.Member, code taxonomy.Code) ([]profile.Member, error) {
	var out []profile.Member
	for _, m := range snap {
		if m.Code != code {
			continue
		}
		if m.Confidence >= c.opts.LowConfidence && !strategy.IsAttribution(m.Name) {
			continue
		}
		done, err := c.profiles.HasCorrection(ctx, m.ArtistID, code)
		if err != nil {
			return nil, err
		}
		if done {
			continue
		}
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool {
		ai, aj := strategy.IsAttribution(out[i].Name), strategy.IsAttribution(out[j].Name)
		if ai != aj {
			return ai
		}
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence < out[j].Confidence
		}
		return out[i].ArtistID < out[j].ArtistID
	})
	return out, nil
}

// resubmit reclassifies each sampled member unless its stored profile has
// changed since the snapshot was taken.
func (c *Corrector) resubmit(ctx context.Context, code taxonomy.Code, sample []profile.Member) ([]string, error) {
	done := make([]bool, len(sample))
	index := make(map[string]int, len(sample))
	ids := make([]string, len(sample))
	for i, m := range sample {
		index[m.ArtistID] = i
		ids[i] = m.ArtistID
	}

	var mu sync.Mutex
	err := bulk.ForEach(ctx, ids, c.opts.Parallel, func(ctx context.Context, id string) error {
		m := sample[index[id]]
		current, err := c.profiles.Get(ctx, id)
		if errors.Is(err, profile.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if current.Primary() != m.Code || current.Confidence() != m.Confidence {
			c.logger.Debug("profile changed since snapshot, skipping",
				slog.String("artist_id", id),
				slog.String("code", string(current.Primary())))
			return nil
		}

		rec, err := c.artists.GetByID(ctx, id)
		if errors.Is(err, artist.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		p, err := c.classifier.Classify(ctx, rec, classifier.Options{Force: true, Suppress: code})
		if err != nil {
			// One failed artist does not stop the pass.
			c.logger.Warn("resubmission failed",
				slog.String("artist_id", id),
				slog.String("error", err.Error()))
			return nil
		}

		mu.Lock()
		done[index[id]] = true
		mu.Unlock()
		c.logger.Debug("resubmitted",
			slog.String("artist_id", id),
			slog.String("suppressed", string(code)),
			slog.String("code", string(p.Primary())))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("correcting %s: %w", code, err)
	}

	var out []string
	for i, ok := range done {
		if ok {
			out = append(out, ids[i])
		}
	}
	return out, nil
}

// Run repeatedly corrects the single most over-represented code until no
// code is flagged, a pass resubmits nobody, or MaxPasses is reached.
func (c *Corrector) Run(ctx context.Context) (*Report, error) {
	report := &Report{}
	snap, err := c.profiles.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	for pass := 0; pass < c.opts.MaxPasses; pass++ {
		flagged := Detect(snap, c.opts.ThresholdRatio)
		report.Remaining = flagged
		if len(flagged) == 0 {
			break
		}
		top := flagged[0]
		c.bus.Publish(event.Event{
			Type: event.SkewDetected,
			Data: map[string]any{
				"code":  string(top.Code),
				"count": top.Count,
				"share": top.Share,
				"ratio": top.Ratio,
			},
		})

		resubmitted, err := c.CorrectSkew(ctx, top.Code, c.opts.SampleSize)
		if err != nil {
			return report, err
		}

		snap, err = c.profiles.Snapshot(ctx)
		if err != nil {
			return report, err
		}
		p := Pass{
			Code:        top.Code,
			Before:      top,
			ShareAfter:  Share(snap, top.Code),
			Resubmitted: resubmitted,
		}
		report.Passes = append(report.Passes, p)

		c.logger.Info("skew pass finished",
			slog.Int("pass", pass+1),
			slog.String("code", string(top.Code)),
			slog.Float64("share_before", top.Share),
			slog.Float64("share_after", p.ShareAfter),
			slog.Int("resubmitted", len(resubmitted)))
		c.bus.Publish(event.Event{
			Type: event.SkewCorrected,
			Data: map[string]any{
				"code":         string(top.Code),
				"share_before": top.Share,
				"share_after":  p.ShareAfter,
				"resubmitted":  len(resubmitted),
			},
		})

		report.Remaining = Detect(snap, c.opts.ThresholdRatio)
		if len(resubmitted) == 0 {
			break
		}
	}
	return report, nil
}
