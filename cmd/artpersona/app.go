package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/sydlexius/artpersona/internal/arbiter"
	"github.com/sydlexius/artpersona/internal/artist"
	"github.com/sydlexius/artpersona/internal/axis"
	"github.com/sydlexius/artpersona/internal/backup"
	"github.com/sydlexius/artpersona/internal/bulk"
	"github.com/sydlexius/artpersona/internal/classifier"
	"github.com/sydlexius/artpersona/internal/config"
	"github.com/sydlexius/artpersona/internal/database"
	"github.com/sydlexius/artpersona/internal/event"
	"github.com/sydlexius/artpersona/internal/inference"
	"github.com/sydlexius/artpersona/internal/profile"
	"github.com/sydlexius/artpersona/internal/skew"
	"github.com/sydlexius/artpersona/internal/strategy"
)

// app holds the wired services for one command invocation.
type app struct {
	db         *sql.DB
	bus        *event.Bus
	logger     *slog.Logger
	artists    *artist.Service
	profiles   *profile.Service
	classifier *classifier.Service
	jobs       *bulk.Service
	executor   *bulk.Executor
	corrector  *skew.Corrector
	backups    *backup.Service
}

func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := database.Migrate(db); err != nil {
		db.Close() //nolint:errcheck,gosec
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	logger.Debug("database ready", slog.String("path", cfg.Database.Path))

	bus := event.NewBus(logger, 256)
	go bus.Start()
	subscribeAudit(bus, logger)

	var collab strategy.Collaborator
	if cfg.Inference.Active() {
		collab = inference.New(inference.Options{
			BaseURL:           cfg.Inference.BaseURL,
			APIKey:            cfg.Inference.APIKey,
			Model:             cfg.Inference.Model,
			RequestsPerSecond: cfg.Inference.RequestsPerSecond,
			Timeout:           cfg.Inference.Timeout,
		}, logger)
	}

	scorer := axis.NewScorer()
	arb := arbiter.New([]strategy.Strategy{
		strategy.NewExternal(collab, cfg.Inference.Timeout),
		strategy.NewMetadata(scorer),
		strategy.NewBiography(scorer),
	}, arbiter.Options{
		RichBioRunes:             cfg.Classifier.RichBioRunes,
		MinAlternativeConfidence: cfg.Classifier.MinAlternativeConfidence,
	}, logger)

	artists := artist.NewService(db)
	profiles := profile.NewService(db)
	cls := classifier.NewService(artists, profiles, profile.NewWriter(db, logger), arb, bus, logger)

	jobs := bulk.NewService(db)
	executor := bulk.NewExecutor(jobs, artists, cls, cfg.Bulk.Parallel, logger)
	executor.SetEventBus(bus)

	corrector := skew.NewCorrector(profiles, artists, cls, skew.Options{
		ThresholdRatio: cfg.Skew.ThresholdRatio,
		SampleSize:     cfg.Skew.SampleSize,
		MaxPasses:      cfg.Skew.MaxPasses,
		LowConfidence:  cfg.Skew.LowConfidence,
		Parallel:       cfg.Bulk.Parallel,
	}, bus, logger)

	return &app{
		db:         db,
		bus:        bus,
		logger:     logger,
		artists:    artists,
		profiles:   profiles,
		classifier: cls,
		jobs:       jobs,
		executor:   executor,
		corrector:  corrector,
		backups:    backup.NewService(db, cfg.Backup.Dir, cfg.Backup.Retention, cfg.Backup.MaxAgeDays, logger),
	}, nil
}

// beforeRewrite snapshots the store ahead of a command that may rewrite
// many profiles.
func (a *app) beforeRewrite(ctx context.Context, reason string) error {
	if _, err := a.backups.Snapshot(ctx, reason); err != nil {
		return fmt.Errorf("snapshot before %s: %w", reason, err)
	}
	return nil
}

// afterRewrite runs store maintenance once a bulk command finishes.
func (a *app) afterRewrite(ctx context.Context) {
	if err := a.backups.Optimize(context.WithoutCancel(ctx)); err != nil {
		a.logger.Warn("optimizing database", "error", err)
	}
}

func (a *app) close() {
	a.bus.Stop()
	for _, t := range a.bus.Types() {
		c := a.bus.Stats()[t]
		if c.Dropped > 0 {
			a.logger.Warn("events dropped", "type", string(t), "dropped", c.Dropped, "dispatched", c.Dispatched)
		}
	}
	if err := a.db.Close(); err != nil {
		a.logger.Error("closing database", "error", err)
	}
}

// subscribeAudit logs events that need an operator's attention.
func subscribeAudit(bus *event.Bus, logger *slog.Logger) {
	bus.Subscribe(event.TaxonomyRejected, func(e event.Event) {
		logger.Error("profile rejected for manual review", "artist_id", e.Data["artist_id"], "reason", e.Data["reason"])
	})
	bus.Subscribe(event.SkewDetected, func(e event.Event) {
		logger.Info("skew detected", "code", e.Data["code"], "share", e.Data["share"], "ratio", e.Data["ratio"])
	})
	bus.SubscribeAll(func(e event.Event) {
		logger.Debug("event", "type", string(e.Type), "data", e.Data)
	})
}
