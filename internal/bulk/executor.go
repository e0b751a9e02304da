package bulk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sydlexius/artpersona/internal/artist"
	"github.com/sydlexius/artpersona/internal/classifier"
	"github.com/sydlexius/artpersona/internal/event"
	"github.com/sydlexius/artpersona/internal/profile"
)

// Classifier classifies one artist record.
type Classifier interface {
	Classify(ctx context.Context, rec *artist.Record, opts classifier.Options) (*profile.APTProfile, error)
}

// Executor runs jobs. Only one job runs at a time.
type Executor struct {
	service    *Service
	artists    *artist.Service
	classifier Classifier
	parallel   int
	logger     *slog.Logger
	eventBus   *event.Bus

	mu        sync.Mutex
	cancelFn  context.CancelFunc
	currentID string
}

// NewExecutor creates an Executor that classifies up to parallel artists at
// once.
func NewExecutor(service *Service, artists *artist.Service, c Classifier, parallel int, logger *slog.Logger) *Executor {
	if parallel < 1 {
		parallel = 1
	}
	return &Executor{
		service:    service,
		artists:    artists,
		classifier: c,
		parallel:   parallel,
		logger:     logger.With(slog.String("component", "bulk-executor")),
	}
}

// SetEventBus sets the event bus for publishing job events.
func (e *Executor) SetEventBus(bus *event.Bus) {
	e.eventBus = bus
}

// Start runs a job in a background goroutine. The returned channel is closed
// once the job has finished and its final state is stored.
func (e *Executor) Start(ctx context.Context, job *Job) (<-chan struct{}, error) {
	jobCtx, err := e.acquire(ctx, job)
	if err != nil {
		return nil, err
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		e.run(jobCtx, job)
	}()
	return done, nil
}

// Run executes a job and blocks until it finishes. The returned error is
// job.Err().
func (e *Executor) Run(ctx context.Context, job *Job) error {
	jobCtx, err := e.acquire(ctx, job)
	if err != nil {
		return err
	}
	e.run(jobCtx, job)
	return job.Err()
}

// RunFor executes a job and cancels it if it is still running after d.
// Items finished before the cutoff keep their results.
func (e *Executor) RunFor(ctx context.Context, job *Job, d time.Duration) error {
	done, err := e.Start(ctx, job)
	if err != nil {
		return err
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		e.logger.Info("bulk job reached its time limit, canceling",
			slog.String("job_id", job.ID), slog.Duration("limit", d))
		if err := e.Cancel(); err != nil {
			// Finished between the timer firing and the cancel.
			e.logger.Debug("cancel after time limit", "error", err)
		}
		<-done
	}
	return job.Err()
}

// Cancel stops the currently running job.
func (e *Executor) Cancel() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cancelFn == nil {
		return fmt.Errorf("no bulk job is running")
	}
	e.cancelFn()
	return nil
}

func (e *Executor) acquire(ctx context.Context, job *Job) (context.Context, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.currentID != "" {
		return nil, fmt.Errorf("a bulk job is already running: %s", e.currentID)
	}
	jobCtx, cancel := context.WithCancel(ctx)
	e.cancelFn = cancel
	e.currentID = job.ID
	return jobCtx, nil
}

func (e *Executor) run(ctx context.Context, job *Job) {
	defer func() {
		e.mu.Lock()
		if e.cancelFn != nil {
			e.cancelFn()
		}
		e.cancelFn = nil
		e.currentID = ""
		e.mu.Unlock()
	}()
	// Bookkeeping writes must land even after the job is canceled.
	store := context.WithoutCancel(ctx)

	now := time.Now().UTC()
	job.Status = StatusRunning
	job.StartedAt = &now
	if err := e.service.UpdateJob(store, job); err != nil {
		e.logger.Error("updating job start", "job_id", job.ID, "error", err)
		return
	}

	if job.Type != TypeReclassify {
		e.finishJob(store, job, StatusFailed, fmt.Sprintf("unknown job type: %s", job.Type))
		return
	}

	ids := job.ArtistIDs
	if len(ids) == 0 {
		var err error
		ids, err = e.artists.ListIDs(ctx)
		if err != nil {
			if ctx.Err() != nil {
				e.finishJob(store, job, StatusCanceled, "")
				return
			}
			e.finishJob(store, job, StatusFailed, fmt.Sprintf("listing artists: %v", err))
			return
		}
	}

	job.TotalItems = len(ids)
	_ = e.service.UpdateJob(store, job)

	opts := classifier.Options{Force: job.Mode == ModeForce}
	var mu sync.Mutex
	err := ForEach(ctx, ids, e.parallel, func(ctx context.Context, id string) error {
		item := e.processArtist(ctx, id, opts)
		item.JobID = job.ID
		if ctx.Err() != nil && item.Status == ItemFailed {
			// Interrupted mid-classification; leave it for the next run.
			return ctx.Err()
		}
		if err := e.service.CreateItem(store, item); err != nil {
			e.logger.Warn("recording job item", "artist_id", id, "error", err)
		}

		mu.Lock()
		defer mu.Unlock()
		job.ProcessedItems++
		switch item.Status {
		case ItemChanged:
			job.ChangedItems++
		case ItemUnchanged, ItemUnclassified:
			job.SkippedItems++
		case ItemFailed:
			job.FailedItems++
		}
		// Periodic progress update (every 10 items)
		if job.ProcessedItems%10 == 0 {
			_ = e.service.UpdateJob(store, job)
		}
		return nil
	})
	if errors.Is(err, context.Canceled) || ctx.Err() != nil {
		e.finishJob(store, job, StatusCanceled, "")
		return
	}
	if err != nil {
		e.finishJob(store, job, StatusFailed, err.Error())
		return
	}

	e.finishJob(store, job, StatusCompleted, "")
}

func (e *Executor) processArtist(ctx context.Context, id string, opts classifier.Options) *JobItem {
	item := &JobItem{ArtistID: id}
	rec, err := e.artists.GetByID(ctx, id)
	if err != nil {
		item.Status = ItemFailed
		item.Message = fmt.Sprintf("loading artist: %v", err)
		return item
	}
	item.ArtistName = rec.Name

	p, err := e.classifier.Classify(ctx, rec, opts)
	if err != nil {
		item.Status = ItemFailed
		item.Message = fmt.Sprintf("classification failed: %v", err)
		return item
	}
	item.Status, item.Message = outcome(rec.Profile, p)
	if !p.IsUnclassified() {
		item.Code = p.Primary()
		item.Confidence = p.Confidence()
	}
	return item
}

// outcome compares the stored profile with the new one.
func outcome(prev, next *profile.APTProfile) (string, string) {
	if next.IsUnclassified() {
		reason, _, _ := strings.Cut(next.Meta.Reasoning, "\n")
		return ItemUnclassified, reason
	}
	if prev == nil || prev.Primary() == "" {
		return ItemChanged, fmt.Sprintf("classified %s (%d)", next.Primary(), next.Confidence())
	}
	if prev.Primary() != next.Primary() {
		return ItemChanged, fmt.Sprintf("%s -> %s (%d)", prev.Primary(), next.Primary(), next.Confidence())
	}
	return ItemUnchanged, fmt.Sprintf("kept %s (%d)", next.Primary(), next.Confidence())
}

func (e *Executor) finishJob(ctx context.Context, job *Job, status, errMsg string) {
	now := time.Now().UTC()
	job.Status = status
	job.CompletedAt = &now
	job.Error = errMsg
	if err := e.service.UpdateJob(ctx, job); err != nil {
		e.logger.Error("finishing bulk job", "job_id", job.ID, "error", err)
	}

	e.logger.Info("bulk job finished",
		slog.String("job_id", job.ID),
		slog.String("status", status),
		slog.Int("processed", job.ProcessedItems),
		slog.Int("changed", job.ChangedItems),
		slog.Int("failed", job.FailedItems))

	e.eventBus.Publish(event.Event{
		Type: event.BulkCompleted,
		Data: map[string]any{
			"job_id":          job.ID,
			"type":            job.Type,
			"status":          status,
			"total_items":     job.TotalItems,
			"processed_items": job.ProcessedItems,
			"changed_items":   job.ChangedItems,
			"failed_items":    job.FailedItems,
		},
	})
}
