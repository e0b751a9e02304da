// Package bulk runs classification over many artists: persisted job
// bookkeeping, a bounded worker pool and a one-job-at-a-time executor.
package bulk

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sydlexius/artpersona/internal/taxonomy"
)

// ErrJobNotFound is returned when a job id does not exist.
var ErrJobNotFound = errors.New("bulk job not found")

// timeFormat is fixed-width so stored timestamps sort as text.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

// DefaultListLimit caps ListJobs when no limit is given.
const DefaultListLimit = 20

const jobColumns = `id, type, mode, status, total_items, processed_items,
	changed_items, skipped_items, failed_items, error,
	created_at, started_at, completed_at`

// Service persists bulk jobs and their per-artist items.
type Service struct {
	db  *sql.DB
	now func() time.Time
}

// NewService creates a Service.
func NewService(db *sql.DB) *Service {
	return &Service{db: db, now: time.Now}
}

// CreateJob inserts a pending job.
func (s *Service) CreateJob(ctx context.Context, jobType, mode string, totalItems int) (*Job, error) {
	job := &Job{
		ID:         uuid.New().String(),
		Type:       jobType,
		Mode:       mode,
		Status:     StatusPending,
		TotalItems: totalItems,
		CreatedAt:  s.now().UTC(),
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bulk_jobs (id, type, mode, status, total_items, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, job.ID, job.Type, job.Mode, job.Status, job.TotalItems, job.CreatedAt.Format(timeFormat))
	if err != nil {
		return nil, fmt.Errorf("creating bulk job: %w", err)
	}
	return job, nil
}

// GetJob retrieves a job by ID.
func (s *Service) GetJob(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM bulk_jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting bulk job: %w", err)
	}
	return job, nil
}

// ListJobs returns the most recent jobs, newest first.
func (s *Service) ListJobs(ctx context.Context, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+jobColumns+`
		FROM bulk_jobs ORDER BY created_at DESC, rowid DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing bulk jobs: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	jobs := []Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning bulk job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// UpdateJob writes a job's counters, status and timestamps.
func (s *Service) UpdateJob(ctx context.Context, job *Job) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE bulk_jobs
		SET status = ?, total_items = ?, processed_items = ?, changed_items = ?,
		    skipped_items = ?, failed_items = ?, error = ?, started_at = ?, completed_at = ?
		WHERE id = ?
	`, job.Status, job.TotalItems, job.ProcessedItems, job.ChangedItems, job.SkippedItems,
		job.FailedItems, job.Error, formatOptional(job.StartedAt), formatOptional(job.CompletedAt), job.ID)
	if err != nil {
		return fmt.Errorf("updating bulk job: %w", err)
	}
	return nil
}

// CreateItem records the outcome for one artist.
func (s *Service) CreateItem(ctx context.Context, item *JobItem) error {
	item.ID = uuid.New().String()
	item.CreatedAt = s.now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bulk_job_items (id, job_id, artist_id, artist_name, status, code, confidence, message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, item.ID, item.JobID, item.ArtistID, item.ArtistName, item.Status,
		string(item.Code), item.Confidence, item.Message, item.CreatedAt.Format(timeFormat))
	if err != nil {
		return fmt.Errorf("creating bulk job item: %w", err)
	}
	return nil
}

// ListItems returns every item of a job in the order they were recorded.
func (s *Service) ListItems(ctx context.Context, jobID string) ([]JobItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, job_id, artist_id, artist_name, status, code, confidence, message, created_at
		FROM bulk_job_items WHERE job_id = ? ORDER BY created_at, rowid
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("listing bulk job items: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	items := []JobItem{}
	for rows.Next() {
		var item JobItem
		var code string
		var message sql.NullString
		var createdAt string
		if err := rows.Scan(&item.ID, &item.JobID, &item.ArtistID, &item.ArtistName,
			&item.Status, &code, &item.Confidence, &message, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning bulk job item: %w", err)
		}
		item.Code = taxonomy.Code(code)
		item.Message = message.String
		item.CreatedAt = parseTime(createdAt)
		items = append(items, item)
	}
	return items, rows.Err()
}

// Report loads a job with its items and tallies the codes they landed on.
func (s *Service) Report(ctx context.Context, id string) (*Report, error) {
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	items, err := s.ListItems(ctx, id)
	if err != nil {
		return nil, err
	}
	r := &Report{Job: *job, Items: items, Codes: make(map[taxonomy.Code]int)}
	for _, it := range items {
		if it.Code != "" {
			r.Codes[it.Code]++
		}
	}
	return r, nil
}

func scanJob(row interface{ Scan(...any) error }) (*Job, error) {
	var job Job
	var errStr, startedAt, completedAt sql.NullString
	var createdAt string

	err := row.Scan(&job.ID, &job.Type, &job.Mode, &job.Status,
		&job.TotalItems, &job.ProcessedItems, &job.ChangedItems,
		&job.SkippedItems, &job.FailedItems, &errStr,
		&createdAt, &startedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	job.Error = errStr.String
	job.CreatedAt = parseTime(createdAt)
	job.StartedAt = parseOptional(startedAt)
	job.CompletedAt = parseOptional(completedAt)
	return &job, nil
}

func formatOptional(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(timeFormat)
	return &s
}

func parseOptional(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t := parseTime(s.String)
	return &t
}

// parseTime accepts the fixed-width format and plain RFC 3339.
func parseTime(s string) time.Time {
	if t, err := time.Parse(timeFormat, s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	return time.Time{}
}
