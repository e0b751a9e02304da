package bulk

import (
	"context"
	"fmt"
	"time"

	"github.com/sydlexius/artpersona/internal/taxonomy"
)

// Job types.
const (
	TypeReclassify = "reclassify"
)

// Modes control whether unchanged inputs are recomputed.
const (
	ModeIncremental = "incremental" // Keep profiles whose inputs have not changed
	ModeForce       = "force"       // Recompute every profile
)

// Job statuses.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusCanceled  = "canceled"
	StatusFailed    = "failed"
)

// Item statuses.
const (
	ItemChanged      = "changed"
	ItemUnchanged    = "unchanged"
	ItemUnclassified = "unclassified"
	ItemFailed       = "failed"
)

// Job represents a background batch classification.
type Job struct {
	ID             string     `json:"id"`
	Type           string     `json:"type"`
	Mode           string     `json:"mode"`
	Status         string     `json:"status"`
	TotalItems     int        `json:"total_items"`
	ProcessedItems int        `json:"processed_items"`
	ChangedItems   int        `json:"changed_items"`
	SkippedItems   int        `json:"skipped_items"`
	FailedItems    int        `json:"failed_items"`
	Error          string     `json:"error,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`

	// ArtistIDs limits the job to specific artists. Transient (not persisted).
	// When empty, the executor targets every stored artist.
	ArtistIDs []string `json:"-"`
}

// Err reports how a finished job ended: nil when it completed,
// context.Canceled when it was canceled, an error naming the failure
// otherwise.
func (j *Job) Err() error {
	switch j.Status {
	case StatusCompleted:
		return nil
	case StatusCanceled:
		return context.Canceled
	}
	return fmt.Errorf("bulk job %s %s: %s", j.ID, j.Status, j.Error)
}

// JobItem tracks the result for a single artist within a job. Code and
// Confidence are empty unless the artist was classified.
type JobItem struct {
	ID         string        `json:"id"`
	JobID      string        `json:"job_id"`
	ArtistID   string        `json:"artist_id"`
	ArtistName string        `json:"artist_name"`
	Status     string        `json:"status"`
	Code       taxonomy.Code `json:"code,omitempty"`
	Confidence int           `json:"confidence,omitempty"`
	Message    string        `json:"message,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
}

// Report is a job with its items and the number of items per resulting
// code.
type Report struct {
	Job   Job                   `json:"job"`
	Items []JobItem             `json:"items"`
	Codes map[taxonomy.Code]int `json:"codes"`
}
