package profile

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// logTimeFormat keeps log timestamps fixed-width so they sort lexically.
const logTimeFormat = "2006-01-02T15:04:05.000000000Z"

// Writer validates finalized drafts and persists them.
type Writer struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewWriter creates a profile writer.
func NewWriter(db *sql.DB, logger *slog.Logger) *Writer {
	return &Writer{db: db, logger: logger.With(slog.String("component", "profile-writer"))}
}

// Write validates d and, in one transaction, upserts the artist's profile
// and appends d.Log. An invalid draft returns *InvalidTaxonomyError and
// writes nothing. Writing the same draft twice leaves the same state: the
// profile is overwritten with identical content and the log insert is
// ignored on its existing id.
func (w *Writer) Write(ctx context.Context, d *Draft) (*APTProfile, error) {
	if err := d.Validate(); err != nil {
		w.logger.Error("rejecting draft", slog.String("artist_id", d.ArtistID), slog.String("error", err.Error()))
		return nil, err
	}
	if d.Log.ID == "" {
		return nil, &InvalidTaxonomyError{ArtistID: d.ArtistID, Reason: "log entry has no id"}
	}

	p := &APTProfile{
		ArtistID:     d.ArtistID,
		Dimensions:   d.Dimensions,
		PrimaryTypes: d.Candidates,
		Meta:         d.Meta,
	}
	if p.Meta.Sources == nil {
		p.Meta.Sources = []string{}
	}
	doc, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encoding profile: %w", err)
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, `
		INSERT INTO apt_profiles (artist_id, primary_code, confidence, method, input_hash, document, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(artist_id) DO UPDATE SET
			primary_code = excluded.primary_code,
			confidence = excluded.confidence,
			method = excluded.method,
			input_hash = excluded.input_hash,
			document = excluded.document,
			updated_at = excluded.updated_at
	`, p.ArtistID, string(p.Primary()), p.Confidence(), string(p.Meta.Method), p.Meta.InputHash,
		string(doc), p.Meta.AnalysisDate.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("upserting profile: %w", err)
	}

	if err := insertLog(ctx, tx, &d.Log); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing profile: %w", err)
	}
	return p, nil
}

// Record appends a log entry on its own, for attempts that produced no
// profile.
func (w *Writer) Record(ctx context.Context, e *MappingLogEntry) error {
	if e.ID == "" || e.ArtistID == "" {
		return fmt.Errorf("log entry needs an id and an artist id")
	}
	return insertLog(ctx, w.db, e)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertLog(ctx context.Context, db execer, e *MappingLogEntry) error {
	strategies := e.Strategies
	if strategies == nil {
		strategies = []string{}
	}
	data, err := json.Marshal(strategies)
	if err != nil {
		return fmt.Errorf("encoding strategies: %w", err)
	}
	created := e.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err = db.ExecContext(ctx, `
		INSERT OR IGNORE INTO apt_mapping_log
			(id, artist_id, method, code, confidence, reasoning, strategies, suppressed_type, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.ArtistID, string(e.Method), string(e.Code), e.Confidence, e.Reasoning,
		string(data), string(e.SuppressedType), created.UTC().Format(logTimeFormat))
	if err != nil {
		return fmt.Errorf("appending mapping log: %w", err)
	}
	return nil
}
