package profile

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sydlexius/artpersona/internal/taxonomy"
)

// ErrNotFound is returned when an artist has no persisted profile.
var ErrNotFound = errors.New("profile not found")

// Member is one classified artist as seen by population-level analysis.
type Member struct {
	ArtistID   string
	Name       string
	Code       taxonomy.Code
	Confidence int
}

// Service reads persisted profiles and the mapping log.
type Service struct {
	db *sql.DB
}

// NewService creates a profile service.
func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// Get returns the current profile for an artist.
func (s *Service) Get(ctx context.Context, artistID string) (*APTProfile, error) {
	var doc string
	err := s.db.QueryRowContext(ctx,
		`SELECT document FROM apt_profiles WHERE artist_id = ?`, artistID).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, artistID)
	}
	if err != nil {
		return nil, fmt.Errorf("getting profile: %w", err)
	}
	var p APTProfile
	if err := json.Unmarshal([]byte(doc), &p); err != nil {
		return nil, fmt.Errorf("decoding profile for %s: %w", artistID, err)
	}
	return &p, nil
}

// Snapshot returns every classified artist with its current primary code.
func (s *Service) Snapshot(ctx context.Context) ([]Member, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.artist_id, a.name, p.primary_code, p.confidence
		FROM apt_profiles p JOIN artists a ON a.id = p.artist_id
		ORDER BY p.artist_id
	`)
	if err != nil {
		return nil, fmt.Errorf("reading population snapshot: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var members []Member
	for rows.Next() {
		var m Member
		var code string
		if err := rows.Scan(&m.ArtistID, &m.Name, &code, &m.Confidence); err != nil {
			return nil, fmt.Errorf("scanning snapshot row: %w", err)
		}
		m.Code = taxonomy.Code(code)
		members = append(members, m)
	}
	return members, rows.Err()
}

// ListLog returns the mapping log for an artist, oldest first.
func (s *Service) ListLog(ctx context.Context, artistID string) ([]MappingLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, artist_id, method, code, confidence, reasoning, strategies, suppressed_type, created_at
		FROM apt_mapping_log WHERE artist_id = ?
		ORDER BY created_at, rowid
	`, artistID)
	if err != nil {
		return nil, fmt.Errorf("listing mapping log: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var entries []MappingLogEntry
	for rows.Next() {
		var e MappingLogEntry
		var method, code, suppressed, strategies, createdAt string
		if err := rows.Scan(&e.ID, &e.ArtistID, &method, &code, &e.Confidence, &e.Reasoning,
			&strategies, &suppressed, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning mapping log: %w", err)
		}
		e.Method = Method(method)
		e.Code = taxonomy.Code(code)
		e.SuppressedType = taxonomy.Code(suppressed)
		if err := json.Unmarshal([]byte(strategies), &e.Strategies); err != nil {
			return nil, fmt.Errorf("decoding strategies for log %s: %w", e.ID, err)
		}
		e.CreatedAt, _ = time.Parse(logTimeFormat, createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// HasCorrection reports whether an artist was already resubmitted with code
// suppressed.
func (s *Service) HasCorrection(ctx context.Context, artistID string, code taxonomy.Code) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM apt_mapping_log WHERE artist_id = ? AND suppressed_type = ?
	`, artistID, string(code)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking correction history: %w", err)
	}
	return n > 0, nil
}

// CountLog returns the number of log entries for an artist.
func (s *Service) CountLog(ctx context.Context, artistID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM apt_mapping_log WHERE artist_id = ?`, artistID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting mapping log: %w", err)
	}
	return n, nil
}
