package artist

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sydlexius/artpersona/internal/profile"
)

// ErrNotFound is returned when no artist has the requested ID.
var ErrNotFound = errors.New("artist not found")

const recordColumns = `a.id, a.name, a.nationality, a.era, a.birth_year, a.death_year, a.medium,
	a.created_at, a.updated_at, p.document`

// Service reads and seeds artist records.
type Service struct {
	db *sql.DB
}

// NewService creates an artist service.
func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// Create inserts a new artist and its biographies.
func (s *Service) Create(ctx context.Context, r *Record) error {
	if strings.TrimSpace(r.Name) == "" {
		return errors.New("artist name is required")
	}
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, `
		INSERT INTO artists (id, name, nationality, era, birth_year, death_year, medium, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.Name, r.Nationality, r.Era, r.BirthYear, r.DeathYear, r.Medium,
		now.Format(time.RFC3339), now.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("creating artist: %w", err)
	}

	for i, b := range r.Biographies {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO artist_biographies (artist_id, lang, position, text)
			VALUES (?, ?, ?, ?)
		`, r.ID, b.Lang, i, b.Text)
		if err != nil {
			return fmt.Errorf("creating biography %q: %w", b.Lang, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing artist: %w", err)
	}
	return nil
}

// GetByID retrieves an artist with its biographies and current profile.
func (s *Service) GetByID(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+`
		FROM artists a LEFT JOIN apt_profiles p ON p.artist_id = a.id
		WHERE a.id = ?
	`, id)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting artist by id: %w", err)
	}

	bios, err := s.listBiographies(ctx, id)
	if err != nil {
		return nil, err
	}
	r.Biographies = bios
	return r, nil
}

// List returns a page of artists, without biographies, and the total count.
func (s *Service) List(ctx context.Context, params ListParams) ([]Record, int, error) {
	if err := params.Validate(); err != nil {
		return nil, 0, err
	}

	where, args := buildWhereClause(params)

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM artists a"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting artists: %w", err)
	}

	orderCol := "a." + params.Sort
	if params.Order == "desc" {
		orderCol += " DESC"
	} else {
		orderCol += " ASC"
	}

	offset := (params.Page - 1) * params.PageSize
	query := `SELECT ` + recordColumns + ` FROM artists a LEFT JOIN apt_profiles p ON p.artist_id = a.id` + where + //nolint:gosec // G202: orderCol is from validated params
		` ORDER BY ` + orderCol + `, a.id LIMIT ? OFFSET ?`
	args = append(args, params.PageSize, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing artists: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	records := []Record{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scanning artist row: %w", err)
		}
		records = append(records, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating artist rows: %w", err)
	}
	return records, total, nil
}

// ListIDs returns every artist ID in creation order.
func (s *Service) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM artists ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("listing artist ids: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning artist id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Delete removes an artist with its biographies and profile. Mapping log
// entries are append-only and remain.
func (s *Service) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM artists WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting artist: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting artist: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (s *Service) listBiographies(ctx context.Context, artistID string) ([]Biography, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT lang, text FROM artist_biographies
		WHERE artist_id = ? ORDER BY position
	`, artistID)
	if err != nil {
		return nil, fmt.Errorf("listing biographies: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var bios []Biography
	for rows.Next() {
		var b Biography
		if err := rows.Scan(&b.Lang, &b.Text); err != nil {
			return nil, fmt.Errorf("scanning biography: %w", err)
		}
		bios = append(bios, b)
	}
	return bios, rows.Err()
}

// scanRecord scans a database row into a Record.
func scanRecord(row interface{ Scan(...any) error }) (*Record, error) {
	var r Record
	var createdAt, updatedAt string
	var document sql.NullString

	err := row.Scan(&r.ID, &r.Name, &r.Nationality, &r.Era, &r.BirthYear, &r.DeathYear, &r.Medium,
		&createdAt, &updatedAt, &document)
	if err != nil {
		return nil, err
	}
	r.CreatedAt = parseTime(createdAt)
	r.UpdatedAt = parseTime(updatedAt)

	if document.Valid && document.String != "" {
		var p profile.APTProfile
		if err := json.Unmarshal([]byte(document.String), &p); err != nil {
			return nil, fmt.Errorf("decoding profile for %s: %w", r.ID, err)
		}
		r.Profile = &p
	}
	return &r, nil
}

// buildWhereClause constructs WHERE conditions from list parameters.
func buildWhereClause(params ListParams) (string, []any) {
	var conditions []string
	var args []any

	if params.Search != "" {
		conditions = append(conditions, "a.name LIKE ?")
		args = append(args, "%"+params.Search+"%")
	}

	switch params.Filter {
	case FilterClassified:
		conditions = append(conditions, "a.id IN (SELECT artist_id FROM apt_profiles)")
	case FilterUnclassified:
		conditions = append(conditions, "a.id NOT IN (SELECT artist_id FROM apt_profiles)")
	}

	if params.Code != "" {
		conditions = append(conditions, "a.id IN (SELECT artist_id FROM apt_profiles WHERE primary_code = ?)")
		args = append(args, string(params.Code))
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

// parseTime parses a time string, handling both RFC3339 and SQLite datetime formats.
func parseTime(s string) time.Time {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t
	}
	return time.Time{}
}
