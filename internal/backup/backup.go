// Package backup takes point-in-time copies of the classification store
// before commands that rewrite profiles in bulk.
package backup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

// snapshotPattern matches artpersona-YYYYMMDD-HHMMSS.mmm-<reason>.db
var snapshotPattern = regexp.MustCompile(`^artpersona-(\d{8}-\d{6}\.\d{3})-([a-z0-9-]+)\.db$`)

const stampFormat = "20060102-150405.000"

// Snapshot describes one backup file.
type Snapshot struct {
	Filename  string    `json:"filename"`
	Reason    string    `json:"reason"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// Service writes and prunes snapshots. A Service with no directory is
// disabled and every operation on it is a no-op.
type Service struct {
	db         *sql.DB
	dir        string
	retention  int
	maxAgeDays int
	logger     *slog.Logger
	now        func() time.Time
}

// NewService creates a backup service keeping at most retention snapshots
// in dir, and none older than maxAgeDays when that is positive.
func NewService(db *sql.DB, dir string, retention, maxAgeDays int, logger *slog.Logger) *Service {
	return &Service{
		db:         db,
		dir:        dir,
		retention:  retention,
		maxAgeDays: maxAgeDays,
		logger:     logger.With(slog.String("component", "backup")),
		now:        time.Now,
	}
}

// Enabled reports whether snapshots are configured.
func (s *Service) Enabled() bool {
	return s != nil && s.dir != ""
}

// Snapshot copies the database with VACUUM INTO and prunes old snapshots.
// It returns nil without error when the service is disabled.
func (s *Service) Snapshot(ctx context.Context, reason string) (*Snapshot, error) {
	if !s.Enabled() {
		return nil, nil
	}
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating backup directory: %w", err)
	}

	now := s.now().UTC().Truncate(time.Millisecond)
	reason = sanitizeReason(reason)
	var filename, dest string
	for {
		filename = fmt.Sprintf("artpersona-%s-%s.db", now.Format(stampFormat), reason)
		dest = filepath.Join(s.dir, filename)
		if _, err := os.Stat(dest); os.IsNotExist(err) {
			break
		}
		now = now.Add(time.Millisecond)
	}

	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", dest); err != nil {
		return nil, fmt.Errorf("VACUUM INTO: %w", err)
	}
	info, err := os.Stat(dest)
	if err != nil {
		return nil, fmt.Errorf("stat backup file: %w", err)
	}

	s.logger.Info("snapshot written",
		slog.String("filename", filename),
		slog.String("reason", reason),
		slog.Int64("size", info.Size()))

	if err := s.Prune(); err != nil {
		s.logger.Warn("pruning snapshots", slog.Any("error", err))
	}
	return &Snapshot{Filename: filename, Reason: reason, Size: info.Size(), CreatedAt: now}, nil
}

// List returns snapshots newest first.
func (s *Service) List() ([]Snapshot, error) {
	if !s.Enabled() {
		return nil, nil
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading backup directory: %w", err)
	}

	var out []Snapshot
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := snapshotPattern.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		ts, err := time.Parse(stampFormat, m[1])
		if err != nil {
			ts = info.ModTime().UTC()
		}
		out = append(out, Snapshot{Filename: entry.Name(), Reason: m[2], Size: info.Size(), CreatedAt: ts})
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Prune deletes snapshots beyond the retention count and those older than
// the maximum age.
func (s *Service) Prune() error {
	snaps, err := s.List()
	if err != nil {
		return err
	}
	var cutoff time.Time
	if s.maxAgeDays > 0 {
		cutoff = s.now().UTC().AddDate(0, 0, -s.maxAgeDays)
	}
	for i, snap := range snaps {
		expired := !cutoff.IsZero() && snap.CreatedAt.Before(cutoff)
		if i < s.retention && !expired {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, snap.Filename)); err != nil {
			s.logger.Warn("removing snapshot", slog.String("filename", snap.Filename), slog.Any("error", err))
			continue
		}
		s.logger.Info("pruned snapshot", slog.String("filename", snap.Filename))
	}
	return nil
}

// Optimize runs PRAGMA optimize followed by a WAL checkpoint. Bulk runs
// call it once they finish.
func (s *Service) Optimize(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA optimize"); err != nil {
		return fmt.Errorf("PRAGMA optimize: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("WAL checkpoint: %w", err)
	}
	s.logger.Debug("database optimized")
	return nil
}

func sanitizeReason(reason string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(reason) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	out := strings.TrimRight(b.String(), "-")
	if out == "" {
		return "manual"
	}
	return out
}
