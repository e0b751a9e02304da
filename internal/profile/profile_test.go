package profile

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/sydlexius/artpersona/internal/axis"
	"github.com/sydlexius/artpersona/internal/database"
	"github.com/sydlexius/artpersona/internal/taxonomy"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("running migrations: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seedArtist(t *testing.T, db *sql.DB, id, name string) {
	t.Helper()
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := db.Exec(`INSERT INTO artists (id, name, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		id, name, now, now)
	if err != nil {
		t.Fatalf("seeding artist: %v", err)
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testDraft(t *testing.T, artistID string, code taxonomy.Code, conf int) *Draft {
	t.Helper()
	v, err := axis.FromCode(code, 75)
	if err != nil {
		t.Fatalf("FromCode: %v", err)
	}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &Draft{
		ArtistID:   artistID,
		Dimensions: v,
		Candidates: []TypeWeight{
			{Type: code, Confidence: conf, Weight: 0.5},
			{Type: taxonomy.LAEC, Confidence: conf - 10, Weight: 0.3},
		},
		Meta: Meta{
			Method:       MethodMetadataOnly,
			AnalysisDate: now,
			Reasoning:    "metadata: era, nationality",
			Sources:      []string{"era", "nationality", "name"},
			InputHash:    "abc123",
		},
		Log: MappingLogEntry{
			ID:         "log-" + string(code),
			ArtistID:   artistID,
			Method:     MethodMetadataOnly,
			Code:       code,
			Confidence: conf,
			Reasoning:  "metadata: era, nationality",
			Strategies: []string{"metadata"},
			CreatedAt:  now,
		},
	}
}

func TestDraftValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(d *Draft)
		want   bool
	}{
		{"valid", func(d *Draft) {}, true},
		{"missing artist", func(d *Draft) { d.ArtistID = "" }, false},
		{"empty candidates", func(d *Draft) { d.Candidates = nil }, false},
		{"unknown code", func(d *Draft) { d.Candidates[1].Type = "XXXX" }, false},
		{"lowercase code", func(d *Draft) { d.Candidates[0].Type = "laef"; d.Log.Code = "laef" }, false},
		{"duplicate code", func(d *Draft) { d.Candidates[1].Type = d.Candidates[0].Type }, false},
		{"confidence above 100", func(d *Draft) { d.Candidates[0].Confidence = 101 }, false},
		{"negative confidence", func(d *Draft) { d.Candidates[1].Confidence = -1 }, false},
		{"weight above 1", func(d *Draft) { d.Candidates[0].Weight = 1.2 }, false},
		{"ascending weights", func(d *Draft) { d.Candidates[1].Weight = 0.6 }, false},
		{"weights over one", func(d *Draft) {
			d.Candidates[0].Weight = 0.6
			d.Candidates[1].Weight = 0.5
		}, false},
		{"log code mismatch", func(d *Draft) { d.Log.Code = taxonomy.SRMC }, false},
		{"empty log code", func(d *Draft) { d.Log.Code = "" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := testDraft(t, "a1", taxonomy.LREF, 60)
			tt.mutate(d)
			err := d.Validate()
			if tt.want && err != nil {
				t.Fatalf("Validate() = %v, want nil", err)
			}
			if !tt.want {
				var ite *InvalidTaxonomyError
				if !errors.As(err, &ite) {
					t.Fatalf("Validate() = %v, want *InvalidTaxonomyError", err)
				}
			}
		})
	}
}

func TestValidateWrapsUnknownCode(t *testing.T) {
	d := testDraft(t, "a1", taxonomy.LREF, 60)
	d.Candidates[1].Type = "ZZZZ"
	err := d.Validate()
	var uce *taxonomy.UnknownCodeError
	if !errors.As(err, &uce) {
		t.Fatalf("Validate() = %v, want wrapped *taxonomy.UnknownCodeError", err)
	}
	if uce.Code != "ZZZZ" {
		t.Errorf("UnknownCodeError.Code = %q, want ZZZZ", uce.Code)
	}
}

func TestWriteAndGet(t *testing.T) {
	db := setupTestDB(t)
	seedArtist(t, db, "a1", "Vincent van Gogh")
	w := NewWriter(db, testLogger())
	svc := NewService(db)
	ctx := context.Background()

	d := testDraft(t, "a1", taxonomy.LREF, 60)
	written, err := w.Write(ctx, d)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if written.Primary() != taxonomy.LREF || written.Confidence() != 60 {
		t.Errorf("written = %s/%d, want LREF/60", written.Primary(), written.Confidence())
	}

	got, err := svc.Get(ctx, "a1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if diff := cmp.Diff(written.PrimaryTypes, got.PrimaryTypes); diff != "" {
		t.Errorf("PrimaryTypes mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(written.Meta, got.Meta); diff != "" {
		t.Errorf("Meta mismatch (-want +got):\n%s", diff)
	}
	if got.Dimensions.String() != d.Dimensions.String() {
		t.Errorf("Dimensions = %s, want %s", got.Dimensions, d.Dimensions)
	}

	entries, err := svc.ListLog(ctx, "a1")
	if err != nil {
		t.Fatalf("ListLog: %v", err)
	}
	if diff := cmp.Diff([]MappingLogEntry{d.Log}, entries); diff != "" {
		t.Errorf("log mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteRejectsInvalidDraft(t *testing.T) {
	db := setupTestDB(t)
	seedArtist(t, db, "a1", "Vincent van Gogh")
	w := NewWriter(db, testLogger())
	svc := NewService(db)
	ctx := context.Background()

	d := testDraft(t, "a1", taxonomy.LREF, 60)
	d.Candidates[1].Type = "QQQQ"
	_, err := w.Write(ctx, d)
	var ite *InvalidTaxonomyError
	if !errors.As(err, &ite) {
		t.Fatalf("Write() = %v, want *InvalidTaxonomyError", err)
	}

	if _, err := svc.Get(ctx, "a1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after rejected write = %v, want ErrNotFound", err)
	}
	n, err := svc.CountLog(ctx, "a1")
	if err != nil {
		t.Fatalf("CountLog: %v", err)
	}
	if n != 0 {
		t.Errorf("log entries after rejected write = %d, want 0", n)
	}
}

func TestWriteRequiresLogID(t *testing.T) {
	db := setupTestDB(t)
	seedArtist(t, db, "a1", "Vincent van Gogh")
	w := NewWriter(db, testLogger())

	d := testDraft(t, "a1", taxonomy.LREF, 60)
	d.Log.ID = ""
	var ite *InvalidTaxonomyError
	if _, err := w.Write(context.Background(), d); !errors.As(err, &ite) {
		t.Fatalf("Write() = %v, want *InvalidTaxonomyError", err)
	}
}

func TestWriteIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	seedArtist(t, db, "a1", "Vincent van Gogh")
	w := NewWriter(db, testLogger())
	svc := NewService(db)
	ctx := context.Background()

	d := testDraft(t, "a1", taxonomy.LREF, 60)
	for i := 0; i < 3; i++ {
		if _, err := w.Write(ctx, d); err != nil {
			t.Fatalf("Write #%d: %v", i, err)
		}
	}
	n, err := svc.CountLog(ctx, "a1")
	if err != nil {
		t.Fatalf("CountLog: %v", err)
	}
	if n != 1 {
		t.Errorf("log entries after retries = %d, want 1", n)
	}
	got, err := svc.Get(ctx, "a1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Primary() != taxonomy.LREF {
		t.Errorf("Primary = %s, want LREF", got.Primary())
	}
}

func TestWriteOverwritesProfile(t *testing.T) {
	db := setupTestDB(t)
	seedArtist(t, db, "a1", "Vincent van Gogh")
	w := NewWriter(db, testLogger())
	svc := NewService(db)
	ctx := context.Background()

	if _, err := w.Write(ctx, testDraft(t, "a1", taxonomy.LREF, 60)); err != nil {
		t.Fatalf("first Write: %v", err)
	}
	second := testDraft(t, "a1", taxonomy.SRMF, 72)
	second.Meta.PreviousType = taxonomy.LREF
	second.Log.CreatedAt = second.Log.CreatedAt.Add(time.Minute)
	if _, err := w.Write(ctx, second); err != nil {
		t.Fatalf("second Write: %v", err)
	}

	got, err := svc.Get(ctx, "a1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Primary() != taxonomy.SRMF || got.Confidence() != 72 {
		t.Errorf("profile = %s/%d, want SRMF/72", got.Primary(), got.Confidence())
	}
	if got.Meta.PreviousType != taxonomy.LREF {
		t.Errorf("PreviousType = %q, want LREF", got.Meta.PreviousType)
	}

	entries, err := svc.ListLog(ctx, "a1")
	if err != nil {
		t.Fatalf("ListLog: %v", err)
	}
	var codes []taxonomy.Code
	for _, e := range entries {
		codes = append(codes, e.Code)
	}
	if diff := cmp.Diff([]taxonomy.Code{taxonomy.LREF, taxonomy.SRMF}, codes); diff != "" {
		t.Errorf("log codes mismatch (-want +got):\n%s", diff)
	}
}

func TestRecordAndHasCorrection(t *testing.T) {
	db := setupTestDB(t)
	w := NewWriter(db, testLogger())
	svc := NewService(db)
	ctx := context.Background()

	// Log entries do not need a stored artist.
	e := &MappingLogEntry{
		ID:             "u1",
		ArtistID:       "ghost",
		Method:         MethodUnclassified,
		Reasoning:      "no strategy produced a usable result",
		SuppressedType: taxonomy.LAEF,
	}
	if err := w.Record(ctx, e); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := w.Record(ctx, &MappingLogEntry{ArtistID: "ghost"}); err == nil {
		t.Error("Record without id should fail")
	}

	entries, err := svc.ListLog(ctx, "ghost")
	if err != nil {
		t.Fatalf("ListLog: %v", err)
	}
	want := []MappingLogEntry{{
		ID:             "u1",
		ArtistID:       "ghost",
		Method:         MethodUnclassified,
		Reasoning:      "no strategy produced a usable result",
		Strategies:     []string{},
		SuppressedType: taxonomy.LAEF,
	}}
	if diff := cmp.Diff(want, entries, cmpopts.IgnoreFields(MappingLogEntry{}, "CreatedAt")); diff != "" {
		t.Errorf("log mismatch (-want +got):\n%s", diff)
	}

	ok, err := svc.HasCorrection(ctx, "ghost", taxonomy.LAEF)
	if err != nil || !ok {
		t.Errorf("HasCorrection(LAEF) = %v, %v; want true", ok, err)
	}
	ok, err = svc.HasCorrection(ctx, "ghost", taxonomy.SRMC)
	if err != nil || ok {
		t.Errorf("HasCorrection(SRMC) = %v, %v; want false", ok, err)
	}
}

func TestMappingLogIsAppendOnly(t *testing.T) {
	db := setupTestDB(t)
	w := NewWriter(db, testLogger())
	ctx := context.Background()

	if err := w.Record(ctx, &MappingLogEntry{ID: "x1", ArtistID: "a1", Method: MethodUnclassified}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if _, err := db.ExecContext(ctx, `UPDATE apt_mapping_log SET code = 'LAEF' WHERE id = 'x1'`); err == nil {
		t.Error("UPDATE on mapping log should fail")
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM apt_mapping_log WHERE id = 'x1'`); err == nil {
		t.Error("DELETE on mapping log should fail")
	}
}

func TestSnapshot(t *testing.T) {
	db := setupTestDB(t)
	seedArtist(t, db, "a1", "Vincent van Gogh")
	seedArtist(t, db, "a2", "Claude Monet")
	seedArtist(t, db, "a3", "Unclassified Person")
	w := NewWriter(db, testLogger())
	svc := NewService(db)
	ctx := context.Background()

	if _, err := w.Write(ctx, testDraft(t, "a1", taxonomy.LREF, 60)); err != nil {
		t.Fatalf("Write a1: %v", err)
	}
	if _, err := w.Write(ctx, testDraft(t, "a2", taxonomy.SAMF, 45)); err != nil {
		t.Fatalf("Write a2: %v", err)
	}

	got, err := svc.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	want := []Member{
		{ArtistID: "a1", Name: "Vincent van Gogh", Code: taxonomy.LREF, Confidence: 60},
		{ArtistID: "a2", Name: "Claude Monet", Code: taxonomy.SAMF, Confidence: 45},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestNewUnclassified(t *testing.T) {
	p := NewUnclassified("a1", "nothing usable", time.Now())
	if !p.IsUnclassified() {
		t.Error("IsUnclassified() = false")
	}
	if p.Primary() != "" || p.Confidence() != 0 {
		t.Errorf("Primary/Confidence = %q/%d, want empty/0", p.Primary(), p.Confidence())
	}
	if !p.Dimensions.IsNeutral() {
		t.Errorf("Dimensions = %s, want neutral", p.Dimensions)
	}
}
