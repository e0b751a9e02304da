package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sydlexius/artpersona/internal/backup"
	"github.com/sydlexius/artpersona/internal/bulk"
	"github.com/sydlexius/artpersona/internal/profile"
)

const importYAML = `artists:
  - name: Vincent van Gogh
    nationality: Dutch
    era: Post-Impressionism
    birth_year: 1853
    death_year: 1890
    medium: Oil on canvas
    biographies:
      - lang: en
        text: >
          A solitary painter whose isolation and lonely years fed an emotional
          work of passion, anguish and melancholy, grounded in portraits drawn
          from close observation.
  - name: Workshop of Jan van Eyck
    nationality: Flemish
    era: Early Netherlandish
`

func setupCommand(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("AP_CONFIG_PATH", filepath.Join(dir, "absent.yaml"))
	t.Setenv("AP_DB_PATH", filepath.Join(dir, "ap.db"))
	t.Setenv("AP_LOG_LEVEL", "error")
	t.Setenv("AP_INFERENCE_ENABLED", "false")
	t.Setenv("AP_BACKUP_DIR", filepath.Join(dir, "backups"))

	path := filepath.Join(dir, "artists.yaml")
	writeFile(t, path, importYAML)
	return path
}

func runCommand(t *testing.T, command string, args ...string) []byte {
	t.Helper()
	var out bytes.Buffer
	if err := run(command, args, &out); err != nil {
		t.Fatalf("%s %v: %v\n%s", command, args, err, out.String())
	}
	return out.Bytes()
}

func TestImportAndClassifyAll(t *testing.T) {
	path := setupCommand(t)

	var imported struct {
		Imported []string `json:"imported"`
	}
	if err := json.Unmarshal(runCommand(t, "import", path), &imported); err != nil {
		t.Fatalf("decoding import output: %v", err)
	}
	if len(imported.Imported) != 2 {
		t.Fatalf("imported %d artists, want 2", len(imported.Imported))
	}

	var job bulk.Job
	if err := json.Unmarshal(runCommand(t, "classify-all"), &job); err != nil {
		t.Fatalf("decoding job: %v", err)
	}
	if job.Status != bulk.StatusCompleted {
		t.Fatalf("job status = %s (%s)", job.Status, job.Error)
	}
	if job.TotalItems != 2 || job.ProcessedItems != 2 || job.ChangedItems != 2 {
		t.Errorf("counts total=%d processed=%d changed=%d, want 2/2/2",
			job.TotalItems, job.ProcessedItems, job.ChangedItems)
	}

	// Unchanged inputs are not reclassified.
	if err := json.Unmarshal(runCommand(t, "classify-all"), &job); err != nil {
		t.Fatalf("decoding job: %v", err)
	}
	if job.ChangedItems != 0 || job.SkippedItems != 2 {
		t.Errorf("second run changed=%d skipped=%d, want 0/2", job.ChangedItems, job.SkippedItems)
	}

	var p profile.APTProfile
	if err := json.Unmarshal(runCommand(t, "classify", imported.Imported[1]), &p); err != nil {
		t.Fatalf("decoding profile: %v", err)
	}
	if p.Confidence() > 35 {
		t.Errorf("workshop attribution confidence = %d, want <= 35", p.Confidence())
	}
}

func TestArtistsJobsAndRemove(t *testing.T) {
	path := setupCommand(t)

	var imported struct {
		Imported []string `json:"imported"`
	}
	if err := json.Unmarshal(runCommand(t, "import", path), &imported); err != nil {
		t.Fatalf("decoding import output: %v", err)
	}

	var listing struct {
		Total   int         `json:"total"`
		Artists []artistRow `json:"artists"`
	}
	if err := json.Unmarshal(runCommand(t, "artists", "--filter", "unclassified"), &listing); err != nil {
		t.Fatalf("decoding artists: %v", err)
	}
	if listing.Total != 2 {
		t.Errorf("unclassified before classify-all = %d, want 2", listing.Total)
	}

	var job bulk.Job
	if err := json.Unmarshal(runCommand(t, "classify-all", "--max-duration", "1m"), &job); err != nil {
		t.Fatalf("decoding job: %v", err)
	}
	if job.Status != bulk.StatusCompleted {
		t.Fatalf("job status = %s (%s)", job.Status, job.Error)
	}

	if err := json.Unmarshal(runCommand(t, "artists"), &listing); err != nil {
		t.Fatalf("decoding artists: %v", err)
	}
	if listing.Total != 2 || len(listing.Artists) != 2 {
		t.Fatalf("listing = %+v, want 2 artists", listing)
	}
	// Sorted by name: "Vincent van Gogh" < "Workshop of Jan van Eyck".
	if listing.Artists[0].Medium != "Oil on canvas" || listing.Artists[0].Code == "" {
		t.Errorf("first row = %+v, want medium and code", listing.Artists[0])
	}

	var jobs []bulk.Job
	if err := json.Unmarshal(runCommand(t, "jobs"), &jobs); err != nil {
		t.Fatalf("decoding jobs: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != job.ID {
		t.Fatalf("jobs = %+v, want the one classify-all job", jobs)
	}

	var report bulk.Report
	if err := json.Unmarshal(runCommand(t, "jobs", "--id", job.ID), &report); err != nil {
		t.Fatalf("decoding job report: %v", err)
	}
	classified := 0
	for _, n := range report.Codes {
		classified += n
	}
	if len(report.Items) != 2 || classified != 2 {
		t.Errorf("report items = %d classified = %d, want 2/2", len(report.Items), classified)
	}

	runCommand(t, "remove", imported.Imported[1])
	if err := json.Unmarshal(runCommand(t, "artists", "--filter", "classified"), &listing); err != nil {
		t.Fatalf("decoding artists: %v", err)
	}
	if listing.Total != 1 || listing.Artists[0].ID != imported.Imported[0] {
		t.Errorf("after remove = %+v, want only the first artist", listing)
	}
}

func TestBackupCommand(t *testing.T) {
	setupCommand(t)

	var snap backup.Snapshot
	if err := json.Unmarshal(runCommand(t, "backup"), &snap); err != nil {
		t.Fatalf("decoding snapshot: %v", err)
	}
	if snap.Reason != "manual" || snap.Size == 0 {
		t.Errorf("unexpected snapshot: %+v", snap)
	}

	// correct-skew snapshots first even when nothing is skewed.
	runCommand(t, "correct-skew")

	var snaps []backup.Snapshot
	if err := json.Unmarshal(runCommand(t, "backup", "--list"), &snaps); err != nil {
		t.Fatalf("decoding list: %v", err)
	}
	if len(snaps) != 2 || snaps[0].Reason != "correct-skew" {
		t.Errorf("snapshots = %+v", snaps)
	}
}

func TestBackupDisabled(t *testing.T) {
	setupCommand(t)
	t.Setenv("AP_BACKUP_DIR", "")
	var out bytes.Buffer
	if err := run("backup", nil, &out); err == nil {
		t.Error("backup with no directory should fail")
	}
}

func TestDetectSkewEmpty(t *testing.T) {
	setupCommand(t)
	out := strings.TrimSpace(string(runCommand(t, "detect-skew")))
	if out != "[]" {
		t.Errorf("detect-skew on empty store = %q, want []", out)
	}
}

func TestRunRejectsBadInput(t *testing.T) {
	setupCommand(t)
	tests := []struct {
		name    string
		command string
		args    []string
	}{
		{"unknown command", "paint", nil},
		{"classify without id", "classify", nil},
		{"classify unknown suppress", "classify", []string{"--suppress", "SAIF", "x"}},
		{"correct unknown code", "correct-skew", []string{"--code", "ZZZZ"}},
		{"import without file", "import", nil},
		{"artists unknown filter", "artists", []string{"--filter", "pending"}},
		{"artists unknown code", "artists", []string{"--code", "SAIF"}},
		{"remove without id", "remove", nil},
		{"remove missing artist", "remove", []string{"missing"}},
		{"jobs missing id", "jobs", []string{"--id", "missing"}},
		{"negative max duration", "classify-all", []string{"--max-duration", "-1s"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			if err := run(tt.command, tt.args, &out); err == nil {
				t.Errorf("expected an error, got output %q", out.String())
			}
		})
	}
}
