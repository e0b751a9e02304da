package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sydlexius/artpersona/internal/artist"
	"github.com/sydlexius/artpersona/internal/backup"
	"github.com/sydlexius/artpersona/internal/bulk"
	"github.com/sydlexius/artpersona/internal/classifier"
	"github.com/sydlexius/artpersona/internal/config"
	"github.com/sydlexius/artpersona/internal/logging"
	"github.com/sydlexius/artpersona/internal/skew"
	"github.com/sydlexius/artpersona/internal/taxonomy"
)

const usage = `usage: artpersona <command> [flags]

commands:
  import <file.yaml>   load artist records
  classify <id>        classify one artist and print its profile
  classify-all         classify every artist (or --ids) in a bulk job
  artists              list artists with their current codes
  remove <id>          delete an artist and its profile
  jobs                 list recent bulk jobs, or one job's items with --id
  detect-skew          report over-represented codes
  correct-skew         resubmit artists on over-represented codes
  backup               snapshot the store and list snapshots

Configuration is read from $AP_CONFIG_PATH (default ./artpersona.yaml) and
AP_* environment variables.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err := run(os.Args[1], os.Args[2:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(command string, args []string, out io.Writer) error {
	configPath := os.Getenv("AP_CONFIG_PATH")
	if configPath == "" {
		configPath = "artpersona.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logManager, logger := logging.NewManager(cfg.Logging, os.Stderr)
	defer logManager.Close() //nolint:errcheck
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		err := config.Watch(ctx, configPath, logger, func(c *config.Config) {
			logManager.Reconfigure(c.Logging)
		})
		if err != nil {
			logger.Debug("config watch disabled", "error", err)
		}
	}()

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	switch command {
	case "import":
		return cmdImport(ctx, a, args, out)
	case "classify":
		return cmdClassify(ctx, a, args, out)
	case "classify-all":
		return cmdClassifyAll(ctx, a, args, out)
	case "artists":
		return cmdArtists(ctx, a, args, out)
	case "remove":
		return cmdRemove(ctx, a, args, out)
	case "jobs":
		return cmdJobs(ctx, a, args, out)
	case "detect-skew":
		return cmdDetectSkew(ctx, a, args, out)
	case "correct-skew":
		return cmdCorrectSkew(ctx, a, args, out)
	case "backup":
		return cmdBackup(ctx, a, args, out)
	case "help", "-h", "--help":
		fmt.Fprint(out, usage)
		return nil
	}
	return fmt.Errorf("unknown command %q\n\n%s", command, usage)
}

func cmdImport(ctx context.Context, a *app, args []string, out io.Writer) error {
	if len(args) != 1 {
		return errors.New("import takes exactly one file")
	}
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close() //nolint:errcheck

	ids, err := importArtists(ctx, a.artists, f)
	if err != nil {
		return err
	}
	a.logger.Info("artists imported", slog.Int("count", len(ids)))
	return writeJSON(out, map[string]any{"imported": ids})
}

func cmdClassify(ctx context.Context, a *app, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("classify", flag.ContinueOnError)
	force := fs.Bool("force", false, "recompute even when inputs are unchanged")
	suppress := fs.String("suppress", "", "code to bar from top-1")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("classify takes exactly one artist id")
	}
	opts := classifier.Options{Force: *force}
	if *suppress != "" {
		code, err := taxonomy.Parse(*suppress)
		if err != nil {
			return err
		}
		opts.Suppress = code
	}
	p, err := a.classifier.ClassifyByID(ctx, fs.Arg(0), opts)
	if err != nil {
		return err
	}
	return writeJSON(out, p)
}

func cmdClassifyAll(ctx context.Context, a *app, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("classify-all", flag.ContinueOnError)
	force := fs.Bool("force", false, "recompute every profile")
	ids := fs.String("ids", "", "comma-separated artist ids (default: all)")
	maxDuration := fs.Duration("max-duration", 0, "cancel the job if it runs longer than this (0: no limit)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *maxDuration < 0 {
		return errors.New("--max-duration must not be negative")
	}

	mode := bulk.ModeIncremental
	if *force {
		mode = bulk.ModeForce
	}
	if mode == bulk.ModeForce {
		if err := a.beforeRewrite(ctx, "classify-all-force"); err != nil {
			return err
		}
	}
	job, err := a.jobs.CreateJob(ctx, bulk.TypeReclassify, mode, 0)
	if err != nil {
		return err
	}
	if *ids != "" {
		for _, id := range strings.Split(*ids, ",") {
			if id = strings.TrimSpace(id); id != "" {
				job.ArtistIDs = append(job.ArtistIDs, id)
			}
		}
	}

	var runErr error
	if *maxDuration > 0 {
		runErr = a.executor.RunFor(ctx, job, *maxDuration)
	} else {
		runErr = a.executor.Run(ctx, job)
	}
	a.afterRewrite(ctx)
	if err := writeJSON(out, job); err != nil {
		return err
	}
	return runErr
}

// artistRow is one line of the artists listing.
type artistRow struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Nationality string        `json:"nationality,omitempty"`
	Era         string        `json:"era,omitempty"`
	Medium      string        `json:"medium,omitempty"`
	Code        taxonomy.Code `json:"code,omitempty"`
	Confidence  int           `json:"confidence,omitempty"`
}

func cmdArtists(ctx context.Context, a *app, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("artists", flag.ContinueOnError)
	filter := fs.String("filter", "", "classified or unclassified")
	code := fs.String("code", "", "only artists whose top-1 is this code")
	search := fs.String("search", "", "substring of the name")
	sortBy := fs.String("sort", "name", "name, era, birth_year, created_at or updated_at")
	desc := fs.Bool("desc", false, "sort descending")
	page := fs.Int("page", 1, "page number")
	pageSize := fs.Int("page-size", artist.DefaultPageSize, "artists per page")
	if err := fs.Parse(args); err != nil {
		return err
	}

	params := artist.ListParams{
		Page:     *page,
		PageSize: *pageSize,
		Sort:     *sortBy,
		Search:   *search,
		Filter:   *filter,
	}
	if *desc {
		params.Order = "desc"
	}
	if *code != "" {
		c, err := taxonomy.Parse(*code)
		if err != nil {
			return err
		}
		params.Code = c
	}

	records, total, err := a.artists.List(ctx, params)
	if err != nil {
		return err
	}
	rows := make([]artistRow, 0, len(records))
	for _, r := range records {
		rows = append(rows, artistRow{
			ID:          r.ID,
			Name:        r.Name,
			Nationality: r.Nationality,
			Era:         r.Era,
			Medium:      r.Medium,
			Code:        r.Profile.Primary(),
			Confidence:  r.Profile.Confidence(),
		})
	}
	return writeJSON(out, map[string]any{"total": total, "page": max(*page, 1), "artists": rows})
}

func cmdRemove(ctx context.Context, a *app, args []string, out io.Writer) error {
	if len(args) != 1 {
		return errors.New("remove takes exactly one artist id")
	}
	if err := a.artists.Delete(ctx, args[0]); err != nil {
		return err
	}
	a.logger.Info("artist removed", slog.String("artist_id", args[0]))
	return writeJSON(out, map[string]any{"removed": args[0]})
}

func cmdJobs(ctx context.Context, a *app, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("jobs", flag.ContinueOnError)
	id := fs.String("id", "", "show one job with its items")
	limit := fs.Int("limit", bulk.DefaultListLimit, "jobs to list, newest first")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id != "" {
		report, err := a.jobs.Report(ctx, *id)
		if err != nil {
			return err
		}
		return writeJSON(out, report)
	}
	jobs, err := a.jobs.ListJobs(ctx, *limit)
	if err != nil {
		return err
	}
	return writeJSON(out, jobs)
}

func cmdDetectSkew(ctx context.Context, a *app, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("detect-skew", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	flagged, err := a.corrector.Detect(ctx)
	if err != nil {
		return err
	}
	if flagged == nil {
		flagged = []skew.Overshare{}
	}
	return writeJSON(out, flagged)
}

func cmdCorrectSkew(ctx context.Context, a *app, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("correct-skew", flag.ContinueOnError)
	code := fs.String("code", "", "correct only this code (default: loop over the most over-represented)")
	sample := fs.Int("sample", 0, "artists to resubmit per pass (default from config)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var target taxonomy.Code
	if *code != "" {
		c, err := taxonomy.Parse(*code)
		if err != nil {
			return err
		}
		target = c
	}
	if err := a.beforeRewrite(ctx, "correct-skew"); err != nil {
		return err
	}
	defer a.afterRewrite(ctx)

	if target != "" {
		resubmitted, err := a.corrector.CorrectSkew(ctx, target, *sample)
		if err != nil {
			return err
		}
		return writeJSON(out, map[string]any{"code": target, "resubmitted": resubmitted})
	}

	report, err := a.corrector.Run(ctx)
	if err != nil {
		return err
	}
	return writeJSON(out, report)
}

func cmdBackup(ctx context.Context, a *app, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("backup", flag.ContinueOnError)
	list := fs.Bool("list", false, "list snapshots instead of taking one")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !a.backups.Enabled() {
		return errors.New("backups are disabled: set backup.dir or AP_BACKUP_DIR")
	}
	if *list {
		snaps, err := a.backups.List()
		if err != nil {
			return err
		}
		if snaps == nil {
			snaps = []backup.Snapshot{}
		}
		return writeJSON(out, snaps)
	}
	snap, err := a.backups.Snapshot(ctx, "manual")
	if err != nil {
		return err
	}
	return writeJSON(out, snap)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
