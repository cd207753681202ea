package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"feedcorpus/internal/config"
	"feedcorpus/internal/corpus"
	"feedcorpus/internal/infrastructure/analytics"
	"feedcorpus/internal/infrastructure/fetch"
	"feedcorpus/internal/infrastructure/gemini"
	"feedcorpus/internal/infrastructure/ingest"
	"feedcorpus/internal/infrastructure/scheduler"
	"feedcorpus/internal/logging"
	"feedcorpus/internal/usecase"
)

// Application wires configs to use cases and dispatches CLI commands.
type Application struct {
	cfg      config.Config
	logger   *slog.Logger
	store    *corpus.Store
	enricher *usecase.Enricher
	maint    *usecase.Maintenance
}

// New builds a runnable application instance.
func New(cfg config.Config, baseLogger *slog.Logger) *Application {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	store := corpus.NewStore(cfg.Corpus.Path, baseLogger.With("component", "corpus"))
	sleeper := scheduler.RealSleeper{}

	fetcher := fetch.NewPageFetcher(
		&http.Client{Timeout: cfg.Fetch.Timeout()},
		cfg.Fetch.MaxBytes,
		cfg.Fetch.ExcerptChars,
	)

	generator := gemini.NewClient(
		cfg.Gemini,
		cfg.Keywords,
		fetcher,
		sleeper,
		baseLogger.With("component", "gemini"),
	)

	enricher := usecase.NewEnricher(store, generator, sleeper, usecase.EnricherConfig{
		BatchSize:          cfg.Enrich.BatchSize,
		CheckpointInterval: cfg.Enrich.CheckpointInterval,
		Pacing:             cfg.Enrich.Pacing(),
		ConvergePause:      cfg.Enrich.ConvergePause(),
		MaxIterations:      cfg.Enrich.MaxIterations,
		PreferredLimit:     cfg.Enrich.PreferredKeywordLimit,
		RelevancePacing:    cfg.Relevance.Pacing(),
	}, baseLogger.With("component", "enricher"))

	maint := usecase.NewMaintenance(store, cfg.Keywords.Excluded, baseLogger.With("component", "maintenance"))

	return &Application{
		cfg:      cfg,
		logger:   baseLogger,
		store:    store,
		enricher: enricher,
		maint:    maint,
	}
}

// Run dispatches a CLI invocation.
func (a *Application) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New(usage)
	}

	switch args[0] {
	case "ingest":
		path := "-"
		if len(args) > 1 {
			path = args[1]
		}
		return a.Ingest(path)
	case "enrich":
		return a.Enrich(ctx)
	case "converge":
		return a.Converge(ctx)
	case "score":
		return a.Score(ctx)
	case "repair":
		_, err := a.maint.RepairInconsistent()
		return err
	case "clean-keywords":
		_, _, err := a.maint.CleanKeywords()
		return err
	case "reset":
		_, _, err := a.maint.Reset()
		return err
	case "fix-sources":
		_, err := a.maint.FixSources()
		return err
	case "project":
		return a.Project(ctx)
	case "stats":
		return a.Stats(ctx)
	case "watch":
		return a.Watch(ctx)
	default:
		return fmt.Errorf("unknown command %q\n%s", args[0], usage)
	}
}

const usage = `usage: feedcorpus <command>

commands:
  ingest [file]   merge raw item records (JSON array, "-" for stdin) into the corpus
  enrich          run one bounded enrichment batch
  converge        run enrichment batches until the backlog is empty
  score           tier unscored items by relevance
  repair          return summary-without-keywords items to the backlog
  clean-keywords  strip excluded keywords corpus-wide
  reset           back up the corpus and clear all enrichment
  fix-sources     recompute source domains from links
  project         import the corpus into the analytics database
  stats           print aggregate statistics from the analytics database
  watch           run converge+score+project on a fixed interval`

// Ingest merges raw item records into the corpus. A missing corpus file is
// an empty corpus here, since ingestion is how a corpus comes to exist.
func (a *Application) Ingest(path string) error {
	var in io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open raw items: %w", err)
		}
		defer f.Close()
		in = f
	}

	records, err := ingest.ReadRecords(in)
	if err != nil {
		return err
	}

	existing, err := a.store.Read()
	if err != nil && !errors.Is(err, corpus.ErrNotFound) {
		return err
	}

	merged := corpus.Merge(existing, records)
	if err := a.store.Write(merged); err != nil {
		return err
	}

	a.logger.Info("ingest complete",
		"fetched", len(records),
		"new", len(merged)-len(existing),
		"total", len(merged))
	return nil
}

// Enrich runs a single scheduler invocation.
func (a *Application) Enrich(ctx context.Context) error {
	if err := a.requireAPIKey(); err != nil {
		return err
	}
	_, err := a.enricher.RunOnce(ctx)
	return err
}

// Converge drives the outer loop until the backlog is empty or stalled.
func (a *Application) Converge(ctx context.Context) error {
	if err := a.requireAPIKey(); err != nil {
		return err
	}
	_, err := a.enricher.Converge(ctx)
	return err
}

// Score runs the relevance-tier pass.
func (a *Application) Score(ctx context.Context) error {
	if err := a.requireAPIKey(); err != nil {
		return err
	}
	_, err := a.enricher.ScoreRelevance(ctx)
	return err
}

// Project imports the corpus into the analytics database.
func (a *Application) Project(ctx context.Context) error {
	snapshot, err := a.store.Read()
	if err != nil {
		return err
	}

	db, err := analytics.Open(a.cfg.Analytics.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	projector := analytics.NewProjector(db, a.logger.With("component", "analytics"))
	_, err = projector.Project(ctx, snapshot)
	return err
}

// Stats prints the derived analytics views.
func (a *Application) Stats(ctx context.Context) error {
	db, err := analytics.Open(a.cfg.Analytics.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	projector := analytics.NewProjector(db, a.logger.With("component", "analytics"))
	stats, err := projector.Stats(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Total articles: %d\n", stats.TotalArticles)
	fmt.Printf("Unique keywords: %d\n", stats.TotalKeywords)
	fmt.Printf("Articles with summaries: %d\n", stats.WithSummaries)
	fmt.Printf("Date range: %s to %s\n", stats.EarliestDate, stats.LatestDate)

	fmt.Println("\nTop keywords:")
	for _, kc := range stats.TopKeywords {
		fmt.Printf("  %s: %d\n", kc.Keyword, kc.Count)
	}

	fmt.Println("\nTop sources:")
	for _, sc := range stats.TopSources {
		fmt.Printf("  %s: %d\n", sc.Source, sc.Count)
	}

	if len(stats.HotTopics) > 0 {
		fmt.Println("\nHot topics this week:")
		for _, t := range stats.HotTopics {
			fmt.Printf("  %s: %d articles (delta %+d)\n", t.Keyword, t.Current, t.Delta())
		}
	}

	return nil
}

// Watch runs the full pipeline periodically until the context is cancelled.
func (a *Application) Watch(ctx context.Context) error {
	if err := a.requireAPIKey(); err != nil {
		return err
	}

	runner := scheduler.NewIntervalRunner(a.cfg.Watch.Interval())
	job := func(t time.Time) {
		a.logger.Info("watch cycle started", "at", t.Format(time.RFC3339))
		if err := a.Converge(ctx); err != nil {
			a.logger.Error("converge failed", "error", err)
			return
		}
		if err := a.Score(ctx); err != nil {
			a.logger.Error("score failed", "error", err)
			return
		}
		if err := a.Project(ctx); err != nil {
			a.logger.Error("project failed", "error", err)
		}
	}

	if err := runner.Start(ctx, job); err != nil {
		return err
	}
	<-ctx.Done()
	return runner.Stop(context.Background())
}

// requireAPIKey is the precondition gate: commands that reach the
// generation service fail before any work begins when the credential is
// absent.
func (a *Application) requireAPIKey() error {
	if a.cfg.Gemini.APIKey == "" {
		return errors.New("GEMINI_API_KEY is not set")
	}
	return nil
}
