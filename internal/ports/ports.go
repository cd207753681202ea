package ports

import (
	"context"
	"time"

	"feedcorpus/internal/domain"
)

// CorpusStore exclusively owns the on-disk snapshot. Read returns the full
// corpus or a not-found error on first run; Write atomically replaces it.
type CorpusStore interface {
	Read() (domain.Snapshot, error)
	Write(snapshot domain.Snapshot) error
	Backup() (string, error)
}

// EnrichRequest carries everything the generator needs for one item.
// PreferredKeywords are reuse hints fed back from the existing corpus
// vocabulary to reduce drift.
type EnrichRequest struct {
	Title             string
	Description       string
	URL               string
	PreferredKeywords []string
}

// Generator wraps the external generation capability. Enrich returns a
// summary/keyword pair or an error after its internal retry policy is
// exhausted; callers record such errors per item rather than aborting.
type Generator interface {
	Enrich(ctx context.Context, req EnrichRequest) (domain.Enrichment, error)
	ScoreRelevance(ctx context.Context, item domain.Item) (domain.RelevanceTier, error)
}

// ContentFetcher pulls a bounded text excerpt of a linked page to ground
// the generation prompt. Failures are expected and non-fatal.
type ContentFetcher interface {
	Excerpt(ctx context.Context, url string) (string, error)
}

// Sleeper abstracts pacing and backoff delays so tests can simulate long
// schedules without real time passing.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// ProjectReport summarizes one analytics import for observability.
type ProjectReport struct {
	Inserted int
	Updated  int
}

// Projector mirrors corpus snapshots into the analytical store; re-running
// it is always safe and non-duplicating.
type Projector interface {
	Project(ctx context.Context, snapshot domain.Snapshot) (ProjectReport, error)
}

// Runner controls periodic pipeline execution.
type Runner interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
