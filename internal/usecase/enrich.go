package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"feedcorpus/internal/domain"
	"feedcorpus/internal/ports"
)

// ErrStalled reports an outer-loop iteration that made zero net progress on
// the backlog. It distinguishes a systemic failure (bad credential, dead
// endpoint) from transient rate limiting, which the adapter absorbs.
var ErrStalled = errors.New("enrichment stalled: iteration made no progress")

const (
	defaultBatchSize          = 10
	defaultCheckpointInterval = 5
	defaultPacing             = 7 * time.Second
	defaultConvergePause      = 2 * time.Second
	defaultMaxIterations      = 100
	defaultPreferredLimit     = 20
)

// EnricherConfig tunes the batch scheduler and its outer loop.
type EnricherConfig struct {
	BatchSize          int
	CheckpointInterval int
	Pacing             time.Duration
	ConvergePause      time.Duration
	MaxIterations      int
	PreferredLimit     int
	RelevancePacing    time.Duration
}

func (c EnricherConfig) withDefaults() EnricherConfig {
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.CheckpointInterval <= 0 {
		c.CheckpointInterval = defaultCheckpointInterval
	}
	if c.Pacing <= 0 {
		c.Pacing = defaultPacing
	}
	if c.ConvergePause <= 0 {
		c.ConvergePause = defaultConvergePause
	}
	if c.MaxIterations <= 0 {
		c.MaxIterations = defaultMaxIterations
	}
	if c.PreferredLimit <= 0 {
		c.PreferredLimit = defaultPreferredLimit
	}
	if c.RelevancePacing <= 0 {
		c.RelevancePacing = time.Second
	}
	return c
}

// Enricher drives the enrichment loop: select the backlog, work through a
// rate-limited batch, checkpoint partial results, and persist.
type Enricher struct {
	store   ports.CorpusStore
	gen     ports.Generator
	sleeper ports.Sleeper
	cfg     EnricherConfig
	logger  *slog.Logger
}

// NewEnricher wires the scheduler.
func NewEnricher(store ports.CorpusStore, gen ports.Generator, sleeper ports.Sleeper, cfg EnricherConfig, logger *slog.Logger) *Enricher {
	return &Enricher{
		store:   store,
		gen:     gen,
		sleeper: sleeper,
		cfg:     cfg.withDefaults(),
		logger:  logger,
	}
}

// RunReport summarizes one scheduler invocation.
type RunReport struct {
	Processed int
	Succeeded int
	Failed    int
	Remaining int
}

// RunOnce processes one bounded batch of the backlog. Items whose adapter
// call fails get the failure marker and an empty keyword set, so they are
// recorded as attempted instead of being retried forever. The snapshot is
// checkpointed every CheckpointInterval items, bounding the work lost to an
// interruption.
func (e *Enricher) RunOnce(ctx context.Context) (RunReport, error) {
	var report RunReport

	snapshot, err := e.store.Read()
	if err != nil {
		return report, fmt.Errorf("load corpus: %w", err)
	}

	var pending []int
	for i := range snapshot {
		if snapshot[i].NeedsSummary() {
			pending = append(pending, i)
		}
	}

	if len(pending) == 0 {
		e.logger.Info("nothing to enrich")
		return report, nil
	}

	batch := pending
	if len(batch) > e.cfg.BatchSize {
		batch = batch[:e.cfg.BatchSize]
	}

	preferred := preferredKeywords(snapshot, e.cfg.PreferredLimit)
	e.logger.Info("enrichment batch selected", "pending", len(pending), "batch", len(batch))

	sinceCheckpoint := 0
	for n, idx := range batch {
		if n > 0 {
			if err := e.sleeper.Sleep(ctx, e.cfg.Pacing); err != nil {
				return report, e.persistPartial(snapshot, report, err)
			}
		}

		item := &snapshot[idx]
		enrichment, genErr := e.gen.Enrich(ctx, ports.EnrichRequest{
			Title:             item.Title,
			Description:       item.Description,
			URL:               item.Link,
			PreferredKeywords: preferred,
		})

		if genErr != nil {
			if ctx.Err() != nil {
				return report, e.persistPartial(snapshot, report, ctx.Err())
			}
			item.Summary = domain.FailedSummary
			item.Keywords = nil
			report.Failed++
			e.logger.Warn("enrichment failed", "title", item.Title, "error", genErr)
		} else {
			item.Summary = enrichment.Summary
			item.Keywords = enrichment.Keywords
			report.Succeeded++
			e.logger.Info("item enriched", "title", item.Title, "keywords", len(enrichment.Keywords))
		}
		report.Processed++

		sinceCheckpoint++
		if sinceCheckpoint >= e.cfg.CheckpointInterval {
			if err := e.store.Write(snapshot); err != nil {
				return report, fmt.Errorf("checkpoint snapshot: %w", err)
			}
			sinceCheckpoint = 0
		}
	}

	if err := e.store.Write(snapshot); err != nil {
		return report, fmt.Errorf("persist snapshot: %w", err)
	}

	report.Remaining = snapshot.CountNeedingSummary()
	e.logger.Info("batch complete",
		"processed", report.Processed,
		"succeeded", report.Succeeded,
		"failed", report.Failed,
		"remaining", report.Remaining)
	return report, nil
}

// persistPartial saves whatever progress the interrupted batch made before
// surfacing the interruption. A later run resumes from persisted state.
func (e *Enricher) persistPartial(snapshot domain.Snapshot, report RunReport, cause error) error {
	if report.Processed == 0 {
		return cause
	}
	if err := e.store.Write(snapshot); err != nil {
		e.logger.Error("persist on interruption failed", "error", err)
	}
	return cause
}

// ConvergeReport summarizes a full outer-loop run.
type ConvergeReport struct {
	Iterations int
	Succeeded  int
	Failed     int
	Remaining  int
}

// Converge re-invokes RunOnce until the backlog is empty. An iteration that
// produces no real summaries while having work to do means the service is
// systemically failing, so the loop halts with ErrStalled instead of
// burning quota forever. Hard failures from a sub-invocation stop the loop
// immediately.
func (e *Enricher) Converge(ctx context.Context) (ConvergeReport, error) {
	var report ConvergeReport

	for report.Iterations < e.cfg.MaxIterations {
		report.Iterations++

		run, err := e.RunOnce(ctx)
		report.Succeeded += run.Succeeded
		report.Failed += run.Failed
		report.Remaining = run.Remaining
		if err != nil {
			return report, err
		}

		if run.Remaining == 0 {
			e.logger.Info("convergence reached",
				"iterations", report.Iterations,
				"succeeded", report.Succeeded,
				"failed", report.Failed)
			return report, nil
		}

		if run.Processed > 0 && run.Succeeded == 0 {
			return report, fmt.Errorf("%w after iteration %d (%d items still pending)",
				ErrStalled, report.Iterations, run.Remaining)
		}

		if err := e.sleeper.Sleep(ctx, e.cfg.ConvergePause); err != nil {
			return report, err
		}
	}

	return report, fmt.Errorf("no convergence after %d iterations (%d items still pending)",
		report.Iterations, report.Remaining)
}

// ScoreReport tallies a relevance-scoring pass.
type ScoreReport struct {
	Scored int
	High   int
	Mid    int
	Low    int
}

// ScoreRelevance tiers every item that has no relevance level yet. Tiers
// are write-once: re-running never re-scores an already tiered item.
// Scoring errors degrade to the low tier rather than aborting the pass.
func (e *Enricher) ScoreRelevance(ctx context.Context) (ScoreReport, error) {
	var report ScoreReport

	snapshot, err := e.store.Read()
	if err != nil {
		return report, fmt.Errorf("load corpus: %w", err)
	}

	for i := range snapshot {
		if snapshot[i].Relevance != "" {
			continue
		}

		if report.Scored > 0 {
			if err := e.sleeper.Sleep(ctx, e.cfg.RelevancePacing); err != nil {
				return report, err
			}
		}

		tier, scoreErr := e.gen.ScoreRelevance(ctx, snapshot[i])
		if scoreErr != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			e.logger.Warn("relevance scoring failed, defaulting to low", "title", snapshot[i].Title, "error", scoreErr)
			tier = domain.RelevanceLow
		}

		snapshot[i].Relevance = tier
		report.Scored++
		switch tier {
		case domain.RelevanceHigh:
			report.High++
		case domain.RelevanceMid:
			report.Mid++
		default:
			report.Low++
		}
	}

	if report.Scored == 0 {
		e.logger.Info("all items already scored")
		return report, nil
	}

	if err := e.store.Write(snapshot); err != nil {
		return report, fmt.Errorf("persist snapshot: %w", err)
	}

	e.logger.Info("relevance scoring complete",
		"scored", report.Scored, "high", report.High, "mid", report.Mid, "low", report.Low)
	return report, nil
}

// preferredKeywords returns the most frequent corpus keywords, capped at
// limit, as vocabulary-reuse hints for the generator.
func preferredKeywords(snapshot domain.Snapshot, limit int) []string {
	freq := map[string]int{}
	for _, item := range snapshot {
		for _, kw := range item.Keywords {
			freq[kw]++
		}
	}
	if len(freq) == 0 {
		return nil
	}

	keywords := make([]string, 0, len(freq))
	for kw := range freq {
		keywords = append(keywords, kw)
	}
	sort.Slice(keywords, func(i, j int) bool {
		if freq[keywords[i]] != freq[keywords[j]] {
			return freq[keywords[i]] > freq[keywords[j]]
		}
		return keywords[i] < keywords[j]
	})

	if len(keywords) > limit {
		keywords = keywords[:limit]
	}
	return keywords
}
