package usecase

import (
	"fmt"
	"log/slog"

	"feedcorpus/internal/domain"
	"feedcorpus/internal/infrastructure/ingest"
	"feedcorpus/internal/ports"
)

// Maintenance groups the corpus repair flows. All of them are explicit
// state transitions on the snapshot, persisted atomically, never reached by
// the enrichment loop on its own.
type Maintenance struct {
	store    ports.CorpusStore
	excluded map[string]struct{}
	logger   *slog.Logger
}

// NewMaintenance wires the repair flows.
func NewMaintenance(store ports.CorpusStore, excludedKeywords []string, logger *slog.Logger) *Maintenance {
	return &Maintenance{
		store:    store,
		excluded: domain.ExclusionSet(excludedKeywords),
		logger:   logger,
	}
}

// RepairInconsistent returns items that have a real summary but no keywords
// to the backlog by clearing the summary. Regenerating both fields together
// beats inferring keywords after the fact. Failure-marked items are left
// alone; their state is deliberate.
func (m *Maintenance) RepairInconsistent() (int, error) {
	snapshot, err := m.store.Read()
	if err != nil {
		return 0, fmt.Errorf("load corpus: %w", err)
	}

	repaired := 0
	for i := range snapshot {
		if snapshot[i].Inconsistent() {
			snapshot[i].Summary = ""
			snapshot[i].Keywords = nil
			repaired++
		}
	}

	if repaired == 0 {
		m.logger.Info("no inconsistent items found")
		return 0, nil
	}

	if err := m.store.Write(snapshot); err != nil {
		return 0, fmt.Errorf("persist snapshot: %w", err)
	}

	m.logger.Info("inconsistent items returned to backlog", "count", repaired)
	return repaired, nil
}

// CleanKeywords strips excluded keywords corpus-wide; useful after the
// exclusion list grows. Returns removed keywords and touched items.
func (m *Maintenance) CleanKeywords() (removed, touched int, err error) {
	snapshot, err := m.store.Read()
	if err != nil {
		return 0, 0, fmt.Errorf("load corpus: %w", err)
	}

	for i := range snapshot {
		if len(snapshot[i].Keywords) == 0 {
			continue
		}
		kept := domain.NormalizeKeywords(snapshot[i].Keywords, m.excluded)
		if delta := len(snapshot[i].Keywords) - len(kept); delta > 0 {
			snapshot[i].Keywords = kept
			removed += delta
			touched++
		}
	}

	if removed == 0 {
		return 0, 0, nil
	}

	if err := m.store.Write(snapshot); err != nil {
		return 0, 0, fmt.Errorf("persist snapshot: %w", err)
	}

	m.logger.Info("excluded keywords cleaned", "removed", removed, "items", touched)
	return removed, touched, nil
}

// Reset clears summaries and keywords from every item so the whole corpus
// is regenerated. A timestamped backup is taken first.
func (m *Maintenance) Reset() (cleared int, backupPath string, err error) {
	backupPath, err = m.store.Backup()
	if err != nil {
		return 0, "", fmt.Errorf("backup corpus: %w", err)
	}

	snapshot, err := m.store.Read()
	if err != nil {
		return 0, "", fmt.Errorf("load corpus: %w", err)
	}

	for i := range snapshot {
		if snapshot[i].Summary != "" || len(snapshot[i].Keywords) > 0 {
			snapshot[i].Summary = ""
			snapshot[i].Keywords = nil
			cleared++
		}
	}

	if err := m.store.Write(snapshot); err != nil {
		return 0, "", fmt.Errorf("persist snapshot: %w", err)
	}

	m.logger.Info("enrichment cleared for regeneration", "cleared", cleared, "backup", backupPath)
	return cleared, backupPath, nil
}

// FixSources recomputes each item's source domain from its link, repairing
// corpora ingested before redirect unwrapping existed.
func (m *Maintenance) FixSources() (int, error) {
	snapshot, err := m.store.Read()
	if err != nil {
		return 0, fmt.Errorf("load corpus: %w", err)
	}

	updated := 0
	for i := range snapshot {
		if fixed := ingest.SourceDomain(snapshot[i].Link); fixed != snapshot[i].Source {
			m.logger.Debug("source fixed", "from", snapshot[i].Source, "to", fixed, "title", snapshot[i].Title)
			snapshot[i].Source = fixed
			updated++
		}
	}

	if updated == 0 {
		return 0, nil
	}

	if err := m.store.Write(snapshot); err != nil {
		return 0, fmt.Errorf("persist snapshot: %w", err)
	}

	m.logger.Info("source domains updated", "count", updated)
	return updated, nil
}
