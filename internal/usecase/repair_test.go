package usecase

import (
	"testing"

	"feedcorpus/internal/domain"
)

func newTestMaintenance(store *fakeStore) *Maintenance {
	return NewMaintenance(store, domain.DefaultExcludedKeywords, testLogger())
}

func TestRepairInconsistent(t *testing.T) {
	t.Parallel()

	snap := items(4)
	snap[0].Summary = "real summary" // no keywords: inconsistent
	snap[1].Summary = "real summary"
	snap[1].Keywords = []string{"lra"} // consistent
	snap[2].Summary = domain.FailedSummary // terminal, not inconsistent

	store := &fakeStore{snapshot: snap}
	repaired, err := newTestMaintenance(store).RepairInconsistent()
	if err != nil {
		t.Fatalf("RepairInconsistent: %v", err)
	}
	if repaired != 1 {
		t.Fatalf("repaired = %d, want 1", repaired)
	}

	if store.snapshot[0].Summary != "" {
		t.Fatal("inconsistent item was not returned to backlog")
	}
	if store.snapshot[1].Summary != "real summary" {
		t.Fatal("consistent item was touched")
	}
	if store.snapshot[2].Summary != domain.FailedSummary {
		t.Fatal("failure-marked item was touched")
	}
}

func TestRepairInconsistentNoopSkipsWrite(t *testing.T) {
	t.Parallel()

	store := &fakeStore{snapshot: items(2)}
	if _, err := newTestMaintenance(store).RepairInconsistent(); err != nil {
		t.Fatalf("RepairInconsistent: %v", err)
	}
	if len(store.writes) != 0 {
		t.Fatalf("clean corpus still persisted %d times", len(store.writes))
	}
}

func TestCleanKeywords(t *testing.T) {
	t.Parallel()

	snap := items(3)
	snap[0].Keywords = []string{"haptics", "lra", "Vibration"}
	snap[1].Keywords = []string{"waveform"}

	store := &fakeStore{snapshot: snap}
	removed, touched, err := newTestMaintenance(store).CleanKeywords()
	if err != nil {
		t.Fatalf("CleanKeywords: %v", err)
	}

	if removed != 2 || touched != 1 {
		t.Fatalf("removed=%d touched=%d, want 2 and 1", removed, touched)
	}
	if got := store.snapshot[0].Keywords; len(got) != 1 || got[0] != "lra" {
		t.Fatalf("keywords after clean = %v", got)
	}
	if got := store.snapshot[1].Keywords; len(got) != 1 || got[0] != "waveform" {
		t.Fatalf("untouched item changed: %v", got)
	}
}

func TestReset(t *testing.T) {
	t.Parallel()

	snap := items(3)
	snap[0].Summary = "summary"
	snap[0].Keywords = []string{"lra"}
	snap[1].Summary = domain.FailedSummary

	store := &fakeStore{snapshot: snap}
	cleared, backup, err := newTestMaintenance(store).Reset()
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}

	if backup == "" {
		t.Fatal("no backup taken before reset")
	}
	if cleared != 2 {
		t.Fatalf("cleared = %d, want 2", cleared)
	}
	for _, it := range store.snapshot {
		if it.Summary != "" || len(it.Keywords) != 0 {
			t.Fatalf("item %s not cleared: %+v", it.Title, it)
		}
	}
}

func TestFixSources(t *testing.T) {
	t.Parallel()

	snap := items(2)
	snap[0].Link = "https://www.google.com/url?url=https%3A%2F%2Fwired.com%2Fstory&ct=ga"
	snap[0].Source = "google"
	snap[1].Link = "https://arstechnica.com/gadgets/2025/article"
	snap[1].Source = "arstechnica"

	store := &fakeStore{snapshot: snap}
	updated, err := newTestMaintenance(store).FixSources()
	if err != nil {
		t.Fatalf("FixSources: %v", err)
	}

	if updated != 1 {
		t.Fatalf("updated = %d, want 1", updated)
	}
	if store.snapshot[0].Source != "wired" {
		t.Fatalf("redirect not unwrapped: %q", store.snapshot[0].Source)
	}
	if store.snapshot[1].Source != "arstechnica" {
		t.Fatal("already correct source was counted as updated")
	}
}
