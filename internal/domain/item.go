package domain

import (
	"strings"
	"time"
)

// FailedSummary marks an item whose enrichment exhausted retries or returned
// no usable text. It keeps the item out of the work queue while staying
// distinguishable from a real summary.
const FailedSummary = "Unable to generate summary"

// UntitledTitle is the placeholder for ingested records without a title.
// Placeholder titles carry no identity, so dedup never matches on them.
const UntitledTitle = "Untitled"

// RelevanceTier classifies how relevant an item is to the focus topic.
type RelevanceTier string

const (
	RelevanceLow  RelevanceTier = "low"
	RelevanceMid  RelevanceTier = "mid"
	RelevanceHigh RelevanceTier = "high"
)

// ParseRelevanceTier validates a model answer; reports false for anything
// outside the low/mid/high vocabulary.
func ParseRelevanceTier(s string) (RelevanceTier, bool) {
	switch RelevanceTier(strings.ToLower(strings.TrimSpace(s))) {
	case RelevanceLow:
		return RelevanceLow, true
	case RelevanceMid:
		return RelevanceMid, true
	case RelevanceHigh:
		return RelevanceHigh, true
	}
	return "", false
}

// Item is one ingested unit of content. JSON field names match the
// historical corpus file, so an existing feed.json loads without migration;
// absent optional fields mean "not yet computed".
type Item struct {
	Title       string        `json:"title"`
	Link        string        `json:"link"`
	Date        Timestamp     `json:"date"`
	Source      string        `json:"source"`
	Description string        `json:"description"`
	Summary     string        `json:"ai_summary,omitempty"`
	Keywords    []string      `json:"keywords,omitempty"`
	Relevance   RelevanceTier `json:"relevance_level,omitempty"`
}

// NeedsSummary reports whether the item is still in the enrichment backlog.
func (i Item) NeedsSummary() bool {
	return i.Summary == ""
}

// Enriched reports whether the item carries a real generated summary,
// as opposed to no summary or the failure marker.
func (i Item) Enriched() bool {
	return i.Summary != "" && i.Summary != FailedSummary
}

// Inconsistent reports the recoverable anomaly of a real summary without
// keywords. Failure-marked items are a legitimate terminal state, not an
// inconsistency.
func (i Item) Inconsistent() bool {
	return i.Enriched() && len(i.Keywords) == 0
}

// RawItem is the ingestion shape: what a feed fetcher knows about an item
// before any enrichment.
type RawItem struct {
	Title       string    `json:"title"`
	Link        string    `json:"link"`
	Date        Timestamp `json:"date"`
	Source      string    `json:"source"`
	Description string    `json:"description"`
}

// Enrichment is the structured result of one generation call.
type Enrichment struct {
	Summary  string
	Keywords []string
}

// Snapshot is the entire corpus, the unit of atomic persistence.
type Snapshot []Item

// CountNeedingSummary returns the size of the enrichment backlog.
func (s Snapshot) CountNeedingSummary() int {
	n := 0
	for _, item := range s {
		if item.NeedsSummary() {
			n++
		}
	}
	return n
}

// CountUnenriched counts items without a real summary, failure-marked
// included. The convergence loop uses this as its progress measure.
func (s Snapshot) CountUnenriched() int {
	n := 0
	for _, item := range s {
		if !item.Enriched() {
			n++
		}
	}
	return n
}

// Timestamp is an item date tolerant of the historical corpus formats:
// RFC 3339 with or without zone or fractional seconds, or a bare date.
// It always marshals as RFC 3339.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// NewTimestamp wraps a time value.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t}
}

// MarshalJSON renders the timestamp as a quoted RFC 3339 string.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.UTC().Format(time.RFC3339) + `"`), nil
}

// UnmarshalJSON accepts any of the historical layouts.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(data), `"`)
	if raw == "" || raw == "null" {
		t.Time = time.Time{}
		return nil
	}

	var lastErr error
	for _, layout := range timestampLayouts {
		parsed, err := time.Parse(layout, raw)
		if err == nil {
			t.Time = parsed
			return nil
		}
		lastErr = err
	}
	return lastErr
}
