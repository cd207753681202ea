package corpus

import (
	"sort"

	"feedcorpus/internal/domain"
)

// Merge reconciles freshly ingested records against the corpus. Every
// existing item is preserved unchanged; an incoming record is appended only
// when neither its link nor its exact title matches anything already seen.
// Title matching catches syndication cross-posts published under different
// URLs; placeholder titles are exempt, since two untitled records are not
// the same story. Among incoming internal duplicates the first occurrence
// wins.
//
// The merged snapshot is re-sorted by date descending; the sort is stable so
// ties keep insertion order and repeated runs stay reproducible.
func Merge(existing domain.Snapshot, incoming []domain.RawItem) domain.Snapshot {
	links := make(map[string]struct{}, len(existing))
	titles := make(map[string]struct{}, len(existing))
	for _, item := range existing {
		links[item.Link] = struct{}{}
		if discriminatingTitle(item.Title) {
			titles[item.Title] = struct{}{}
		}
	}

	merged := make(domain.Snapshot, len(existing), len(existing)+len(incoming))
	copy(merged, existing)

	for _, raw := range incoming {
		if _, ok := links[raw.Link]; ok {
			continue
		}
		if discriminatingTitle(raw.Title) {
			if _, ok := titles[raw.Title]; ok {
				continue
			}
			titles[raw.Title] = struct{}{}
		}
		links[raw.Link] = struct{}{}

		merged = append(merged, domain.Item{
			Title:       raw.Title,
			Link:        raw.Link,
			Date:        raw.Date,
			Source:      raw.Source,
			Description: raw.Description,
		})
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Date.After(merged[j].Date.Time)
	})

	return merged
}

func discriminatingTitle(title string) bool {
	return title != "" && title != domain.UntitledTitle
}
