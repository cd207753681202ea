package analytics

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

// KeywordCount pairs a keyword with its article count.
type KeywordCount struct {
	Keyword string
	Count   int
}

// SourceCount pairs a source domain with its article count.
type SourceCount struct {
	Source string
	Count  int
}

// TrendEntry compares a keyword's mentions between the current and the
// previous 7-day window.
type TrendEntry struct {
	Keyword  string
	Current  int
	Previous int
}

// Delta is the week-over-week change in mentions.
func (t TrendEntry) Delta() int {
	return t.Current - t.Previous
}

// Stats is the set of derived views consumers read from the analytics
// store. These are read-only aggregates over the projected corpus.
type Stats struct {
	TotalArticles int
	TotalKeywords int
	WithSummaries int
	EarliestDate  string
	LatestDate    string
	TopKeywords   []KeywordCount
	TopSources    []SourceCount
	HotTopics     []TrendEntry
}

const statsLimit = 10

// Stats computes the aggregate views.
func (p *Projector) Stats(ctx context.Context) (Stats, error) {
	var stats Stats

	if err := sq.Select("COUNT(*)").From("articles").
		RunWith(p.db).QueryRowContext(ctx).Scan(&stats.TotalArticles); err != nil {
		return stats, fmt.Errorf("count articles: %w", err)
	}

	if err := sq.Select("COUNT(*)").From("keywords").
		RunWith(p.db).QueryRowContext(ctx).Scan(&stats.TotalKeywords); err != nil {
		return stats, fmt.Errorf("count keywords: %w", err)
	}

	if err := sq.Select("COUNT(*)").From("articles").
		Where("ai_summary IS NOT NULL AND ai_summary != ''").
		RunWith(p.db).QueryRowContext(ctx).Scan(&stats.WithSummaries); err != nil {
		return stats, fmt.Errorf("count summarized: %w", err)
	}

	var earliest, latest sql.NullString
	if err := sq.Select("MIN(date)", "MAX(date)").From("articles").
		RunWith(p.db).QueryRowContext(ctx).Scan(&earliest, &latest); err != nil {
		return stats, fmt.Errorf("date range: %w", err)
	}
	stats.EarliestDate = earliest.String
	stats.LatestDate = latest.String

	var err error
	if stats.TopKeywords, err = p.topKeywords(ctx); err != nil {
		return stats, err
	}
	if stats.TopSources, err = p.topSources(ctx); err != nil {
		return stats, err
	}
	if stats.HotTopics, err = p.hotTopics(ctx); err != nil {
		return stats, err
	}

	return stats, nil
}

func (p *Projector) topKeywords(ctx context.Context) ([]KeywordCount, error) {
	rows, err := sq.Select("k.keyword", "COUNT(*) AS count").
		From("keywords k").
		Join("article_keywords ak ON k.id = ak.keyword_id").
		GroupBy("k.keyword").
		OrderBy("count DESC", "k.keyword").
		Limit(statsLimit).
		RunWith(p.db).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("top keywords: %w", err)
	}
	defer rows.Close()

	var result []KeywordCount
	for rows.Next() {
		var kc KeywordCount
		if err := rows.Scan(&kc.Keyword, &kc.Count); err != nil {
			return nil, fmt.Errorf("scan keyword count: %w", err)
		}
		result = append(result, kc)
	}
	return result, rows.Err()
}

func (p *Projector) topSources(ctx context.Context) ([]SourceCount, error) {
	rows, err := sq.Select("source", "COUNT(*) AS count").
		From("articles").
		GroupBy("source").
		OrderBy("count DESC", "source").
		Limit(statsLimit).
		RunWith(p.db).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("top sources: %w", err)
	}
	defer rows.Close()

	var result []SourceCount
	for rows.Next() {
		var sc SourceCount
		if err := rows.Scan(&sc.Source, &sc.Count); err != nil {
			return nil, fmt.Errorf("scan source count: %w", err)
		}
		result = append(result, sc)
	}
	return result, rows.Err()
}

// hotTopics compares keyword mentions in the last 7 days against the 7 days
// before that. The current window has no upper bound: article dates are
// RFC 3339 strings while datetime('now', ...) uses a space separator, so a
// textual "now" cutoff would exclude same-day articles.
func (p *Projector) hotTopics(ctx context.Context) ([]TrendEntry, error) {
	current, err := p.keywordWindow(ctx, "-7 days", "")
	if err != nil {
		return nil, err
	}
	previousCounts, err := p.keywordWindow(ctx, "-14 days", "-7 days")
	if err != nil {
		return nil, err
	}

	previous := make(map[string]int, len(previousCounts))
	for _, kc := range previousCounts {
		previous[kc.Keyword] = kc.Count
	}

	var result []TrendEntry
	for _, kc := range current {
		result = append(result, TrendEntry{
			Keyword:  kc.Keyword,
			Current:  kc.Count,
			Previous: previous[kc.Keyword],
		})
	}
	return result, nil
}

// keywordWindow counts keyword mentions for articles dated within the given
// offsets from now; an empty to leaves the window open-ended.
func (p *Projector) keywordWindow(ctx context.Context, from, to string) ([]KeywordCount, error) {
	query := sq.Select("k.keyword", "COUNT(*) AS count").
		From("articles a").
		Join("article_keywords ak ON a.id = ak.article_id").
		Join("keywords k ON ak.keyword_id = k.id").
		Where("a.date >= datetime('now', ?)", from)
	if to != "" {
		query = query.Where("a.date < datetime('now', ?)", to)
	}

	rows, err := query.
		GroupBy("k.keyword").
		OrderBy("count DESC", "k.keyword").
		Limit(statsLimit).
		RunWith(p.db).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("keyword window %s..%s: %w", from, to, err)
	}
	defer rows.Close()

	var result []KeywordCount
	for rows.Next() {
		var kc KeywordCount
		if err := rows.Scan(&kc.Keyword, &kc.Count); err != nil {
			return nil, fmt.Errorf("scan window count: %w", err)
		}
		result = append(result, kc)
	}
	return result, rows.Err()
}
