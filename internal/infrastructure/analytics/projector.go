package analytics

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"

	"feedcorpus/internal/domain"
	"feedcorpus/internal/ports"
)

// Projector upserts corpus snapshots into the analytics database.
// Re-importing the same snapshot is always safe: existing articles are
// updated in place and keyword associations use insert-or-ignore.
type Projector struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ ports.Projector = (*Projector)(nil)

// NewProjector wires an opened analytics database.
func NewProjector(db *sql.DB, logger *slog.Logger) *Projector {
	return &Projector{db: db, logger: logger}
}

// Project imports every item of the snapshot inside one transaction and
// reports inserted vs. updated counts.
func (p *Projector) Project(ctx context.Context, snapshot domain.Snapshot) (ports.ProjectReport, error) {
	var report ports.ProjectReport

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return report, fmt.Errorf("begin import: %w", err)
	}
	defer tx.Rollback()

	for _, item := range snapshot {
		articleID, inserted, err := upsertArticle(ctx, tx, item)
		if err != nil {
			return report, fmt.Errorf("import article %s: %w", item.Link, err)
		}
		if inserted {
			report.Inserted++
		} else {
			report.Updated++
		}

		for _, kw := range item.Keywords {
			if err := linkKeyword(ctx, tx, articleID, kw); err != nil {
				return report, fmt.Errorf("link keyword %q: %w", kw, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return report, fmt.Errorf("commit import: %w", err)
	}

	p.logger.Info("corpus projected", "inserted", report.Inserted, "updated", report.Updated)
	return report, nil
}

func upsertArticle(ctx context.Context, tx *sql.Tx, item domain.Item) (int64, bool, error) {
	var id int64
	err := sq.Select("id").
		From("articles").
		Where(sq.Eq{"link": item.Link}).
		RunWith(tx).
		QueryRowContext(ctx).
		Scan(&id)

	date := item.Date.UTC().Format(time.RFC3339)

	switch {
	case err == nil:
		_, err = sq.Update("articles").
			Set("ai_summary", item.Summary).
			Set("description", item.Description).
			Where(sq.Eq{"id": id}).
			RunWith(tx).
			ExecContext(ctx)
		if err != nil {
			return 0, false, fmt.Errorf("update: %w", err)
		}
		return id, false, nil

	case errors.Is(err, sql.ErrNoRows):
		res, err := sq.Insert("articles").
			Columns("title", "link", "date", "source", "description", "ai_summary").
			Values(item.Title, item.Link, date, item.Source, item.Description, item.Summary).
			RunWith(tx).
			ExecContext(ctx)
		if err != nil {
			return 0, false, fmt.Errorf("insert: %w", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return 0, false, fmt.Errorf("insert id: %w", err)
		}
		return id, true, nil

	default:
		return 0, false, fmt.Errorf("lookup: %w", err)
	}
}

func linkKeyword(ctx context.Context, tx *sql.Tx, articleID int64, keyword string) error {
	if _, err := sq.Insert("keywords").
		Options("OR IGNORE").
		Columns("keyword").
		Values(keyword).
		RunWith(tx).
		ExecContext(ctx); err != nil {
		return fmt.Errorf("insert keyword: %w", err)
	}

	var keywordID int64
	if err := sq.Select("id").
		From("keywords").
		Where(sq.Eq{"keyword": keyword}).
		RunWith(tx).
		QueryRowContext(ctx).
		Scan(&keywordID); err != nil {
		return fmt.Errorf("lookup keyword: %w", err)
	}

	if _, err := sq.Insert("article_keywords").
		Options("OR IGNORE").
		Columns("article_id", "keyword_id").
		Values(articleID, keywordID).
		RunWith(tx).
		ExecContext(ctx); err != nil {
		return fmt.Errorf("insert association: %w", err)
	}

	return nil
}
