package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/nik45114/kbcore/pkg/domain/model"
)

type gapRepository struct {
	db *sql.DB
}

func (r *gapRepository) Create(ctx context.Context, gap *model.CoverageGap) (*model.CoverageGap, error) {
	created := *gap
	if created.ID == "" {
		created.ID = model.NewCoverageGapID()
	}
	if created.CreatedAt.IsZero() {
		created.CreatedAt = time.Now().UTC()
	}

	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO gaps (id, question, top_score, asked_by, created_at) VALUES (?, ?, ?, ?, ?)`,
		created.ID, created.Question, created.TopScore, created.AskedBy, toUnix(created.CreatedAt),
	); err != nil {
		return nil, goerr.Wrap(err, "failed to create coverage gap", goerr.V("question", created.Question))
	}
	return &created, nil
}

func (r *gapRepository) List(ctx context.Context, limit int) ([]*model.CoverageGap, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, question, top_score, asked_by, created_at FROM gaps ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list coverage gaps")
	}
	defer rows.Close()

	result := make([]*model.CoverageGap, 0)
	for rows.Next() {
		var (
			g         model.CoverageGap
			createdAt int64
		)
		if err := rows.Scan(&g.ID, &g.Question, &g.TopScore, &g.AskedBy, &createdAt); err != nil {
			return nil, goerr.Wrap(err, "failed to scan coverage gap")
		}
		g.CreatedAt = fromUnix(createdAt)
		result = append(result, &g)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate coverage gaps")
	}
	return result, nil
}
