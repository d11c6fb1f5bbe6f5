package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/nik45114/kbcore/pkg/domain/model"
	"github.com/nik45114/kbcore/pkg/domain/types"
)

const draftColumns = `id, question, answer, category, tags, source, confidence, proposed_by, status, edited, reviewed_by, knowledge_id, created_at, reviewed_at`

type draftRepository struct {
	db *sql.DB
}

func scanDraft(row rowScanner) (*model.Draft, error) {
	var (
		d                     model.Draft
		tags                  string
		edited                int
		createdAt, reviewedAt int64
	)
	if err := row.Scan(&d.ID, &d.Question, &d.Answer, &d.Category, &tags, &d.Source, &d.Confidence,
		&d.ProposedBy, &d.Status, &edited, &d.ReviewedBy, &d.KnowledgeID, &createdAt, &reviewedAt); err != nil {
		return nil, err
	}

	decoded, err := decodeTags(tags)
	if err != nil {
		return nil, err
	}
	d.Tags = decoded
	d.Edited = edited == 1
	d.CreatedAt = fromUnix(createdAt)
	d.ReviewedAt = fromUnix(reviewedAt)
	return &d, nil
}

func (r *draftRepository) Create(ctx context.Context, draft *model.Draft) (*model.Draft, error) {
	created := draft.Copy()
	if created.ID == "" {
		created.ID = model.NewDraftID()
	}
	if created.Status == "" {
		created.Status = types.DraftStatusPending
	}
	if created.CreatedAt.IsZero() {
		created.CreatedAt = time.Now().UTC()
	}

	tags, err := encodeTags(created.Tags)
	if err != nil {
		return nil, err
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO drafts (`+draftColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		created.ID, created.Question, created.Answer, created.Category, tags, created.Source, created.Confidence,
		created.ProposedBy, created.Status, boolToInt(created.Edited), created.ReviewedBy, created.KnowledgeID,
		toUnix(created.CreatedAt), toUnix(created.ReviewedAt),
	)
	if err != nil {
		if isConstraint(err) {
			return nil, goerr.Wrap(model.ErrInvalidState, "draft already exists", goerr.V(model.DraftIDKey, created.ID))
		}
		return nil, goerr.Wrap(err, "failed to create draft", goerr.V(model.DraftIDKey, created.ID))
	}
	return created, nil
}

func (r *draftRepository) Get(ctx context.Context, id model.DraftID) (*model.Draft, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+draftColumns+` FROM drafts WHERE id = ?`, id)
	d, err := scanDraft(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, goerr.Wrap(model.ErrNotFound, "draft not found", goerr.V(model.DraftIDKey, id))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get draft", goerr.V(model.DraftIDKey, id))
	}
	return d, nil
}

func (r *draftRepository) List(ctx context.Context, status types.DraftStatus, limit, offset int) ([]*model.Draft, int, error) {
	where := ""
	var args []any
	if status != "" {
		where = ` WHERE status = ?`
		args = append(args, status)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM drafts`+where, args...).Scan(&total); err != nil {
		return nil, 0, goerr.Wrap(err, "failed to count drafts")
	}

	if limit <= 0 {
		limit = -1
	}
	if offset < 0 {
		offset = 0
	}
	query := `SELECT ` + draftColumns + ` FROM drafts` + where + ` ORDER BY confidence DESC, created_at ASC, rowid ASC LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, goerr.Wrap(err, "failed to list drafts")
	}
	defer rows.Close()

	result := make([]*model.Draft, 0)
	for rows.Next() {
		d, err := scanDraft(rows)
		if err != nil {
			return nil, 0, goerr.Wrap(err, "failed to scan draft")
		}
		result = append(result, d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, goerr.Wrap(err, "failed to iterate drafts")
	}
	return result, total, nil
}

func (r *draftRepository) Resolve(ctx context.Context, expected types.DraftStatus, resolved *model.Draft) (*model.Draft, error) {
	tags, err := encodeTags(resolved.Tags)
	if err != nil {
		return nil, err
	}

	var stored *model.Draft
	err = inTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE drafts SET question = ?, answer = ?, category = ?, tags = ?, source = ?, confidence = ?,
				status = ?, edited = ?, reviewed_by = ?, knowledge_id = ?, reviewed_at = ?
			WHERE id = ? AND status = ?`,
			resolved.Question, resolved.Answer, resolved.Category, tags, resolved.Source, resolved.Confidence,
			resolved.Status, boolToInt(resolved.Edited), resolved.ReviewedBy, resolved.KnowledgeID, toUnix(resolved.ReviewedAt),
			resolved.ID, expected,
		)
		if err != nil {
			return goerr.Wrap(err, "failed to update draft")
		}

		n, err := res.RowsAffected()
		if err != nil {
			return goerr.Wrap(err, "failed to count updated rows")
		}

		row := tx.QueryRowContext(ctx, `SELECT `+draftColumns+` FROM drafts WHERE id = ?`, resolved.ID)
		current, err := scanDraft(row)
		if errors.Is(err, sql.ErrNoRows) {
			return goerr.Wrap(model.ErrNotFound, "draft not found")
		}
		if err != nil {
			return goerr.Wrap(err, "failed to read draft")
		}
		if n == 0 {
			return goerr.Wrap(model.ErrInvalidState, "draft status changed",
				goerr.V("expected", expected), goerr.V(model.StatusKey, current.Status))
		}
		stored = current
		return nil
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to resolve draft", goerr.V(model.DraftIDKey, resolved.ID))
	}
	return stored, nil
}
