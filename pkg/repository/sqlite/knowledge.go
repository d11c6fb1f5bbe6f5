package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/nik45114/kbcore/pkg/domain/model"
)

const knowledgeColumns = `id, topic_id, question, question_key, answer, category, tags, source, version, is_current, created_by, created_at`

type knowledgeRepository struct {
	db *sql.DB
}

func scanKnowledge(row rowScanner) (*model.Knowledge, error) {
	var (
		k         model.Knowledge
		tags      string
		isCurrent int
		createdAt int64
	)
	if err := row.Scan(&k.ID, &k.TopicID, &k.Question, &k.QuestionKey, &k.Answer, &k.Category,
		&tags, &k.Source, &k.Version, &isCurrent, &k.CreatedBy, &createdAt); err != nil {
		return nil, err
	}

	decoded, err := decodeTags(tags)
	if err != nil {
		return nil, err
	}
	k.Tags = decoded
	k.IsCurrent = isCurrent == 1
	k.CreatedAt = fromUnix(createdAt)
	return &k, nil
}

func insertKnowledge(ctx context.Context, tx *sql.Tx, k *model.Knowledge) error {
	tags, err := encodeTags(k.Tags)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO knowledges (`+knowledgeColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		k.ID, k.TopicID, k.Question, k.QuestionKey, k.Answer, k.Category,
		tags, k.Source, k.Version, boolToInt(k.IsCurrent), k.CreatedBy, toUnix(k.CreatedAt),
	)
	if err != nil {
		if isConstraint(err) {
			return goerr.Wrap(model.ErrInvalidState, "knowledge conflicts with an existing record",
				goerr.V(model.KnowledgeIDKey, k.ID), goerr.V(model.TopicIDKey, k.TopicID))
		}
		return goerr.Wrap(err, "failed to insert knowledge", goerr.V(model.KnowledgeIDKey, k.ID))
	}
	return nil
}

func (r *knowledgeRepository) Create(ctx context.Context, knowledge *model.Knowledge) (*model.Knowledge, error) {
	created := knowledge.Copy()
	if created.ID == "" {
		created.ID = model.NewKnowledgeID()
	}
	if created.TopicID == "" {
		created.TopicID = created.ID
	}
	if created.Version == 0 {
		created.Version = 1
	}
	if created.CreatedAt.IsZero() {
		created.CreatedAt = time.Now().UTC()
	}

	if err := inTx(ctx, r.db, func(tx *sql.Tx) error {
		return insertKnowledge(ctx, tx, created)
	}); err != nil {
		return nil, goerr.Wrap(err, "failed to create knowledge")
	}
	return created, nil
}

func (r *knowledgeRepository) Get(ctx context.Context, id model.KnowledgeID) (*model.Knowledge, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+knowledgeColumns+` FROM knowledges WHERE id = ?`, id)
	k, err := scanKnowledge(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, goerr.Wrap(model.ErrNotFound, "knowledge not found", goerr.V(model.KnowledgeIDKey, id))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get knowledge", goerr.V(model.KnowledgeIDKey, id))
	}
	return k, nil
}

func (r *knowledgeRepository) Supersede(ctx context.Context, topicID model.KnowledgeID, next *model.Knowledge) (*model.Knowledge, *model.Knowledge, error) {
	var prev, created *model.Knowledge

	err := inTx(ctx, r.db, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM knowledges WHERE topic_id = ?`, topicID).Scan(&exists); err != nil {
			return goerr.Wrap(err, "failed to look up topic")
		}
		if exists == 0 {
			return goerr.Wrap(model.ErrNotFound, "topic not found")
		}

		row := tx.QueryRowContext(ctx, `SELECT `+knowledgeColumns+` FROM knowledges WHERE topic_id = ? AND is_current = 1`, topicID)
		current, err := scanKnowledge(row)
		if errors.Is(err, sql.ErrNoRows) {
			return goerr.Wrap(model.ErrInvalidState, "topic has no current record")
		}
		if err != nil {
			return goerr.Wrap(err, "failed to read current record")
		}

		if _, err := tx.ExecContext(ctx, `UPDATE knowledges SET is_current = 0 WHERE id = ?`, current.ID); err != nil {
			return goerr.Wrap(err, "failed to retire current record")
		}
		current.IsCurrent = false

		created = next.Copy()
		if created.ID == "" {
			created.ID = model.NewKnowledgeID()
		}
		created.TopicID = topicID
		created.Version = current.Version + 1
		created.IsCurrent = true
		created.CreatedAt = time.Now().UTC()
		if !created.CreatedAt.After(current.CreatedAt) {
			created.CreatedAt = current.CreatedAt.Add(time.Microsecond)
		}

		if err := insertKnowledge(ctx, tx, created); err != nil {
			return err
		}
		prev = current
		return nil
	})
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to supersede knowledge", goerr.V(model.TopicIDKey, topicID))
	}
	return prev, created, nil
}

func (r *knowledgeRepository) list(ctx context.Context, query string, args ...any) ([]*model.Knowledge, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query knowledges")
	}
	defer rows.Close()

	result := make([]*model.Knowledge, 0)
	for rows.Next() {
		k, err := scanKnowledge(rows)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to scan knowledge")
		}
		result = append(result, k)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate knowledges")
	}
	return result, nil
}

func (r *knowledgeRepository) ListByTopic(ctx context.Context, topicID model.KnowledgeID) ([]*model.Knowledge, error) {
	return r.list(ctx, `SELECT `+knowledgeColumns+` FROM knowledges WHERE topic_id = ? ORDER BY version`, topicID)
}

func (r *knowledgeRepository) ListByQuestionKey(ctx context.Context, questionKey string) ([]*model.Knowledge, error) {
	return r.list(ctx, `SELECT `+knowledgeColumns+` FROM knowledges WHERE question_key = ? ORDER BY created_at, version`, questionKey)
}

func (r *knowledgeRepository) ListCurrent(ctx context.Context) ([]*model.Knowledge, error) {
	return r.list(ctx, `SELECT `+knowledgeColumns+` FROM knowledges WHERE is_current = 1 ORDER BY created_at, rowid`)
}

func (r *knowledgeRepository) DeleteTopic(ctx context.Context, topicID model.KnowledgeID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM knowledges WHERE topic_id = ?`, topicID)
	if err != nil {
		return goerr.Wrap(err, "failed to delete topic", goerr.V(model.TopicIDKey, topicID))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return goerr.Wrap(err, "failed to count deleted rows", goerr.V(model.TopicIDKey, topicID))
	}
	if n == 0 {
		return goerr.Wrap(model.ErrNotFound, "topic not found", goerr.V(model.TopicIDKey, topicID))
	}
	return nil
}
