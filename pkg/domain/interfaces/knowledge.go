package interfaces

import (
	"context"

	"github.com/nik45114/kbcore/pkg/domain/model"
)

// KnowledgeRepository defines the interface for Knowledge data persistence.
// Implementations must keep at most one current record per topic.
type KnowledgeRepository interface {
	// Create inserts a new record. ID and CreatedAt are assigned if empty.
	Create(ctx context.Context, knowledge *model.Knowledge) (*model.Knowledge, error)

	// Get retrieves a record by ID, current or not
	Get(ctx context.Context, id model.KnowledgeID) (*model.Knowledge, error)

	// Supersede atomically marks the current record of topicID as non-current and
	// inserts next as the new current version. Returns the previous and the new record.
	// next.Version is overwritten with previous.Version+1.
	Supersede(ctx context.Context, topicID model.KnowledgeID, next *model.Knowledge) (prev *model.Knowledge, created *model.Knowledge, err error)

	// ListByTopic returns every version of a topic ordered by Version ascending
	ListByTopic(ctx context.Context, topicID model.KnowledgeID) ([]*model.Knowledge, error)

	// ListByQuestionKey returns every record whose QuestionKey matches, ordered by CreatedAt then Version ascending
	ListByQuestionKey(ctx context.Context, questionKey string) ([]*model.Knowledge, error)

	// ListCurrent returns all current records ordered by CreatedAt ascending
	ListCurrent(ctx context.Context) ([]*model.Knowledge, error)

	// DeleteTopic hard-deletes every version of a topic. Used only by dedup merge.
	DeleteTopic(ctx context.Context, topicID model.KnowledgeID) error
}
