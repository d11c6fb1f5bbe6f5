package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/nik45114/kbcore/pkg/domain/model"
)

type knowledgeRepository struct {
	mu        sync.RWMutex
	knowledge map[model.KnowledgeID]*model.Knowledge
	lastTime  time.Time
}

func newKnowledgeRepository() *knowledgeRepository {
	return &knowledgeRepository{
		knowledge: make(map[model.KnowledgeID]*model.Knowledge),
	}
}

// now returns a timestamp strictly after the previous one so that CreatedAt
// orders records even when the clock does not advance. Caller must hold mu.
func (r *knowledgeRepository) now() time.Time {
	t := time.Now().UTC()
	if !t.After(r.lastTime) {
		t = r.lastTime.Add(time.Microsecond)
	}
	r.lastTime = t
	return t
}

func (r *knowledgeRepository) Create(ctx context.Context, knowledge *model.Knowledge) (*model.Knowledge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	created := knowledge.Copy()
	if created.ID == "" {
		created.ID = model.NewKnowledgeID()
	}
	if _, exists := r.knowledge[created.ID]; exists {
		return nil, goerr.Wrap(model.ErrInvalidState, "knowledge already exists", goerr.V(model.KnowledgeIDKey, created.ID))
	}
	if created.TopicID == "" {
		created.TopicID = created.ID
	}
	if created.Version == 0 {
		created.Version = 1
	}
	if created.CreatedAt.IsZero() {
		created.CreatedAt = r.now()
	}

	if created.IsCurrent {
		for _, k := range r.knowledge {
			if k.TopicID == created.TopicID && k.IsCurrent {
				return nil, goerr.Wrap(model.ErrInvalidState, "topic already has a current record",
					goerr.V(model.TopicIDKey, created.TopicID))
			}
		}
	}

	r.knowledge[created.ID] = created
	return created.Copy(), nil
}

func (r *knowledgeRepository) Get(ctx context.Context, id model.KnowledgeID) (*model.Knowledge, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	knowledge, exists := r.knowledge[id]
	if !exists {
		return nil, goerr.Wrap(model.ErrNotFound, "knowledge not found", goerr.V(model.KnowledgeIDKey, id))
	}

	return knowledge.Copy(), nil
}

func (r *knowledgeRepository) Supersede(ctx context.Context, topicID model.KnowledgeID, next *model.Knowledge) (*model.Knowledge, *model.Knowledge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var prev *model.Knowledge
	found := false
	for _, k := range r.knowledge {
		if k.TopicID != topicID {
			continue
		}
		found = true
		if k.IsCurrent {
			prev = k
			break
		}
	}
	if !found {
		return nil, nil, goerr.Wrap(model.ErrNotFound, "topic not found", goerr.V(model.TopicIDKey, topicID))
	}
	if prev == nil {
		return nil, nil, goerr.Wrap(model.ErrInvalidState, "topic has no current record", goerr.V(model.TopicIDKey, topicID))
	}

	created := next.Copy()
	if created.ID == "" {
		created.ID = model.NewKnowledgeID()
	}
	if _, exists := r.knowledge[created.ID]; exists {
		return nil, nil, goerr.Wrap(model.ErrInvalidState, "knowledge already exists", goerr.V(model.KnowledgeIDKey, created.ID))
	}
	created.TopicID = topicID
	created.Version = prev.Version + 1
	created.IsCurrent = true
	created.CreatedAt = r.now()

	prev.IsCurrent = false
	r.knowledge[created.ID] = created

	return prev.Copy(), created.Copy(), nil
}

func (r *knowledgeRepository) ListByTopic(ctx context.Context, topicID model.KnowledgeID) ([]*model.Knowledge, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*model.Knowledge, 0)
	for _, k := range r.knowledge {
		if k.TopicID == topicID {
			result = append(result, k.Copy())
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Version < result[j].Version
	})
	return result, nil
}

func (r *knowledgeRepository) ListByQuestionKey(ctx context.Context, questionKey string) ([]*model.Knowledge, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*model.Knowledge, 0)
	for _, k := range r.knowledge {
		if k.QuestionKey == questionKey {
			result = append(result, k.Copy())
		}
	}

	sortByCreated(result)
	return result, nil
}

func (r *knowledgeRepository) ListCurrent(ctx context.Context) ([]*model.Knowledge, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*model.Knowledge, 0)
	for _, k := range r.knowledge {
		if k.IsCurrent {
			result = append(result, k.Copy())
		}
	}

	sortByCreated(result)
	return result, nil
}

func (r *knowledgeRepository) DeleteTopic(ctx context.Context, topicID model.KnowledgeID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	deleted := 0
	for id, k := range r.knowledge {
		if k.TopicID == topicID {
			delete(r.knowledge, id)
			deleted++
		}
	}
	if deleted == 0 {
		return goerr.Wrap(model.ErrNotFound, "topic not found", goerr.V(model.TopicIDKey, topicID))
	}
	return nil
}

func sortByCreated(list []*model.Knowledge) {
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		}
		return list[i].Version < list[j].Version
	})
}
