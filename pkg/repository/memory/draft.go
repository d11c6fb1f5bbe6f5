package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/nik45114/kbcore/pkg/domain/model"
	"github.com/nik45114/kbcore/pkg/domain/types"
)

type draftRepository struct {
	mu     sync.RWMutex
	drafts map[model.DraftID]*model.Draft
}

func newDraftRepository() *draftRepository {
	return &draftRepository{
		drafts: make(map[model.DraftID]*model.Draft),
	}
}

func (r *draftRepository) Create(ctx context.Context, draft *model.Draft) (*model.Draft, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	created := draft.Copy()
	if created.ID == "" {
		created.ID = model.NewDraftID()
	}
	if _, exists := r.drafts[created.ID]; exists {
		return nil, goerr.Wrap(model.ErrInvalidState, "draft already exists", goerr.V(model.DraftIDKey, created.ID))
	}
	if created.Status == "" {
		created.Status = types.DraftStatusPending
	}
	if created.CreatedAt.IsZero() {
		created.CreatedAt = time.Now().UTC()
	}

	r.drafts[created.ID] = created
	return created.Copy(), nil
}

func (r *draftRepository) Get(ctx context.Context, id model.DraftID) (*model.Draft, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	draft, exists := r.drafts[id]
	if !exists {
		return nil, goerr.Wrap(model.ErrNotFound, "draft not found", goerr.V(model.DraftIDKey, id))
	}
	return draft.Copy(), nil
}

func (r *draftRepository) List(ctx context.Context, status types.DraftStatus, limit, offset int) ([]*model.Draft, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]*model.Draft, 0)
	for _, d := range r.drafts {
		if status == "" || d.Status == status {
			matched = append(matched, d)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Confidence != matched[j].Confidence {
			return matched[i].Confidence > matched[j].Confidence
		}
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})

	total := len(matched)
	if offset < 0 {
		offset = 0
	}
	if offset >= total {
		return []*model.Draft{}, total, nil
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}

	result := make([]*model.Draft, 0, end-offset)
	for _, d := range matched[offset:end] {
		result = append(result, d.Copy())
	}
	return result, total, nil
}

func (r *draftRepository) Resolve(ctx context.Context, expected types.DraftStatus, resolved *model.Draft) (*model.Draft, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, exists := r.drafts[resolved.ID]
	if !exists {
		return nil, goerr.Wrap(model.ErrNotFound, "draft not found", goerr.V(model.DraftIDKey, resolved.ID))
	}
	if current.Status != expected {
		return nil, goerr.Wrap(model.ErrInvalidState, "draft status changed",
			goerr.V(model.DraftIDKey, resolved.ID),
			goerr.V("expected", expected),
			goerr.V(model.StatusKey, current.Status),
		)
	}

	stored := resolved.Copy()
	stored.CreatedAt = current.CreatedAt
	r.drafts[stored.ID] = stored
	return stored.Copy(), nil
}
