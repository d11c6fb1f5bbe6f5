package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/nik45114/kbcore/pkg/domain/interfaces"
	"github.com/nik45114/kbcore/pkg/domain/model"
	"github.com/nik45114/kbcore/pkg/domain/model/config"
	"github.com/nik45114/kbcore/pkg/domain/types"
	"github.com/nik45114/kbcore/pkg/utils/logging"
)

// AutoReviewer is the reviewer recorded on auto-approved drafts
const AutoReviewer = "auto"

// DraftUseCase moderates candidate knowledge. Approve and Reject serialize on
// mu so that each draft is resolved exactly once.
type DraftUseCase struct {
	repo      interfaces.Repository
	knowledge *KnowledgeUseCase
	policy    config.ModerationPolicy

	mu sync.Mutex
}

func NewDraftUseCase(repo interfaces.Repository, knowledge *KnowledgeUseCase, policy config.ModerationPolicy) *DraftUseCase {
	return &DraftUseCase{
		repo:      repo,
		knowledge: knowledge,
		policy:    policy,
	}
}

// Enqueue stores a pending draft. Drafts at or above the auto-approve
// threshold are approved immediately by AutoReviewer.
func (uc *DraftUseCase) Enqueue(ctx context.Context, question, answer string, meta model.KnowledgeMeta, confidence float64, proposer string) (*model.Draft, error) {
	draft := &model.Draft{
		Question:   strings.TrimSpace(question),
		Answer:     strings.TrimSpace(answer),
		Category:   meta.Category,
		Tags:       meta.Tags,
		Source:     meta.Source,
		Confidence: confidence,
		ProposedBy: proposer,
		Status:     types.DraftStatusPending,
	}
	if err := draft.Validate(); err != nil {
		return nil, err
	}

	created, err := uc.repo.Draft().Create(ctx, draft)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create draft")
	}
	logging.From(ctx).Info("draft enqueued",
		model.DraftIDKey, created.ID,
		"proposer", proposer,
		"confidence", confidence)

	if uc.policy.AutoApproveThreshold > 0 && confidence >= uc.policy.AutoApproveThreshold {
		if _, err := uc.Approve(ctx, created.ID, AutoReviewer, nil); err != nil {
			logging.From(ctx).Warn("auto-approval failed, draft left pending",
				model.DraftIDKey, created.ID, "error", err.Error())
			return created, nil
		}
		return uc.Get(ctx, created.ID)
	}

	return created, nil
}

// Get returns a draft by id
func (uc *DraftUseCase) Get(ctx context.Context, id model.DraftID) (*model.Draft, error) {
	d, err := uc.repo.Draft().Get(ctx, id)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get draft", goerr.V(model.DraftIDKey, id))
	}
	return d, nil
}

// List returns drafts by status, most confident first. An empty status lists all.
func (uc *DraftUseCase) List(ctx context.Context, status types.DraftStatus, limit, offset int) ([]*model.Draft, int, error) {
	if status != "" && !status.IsValid() {
		return nil, 0, goerr.Wrap(model.ErrInvalidInput, "invalid draft status", goerr.V(model.StatusKey, status))
	}
	if limit < 0 || offset < 0 {
		return nil, 0, goerr.Wrap(model.ErrInvalidInput, "limit and offset must not be negative",
			goerr.V("limit", limit), goerr.V("offset", offset))
	}

	drafts, total, err := uc.repo.Draft().List(ctx, status, limit, offset)
	if err != nil {
		return nil, 0, goerr.Wrap(err, "failed to list drafts")
	}
	return drafts, total, nil
}

// Approve promotes a pending draft into the knowledge store, applying edits first
func (uc *DraftUseCase) Approve(ctx context.Context, id model.DraftID, reviewer string, edits *model.DraftEdits) (model.KnowledgeID, error) {
	if strings.TrimSpace(reviewer) == "" {
		return "", goerr.Wrap(model.ErrInvalidInput, "reviewer is required", goerr.V(model.DraftIDKey, id))
	}

	uc.mu.Lock()
	defer uc.mu.Unlock()

	draft, err := uc.pending(ctx, id)
	if err != nil {
		return "", err
	}

	approved := draft.Apply(edits)
	if err := approved.Validate(); err != nil {
		return "", err
	}

	k, err := uc.promote(ctx, draft, approved)
	if err != nil {
		return "", err
	}

	approved.Status = types.DraftStatusApproved
	approved.ReviewedBy = reviewer
	approved.ReviewedAt = time.Now().UTC()
	approved.KnowledgeID = k.ID

	if _, err := uc.repo.Draft().Resolve(ctx, types.DraftStatusPending, approved); err != nil {
		logging.From(ctx).Error("knowledge created but draft not marked approved",
			model.DraftIDKey, id, model.KnowledgeIDKey, k.ID, "error", err.Error())
		return "", goerr.Wrap(err, "failed to mark draft approved", goerr.V(model.DraftIDKey, id))
	}

	logging.From(ctx).Info("draft approved",
		model.DraftIDKey, id,
		model.KnowledgeIDKey, k.ID,
		"reviewer", reviewer,
		"edited", approved.Edited)
	return k.ID, nil
}

// promote creates the knowledge record of an approval. The record id is
// reserved on the pending draft first, so an approval retried after a failed
// status update reuses the stored record instead of creating a second one.
func (uc *DraftUseCase) promote(ctx context.Context, draft, approved *model.Draft) (*model.Knowledge, error) {
	if draft.KnowledgeID != "" {
		k, err := uc.knowledge.Get(ctx, draft.KnowledgeID)
		if err == nil {
			logging.From(ctx).Warn("reusing knowledge from an earlier approval attempt",
				model.DraftIDKey, draft.ID, model.KnowledgeIDKey, k.ID)
			return k, nil
		}
		if !errors.Is(err, model.ErrNotFound) {
			return nil, goerr.Wrap(err, "failed to check reserved knowledge", goerr.V(model.DraftIDKey, draft.ID))
		}
	} else {
		reserved := draft.Copy()
		reserved.KnowledgeID = model.NewKnowledgeID()
		if _, err := uc.repo.Draft().Resolve(ctx, types.DraftStatusPending, reserved); err != nil {
			return nil, goerr.Wrap(err, "failed to reserve knowledge id", goerr.V(model.DraftIDKey, draft.ID))
		}
		draft = reserved
	}

	k, err := uc.knowledge.addWithID(ctx, draft.KnowledgeID, approved.Question, approved.Answer, approved.Meta())
	if err != nil {
		return nil, goerr.Wrap(err, "failed to add approved knowledge", goerr.V(model.DraftIDKey, draft.ID))
	}
	return k, nil
}

// Reject closes a pending draft without creating knowledge
func (uc *DraftUseCase) Reject(ctx context.Context, id model.DraftID, reviewer string) error {
	if strings.TrimSpace(reviewer) == "" {
		return goerr.Wrap(model.ErrInvalidInput, "reviewer is required", goerr.V(model.DraftIDKey, id))
	}

	uc.mu.Lock()
	defer uc.mu.Unlock()

	draft, err := uc.pending(ctx, id)
	if err != nil {
		return err
	}

	rejected := draft.Copy()
	rejected.Status = types.DraftStatusRejected
	rejected.ReviewedBy = reviewer
	rejected.ReviewedAt = time.Now().UTC()

	if _, err := uc.repo.Draft().Resolve(ctx, types.DraftStatusPending, rejected); err != nil {
		return goerr.Wrap(err, "failed to mark draft rejected", goerr.V(model.DraftIDKey, id))
	}

	logging.From(ctx).Info("draft rejected", model.DraftIDKey, id, "reviewer", reviewer)
	return nil
}

func (uc *DraftUseCase) pending(ctx context.Context, id model.DraftID) (*model.Draft, error) {
	draft, err := uc.repo.Draft().Get(ctx, id)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get draft", goerr.V(model.DraftIDKey, id))
	}
	if draft.Status != types.DraftStatusPending {
		return nil, goerr.Wrap(model.ErrInvalidState, "draft is not pending",
			goerr.V(model.DraftIDKey, id), goerr.V(model.StatusKey, draft.Status))
	}
	return draft, nil
}
