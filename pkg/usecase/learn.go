package usecase

import (
	"context"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/nik45114/kbcore/pkg/domain/interfaces"
	"github.com/nik45114/kbcore/pkg/domain/model"
	"github.com/nik45114/kbcore/pkg/utils/logging"
)

// ChatSource is the source recorded on drafts learned from chat messages
const ChatSource = "chat"

// LearnUseCase turns chat messages into drafts. It never writes knowledge directly.
type LearnUseCase struct {
	classifier interfaces.Classifier
	drafts     *DraftUseCase
}

func NewLearnUseCase(classifier interfaces.Classifier, drafts *DraftUseCase) *LearnUseCase {
	return &LearnUseCase{
		classifier: classifier,
		drafts:     drafts,
	}
}

// Learn classifies text and enqueues a draft proposed by userID. It returns a
// nil draft when the text is not worth remembering.
func (uc *LearnUseCase) Learn(ctx context.Context, text, userID string) (*model.Draft, error) {
	if strings.TrimSpace(text) == "" {
		return nil, goerr.Wrap(model.ErrInvalidInput, "text is empty")
	}
	if strings.TrimSpace(userID) == "" {
		return nil, goerr.Wrap(model.ErrInvalidInput, "user is required")
	}

	c, err := uc.classifier.Classify(ctx, text)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to classify message")
	}
	if c == nil {
		logging.From(ctx).Debug("message not worth remembering", "user", userID)
		return nil, nil
	}

	meta := model.KnowledgeMeta{
		Category:  c.Category,
		Source:    ChatSource,
		CreatedBy: userID,
	}
	draft, err := uc.drafts.Enqueue(ctx, c.Question, c.Answer, meta, c.Confidence, userID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to enqueue learned draft")
	}
	return draft, nil
}
