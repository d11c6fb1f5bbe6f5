package usecase

import (
	"context"
	"errors"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/nik45114/kbcore/pkg/domain/interfaces"
	"github.com/nik45114/kbcore/pkg/domain/model"
	"github.com/nik45114/kbcore/pkg/domain/model/config"
	"github.com/nik45114/kbcore/pkg/domain/types"
	"github.com/nik45114/kbcore/pkg/utils/logging"
)

// AnswerUseCase answers questions from the corpus when it is confident, and
// falls back to a language model when it is not.
type AnswerUseCase struct {
	repo      interfaces.Repository
	embedder  interfaces.Embedder
	index     interfaces.VectorIndex
	policy    config.AnswerPolicy
	llmClient gollem.LLMClient
	gaps      interfaces.GapReporter
}

// NewAnswerUseCase creates an AnswerUseCase. llmClient and gaps may be nil.
func NewAnswerUseCase(repo interfaces.Repository, embedder interfaces.Embedder, index interfaces.VectorIndex, policy config.AnswerPolicy, llmClient gollem.LLMClient, gaps interfaces.GapReporter) *AnswerUseCase {
	return &AnswerUseCase{
		repo:      repo,
		embedder:  embedder,
		index:     index,
		policy:    policy,
		llmClient: llmClient,
		gaps:      gaps,
	}
}

type candidate struct {
	knowledge *model.Knowledge
	score     float64
}

// Answer applies the three-tier policy on the best retrieval score s:
// s >= High answers verbatim from the record, Medium <= s < High replies
// that no confident match exists and suggests the nearest record, and
// anything lower goes to the language model and is reported as a coverage gap.
// Only an empty question is an error.
func (uc *AnswerUseCase) Answer(ctx context.Context, question, askedBy string) (*model.Answer, error) {
	question = model.NormalizeText(question)
	if question == "" {
		return nil, goerr.Wrap(model.ErrInvalidInput, "question is empty")
	}

	best, err := uc.retrieve(ctx, question)
	if err != nil {
		logging.From(ctx).Warn("retrieval failed, falling back", "error", err.Error())
		return uc.fallback(ctx, question, askedBy, 0), nil
	}
	if best == nil {
		return uc.fallback(ctx, question, askedBy, 0), nil
	}

	switch {
	case best.score >= uc.policy.HighThreshold:
		return &model.Answer{
			Text:          strings.TrimSpace(best.knowledge.Answer),
			ProvenanceIDs: []model.KnowledgeID{best.knowledge.ID},
			Mode:          types.AnswerModeCorpus,
			Score:         best.score,
		}, nil

	case best.score >= uc.policy.MediumThreshold:
		text := uc.policy.UncertainText
		if uc.policy.SuggestionText != "" {
			text += "\n" + uc.policy.SuggestionText + " " + best.knowledge.Question
		}
		return &model.Answer{
			Text:         text,
			Mode:         types.AnswerModeUncertain,
			Score:        best.score,
			SuggestionID: best.knowledge.ID,
		}, nil
	}

	return uc.fallback(ctx, question, askedBy, best.score), nil
}

// retrieve returns the best current record, or nil when nothing matched.
// Equal top scores resolve to the most recently created record.
func (uc *AnswerUseCase) retrieve(ctx context.Context, question string) (*candidate, error) {
	vec, err := uc.embedder.Embed(ctx, question)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed question")
	}

	hits, err := uc.index.Search(vec, uc.policy.TopK)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to search index")
	}

	var best *candidate
	for _, hit := range hits {
		k, err := uc.repo.Knowledge().Get(ctx, hit.ID)
		if errors.Is(err, model.ErrNotFound) {
			logging.From(ctx).Warn("index references missing knowledge", model.KnowledgeIDKey, hit.ID)
			continue
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to get knowledge", goerr.V(model.KnowledgeIDKey, hit.ID))
		}
		if !k.IsCurrent {
			logging.From(ctx).Warn("index references superseded knowledge", model.KnowledgeIDKey, hit.ID)
			continue
		}

		switch {
		case best == nil, hit.Score > best.score:
			best = &candidate{knowledge: k, score: hit.Score}
		case hit.Score == best.score && k.CreatedAt.After(best.knowledge.CreatedAt):
			best = &candidate{knowledge: k, score: hit.Score}
		}
	}
	return best, nil
}

func (uc *AnswerUseCase) fallback(ctx context.Context, question, askedBy string, score float64) *model.Answer {
	if uc.gaps != nil {
		uc.gaps.Report(ctx, &model.CoverageGap{
			Question: question,
			TopScore: score,
			AskedBy:  askedBy,
		})
	}

	text, err := uc.complete(ctx, question)
	if err != nil {
		logging.From(ctx).Warn("LLM fallback failed, using static reply", "error", err.Error())
		text = uc.policy.FallbackText
	}

	return &model.Answer{
		Text:  text,
		Mode:  types.AnswerModeFallback,
		Score: score,
	}
}

func (uc *AnswerUseCase) complete(ctx context.Context, question string) (string, error) {
	if uc.llmClient == nil {
		return "", goerr.Wrap(model.ErrProviderUnavailable, "no LLM configured")
	}

	session, err := uc.llmClient.NewSession(ctx, gollem.WithSessionSystemPrompt(uc.policy.FallbackPrompt))
	if err != nil {
		return "", goerr.Wrap(model.ErrProviderUnavailable, "failed to create LLM session", goerr.V("error", err.Error()))
	}

	resp, err := session.GenerateContent(ctx, gollem.Text(question))
	if err != nil {
		return "", goerr.Wrap(model.ErrProviderUnavailable, "failed to generate content from LLM", goerr.V("error", err.Error()))
	}

	if resp == nil {
		return "", goerr.Wrap(model.ErrProviderUnavailable, "LLM returned no response")
	}
	text := strings.TrimSpace(strings.Join(resp.Texts, "\n"))
	if text == "" {
		return "", goerr.Wrap(model.ErrProviderUnavailable, "LLM returned empty text")
	}
	return text, nil
}
