package usecase

import (
	"github.com/m-mizutani/gollem"
	"github.com/nik45114/kbcore/pkg/domain/interfaces"
	"github.com/nik45114/kbcore/pkg/domain/model/config"
	"github.com/nik45114/kbcore/pkg/service/learner"
)

type UseCases struct {
	repo       interfaces.Repository
	embedder   interfaces.Embedder
	index      interfaces.VectorIndex
	policy     *config.Policy
	llmClient  gollem.LLMClient
	classifier interfaces.Classifier
	gaps       interfaces.GapReporter

	Knowledge *KnowledgeUseCase
	Draft     *DraftUseCase
	Answer    *AnswerUseCase
	Learn     *LearnUseCase
	Import    *ImportUseCase
}

type Option func(*UseCases)

func WithPolicy(policy *config.Policy) Option {
	return func(uc *UseCases) {
		uc.policy = policy
	}
}

// WithLLMClient enables the LLM fallback of the Answerer
func WithLLMClient(client gollem.LLMClient) Option {
	return func(uc *UseCases) {
		uc.llmClient = client
	}
}

func WithClassifier(classifier interfaces.Classifier) Option {
	return func(uc *UseCases) {
		uc.classifier = classifier
	}
}

func WithGapReporter(gaps interfaces.GapReporter) Option {
	return func(uc *UseCases) {
		uc.gaps = gaps
	}
}

func New(repo interfaces.Repository, embedder interfaces.Embedder, index interfaces.VectorIndex, opts ...Option) *UseCases {
	uc := &UseCases{
		repo:     repo,
		embedder: embedder,
		index:    index,
	}

	for _, opt := range opts {
		opt(uc)
	}

	if uc.policy == nil {
		uc.policy = config.DefaultPolicy()
	}
	if uc.classifier == nil {
		uc.classifier = learner.NewHeuristic(learner.WithMinLength(uc.policy.Learner.MinLength))
	}

	uc.Knowledge = NewKnowledgeUseCase(repo, embedder, index, uc.policy.Dedup)
	uc.Draft = NewDraftUseCase(repo, uc.Knowledge, uc.policy.Moderation)
	uc.Answer = NewAnswerUseCase(repo, embedder, index, uc.policy.Answer, uc.llmClient, uc.gaps)
	uc.Learn = NewLearnUseCase(uc.classifier, uc.Draft)
	uc.Import = NewImportUseCase(repo, embedder, uc.Knowledge, uc.Draft, uc.policy.Import)

	return uc
}
