package usecase

import (
	"context"
	"slices"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"github.com/m-mizutani/goerr/v2"
	"github.com/nik45114/kbcore/pkg/domain/interfaces"
	"github.com/nik45114/kbcore/pkg/domain/model"
	"github.com/nik45114/kbcore/pkg/domain/model/config"
	"github.com/nik45114/kbcore/pkg/utils/logging"
)

// DefaultFuzzyThreshold is the minimum similarity ratio reported by SearchFuzzy
const DefaultFuzzyThreshold = 0.6

// KnowledgeUseCase owns the knowledge store and keeps the vector index in step
// with its current records. Writes to both serialize on mu; embeddings are
// computed before mu is taken.
type KnowledgeUseCase struct {
	repo     interfaces.Repository
	embedder interfaces.Embedder
	index    interfaces.VectorIndex
	dedup    config.DedupPolicy

	mu sync.Mutex
}

func NewKnowledgeUseCase(repo interfaces.Repository, embedder interfaces.Embedder, index interfaces.VectorIndex, dedup config.DedupPolicy) *KnowledgeUseCase {
	return &KnowledgeUseCase{
		repo:     repo,
		embedder: embedder,
		index:    index,
		dedup:    dedup,
	}
}

// Add stores a new topic and indexes its question
func (uc *KnowledgeUseCase) Add(ctx context.Context, question, answer string, meta model.KnowledgeMeta) (*model.Knowledge, error) {
	if err := model.ValidateQA(question, answer); err != nil {
		return nil, err
	}

	return uc.add(ctx, model.NewKnowledge(question, answer, meta))
}

// addWithID is Add with a caller-chosen record id, so a retried caller can
// detect that an earlier attempt already stored the record
func (uc *KnowledgeUseCase) addWithID(ctx context.Context, id model.KnowledgeID, question, answer string, meta model.KnowledgeMeta) (*model.Knowledge, error) {
	if err := model.ValidateQA(question, answer); err != nil {
		return nil, err
	}

	k := model.NewKnowledge(question, answer, meta)
	k.ID = id
	k.TopicID = id
	return uc.add(ctx, k)
}

func (uc *KnowledgeUseCase) add(ctx context.Context, k *model.Knowledge) (*model.Knowledge, error) {
	vec, err := uc.embedder.Embed(ctx, k.Question)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed question")
	}

	return uc.addEmbedded(ctx, k, vec)
}

func (uc *KnowledgeUseCase) addEmbedded(ctx context.Context, k *model.Knowledge, vec []float32) (*model.Knowledge, error) {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	created, err := uc.repo.Knowledge().Create(ctx, k)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create knowledge")
	}

	// The store is the source of truth. An index failure is drift left to reconciliation.
	if err := uc.index.Upsert(created.ID, vec); err != nil {
		logging.From(ctx).Error("knowledge stored but not indexed, reconciliation will repair",
			model.KnowledgeIDKey, created.ID, "error", err.Error())
		return created, nil
	}

	logging.From(ctx).Info("knowledge added", model.KnowledgeIDKey, created.ID, "question", created.Question)
	return created, nil
}

// Supersede replaces the current answer of the topic that ref belongs to.
// ref may be the id of any version of the topic.
func (uc *KnowledgeUseCase) Supersede(ctx context.Context, ref model.KnowledgeID, answer string, meta model.KnowledgeMeta) (*model.Knowledge, error) {
	if strings.TrimSpace(answer) == "" {
		return nil, goerr.Wrap(model.ErrInvalidInput, "answer is empty", goerr.V(model.KnowledgeIDKey, ref))
	}

	base, err := uc.repo.Knowledge().Get(ctx, ref)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get knowledge", goerr.V(model.KnowledgeIDKey, ref))
	}

	versions, err := uc.repo.Knowledge().ListByTopic(ctx, base.TopicID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list topic versions", goerr.V(model.TopicIDKey, base.TopicID))
	}
	for _, v := range versions {
		if v.IsCurrent {
			base = v
		}
	}

	next := base.NextVersion(answer, meta)
	vec, err := uc.embedder.Embed(ctx, next.Question)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed question")
	}

	uc.mu.Lock()
	defer uc.mu.Unlock()

	prev, created, err := uc.repo.Knowledge().Supersede(ctx, base.TopicID, next)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to supersede knowledge", goerr.V(model.TopicIDKey, base.TopicID))
	}

	uc.index.Remove(prev.ID)
	if err := uc.index.Upsert(created.ID, vec); err != nil {
		logging.From(ctx).Error("knowledge superseded but not indexed, reconciliation will repair",
			model.KnowledgeIDKey, created.ID, "error", err.Error())
		return created, nil
	}

	logging.From(ctx).Info("knowledge superseded",
		model.TopicIDKey, created.TopicID,
		"previous", prev.ID,
		model.KnowledgeIDKey, created.ID,
		"version", created.Version)
	return created, nil
}

// Get returns any version by id
func (uc *KnowledgeUseCase) Get(ctx context.Context, id model.KnowledgeID) (*model.Knowledge, error) {
	k, err := uc.repo.Knowledge().Get(ctx, id)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get knowledge", goerr.V(model.KnowledgeIDKey, id))
	}
	return k, nil
}

// History returns every stored version for the question, oldest first
func (uc *KnowledgeUseCase) History(ctx context.Context, question string) ([]*model.Knowledge, error) {
	key := model.QuestionKey(question)
	if key == "" {
		return nil, goerr.Wrap(model.ErrInvalidInput, "question is empty")
	}

	versions, err := uc.repo.Knowledge().ListByQuestionKey(ctx, key)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list knowledge history")
	}
	return versions, nil
}

// SearchExact returns current records whose normalized question equals text's
func (uc *KnowledgeUseCase) SearchExact(ctx context.Context, text string) ([]*model.Knowledge, error) {
	versions, err := uc.History(ctx, text)
	if err != nil {
		return nil, err
	}

	var current []*model.Knowledge
	for _, k := range versions {
		if k.IsCurrent {
			current = append(current, k)
		}
	}
	return current, nil
}

// FuzzyMatch is a lexical search hit
type FuzzyMatch struct {
	Knowledge *model.Knowledge
	Score     float64
}

// SearchFuzzy ranks current records by lexical similarity of their questions to
// text. It is a pre-filter; semantic retrieval goes through the vector index.
func (uc *KnowledgeUseCase) SearchFuzzy(ctx context.Context, text string, limit int) ([]FuzzyMatch, error) {
	key := model.QuestionKey(text)
	if key == "" {
		return nil, goerr.Wrap(model.ErrInvalidInput, "search text is empty")
	}

	current, err := uc.repo.Knowledge().ListCurrent(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list current knowledge")
	}

	var matches []FuzzyMatch
	for _, k := range current {
		score := Similarity(key, k.QuestionKey)
		if strings.Contains(k.QuestionKey, key) && score < DefaultFuzzyThreshold {
			score = DefaultFuzzyThreshold
		}
		if score >= DefaultFuzzyThreshold {
			matches = append(matches, FuzzyMatch{Knowledge: k, Score: score})
		}
	}

	slices.SortStableFunc(matches, func(a, b FuzzyMatch) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return b.Knowledge.CreatedAt.Compare(a.Knowledge.CreatedAt)
	})

	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// Similarity is 1 - levenshtein(a, b) / max(len(a), len(b)) over runes
func Similarity(a, b string) float64 {
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	longest := max(la, lb)
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}
