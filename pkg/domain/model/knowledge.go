package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

// KnowledgeID is a UUID-based identifier for Knowledge
type KnowledgeID string

// NewKnowledgeID generates a new UUID v4 KnowledgeID
func NewKnowledgeID() KnowledgeID {
	return KnowledgeID(uuid.New().String())
}

func (x KnowledgeID) String() string {
	return string(x)
}

// Knowledge is one version of a question/answer pair in the corpus.
// All versions of a logical topic share TopicID; at most one of them is current.
type Knowledge struct {
	ID          KnowledgeID
	TopicID     KnowledgeID // ID of the first version of this topic
	Question    string
	QuestionKey string // QuestionKey(Question), used for history and exact lookup
	Answer      string
	Category    string
	Tags        []string
	Source      string
	Version     int
	IsCurrent   bool
	CreatedBy   string
	CreatedAt   time.Time
}

// KnowledgeMeta carries the optional attributes supplied when authoring or superseding.
type KnowledgeMeta struct {
	Category  string
	Tags      []string
	Source    string
	CreatedBy string
}

// Copy returns a deep copy
func (k *Knowledge) Copy() *Knowledge {
	copied := *k
	if k.Tags != nil {
		copied.Tags = make([]string, len(k.Tags))
		copy(copied.Tags, k.Tags)
	}
	return &copied
}

// ValidateQA checks that both question and answer carry text
func ValidateQA(question, answer string) error {
	if strings.TrimSpace(question) == "" {
		return goerr.Wrap(ErrInvalidInput, "question is empty")
	}
	if strings.TrimSpace(answer) == "" {
		return goerr.Wrap(ErrInvalidInput, "answer is empty")
	}
	return nil
}

// NewKnowledge builds the first version of a new topic. ID and CreatedAt are
// assigned by the repository if left empty.
func NewKnowledge(question, answer string, meta KnowledgeMeta) *Knowledge {
	id := NewKnowledgeID()
	return &Knowledge{
		ID:          id,
		TopicID:     id,
		Question:    strings.TrimSpace(question),
		QuestionKey: QuestionKey(question),
		Answer:      strings.TrimSpace(answer),
		Category:    meta.Category,
		Tags:        cleanTags(meta.Tags),
		Source:      meta.Source,
		Version:     1,
		IsCurrent:   true,
		CreatedBy:   meta.CreatedBy,
	}
}

// NextVersion builds the record that supersedes k. Empty meta fields inherit from k.
func (k *Knowledge) NextVersion(answer string, meta KnowledgeMeta) *Knowledge {
	next := &Knowledge{
		ID:          NewKnowledgeID(),
		TopicID:     k.TopicID,
		Question:    k.Question,
		QuestionKey: k.QuestionKey,
		Answer:      strings.TrimSpace(answer),
		Category:    meta.Category,
		Tags:        cleanTags(meta.Tags),
		Source:      meta.Source,
		Version:     k.Version + 1,
		IsCurrent:   true,
		CreatedBy:   meta.CreatedBy,
	}
	if next.Category == "" {
		next.Category = k.Category
	}
	if next.Tags == nil && k.Tags != nil {
		next.Tags = append([]string{}, k.Tags...)
	}
	if next.Source == "" {
		next.Source = k.Source
	}
	return next
}

func cleanTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(tags))
	result := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		result = append(result, tag)
	}
	return result
}

// ScoredID is one search hit from the vector index
type ScoredID struct {
	ID    KnowledgeID
	Score float64
}
