package interfaces

import (
	"context"

	"github.com/nik45114/kbcore/pkg/domain/model"
)

// Embedder turns text into fixed-length vectors
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorIndex ranks knowledge ids by cosine similarity
type VectorIndex interface {
	Upsert(id model.KnowledgeID, vector []float32) error
	Remove(id model.KnowledgeID)
	Search(query []float32, k int) ([]model.ScoredID, error)
	Contains(id model.KnowledgeID) bool
	IDs() []model.KnowledgeID
	Reset()
}

// Classifier decides whether a chat message holds a fact worth remembering.
// It returns nil when the text should be ignored.
type Classifier interface {
	Classify(ctx context.Context, text string) (*model.Classification, error)
}

// GapReporter receives coverage gaps. Implementations must not block the caller.
type GapReporter interface {
	Report(ctx context.Context, gap *model.CoverageGap)
}
