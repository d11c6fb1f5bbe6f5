package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/nik45114/kbcore/pkg/domain/types"
)

// Answer is the response to a user question
type Answer struct {
	Text          string
	ProvenanceIDs []KnowledgeID
	Mode          types.AnswerMode
	Score         float64     // top retrieval score, 0 when retrieval failed
	SuggestionID  KnowledgeID // nearest record surfaced in uncertain mode
}

// CoverageGapID is a UUID-based identifier for CoverageGap
type CoverageGapID string

// NewCoverageGapID generates a new UUID v4 CoverageGapID
func NewCoverageGapID() CoverageGapID {
	return CoverageGapID(uuid.New().String())
}

// CoverageGap records a question the corpus could not answer confidently
type CoverageGap struct {
	ID        CoverageGapID
	Question  string
	TopScore  float64
	AskedBy   string
	CreatedAt time.Time
}
