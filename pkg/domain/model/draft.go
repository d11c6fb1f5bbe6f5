package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/nik45114/kbcore/pkg/domain/types"
)

// DraftID is a UUID-based identifier for Draft
type DraftID string

// NewDraftID generates a new UUID v4 DraftID
func NewDraftID() DraftID {
	return DraftID(uuid.New().String())
}

func (x DraftID) String() string {
	return string(x)
}

// Draft is an unvetted candidate knowledge entry awaiting moderation
type Draft struct {
	ID          DraftID
	Question    string
	Answer      string
	Category    string
	Tags        []string
	Source      string
	Confidence  float64 // 0..1, trust in the candidate
	ProposedBy  string
	Status      types.DraftStatus
	Edited      bool        // approval went through the edit sub-step
	ReviewedBy  string
	KnowledgeID KnowledgeID // record created by approval
	CreatedAt   time.Time
	ReviewedAt  time.Time
}

// DraftEdits holds moderator rewrites applied at approval. Nil fields are left unchanged.
type DraftEdits struct {
	Question *string
	Answer   *string
	Category *string
	Tags     []string
}

// IsEmpty reports whether the edits change nothing
func (e *DraftEdits) IsEmpty() bool {
	return e == nil || (e.Question == nil && e.Answer == nil && e.Category == nil && e.Tags == nil)
}

// Copy returns a deep copy
func (d *Draft) Copy() *Draft {
	copied := *d
	if d.Tags != nil {
		copied.Tags = make([]string, len(d.Tags))
		copy(copied.Tags, d.Tags)
	}
	return &copied
}

// Apply returns a copy of d with edits applied. Edited is set when anything changed.
func (d *Draft) Apply(edits *DraftEdits) *Draft {
	applied := d.Copy()
	if edits.IsEmpty() {
		return applied
	}
	if edits.Question != nil {
		applied.Question = strings.TrimSpace(*edits.Question)
	}
	if edits.Answer != nil {
		applied.Answer = strings.TrimSpace(*edits.Answer)
	}
	if edits.Category != nil {
		applied.Category = *edits.Category
	}
	if edits.Tags != nil {
		applied.Tags = cleanTags(edits.Tags)
	}
	applied.Edited = true
	return applied
}

// Validate checks the fields every draft must carry, both at enqueue and at approval
func (d *Draft) Validate() error {
	if err := ValidateQA(d.Question, d.Answer); err != nil {
		return goerr.Wrap(err, "invalid draft", goerr.V(DraftIDKey, d.ID))
	}
	if d.Confidence < 0 || d.Confidence > 1 {
		return goerr.Wrap(ErrInvalidInput, "confidence must be within [0, 1]",
			goerr.V(DraftIDKey, d.ID), goerr.V("confidence", d.Confidence))
	}
	if !d.Status.IsValid() {
		return goerr.Wrap(ErrInvalidInput, "invalid draft status",
			goerr.V(DraftIDKey, d.ID), goerr.V(StatusKey, d.Status))
	}
	return nil
}

// Meta returns the knowledge metadata carried by the draft
func (d *Draft) Meta() KnowledgeMeta {
	return KnowledgeMeta{
		Category:  d.Category,
		Tags:      d.Tags,
		Source:    d.Source,
		CreatedBy: d.ProposedBy,
	}
}
