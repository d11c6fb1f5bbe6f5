package http

import (
	"time"

	"github.com/nik45114/kbcore/pkg/domain/model"
	"github.com/nik45114/kbcore/pkg/usecase"
)

type knowledgeResponse struct {
	ID        string    `json:"id"`
	TopicID   string    `json:"topic_id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Category  string    `json:"category,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	Source    string    `json:"source,omitempty"`
	Version   int       `json:"version"`
	IsCurrent bool      `json:"is_current"`
	CreatedBy string    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func toKnowledgeResponse(k *model.Knowledge) *knowledgeResponse {
	if k == nil {
		return nil
	}
	return &knowledgeResponse{
		ID:        k.ID.String(),
		TopicID:   k.TopicID.String(),
		Question:  k.Question,
		Answer:    k.Answer,
		Category:  k.Category,
		Tags:      k.Tags,
		Source:    k.Source,
		Version:   k.Version,
		IsCurrent: k.IsCurrent,
		CreatedBy: k.CreatedBy,
		CreatedAt: k.CreatedAt,
	}
}

func toKnowledgeList(records []*model.Knowledge) []*knowledgeResponse {
	out := make([]*knowledgeResponse, len(records))
	for i, k := range records {
		out[i] = toKnowledgeResponse(k)
	}
	return out
}

type draftResponse struct {
	ID          string     `json:"id"`
	Question    string     `json:"question"`
	Answer      string     `json:"answer"`
	Category    string     `json:"category,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	Source      string     `json:"source,omitempty"`
	Confidence  float64    `json:"confidence"`
	ProposedBy  string     `json:"proposed_by"`
	Status      string     `json:"status"`
	Edited      bool       `json:"edited"`
	ReviewedBy  string     `json:"reviewed_by,omitempty"`
	KnowledgeID string     `json:"knowledge_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	ReviewedAt  *time.Time `json:"reviewed_at,omitempty"`
}

func toDraftResponse(d *model.Draft) *draftResponse {
	if d == nil {
		return nil
	}
	resp := &draftResponse{
		ID:          d.ID.String(),
		Question:    d.Question,
		Answer:      d.Answer,
		Category:    d.Category,
		Tags:        d.Tags,
		Source:      d.Source,
		Confidence:  d.Confidence,
		ProposedBy:  d.ProposedBy,
		Status:      d.Status.String(),
		Edited:      d.Edited,
		ReviewedBy:  d.ReviewedBy,
		KnowledgeID: d.KnowledgeID.String(),
		CreatedAt:   d.CreatedAt,
	}
	if !d.ReviewedAt.IsZero() {
		reviewedAt := d.ReviewedAt
		resp.ReviewedAt = &reviewedAt
	}
	return resp
}

type answerResponse struct {
	Text          string   `json:"text"`
	Mode          string   `json:"mode"`
	Score         float64  `json:"score"`
	ProvenanceIDs []string `json:"provenance_ids"`
	SuggestionID  string   `json:"suggestion_id,omitempty"`
}

func toAnswerResponse(a *model.Answer) *answerResponse {
	ids := make([]string, len(a.ProvenanceIDs))
	for i, id := range a.ProvenanceIDs {
		ids[i] = id.String()
	}
	return &answerResponse{
		Text:          a.Text,
		Mode:          a.Mode.String(),
		Score:         a.Score,
		ProvenanceIDs: ids,
		SuggestionID:  a.SuggestionID.String(),
	}
}

type fuzzyMatchResponse struct {
	Knowledge *knowledgeResponse `json:"knowledge"`
	Score     float64            `json:"score"`
}

type gapResponse struct {
	ID        string    `json:"id"`
	Question  string    `json:"question"`
	TopScore  float64   `json:"top_score"`
	AskedBy   string    `json:"asked_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func toIDs(ids []model.KnowledgeID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

type reconcileResponse struct {
	Checked    int      `json:"checked"`
	Added      []string `json:"added"`
	Removed    []string `json:"removed"`
	DurationMS int64    `json:"duration_ms"`
}

func toReconcileResponse(r *usecase.ReconcileReport) *reconcileResponse {
	return &reconcileResponse{
		Checked:    r.Checked,
		Added:      toIDs(r.Added),
		Removed:    toIDs(r.Removed),
		DurationMS: r.Duration.Milliseconds(),
	}
}

type dedupResponse struct {
	Groups  int      `json:"groups"`
	Kept    []string `json:"kept"`
	Removed []string `json:"removed"`
}
