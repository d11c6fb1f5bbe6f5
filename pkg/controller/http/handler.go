package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/m-mizutani/goerr/v2"
	"github.com/nik45114/kbcore/pkg/domain/model"
	"github.com/nik45114/kbcore/pkg/domain/types"
	"github.com/nik45114/kbcore/pkg/utils/errutil"
)

const defaultSearchLimit = 10

type answerRequest struct {
	Question string `json:"question"`
	User     string `json:"user"`
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := readJSON(r, &req); err != nil {
		errutil.HandleHTTP(r.Context(), w, err)
		return
	}

	answer, err := s.uc.Answer.Answer(r.Context(), req.Question, req.User)
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toAnswerResponse(answer))
}

type learnRequest struct {
	Text string `json:"text"`
	User string `json:"user"`
}

func (s *Server) handleLearn(w http.ResponseWriter, r *http.Request) {
	var req learnRequest
	if err := readJSON(r, &req); err != nil {
		errutil.HandleHTTP(r.Context(), w, err)
		return
	}

	draft, err := s.uc.Learn.Learn(r.Context(), req.Text, req.User)
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"draft": toDraftResponse(draft)})
}

func (s *Server) handleListDrafts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var status types.DraftStatus
	if raw := q.Get("status"); raw != "" {
		parsed, err := types.ParseDraftStatus(raw)
		if err != nil {
			errutil.HandleHTTP(r.Context(), w, goerr.Wrap(model.ErrInvalidInput, err.Error()))
			return
		}
		status = parsed
	}
	limit, err := intParam(q.Get("limit"), "limit")
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, err)
		return
	}
	offset, err := intParam(q.Get("offset"), "offset")
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, err)
		return
	}

	drafts, total, err := s.uc.Draft.List(r.Context(), status, limit, offset)
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, err)
		return
	}

	items := make([]*draftResponse, len(drafts))
	for i, d := range drafts {
		items[i] = toDraftResponse(d)
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"drafts": items, "total": total})
}

type createDraftRequest struct {
	Question   string   `json:"question"`
	Answer     string   `json:"answer"`
	Category   string   `json:"category"`
	Tags       []string `json:"tags"`
	Source     string   `json:"source"`
	Confidence float64  `json:"confidence"`
	Proposer   string   `json:"proposer"`
}

func (s *Server) handleCreateDraft(w http.ResponseWriter, r *http.Request) {
	var req createDraftRequest
	if err := readJSON(r, &req); err != nil {
		errutil.HandleHTTP(r.Context(), w, err)
		return
	}

	meta := model.KnowledgeMeta{
		Category:  req.Category,
		Tags:      req.Tags,
		Source:    req.Source,
		CreatedBy: req.Proposer,
	}
	draft, err := s.uc.Draft.Enqueue(r.Context(), req.Question, req.Answer, meta, req.Confidence, req.Proposer)
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, toDraftResponse(draft))
}

func (s *Server) handleGetDraft(w http.ResponseWriter, r *http.Request) {
	draft, err := s.uc.Draft.Get(r.Context(), model.DraftID(chi.URLParam(r, "id")))
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toDraftResponse(draft))
}

type draftEditsRequest struct {
	Question *string  `json:"question"`
	Answer   *string  `json:"answer"`
	Category *string  `json:"category"`
	Tags     []string `json:"tags"`
}

type approveRequest struct {
	Reviewer string             `json:"reviewer"`
	Edits    *draftEditsRequest `json:"edits"`
}

func (s *Server) handleApproveDraft(w http.ResponseWriter, r *http.Request) {
	var req approveRequest
	if err := readJSON(r, &req); err != nil {
		errutil.HandleHTTP(r.Context(), w, err)
		return
	}

	var edits *model.DraftEdits
	if req.Edits != nil {
		edits = &model.DraftEdits{
			Question: req.Edits.Question,
			Answer:   req.Edits.Answer,
			Category: req.Edits.Category,
			Tags:     req.Edits.Tags,
		}
	}

	id, err := s.uc.Draft.Approve(r.Context(), model.DraftID(chi.URLParam(r, "id")), req.Reviewer, edits)
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"knowledge_id": id.String()})
}

type rejectRequest struct {
	Reviewer string `json:"reviewer"`
}

func (s *Server) handleRejectDraft(w http.ResponseWriter, r *http.Request) {
	var req rejectRequest
	if err := readJSON(r, &req); err != nil {
		errutil.HandleHTTP(r.Context(), w, err)
		return
	}

	if err := s.uc.Draft.Reject(r.Context(), model.DraftID(chi.URLParam(r, "id")), req.Reviewer); err != nil {
		errutil.HandleHTTP(r.Context(), w, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": types.DraftStatusRejected.String()})
}

func (s *Server) handleGetKnowledge(w http.ResponseWriter, r *http.Request) {
	k, err := s.uc.Knowledge.Get(r.Context(), model.KnowledgeID(chi.URLParam(r, "id")))
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toKnowledgeResponse(k))
}

// handleHistory returns every version of a question, oldest first
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	records, err := s.uc.Knowledge.History(r.Context(), r.URL.Query().Get("question"))
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"versions": toKnowledgeList(records)})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	text := q.Get("q")

	fuzzy, _ := strconv.ParseBool(q.Get("fuzzy"))
	if !fuzzy {
		records, err := s.uc.Knowledge.SearchExact(r.Context(), text)
		if err != nil {
			errutil.HandleHTTP(r.Context(), w, err)
			return
		}
		writeJSON(w, r, http.StatusOK, map[string]any{"results": toKnowledgeList(records)})
		return
	}

	limit, err := intParam(q.Get("limit"), "limit")
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, err)
		return
	}
	if limit == 0 {
		limit = defaultSearchLimit
	}

	matches, err := s.uc.Knowledge.SearchFuzzy(r.Context(), text, limit)
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, err)
		return
	}
	results := make([]fuzzyMatchResponse, len(matches))
	for i, m := range matches {
		results[i] = fuzzyMatchResponse{Knowledge: toKnowledgeResponse(m.Knowledge), Score: m.Score}
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"results": results})
}

// intParam parses a non-negative integer query parameter; empty means zero
func intParam(raw, name string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, goerr.Wrap(model.ErrInvalidInput, "invalid query parameter",
			goerr.V("name", name), goerr.V("value", raw))
	}
	return n, nil
}
