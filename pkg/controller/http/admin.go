package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/m-mizutani/goerr/v2"
	"github.com/nik45114/kbcore/pkg/domain/model"
	"github.com/nik45114/kbcore/pkg/utils/errutil"
)

type addKnowledgeRequest struct {
	Question string   `json:"question"`
	Answer   string   `json:"answer"`
	Category string   `json:"category"`
	Tags     []string `json:"tags"`
	Source   string   `json:"source"`
	Author   string   `json:"author"`
}

func (s *Server) handleAddKnowledge(w http.ResponseWriter, r *http.Request) {
	var req addKnowledgeRequest
	if err := readJSON(r, &req); err != nil {
		errutil.HandleHTTP(r.Context(), w, err)
		return
	}

	k, err := s.uc.Knowledge.Add(r.Context(), req.Question, req.Answer, model.KnowledgeMeta{
		Category:  req.Category,
		Tags:      req.Tags,
		Source:    req.Source,
		CreatedBy: req.Author,
	})
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, toKnowledgeResponse(k))
}

type supersedeRequest struct {
	Answer   string   `json:"answer"`
	Category string   `json:"category"`
	Tags     []string `json:"tags"`
	Source   string   `json:"source"`
	Author   string   `json:"author"`
}

func (s *Server) handleSupersede(w http.ResponseWriter, r *http.Request) {
	var req supersedeRequest
	if err := readJSON(r, &req); err != nil {
		errutil.HandleHTTP(r.Context(), w, err)
		return
	}

	k, err := s.uc.Knowledge.Supersede(r.Context(), model.KnowledgeID(chi.URLParam(r, "id")), req.Answer, model.KnowledgeMeta{
		Category:  req.Category,
		Tags:      req.Tags,
		Source:    req.Source,
		CreatedBy: req.Author,
	})
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, toKnowledgeResponse(k))
}

func (s *Server) handleDedup(w http.ResponseWriter, r *http.Request) {
	report, err := s.uc.Knowledge.Dedup(r.Context())
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, err)
		return
	}
	writeJSON(w, r, http.StatusOK, &dedupResponse{
		Groups:  report.Groups,
		Kept:    toIDs(report.Kept),
		Removed: toIDs(report.Removed),
	})
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	report, err := s.uc.Knowledge.Reconcile(r.Context())
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toReconcileResponse(report))
}

func (s *Server) handlePersist(w http.ResponseWriter, r *http.Request) {
	if s.persister == nil {
		errutil.HandleHTTP(r.Context(), w, goerr.Wrap(model.ErrInvalidState, "index persistence is not configured"))
		return
	}
	if err := s.persister.Persist(r.Context()); err != nil {
		errutil.HandleHTTP(r.Context(), w, goerr.Wrap(err, "failed to persist index"))
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "persisted"})
}

func (s *Server) handleListGaps(w http.ResponseWriter, r *http.Request) {
	if s.gaps == nil {
		errutil.HandleHTTP(r.Context(), w, goerr.Wrap(model.ErrInvalidState, "gap repository is not configured"))
		return
	}

	limit, err := intParam(r.URL.Query().Get("limit"), "limit")
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, err)
		return
	}

	gaps, err := s.gaps.List(r.Context(), limit)
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, goerr.Wrap(err, "failed to list coverage gaps"))
		return
	}

	items := make([]gapResponse, len(gaps))
	for i, g := range gaps {
		items[i] = gapResponse{
			ID:        string(g.ID),
			Question:  g.Question,
			TopScore:  g.TopScore,
			AskedBy:   g.AskedBy,
			CreatedAt: g.CreatedAt,
		}
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"gaps": items})
}
