package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/m-mizutani/goerr/v2"
	"github.com/nik45114/kbcore/pkg/domain/interfaces"
	"github.com/nik45114/kbcore/pkg/domain/model"
	"github.com/nik45114/kbcore/pkg/usecase"
	"github.com/nik45114/kbcore/pkg/utils/errutil"
	"github.com/nik45114/kbcore/pkg/utils/logging"
)

// maxBodySize bounds every JSON request body
const maxBodySize = 1 << 20

// Persister flushes the vector index to durable storage
type Persister interface {
	Persist(ctx context.Context) error
}

type Server struct {
	router    *chi.Mux
	uc        *usecase.UseCases
	gaps      interfaces.GapRepository
	persister Persister
}

type Options func(*Server)

// WithGapRepository enables GET /api/admin/gaps
func WithGapRepository(repo interfaces.GapRepository) Options {
	return func(s *Server) {
		s.gaps = repo
	}
}

// WithPersister enables POST /api/admin/persist
func WithPersister(p Persister) Options {
	return func(s *Server) {
		s.persister = p
	}
}

func New(uc *usecase.UseCases, opts ...Options) (*Server, error) {
	if uc == nil {
		return nil, goerr.New("use cases are required")
	}

	r := chi.NewRouter()

	s := &Server{
		router: r,
		uc:     uc,
	}
	for _, opt := range opts {
		opt(s)
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(accessLogger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Post("/answer", s.handleAnswer)
		r.Post("/learn", s.handleLearn)

		r.Route("/drafts", func(r chi.Router) {
			r.Get("/", s.handleListDrafts)
			r.Post("/", s.handleCreateDraft)
			r.Get("/{id}", s.handleGetDraft)
			r.Post("/{id}/approve", s.handleApproveDraft)
			r.Post("/{id}/reject", s.handleRejectDraft)
		})

		r.Route("/knowledge", func(r chi.Router) {
			r.Get("/", s.handleHistory)
			r.Get("/search", s.handleSearch)
			r.Get("/{id}", s.handleGetKnowledge)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/knowledge", s.handleAddKnowledge)
			r.Post("/knowledge/{id}/supersede", s.handleSupersede)
			r.Post("/dedup", s.handleDedup)
			r.Post("/reconcile", s.handleReconcile)
			r.Post("/persist", s.handlePersist)
			r.Get("/gaps", s.handleListGaps)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// accessLogger is a middleware that logs HTTP requests
func accessLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			logging.Default().Info("access",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"remote", r.RemoteAddr,
				"request_id", middleware.GetReqID(r.Context()),
				"user_agent", r.UserAgent(),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, goerr.Wrap(err, "failed to marshal response"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data) //nolint:errcheck // header already committed
}

func readJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return goerr.Wrap(model.ErrInvalidInput, "malformed request body", goerr.V("error", err.Error()))
	}
	return nil
}
