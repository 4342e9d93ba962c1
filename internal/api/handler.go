// Package api exposes pipelines, their run history and their ledger over HTTP.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"duck-etl/internal/domain"
	"duck-etl/internal/middleware"
	"duck-etl/internal/service/pipeline"
	"duck-etl/internal/ui"
)

// PipelineService is the subset of pipeline.Service the API needs.
type PipelineService interface {
	List() []pipeline.Entry
	Get(name string) (pipeline.Entry, error)
	Running(name string) bool
	Trigger(ctx context.Context, name, trigger string) (pipeline.RunResult, error)
	ListRuns(ctx context.Context, name string, filter domain.PipelineRunFilter) ([]domain.PipelineRun, error)
	GetRun(ctx context.Context, id string) (*domain.PipelineRun, error)
	Ledger(ctx context.Context, name string) ([]domain.ProcessedFile, error)
}

var _ PipelineService = (*pipeline.Service)(nil)

// Options configures the router.
type Options struct {
	// AllowedOrigins for CORS. Empty disables CORS headers.
	AllowedOrigins []string
	// TriggerRate limits manual runs per second and client. Zero means
	// unlimited.
	TriggerRate  float64
	TriggerBurst int
	// Auth, when set, guards every /v1 route with bearer token auth.
	Auth   middleware.TokenValidator
	Logger *slog.Logger
}

type handler struct {
	svc    PipelineService
	logger *slog.Logger
}

// NewRouter builds the HTTP handler.
//
//	GET  /healthz
//	GET  /v1/pipelines
//	GET  /v1/pipelines/{name}
//	POST /v1/pipelines/{name}/run
//	GET  /v1/pipelines/{name}/runs
//	GET  /v1/pipelines/{name}/ledger
//	GET  /v1/runs/{id}
//	GET  /ui
//	GET  /ui/pipelines/{name}
func NewRouter(svc PipelineService, opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &handler{svc: svc, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimw.Recoverer)
	if len(opts.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", middleware.HeaderRequestID},
			ExposedHeaders: []string{middleware.HeaderRequestID, "Retry-After"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Route("/v1", func(r chi.Router) {
		if opts.Auth != nil {
			r.Use(middleware.Authenticate(opts.Auth))
		}
		r.Get("/pipelines", h.listPipelines)
		r.Route("/pipelines/{name}", func(r chi.Router) {
			r.Get("/", h.getPipeline)
			if opts.TriggerRate > 0 {
				r.With(middleware.RateLimiter(middleware.RateLimitConfig{
					RequestsPerSecond: opts.TriggerRate,
					Burst:             opts.TriggerBurst,
				})).Post("/run", h.triggerRun)
			} else {
				r.Post("/run", h.triggerRun)
			}
			r.Get("/runs", h.listRuns)
			r.Get("/ledger", h.ledger)
		})
		r.Get("/runs/{id}", h.getRun)
	})
	r.Route("/ui", func(r chi.Router) {
		if opts.Auth != nil {
			r.Use(middleware.Authenticate(opts.Auth))
		}
		ui.MountRoutes(r, ui.NewHandler(svc, logger))
	})
	return r
}

func (h *handler) listPipelines(w http.ResponseWriter, _ *http.Request) {
	entries := h.svc.List()
	out := make([]Pipeline, 0, len(entries))
	for _, e := range entries {
		out = append(out, pipelineToAPI(e, h.svc.Running(e.Name())))
	}
	writeJSON(w, http.StatusOK, ListPipelinesResponse{Pipelines: out})
}

func (h *handler) getPipeline(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	e, err := h.svc.Get(name)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pipelineToAPI(e, h.svc.Running(name)))
}

func (h *handler) triggerRun(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if sub, ok := middleware.SubjectFromContext(r.Context()); ok {
		h.logger.Info("run requested", "pipeline", name, "subject", sub)
	}
	// A client that disconnects does not abort the run half way.
	res, err := h.svc.Trigger(context.WithoutCancel(r.Context()), name, domain.TriggerTypeManual)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, runResultToAPI(name, res))
}

func (h *handler) listRuns(w http.ResponseWriter, r *http.Request) {
	filter := domain.PipelineRunFilter{Status: r.URL.Query().Get("status")}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody(http.StatusBadRequest, "limit must be an integer", r))
			return
		}
		filter.Limit = n
	}
	runs, err := h.svc.ListRuns(r.Context(), chi.URLParam(r, "name"), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]Run, 0, len(runs))
	for _, run := range runs {
		out = append(out, runToAPI(run))
	}
	writeJSON(w, http.StatusOK, ListRunsResponse{Runs: out})
}

func (h *handler) getRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.svc.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, runToAPI(*run))
}

func (h *handler) ledger(w http.ResponseWriter, r *http.Request) {
	recs, err := h.svc.Ledger(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]ProcessedFile, 0, len(recs))
	for _, rec := range recs {
		out = append(out, ProcessedFile{
			FileName:    rec.FileName,
			FileVersion: rec.FileVersion,
			ProcessedAt: rec.ProcessedAt,
		})
	}
	writeJSON(w, http.StatusOK, LedgerResponse{Files: out})
}

func (h *handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := httpStatusFromDomainError(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, errorBody(status, err.Error(), r))
}

func errorBody(status int, msg string, r *http.Request) ErrorResponse {
	return ErrorResponse{Error: msg, Code: errorCode(status), RequestID: middleware.RequestIDFromContext(r.Context())}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
