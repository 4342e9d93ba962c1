// Package ui serves a read-only HTML status page for pipelines, their recent
// runs and their ledger.
package ui

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	gomponents "maragu.dev/gomponents"

	"duck-etl/internal/domain"
	"duck-etl/internal/service/pipeline"
)

// recentRuns is how many runs the detail page lists.
const recentRuns = 20

// Source is what the pages read from.
type Source interface {
	List() []pipeline.Entry
	Get(name string) (pipeline.Entry, error)
	Running(name string) bool
	ListRuns(ctx context.Context, name string, filter domain.PipelineRunFilter) ([]domain.PipelineRun, error)
	Ledger(ctx context.Context, name string) ([]domain.ProcessedFile, error)
}

// Handler renders the status pages.
type Handler struct {
	src    Source
	logger *slog.Logger
}

// NewHandler returns a Handler reading from src.
func NewHandler(src Source, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{src: src, logger: logger}
}

// MountRoutes registers the pages on r, which is expected to be mounted at /ui.
func MountRoutes(r chi.Router, h *Handler) {
	r.Get("/", h.Overview)
	r.Get("/pipelines/{name}", h.PipelineDetail)
}

// Overview lists every registered pipeline.
func (h *Handler) Overview(w http.ResponseWriter, _ *http.Request) {
	entries := h.src.List()
	rows := make([]pipelineRowData, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, pipelineRowData{
			Name:     e.Name(),
			URL:      "/ui/pipelines/" + e.Name(),
			Schedule: orDash(e.Schedule),
			Models:   len(e.Definition.Models),
			Paused:   e.Paused,
			Running:  h.src.Running(e.Name()),
		})
	}
	renderHTML(w, http.StatusOK, overviewPage(rows))
}

// PipelineDetail shows one pipeline with its recent runs and ledger.
func (h *Handler) PipelineDetail(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	e, err := h.src.Get(name)
	if err != nil {
		h.renderError(w, err)
		return
	}
	runs, err := h.src.ListRuns(r.Context(), name, domain.PipelineRunFilter{Limit: recentRuns})
	if err != nil {
		h.renderError(w, err)
		return
	}
	files, err := h.src.Ledger(r.Context(), name)
	if err != nil {
		h.renderError(w, err)
		return
	}

	d := pipelineDetailData{
		Name:        e.Name(),
		Description: orDash(e.Description),
		Schedule:    orDash(e.Schedule),
		Paused:      e.Paused,
		Running:     h.src.Running(name),
	}
	for _, m := range e.Definition.Models {
		d.Models = append(d.Models, m.Name)
	}
	for _, run := range runs {
		row := runRowData{
			ID:        run.ID,
			Status:    run.Status,
			Trigger:   run.TriggerType,
			Started:   formatTime(run.StartedAt),
			Finished:  "-",
			Processed: run.FilesProcessed,
			Skipped:   run.FilesSkipped,
			Error:     "-",
		}
		if run.FinishedAt != nil {
			row.Finished = formatTime(*run.FinishedAt)
		}
		if run.ErrorMessage != nil && *run.ErrorMessage != "" {
			row.Error = *run.ErrorMessage
		}
		d.Runs = append(d.Runs, row)
	}
	for _, f := range files {
		d.Ledger = append(d.Ledger, ledgerRowData{
			FileName:    f.FileName,
			FileVersion: formatTime(f.FileVersion),
			ProcessedAt: formatTime(f.ProcessedAt),
		})
	}
	renderHTML(w, http.StatusOK, pipelineDetailPage(d))
}

func (h *Handler) renderError(w http.ResponseWriter, err error) {
	var notFound *domain.NotFoundError
	if errors.As(err, &notFound) {
		renderHTML(w, http.StatusNotFound, errorPage("Not Found", notFound.Error()))
		return
	}
	h.logger.Error("render page", "error", err)
	renderHTML(w, http.StatusInternalServerError, errorPage("Unexpected Error", "An unexpected error occurred while loading this page."))
}

func renderHTML(w http.ResponseWriter, status int, node gomponents.Node) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = node.Render(w)
}
