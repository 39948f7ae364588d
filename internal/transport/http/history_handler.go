package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apperrors "distconsole/internal/errors"
	"distconsole/internal/exporter"
)

// HistoryHandler exposes the distribution history
type HistoryHandler struct {
	store    HistoryStore
	exporter TableExporter
	errors   *apperrors.ErrorHandler
	logger   *slog.Logger
}

// NewHistoryHandler creates a history handler
func NewHistoryHandler(store HistoryStore, exp TableExporter, errorHandler *apperrors.ErrorHandler, logger *slog.Logger) *HistoryHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if errorHandler == nil {
		errorHandler = apperrors.NewErrorHandler(logger, false)
	}
	return &HistoryHandler{
		store:    store,
		exporter: exp,
		errors:   errorHandler,
		logger:   logger.With(slog.String("handler", "history")),
	}
}

// Routes returns a chi router for history endpoints
func (h *HistoryHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Post("/refresh", h.Refresh)
	r.Get("/export", h.Export)
	return r
}

// List handles GET /api/history
func (h *HistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.store.Snapshot())
}

// Refresh handles POST /api/history/refresh
func (h *HistoryHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Load(r.Context()); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, h.store.Snapshot())
}

// Export handles GET /api/history/export?format=xlsx|csv
func (h *HistoryHandler) Export(w http.ResponseWriter, r *http.Request) {
	format, err := exporter.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		h.errors.HandleError(w, r, apperrors.InvalidParameter("format", err))
		return
	}
	entries := h.store.Entries()
	h.logger.DebugContext(r.Context(), "exporting history",
		slog.String("format", string(format)),
		slog.Int("entries", len(entries)))

	if err := writeExport(r.Context(), w, h.exporter, format, "distribution-history", exporter.HistoryTable(entries)); err != nil {
		h.errors.HandleError(w, r, err)
	}
}
