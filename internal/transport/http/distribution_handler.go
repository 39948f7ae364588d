package http

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apperrors "distconsole/internal/errors"
)

// DistributionHandler exposes the distribution status machine
type DistributionHandler struct {
	tracker DistributionTracker
	errors  *apperrors.ErrorHandler
	logger  *slog.Logger
}

// NewDistributionHandler creates a distribution handler
func NewDistributionHandler(tracker DistributionTracker, errorHandler *apperrors.ErrorHandler, logger *slog.Logger) *DistributionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if errorHandler == nil {
		errorHandler = apperrors.NewErrorHandler(logger, false)
	}
	return &DistributionHandler{
		tracker: tracker,
		errors:  errorHandler,
		logger:  logger.With(slog.String("handler", "distributions")),
	}
}

// Routes returns a chi router for distribution endpoints
func (h *DistributionHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/current", h.Current)
	r.Post("/fetch", h.Fetch)
	r.Post("/refresh", h.Refresh)
	r.Get("/{id}", h.Get)
	return r
}

// FetchRequest names the distribution to fetch. An empty id fetches the
// latest one in history.
type FetchRequest struct {
	ID string `json:"id,omitempty"`
}

// Bind implements render.Binder
func (f *FetchRequest) Bind(r *http.Request) error {
	f.ID = strings.TrimSpace(f.ID)
	return nil
}

// Current handles GET /api/distributions/current
func (h *DistributionHandler) Current(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.tracker.Snapshot())
}

// Fetch handles POST /api/distributions/fetch
func (h *DistributionHandler) Fetch(w http.ResponseWriter, r *http.Request) {
	var req FetchRequest
	if err := bind(r, &req); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	h.fetch(w, r, req.ID)
}

// Get handles GET /api/distributions/{id}. It reads the distribution
// without changing what the machine tracks; POST /fetch does that.
func (h *DistributionHandler) Get(w http.ResponseWriter, r *http.Request) {
	snap, err := h.tracker.Lookup(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, snap)
}

// Refresh handles POST /api/distributions/refresh
func (h *DistributionHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.tracker.Refresh(r.Context()); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, h.tracker.Snapshot())
}

func (h *DistributionHandler) fetch(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.tracker.Fetch(r.Context(), id); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, h.tracker.Snapshot())
}
