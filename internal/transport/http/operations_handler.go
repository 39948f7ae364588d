package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apperrors "distconsole/internal/errors"
	"distconsole/internal/operations"
)

// OperationsHandler serves the operation kind catalog
type OperationsHandler struct {
	errors *apperrors.ErrorHandler
}

// NewOperationsHandler creates an operations handler
func NewOperationsHandler(errorHandler *apperrors.ErrorHandler) *OperationsHandler {
	if errorHandler == nil {
		errorHandler = apperrors.NewErrorHandler(nil, false)
	}
	return &OperationsHandler{errors: errorHandler}
}

// Routes returns a chi router for operations endpoints
func (h *OperationsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/kinds", h.Kinds)
	r.Get("/kinds/{key}", h.Kind)
	return r
}

// Kinds handles GET /api/operations/kinds
func (h *OperationsHandler) Kinds(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]interface{}{"kinds": operations.List()})
}

// Kind handles GET /api/operations/kinds/{key}
func (h *OperationsHandler) Kind(w http.ResponseWriter, r *http.Request) {
	info, ok := operations.LookupByKey(chi.URLParam(r, "key"))
	if !ok {
		h.errors.HandleError(w, r, apperrors.NotFoundError("operation kind"))
		return
	}
	render.JSON(w, r, info)
}
