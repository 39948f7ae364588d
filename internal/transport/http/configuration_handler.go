package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apperrors "distconsole/internal/errors"
	"distconsole/internal/exporter"
	"distconsole/internal/middleware"
	"distconsole/internal/operations"
	"distconsole/pkg/contracts/domain"
)

// ConfigurationHandler exposes the configuration builder
type ConfigurationHandler struct {
	builder          ConfigurationBuilder
	tracker          DistributionTracker
	exporter         TableExporter
	errors           *apperrors.ErrorHandler
	defaultDataframe string
	logger           *slog.Logger
}

// NewConfigurationHandler creates a configuration handler. Submissions
// without a dataframe go to defaultDataframe.
func NewConfigurationHandler(builder ConfigurationBuilder, errorHandler *apperrors.ErrorHandler, defaultDataframe string, logger *slog.Logger) *ConfigurationHandler {
	if builder == nil {
		panic("builder cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if errorHandler == nil {
		errorHandler = apperrors.NewErrorHandler(logger, false)
	}
	return &ConfigurationHandler{
		builder:          builder,
		errors:           errorHandler,
		defaultDataframe: defaultDataframe,
		logger:           logger.With(slog.String("handler", "configurations")),
	}
}

// SetTracker makes a successful submission start tracking the returned
// distribution id
func (h *ConfigurationHandler) SetTracker(tracker DistributionTracker) {
	h.tracker = tracker
}

// SetExporter enables GET /export
func (h *ConfigurationHandler) SetExporter(exp TableExporter) {
	h.exporter = exp
}

// Routes returns a chi router for configuration endpoints
func (h *ConfigurationHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.ContentType("application/json"))

	r.Get("/", h.List)
	r.Post("/", h.Add)
	r.Put("/", h.Replace)
	r.Post("/validate", h.Validate)
	r.Post("/submit", h.Submit)
	r.Post("/reset", h.Reset)
	r.Get("/export", h.Export)

	r.Route("/{index}", func(r chi.Router) {
		r.Delete("/", h.Remove)
		r.Put("/column", h.SetColumn)
		r.Post("/operations", h.AddOperation)
		r.Get("/operations/available", h.Available)
		r.Put("/operations/{kind}", h.SetArgument)
		r.Delete("/operations/{kind}", h.RemoveOperation)
	})
	return r
}

// ColumnRequest sets a configuration's column
type ColumnRequest struct {
	Column string `json:"column"`
}

// Bind implements render.Binder
func (c *ColumnRequest) Bind(r *http.Request) error {
	c.Column = strings.TrimSpace(c.Column)
	return nil
}

// OperationRequest adds an operation kind
type OperationRequest struct {
	Kind string `json:"kind"`

	kind domain.OperationKind
}

// Bind implements render.Binder
func (o *OperationRequest) Bind(r *http.Request) error {
	kind, err := operations.ParseKind(o.Kind)
	if err != nil {
		return err
	}
	o.kind = kind
	return nil
}

// ArgumentRequest sets the argument of an operation
type ArgumentRequest struct {
	Argument string `json:"argument"`
}

// Bind implements render.Binder
func (a *ArgumentRequest) Bind(r *http.Request) error { return nil }

// SubmitRequest submits the configurations
type SubmitRequest struct {
	Dataframe string `json:"dataframe,omitempty"`
}

// Bind implements render.Binder
func (s *SubmitRequest) Bind(r *http.Request) error {
	s.Dataframe = strings.TrimSpace(s.Dataframe)
	return nil
}

// SetRequest replaces the whole configuration set
type SetRequest struct {
	domain.ConfigurationSet
}

// Bind implements render.Binder
func (s *SetRequest) Bind(r *http.Request) error {
	for i := range s.Configurations {
		ops := s.Configurations[i].Operations
		for k := range ops {
			kind, err := operations.ParseKind(string(ops[k].Kind))
			if err != nil {
				return fmt.Errorf("configurations[%d].operations[%d]: %w", i, k, err)
			}
			ops[k].Kind = kind
		}
	}
	return nil
}

// SubmitResponse is returned by POST /submit
type SubmitResponse struct {
	Message   string `json:"message"`
	ConfigID  string `json:"config_id"`
	Dataframe string `json:"dataframe"`
	Tracking  bool   `json:"tracking"`
}

// List handles GET /api/configurations
func (h *ConfigurationHandler) List(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.builder.Snapshot())
}

// Add handles POST /api/configurations
func (h *ConfigurationHandler) Add(w http.ResponseWriter, r *http.Request) {
	index := h.builder.AddConfiguration()
	h.logger.DebugContext(r.Context(), "configuration added", slog.Int("index", index))

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, map[string]interface{}{
		"index":    index,
		"snapshot": h.builder.Snapshot(),
	})
}

// Replace handles PUT /api/configurations
func (h *ConfigurationHandler) Replace(w http.ResponseWriter, r *http.Request) {
	var req SetRequest
	if err := bind(r, &req); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	if err := h.builder.Load(req.ConfigurationSet); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	h.logger.InfoContext(r.Context(), "configurations replaced",
		slog.Int("configurations", len(req.Configurations)))
	render.JSON(w, r, h.builder.Snapshot())
}

// Remove handles DELETE /api/configurations/{index}
func (h *ConfigurationHandler) Remove(w http.ResponseWriter, r *http.Request) {
	h.withIndex(w, r, func(index int) error {
		return h.builder.RemoveConfiguration(index)
	})
}

// SetColumn handles PUT /api/configurations/{index}/column
func (h *ConfigurationHandler) SetColumn(w http.ResponseWriter, r *http.Request) {
	var req ColumnRequest
	if err := bind(r, &req); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	h.withIndex(w, r, func(index int) error {
		return h.builder.SetColumn(index, req.Column)
	})
}

// AddOperation handles POST /api/configurations/{index}/operations
func (h *ConfigurationHandler) AddOperation(w http.ResponseWriter, r *http.Request) {
	var req OperationRequest
	if err := bind(r, &req); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	h.withIndex(w, r, func(index int) error {
		return h.builder.AddOperationKind(index, req.kind)
	})
}

// RemoveOperation handles DELETE /api/configurations/{index}/operations/{kind}
func (h *ConfigurationHandler) RemoveOperation(w http.ResponseWriter, r *http.Request) {
	h.withOperation(w, r, func(index int, kind domain.OperationKind) error {
		return h.builder.RemoveOperation(index, kind)
	})
}

// SetArgument handles PUT /api/configurations/{index}/operations/{kind}
func (h *ConfigurationHandler) SetArgument(w http.ResponseWriter, r *http.Request) {
	var req ArgumentRequest
	if err := bind(r, &req); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	h.withOperation(w, r, func(index int, kind domain.OperationKind) error {
		return h.builder.SetArgument(index, kind, req.Argument)
	})
}

// Available handles GET /api/configurations/{index}/operations/available
func (h *ConfigurationHandler) Available(w http.ResponseWriter, r *http.Request) {
	index, err := indexParam(r, "index")
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	kinds, err := h.builder.Available(index)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]interface{}{"kinds": kinds})
}

// Validate handles POST /api/configurations/validate
func (h *ConfigurationHandler) Validate(w http.ResponseWriter, r *http.Request) {
	set, err := h.builder.Serialize()
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, set)
}

// Submit handles POST /api/configurations/submit
func (h *ConfigurationHandler) Submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req SubmitRequest
	if err := bind(r, &req); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	dataframe := req.Dataframe
	if dataframe == "" {
		dataframe = h.defaultDataframe
	}
	if dataframe == "" {
		h.errors.HandleError(w, r, apperrors.InvalidParameter("dataframe", errors.New("no dataframe given and no default configured")))
		return
	}

	result, err := h.builder.Submit(ctx, dataframe)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	resp := SubmitResponse{
		Message:   result.Message,
		ConfigID:  result.ConfigID,
		Dataframe: dataframe,
	}
	if h.tracker != nil && result.ConfigID != "" {
		resp.Tracking = true
		go h.track(context.WithoutCancel(ctx), result.ConfigID)
	}

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, resp)
}

// track fetches a freshly submitted distribution. The outcome reaches the UI
// through the machine's snapshots.
func (h *ConfigurationHandler) track(ctx context.Context, id string) {
	if err := h.tracker.Fetch(ctx, id); err != nil {
		h.logger.WarnContext(ctx, "tracking submitted distribution failed",
			slog.String("config_id", id),
			slog.String("error", err.Error()))
	}
}

// Reset handles POST /api/configurations/reset
func (h *ConfigurationHandler) Reset(w http.ResponseWriter, r *http.Request) {
	h.builder.Reset()
	h.logger.InfoContext(r.Context(), "configurations reset")
	render.JSON(w, r, h.builder.Snapshot())
}

// Export handles GET /api/configurations/export?format=xlsx|csv. The current
// configurations are exported as they are, without validation.
func (h *ConfigurationHandler) Export(w http.ResponseWriter, r *http.Request) {
	format, err := exporter.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		h.errors.HandleError(w, r, apperrors.InvalidParameter("format", err))
		return
	}
	set := domain.ConfigurationSet{Configurations: h.builder.Configurations()}
	if err := writeExport(r.Context(), w, h.exporter, format, "configurations", exporter.ConfigurationTable(set)); err != nil {
		h.errors.HandleError(w, r, err)
	}
}

func (h *ConfigurationHandler) withIndex(w http.ResponseWriter, r *http.Request, fn func(index int) error) {
	index, err := indexParam(r, "index")
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	if err := fn(index); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, h.builder.Snapshot())
}

// withOperation parses the {kind} parameter. The builder resolves the kind
// to its side-table position under its own lock.
func (h *ConfigurationHandler) withOperation(w http.ResponseWriter, r *http.Request, fn func(index int, kind domain.OperationKind) error) {
	h.withIndex(w, r, func(index int) error {
		kind, err := operations.ParseKind(chi.URLParam(r, "kind"))
		if err != nil {
			return err
		}
		return fn(index, kind)
	})
}
