package http

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"distconsole/internal/dataset"
	"distconsole/internal/distribution"
	apperrors "distconsole/internal/errors"
	"distconsole/internal/exporter"
	"distconsole/internal/history"
	"distconsole/internal/operations"
	"distconsole/internal/services"
	"distconsole/internal/shared/testutil"
	"distconsole/pkg/contracts/domain"
)

var created = time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)

func newDistributionAPI(t *testing.T) (http.Handler, *mockGetter, *mockLister) {
	t.Helper()
	logger, _ := testutil.NewTestLogger(t)
	getter := &mockGetter{}
	lister := &mockLister{}
	store := history.NewStore(lister, nil, logger)
	machine := distribution.NewMachine(getter, store, nil, nil, logger)
	h := NewDistributionHandler(machine, apperrors.NewErrorHandler(logger, false), logger)
	return mount("/api/distributions", h.Routes()), getter, lister
}

func TestDistributionHandler_FetchByID(t *testing.T) {
	api, getter, _ := newDistributionAPI(t)
	getter.On("Get", mock.Anything, "7").
		Return(&domain.DistributionItem{ConfigID: "7", Status: "Success", CreatedAt: created}, nil)

	rec := do(t, api, http.MethodPost, "/api/distributions/fetch", FetchRequest{ID: "7"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	snap := decodeBody[distribution.Snapshot](t, rec)
	assert.Equal(t, distribution.StateSuccessItem, snap.State)
	assert.Equal(t, distribution.ViewReady, snap.View.Status)
	assert.Equal(t, "Created 01.06.2024 09:30", snap.Description)

	rec = do(t, api, http.MethodGet, "/api/distributions/current", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "7", decodeBody[distribution.Snapshot](t, rec).Item.ConfigID)
}

func TestDistributionHandler_FetchLatestWithEmptyBody(t *testing.T) {
	api, getter, lister := newDistributionAPI(t)
	lister.On("List", mock.Anything).Return([]domain.HistoryEntry{{ConfigID: "1"}, {ConfigID: "2"}}, nil)
	getter.On("Get", mock.Anything, "2").Return(&domain.DistributionItem{ConfigID: "2", Status: "pending"}, nil)

	rec := do(t, api, http.MethodPost, "/api/distributions/fetch", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	snap := decodeBody[distribution.Snapshot](t, rec)
	assert.Equal(t, distribution.StateSuccessLatest, snap.State)
	assert.Equal(t, distribution.ViewPending, snap.View.Status)
	assert.Equal(t, "Latest distribution 2", snap.Title)
}

func TestDistributionHandler_EmptyHistory(t *testing.T) {
	api, _, lister := newDistributionAPI(t)
	lister.On("List", mock.Anything).Return([]domain.HistoryEntry{}, nil)

	rec := do(t, api, http.MethodPost, "/api/distributions/refresh", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	snap := decodeBody[distribution.Snapshot](t, rec)
	assert.Equal(t, distribution.StatePending, snap.State)
	assert.True(t, snap.Empty)
}

func TestDistributionHandler_NotFound(t *testing.T) {
	api, getter, _ := newDistributionAPI(t)
	getter.On("Get", mock.Anything, "404").
		Return(nil, &apperrors.UpstreamError{Method: "GET", Path: "/distributions/404", StatusCode: http.StatusNotFound})

	rec := do(t, api, http.MethodGet, "/api/distributions/404", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, apperrors.TypeDistributionNotFound, decodeProblem(t, rec).Type)
}

func TestDistributionHandler_GetLeavesTrackedDistributionAlone(t *testing.T) {
	api, getter, _ := newDistributionAPI(t)
	getter.On("Get", mock.Anything, "7").
		Return(&domain.DistributionItem{ConfigID: "7", Status: "success", CreatedAt: created}, nil)
	getter.On("Get", mock.Anything, "8").
		Return(&domain.DistributionItem{ConfigID: "8", Status: "pending", CreatedAt: created}, nil)

	rec := do(t, api, http.MethodPost, "/api/distributions/fetch", FetchRequest{ID: "7"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, api, http.MethodGet, "/api/distributions/8", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decodeBody[distribution.Snapshot](t, rec)
	require.NotNil(t, got.Item)
	assert.Equal(t, "8", got.Item.ConfigID)
	assert.Equal(t, distribution.ViewPending, got.View.Status)

	rec = do(t, api, http.MethodGet, "/api/distributions/current", nil)
	current := decodeBody[distribution.Snapshot](t, rec)
	require.NotNil(t, current.Item)
	assert.Equal(t, "7", current.Item.ConfigID)
	assert.Equal(t, "7", current.Target.ID)
	assert.Equal(t, distribution.ViewReady, current.View.Status)
}

func TestDistributionHandler_TransportFailure(t *testing.T) {
	api, getter, _ := newDistributionAPI(t)
	getter.On("Get", mock.Anything, "9").Return(nil, errors.New("connection reset"))

	rec := do(t, api, http.MethodPost, "/api/distributions/fetch", FetchRequest{ID: "9"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, apperrors.TypeDistributionLookup, decodeProblem(t, rec).Type)
}

func newHistoryAPI(t *testing.T) (http.Handler, *mockLister) {
	t.Helper()
	logger, _ := testutil.NewTestLogger(t)
	lister := &mockLister{}
	store := history.NewStore(lister, nil, logger)
	h := NewHistoryHandler(store, exporter.New(logger), nil, logger)
	return mount("/api/history", h.Routes()), lister
}

func TestHistoryHandler_RefreshAndList(t *testing.T) {
	api, lister := newHistoryAPI(t)
	lister.On("List", mock.Anything).Return([]domain.HistoryEntry{{ConfigID: "1", CreatedAt: created}}, nil).Once()

	rec := do(t, api, http.MethodGet, "/api/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeBody[history.Snapshot](t, rec).Empty)

	rec = do(t, api, http.MethodPost, "/api/history/refresh", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	snap := decodeBody[history.Snapshot](t, rec)
	require.Len(t, snap.Entries, 1)
	assert.False(t, snap.Empty)
}

func TestHistoryHandler_RefreshFailure(t *testing.T) {
	api, lister := newHistoryAPI(t)
	lister.On("List", mock.Anything).Return(nil, &apperrors.UpstreamError{Method: "GET", Path: "/distributions/history", StatusCode: 503})

	rec := do(t, api, http.MethodPost, "/api/history/refresh", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestHistoryHandler_ExportCSV(t *testing.T) {
	api, lister := newHistoryAPI(t)
	lister.On("List", mock.Anything).Return([]domain.HistoryEntry{
		{ConfigID: "1", CreatedAt: created},
		{ConfigID: "2", CreatedAt: created.Add(time.Hour)},
	}, nil)
	require.Equal(t, http.StatusOK, do(t, api, http.MethodPost, "/api/history/refresh", nil).Code)

	rec := do(t, api, http.MethodGet, "/api/history/export?format=CSV", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="distribution-history.csv"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, []string{
		"Config ID,Created",
		"1,01.06.2024 09:30",
		"2,01.06.2024 10:30",
	}, csvLines(rec))
}

func TestHistoryHandler_ExportXLSXByDefault(t *testing.T) {
	api, _ := newHistoryAPI(t)

	rec := do(t, api, http.MethodGet, "/api/history/export", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, exporter.FormatXLSX.ContentType(), rec.Header().Get("Content-Type"))
	assert.NotZero(t, rec.Body.Len())
}

func newDatasetAPI(t *testing.T) (http.Handler, *mockProvider, *dataset.Source) {
	t.Helper()
	logger, _ := testutil.NewTestLogger(t)
	provider := &mockProvider{}
	source := dataset.NewSource(provider, logger)
	h := NewDatasetHandler(source, exporter.New(logger), nil, "bills", logger)
	return mount("/api/dataset", h.Routes()), provider, source
}

func TestDatasetHandler_LoadDefaultAndColumns(t *testing.T) {
	api, provider, _ := newDatasetAPI(t)
	provider.On("GetDataset", mock.Anything, "bills", 1).Return(&domain.Dataset{
		Name:    "bills",
		Columns: []domain.Column{{Header: "amount"}, {Header: "region"}},
		Rows:    []domain.Row{{"amount": "10", "region": "north"}},
	}, nil)

	rec := do(t, api, http.MethodPost, "/api/dataset/load", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, api, http.MethodGet, "/api/dataset/columns", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"amount", "region"}, decodeBody[ColumnsResponse](t, rec).Headers)

	rec = do(t, api, http.MethodGet, "/api/dataset/export?format=csv", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"amount,region", "10,north"}, csvLines(rec))
	provider.AssertExpectations(t)
}

func TestDatasetHandler_ColumnsBeforeLoad(t *testing.T) {
	api, _, _ := newDatasetAPI(t)

	rec := do(t, api, http.MethodGet, "/api/dataset/columns", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[ColumnsResponse](t, rec)
	assert.Empty(t, resp.Columns)
	assert.Empty(t, resp.Headers)

	rec = do(t, api, http.MethodGet, "/api/dataset/export", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDatasetHandler_LoadPage(t *testing.T) {
	api, provider, _ := newDatasetAPI(t)
	provider.On("GetDataset", mock.Anything, "orders", 3).Return(nil, errors.New("boom"))

	rec := do(t, api, http.MethodPost, "/api/dataset/load", LoadRequest{Name: "orders", Page: 3})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	provider.AssertExpectations(t)
}

func TestOperationsHandler(t *testing.T) {
	api := mount("/api/operations", NewOperationsHandler(nil).Routes())

	rec := do(t, api, http.MethodGet, "/api/operations/kinds", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[map[string][]operations.KindInfo](t, rec)
	assert.Equal(t, operations.List(), resp["kinds"])

	rec = do(t, api, http.MethodGet, "/api/operations/kinds/filter", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "FILTER", decodeBody[operations.KindInfo](t, rec).Code)

	rec = do(t, api, http.MethodGet, "/api/operations/kinds/median", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type stubHealth struct{ ready bool }

func (s stubHealth) HealthCheck(ctx context.Context) services.HealthStatus {
	if s.ready {
		return services.HealthStatus{Status: "ok"}
	}
	return services.HealthStatus{Status: "not_ready"}
}

func (s stubHealth) ReadinessCheck(ctx context.Context) services.HealthStatus {
	if s.ready {
		return services.HealthStatus{Status: "ready"}
	}
	return services.HealthStatus{Status: "not_ready"}
}

func (s stubHealth) LivenessCheck(ctx context.Context) services.HealthStatus {
	return services.HealthStatus{Status: "alive"}
}

func (s stubHealth) Version() map[string]interface{} {
	return map[string]interface{}{"version": "test"}
}

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name   string
		ready  bool
		call   func(h *HealthHandler) http.HandlerFunc
		status int
	}{
		{"health ok", true, func(h *HealthHandler) http.HandlerFunc { return h.HealthCheck }, http.StatusOK},
		{"health down", false, func(h *HealthHandler) http.HandlerFunc { return h.HealthCheck }, http.StatusServiceUnavailable},
		{"ready", true, func(h *HealthHandler) http.HandlerFunc { return h.ReadinessCheck }, http.StatusOK},
		{"not ready", false, func(h *HealthHandler) http.HandlerFunc { return h.ReadinessCheck }, http.StatusServiceUnavailable},
		{"live while down", false, func(h *HealthHandler) http.HandlerFunc { return h.LivenessCheck }, http.StatusOK},
		{"version", false, func(h *HealthHandler) http.HandlerFunc { return h.Version }, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(stubHealth{ready: tt.ready}, nil)
			rec := do(t, tt.call(h), http.MethodGet, "/", nil)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}
