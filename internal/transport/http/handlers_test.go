package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"distconsole/internal/distribution"
	apperrors "distconsole/internal/errors"
	"distconsole/pkg/contracts/domain"
)

type mockSubmitter struct {
	mock.Mock
}

func (m *mockSubmitter) Submit(ctx context.Context, dataframe string, set domain.ConfigurationSet) (domain.SubmitResult, error) {
	args := m.Called(ctx, dataframe, set)
	return args.Get(0).(domain.SubmitResult), args.Error(1)
}

type mockTracker struct {
	mock.Mock
}

func (m *mockTracker) Fetch(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockTracker) Refresh(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockTracker) Lookup(ctx context.Context, id string) (distribution.Snapshot, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(distribution.Snapshot), args.Error(1)
}

func (m *mockTracker) Snapshot() distribution.Snapshot {
	return distribution.Snapshot{}
}

type mockGetter struct {
	mock.Mock
}

func (m *mockGetter) Get(ctx context.Context, id string) (*domain.DistributionItem, error) {
	args := m.Called(ctx, id)
	item, _ := args.Get(0).(*domain.DistributionItem)
	return item, args.Error(1)
}

type mockLister struct {
	mock.Mock
}

func (m *mockLister) List(ctx context.Context) ([]domain.HistoryEntry, error) {
	args := m.Called(ctx)
	entries, _ := args.Get(0).([]domain.HistoryEntry)
	return entries, args.Error(1)
}

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) GetDataset(ctx context.Context, name string, page int) (*domain.Dataset, error) {
	args := m.Called(ctx, name, page)
	ds, _ := args.Get(0).(*domain.Dataset)
	return ds, args.Error(1)
}

type problem struct {
	Type   string                      `json:"type"`
	Title  string                      `json:"title"`
	Status int                         `json:"status"`
	Detail string                      `json:"detail"`
	Errors []apperrors.ValidationError `json:"errors"`
}

func mount(prefix string, routes chi.Router) http.Handler {
	r := chi.NewRouter()
	r.Mount(prefix, routes)
	return r
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) problem {
	t.Helper()
	p := decodeBody[problem](t, rec)
	require.Equal(t, rec.Code, p.Status)
	return p
}

func csvLines(rec *httptest.ResponseRecorder) []string {
	body := strings.TrimPrefix(rec.Body.String(), "\ufeff")
	return strings.Split(strings.TrimSpace(body), "\n")
}

func newRawRequest(method, path, body, contentType string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", contentType)
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}
