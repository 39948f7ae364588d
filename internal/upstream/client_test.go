package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"distconsole/internal/config"
	apperrors "distconsole/internal/errors"
	"distconsole/pkg/contracts/domain"
)

func newTestClient(t *testing.T, r http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	c, err := New(config.UpstreamConfig{
		BaseURL:  srv.URL + "/api/",
		Timeout:  5 * time.Second,
		Burst:    10,
		PageSize: 25,
	}, nil, WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	return c
}

func TestClient_GetDataset(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/api/dataframes/{name}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "bills", chi.URLParam(r, "name"))
		assert.Equal(t, "2", r.URL.Query().Get("pg"))
		assert.Equal(t, "25", r.URL.Query().Get("n"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"columns": []map[string]string{{"header": "amount"}, {"header": "region"}},
			"rows":    []map[string]string{{"amount": "10", "region": "north"}},
			"meta":    map[string]int{"n": 25, "pg": 2, "rows": 1, "pages": 3},
		})
	})
	c := newTestClient(t, r)

	ds, err := c.GetDataset(context.Background(), "bills", 2)
	require.NoError(t, err)
	assert.Equal(t, "bills", ds.Name, "name defaults to the requested dataframe")
	assert.Equal(t, []domain.Column{{Header: "amount"}, {Header: "region"}}, ds.Columns)
	assert.Equal(t, 3, ds.Meta.Pages)
	assert.Equal(t, "north", ds.Rows[0]["region"])
}

func TestClient_Submit(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/api/dataframes/{name}/distribute", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var set domain.ConfigurationSet
		require.NoError(t, json.NewDecoder(r.Body).Decode(&set))
		require.Len(t, set.Configurations, 1)
		assert.Equal(t, "amount", set.Configurations[0].Column)
		assert.Equal(t, "x > 1", set.Configurations[0].Operations[0].Argument())
		_ = json.NewEncoder(w).Encode(domain.SubmitResult{Message: "accepted", ConfigID: "77"})
	})
	c := newTestClient(t, r)

	res, err := c.Submit(context.Background(), "bills", domain.ConfigurationSet{
		Configurations: []domain.Configuration{{
			Column:     "amount",
			Operations: []domain.Operation{domain.NewOperation(domain.OperationKindFilter, "x > 1")},
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, "77", res.ConfigID)
}

func TestClient_GetPropagatesRequestID(t *testing.T) {
	var seen string
	r := chi.NewRouter()
	r.Get("/api/distributions/{id}", func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get("X-Request-ID")
		_, _ = w.Write([]byte(`{"config_id":"5","status":"Success","create_at":"2024-06-01T09:30:00Z"}`))
	})
	c := newTestClient(t, r)

	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-123")
	item, err := c.Get(ctx, "5")
	require.NoError(t, err)
	assert.Equal(t, "req-123", seen)
	assert.Equal(t, domain.DistributionStatusSuccess, item.ServerStatus())
	assert.Equal(t, 2024, item.CreatedAt.Year())
}

func TestClient_NotFound(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/api/distributions/{id}", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such distribution", http.StatusNotFound)
	})
	c := newTestClient(t, r)

	_, err := c.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))

	var upstreamErr *apperrors.UpstreamError
	require.True(t, errors.As(err, &upstreamErr))
	assert.Equal(t, "/distributions/missing", upstreamErr.Path)
	assert.Equal(t, "no such distribution", upstreamErr.Body)
}

func TestClient_ServerErrorIsNotNotFound(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/api/distributions/history", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	c := newTestClient(t, r)

	_, err := c.List(context.Background())
	require.Error(t, err)
	assert.False(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestClient_List(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/api/distributions/history", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"config_id":"1"},{"config_id":"2"}]`))
	})
	c := newTestClient(t, r)

	entries, err := c.List(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "2", entries[1].ConfigID)
}

func TestClient_DecodeError(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/api/distributions/{id}", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	})
	c := newTestClient(t, r)

	_, err := c.Get(context.Background(), "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode GET /distributions/1")
}

func TestClient_CancelledContext(t *testing.T) {
	c := newTestClient(t, chi.NewRouter())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.List(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew_InvalidURL(t *testing.T) {
	_, err := New(config.UpstreamConfig{BaseURL: "://bad"}, nil)
	assert.Error(t, err)
}
