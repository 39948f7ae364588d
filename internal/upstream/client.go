// Package upstream talks to the remote data-source API. Client satisfies the
// dataset, constructor, distribution and history collaborator interfaces.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"distconsole/internal/config"
	apperrors "distconsole/internal/errors"
	"distconsole/internal/infrastructure"
	"distconsole/pkg/contracts/domain"
)

// maxErrorBody caps how much of a failed response is kept in UpstreamError
const maxErrorBody = 4 << 10

// Client is an HTTP/JSON client for the data-source API
type Client struct {
	baseURL  *url.URL
	http     *http.Client
	limiter  *rate.Limiter
	pageSize int
	logger   *slog.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client. Its transport is used
// as is, without OpenTelemetry wrapping.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New creates a client for cfg.BaseURL
func New(cfg config.UpstreamConfig, logger *slog.Logger, opts ...Option) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse upstream base url: %w", err)
	}

	limit := rate.Inf
	if cfg.RPS > 0 {
		limit = rate.Limit(cfg.RPS)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}

	c := &Client{
		baseURL: base,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		limiter:  rate.NewLimiter(limit, burst),
		pageSize: cfg.PageSize,
		logger:   infrastructure.WithComponent(logger, "upstream"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// GetDataset loads one page of the named dataframe
func (c *Client) GetDataset(ctx context.Context, name string, page int) (*domain.Dataset, error) {
	q := url.Values{}
	q.Set("pg", strconv.Itoa(page))
	if c.pageSize > 0 {
		q.Set("n", strconv.Itoa(c.pageSize))
	}

	var ds domain.Dataset
	if err := c.do(ctx, http.MethodGet, "/dataframes/"+url.PathEscape(name), q, nil, &ds); err != nil {
		return nil, err
	}
	if ds.Name == "" {
		ds.Name = name
	}
	return &ds, nil
}

// Submit posts a configuration set for distribution against dataframe
func (c *Client) Submit(ctx context.Context, dataframe string, set domain.ConfigurationSet) (domain.SubmitResult, error) {
	var res domain.SubmitResult
	err := c.do(ctx, http.MethodPost, "/dataframes/"+url.PathEscape(dataframe)+"/distribute", nil, set, &res)
	return res, err
}

// Get fetches a distribution by id
func (c *Client) Get(ctx context.Context, id string) (*domain.DistributionItem, error) {
	var item domain.DistributionItem
	if err := c.do(ctx, http.MethodGet, "/distributions/"+url.PathEscape(id), nil, nil, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// List returns past submissions, most recent last
func (c *Client) List(ctx context.Context) ([]domain.HistoryEntry, error) {
	var entries []domain.HistoryEntry
	if err := c.do(ctx, http.MethodGet, "/distributions/history", nil, nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// Ping checks that the API answers at all. Any HTTP response counts.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL.String(), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("upstream unreachable: %w", err)
	}
	resp.Body.Close()
	return nil
}

// BaseURL returns the configured API root
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("upstream rate limit: %w", err)
	}

	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	requestID := middleware.GetReqID(ctx)
	if requestID == "" {
		requestID = uuid.New().String()
	}
	req.Header.Set("X-Request-ID", requestID)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.WarnContext(ctx, "upstream request failed",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("request_id", requestID),
			slog.String("error", err.Error()))
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.logger.DebugContext(ctx, "upstream request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.String("request_id", requestID),
		slog.Duration("duration", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &apperrors.UpstreamError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(data)),
		}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := render.DecodeJSON(resp.Body, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
