package services

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"distconsole/internal/distribution"
	"distconsole/internal/history"
	ws "distconsole/internal/websocket"
)

// pingTimeout bounds the upstream probe made by ReadinessCheck
const pingTimeout = 3 * time.Second

// Pinger checks that the data-source API is reachable
type Pinger interface {
	Ping(ctx context.Context) error
	BaseURL() string
}

// HubStats reports websocket hub activity
type HubStats interface {
	Stats() ws.Stats
}

// HistoryState exposes the history store's published state
type HistoryState interface {
	Snapshot() history.Snapshot
}

// DistributionState exposes the distribution machine's published state
type DistributionState interface {
	Snapshot() distribution.Snapshot
}

// BuildInfo identifies the running binary
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// HealthService provides health check functionality
type HealthService struct {
	build        BuildInfo
	upstream     Pinger
	hub          HubStats
	history      HistoryState
	distribution DistributionState
	startTime    time.Time
	logger       *slog.Logger
}

// HealthStatus represents the health status response
type HealthStatus struct {
	Status    string                   `json:"status"`
	Timestamp time.Time                `json:"timestamp"`
	Version   string                   `json:"version"`
	Runtime   map[string]interface{}   `json:"runtime,omitempty"`
	Services  map[string]ServiceHealth `json:"services,omitempty"`
}

// ServiceHealth represents individual service health
type ServiceHealth struct {
	Status  string         `json:"status"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

const (
	statusReady    = "ready"
	statusNotReady = "not_ready"
	// degraded services do not make the console unready
	statusDegraded = "degraded"
)

// NewHealthService creates a health service. Any collaborator may be nil and
// is then reported as not configured.
func NewHealthService(build BuildInfo, upstream Pinger, hub HubStats, hist HistoryState, dist DistributionState, logger *slog.Logger) *HealthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthService{
		build:        build,
		upstream:     upstream,
		hub:          hub,
		history:      hist,
		distribution: dist,
		startTime:    time.Now(),
		logger:       logger.With(slog.String("service", "health")),
	}
}

// HealthCheck returns overall health status
func (hs *HealthService) HealthCheck(ctx context.Context) HealthStatus {
	status := hs.ReadinessCheck(ctx)
	if status.Status == statusReady {
		status.Status = "ok"
	}
	return status
}

// ReadinessCheck probes the upstream API and reports the state of each
// store. Only an unreachable upstream or a stopped hub make the console
// not ready.
func (hs *HealthService) ReadinessCheck(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:    statusReady,
		Timestamp: time.Now(),
		Version:   hs.build.Version,
		Services:  make(map[string]ServiceHealth, 4),
	}

	var upstream ServiceHealth
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		upstream = hs.checkUpstream(gctx)
		return nil
	})
	status.Services["websocket"] = hs.checkWebSocket()
	status.Services["history"] = hs.checkHistory()
	status.Services["distribution"] = hs.checkDistribution()
	_ = g.Wait()
	status.Services["upstream"] = upstream

	for name, service := range status.Services {
		if service.Status == statusNotReady {
			status.Status = statusNotReady
			hs.logger.WarnContext(ctx, "service not ready",
				slog.String("name", name),
				slog.String("message", service.Message))
		}
	}
	return status
}

// LivenessCheck returns liveness status
func (hs *HealthService) LivenessCheck(ctx context.Context) HealthStatus {
	return HealthStatus{
		Status:    "alive",
		Timestamp: time.Now(),
		Version:   hs.build.Version,
		Runtime: map[string]interface{}{
			"uptime":     time.Since(hs.startTime).Seconds(),
			"go_version": runtime.Version(),
			"goroutines": runtime.NumGoroutine(),
		},
	}
}

// Version returns version information
func (hs *HealthService) Version() map[string]interface{} {
	result := map[string]interface{}{
		"version":      hs.build.Version,
		"go_version":   runtime.Version(),
		"os":           runtime.GOOS,
		"arch":         runtime.GOARCH,
		"uptime":       time.Since(hs.startTime).Seconds(),
		"start_time":   hs.startTime.Format(time.RFC3339),
		"current_time": time.Now().Format(time.RFC3339),
	}
	if hs.build.Commit != "" {
		result["commit"] = hs.build.Commit
	}
	if hs.build.BuildTime != "" {
		result["build_time"] = hs.build.BuildTime
	}
	return result
}

func (hs *HealthService) checkUpstream(ctx context.Context) ServiceHealth {
	if hs.upstream == nil {
		return ServiceHealth{Status: statusNotReady, Message: "upstream client not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	details := map[string]any{"base_url": hs.upstream.BaseURL()}
	if err := hs.upstream.Ping(ctx); err != nil {
		return ServiceHealth{Status: statusNotReady, Message: err.Error(), Details: details}
	}
	return ServiceHealth{Status: statusReady, Message: "upstream API reachable", Details: details}
}

func (hs *HealthService) checkWebSocket() ServiceHealth {
	if hs.hub == nil {
		return ServiceHealth{Status: statusNotReady, Message: "websocket hub not configured"}
	}
	stats := hs.hub.Stats()
	details := map[string]any{
		"clients":          stats.ActiveClients,
		"messages_sent":    stats.MessagesSent,
		"messages_dropped": stats.MessagesDropped,
	}
	if !stats.Running {
		return ServiceHealth{Status: statusNotReady, Message: "websocket hub not running", Details: details}
	}
	return ServiceHealth{Status: statusReady, Message: "WebSocket service is healthy", Details: details}
}

func (hs *HealthService) checkHistory() ServiceHealth {
	if hs.history == nil {
		return ServiceHealth{Status: statusDegraded, Message: "history store not configured"}
	}
	snap := hs.history.Snapshot()
	details := map[string]any{
		"entries": len(snap.Entries),
		"loading": snap.Loading,
	}
	if !snap.LoadedAt.IsZero() {
		details["loaded_at"] = snap.LoadedAt
	}
	if snap.Error != "" {
		return ServiceHealth{Status: statusDegraded, Message: snap.Error, Details: details}
	}
	return ServiceHealth{Status: statusReady, Details: details}
}

func (hs *HealthService) checkDistribution() ServiceHealth {
	if hs.distribution == nil {
		return ServiceHealth{Status: statusDegraded, Message: "distribution machine not configured"}
	}
	snap := hs.distribution.Snapshot()
	details := map[string]any{
		"state":   snap.State,
		"view":    snap.View.Status,
		"loading": snap.Loading,
	}
	if snap.Item != nil {
		details["config_id"] = snap.Item.ConfigID
	}
	if snap.Error != "" {
		return ServiceHealth{Status: statusDegraded, Message: snap.Error, Details: details}
	}
	return ServiceHealth{Status: statusReady, Details: details}
}
