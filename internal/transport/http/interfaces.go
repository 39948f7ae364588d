package http

import (
	"context"
	"io"

	"distconsole/internal/constructor"
	"distconsole/internal/dataset"
	"distconsole/internal/distribution"
	"distconsole/internal/exporter"
	"distconsole/internal/history"
	"distconsole/internal/operations"
	"distconsole/internal/services"
	"distconsole/pkg/contracts/domain"
)

// ConfigurationBuilder is the configuration store behind /api/configurations.
// constructor.Builder satisfies it.
type ConfigurationBuilder interface {
	AddConfiguration() int
	RemoveConfiguration(index int) error
	SetColumn(index int, column string) error
	AddOperationKind(index int, kind domain.OperationKind) error
	RemoveOperation(index int, kind domain.OperationKind) error
	SetArgument(index int, kind domain.OperationKind, arg string) error
	Available(index int) ([]operations.KindInfo, error)
	Configurations() []domain.Configuration
	Reset()
	Load(set domain.ConfigurationSet) error
	Serialize() (domain.ConfigurationSet, error)
	Submit(ctx context.Context, dataframe string) (domain.SubmitResult, error)
	Snapshot() constructor.Snapshot
}

// DatasetSource is the dataset store behind /api/dataset
type DatasetSource interface {
	Load(ctx context.Context, name string, page int) error
	Columns() []domain.Column
	Snapshot() dataset.Snapshot
}

// DistributionTracker is the status machine behind /api/distributions
type DistributionTracker interface {
	Fetch(ctx context.Context, id string) error
	Refresh(ctx context.Context) error
	Lookup(ctx context.Context, id string) (distribution.Snapshot, error)
	Snapshot() distribution.Snapshot
}

// HistoryStore is the history list behind /api/history
type HistoryStore interface {
	Load(ctx context.Context) error
	Entries() []domain.HistoryEntry
	Snapshot() history.Snapshot
}

// HealthChecker reports service health
type HealthChecker interface {
	HealthCheck(ctx context.Context) services.HealthStatus
	ReadinessCheck(ctx context.Context) services.HealthStatus
	LivenessCheck(ctx context.Context) services.HealthStatus
	Version() map[string]interface{}
}

// TableExporter writes tables as a downloadable file
type TableExporter interface {
	Write(ctx context.Context, w io.Writer, format exporter.Format, tables ...exporter.Table) error
}
