package dataset

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"distconsole/internal/infrastructure"
	"distconsole/internal/snapshot"
	"distconsole/pkg/contracts/domain"
)

// Provider fetches one page of a named dataframe
type Provider interface {
	GetDataset(ctx context.Context, name string, page int) (*domain.Dataset, error)
}

// Snapshot is the published state of the Source
type Snapshot struct {
	Dataset  *domain.Dataset `json:"dataset"`
	Columns  []domain.Column `json:"columns"`
	Loading  bool            `json:"loading"`
	Error    string          `json:"error,omitempty"`
	LoadedAt time.Time       `json:"loaded_at,omitempty"`
}

// Source owns the current dataset. Columns are always derived from it.
type Source struct {
	mu       sync.Mutex
	provider Provider
	current  *domain.Dataset
	loading  bool
	lastErr  error
	loadedAt time.Time
	seq      uint64
	// revision counts published state changes
	revision uint64

	publisher *snapshot.Publisher[Snapshot]
	logger    *slog.Logger
}

// NewSource creates an empty source backed by provider
func NewSource(provider Provider, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Source{
		provider: provider,
		logger:   infrastructure.WithComponent(logger, "dataset_source"),
	}
	s.publisher = snapshot.NewPublisher(Snapshot{Columns: []domain.Column{}}, s.logger)
	return s
}

// Load pulls a page from the provider and replaces the current dataset. On
// failure the previous dataset is kept. A load superseded by a newer one is
// discarded.
func (s *Source) Load(ctx context.Context, name string, page int) error {
	if page < 1 {
		page = 1
	}

	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.loading = true
	rev, snap := s.commitLocked()
	s.mu.Unlock()
	s.publisher.Publish(rev, snap)

	ds, err := s.provider.GetDataset(ctx, name, page)
	if err == nil && ds == nil {
		err = fmt.Errorf("provider returned no dataset")
	}

	s.mu.Lock()
	if seq != s.seq {
		s.mu.Unlock()
		s.logger.DebugContext(ctx, "discarding superseded dataset load",
			slog.String("dataframe", name), slog.Uint64("seq", seq))
		return nil
	}
	s.loading = false
	if err != nil {
		s.lastErr = err
	} else {
		if ds.Name == "" {
			ds.Name = name
		}
		s.current = ds
		s.lastErr = nil
		s.loadedAt = time.Now()
	}
	rev, snap = s.commitLocked()
	s.mu.Unlock()
	s.publisher.Publish(rev, snap)

	if err != nil {
		s.logger.WarnContext(ctx, "dataset load failed",
			slog.String("dataframe", name), slog.Int("page", page), slog.String("error", err.Error()))
		return fmt.Errorf("load dataset %s page %d: %w", name, page, err)
	}

	s.logger.InfoContext(ctx, "dataset loaded",
		slog.String("dataframe", name),
		slog.Int("page", page),
		slog.Int("columns", len(ds.Columns)),
		slog.Int("rows", len(ds.Rows)))
	return nil
}

// Dataset returns a copy of the current dataset, nil before the first load
func (s *Source) Dataset() *domain.Dataset {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneDataset(s.current)
}

// Columns returns the columns of the current dataset
func (s *Source) Columns() []domain.Column {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ColumnsFor(s.current)
}

// Loading reports whether a load is in flight
func (s *Source) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Snapshot returns the latest published snapshot
func (s *Source) Snapshot() Snapshot {
	return s.publisher.Current()
}

// Subscribe registers fn for every published snapshot
func (s *Source) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	return s.publisher.Subscribe(fn)
}

// commitLocked advances the revision and builds the snapshot for it
func (s *Source) commitLocked() (uint64, Snapshot) {
	s.revision++
	return s.revision, s.snapshotLocked()
}

func (s *Source) snapshotLocked() Snapshot {
	snap := Snapshot{
		Dataset:  cloneDataset(s.current),
		Columns:  ColumnsFor(s.current),
		Loading:  s.loading,
		LoadedAt: s.loadedAt,
	}
	if s.lastErr != nil {
		snap.Error = s.lastErr.Error()
	}
	return snap
}

func cloneDataset(ds *domain.Dataset) *domain.Dataset {
	if ds == nil {
		return nil
	}
	c := *ds
	c.Columns = append([]domain.Column(nil), ds.Columns...)
	c.Rows = make([]domain.Row, len(ds.Rows))
	for i, row := range ds.Rows {
		c.Rows[i] = maps.Clone(row)
	}
	return &c
}
