// Package history keeps the list of past distribution submissions.
package history

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"distconsole/internal/infrastructure"
	"distconsole/internal/snapshot"
	"distconsole/pkg/contracts/domain"
)

// Lister returns the submission history, most recent last
type Lister interface {
	List(ctx context.Context) ([]domain.HistoryEntry, error)
}

// Snapshot is the published state of the Store
type Snapshot struct {
	Entries  []domain.HistoryEntry `json:"entries"`
	Loading  bool                  `json:"loading"`
	Empty    bool                  `json:"empty"`
	Error    string                `json:"error,omitempty"`
	LoadedAt time.Time             `json:"loaded_at,omitempty"`
}

// Store is the sole owner of the history list. The list is only ever
// replaced wholesale by a successful Load.
type Store struct {
	mu       sync.Mutex
	entries  []domain.HistoryEntry
	loaded   bool
	inFlight int
	lastErr  error
	loadedAt time.Time
	issued   uint64
	applied  uint64
	// revision counts published state changes
	revision uint64

	lister    Lister
	group     singleflight.Group
	metrics   *infrastructure.BusinessMetrics
	publisher *snapshot.Publisher[Snapshot]
	logger    *slog.Logger
}

// NewStore creates an empty store backed by lister
func NewStore(lister Lister, metrics *infrastructure.BusinessMetrics, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		lister:  lister,
		metrics: metrics,
		logger:  infrastructure.WithComponent(logger, "history"),
	}
	s.publisher = snapshot.NewPublisher(Snapshot{Entries: []domain.HistoryEntry{}, Empty: true}, s.logger)
	return s
}

type loadResult struct {
	seq     uint64
	entries []domain.HistoryEntry
}

// Load fetches the history and replaces the list. Concurrent calls share one
// upstream request. On failure the previous list is kept and the error is
// returned. A result older than one already applied is dropped.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	s.inFlight++
	rev, snap := s.commitLocked()
	s.mu.Unlock()
	s.publisher.Publish(rev, snap)

	ch := s.group.DoChan("history", func() (interface{}, error) {
		s.mu.Lock()
		s.issued++
		seq := s.issued
		s.mu.Unlock()

		entries, err := s.lister.List(context.WithoutCancel(ctx))
		return loadResult{seq: seq, entries: entries}, err
	})

	var (
		res loadResult
		err error
	)
	select {
	case r := <-ch:
		err = r.Err
		if r.Val != nil {
			res = r.Val.(loadResult)
		}
		if r.Shared {
			s.logger.DebugContext(ctx, "history load shared with concurrent caller")
		}
	case <-ctx.Done():
		err = ctx.Err()
	}

	s.mu.Lock()
	s.inFlight--
	stale := false
	switch {
	case err != nil:
		s.lastErr = err
	case res.seq < s.applied:
		stale = true
	default:
		s.applied = res.seq
		s.entries = append([]domain.HistoryEntry{}, res.entries...)
		s.loaded = true
		s.lastErr = nil
		s.loadedAt = time.Now()
	}
	count := len(s.entries)
	rev, snap = s.commitLocked()
	s.mu.Unlock()
	s.publisher.Publish(rev, snap)

	if stale {
		s.metrics.RecordStaleResponse(ctx, "history")
		s.logger.DebugContext(ctx, "dropping stale history response", slog.Uint64("seq", res.seq))
		return nil
	}

	s.metrics.RecordHistoryLoad(ctx, count, err == nil)
	if err != nil {
		s.logger.WarnContext(ctx, "history load failed", slog.String("error", err.Error()))
		return fmt.Errorf("load history: %w", err)
	}

	s.logger.DebugContext(ctx, "history loaded", slog.Int("entries", count))
	return nil
}

// Entries returns a copy of the list, most recent last
func (s *Store) Entries() []domain.HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.HistoryEntry{}, s.entries...)
}

// Latest returns the most recent entry
func (s *Store) Latest() (domain.HistoryEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) == 0 {
		return domain.HistoryEntry{}, false
	}
	return s.entries[len(s.entries)-1], true
}

// Len returns the number of entries
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Loading reports whether a load is in flight
func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight > 0
}

// Loaded reports whether at least one load has succeeded
func (s *Store) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

// Snapshot returns the latest published snapshot
func (s *Store) Snapshot() Snapshot {
	return s.publisher.Current()
}

// Subscribe registers fn for every published snapshot
func (s *Store) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	return s.publisher.Subscribe(fn)
}

// commitLocked advances the revision and builds the snapshot for it
func (s *Store) commitLocked() (uint64, Snapshot) {
	s.revision++
	return s.revision, s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	snap := Snapshot{
		Entries:  append([]domain.HistoryEntry{}, s.entries...),
		Loading:  s.inFlight > 0,
		Empty:    len(s.entries) == 0,
		LoadedAt: s.loadedAt,
	}
	if s.lastErr != nil {
		snap.Error = s.lastErr.Error()
	}
	return snap
}
