// Package distribution tracks one distribution result through its fetch
// lifecycle: Pending until a lookup resolves, then Success (by explicit id or
// via the latest history entry) or Failure.
package distribution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	apperrors "distconsole/internal/errors"
	"distconsole/internal/infrastructure"
	"distconsole/internal/snapshot"
	"distconsole/pkg/contracts/domain"
)

// Getter looks a distribution up by id
type Getter interface {
	Get(ctx context.Context, id string) (*domain.DistributionItem, error)
}

// HistorySource resolves the most recent submission. history.Store
// satisfies it.
type HistorySource interface {
	Load(ctx context.Context) error
	Latest() (domain.HistoryEntry, bool)
}

// Notifier receives user-facing notifications
type Notifier interface {
	Notify(ctx context.Context, n domain.Notification)
}

// Target is what a fetch resolves. An empty ID means the latest entry in
// history.
type Target struct {
	ID string `json:"id,omitempty"`
}

// Latest reports whether the target resolves through history
func (t Target) Latest() bool { return t.ID == "" }

func (t Target) kind() string {
	if t.Latest() {
		return "latest"
	}
	return "item"
}

// Snapshot is the published state of the Machine
type Snapshot struct {
	State       State                    `json:"state"`
	Item        *domain.DistributionItem `json:"item,omitempty"`
	Target      Target                   `json:"target"`
	Loading     bool                     `json:"loading"`
	Empty       bool                     `json:"empty"`
	Error       string                   `json:"error,omitempty"`
	View        View                     `json:"view"`
	Title       string                   `json:"title"`
	Description string                   `json:"description,omitempty"`
	UpdatedAt   time.Time                `json:"updated_at"`
}

// Artifacts returns the links produced by the current item
func (s Snapshot) Artifacts() *domain.DistributionResult {
	return s.Item.Artifacts()
}

// Machine is the sole owner of the current distribution item and its state
type Machine struct {
	mu        sync.Mutex
	state     State
	item      *domain.DistributionItem
	target    Target
	loading   bool
	empty     bool
	lastErr   error
	updatedAt time.Time
	// seq is the sequence number of the newest fetch issued
	seq uint64
	// revision counts published state changes
	revision uint64

	getter    Getter
	history   HistorySource
	notifier  Notifier
	metrics   *infrastructure.BusinessMetrics
	publisher *snapshot.Publisher[Snapshot]
	logger    *slog.Logger
}

// NewMachine creates a machine in the Pending state
func NewMachine(getter Getter, history HistorySource, notifier Notifier, metrics *infrastructure.BusinessMetrics, logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Machine{
		state:    StatePending,
		getter:   getter,
		history:  history,
		notifier: notifier,
		metrics:  metrics,
		logger:   infrastructure.WithComponent(logger, "distribution"),
	}
	m.publisher = snapshot.NewPublisher(m.snapshotLocked(), m.logger)
	return m
}

// Fetch resolves id, or the latest history entry when id is empty.
//
// An empty history leaves the machine Pending with Empty set and returns nil.
// Lookup failures, including a failed history load, move the machine to
// Failure and return *errors.LookupError. A fetch overtaken by a newer one
// is discarded and returns nil.
func (m *Machine) Fetch(ctx context.Context, id string) error {
	target := Target{ID: id}
	start := time.Now()

	ctx, span := infrastructure.StartSpan(ctx, "distribution.fetch",
		attribute.String("target", target.kind()),
		attribute.String("config_id", id))
	defer span.End()

	m.mu.Lock()
	m.seq++
	seq := m.seq
	m.target = target
	m.loading = true
	rev, snap := m.commitLocked()
	m.mu.Unlock()
	m.publisher.Publish(rev, snap)

	item, resolvedID, err := m.resolve(ctx, target)

	m.mu.Lock()
	if seq != m.seq {
		m.mu.Unlock()
		m.metrics.RecordStaleResponse(ctx, "distribution")
		m.logger.DebugContext(ctx, "discarding stale fetch response",
			slog.Uint64("seq", seq),
			slog.String("target", target.kind()),
			slog.String("config_id", resolvedID))
		return nil
	}

	m.loading = false
	m.updatedAt = time.Now()
	var lookupErr *apperrors.LookupError
	switch {
	case errors.Is(err, apperrors.ErrEmptyHistory):
		m.state = StatePending
		m.item = nil
		m.empty = true
		m.lastErr = nil
		err = nil
	case err != nil:
		lookupErr = &apperrors.LookupError{ID: resolvedID, Latest: target.Latest(), Cause: err}
		m.state = StateFailure
		m.empty = false
		m.lastErr = lookupErr
	default:
		m.item = item
		m.empty = false
		m.lastErr = nil
		if target.Latest() {
			m.state = StateSuccessLatest
		} else {
			m.state = StateSuccessItem
		}
	}
	rev, snap = m.commitLocked()
	m.mu.Unlock()
	m.publisher.Publish(rev, snap)

	m.metrics.RecordFetch(ctx, target.kind(), lookupErr == nil, time.Since(start))

	if lookupErr != nil {
		infrastructure.RecordError(ctx, lookupErr)
		m.logger.ErrorContext(ctx, "distribution lookup failed",
			slog.String("target", target.kind()),
			slog.String("config_id", resolvedID),
			slog.Bool("not_found", lookupErr.NotFound()),
			slog.String("error", lookupErr.Error()))
		if m.notifier != nil {
			m.notifier.Notify(ctx, domain.Notification{
				Level:       domain.NotificationError,
				Title:       "Unexpected error",
				Description: "Failed to load distribution",
				Time:        time.Now(),
			})
		}
		return lookupErr
	}

	if snap.View.Disagreement {
		m.metrics.RecordDisagreement(ctx, string(snap.State), string(snap.View.Server))
		m.logger.WarnContext(ctx, "local state and server status disagree",
			slog.String("config_id", resolvedID),
			slog.String("local", string(snap.State)),
			slog.String("server", string(snap.View.Server)),
			slog.String("view", string(snap.View.Status)))
	}

	if snap.Empty {
		m.logger.InfoContext(ctx, "no distribution in history yet")
	} else {
		m.logger.DebugContext(ctx, "distribution fetched",
			slog.String("config_id", resolvedID),
			slog.String("state", string(snap.State)),
			slog.String("view", string(snap.View.Status)))
	}
	return nil
}

// Refresh repeats the last fetch target. Before any fetch it resolves the
// latest entry.
func (m *Machine) Refresh(ctx context.Context) error {
	m.mu.Lock()
	target := m.target
	m.mu.Unlock()
	return m.Fetch(ctx, target.ID)
}

// Lookup fetches distribution id and returns it in snapshot form without
// changing the machine's target, state or item. Failures are
// *errors.LookupError.
func (m *Machine) Lookup(ctx context.Context, id string) (Snapshot, error) {
	target := Target{ID: id}
	if target.Latest() {
		return Snapshot{}, &apperrors.LookupError{Cause: fmt.Errorf("lookup needs a distribution id: %w", apperrors.ErrNotFound)}
	}
	start := time.Now()

	ctx, span := infrastructure.StartSpan(ctx, "distribution.lookup",
		attribute.String("config_id", id))
	defer span.End()

	item, _, err := m.resolve(ctx, target)
	m.metrics.RecordFetch(ctx, "lookup", err == nil, time.Since(start))
	if err != nil {
		infrastructure.RecordError(ctx, err)
		return Snapshot{}, &apperrors.LookupError{ID: id, Cause: err}
	}

	snap := Snapshot{
		State:     StateSuccessItem,
		Item:      item,
		Target:    target,
		View:      ResolveView(StateSuccessItem, item),
		UpdatedAt: time.Now(),
	}
	snap.Title, snap.Description = describe(target, item)
	return snap, nil
}

// resolve performs the lookup, going through history for the latest target.
// It returns the id that was looked up so failures can name it.
func (m *Machine) resolve(ctx context.Context, target Target) (*domain.DistributionItem, string, error) {
	id := target.ID
	if target.Latest() {
		latest, err := m.latestID(ctx)
		if err != nil {
			return nil, "", err
		}
		id = latest
	}

	item, err := m.getter.Get(ctx, id)
	if err != nil {
		return nil, id, err
	}
	if item == nil {
		return nil, id, fmt.Errorf("distribution %s: empty response", id)
	}
	if item.ConfigID == "" {
		item.ConfigID = id
	}
	return item.Clone(), id, nil
}

func (m *Machine) latestID(ctx context.Context) (string, error) {
	if err := m.history.Load(ctx); err != nil {
		return "", err
	}
	entry, ok := m.history.Latest()
	if !ok {
		return "", apperrors.ErrEmptyHistory
	}
	return entry.ConfigID, nil
}

// State returns the current local state
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Item returns a copy of the current item, nil if none was fetched
func (m *Machine) Item() *domain.DistributionItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.item.Clone()
}

// Loading reports whether a fetch is in flight
func (m *Machine) Loading() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loading
}

// Err returns the error of the last completed fetch, nil unless Failure
func (m *Machine) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// View returns the current display status
func (m *Machine) View() View {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.viewLocked()
}

// Snapshot returns the latest published snapshot
func (m *Machine) Snapshot() Snapshot {
	return m.publisher.Current()
}

// Subscribe registers fn for every published snapshot
func (m *Machine) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	return m.publisher.Subscribe(fn)
}

func (m *Machine) viewLocked() View {
	v := ResolveView(m.state, m.item)
	if m.loading {
		v.Status = ViewLoading
	}
	return v
}

// commitLocked advances the revision and builds the snapshot for it
func (m *Machine) commitLocked() (uint64, Snapshot) {
	m.revision++
	return m.revision, m.snapshotLocked()
}

func (m *Machine) snapshotLocked() Snapshot {
	snap := Snapshot{
		State:     m.state,
		Item:      m.item.Clone(),
		Target:    m.target,
		Loading:   m.loading,
		Empty:     m.empty,
		View:      m.viewLocked(),
		UpdatedAt: m.updatedAt,
	}
	if m.lastErr != nil {
		snap.Error = m.lastErr.Error()
	}
	snap.Title, snap.Description = describe(m.target, m.item)
	return snap
}

// describe builds the heading shown above the distribution
func describe(target Target, item *domain.DistributionItem) (title, description string) {
	title = "Distribution"
	if target.Latest() {
		title = "Latest distribution"
		if item != nil && item.ConfigID != "" {
			title += " " + item.ConfigID
		}
	}
	if item != nil && !item.CreatedAt.IsZero() {
		description = "Created " + item.CreatedAt.Format("02.01.2006 15:04")
	}
	return title, description
}
