// Package constructor implements the configuration builder: an ordered list
// of column configurations, each with a per-configuration side-table of
// operation kinds kept positionally aligned with its operation list.
package constructor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	apperrors "distconsole/internal/errors"
	"distconsole/internal/infrastructure"
	"distconsole/internal/operations"
	"distconsole/internal/snapshot"
	"distconsole/pkg/contracts/domain"
)

// Submitter sends a serialized configuration set for distribution
type Submitter interface {
	Submit(ctx context.Context, dataframe string, set domain.ConfigurationSet) (domain.SubmitResult, error)
}

// Notifier receives user-facing notifications
type Notifier interface {
	Notify(ctx context.Context, n domain.Notification)
}

// ConfigurationView is one configuration as presented to the UI
type ConfigurationView struct {
	Index      int                    `json:"index"`
	Column     string                 `json:"column"`
	Operations []domain.Operation     `json:"operations"`
	Kinds      []domain.OperationKind `json:"kinds"`
	KindList   string                 `json:"kind_list"`
	Available  []operations.KindInfo  `json:"available"`
}

// Snapshot is the published state of the Builder
type Snapshot struct {
	Configurations []ConfigurationView         `json:"configurations"`
	Loading        bool                        `json:"loading"`
	LastResult     *domain.SubmitResult        `json:"last_result,omitempty"`
	LastSubmitted  time.Time                   `json:"last_submitted,omitempty"`
	Errors         []apperrors.ValidationError `json:"errors,omitempty"`
}

// Option configures a Builder
type Option func(*Builder)

// WithNotifier sends submission failures to n
func WithNotifier(n Notifier) Option {
	return func(b *Builder) { b.notifier = n }
}

// WithMetrics records submission outcomes
func WithMetrics(m *infrastructure.BusinessMetrics) Option {
	return func(b *Builder) { b.metrics = m }
}

// Builder is the sole mutator of the configuration list. Every mutation
// updates the operation list and its kind side-table under one lock.
type Builder struct {
	mu      sync.Mutex
	configs []domain.Configuration
	// kinds[i][k] is the kind of configs[i].Operations[k]
	kinds         [][]domain.OperationKind
	submitting    bool
	lastResult    *domain.SubmitResult
	lastSubmitted time.Time
	lastErrors    []apperrors.ValidationError
	// revision counts committed mutations; snapshots carry it to the publisher
	revision uint64

	submitter Submitter
	notifier  Notifier
	metrics   *infrastructure.BusinessMetrics
	publisher *snapshot.Publisher[Snapshot]
	logger    *slog.Logger
}

// NewBuilder creates an empty builder
func NewBuilder(submitter Submitter, logger *slog.Logger, opts ...Option) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Builder{
		submitter: submitter,
		logger:    infrastructure.WithComponent(logger, "constructor"),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.publisher = snapshot.NewPublisher(Snapshot{Configurations: []ConfigurationView{}}, b.logger)
	return b
}

// AddConfiguration appends an empty configuration and returns its index
func (b *Builder) AddConfiguration() int {
	b.mu.Lock()
	b.configs = append(b.configs, domain.Configuration{Operations: []domain.Operation{}})
	b.kinds = append(b.kinds, []domain.OperationKind{})
	index := len(b.configs) - 1
	rev, snap := b.commitLocked()
	b.mu.Unlock()

	b.publisher.Publish(rev, snap)
	return index
}

// RemoveConfiguration removes the configuration at index; later
// configurations and their side-table entries shift down together.
func (b *Builder) RemoveConfiguration(index int) error {
	return b.mutate(func() error {
		if err := b.checkIndexLocked(index); err != nil {
			return err
		}
		b.configs = append(b.configs[:index], b.configs[index+1:]...)
		b.kinds = append(b.kinds[:index], b.kinds[index+1:]...)
		return nil
	})
}

// SetColumn selects the column of a configuration. The header is not checked
// against the loaded dataset.
func (b *Builder) SetColumn(index int, column string) error {
	return b.mutate(func() error {
		if err := b.checkIndexLocked(index); err != nil {
			return err
		}
		b.configs[index].Column = strings.TrimSpace(column)
		return nil
	})
}

// AddOperationKind appends kind to the side-table and an empty operation of
// that kind to the operation list. Adding a kind already present is a no-op.
func (b *Builder) AddOperationKind(index int, kind domain.OperationKind) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: %q", apperrors.ErrUnknownOperationKind, kind)
	}
	return b.mutate(func() error {
		if err := b.checkIndexLocked(index); err != nil {
			return err
		}
		for _, k := range b.kinds[index] {
			if k == kind {
				return nil
			}
		}
		b.kinds[index] = append(b.kinds[index], kind)
		b.configs[index].Operations = append(b.configs[index].Operations, domain.Operation{Kind: kind})
		return nil
	})
}

// RemoveOperationKind removes the kind at kindIndex and the operation at the
// same position.
func (b *Builder) RemoveOperationKind(index, kindIndex int) error {
	return b.mutate(func() error {
		if err := b.checkKindIndexLocked(index, kindIndex); err != nil {
			return err
		}
		kinds := b.kinds[index]
		b.kinds[index] = append(kinds[:kindIndex], kinds[kindIndex+1:]...)
		ops := b.configs[index].Operations
		b.configs[index].Operations = append(ops[:kindIndex], ops[kindIndex+1:]...)
		return nil
	})
}

// SetOperationArgument writes arg into the field selected by the kind at
// kindIndex.
func (b *Builder) SetOperationArgument(index, kindIndex int, arg string) error {
	return b.mutate(func() error {
		if err := b.checkKindIndexLocked(index, kindIndex); err != nil {
			return err
		}
		op := &b.configs[index].Operations[kindIndex]
		op.Kind = b.kinds[index][kindIndex]
		op.SetArgument(arg)
		return nil
	})
}

// RemoveOperation removes the operation of the given kind together with its
// side-table entry. The position is resolved under the same lock as the
// removal.
func (b *Builder) RemoveOperation(index int, kind domain.OperationKind) error {
	return b.mutate(func() error {
		kindIndex, err := b.kindIndexLocked(index, kind)
		if err != nil {
			return err
		}
		kinds := b.kinds[index]
		b.kinds[index] = append(kinds[:kindIndex], kinds[kindIndex+1:]...)
		ops := b.configs[index].Operations
		b.configs[index].Operations = append(ops[:kindIndex], ops[kindIndex+1:]...)
		return nil
	})
}

// SetArgument writes arg into the operation of the given kind
func (b *Builder) SetArgument(index int, kind domain.OperationKind, arg string) error {
	return b.mutate(func() error {
		kindIndex, err := b.kindIndexLocked(index, kind)
		if err != nil {
			return err
		}
		op := &b.configs[index].Operations[kindIndex]
		op.Kind = kind
		op.SetArgument(arg)
		return nil
	})
}

// Kinds returns the side-table entry of a configuration
func (b *Builder) Kinds(index int) ([]domain.OperationKind, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkIndexLocked(index); err != nil {
		return nil, err
	}
	return append([]domain.OperationKind{}, b.kinds[index]...), nil
}

// KindList returns the side-table entry in its comma-joined form
func (b *Builder) KindList(index int) (string, error) {
	kinds, err := b.Kinds(index)
	if err != nil {
		return "", err
	}
	return joinKinds(kinds), nil
}

// Available returns the operation kinds that can still be added to a
// configuration.
func (b *Builder) Available(index int) ([]operations.KindInfo, error) {
	kinds, err := b.Kinds(index)
	if err != nil {
		return nil, err
	}
	return operations.Available(kinds), nil
}

// Len returns the number of configurations
func (b *Builder) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.configs)
}

// Configurations returns a deep copy of the configuration list
func (b *Builder) Configurations() []domain.Configuration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return cloneConfigs(b.configs)
}

// Reset drops every configuration
func (b *Builder) Reset() {
	_ = b.mutate(func() error {
		b.configs = nil
		b.kinds = nil
		b.lastErrors = nil
		return nil
	})
}

// Load replaces the builder state with set. Kinds are rebuilt from the
// operations; a duplicate or unknown kind rejects the whole set.
func (b *Builder) Load(set domain.ConfigurationSet) error {
	configs := cloneConfigs(set.Configurations)
	kinds := make([][]domain.OperationKind, len(configs))

	var verrs apperrors.ValidationErrors
	for i, cfg := range configs {
		configs[i].Column = strings.TrimSpace(cfg.Column)
		seen := make(map[domain.OperationKind]bool, len(cfg.Operations))
		kinds[i] = make([]domain.OperationKind, 0, len(cfg.Operations))
		for k, op := range cfg.Operations {
			field := fmt.Sprintf("configurations[%d].operations[%d].kind", i, k)
			switch {
			case !op.Kind.Valid():
				verrs.Errors = append(verrs.Errors, apperrors.ValidationError{
					Field: field, Message: fmt.Sprintf("unknown operation kind %q", op.Kind),
				})
			case seen[op.Kind]:
				verrs.Errors = append(verrs.Errors, apperrors.ValidationError{
					Field: field, Message: fmt.Sprintf("duplicate operation kind %q", op.Kind),
				})
			}
			seen[op.Kind] = true
			kinds[i] = append(kinds[i], op.Kind)
		}
	}
	if len(verrs.Errors) > 0 {
		return &verrs
	}

	return b.mutate(func() error {
		b.configs = configs
		b.kinds = kinds
		b.lastErrors = nil
		return nil
	})
}

// Serialize validates the current state and returns the submission payload.
// Violations come back as *errors.ValidationErrors and are also kept in the
// snapshot for the UI.
func (b *Builder) Serialize() (domain.ConfigurationSet, error) {
	b.mu.Lock()
	set := domain.ConfigurationSet{Configurations: cloneConfigs(b.configs)}
	b.mu.Unlock()

	err := ValidateSet(set)

	var verrs *apperrors.ValidationErrors
	_ = b.mutate(func() error {
		b.lastErrors = nil
		if errors.As(err, &verrs) {
			b.lastErrors = append([]apperrors.ValidationError{}, verrs.Errors...)
		}
		return nil
	})

	if err != nil {
		return domain.ConfigurationSet{}, err
	}
	return set, nil
}

// Submit serializes the configurations and sends them for distribution
// against dataframe. On failure the configurations are left untouched and
// the error is returned as *errors.SubmissionError. There is no retry.
func (b *Builder) Submit(ctx context.Context, dataframe string) (domain.SubmitResult, error) {
	set, err := b.Serialize()
	if err != nil {
		return domain.SubmitResult{}, err
	}

	ctx, span := infrastructure.StartSpan(ctx, "constructor.submit",
		attribute.String("dataframe", dataframe),
		attribute.Int("configurations", len(set.Configurations)))
	defer span.End()

	b.setSubmitting(true)
	result, err := b.submitter.Submit(ctx, dataframe, set)

	b.mu.Lock()
	b.submitting = false
	if err == nil {
		r := result
		b.lastResult = &r
		b.lastSubmitted = time.Now()
	}
	rev, snap := b.commitLocked()
	b.mu.Unlock()
	b.publisher.Publish(rev, snap)

	b.metrics.RecordSubmission(ctx, len(set.Configurations), err == nil)

	if err != nil {
		infrastructure.RecordError(ctx, err)
		subErr := &apperrors.SubmissionError{Dataframe: dataframe, Cause: err}
		b.logger.ErrorContext(ctx, "submission failed",
			slog.String("dataframe", dataframe),
			slog.Int("configurations", len(set.Configurations)),
			slog.String("error", err.Error()))
		if b.notifier != nil {
			b.notifier.Notify(ctx, domain.Notification{
				Level:       domain.NotificationError,
				Title:       "Submission failed",
				Description: subErr.Error(),
				Time:        time.Now(),
			})
		}
		return domain.SubmitResult{}, subErr
	}

	b.logger.InfoContext(ctx, "configurations submitted",
		slog.String("dataframe", dataframe),
		slog.Int("configurations", len(set.Configurations)),
		slog.String("config_id", result.ConfigID))
	if b.notifier != nil {
		b.notifier.Notify(ctx, domain.Notification{
			Level:       domain.NotificationSuccess,
			Title:       "Configurations submitted",
			Description: result.Message,
			Time:        time.Now(),
		})
	}
	return result, nil
}

// Submitting reports whether a submission is in flight
func (b *Builder) Submitting() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.submitting
}

// LastResult returns the result of the last successful submission
func (b *Builder) LastResult() (domain.SubmitResult, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.lastResult == nil {
		return domain.SubmitResult{}, false
	}
	return *b.lastResult, true
}

// Snapshot returns the latest published snapshot
func (b *Builder) Snapshot() Snapshot {
	return b.publisher.Current()
}

// Subscribe registers fn for every published snapshot
func (b *Builder) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	return b.publisher.Subscribe(fn)
}

func (b *Builder) setSubmitting(v bool) {
	_ = b.mutate(func() error {
		b.submitting = v
		return nil
	})
}

// mutate runs fn under the lock and publishes a snapshot when fn succeeds
func (b *Builder) mutate(fn func() error) error {
	b.mu.Lock()
	if err := fn(); err != nil {
		b.mu.Unlock()
		return err
	}
	rev, snap := b.commitLocked()
	b.mu.Unlock()

	b.publisher.Publish(rev, snap)
	return nil
}

func (b *Builder) checkIndexLocked(index int) error {
	if index < 0 || index >= len(b.configs) {
		return apperrors.IndexError("configuration", index, len(b.configs))
	}
	return nil
}

func (b *Builder) kindIndexLocked(index int, kind domain.OperationKind) (int, error) {
	if err := b.checkIndexLocked(index); err != nil {
		return 0, err
	}
	for k, existing := range b.kinds[index] {
		if existing == kind {
			return k, nil
		}
	}
	return 0, fmt.Errorf("configuration %d has no %s operation: %w", index, kind, apperrors.ErrNotFound)
}

func (b *Builder) checkKindIndexLocked(index, kindIndex int) error {
	if err := b.checkIndexLocked(index); err != nil {
		return err
	}
	if kindIndex < 0 || kindIndex >= len(b.kinds[index]) {
		return apperrors.IndexError("operation", kindIndex, len(b.kinds[index]))
	}
	return nil
}

// commitLocked advances the revision and builds the snapshot for it
func (b *Builder) commitLocked() (uint64, Snapshot) {
	b.revision++
	return b.revision, b.snapshotLocked()
}

func (b *Builder) snapshotLocked() Snapshot {
	views := make([]ConfigurationView, len(b.configs))
	for i, cfg := range b.configs {
		c := cfg.Clone()
		kinds := append([]domain.OperationKind{}, b.kinds[i]...)
		views[i] = ConfigurationView{
			Index:      i,
			Column:     c.Column,
			Operations: c.Operations,
			Kinds:      kinds,
			KindList:   joinKinds(kinds),
			Available:  operations.Available(kinds),
		}
	}

	snap := Snapshot{
		Configurations: views,
		Loading:        b.submitting,
		LastSubmitted:  b.lastSubmitted,
	}
	if b.lastResult != nil {
		r := *b.lastResult
		snap.LastResult = &r
	}
	if len(b.lastErrors) > 0 {
		snap.Errors = append([]apperrors.ValidationError{}, b.lastErrors...)
	}
	return snap
}

func joinKinds(kinds []domain.OperationKind) string {
	parts := make([]string, len(kinds))
	for i, k := range kinds {
		parts[i] = string(k)
	}
	return strings.Join(parts, ",")
}

func cloneConfigs(in []domain.Configuration) []domain.Configuration {
	out := make([]domain.Configuration, len(in))
	for i, c := range in {
		out[i] = c.Clone()
	}
	return out
}
