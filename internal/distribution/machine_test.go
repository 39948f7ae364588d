package distribution

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "distconsole/internal/errors"
	"distconsole/internal/shared/testutil"
	"distconsole/pkg/contracts/domain"
)

type mockGetter struct {
	mock.Mock
}

func (m *mockGetter) Get(ctx context.Context, id string) (*domain.DistributionItem, error) {
	args := m.Called(ctx, id)
	if item := args.Get(0); item != nil {
		return item.(*domain.DistributionItem), args.Error(1)
	}
	return nil, args.Error(1)
}

type fakeHistory struct {
	mu      sync.Mutex
	entries []domain.HistoryEntry
	err     error
	loads   int
}

func (f *fakeHistory) Load(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	return f.err
}

func (f *fakeHistory) Latest() (domain.HistoryEntry, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.entries) == 0 {
		return domain.HistoryEntry{}, false
	}
	return f.entries[len(f.entries)-1], true
}

type recordingNotifier struct {
	mu    sync.Mutex
	items []domain.Notification
}

func (n *recordingNotifier) Notify(_ context.Context, item domain.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.items = append(n.items, item)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.items)
}

func successItem(id string) *domain.DistributionItem {
	return &domain.DistributionItem{
		ConfigID:  id,
		CreatedAt: time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC),
		Status:    "success",
		Data: &domain.DistributionData{Result: &domain.DistributionResult{
			DistributedBills:       "https://files.test/" + id + "/bills.png",
			ExportDistributedBills: "https://files.test/" + id + "/report.xlsx",
		}},
	}
}

func newMachine(t *testing.T, getter Getter, history HistorySource) (*Machine, *recordingNotifier, *testutil.RecordingHandler) {
	t.Helper()
	logger, logs := testutil.NewTestLogger(t)
	notifier := &recordingNotifier{}
	return NewMachine(getter, history, notifier, nil, logger), notifier, logs
}

func TestMachine_InitialState(t *testing.T) {
	m, _, _ := newMachine(t, new(mockGetter), &fakeHistory{})
	assert.Equal(t, StatePending, m.State())
	assert.Nil(t, m.Item())
	assert.Equal(t, ViewPending, m.View().Status)
	assert.Equal(t, "Latest distribution", m.Snapshot().Title)
}

func TestMachine_FetchByID(t *testing.T) {
	getter := new(mockGetter)
	getter.On("Get", mock.Anything, "42").Return(successItem("42"), nil).Once()
	history := &fakeHistory{}
	m, notifier, _ := newMachine(t, getter, history)

	require.NoError(t, m.Fetch(context.Background(), "42"))

	assert.Equal(t, StateSuccessItem, m.State())
	assert.Equal(t, "42", m.Item().ConfigID)
	assert.Equal(t, ViewReady, m.View().Status)
	assert.Equal(t, 0, history.loads, "explicit id never consults history")
	assert.Equal(t, 0, notifier.count())

	snap := m.Snapshot()
	assert.Equal(t, "Distribution", snap.Title)
	assert.Equal(t, "Created 01.06.2024 09:30", snap.Description)
	assert.Equal(t, "https://files.test/42/report.xlsx", snap.Artifacts().ExportDistributedBills)
}

func TestMachine_LookupLeavesStateAlone(t *testing.T) {
	getter := new(mockGetter)
	getter.On("Get", mock.Anything, "42").Return(successItem("42"), nil).Once()
	getter.On("Get", mock.Anything, "43").Return(&domain.DistributionItem{ConfigID: "43", Status: "pending"}, nil).Once()
	getter.On("Get", mock.Anything, "404").Return(nil,
		&apperrors.UpstreamError{Method: "GET", Path: "/distributions/404", StatusCode: 404}).Once()
	m, notifier, _ := newMachine(t, getter, &fakeHistory{})
	require.NoError(t, m.Fetch(context.Background(), "42"))
	var published int
	m.Subscribe(func(Snapshot) { published++ })

	snap, err := m.Lookup(context.Background(), "43")
	require.NoError(t, err)
	assert.Equal(t, "43", snap.Item.ConfigID)
	assert.Equal(t, ViewPending, snap.View.Status)
	assert.Equal(t, "Distribution", snap.Title)

	_, err = m.Lookup(context.Background(), "404")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))

	_, err = m.Lookup(context.Background(), "")
	var lookup *apperrors.LookupError
	assert.True(t, errors.As(err, &lookup))

	assert.Equal(t, StateSuccessItem, m.State())
	assert.Equal(t, "42", m.Item().ConfigID)
	assert.Equal(t, "42", m.Snapshot().Target.ID)
	assert.Equal(t, 0, published)
	assert.Equal(t, 0, notifier.count())
}

func TestMachine_FetchByIDNotFound(t *testing.T) {
	getter := new(mockGetter)
	getter.On("Get", mock.Anything, "404").Return(nil,
		&apperrors.UpstreamError{Method: "GET", Path: "/distributions/404", StatusCode: 404}).Once()
	m, notifier, logs := newMachine(t, getter, &fakeHistory{})

	err := m.Fetch(context.Background(), "404")

	var lookup *apperrors.LookupError
	require.True(t, errors.As(err, &lookup))
	assert.Equal(t, "404", lookup.ID)
	assert.False(t, lookup.Latest)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	assert.Equal(t, StateFailure, m.State())
	assert.Equal(t, ViewFailure, m.View().Status)
	assert.Equal(t, 1, notifier.count())
	testutil.AssertLogged(t, logs, slog.LevelError, "distribution lookup failed")
}

func TestMachine_FetchTransportFailureIsNotNotFound(t *testing.T) {
	getter := new(mockGetter)
	getter.On("Get", mock.Anything, "1").Return(nil, errors.New("dial tcp: connection refused")).Once()
	m, _, _ := newMachine(t, getter, &fakeHistory{})

	err := m.Fetch(context.Background(), "1")
	require.Error(t, err)
	assert.False(t, errors.Is(err, apperrors.ErrNotFound))

	var lookup *apperrors.LookupError
	require.True(t, errors.As(err, &lookup))
	assert.False(t, lookup.NotFound())
}

func TestMachine_FetchLatest(t *testing.T) {
	getter := new(mockGetter)
	getter.On("Get", mock.Anything, "c").Return(successItem("c"), nil).Once()
	history := &fakeHistory{entries: []domain.HistoryEntry{{ConfigID: "a"}, {ConfigID: "b"}, {ConfigID: "c"}}}
	m, _, _ := newMachine(t, getter, history)

	require.NoError(t, m.Fetch(context.Background(), ""))

	assert.Equal(t, StateSuccessLatest, m.State())
	assert.Equal(t, 1, history.loads)
	assert.Equal(t, "Latest distribution c", m.Snapshot().Title)
	getter.AssertExpectations(t)
}

func TestMachine_FetchLatestEmptyHistory(t *testing.T) {
	getter := new(mockGetter)
	m, notifier, _ := newMachine(t, getter, &fakeHistory{})

	require.NoError(t, m.Fetch(context.Background(), ""))

	assert.Equal(t, StatePending, m.State())
	assert.True(t, m.Snapshot().Empty)
	assert.Nil(t, m.Err())
	assert.Equal(t, 0, notifier.count(), "empty history is not a failure")
	getter.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
}

func TestMachine_FetchLatestHistoryFailure(t *testing.T) {
	getter := new(mockGetter)
	history := &fakeHistory{err: errors.New("history unavailable")}
	m, notifier, _ := newMachine(t, getter, history)

	err := m.Fetch(context.Background(), "")

	var lookup *apperrors.LookupError
	require.True(t, errors.As(err, &lookup))
	assert.True(t, lookup.Latest)
	assert.Contains(t, err.Error(), "history unavailable")
	assert.Equal(t, StateFailure, m.State())
	assert.Equal(t, 1, notifier.count())
}

func TestMachine_RefreshRepeatsTarget(t *testing.T) {
	getter := new(mockGetter)
	getter.On("Get", mock.Anything, "42").Return(nil, errors.New("timeout")).Once()
	getter.On("Get", mock.Anything, "42").Return(successItem("42"), nil).Once()
	m, _, _ := newMachine(t, getter, &fakeHistory{})

	require.Error(t, m.Fetch(context.Background(), "42"))
	assert.Equal(t, StateFailure, m.State())

	require.NoError(t, m.Refresh(context.Background()), "refresh works from Failure")
	assert.Equal(t, StateSuccessItem, m.State())
	getter.AssertExpectations(t)
}

func TestMachine_RefreshBeforeFetchResolvesLatest(t *testing.T) {
	getter := new(mockGetter)
	getter.On("Get", mock.Anything, "z").Return(successItem("z"), nil).Once()
	history := &fakeHistory{entries: []domain.HistoryEntry{{ConfigID: "z"}}}
	m, _, _ := newMachine(t, getter, history)

	require.NoError(t, m.Refresh(context.Background()))
	assert.Equal(t, StateSuccessLatest, m.State())
}

func TestMachine_ItemReplacedWholesale(t *testing.T) {
	getter := new(mockGetter)
	getter.On("Get", mock.Anything, "1").Return(successItem("1"), nil).Once()
	getter.On("Get", mock.Anything, "1").Return(&domain.DistributionItem{ConfigID: "1", Status: "success"}, nil).Once()
	m, _, _ := newMachine(t, getter, &fakeHistory{})

	require.NoError(t, m.Fetch(context.Background(), "1"))
	require.NotNil(t, m.Item().Artifacts())

	require.NoError(t, m.Refresh(context.Background()))
	assert.Nil(t, m.Item().Artifacts(), "no field survives from the previous item")
}

func TestMachine_DisagreementLogged(t *testing.T) {
	getter := new(mockGetter)
	pending := successItem("5")
	pending.Status = "Pending"
	getter.On("Get", mock.Anything, "5").Return(pending, nil).Once()
	m, _, logs := newMachine(t, getter, &fakeHistory{})

	require.NoError(t, m.Fetch(context.Background(), "5"))

	v := m.View()
	assert.Equal(t, StateSuccessItem, m.State())
	assert.Equal(t, ViewPending, v.Status)
	assert.True(t, v.Disagreement)

	rec := testutil.AssertLogged(t, logs, slog.LevelWarn, "disagree")
	assert.Equal(t, "distribution", rec.Attrs["component"])
	assert.Equal(t, "pending", rec.Attrs["server"])
}

func TestMachine_LoadingFlag(t *testing.T) {
	getter := new(mockGetter)
	getter.On("Get", mock.Anything, "1").Return(successItem("1"), nil)
	m, _, _ := newMachine(t, getter, &fakeHistory{})

	var views []ViewStatus
	m.Subscribe(func(s Snapshot) { views = append(views, s.View.Status) })

	require.NoError(t, m.Fetch(context.Background(), "1"))
	assert.Equal(t, []ViewStatus{ViewLoading, ViewReady}, views)
	assert.False(t, m.Loading())
}

// gatedGetter blocks each Get until the test releases it
type gatedGetter struct {
	mu    sync.Mutex
	gates map[string]chan *domain.DistributionItem
	seen  chan string
}

func newGatedGetter(ids ...string) *gatedGetter {
	g := &gatedGetter{gates: make(map[string]chan *domain.DistributionItem), seen: make(chan string, len(ids))}
	for _, id := range ids {
		g.gates[id] = make(chan *domain.DistributionItem, 1)
	}
	return g
}

func (g *gatedGetter) Get(ctx context.Context, id string) (*domain.DistributionItem, error) {
	g.mu.Lock()
	gate := g.gates[id]
	g.mu.Unlock()
	g.seen <- id
	return <-gate, nil
}

func TestMachine_StaleResponseDiscarded(t *testing.T) {
	getter := newGatedGetter("old", "new")
	m, _, logs := newMachine(t, getter, &fakeHistory{})

	oldDone := make(chan error, 1)
	go func() { oldDone <- m.Fetch(context.Background(), "old") }()
	require.Equal(t, "old", <-getter.seen)

	newDone := make(chan error, 1)
	go func() { newDone <- m.Fetch(context.Background(), "new") }()
	require.Equal(t, "new", <-getter.seen)

	// the newer fetch completes first
	getter.gates["new"] <- successItem("new")
	require.NoError(t, <-newDone)
	assert.Equal(t, "new", m.Item().ConfigID)

	// the older one arrives late and must not overwrite
	getter.gates["old"] <- successItem("old")
	require.NoError(t, <-oldDone)

	assert.Equal(t, "new", m.Item().ConfigID)
	assert.Equal(t, "new", m.Snapshot().Target.ID)
	assert.False(t, m.Loading())
	testutil.AssertLogged(t, logs, slog.LevelDebug, "stale fetch")
}

func TestMachine_StaleResponseKeepsLoadingWhileNewerInFlight(t *testing.T) {
	getter := newGatedGetter("old", "new")
	m, _, _ := newMachine(t, getter, &fakeHistory{})

	oldDone := make(chan error, 1)
	go func() { oldDone <- m.Fetch(context.Background(), "old") }()
	<-getter.seen
	newDone := make(chan error, 1)
	go func() { newDone <- m.Fetch(context.Background(), "new") }()
	<-getter.seen

	getter.gates["old"] <- successItem("old")
	require.NoError(t, <-oldDone)
	assert.True(t, m.Loading(), "the newer fetch is still in flight")
	assert.Nil(t, m.Item())

	getter.gates["new"] <- successItem("new")
	require.NoError(t, <-newDone)
	assert.Equal(t, "new", m.Item().ConfigID)
}
