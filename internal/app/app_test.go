package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pfrederiksen/notice-watch/internal/metrics"
	"github.com/pfrederiksen/notice-watch/internal/notice"
	"github.com/pfrederiksen/notice-watch/internal/notifier"
	"github.com/pfrederiksen/notice-watch/internal/storage"
)

var (
	board = notice.NewBoard("https://board.example.ac.kr/nt1")
	clock = time.Date(2026, 3, 2, 0, 30, 0, 0, time.UTC)
)

// notices builds notices for the given ids in board order.
func notices(ids ...int) []notice.Notice {
	out := make([]notice.Notice, 0, len(ids))
	for _, id := range ids {
		s := fmt.Sprint(id)
		out = append(out, notice.New(board, s, "공지 "+s, "", ""))
	}
	return out
}

type stubFetcher struct {
	notices []notice.Notice
	err     error
	pages   int
}

func (f *stubFetcher) FetchNotices(_ context.Context, pages int) ([]notice.Notice, error) {
	f.pages = pages
	return f.notices, f.err
}

type recordingNotifier struct {
	calls [][]notice.Notice
	err   error
}

func (n *recordingNotifier) Notify(_ context.Context, ns []notice.Notice, _ time.Time) error {
	n.calls = append(n.calls, ns)
	return n.err
}

type failingStore struct {
	loadErr error
	saveErr error
}

func (s *failingStore) Load() (*storage.State, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return storage.NewState(), nil
}

func (s *failingStore) Save(*storage.State) error {
	return s.saveErr
}

// newStore returns a state store seeded with state, or empty when nil.
func newStore(t *testing.T, state *storage.State) *storage.Storage {
	t.Helper()
	store, err := storage.New(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)
	if state != nil {
		require.NoError(t, store.Save(state))
	}
	return store
}

func seeded(ids ...int) *storage.State {
	seen := make([]string, 0, len(ids))
	for _, id := range ids {
		seen = append(seen, fmt.Sprint(id))
	}
	return &storage.State{Initialized: true, SeenIDs: seen}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func newRunner(f Fetcher, s StateStore, n notifier.Notifier, opts ...Option) *Runner {
	opts = append([]Option{WithClock(func() time.Time { return clock })}, opts...)
	return NewRunner(f, s, n, 3, notice.DefaultMaxSeenIDs, opts...)
}

func TestRun_BootstrapRecordsWithoutNotifying(t *testing.T) {
	store := newStore(t, nil)
	n := &recordingNotifier{}
	f := &stubFetcher{notices: notices(5, 4, 3, 2, 1)}

	result, err := newRunner(f, store, n).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, notice.ModeBootstrap, result.Mode)
	assert.Equal(t, 5, result.Fetched)
	assert.Empty(t, result.NewNotices)
	assert.False(t, result.Notified)
	assert.True(t, result.StateSaved)
	assert.Empty(t, n.calls)
	assert.Equal(t, 3, f.pages)

	state, err := store.Load()
	require.NoError(t, err)
	assert.True(t, state.Initialized)
	assert.Equal(t, []string{"5", "4", "3", "2", "1"}, state.SeenIDs)
	require.NotNil(t, state.UpdatedAt)
	assert.Equal(t, "2026-03-02T00:30:00Z", *state.UpdatedAt)
}

func TestRun_NothingNew(t *testing.T) {
	store := newStore(t, seeded(5, 4, 3, 2, 1))
	n := &recordingNotifier{}

	result, err := newRunner(&stubFetcher{notices: notices(5, 4, 3, 2, 1)}, store, n).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, notice.ModeUnchanged, result.Mode)
	assert.Empty(t, n.calls)
	assert.True(t, result.StateSaved)

	state, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"5", "4", "3", "2", "1"}, state.SeenIDs)
}

func TestRun_NotifiesNewNoticesInFetchOrder(t *testing.T) {
	store := newStore(t, seeded(5, 4, 3, 2, 1))
	n := &recordingNotifier{}
	f := &stubFetcher{notices: notices(7, 6, 5, 4, 3, 2, 1)}
	runner := newRunner(f, store, n)

	result, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, notice.ModeNotify, result.Mode)
	assert.True(t, result.Notified)
	require.Len(t, n.calls, 1)
	assert.Equal(t, []string{"7", "6"}, notice.IDs(n.calls[0]))
	assert.Equal(t, 7, result.SeenIDs)

	state, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"7", "6", "5", "4", "3", "2", "1"}, state.SeenIDs)

	// A second run over the same page reports nothing.
	result, err = runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, notice.ModeUnchanged, result.Mode)
	assert.Len(t, n.calls, 1)
}

func TestRun_NoNoticesIsFatal(t *testing.T) {
	store := newStore(t, seeded(3, 2, 1))
	before := readFile(t, store.Path())
	n := &recordingNotifier{}

	result, err := newRunner(&stubFetcher{notices: []notice.Notice{}}, store, n).Run(context.Background())

	require.ErrorIs(t, err, ErrNoNotices)
	assert.False(t, result.StateSaved)
	assert.Empty(t, n.calls)
	assert.Equal(t, before, readFile(t, store.Path()))
}

func TestRun_DeliveryFailureKeepsState(t *testing.T) {
	store := newStore(t, seeded(5, 4, 3, 2, 1))
	before := readFile(t, store.Path())
	n := &recordingNotifier{err: fmt.Errorf("%w: 535 rejected", notifier.ErrAuthExhausted)}

	result, err := newRunner(&stubFetcher{notices: notices(7, 6, 5, 4, 3, 2, 1)}, store, n).Run(context.Background())

	require.ErrorIs(t, err, notifier.ErrAuthExhausted)
	assert.Len(t, n.calls, 1)
	assert.False(t, result.Notified)
	assert.False(t, result.StateSaved)
	assert.Equal(t, before, readFile(t, store.Path()))

	// The same notices are offered again once delivery works.
	n.err = nil
	_, err = newRunner(&stubFetcher{notices: notices(7, 6, 5, 4, 3, 2, 1)}, store, n).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, n.calls, 2)
	assert.Equal(t, []string{"7", "6"}, notice.IDs(n.calls[1]))
}

func TestRun_FetchErrorSavesNothing(t *testing.T) {
	store := newStore(t, nil)
	fetchErr := errors.New("connection reset")

	_, err := newRunner(&stubFetcher{err: fetchErr}, store, &recordingNotifier{}).Run(context.Background())

	require.ErrorIs(t, err, fetchErr)
	_, statErr := os.Stat(store.Path())
	assert.True(t, os.IsNotExist(statErr), "state file should not be created")
}

func TestRun_StoreErrors(t *testing.T) {
	loadErr := errors.New("permission denied")
	saveErr := errors.New("disk full")

	tests := []struct {
		name  string
		store *failingStore
		want  error
	}{
		{"load", &failingStore{loadErr: loadErr}, loadErr},
		{"save", &failingStore{saveErr: saveErr}, saveErr},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := newRunner(&stubFetcher{notices: notices(1)}, tt.store, &recordingNotifier{}).Run(context.Background())
			require.ErrorIs(t, err, tt.want)
			assert.False(t, result.StateSaved)
		})
	}
}

func TestRun_Metrics(t *testing.T) {
	m := metrics.New()
	store := newStore(t, seeded(2, 1))

	runner := newRunner(&stubFetcher{notices: notices(4, 3, 2, 1)}, store, &recordingNotifier{}, WithMetrics(m))
	_, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4.0, testutil.ToFloat64(m.NoticesParsed))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.NewNotices))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.SeenIDs))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LastRunSuccess))

	_, err = newRunner(&stubFetcher{notices: nil}, store, &recordingNotifier{}, WithMetrics(m)).Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.LastRunSuccess))
}

func TestRun_ResultHasRunID(t *testing.T) {
	store := newStore(t, nil)
	runner := newRunner(&stubFetcher{notices: notices(1)}, store, &recordingNotifier{})

	first, err := runner.Run(context.Background())
	require.NoError(t, err)
	second, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, first.RunID)
	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Equal(t, clock, first.CheckedAt)
}

func TestRun_DryRunLeavesStateAlone(t *testing.T) {
	store := newStore(t, seeded(2, 1))
	before := readFile(t, store.Path())
	n := &recordingNotifier{}

	result, err := newRunner(&stubFetcher{notices: notices(3, 2, 1)}, store, n, WithDryRun()).Run(context.Background())
	require.NoError(t, err)

	assert.True(t, result.DryRun)
	assert.True(t, result.Notified)
	assert.False(t, result.StateSaved)
	assert.Equal(t, 3, result.SeenIDs)
	assert.Len(t, n.calls, 1)
	assert.Equal(t, before, readFile(t, store.Path()))
}
