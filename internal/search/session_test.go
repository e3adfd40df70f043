package search

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/neekit95/gh-search/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession(t *testing.T, f Fetcher, opts Options) (*Session, *fakeClock) {
	t.Helper()
	clock := &fakeClock{}
	s := NewSession(context.Background(), NewEngine(opts), f,
		WithQuietWindow(testQuiet),
		withAfterFunc(clock.AfterFunc),
	)
	t.Cleanup(s.Close)
	return s, clock
}

// waitFor polls the session until cond holds for its snapshot.
func waitFor(t *testing.T, s *Session, cond func(Snapshot) bool) Snapshot {
	t.Helper()
	require.Eventually(t, func() bool {
		return cond(s.Snapshot())
	}, 2*time.Second, 5*time.Millisecond)
	return s.Snapshot()
}

func settled(snap Snapshot) bool {
	return snap.Phase != PhaseLoading && !snap.FetchingMore
}

func TestSession_DebouncedTypingFetchesOnlyLastValue(t *testing.T) {
	f := newDatasetFetcher(makeRepos(1, 12))
	s, clock := newTestSession(t, f, Options{RemotePageSize: 30})

	for _, text := range []string{"t", "to", "tod", "todo"} {
		s.Submit(text)
		clock.Advance(testQuiet / 3)
	}
	assert.Empty(t, f.Calls(), "no fetch inside the quiet window")

	clock.Advance(testQuiet)
	snap := waitFor(t, s, func(s Snapshot) bool { return s.Phase == PhaseSucceeded })

	assert.Equal(t, "todo", snap.Query)
	assert.Equal(t, []int64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, rowIDs(snap.Rows))
	for _, call := range f.Calls() {
		assert.Equal(t, "todo", call.Query)
	}
}

func TestSession_WhitespaceClearsImmediately(t *testing.T) {
	f := newDatasetFetcher(makeRepos(1, 5))
	s, _ := newTestSession(t, f, Options{})

	s.Run("go")
	waitFor(t, s, settled)

	s.Submit("   ")
	snap := s.Snapshot()
	assert.Equal(t, PhaseIdle, snap.Phase)
	assert.Empty(t, snap.Rows)
	assert.Empty(t, snap.Query)
}

func TestSession_SupersededFetchIsCancelledAndDropped(t *testing.T) {
	slowStarted := make(chan struct{})
	var slowCancelled atomic.Bool
	fast := newDatasetFetcher(makeRepos(100, 3))

	f := FetcherFunc(func(ctx context.Context, query string, pageSize, page int) (domain.SearchPage, error) {
		if query == "slow" {
			close(slowStarted)
			<-ctx.Done()
			slowCancelled.Store(true)
			// Return data anyway; the session must not apply it.
			return domain.SearchPage{Items: makeRepos(1, 10), TotalCount: 10}, nil
		}
		return fast.FetchPage(ctx, query, pageSize, page)
	})
	s, _ := newTestSession(t, f, Options{})

	s.Run("slow")
	<-slowStarted
	s.Run("fast")

	snap := waitFor(t, s, func(s Snapshot) bool { return s.Phase == PhaseSucceeded })
	assert.Equal(t, "fast", snap.Query)
	assert.Equal(t, []int64{100, 101, 102}, rowIDs(snap.Rows))

	assert.Eventually(t, slowCancelled.Load, time.Second, 5*time.Millisecond)
	assert.Equal(t, []int64{100, 101, 102}, rowIDs(s.Snapshot().Rows))
}

func TestSession_ResubmitAfterFailure(t *testing.T) {
	var calls atomic.Int32
	data := newDatasetFetcher(makeRepos(1, 4))
	f := FetcherFunc(func(ctx context.Context, query string, pageSize, page int) (domain.SearchPage, error) {
		if calls.Add(1) == 1 {
			return domain.SearchPage{}, errors.New("connection reset")
		}
		return data.FetchPage(ctx, query, pageSize, page)
	})
	s, clock := newTestSession(t, f, Options{})

	s.Submit("go")
	clock.Advance(testQuiet)
	snap := waitFor(t, s, func(s Snapshot) bool { return s.Phase == PhaseFailed })
	assert.Equal(t, "connection reset", snap.ErrorMessage)

	// The same text must be accepted again after a failure
	s.Submit("go")
	clock.Advance(testQuiet)
	snap = waitFor(t, s, func(s Snapshot) bool { return s.Phase == PhaseSucceeded })
	assert.Empty(t, snap.ErrorMessage)
	assert.Len(t, snap.Rows, 4)
}

func TestSession_Retry(t *testing.T) {
	var calls atomic.Int32
	data := newDatasetFetcher(makeRepos(1, 4))
	f := FetcherFunc(func(ctx context.Context, query string, pageSize, page int) (domain.SearchPage, error) {
		if calls.Add(1) == 1 {
			return domain.SearchPage{}, errors.New("timeout")
		}
		return data.FetchPage(ctx, query, pageSize, page)
	})
	s, _ := newTestSession(t, f, Options{})

	s.Run("go")
	waitFor(t, s, func(s Snapshot) bool { return s.Phase == PhaseFailed })

	require.NoError(t, s.Retry())
	snap := waitFor(t, s, func(s Snapshot) bool { return s.Phase == PhaseSucceeded })
	assert.Len(t, snap.Rows, 4)
}

func TestSession_PagingFetchesAhead(t *testing.T) {
	f := newDatasetFetcher(makeRepos(1, 60))
	s, _ := newTestSession(t, f, Options{RemotePageSize: 20})

	s.Run("go")
	waitFor(t, s, settled)

	require.NoError(t, s.SetPageSize(30))
	require.NoError(t, s.SetPage(2))
	snap := waitFor(t, s, func(s Snapshot) bool { return settled(s) && len(s.Rows) == 30 })

	assert.Equal(t, 31, snap.RangeStart)
	assert.Equal(t, 60, snap.RangeEnd)
	assert.False(t, snap.HasNext)
}

func TestSession_SortAndSelect(t *testing.T) {
	f := newDatasetFetcher(makeRepos(1, 5))
	s, _ := newTestSession(t, f, Options{})

	s.Run("go")
	waitFor(t, s, settled)

	require.NoError(t, s.SetSort(SortStars, Ascending))
	snap := s.Snapshot()
	assert.Equal(t, []int64{5, 4, 3, 2, 1}, rowIDs(snap.Rows))

	require.NoError(t, s.ToggleSelect(3))
	snap = s.Snapshot()
	require.NotNil(t, snap.SelectedItem)
	assert.Equal(t, int64(3), snap.SelectedItem.ID)

	assert.ErrorIs(t, s.ToggleSelect(99), ErrNotVisible)
	assert.ErrorIs(t, s.SetPageSize(25), ErrInvalidPageSize)
}

func TestSession_UpdatesAndClose(t *testing.T) {
	f := newDatasetFetcher(makeRepos(1, 3))
	clock := &fakeClock{}
	s := NewSession(context.Background(), NewEngine(Options{}), f, withAfterFunc(clock.AfterFunc))

	s.Run("go")

	var last Snapshot
	require.Eventually(t, func() bool {
		select {
		case snap := <-s.Updates():
			last = snap
		default:
		}
		return last.Phase == PhaseSucceeded
	}, 2*time.Second, 5*time.Millisecond)
	assert.Len(t, last.Rows, 3)

	s.Close()
	s.Close()

	_, open := <-s.Updates()
	for open {
		_, open = <-s.Updates()
	}
	assert.ErrorIs(t, s.SetPage(1), ErrSessionClosed)
}
