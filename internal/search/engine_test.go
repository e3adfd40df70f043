package search

import (
	"context"
	"errors"
	"testing"

	"github.com/neekit95/gh-search/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runQuery starts query on e and drains all follow-up fetches.
func runQuery(t *testing.T, e *Engine, f Fetcher, query string) Snapshot {
	t.Helper()
	require.NoError(t, Drain(context.Background(), e, f, e.Run(query)))
	return e.Snapshot()
}

// settle returns a function that drains the request produced by an engine
// operation, e.g. settle(t, e, f)(e.SetPage(2)).
func settle(t *testing.T, e *Engine, f Fetcher) func(*Request, error) Snapshot {
	return func(req *Request, err error) Snapshot {
		t.Helper()
		require.NoError(t, err)
		require.NoError(t, Drain(context.Background(), e, f, req))
		return e.Snapshot()
	}
}

func TestEngine_NewIsIdle(t *testing.T) {
	e := NewEngine(Options{})
	snap := e.Snapshot()

	assert.Equal(t, PhaseIdle, snap.Phase)
	assert.Empty(t, snap.Rows)
	assert.Equal(t, 1, snap.Page)
	assert.Equal(t, DefaultPageSize, snap.PageSize)
	assert.False(t, snap.HasNext)
	assert.False(t, snap.HasPrev)
}

func TestEngine_ScenarioTodo(t *testing.T) {
	f := newDatasetFetcher(makeRepos(1, 10))
	e := NewEngine(Options{})

	req := e.Run("todo")
	require.NotNil(t, req)
	assert.Equal(t, 1, req.Page)
	assert.Equal(t, DefaultRemotePageSize, req.PageSize)
	assert.Equal(t, "todo", req.Query)
	assert.Equal(t, PhaseLoading, e.Phase())

	require.NoError(t, Drain(context.Background(), e, f, req))
	snap := e.Snapshot()

	assert.Equal(t, PhaseSucceeded, snap.Phase)
	assert.Len(t, snap.Rows, 10)
	assert.Equal(t, 1, snap.RangeStart)
	assert.Equal(t, 10, snap.RangeEnd)
	assert.Equal(t, 10, snap.TotalKnown)
	assert.False(t, snap.HasNext, "short first page exhausts the remote")
	assert.Len(t, f.Calls(), 1)
}

func TestEngine_EmptyFirstPage(t *testing.T) {
	f := newDatasetFetcher(nil)
	e := NewEngine(Options{})

	snap := runQuery(t, e, f, "nothing-matches-this")

	assert.Equal(t, PhaseEmpty, snap.Phase)
	assert.Empty(t, snap.Rows)
	assert.Equal(t, 0, snap.RangeStart)
	assert.Equal(t, 0, snap.RangeEnd)
	assert.False(t, snap.HasNext)
	assert.Empty(t, snap.ErrorMessage)
}

func TestEngine_FailureOnSecondPageKeepsBuffer(t *testing.T) {
	f := newDatasetFetcher(makeRepos(1, 120))
	f.failOn[2] = errors.New("API rate limit exceeded")
	e := NewEngine(Options{RemotePageSize: 50})

	snap := runQuery(t, e, f, "todo")
	require.Equal(t, PhaseSucceeded, snap.Phase)
	require.Equal(t, 50, snap.TotalKnown)

	// Page 6 of 10 needs items 51..60, which forces remote page 2
	snap = settle(t, e, f)(e.SetPage(6))

	assert.Equal(t, PhaseFailed, snap.Phase)
	assert.Equal(t, "API rate limit exceeded", snap.ErrorMessage)
	assert.Equal(t, 50, snap.TotalKnown, "buffer survives the failure")
	assert.Equal(t, 5, snap.Page, "page clamps to the buffered data")
	assert.Equal(t, []int64{41, 42, 43, 44, 45, 46, 47, 48, 49, 50}, rowIDs(snap.Rows))
	assert.False(t, snap.HasNext, "a failed query will not fetch further pages")
	assert.ErrorContains(t, e.Err(), "rate limit")

	t.Run("failure is terminal until retry", func(t *testing.T) {
		req, err := e.SetPage(7)
		require.NoError(t, err)
		assert.Nil(t, req)
		assert.Equal(t, 5, e.View().Page)
	})

	t.Run("retry performs a full reset", func(t *testing.T) {
		delete(f.failOn, 2)
		req := e.Retry()
		require.NotNil(t, req)
		assert.Equal(t, 1, req.Page)
		assert.Equal(t, PhaseLoading, e.Phase())
		assert.Equal(t, 0, e.Snapshot().TotalKnown)
		assert.Empty(t, e.Snapshot().ErrorMessage)
	})
}

func TestEngine_PageSizeChangeClampsPage(t *testing.T) {
	f := newDatasetFetcher(makeRepos(1, 45))
	e := NewEngine(Options{})
	runQuery(t, e, f, "todo")

	snap := settle(t, e, f)(e.SetPage(5))
	require.Equal(t, 5, snap.Page)
	assert.Equal(t, 41, snap.RangeStart)
	assert.Equal(t, 45, snap.RangeEnd)

	snap = settle(t, e, f)(e.SetPageSize(30))
	assert.Equal(t, 2, snap.Page)
	assert.Equal(t, 30, snap.PageSize)
	assert.Equal(t, 31, snap.RangeStart)
	assert.Equal(t, 45, snap.RangeEnd)
	assert.Equal(t, 2, snap.PageCount)
}

func TestEngine_FetchAheadIsSequential(t *testing.T) {
	f := newDatasetFetcher(makeRepos(1, 100))
	e := NewEngine(Options{RemotePageSize: 20})

	runQuery(t, e, f, "go")
	assert.Len(t, f.Calls(), 1, "first remote page covers the first window")

	// 30 rows per page need 30 buffered items
	settle(t, e, f)(e.SetPageSize(30))
	assert.Len(t, f.Calls(), 2)

	// Page 3 needs 90 items: remote pages 3, 4 and 5, one at a time
	req, err := e.SetPage(3)
	require.NoError(t, err)
	require.NotNil(t, req)
	assert.Equal(t, 3, req.Page)

	// While a page is in flight no second request is issued
	again, err := e.SetPage(3)
	require.NoError(t, err)
	assert.Nil(t, again)
	assert.True(t, e.Snapshot().FetchingMore)
	assert.Equal(t, PhaseSucceeded, e.Snapshot().Phase)

	require.NoError(t, Drain(context.Background(), e, f, req))
	pages := make([]int, 0)
	for _, call := range f.Calls() {
		pages = append(pages, call.Page)
		assert.Equal(t, 20, call.PageSize, "remote batch size is independent of client page size")
	}
	assert.Equal(t, []int{1, 2, 3, 4, 5}, pages)

	snap := e.Snapshot()
	assert.Equal(t, 3, snap.Page)
	assert.Equal(t, 61, snap.RangeStart)
	assert.Equal(t, 90, snap.RangeEnd)
	assert.False(t, snap.FetchingMore)
}

func TestEngine_StaleCompletionIsDropped(t *testing.T) {
	e := NewEngine(Options{})

	first := e.Run("first")
	second := e.Run("second")
	require.NotNil(t, first)
	require.NotNil(t, second)
	assert.NotEqual(t, first.Generation, second.Generation)

	next := e.Complete(*first, domain.SearchPage{Items: makeRepos(1, 5)}, nil)
	assert.Nil(t, next)
	assert.Equal(t, 0, e.Snapshot().TotalKnown, "stale page must not be merged")
	assert.Equal(t, PhaseLoading, e.Phase())

	// A stale failure must not fail the new query either
	e.Complete(*first, domain.SearchPage{}, errors.New("boom"))
	assert.Equal(t, PhaseLoading, e.Phase())

	e.Complete(*second, domain.SearchPage{Items: makeRepos(100, 5)}, nil)
	snap := e.Snapshot()
	assert.Equal(t, PhaseSucceeded, snap.Phase)
	assert.Equal(t, "second", snap.Query)
	assert.Equal(t, []int64{100, 101, 102, 103, 104}, rowIDs(snap.Rows))
}

func TestEngine_QueryChangeResetsView(t *testing.T) {
	f := newDatasetFetcher(makeRepos(1, 60))
	e := NewEngine(Options{})
	runQuery(t, e, f, "old")

	settle(t, e, f)(e.SetPage(3))
	require.NoError(t, e.ToggleSelect(21))
	require.NoError(t, e.SetSort(SortStars, Ascending))
	require.NotNil(t, e.Snapshot().SelectedItem)

	req := e.Run("new")
	require.NotNil(t, req)

	view := e.View()
	assert.Equal(t, 1, view.Page)
	assert.Zero(t, view.SelectedID)
	assert.Nil(t, e.Snapshot().SelectedItem)
	assert.Equal(t, SortStars, view.SortKey, "sort survives a query change")
	assert.Equal(t, 0, e.Snapshot().TotalKnown, "buffer is cleared immediately")
}

func TestEngine_EmptyQueryClears(t *testing.T) {
	f := newDatasetFetcher(makeRepos(1, 10))
	e := NewEngine(Options{})
	runQuery(t, e, f, "go")

	req := e.Run("   ")
	assert.Nil(t, req)

	snap := e.Snapshot()
	assert.Equal(t, PhaseIdle, snap.Phase)
	assert.Empty(t, snap.Query)
	assert.Empty(t, snap.Rows)
	assert.Nil(t, e.Retry(), "nothing to retry without a query")
}

func TestEngine_Selection(t *testing.T) {
	f := newDatasetFetcher(makeRepos(1, 30))
	e := NewEngine(Options{})
	runQuery(t, e, f, "go")

	t.Run("toggle selects and deselects", func(t *testing.T) {
		require.NoError(t, e.ToggleSelect(3))
		snap := e.Snapshot()
		require.NotNil(t, snap.SelectedItem)
		assert.Equal(t, int64(3), snap.SelectedItem.ID)
		assert.True(t, snap.Rows[2].Selected)
		assert.False(t, snap.Rows[0].Selected)

		require.NoError(t, e.ToggleSelect(3))
		assert.Nil(t, e.Snapshot().SelectedItem)
	})

	t.Run("selecting another replaces", func(t *testing.T) {
		require.NoError(t, e.ToggleSelect(1))
		require.NoError(t, e.ToggleSelect(2))
		assert.Equal(t, int64(2), e.View().SelectedID)
	})

	t.Run("rows outside the window are rejected", func(t *testing.T) {
		err := e.ToggleSelect(25)
		assert.ErrorIs(t, err, ErrNotVisible)
		assert.Equal(t, int64(2), e.View().SelectedID)
	})

	t.Run("selection survives paging", func(t *testing.T) {
		settle(t, e, f)(e.SetPage(3))
		snap := e.Snapshot()
		require.NotNil(t, snap.SelectedItem)
		assert.Equal(t, int64(2), snap.SelectedItem.ID)
	})
}

func TestEngine_SelectionSurvivesBufferGrowth(t *testing.T) {
	f := newDatasetFetcher(makeRepos(1, 100))
	e := NewEngine(Options{RemotePageSize: 10})
	runQuery(t, e, f, "go")
	require.NoError(t, e.ToggleSelect(4))

	snap := settle(t, e, f)(e.SetPage(5))
	assert.Equal(t, 50, snap.TotalKnown)
	require.NotNil(t, snap.SelectedItem)
	assert.Equal(t, int64(4), snap.SelectedItem.ID)
}

func TestEngine_InvalidInputs(t *testing.T) {
	e := NewEngine(Options{})

	_, err := e.SetPageSize(15)
	assert.ErrorIs(t, err, ErrInvalidPageSize)

	_, err = e.SetPage(0)
	assert.ErrorIs(t, err, ErrInvalidPage)

	assert.ErrorIs(t, e.SetSort("popularity", Ascending), ErrInvalidSort)
	assert.ErrorIs(t, e.SetSort(SortName, "sideways"), ErrInvalidSort)

	view := e.View()
	assert.Equal(t, DefaultPageSize, view.PageSize)
	assert.Equal(t, SortBestMatch, view.SortKey)
}

func TestEngine_Sorting(t *testing.T) {
	repos := []domain.Repository{
		{ID: 1, Name: "beta", Stars: 5},
		{ID: 2, Name: "Alpha", Stars: 50},
		{ID: 3, Name: "gamma", Stars: 5},
	}
	f := newDatasetFetcher(repos)
	e := NewEngine(Options{})
	runQuery(t, e, f, "x")

	require.NoError(t, e.SetSort(SortStars, Descending))
	assert.Equal(t, []int64{2, 1, 3}, rowIDs(e.Snapshot().Rows), "ties keep insertion order")

	require.NoError(t, e.SetSort(SortName, Ascending))
	assert.Equal(t, []int64{2, 1, 3}, rowIDs(e.Snapshot().Rows))

	require.NoError(t, e.SetSort(SortBestMatch, Ascending))
	assert.Equal(t, []int64{1, 2, 3}, rowIDs(e.Snapshot().Rows))
}

func TestEngine_DuplicatesAcrossPages(t *testing.T) {
	page1 := makeRepos(1, 10)
	page2 := append(makeRepos(8, 3), makeRepos(20, 7)...) // IDs 8..10 repeat
	calls := 0
	f := FetcherFunc(func(ctx context.Context, query string, pageSize, page int) (domain.SearchPage, error) {
		calls++
		switch page {
		case 1:
			return domain.SearchPage{Items: page1, TotalCount: 30}, nil
		case 2:
			return domain.SearchPage{Items: page2, TotalCount: 30}, nil
		}
		return domain.SearchPage{TotalCount: 30}, nil
	})
	e := NewEngine(Options{RemotePageSize: 10})
	runQuery(t, e, f, "dup")

	snap := settle(t, e, f)(e.SetPage(2))
	assert.Equal(t, 17, snap.TotalKnown)
	assert.Equal(t, []int64{20, 21, 22, 23, 24, 25, 26}, rowIDs(snap.Rows))
	assert.Equal(t, 3, calls, "short buffer keeps fetching until the remote runs dry")
}

func TestEngine_ExhaustedByTotalCount(t *testing.T) {
	f := newDatasetFetcher(makeRepos(1, 150))
	e := NewEngine(Options{RemotePageSize: 50})
	runQuery(t, e, f, "go")

	snap := settle(t, e, f)(e.SetPage(20))
	assert.Len(t, f.Calls(), 3, "no request past the total-count hint")
	assert.Equal(t, 150, snap.TotalHint)
	assert.Equal(t, 15, snap.Page)
	assert.False(t, snap.HasNext)
}

func TestEngine_ExhaustedByResultCap(t *testing.T) {
	f := newDatasetFetcher(makeRepos(1, 100))
	e := NewEngine(Options{RemotePageSize: 10, MaxResults: 30})
	runQuery(t, e, f, "go")

	snap := settle(t, e, f)(e.SetPage(10))
	assert.Len(t, f.Calls(), 3)
	assert.Equal(t, 30, snap.TotalKnown)
	assert.Equal(t, 3, snap.Page)
	assert.False(t, snap.HasNext)
}

func TestEngine_ResultCapBelowRemotePageSize(t *testing.T) {
	f := newDatasetFetcher(makeRepos(1, 200))
	e := NewEngine(Options{RemotePageSize: 100, MaxResults: 50})
	runQuery(t, e, f, "go")

	snap := settle(t, e, f)(e.SetPage(10))
	require.Len(t, f.Calls(), 1)
	assert.Equal(t, 50, f.Calls()[0].PageSize, "batch shrinks to the cap")
	assert.Equal(t, 50, snap.TotalKnown)
	assert.Equal(t, 5, snap.Page)
	assert.False(t, snap.HasNext)
}

func TestEngine_ResultCapTrimsLastBatch(t *testing.T) {
	f := newDatasetFetcher(makeRepos(1, 200))
	e := NewEngine(Options{RemotePageSize: 40, MaxResults: 50})
	runQuery(t, e, f, "go")

	snap := settle(t, e, f)(e.SetPage(10))
	assert.Len(t, f.Calls(), 2)
	assert.Equal(t, 50, snap.TotalKnown)
	assert.Equal(t, 5, snap.Page)
	assert.False(t, snap.HasNext)
}

func TestEngine_DroppedItemsDoNotEndResults(t *testing.T) {
	var calls int
	f := FetcherFunc(func(ctx context.Context, query string, pageSize, page int) (domain.SearchPage, error) {
		calls++
		if page == 1 {
			// The remote sent a full page, one entry was unusable
			return domain.SearchPage{Items: makeRepos(1, 9), RawCount: 10, TotalCount: 100}, nil
		}
		return domain.SearchPage{Items: makeRepos(int64(page-1)*10, 10), TotalCount: 100}, nil
	})
	e := NewEngine(Options{RemotePageSize: 10})

	snap := runQuery(t, e, f, "go")
	assert.Equal(t, 2, calls, "page 1 is not treated as the last page")
	assert.Equal(t, 19, snap.TotalKnown)
	assert.True(t, snap.HasNext)
	assert.False(t, e.store.Exhausted())
	assert.Equal(t, 20, e.store.Fetched())
}

func TestEngine_NextPrevPage(t *testing.T) {
	f := newDatasetFetcher(makeRepos(1, 25))
	e := NewEngine(Options{})
	runQuery(t, e, f, "go")

	snap := settle(t, e, f)(e.PrevPage())
	assert.Equal(t, 1, snap.Page, "no page before the first")

	snap = settle(t, e, f)(e.NextPage())
	assert.Equal(t, 2, snap.Page)
	assert.True(t, snap.HasPrev)

	snap = settle(t, e, f)(e.NextPage())
	assert.Equal(t, 3, snap.Page)
	assert.False(t, snap.HasNext)

	snap = settle(t, e, f)(e.NextPage())
	assert.Equal(t, 3, snap.Page, "no page after the last")
}

func TestEngine_OptionsDefaults(t *testing.T) {
	e := NewEngine(Options{RemotePageSize: 500, PageSize: 20})
	assert.Equal(t, DefaultRemotePageSize, e.opts.RemotePageSize)
	assert.Equal(t, domain.MaxSearchResults, e.opts.MaxResults)
	assert.Equal(t, 20, e.View().PageSize)

	e = NewEngine(Options{PageSize: 7})
	assert.Equal(t, DefaultPageSize, e.View().PageSize)
}
