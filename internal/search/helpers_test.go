package search

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/neekit95/gh-search/internal/domain"
)

// makeRepos builds n repositories with IDs starting at firstID.
// Stars decrease with position so the remote order is "best match" by stars.
func makeRepos(firstID int64, n int) []domain.Repository {
	repos := make([]domain.Repository, n)
	base := time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC)
	for i := range repos {
		id := firstID + int64(i)
		repos[i] = domain.Repository{
			ID:        id,
			Name:      fmt.Sprintf("repo-%03d", id),
			FullName:  fmt.Sprintf("owner/repo-%03d", id),
			Owner:     "owner",
			URL:       fmt.Sprintf("https://github.com/owner/repo-%03d", id),
			Language:  []string{"Go", "JavaScript", "Python"}[i%3],
			Forks:     int(id % 7),
			Stars:     1000 - int(id),
			UpdatedAt: base.Add(time.Duration(id) * time.Hour),
		}
	}
	return repos
}

// datasetFetcher serves pages out of a fixed result set and records calls.
type datasetFetcher struct {
	mu     sync.Mutex
	repos  []domain.Repository
	total  int           // Reported total-count hint; len(repos) when 0
	failOn map[int]error // Page number -> error
	calls  []Request
}

func newDatasetFetcher(repos []domain.Repository) *datasetFetcher {
	return &datasetFetcher{repos: repos, failOn: make(map[int]error)}
}

func (f *datasetFetcher) FetchPage(ctx context.Context, query string, pageSize, page int) (domain.SearchPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, Request{Query: query, PageSize: pageSize, Page: page})
	if err, ok := f.failOn[page]; ok {
		return domain.SearchPage{}, err
	}

	total := f.total
	if total == 0 {
		total = len(f.repos)
	}
	start := (page - 1) * pageSize
	if start >= len(f.repos) {
		return domain.SearchPage{TotalCount: total}, nil
	}
	end := min(start+pageSize, len(f.repos))
	items := make([]domain.Repository, end-start)
	copy(items, f.repos[start:end])
	return domain.SearchPage{Items: items, TotalCount: total}, nil
}

func (f *datasetFetcher) Calls() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Request, len(f.calls))
	copy(out, f.calls)
	return out
}

// rowIDs extracts repository IDs from projected rows.
func rowIDs(rows []Row) []int64 {
	ids := make([]int64, len(rows))
	for i, row := range rows {
		ids[i] = row.Repository.ID
	}
	return ids
}

// fakeClock is a manual clock for the debounce gate.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now + d, f: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves the clock forward and runs every timer that became due.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && t.at <= c.now {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	for _, t := range due {
		t.f()
	}
}
