// Package store provides the in-memory aggregation buffer for one search query.
// It owns the ordered list of repositories fetched so far, deduplicates them by ID,
// and tracks the remote pagination state following the "deep modules" principle -
// simple interface hiding the bookkeeping needed for fetch-ahead.
package store

import (
	"errors"
	"slices"

	"github.com/neekit95/gh-search/internal/domain"
)

// ErrRepositoryNotFound indicates the requested repository is not in the buffer.
var ErrRepositoryNotFound = errors.New("repository not found")

// Store manages the repositories accumulated for the current query.
// The buffer is append-only for the lifetime of one query and is replaced
// wholesale by Reset when the query changes.
type Store struct {
	query string

	// Repository storage in insertion (remote) order
	items []domain.Repository
	index map[int64]int // Repository ID -> position in items

	// Pagination state
	cursor     int  // Next remote page number to fetch (1-based)
	fetched    int  // Raw items received from the remote, duplicates included
	totalCount int  // Total-count hint from the last page
	exhausted  bool // True once the remote has no more data for this query
}

// New creates a new empty Store instance.
func New() *Store {
	s := &Store{}
	s.Reset("")
	return s
}

// Reset discards the buffer and starts over for a new query.
func (s *Store) Reset(query string) {
	s.query = query
	s.items = nil
	s.index = make(map[int64]int)
	s.cursor = 1
	s.fetched = 0
	s.totalCount = 0
	s.exhausted = false
}

// Query returns the query the buffer belongs to.
func (s *Store) Query() string {
	return s.query
}

// Append adds a page of repositories to the end of the buffer.
// Repositories whose ID is already buffered are skipped (first seen wins).
// Returns the number of repositories actually added.
func (s *Store) Append(repos []domain.Repository) int {
	added := 0
	for _, repo := range repos {
		if _, exists := s.index[repo.ID]; exists {
			continue
		}
		s.index[repo.ID] = len(s.items)
		s.items = append(s.items, repo)
		added++
	}
	s.fetched += len(repos)
	return added
}

// Len returns the number of buffered repositories.
func (s *Store) Len() int {
	return len(s.items)
}

// Items returns a copy of the buffered repositories in insertion order.
func (s *Store) Items() []domain.Repository {
	return slices.Clone(s.items)
}

// Get retrieves a repository by ID, returning ErrRepositoryNotFound if it is not buffered.
func (s *Store) Get(id int64) (domain.Repository, error) {
	pos, exists := s.index[id]
	if !exists {
		return domain.Repository{}, ErrRepositoryNotFound
	}
	return s.items[pos], nil
}

// Contains reports whether a repository with the given ID is buffered.
func (s *Store) Contains(id int64) bool {
	_, exists := s.index[id]
	return exists
}

// Cursor returns the next remote page number to fetch.
func (s *Store) Cursor() int {
	return s.cursor
}

// Skip records n raw items received from the remote that were not appended,
// so Fetched keeps matching the remote's own count.
func (s *Store) Skip(n int) {
	s.fetched += max(n, 0)
}

// Advance moves the remote cursor past the page that was just appended.
func (s *Store) Advance() {
	s.cursor++
}

// Fetched returns the number of raw items received from the remote.
func (s *Store) Fetched() int {
	return s.fetched
}

// SetTotalCount records the total-count hint reported by the remote.
func (s *Store) SetTotalCount(total int) {
	s.totalCount = total
}

// TotalCount returns the last total-count hint, 0 if unknown.
func (s *Store) TotalCount() int {
	return s.totalCount
}

// MarkExhausted records that the remote has no more pages for this query.
func (s *Store) MarkExhausted() {
	s.exhausted = true
}

// Exhausted reports whether the remote has no more pages for this query.
func (s *Store) Exhausted() bool {
	return s.exhausted
}
