// Package search implements the incremental search aggregation engine.
//
// One query becomes a sequence of debounced, sequential remote page fetches
// that accumulate into a buffer; the buffer is then re-sliced into client
// page windows under a client-side sort. The Engine is a synchronous state
// machine, the Session drives it asynchronously against a Fetcher.
package search

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/neekit95/gh-search/internal/domain"
)

var (
	// ErrInvalidQuery indicates an empty or whitespace-only query.
	ErrInvalidQuery = errors.New("query must not be empty")
	// ErrInvalidPageSize indicates a client page size outside PageSizes.
	ErrInvalidPageSize = errors.New("invalid page size")
	// ErrInvalidPage indicates a client page index below 1.
	ErrInvalidPage = errors.New("invalid page")
	// ErrInvalidSort indicates an unknown sort key or direction.
	ErrInvalidSort = errors.New("invalid sort")
	// ErrNotVisible indicates a selection of an item outside the displayed rows.
	ErrNotVisible = errors.New("repository is not in the current window")
)

// Fetcher performs one remote page fetch. Implementations own transport,
// authentication and error mapping; the engine only distinguishes success
// from failure.
type Fetcher interface {
	FetchPage(ctx context.Context, query string, pageSize, page int) (domain.SearchPage, error)
}

// FetcherFunc adapts a plain function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, query string, pageSize, page int) (domain.SearchPage, error)

// FetchPage calls f.
func (f FetcherFunc) FetchPage(ctx context.Context, query string, pageSize, page int) (domain.SearchPage, error) {
	return f(ctx, query, pageSize, page)
}

// Phase is the lifecycle state of the active query.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseLoading
	PhaseSucceeded
	PhaseEmpty
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseLoading:
		return "loading"
	case PhaseSucceeded:
		return "succeeded"
	case PhaseEmpty:
		return "empty"
	case PhaseFailed:
		return "failed"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// SortKey selects the repository attribute rows are ordered by.
type SortKey string

const (
	SortBestMatch SortKey = "best-match" // Remote order, as returned by the endpoint
	SortName      SortKey = "name"
	SortLanguage  SortKey = "language"
	SortForks     SortKey = "forks"
	SortStars     SortKey = "stars"
	SortUpdated   SortKey = "updated"
)

// SortKeys lists every sort key in the order the UI cycles through them.
var SortKeys = []SortKey{SortBestMatch, SortName, SortLanguage, SortForks, SortStars, SortUpdated}

// SortDirection is ascending or descending.
type SortDirection string

const (
	Ascending  SortDirection = "asc"
	Descending SortDirection = "desc"
)

// ParseSortKey validates a sort key name.
func ParseSortKey(s string) (SortKey, error) {
	for _, k := range SortKeys {
		if string(k) == strings.ToLower(s) {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: unknown key %q", ErrInvalidSort, s)
}

// ParseSortDirection validates a sort direction name.
func ParseSortDirection(s string) (SortDirection, error) {
	switch strings.ToLower(s) {
	case "asc", "ascending":
		return Ascending, nil
	case "desc", "descending":
		return Descending, nil
	}
	return "", fmt.Errorf("%w: unknown direction %q", ErrInvalidSort, s)
}

// PageSizes is the fixed set of client page sizes.
var PageSizes = []int{10, 20, 30}

// DefaultPageSize is the client page size used before the user picks one.
const DefaultPageSize = 10

// ValidPageSize reports whether n is one of PageSizes.
func ValidPageSize(n int) bool {
	for _, size := range PageSizes {
		if size == n {
			return true
		}
	}
	return false
}

// ValidateQuery normalizes a raw query and rejects empty input.
func ValidateQuery(raw string) (string, error) {
	q := strings.TrimSpace(raw)
	if q == "" {
		return "", ErrInvalidQuery
	}
	return q, nil
}

// View is the client-side view state: page window, sort and selection.
type View struct {
	PageSize   int
	Page       int // 1-based
	SortKey    SortKey
	Direction  SortDirection
	SelectedID int64 // 0 means nothing selected
}

// DefaultView returns the view state used for a fresh session.
func DefaultView() View {
	return View{
		PageSize:  DefaultPageSize,
		Page:      1,
		SortKey:   SortBestMatch,
		Direction: Descending,
	}
}

// Row is one displayed repository, decorated with its selection state.
type Row struct {
	Repository domain.Repository
	Selected   bool
}

// Snapshot is the read-only state handed to the presentation layer.
// It is recomputed after every state transition.
type Snapshot struct {
	Query        string
	Phase        Phase
	Rows         []Row
	RangeStart   int // 1-based index of the first row, 0 when there are no rows
	RangeEnd     int // 1-based index of the last row, 0 when there are no rows
	TotalKnown   int // Repositories buffered locally
	TotalHint    int // Total-count hint reported by the remote
	Page         int
	PageSize     int
	PageCount    int
	HasPrev      bool
	HasNext      bool
	SortKey      SortKey
	Direction    SortDirection
	SelectedItem *domain.Repository
	ErrorMessage string
	FetchingMore bool // A fetch-ahead is in flight while rows are already shown
}

// Request is one remote page fetch issued by the engine. It is tagged with
// the generation of the query it belongs to so late completions can be
// recognized and dropped.
type Request struct {
	Generation uint64
	Query      string
	PageSize   int
	Page       int
}
