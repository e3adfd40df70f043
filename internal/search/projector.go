package search

import (
	"cmp"
	"slices"
	"strings"

	"github.com/neekit95/gh-search/internal/domain"
)

// Window is the projection of the buffer onto one client page.
type Window struct {
	Rows       []Row
	RangeStart int
	RangeEnd   int
	TotalKnown int
	PageCount  int
	HasPrev    bool
	HasNext    bool
}

// Project sorts the whole buffer and slices out the page selected by view.
// It is a pure function: items is not modified and view is taken as given,
// including a page index past the end of the buffer (which yields no rows).
// exhausted reports whether the remote may still hold more data.
func Project(items []domain.Repository, view View, exhausted bool) Window {
	size := view.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	page := max(view.Page, 1)

	sorted := SortRepositories(items, view.SortKey, view.Direction)

	w := Window{
		TotalKnown: len(sorted),
		PageCount:  PageCount(len(sorted), size),
		HasPrev:    page > 1,
		HasNext:    page*size < len(sorted) || !exhausted,
	}

	start := (page - 1) * size
	if start >= len(sorted) {
		return w
	}
	end := min(start+size, len(sorted))

	w.Rows = make([]Row, 0, end-start)
	for _, repo := range sorted[start:end] {
		w.Rows = append(w.Rows, Row{
			Repository: repo,
			Selected:   view.SelectedID != 0 && repo.ID == view.SelectedID,
		})
	}
	w.RangeStart = start + 1
	w.RangeEnd = end
	return w
}

// PageCount returns ceil(n/size), never less than 1.
func PageCount(n, size int) int {
	if n <= 0 || size <= 0 {
		return 1
	}
	return (n + size - 1) / size
}

// SortRepositories returns a stably sorted copy of repos.
// Ties keep their insertion order; SortBestMatch keeps the remote order.
func SortRepositories(repos []domain.Repository, key SortKey, dir SortDirection) []domain.Repository {
	sorted := slices.Clone(repos)
	compare := comparator(key)
	if compare == nil {
		return sorted
	}
	if dir == Descending {
		asc := compare
		compare = func(a, b domain.Repository) int { return asc(b, a) }
	}
	slices.SortStableFunc(sorted, compare)
	return sorted
}

func comparator(key SortKey) func(a, b domain.Repository) int {
	switch key {
	case SortName:
		return func(a, b domain.Repository) int {
			return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
		}
	case SortLanguage:
		return func(a, b domain.Repository) int {
			return strings.Compare(strings.ToLower(a.Language), strings.ToLower(b.Language))
		}
	case SortForks:
		return func(a, b domain.Repository) int { return cmp.Compare(a.Forks, b.Forks) }
	case SortStars:
		return func(a, b domain.Repository) int { return cmp.Compare(a.Stars, b.Stars) }
	case SortUpdated:
		return func(a, b domain.Repository) int { return a.UpdatedAt.Compare(b.UpdatedAt) }
	}
	return nil
}
