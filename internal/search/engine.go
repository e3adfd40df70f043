package search

import (
	"fmt"
	"strings"

	"github.com/neekit95/gh-search/internal/domain"
	"github.com/neekit95/gh-search/internal/store"
	"github.com/rs/zerolog"
)

// DefaultRemotePageSize is the batch size used for remote fetches. It is
// independent of the client page size so one round trip covers many client pages.
const DefaultRemotePageSize = domain.MaxRemotePageSize

// Options configures an Engine.
type Options struct {
	// RemotePageSize is the per_page value sent to the remote (default 100).
	RemotePageSize int
	// MaxResults caps how deep the remote can be paged for one query
	// (default domain.MaxSearchResults).
	MaxResults int
	// PageSize is the initial client page size (default DefaultPageSize).
	PageSize int
	// Logger receives debug logs about fetch dispatch and completion.
	Logger zerolog.Logger
}

// Engine is the synchronous aggregation state machine for one logical query
// at a time. It never performs I/O: operations return the next *Request the
// caller should fetch (nil when nothing is needed), and Complete feeds the
// result back in. At most one request is outstanding per query.
//
// Engine is not safe for concurrent use; Session serializes access.
type Engine struct {
	opts Options
	log  zerolog.Logger

	store     *store.Store
	gen       uint64 // Incremented on every Run; requests carry it
	phase     Phase
	lastErr   error
	inFlight  *Request
	view      View
	selection Selection
}

// NewEngine creates an idle engine.
func NewEngine(opts Options) *Engine {
	if opts.RemotePageSize <= 0 || opts.RemotePageSize > domain.MaxRemotePageSize {
		opts.RemotePageSize = DefaultRemotePageSize
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = domain.MaxSearchResults
	}
	// A batch never reaches past the cap.
	opts.RemotePageSize = min(opts.RemotePageSize, opts.MaxResults)
	view := DefaultView()
	if ValidPageSize(opts.PageSize) {
		view.PageSize = opts.PageSize
	}
	return &Engine{
		opts:  opts,
		log:   opts.Logger,
		store: store.New(),
		view:  view,
	}
}

// Run starts a new query, superseding the current one. The buffer, remote
// cursor, error, page index and selection are reset immediately. An empty
// query leaves the engine idle.
func (e *Engine) Run(raw string) *Request {
	query := strings.TrimSpace(raw)

	e.gen++
	e.store.Reset(query)
	e.inFlight = nil
	e.lastErr = nil
	e.view.Page = 1
	e.selection.Clear()

	if query == "" {
		e.phase = PhaseIdle
		e.log.Debug().Uint64("generation", e.gen).Msg("search cleared")
		return nil
	}

	e.phase = PhaseLoading
	e.log.Debug().Uint64("generation", e.gen).Str("query", query).Msg("search started")
	return e.evaluate()
}

// Clear drops the current query and its results.
func (e *Engine) Clear() {
	e.Run("")
}

// Retry reruns the current query from scratch. It is the only recovery path
// after a failure.
func (e *Engine) Retry() *Request {
	if e.store.Query() == "" {
		return nil
	}
	return e.Run(e.store.Query())
}

// Query returns the active query.
func (e *Engine) Query() string {
	return e.store.Query()
}

// Phase returns the lifecycle state of the active query.
func (e *Engine) Phase() Phase {
	return e.phase
}

// Err returns the error that moved the engine into PhaseFailed, if any.
func (e *Engine) Err() error {
	return e.lastErr
}

// Generation returns the tag carried by requests of the active query.
func (e *Engine) Generation() uint64 {
	return e.gen
}

// View returns the current view state, including the selection.
func (e *Engine) View() View {
	v := e.view
	v.SelectedID = e.selection.ID()
	return v
}

// InFlight returns a copy of the outstanding request, or nil.
func (e *Engine) InFlight() *Request {
	if e.inFlight == nil {
		return nil
	}
	req := *e.inFlight
	return &req
}

// SetPageSize changes the client page size. The page index is clamped to
// the new page count so the window never points past the buffer.
func (e *Engine) SetPageSize(n int) (*Request, error) {
	if !ValidPageSize(n) {
		return nil, fmt.Errorf("%w: %d (allowed: %v)", ErrInvalidPageSize, n, PageSizes)
	}
	e.view.PageSize = n
	e.view.Page = min(e.view.Page, PageCount(e.store.Len(), n))
	return e.evaluate(), nil
}

// SetPage moves the window to page n (1-based). A page past the buffer's end
// triggers fetch-ahead while the remote may hold more; otherwise n is clamped
// to the last page.
func (e *Engine) SetPage(n int) (*Request, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPage, n)
	}
	if !e.canFetch() {
		n = min(n, PageCount(e.store.Len(), e.view.PageSize))
	}
	e.view.Page = n
	return e.evaluate(), nil
}

// NextPage advances one page if the projection reports a next page.
func (e *Engine) NextPage() (*Request, error) {
	if !e.window().HasNext {
		return nil, nil
	}
	return e.SetPage(e.view.Page + 1)
}

// PrevPage goes back one page if not on the first page.
func (e *Engine) PrevPage() (*Request, error) {
	if e.view.Page <= 1 {
		return nil, nil
	}
	return e.SetPage(e.view.Page - 1)
}

// SetSort changes the client-side ordering. It never triggers a fetch.
func (e *Engine) SetSort(key SortKey, dir SortDirection) error {
	if _, err := ParseSortKey(string(key)); err != nil {
		return err
	}
	if _, err := ParseSortDirection(string(dir)); err != nil {
		return err
	}
	e.view.SortKey = key
	e.view.Direction = dir
	if e.inFlight == nil {
		e.clampPage()
	}
	return nil
}

// ToggleSelect toggles the selection of a repository shown in the current
// window. IDs outside the displayed rows are rejected with ErrNotVisible.
func (e *Engine) ToggleSelect(id int64) error {
	for _, row := range e.window().Rows {
		if row.Repository.ID == id {
			e.selection.Toggle(id)
			return nil
		}
	}
	return fmt.Errorf("%w: %d", ErrNotVisible, id)
}

// Complete applies the outcome of a request. Results of a superseded query
// are dropped silently. On success the page is appended and fetch-ahead is
// re-evaluated; the returned request, if any, must be fetched next.
func (e *Engine) Complete(req Request, page domain.SearchPage, err error) *Request {
	if req.Generation != e.gen {
		e.log.Debug().
			Uint64("generation", req.Generation).
			Uint64("current", e.gen).
			Int("page", req.Page).
			Msg("dropping stale page")
		return nil
	}
	if e.inFlight == nil || e.inFlight.Page != req.Page {
		e.log.Debug().Int("page", req.Page).Msg("dropping unexpected page")
		return nil
	}
	e.inFlight = nil

	if err != nil {
		e.phase = PhaseFailed
		e.lastErr = err
		e.clampPage()
		e.log.Error().Err(err).Str("query", req.Query).Int("page", req.Page).Msg("search page failed")
		return nil
	}

	items := page.Items
	if room := max(e.opts.MaxResults-e.store.Fetched(), 0); len(items) > room {
		items = items[:room]
	}
	added := e.store.Append(items)
	e.store.Skip(page.Count() - len(items))
	e.store.Advance()
	if page.TotalCount > 0 {
		e.store.SetTotalCount(page.TotalCount)
	}
	if e.remoteDone(req, page) {
		e.store.MarkExhausted()
	}
	e.log.Debug().
		Str("query", req.Query).
		Int("page", req.Page).
		Int("received", page.Count()).
		Int("added", added).
		Int("buffered", e.store.Len()).
		Bool("exhausted", e.store.Exhausted()).
		Msg("search page appended")

	if req.Page == 1 && page.Count() == 0 {
		e.phase = PhaseEmpty
		return nil
	}
	return e.evaluate()
}

// Snapshot projects the current state for the presentation layer.
func (e *Engine) Snapshot() Snapshot {
	w := e.window()
	snap := Snapshot{
		Query:        e.store.Query(),
		Phase:        e.phase,
		Rows:         w.Rows,
		RangeStart:   w.RangeStart,
		RangeEnd:     w.RangeEnd,
		TotalKnown:   w.TotalKnown,
		TotalHint:    e.store.TotalCount(),
		Page:         e.view.Page,
		PageSize:     e.view.PageSize,
		PageCount:    w.PageCount,
		HasPrev:      w.HasPrev,
		HasNext:      w.HasNext,
		SortKey:      e.view.SortKey,
		Direction:    e.view.Direction,
		FetchingMore: e.phase == PhaseSucceeded && e.inFlight != nil,
	}
	if id := e.selection.ID(); id != 0 {
		if repo, err := e.store.Get(id); err == nil {
			snap.SelectedItem = &repo
		}
	}
	if e.lastErr != nil {
		snap.ErrorMessage = e.lastErr.Error()
	}
	return snap
}

// window projects the buffer through the current view. A failed or idle
// query is treated as exhausted: no further pages will be fetched for it.
func (e *Engine) window() Window {
	exhausted := e.store.Exhausted() || !e.canFetch()
	return Project(e.store.Items(), e.View(), exhausted)
}

// evaluate is the fetch-ahead controller. It issues the next remote page when
// the buffer does not cover the requested window, and settles the phase and
// page index otherwise.
func (e *Engine) evaluate() *Request {
	if !e.canFetch() || e.inFlight != nil {
		return nil
	}

	need := e.view.Page * e.view.PageSize
	if e.store.Len() < need && !e.store.Exhausted() {
		e.inFlight = &Request{
			Generation: e.gen,
			Query:      e.store.Query(),
			PageSize:   e.opts.RemotePageSize,
			Page:       e.store.Cursor(),
		}
		e.log.Debug().
			Str("query", e.inFlight.Query).
			Int("page", e.inFlight.Page).
			Int("need", need).
			Int("buffered", e.store.Len()).
			Msg("fetching remote page")
		req := *e.inFlight
		return &req
	}

	if e.phase == PhaseLoading {
		if e.store.Len() == 0 {
			e.phase = PhaseEmpty
		} else {
			e.phase = PhaseSucceeded
		}
	}
	e.clampPage()
	return nil
}

// remoteDone reports whether the page just appended was the remote's last.
func (e *Engine) remoteDone(req Request, page domain.SearchPage) bool {
	switch {
	case page.Count() == 0, page.Count() < req.PageSize:
		return true
	case e.store.TotalCount() > 0 && e.store.Fetched() >= e.store.TotalCount():
		return true
	case (e.store.Cursor()-1)*req.PageSize >= e.opts.MaxResults:
		return true
	}
	return false
}

func (e *Engine) canFetch() bool {
	return e.phase == PhaseLoading || e.phase == PhaseSucceeded
}

func (e *Engine) clampPage() {
	e.view.Page = max(1, min(e.view.Page, PageCount(e.store.Len(), e.view.PageSize)))
}
