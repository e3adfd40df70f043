package search

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrSessionClosed is returned by operations on a closed Session.
var ErrSessionClosed = errors.New("search session closed")

// Session drives an Engine against a Fetcher. It debounces query input,
// executes the engine's fetch requests one at a time on background
// goroutines, cancels the HTTP work of superseded queries, and publishes a
// fresh Snapshot after every state transition.
//
// All methods are safe for concurrent use. Page, size, sort and selection
// changes are applied synchronously over the local buffer.
type Session struct {
	mu      sync.Mutex
	engine  *Engine
	fetcher Fetcher
	gate    *Debouncer
	log     zerolog.Logger

	quiet time.Duration
	after afterFunc

	baseCtx     context.Context
	chainCtx    context.Context
	chainCancel context.CancelFunc
	chainGen    uint64

	updates chan Snapshot
	wg      sync.WaitGroup
	closed  bool
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithQuietWindow sets the debounce interval for Submit.
func WithQuietWindow(d time.Duration) SessionOption {
	return func(s *Session) {
		s.quiet = d
	}
}

// WithLogger sets the session logger.
func WithLogger(log zerolog.Logger) SessionOption {
	return func(s *Session) {
		s.log = log
	}
}

// withAfterFunc replaces the debounce timer factory (tests).
func withAfterFunc(f afterFunc) SessionOption {
	return func(s *Session) {
		s.after = f
	}
}

// NewSession creates a session over engine and fetcher. Background fetches
// are bound to ctx; cancelling it aborts them.
func NewSession(ctx context.Context, engine *Engine, fetcher Fetcher, opts ...SessionOption) *Session {
	s := &Session{
		engine:  engine,
		fetcher: fetcher,
		log:     zerolog.Nop(),
		quiet:   DefaultQuietWindow,
		after:   realAfterFunc,
		baseCtx: ctx,
		updates: make(chan Snapshot, 1),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.gate = NewDebouncer(s.quiet, s.run)
	s.gate.after = s.after

	s.chainCtx, s.chainCancel = context.WithCancel(ctx)
	s.chainGen = engine.Generation()
	return s
}

// Submit feeds raw query input through the debounce gate. An empty or
// whitespace-only value clears the results immediately.
func (s *Session) Submit(text string) {
	query := strings.TrimSpace(text)
	if query == "" {
		s.gate.Cancel()
		s.gate.Forget()
		s.run("")
		return
	}
	s.gate.Submit(query)
}

// Flush runs the pending submission now instead of waiting for the quiet window.
func (s *Session) Flush() {
	s.gate.Flush()
}

// Run submits text and runs it immediately.
func (s *Session) Run(text string) {
	s.Submit(text)
	s.Flush()
}

// Retry reruns the current query from scratch.
func (s *Session) Retry() error {
	return s.apply(func(e *Engine) (*Request, error) {
		return e.Retry(), nil
	})
}

// SetPageSize changes the client page size.
func (s *Session) SetPageSize(n int) error {
	return s.apply(func(e *Engine) (*Request, error) {
		return e.SetPageSize(n)
	})
}

// SetPage moves the window to page n.
func (s *Session) SetPage(n int) error {
	return s.apply(func(e *Engine) (*Request, error) {
		return e.SetPage(n)
	})
}

// NextPage advances one page when there is one.
func (s *Session) NextPage() error {
	return s.apply(func(e *Engine) (*Request, error) {
		return e.NextPage()
	})
}

// PrevPage goes back one page.
func (s *Session) PrevPage() error {
	return s.apply(func(e *Engine) (*Request, error) {
		return e.PrevPage()
	})
}

// SetSort changes the client-side ordering.
func (s *Session) SetSort(key SortKey, dir SortDirection) error {
	return s.apply(func(e *Engine) (*Request, error) {
		return nil, e.SetSort(key, dir)
	})
}

// ToggleSelect toggles the selection of a displayed repository.
func (s *Session) ToggleSelect(id int64) error {
	return s.apply(func(e *Engine) (*Request, error) {
		return nil, e.ToggleSelect(id)
	})
}

// Snapshot returns the current projection.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Snapshot()
}

// Updates delivers snapshots after every transition. Only the latest
// undelivered snapshot is kept; the channel is closed by Close.
func (s *Session) Updates() <-chan Snapshot {
	return s.updates
}

// Close cancels pending input and in-flight fetches and waits for the
// background goroutines to exit.
func (s *Session) Close() {
	s.gate.Cancel()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.chainCancel()
	s.mu.Unlock()

	s.wg.Wait()
	close(s.updates)
}

// run is the debounce gate's emit callback.
func (s *Session) run(query string) {
	if err := s.apply(func(e *Engine) (*Request, error) {
		return e.Run(query), nil
	}); err != nil {
		s.log.Debug().Err(err).Str("query", query).Msg("query ignored")
	}
}

func (s *Session) apply(op func(e *Engine) (*Request, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	req, err := op(s.engine)
	if err != nil {
		return err
	}
	s.commitLocked(req)
	return nil
}

// commitLocked rotates the fetch context when the query generation changed,
// publishes the new snapshot and dispatches req.
func (s *Session) commitLocked(req *Request) {
	if gen := s.engine.Generation(); gen != s.chainGen {
		s.chainCancel()
		s.chainCtx, s.chainCancel = context.WithCancel(s.baseCtx)
		s.chainGen = gen
	}
	s.publishLocked(s.engine.Snapshot())
	if req != nil {
		s.dispatchLocked(s.chainCtx, *req)
	}
}

func (s *Session) dispatchLocked(ctx context.Context, req Request) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		page, err := s.fetcher.FetchPage(ctx, req.Query, req.PageSize, req.Page)

		s.mu.Lock()
		defer s.mu.Unlock()

		if s.closed || req.Generation != s.engine.Generation() {
			s.log.Debug().Str("query", req.Query).Int("page", req.Page).Msg("discarding superseded fetch")
			return
		}

		next := s.engine.Complete(req, page, err)
		if s.engine.Phase() == PhaseFailed {
			// Let the user resubmit the same text to retry.
			s.gate.Forget()
		}
		s.commitLocked(next)
	}()
}

// publishLocked replaces any undelivered snapshot with snap. It never blocks:
// the channel has capacity 1 and every sender holds s.mu.
func (s *Session) publishLocked(snap Snapshot) {
	select {
	case <-s.updates:
	default:
	}
	s.updates <- snap
}
