// Package session runs one query at a time from submission to a terminal
// state and derives what the terminal shows from the rows fetched so far.
//
// A Manager owns the single active Session. Submitting replaces the session
// wholesale: the old one is cancelled and its poller keeps writing, if at
// all, only into the old session's store. Manager methods are meant to be
// called from one foreground goroutine (the UI loop); background work reports
// back through Events.
package session

import (
	"context"
	"sync"
	"time"

	"cwinsights/internal/model"
	"cwinsights/internal/querier"
	"cwinsights/internal/query"
	"cwinsights/internal/store"

	"github.com/google/uuid"
)

type Session struct {
	id    string
	input query.Input
	store *store.Store

	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	state    State
	err      error
	query    model.Query
	stats    querier.Stats
	started  time.Time
	finished time.Time
}

func newSession(in query.Input, q model.Query, st *store.Store) *Session {
	return &Session{
		id:    uuid.NewString(),
		input: in,
		query: q,
		store: st,
		done:  make(chan struct{}),
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) Input() query.Input { return s.input }

// Store is never replaced for the lifetime of the session.
func (s *Session) Store() *store.Store { return s.store }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err is the failure reason of a Failed session, or the service's reason for
// a Cancelled one.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Query carries the service's query id once the session is Running.
func (s *Session) Query() model.Query {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.query
}

func (s *Session) Stats() querier.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Elapsed is measured from submission to the terminal state, or to now.
func (s *Session) Elapsed(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started.IsZero() {
		return 0
	}
	if !s.finished.IsZero() {
		return s.finished.Sub(s.started)
	}
	return now.Sub(s.started)
}

// Done is closed once the session's goroutines have exited.
func (s *Session) Done() <-chan struct{} { return s.done }

// move applies a transition if it is allowed from the current state.
func (s *Session) move(to State, err error, now time.Time) (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	from := s.state
	if !canMove(from, to) {
		return from, false
	}
	s.state = to
	switch {
	case to == Submitting:
		s.started = now
	case to.Terminal():
		s.finished = now
		s.err = err
	}
	return from, true
}
