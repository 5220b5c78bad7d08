package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cwinsights/internal/columns"
	"cwinsights/internal/filter"
	"cwinsights/internal/model"
	"cwinsights/internal/poller"
	"cwinsights/internal/querier"
	"cwinsights/internal/query"
	"cwinsights/internal/store"
	"cwinsights/internal/util/logx"
)

// ErrNoSession is returned by row lookups before anything was submitted.
var ErrNoSession = errors.New("no query submitted")

type Options struct {
	Region    string
	Profile   string
	Poll      poller.Options
	Store     store.Options
	CarryOver CarryOver
	// CancelTimeout bounds the remote cancel for a query whose submit
	// completed after the session was cancelled.
	CancelTimeout time.Duration
	Now           func() time.Time
}

type Manager struct {
	client querier.Client
	opt    Options
	now    func() time.Time

	events *broker
	wg     sync.WaitGroup

	mu  sync.Mutex
	cur *Session

	// foreground only
	profile    string
	region     string
	filter     *filter.Engine
	cols       *columns.Projector
	quick      string
	vp         Viewport
	selSeq     uint64
	hasSel     bool
	lastRows   []model.Row
	lastHeight int
}

func NewManager(client querier.Client, opt Options) *Manager {
	if opt.Now == nil {
		opt.Now = time.Now
	}
	if opt.Poll.Interval <= 0 {
		opt.Poll = poller.DefaultOptions()
	}
	if opt.CancelTimeout <= 0 {
		opt.CancelTimeout = 5 * time.Second
	}
	m := &Manager{
		client:  client,
		opt:     opt,
		now:     opt.Now,
		events:  newBroker(),
		profile: opt.Profile,
		region:  opt.Region,
		filter:  filter.NewEngine(),
		cols:    columns.New(),
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.events.run()
	}()
	return m
}

// Events delivers transitions and row notifications in publish order. It is
// closed by Close.
func (m *Manager) Events() <-chan Event { return m.events.out }

// Current returns the active session, or nil before the first Submit.
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cur
}

func (m *Manager) Profile() string { return m.profile }

func (m *Manager) Now() time.Time { return m.now() }

func (m *Manager) Region() string { return m.region }

// SetRegion applies to later submissions only.
func (m *Manager) SetRegion(region string) { m.region = region }

func (m *Manager) Filter() *filter.Engine { return m.filter }

func (m *Manager) Columns() *columns.Projector { return m.cols }

func (m *Manager) CarryOver() CarryOver { return m.opt.CarryOver }

// Submit validates in and starts a new session for it, cancelling the active
// one. Validation errors are returned without touching the active session.
// The returned session may already have failed by the time Submit returns;
// watch Events for the outcome.
func (m *Manager) Submit(ctx context.Context, in query.Input) (*Session, error) {
	in, err := in.Validate()
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	old := m.cur
	m.mu.Unlock()
	if old != nil {
		m.cancelSession(old)
	}

	if m.opt.CarryOver == CarryNone {
		m.resetView()
	}
	m.vp, m.hasSel, m.lastRows = Viewport{}, false, nil

	now := m.now()
	q := in.ToQuery(m.region, m.profile, now)
	s := newSession(in, q, store.New(m.opt.Store))
	sctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	m.mu.Lock()
	m.cur = s
	m.mu.Unlock()

	m.transition(s, Submitting, nil)
	logx.Infof("session: submit id=%s groups=%v range=%s..%s profile=%q", s.id, q.LogGroups,
		q.Range.Start.Format(time.RFC3339), q.Range.End.Format(time.RFC3339), q.Profile)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer close(s.done)
		defer cancel()
		m.run(sctx, s, q)
	}()
	return s, nil
}

func (m *Manager) run(ctx context.Context, s *Session, q model.Query) {
	id, err := m.client.Submit(ctx, q)
	if ctx.Err() != nil {
		if err == nil {
			m.cancelRemote(id)
		}
		m.transition(s, Cancelled, nil)
		return
	}
	if err != nil {
		logx.Errorf("session: submit failed id=%s: %v", s.id, err)
		m.transition(s, Failed, err)
		return
	}

	q.ID = id
	p := poller.New(m.client, s.store, id, m.opt.Poll)
	s.mu.Lock()
	s.query = q
	s.mu.Unlock()
	if !m.transition(s, Running, nil) {
		// cancelled between the submit returning and now
		m.cancelRemote(id)
		return
	}

	p.Start(ctx)
	for u := range p.Updates() {
		s.mu.Lock()
		s.stats = u.Stats
		s.mu.Unlock()
		if u.Added > 0 {
			m.events.publish(Event{Kind: EventRowsAppended, SessionID: s.id, From: Running, To: Running, Rows: u.Total})
		}
		if u.Terminal() {
			m.transition(s, terminalState(u.Status), u.Err)
		}
	}
	<-p.Done()
	// the poller stops without a terminal update only when ctx is done
	m.transition(s, Cancelled, nil)
}

func terminalState(st querier.Status) State {
	switch st {
	case querier.StatusSucceeded:
		return Succeeded
	case querier.StatusCancelled:
		return Cancelled
	}
	return Failed
}

// transition moves s and publishes the change. Late transitions for a
// session that already reached a terminal state are dropped.
func (m *Manager) transition(s *Session, to State, err error) bool {
	from, ok := s.move(to, err, m.now())
	if !ok {
		return false
	}
	rows := s.store.Len()
	if to.Terminal() {
		logx.Infof("session: %s -> %s id=%s rows=%d err=%v", from, to, s.id, rows, err)
	} else {
		logx.Debugf("session: %s -> %s id=%s", from, to, s.id)
	}
	m.events.publish(Event{Kind: EventTransition, SessionID: s.id, From: from, To: to, Err: err, Rows: rows})
	return true
}

// Cancel stops the active query. It reports false when nothing was running.
func (m *Manager) Cancel() bool {
	s := m.Current()
	if s == nil {
		return false
	}
	return m.cancelSession(s)
}

func (m *Manager) cancelSession(s *Session) bool {
	if !m.transition(s, Cancelled, nil) {
		return false
	}
	// the poller issues the remote cancel on its way out
	s.cancel()
	return true
}

func (m *Manager) cancelRemote(id model.QueryID) {
	ctx, cancel := context.WithTimeout(context.Background(), m.opt.CancelTimeout)
	defer cancel()
	if err := m.client.Cancel(ctx, id); err != nil {
		logx.Warnf("session: cancel query=%s: %v (ignored)", id, err)
	}
}

// SwitchProfile cancels the active query, resets rules and columns, and
// uses token for later submissions.
func (m *Manager) SwitchProfile(token string) {
	if s := m.Current(); s != nil {
		m.cancelSession(s)
	}
	m.resetView()
	m.profile = token
	logx.Infof("session: profile switched to %q", token)
	m.events.publish(Event{Kind: EventProfileChanged, Profile: token})
}

func (m *Manager) resetView() {
	m.filter.Clear()
	m.cols.Reset()
	m.quick = ""
	m.vp, m.hasSel = Viewport{}, false
}

// QuickFilter returns the text last given to SetQuickFilter.
func (m *Manager) QuickFilter() string { return m.quick }

// SetQuickFilter replaces the rules with the ones parsed from text.
func (m *Manager) SetQuickFilter(text string) error {
	if err := m.filter.SetRules(filter.ParseQuick(text)); err != nil {
		return err
	}
	m.quick = text
	return nil
}

// Close cancels the active query and waits for every background goroutine.
// Events is closed afterwards.
func (m *Manager) Close() {
	if s := m.Current(); s != nil {
		m.cancelSession(s)
		<-s.done
	}
	m.events.stop()
	m.wg.Wait()
}

// Row returns the full row for detail display.
func (m *Manager) Row(seq uint64) (model.Row, error) {
	s := m.Current()
	if s == nil {
		return model.Row{}, ErrNoSession
	}
	row, err := s.store.Get(seq)
	if err != nil {
		return model.Row{}, fmt.Errorf("session %s: %w", s.id, err)
	}
	return row, nil
}
