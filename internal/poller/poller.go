// Package poller drives one submitted query to a terminal status.
//
// A Poller is bound to a single store at construction and is the only writer
// of that store. Stopping is cooperative: the context is checked before and
// after every poll and while waiting between polls, and a poll that returns
// after Stop never reaches the store.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cwinsights/internal/model"
	"cwinsights/internal/querier"
	"cwinsights/internal/retry"
	"cwinsights/internal/store"
	"cwinsights/internal/util/logx"
)

type Options struct {
	// Interval is the wait between successful polls.
	Interval time.Duration
	// Retry bounds consecutive transient failures.
	Retry retry.Policy
	// CancelTimeout bounds the best-effort remote cancel issued on Stop.
	CancelTimeout time.Duration
}

func DefaultOptions() Options {
	return Options{Interval: 500 * time.Millisecond, Retry: retry.Default(), CancelTimeout: 5 * time.Second}
}

// Update is sent whenever rows were appended or the query reached a
// terminal status.
type Update struct {
	Added     int
	Total     int
	Truncated bool
	Status    querier.Status
	Stats     querier.Stats
	// Err is set on a Failed terminal update.
	Err error
}

func (u Update) Terminal() bool { return u.Status.Terminal() }

type Poller struct {
	client querier.Client
	store  *store.Store
	id     model.QueryID
	opt    Options

	updates chan Update
	done    chan struct{}

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
}

func New(client querier.Client, st *store.Store, id model.QueryID, opt Options) *Poller {
	if opt.Interval <= 0 {
		opt.Interval = DefaultOptions().Interval
	}
	if opt.Retry.MaxAttempts < 1 {
		opt.Retry.MaxAttempts = 1
	}
	if opt.CancelTimeout <= 0 {
		opt.CancelTimeout = DefaultOptions().CancelTimeout
	}
	return &Poller{
		client:  client,
		store:   st,
		id:      id,
		opt:     opt,
		updates: make(chan Update, 8),
		done:    make(chan struct{}),
	}
}

// Start launches the polling goroutine and returns immediately. Calling it
// more than once has no effect.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true
	ctx, p.cancel = context.WithCancel(ctx)
	go p.run(ctx)
}

// Stop signals the goroutine to finish. It does not wait; use Done for that.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		p.started = true
		close(p.updates)
		close(p.done)
		return
	}
	p.cancel()
}

// Updates is closed when the goroutine exits.
func (p *Poller) Updates() <-chan Update { return p.updates }

// Done is closed after the goroutine has exited and will not touch the store
// again.
func (p *Poller) Done() <-chan struct{} { return p.done }

func (p *Poller) Store() *store.Store { return p.store }

func (p *Poller) QueryID() model.QueryID { return p.id }

func (p *Poller) run(ctx context.Context) {
	defer close(p.done)
	defer close(p.updates)
	logx.Debugf("poller: start query=%s interval=%s", p.id, p.opt.Interval)

	failures := 0
	for {
		if ctx.Err() != nil {
			p.cancelRemote()
			return
		}
		res, err := p.client.Poll(ctx, p.id)
		if ctx.Err() != nil {
			p.cancelRemote()
			return
		}
		if err != nil {
			failures++
			if querier.IsPermanent(err) || !p.opt.Retry.ShouldRetry(failures) {
				if !querier.IsPermanent(err) {
					err = fmt.Errorf("giving up after %d attempts: %w", failures, err)
				}
				logx.Errorf("poller: query=%s failed: %v", p.id, err)
				p.send(ctx, Update{Status: querier.StatusFailed, Err: err, Total: p.store.Len(), Truncated: p.store.Snapshot().Truncated()})
				return
			}
			delay := p.opt.Retry.NextDelay(failures)
			logx.Warnf("poller: query=%s attempt=%d transient error, retry in %s: %v", p.id, failures, delay, err)
			if retry.Sleep(ctx, delay) != nil {
				p.cancelRemote()
				return
			}
			continue
		}
		failures = 0

		added := 0
		if len(res.Records) > 0 {
			ar := p.store.Append(res.Records)
			added = ar.Added
			if ar.Dropped > 0 {
				logx.Warnf("poller: query=%s row cap reached, dropped %d rows", p.id, ar.Dropped)
			}
		}
		snap := p.store.Snapshot()
		u := Update{Added: added, Total: snap.Len(), Truncated: snap.Truncated(), Status: res.Status, Stats: res.Stats}
		switch res.Status {
		case querier.StatusFailed:
			reason := res.Reason
			if reason == "" {
				reason = "query failed"
			}
			u.Err = errors.New(reason)
		case querier.StatusCancelled:
			reason := res.Reason
			if reason == "" {
				reason = "query cancelled by the service"
			}
			u.Err = errors.New(reason)
		}
		if added > 0 || u.Terminal() {
			p.send(ctx, u)
		}
		if u.Terminal() {
			logx.Infof("poller: query=%s %s rows=%d", p.id, res.Status, u.Total)
			return
		}
		if retry.Sleep(ctx, p.opt.Interval) != nil {
			p.cancelRemote()
			return
		}
	}
}

func (p *Poller) send(ctx context.Context, u Update) {
	select {
	case p.updates <- u:
	case <-ctx.Done():
	}
}

// cancelRemote asks the service to stop the query. Failures are logged and
// ignored: locally the query is already abandoned.
func (p *Poller) cancelRemote() {
	ctx, cancel := context.WithTimeout(context.Background(), p.opt.CancelTimeout)
	defer cancel()
	if err := p.client.Cancel(ctx, p.id); err != nil {
		logx.Warnf("poller: cancel query=%s: %v (ignored)", p.id, err)
		return
	}
	logx.Debugf("poller: cancelled query=%s", p.id)
}
