package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"cwinsights/internal/model"
	"cwinsights/internal/querier"
	"cwinsights/internal/retry"
	"cwinsights/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type step struct {
	res querier.PollResult
	err error
}

// scripted replays steps in order and repeats the last one.
type scripted struct {
	mu      sync.Mutex
	steps   []step
	polls   int
	cancels atomic.Int32
}

func (s *scripted) Submit(ctx context.Context, q model.Query) (model.QueryID, error) {
	return "q-1", nil
}

func (s *scripted) Poll(ctx context.Context, id model.QueryID) (querier.PollResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.polls
	if i >= len(s.steps) {
		i = len(s.steps) - 1
	}
	s.polls++
	return s.steps[i].res, s.steps[i].err
}

func (s *scripted) Cancel(ctx context.Context, id model.QueryID) error {
	s.cancels.Add(1)
	return nil
}

func (s *scripted) pollCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polls
}

func recs(msgs ...string) []model.Record {
	out := make([]model.Record, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, model.Record{{Name: "@message", Value: m}})
	}
	return out
}

func fastOptions(attempts int) Options {
	return Options{
		Interval:      time.Millisecond,
		Retry:         retry.Policy{MaxAttempts: attempts, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2},
		CancelTimeout: time.Second,
	}
}

func collect(t *testing.T, p *Poller) []Update {
	t.Helper()
	var out []Update
	timeout := time.After(5 * time.Second)
	for {
		select {
		case u, ok := <-p.Updates():
			if !ok {
				<-p.Done()
				return out
			}
			out = append(out, u)
		case <-timeout:
			t.Fatal("poller did not finish")
		}
	}
}

func TestPollsUntilSucceeded(t *testing.T) {
	c := &scripted{steps: []step{
		{res: querier.PollResult{Status: querier.StatusRunning, Records: recs("a", "b", "c")}},
		{res: querier.PollResult{Status: querier.StatusRunning}},
		{res: querier.PollResult{Status: querier.StatusSucceeded, Records: recs("d", "e"), Stats: querier.Stats{RecordsMatched: 5}}},
	}}
	st := store.New(store.Options{})
	p := New(c, st, "q-1", fastOptions(3))
	p.Start(context.Background())

	ups := collect(t, p)
	require.Len(t, ups, 2)
	assert.Equal(t, Update{Added: 3, Total: 3, Status: querier.StatusRunning}, ups[0])
	assert.Equal(t, 2, ups[1].Added)
	assert.Equal(t, 5, ups[1].Total)
	assert.True(t, ups[1].Terminal())
	assert.Equal(t, querier.StatusSucceeded, ups[1].Status)
	assert.Equal(t, float64(5), ups[1].Stats.RecordsMatched)
	assert.NoError(t, ups[1].Err)

	snap := st.Snapshot()
	require.Equal(t, 5, snap.Len())
	for i := 0; i < 5; i++ {
		assert.Equal(t, uint64(i), snap.At(i).Seq)
	}
	msg, ok := snap.At(3).Get("@message")
	assert.True(t, ok)
	assert.Equal(t, "d", msg)
	assert.Equal(t, 3, c.pollCount())
	assert.Zero(t, c.cancels.Load())
}

func TestTransientErrorsAreRetried(t *testing.T) {
	flaky := querier.Transient("poll", errors.New("throttled"))
	c := &scripted{steps: []step{
		{err: flaky},
		{err: flaky},
		{res: querier.PollResult{Status: querier.StatusSucceeded, Records: recs("x")}},
	}}
	st := store.New(store.Options{})
	p := New(c, st, "q-1", fastOptions(3))
	p.Start(context.Background())

	ups := collect(t, p)
	require.Len(t, ups, 1)
	assert.Equal(t, querier.StatusSucceeded, ups[0].Status)
	assert.Equal(t, 1, st.Len())
}

func TestRetryBudgetExhaustedKeepsRows(t *testing.T) {
	flaky := querier.Transient("poll", errors.New("connection reset"))
	c := &scripted{steps: []step{
		{res: querier.PollResult{Status: querier.StatusRunning, Records: recs("a", "b")}},
		{err: flaky},
	}}
	st := store.New(store.Options{})
	p := New(c, st, "q-1", fastOptions(3))
	p.Start(context.Background())

	ups := collect(t, p)
	require.Len(t, ups, 2)
	last := ups[1]
	assert.Equal(t, querier.StatusFailed, last.Status)
	assert.True(t, querier.IsTransient(last.Err))
	assert.Contains(t, last.Err.Error(), "giving up after 3 attempts")
	assert.Equal(t, 2, last.Total)
	assert.Equal(t, 2, st.Len())
	assert.Equal(t, 4, c.pollCount())
}

func TestPermanentErrorFailsImmediately(t *testing.T) {
	c := &scripted{steps: []step{{err: querier.Permanent("poll", errors.New("access denied"))}}}
	st := store.New(store.Options{})
	p := New(c, st, "q-1", fastOptions(5))
	p.Start(context.Background())

	ups := collect(t, p)
	require.Len(t, ups, 1)
	assert.Equal(t, querier.StatusFailed, ups[0].Status)
	assert.True(t, querier.IsPermanent(ups[0].Err))
	assert.Equal(t, 1, c.pollCount())
}

func TestServiceFailureCarriesReason(t *testing.T) {
	c := &scripted{steps: []step{
		{res: querier.PollResult{Status: querier.StatusRunning, Records: recs("a")}},
		{res: querier.PollResult{Status: querier.StatusFailed, Reason: "query timed out"}},
	}}
	st := store.New(store.Options{})
	p := New(c, st, "q-1", fastOptions(1))
	p.Start(context.Background())

	ups := collect(t, p)
	require.Len(t, ups, 2)
	assert.EqualError(t, ups[1].Err, "query timed out")
	assert.Equal(t, 1, st.Len())
}

// blocking returns rows only after the caller's context is cancelled.
type blocking struct {
	scripted
	entered chan struct{}
	once    sync.Once
}

func (b *blocking) Poll(ctx context.Context, id model.QueryID) (querier.PollResult, error) {
	b.once.Do(func() { close(b.entered) })
	<-ctx.Done()
	return querier.PollResult{Status: querier.StatusRunning, Records: recs("late")}, nil
}

func TestStopDiscardsInFlightPoll(t *testing.T) {
	c := &blocking{entered: make(chan struct{})}
	st := store.New(store.Options{})
	p := New(c, st, "q-1", fastOptions(3))
	p.Start(context.Background())

	<-c.entered
	p.Stop()
	ups := collect(t, p)
	assert.Empty(t, ups)
	assert.Zero(t, st.Len())
	assert.Equal(t, int32(1), c.cancels.Load())
}

func TestStopWhileWaiting(t *testing.T) {
	c := &scripted{steps: []step{{res: querier.PollResult{Status: querier.StatusRunning, Records: recs("a")}}}}
	st := store.New(store.Options{})
	opt := fastOptions(3)
	opt.Interval = time.Hour
	p := New(c, st, "q-1", opt)
	p.Start(context.Background())

	u := <-p.Updates()
	assert.Equal(t, 1, u.Added)
	p.Stop()
	collect(t, p)
	assert.Equal(t, 1, st.Len())
	assert.Equal(t, 1, c.pollCount())
	assert.Equal(t, int32(1), c.cancels.Load())
}

func TestStopBeforeStart(t *testing.T) {
	p := New(&scripted{}, store.New(store.Options{}), "q-1", fastOptions(1))
	p.Stop()
	p.Start(context.Background())
	assert.Empty(t, collect(t, p))
}

func TestParentContextCancel(t *testing.T) {
	c := &scripted{steps: []step{{res: querier.PollResult{Status: querier.StatusRunning}}}}
	ctx, cancel := context.WithCancel(context.Background())
	p := New(c, store.New(store.Options{}), "q-1", fastOptions(1))
	p.Start(ctx)
	cancel()
	collect(t, p)
	assert.Equal(t, int32(1), c.cancels.Load())
}
