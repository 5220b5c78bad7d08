// Package file answers queries from a local log file, so the client can be
// used without a cloud account. The log group names the file ("-" is
// stdin). Lines are parsed into fields and delivered on the next Poll; with
// Follow the query keeps running and picks up appended lines.
package file

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"cwinsights/internal/model"
	"cwinsights/internal/parse"
	"cwinsights/internal/querier"
	"cwinsights/internal/util/logx"

	"github.com/google/uuid"
	"github.com/nxadm/tail"
)

type Options struct {
	Follow bool
	// MaxLineBytes bounds a single stdin line.
	MaxLineBytes int
	// Stdin is read for the "-" log group; os.Stdin when nil.
	Stdin io.Reader
}

type Client struct {
	opt   Options
	mu    sync.Mutex
	jobs  map[model.QueryID]*job
	stdin *lineBuffer
}

var _ querier.Client = (*Client)(nil)

func New(opt Options) *Client {
	if opt.MaxLineBytes <= 0 {
		opt.MaxLineBytes = 1024 * 1024
	}
	if opt.Stdin == nil {
		opt.Stdin = os.Stdin
	}
	return &Client{opt: opt, jobs: map[model.QueryID]*job{}, stdin: &lineBuffer{changed: make(chan struct{})}}
}

// lineBuffer keeps every stdin line so that each query over "-" sees the
// whole input, not just what earlier queries left unread.
type lineBuffer struct {
	start sync.Once

	mu      sync.Mutex
	lines   []stdinLine
	changed chan struct{} // closed and replaced on every append
	done    bool
	err     error
}

type stdinLine struct {
	text string
	read time.Time
}

func (b *lineBuffer) fill(r io.Reader, maxBuf int) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxBuf)
	for sc.Scan() {
		b.mu.Lock()
		b.lines = append(b.lines, stdinLine{text: sc.Text(), read: time.Now()})
		close(b.changed)
		b.changed = make(chan struct{})
		b.mu.Unlock()
	}
	b.mu.Lock()
	b.done, b.err = true, sc.Err()
	close(b.changed)
	b.mu.Unlock()
}

// since returns the lines from index i on, a channel closed when more arrive,
// and whether the input has ended.
func (b *lineBuffer) since(i int) ([]stdinLine, <-chan struct{}, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lines[i:], b.changed, b.done, b.err
}

type job struct {
	match  *Matcher
	rng    model.TimeRange
	stream string
	cancel context.CancelFunc

	mu        sync.Mutex
	pending   []model.Record
	done      bool
	cancelled bool
	err       error
	stats     querier.Stats
}

func (c *Client) Submit(ctx context.Context, q model.Query) (model.QueryID, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(q.LogGroups) != 1 {
		return "", querier.Permanent("submit", fmt.Errorf("file backend reads exactly one file, got %d log groups", len(q.LogGroups)))
	}
	path := q.LogGroups[0]
	m, err := Compile(q.Text)
	if err != nil {
		return "", querier.Permanent("submit", err)
	}
	jctx, cancel := context.WithCancel(context.Background())
	j := &job{match: m, rng: q.Range, stream: filepath.Base(path), cancel: cancel}

	if path == "-" {
		j.stream = "stdin"
		c.stdin.start.Do(func() { go c.stdin.fill(c.opt.Stdin, c.opt.MaxLineBytes) })
		go j.replay(jctx, c.stdin)
	} else {
		t, err := tail.TailFile(path, tail.Config{
			Follow:    c.opt.Follow,
			ReOpen:    c.opt.Follow,
			MustExist: true,
			Poll:      true,
			Logger:    tail.DiscardingLogger,
		})
		if err != nil {
			cancel()
			return "", querier.Permanent("submit", fmt.Errorf("open %s: %w", path, err))
		}
		go j.readTail(jctx, t)
	}

	id := model.QueryID(uuid.NewString())
	c.mu.Lock()
	c.jobs[id] = j
	c.mu.Unlock()
	logx.Infof("file: query=%s path=%s follow=%v", id, path, c.opt.Follow)
	return id, nil
}

func (c *Client) job(op string, id model.QueryID) (*job, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	j, ok := c.jobs[id]
	if !ok {
		return nil, querier.Permanent(op, fmt.Errorf("unknown query %s", id))
	}
	return j, nil
}

func (c *Client) Poll(ctx context.Context, id model.QueryID) (querier.PollResult, error) {
	j, err := c.job("poll", id)
	if err != nil {
		return querier.PollResult{}, err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	res := querier.PollResult{Status: querier.StatusRunning, Records: j.pending, Stats: j.stats}
	j.pending = nil
	switch {
	case j.cancelled:
		res.Status, res.Reason = querier.StatusCancelled, "query was cancelled"
	case j.err != nil:
		res.Status, res.Reason = querier.StatusFailed, j.err.Error()
	case j.done:
		res.Status = querier.StatusSucceeded
	}
	if res.Status.Terminal() {
		j.cancel()
		c.mu.Lock()
		delete(c.jobs, id)
		c.mu.Unlock()
	}
	return res, nil
}

func (c *Client) Cancel(ctx context.Context, id model.QueryID) error {
	j, err := c.job("cancel", id)
	if err != nil {
		return err
	}
	j.mu.Lock()
	j.cancelled = true
	j.mu.Unlock()
	j.cancel()
	return nil
}

// Close stops every running query.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, j := range c.jobs {
		j.cancel()
		delete(c.jobs, id)
	}
}

func (j *job) readTail(ctx context.Context, t *tail.Tail) {
	defer t.Cleanup()
	for {
		select {
		case <-ctx.Done():
			_ = t.Stop()
			j.finish(nil)
			return
		case l, ok := <-t.Lines:
			if !ok {
				j.finish(t.Wait())
				return
			}
			if l.Err != nil {
				logx.Warnf("file: %s: %v", j.stream, l.Err)
				continue
			}
			if !j.add(l.Text, l.Time) {
				_ = t.Stop()
				j.finish(nil)
				return
			}
		}
	}
}

func (j *job) replay(ctx context.Context, b *lineBuffer) {
	for next := 0; ; {
		lines, changed, done, err := b.since(next)
		for _, l := range lines {
			if ctx.Err() != nil || !j.add(l.text, l.read) {
				j.finish(nil)
				return
			}
			next++
		}
		if len(lines) > 0 {
			continue
		}
		if done {
			j.finish(err)
			return
		}
		select {
		case <-ctx.Done():
			j.finish(nil)
			return
		case <-changed:
		}
	}
}

// add parses and keeps line when it matches. It returns false once the
// query limit is reached.
func (j *job) add(line string, read time.Time) bool {
	e := parse.Line(line)
	ts := e.Time
	if ts.IsZero() {
		ts = read
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.stats.RecordsScanned++
	j.stats.BytesScanned += float64(len(line) + 1)
	if !e.Time.IsZero() && !inRange(e.Time, j.rng) {
		return true
	}
	if !j.match.Match(line) {
		return true
	}
	rec := make(model.Record, 0, len(e.Fields)+3)
	rec = append(rec,
		model.Field{Name: "@timestamp", Value: ts.UTC().Format("2006-01-02 15:04:05.000")},
		model.Field{Name: "@logStream", Value: j.stream},
	)
	if e.Level != "" {
		rec = append(rec, model.Field{Name: "level", Value: e.Level})
	}
	for _, f := range e.Fields {
		if f.Name == "level" || f.Name == "@timestamp" || f.Name == "@logStream" || f.Name == "@message" {
			continue
		}
		rec = append(rec, f)
	}
	rec = append(rec, model.Field{Name: "@message", Value: line})
	j.pending = append(j.pending, rec)
	j.stats.RecordsMatched++
	return !j.match.LimitReached(int(j.stats.RecordsMatched))
}

func (j *job) finish(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.done = true
	if err != nil && j.err == nil {
		j.err = err
	}
}

func inRange(t time.Time, r model.TimeRange) bool {
	if r.Start.IsZero() && r.End.IsZero() {
		return true
	}
	return !t.Before(r.Start) && !t.After(r.End)
}
