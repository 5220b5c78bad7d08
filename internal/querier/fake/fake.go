// Package fake is an offline query service producing synthetic rows shaped
// like CloudWatch Logs Insights results. Rows are delivered a page per poll
// so the UI shows results streaming in.
package fake

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"cwinsights/internal/model"
	"cwinsights/internal/querier"
	"cwinsights/internal/util/logx"

	"github.com/google/uuid"
)

type Options struct {
	// Rows generated per query before "limit N" in the query text applies.
	Rows int
	// PageSize is the number of rows returned per Poll.
	PageSize int
	// Seed makes the generated rows reproducible.
	Seed int64
	// SubmitErr, when set, can fail a submission.
	SubmitErr func(q model.Query) error
	// PollErr, when set, can fail poll number n (1-based) of a query.
	PollErr func(id model.QueryID, n int) error
}

func DefaultOptions() Options {
	return Options{Rows: 150, PageSize: 40, Seed: 1}
}

type job struct {
	rows      []model.Record
	next      int
	polls     int
	cancelled bool
}

type Client struct {
	opt  Options
	mu   sync.Mutex
	jobs map[model.QueryID]*job
}

var _ querier.Client = (*Client)(nil)

func New(opt Options) *Client {
	if opt.Rows <= 0 {
		opt.Rows = DefaultOptions().Rows
	}
	if opt.PageSize <= 0 {
		opt.PageSize = DefaultOptions().PageSize
	}
	return &Client{opt: opt, jobs: map[model.QueryID]*job{}}
}

var limitRe = regexp.MustCompile(`(?i)\|\s*limit\s+(\d+)`)

func (c *Client) Submit(ctx context.Context, q model.Query) (model.QueryID, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if c.opt.SubmitErr != nil {
		if err := c.opt.SubmitErr(q); err != nil {
			return "", err
		}
	}
	n := c.opt.Rows
	if m := limitRe.FindStringSubmatch(q.Text); m != nil {
		if l, err := strconv.Atoi(m[1]); err == nil && l < n {
			n = l
		}
	}
	id := model.QueryID(uuid.NewString())
	group := "synthetic"
	if len(q.LogGroups) > 0 {
		group = q.LogGroups[0]
	}
	rows := Generate(n, q.Range, group, c.opt.Seed)
	c.mu.Lock()
	c.jobs[id] = &job{rows: rows}
	c.mu.Unlock()
	logx.Debugf("fake: submitted query=%s rows=%d", id, n)
	return id, nil
}

func (c *Client) Poll(ctx context.Context, id model.QueryID) (querier.PollResult, error) {
	if err := ctx.Err(); err != nil {
		return querier.PollResult{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	j, ok := c.jobs[id]
	if !ok {
		return querier.PollResult{}, querier.Permanent("poll", fmt.Errorf("unknown query %s", id))
	}
	j.polls++
	if c.opt.PollErr != nil {
		if err := c.opt.PollErr(id, j.polls); err != nil {
			return querier.PollResult{}, err
		}
	}
	if j.cancelled {
		return querier.PollResult{Status: querier.StatusCancelled, Reason: "query was cancelled"}, nil
	}
	end := j.next + c.opt.PageSize
	if end > len(j.rows) {
		end = len(j.rows)
	}
	res := querier.PollResult{Status: querier.StatusRunning, Records: j.rows[j.next:end:end]}
	j.next = end
	if j.next == len(j.rows) {
		res.Status = querier.StatusSucceeded
	}
	res.Stats = querier.Stats{
		RecordsMatched: float64(j.next),
		RecordsScanned: float64(j.next * 3),
		BytesScanned:   float64(j.next * 512),
	}
	return res, nil
}

func (c *Client) Cancel(ctx context.Context, id model.QueryID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	j, ok := c.jobs[id]
	if !ok {
		return querier.Permanent("cancel", fmt.Errorf("unknown query %s", id))
	}
	j.cancelled = true
	return nil
}

var (
	levels     = []string{"Verbose", "Debug", "Information", "Warning", "Error", "Fatal"}
	components = []string{"Auth", "Billing", "Profile", "Reporting", "Notifications", "Edge", "Scheduler", "Analytics"}
	templates  = []string{
		"Handled {Request} for {User} in {Elapsed}ms",
		"Publishing {Event} to {Destination}",
		"Retry #{RetryCount} for {Operation} due to {Reason}",
		"Processing {Batch} with {RecordCount} records",
		"Cache miss for {Resource} in shard {Shard}",
		"Persisted {Entity} version {Version}",
	}
	reasons = []string{"Timeout", "Throttling", "DependencyFailure", "ValidationError", "ColdStart", "UnhealthyNode"}
	regions = []string{"us-east-1", "eu-west-1", "ap-southeast-2", "sa-east-1"}
)

// Generate builds n records spread evenly over tr, oldest first.
func Generate(n int, tr model.TimeRange, group string, seed int64) []model.Record {
	r := rand.New(rand.NewSource(seed))
	if tr.End.IsZero() {
		tr.End = time.Now()
	}
	if tr.Start.IsZero() || !tr.Start.Before(tr.End) {
		tr.Start = tr.End.Add(-time.Hour)
	}
	step := tr.Duration() / time.Duration(n+1)
	out := make([]model.Record, 0, n)
	for i := 0; i < n; i++ {
		ts := tr.Start.Add(step * time.Duration(i+1)).UTC()
		comp := components[i%len(components)]
		level := levels[(i*7)%len(levels)]
		tpl := templates[(i*11)%len(templates)]
		reqID := fmt.Sprintf("req-%05d", i)
		body := map[string]any{
			"@t":  ts.Format(time.RFC3339Nano),
			"@mt": tpl,
			"@l":  level,
			"Request": map[string]any{
				"Id":      reqID,
				"Route":   "/" + strings.ToLower(comp) + "/execute",
				"Elapsed": 25 + r.Intn(275),
			},
			"User": map[string]any{
				"Id":     fmt.Sprintf("user-%04d", r.Intn(500)),
				"Region": regions[r.Intn(len(regions))],
			},
			"Reason": reasons[r.Intn(len(reasons))],
		}
		if level == "Error" || level == "Fatal" {
			body["@x"] = "System.Exception: simulated failure in " + comp
		}
		b, _ := json.Marshal(body)
		out = append(out, model.Record{
			{Name: "@timestamp", Value: ts.Format("2006-01-02 15:04:05.000")},
			{Name: "@logStream", Value: fmt.Sprintf("%s/%s/%d", group, strings.ToLower(comp), i%3)},
			{Name: "level", Value: level},
			{Name: "@message", Value: string(b)},
			{Name: "@m", Value: fmt.Sprintf("%s %s (%s)", comp, tpl, reqID)},
		})
	}
	return out
}
