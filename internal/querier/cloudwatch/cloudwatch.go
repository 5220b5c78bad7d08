// Package cloudwatch runs queries against CloudWatch Logs Insights.
//
// GetQueryResults returns everything found so far on every call. The client
// remembers the @ptr of each row it has handed out so that Poll only returns
// new rows. Aggregating queries have no @ptr and their rows change while the
// query runs, so those are delivered once, when the query completes.
package cloudwatch

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"cwinsights/internal/model"
	"cwinsights/internal/querier"
	"cwinsights/internal/util/logx"
	"cwinsights/internal/version"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
	"golang.org/x/time/rate"
)

// API is the part of the CloudWatch Logs client used here.
type API interface {
	StartQuery(ctx context.Context, in *cloudwatchlogs.StartQueryInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.StartQueryOutput, error)
	GetQueryResults(ctx context.Context, in *cloudwatchlogs.GetQueryResultsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.GetQueryResultsOutput, error)
	StopQuery(ctx context.Context, in *cloudwatchlogs.StopQueryInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.StopQueryOutput, error)
}

type Options struct {
	// Endpoint overrides the service endpoint, e.g. a LocalStack URL.
	Endpoint string
	// AccessKeyID and SecretAccessKey replace the profile's credentials when
	// both are set.
	AccessKeyID     string
	SecretAccessKey string
	// RequestsPerSecond paces all calls made by the client. GetQueryResults
	// is limited to 5 TPS per account.
	RequestsPerSecond float64
	// NewAPI builds the SDK client for a profile and region. Tests replace it.
	NewAPI func(ctx context.Context, profile, region string) (API, error)
}

func DefaultOptions() Options {
	return Options{RequestsPerSecond: 4}
}

type Client struct {
	opt     Options
	limiter *rate.Limiter

	mu      sync.Mutex
	apis    map[apiKey]API
	queries map[model.QueryID]*query
}

var _ querier.Client = (*Client)(nil)

type apiKey struct{ profile, region string }

type query struct {
	api  API
	seen map[string]struct{}
}

func New(opt Options) *Client {
	if opt.RequestsPerSecond <= 0 {
		opt.RequestsPerSecond = DefaultOptions().RequestsPerSecond
	}
	c := &Client{
		opt:     opt,
		limiter: rate.NewLimiter(rate.Limit(opt.RequestsPerSecond), 1),
		apis:    map[apiKey]API{},
		queries: map[model.QueryID]*query{},
	}
	if c.opt.NewAPI == nil {
		c.opt.NewAPI = c.sdkClient
	}
	return c
}

func (c *Client) sdkClient(ctx context.Context, profile, region string) (API, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
		config.WithAppID(version.AppID()),
	}
	if profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(profile))
	}
	if c.opt.AccessKeyID != "" && c.opt.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.opt.AccessKeyID, c.opt.SecretAccessKey, ""),
		))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config (profile %q): %w", profile, err)
	}
	return cloudwatchlogs.NewFromConfig(cfg, func(o *cloudwatchlogs.Options) {
		if c.opt.Endpoint != "" {
			o.BaseEndpoint = aws.String(c.opt.Endpoint)
		}
	}), nil
}

// api returns the cached SDK client for the profile and region.
func (c *Client) api(ctx context.Context, profile, region string) (API, error) {
	key := apiKey{profile, region}
	c.mu.Lock()
	a, ok := c.apis[key]
	c.mu.Unlock()
	if ok {
		return a, nil
	}
	a, err := c.opt.NewAPI(ctx, profile, region)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.apis[key]; ok {
		return prev, nil
	}
	c.apis[key] = a
	return a, nil
}

func (c *Client) Submit(ctx context.Context, q model.Query) (model.QueryID, error) {
	if q.Region == "" {
		return "", querier.Permanent("submit", fmt.Errorf("no region"))
	}
	a, err := c.api(ctx, q.Profile, q.Region)
	if err != nil {
		return "", querier.Permanent("submit", err)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}
	out, err := a.StartQuery(ctx, &cloudwatchlogs.StartQueryInput{
		LogGroupNames: q.LogGroups,
		QueryString:   aws.String(q.Text),
		StartTime:     aws.Int64(q.Range.Start.Unix()),
		EndTime:       aws.Int64(q.Range.End.Unix()),
	})
	if err != nil {
		return "", classify("submit", err)
	}
	if out.QueryId == nil || *out.QueryId == "" {
		return "", querier.Permanent("submit", fmt.Errorf("service returned no query id"))
	}
	id := model.QueryID(*out.QueryId)
	c.mu.Lock()
	c.queries[id] = &query{api: a, seen: map[string]struct{}{}}
	c.mu.Unlock()
	logx.Infof("cloudwatch: started query=%s region=%s profile=%s groups=%d", id, q.Region, q.Profile, len(q.LogGroups))
	return id, nil
}

func (c *Client) query(op string, id model.QueryID) (*query, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	q, ok := c.queries[id]
	if !ok {
		return nil, querier.Permanent(op, fmt.Errorf("unknown query %s", id))
	}
	return q, nil
}

func (c *Client) Poll(ctx context.Context, id model.QueryID) (querier.PollResult, error) {
	q, err := c.query("poll", id)
	if err != nil {
		return querier.PollResult{}, err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return querier.PollResult{}, err
	}
	out, err := q.api.GetQueryResults(ctx, &cloudwatchlogs.GetQueryResultsInput{QueryId: aws.String(string(id))})
	if err != nil {
		return querier.PollResult{}, classify("poll", err)
	}
	status, reason := mapStatus(out.Status)
	res := querier.PollResult{Status: status, Reason: reason, Stats: mapStats(out.Statistics)}

	// Poll is only called by one poller per query.
	res.Records = q.fresh(toRecords(out.Results), status == querier.StatusSucceeded)
	if status.Terminal() {
		c.forget(id)
	}
	return res, nil
}

func (c *Client) Cancel(ctx context.Context, id model.QueryID) error {
	q, err := c.query("cancel", id)
	if err != nil {
		return err
	}
	defer c.forget(id)
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	if _, err := q.api.StopQuery(ctx, &cloudwatchlogs.StopQueryInput{QueryId: aws.String(string(id))}); err != nil {
		return classify("cancel", err)
	}
	logx.Infof("cloudwatch: stopped query=%s", id)
	return nil
}

func (c *Client) forget(id model.QueryID) {
	c.mu.Lock()
	delete(c.queries, id)
	c.mu.Unlock()
}

// fresh returns the records not returned before. Records without a pointer
// are only returned once the query is complete.
func (q *query) fresh(recs []record, complete bool) []model.Record {
	var out []model.Record
	for _, r := range recs {
		if r.ptr == "" {
			if complete {
				out = append(out, r.fields)
			}
			continue
		}
		if _, dup := q.seen[r.ptr]; dup {
			continue
		}
		q.seen[r.ptr] = struct{}{}
		out = append(out, r.fields)
	}
	return out
}

func mapStatus(s types.QueryStatus) (querier.Status, string) {
	switch s {
	case types.QueryStatusComplete:
		return querier.StatusSucceeded, ""
	case types.QueryStatusFailed:
		return querier.StatusFailed, "query failed"
	case types.QueryStatusCancelled:
		return querier.StatusCancelled, "query cancelled"
	case types.QueryStatusTimeout:
		return querier.StatusFailed, "query timed out after 60 minutes"
	case types.QueryStatusUnknown:
		return querier.StatusFailed, "query status unknown"
	}
	// Scheduled, Running and anything newer
	return querier.StatusRunning, ""
}

func mapStats(s *types.QueryStatistics) querier.Stats {
	if s == nil {
		return querier.Stats{}
	}
	return querier.Stats{
		RecordsMatched: s.RecordsMatched,
		RecordsScanned: s.RecordsScanned,
		BytesScanned:   s.BytesScanned,
	}
}

type record struct {
	ptr    string
	fields model.Record
}

// toRecords converts result rows, dropping @ptr. Unnamed fields are called
// "Column N" after their position.
func toRecords(rows [][]types.ResultField) []record {
	out := make([]record, 0, len(rows))
	for _, row := range rows {
		var r record
		for _, f := range row {
			name := aws.ToString(f.Field)
			if name == "@ptr" {
				r.ptr = aws.ToString(f.Value)
				continue
			}
			if strings.TrimSpace(name) == "" {
				name = fmt.Sprintf("Column %d", len(r.fields)+1)
			}
			r.fields = append(r.fields, model.Field{Name: name, Value: aws.ToString(f.Value)})
		}
		if len(r.fields) == 0 {
			continue
		}
		out = append(out, r)
	}
	return out
}

