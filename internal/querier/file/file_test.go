package file

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cwinsights/internal/model"
	"cwinsights/internal/querier"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `{"ts":"2024-05-01T11:10:00Z","level":"info","msg":"server started","port":8080}
{"ts":"2024-05-01T11:20:00Z","level":"debug","msg":"cache miss"}
time=2024-05-01T11:30:00Z level=error msg="db timeout" table=users
{"ts":"2023-01-01T00:00:00Z","level":"info","msg":"too old"}
plain line without time
`

func writeSample(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "app.log")
	require.NoError(t, os.WriteFile(p, []byte(sample), 0o644))
	return p
}

func window() model.TimeRange {
	return model.TimeRange{
		Start: time.Date(2024, 5, 1, 11, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func run(t *testing.T, c *Client, q model.Query) ([]model.Record, querier.PollResult) {
	t.Helper()
	id, err := c.Submit(context.Background(), q)
	require.NoError(t, err)
	var all []model.Record
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		res, err := c.Poll(context.Background(), id)
		require.NoError(t, err)
		all = append(all, res.Records...)
		if res.Status.Terminal() {
			return all, res
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("file query did not finish")
	return nil, querier.PollResult{}
}

func value(rec model.Record, name string) string {
	for _, f := range rec {
		if f.Name == name {
			return f.Value
		}
	}
	return ""
}

func TestReadsWholeFile(t *testing.T) {
	path := writeSample(t)
	c := New(Options{})
	recs, res := run(t, c, model.Query{Text: "*", LogGroups: []string{path}, Range: window()})

	assert.Equal(t, querier.StatusSucceeded, res.Status)
	require.Len(t, recs, 4)
	assert.Equal(t, "2024-05-01 11:10:00.000", value(recs[0], "@timestamp"))
	assert.Equal(t, "app.log", value(recs[0], "@logStream"))
	assert.Equal(t, "INFO", value(recs[0], "level"))
	assert.Equal(t, "8080", value(recs[0], "port"))
	assert.Equal(t, "users", value(recs[2], "table"))
	assert.Equal(t, "plain line without time", value(recs[3], "@message"))
	assert.Equal(t, "@message", recs[0][len(recs[0])-1].Name)
	assert.Equal(t, float64(5), res.Stats.RecordsScanned)
	assert.Equal(t, float64(4), res.Stats.RecordsMatched)
}

func TestSubstringAndLimit(t *testing.T) {
	path := writeSample(t)
	c := New(Options{})

	recs, _ := run(t, c, model.Query{Text: "TIMEOUT", LogGroups: []string{path}, Range: window()})
	require.Len(t, recs, 1)
	assert.Equal(t, "db timeout", value(recs[0], "msg"))

	recs, _ = run(t, c, model.Query{Text: "fields @message | limit 2", LogGroups: []string{path}, Range: window()})
	assert.Len(t, recs, 2)

	recs, _ = run(t, c, model.Query{Text: "fields @message | filter @message like /cache|server/", LogGroups: []string{path}, Range: window()})
	assert.Len(t, recs, 2)
}

func TestStdin(t *testing.T) {
	c := New(Options{Stdin: strings.NewReader("a=1 b=2\nhello\n")})
	recs, res := run(t, c, model.Query{Text: "", LogGroups: []string{"-"}})
	assert.Equal(t, querier.StatusSucceeded, res.Status)
	require.Len(t, recs, 2)
	assert.Equal(t, "stdin", value(recs[0], "@logStream"))
	assert.Equal(t, "2", value(recs[0], "b"))
}

func TestStdinRerunSeesWholeInput(t *testing.T) {
	c := New(Options{Stdin: strings.NewReader("alpha\nbeta\ngamma\n")})
	first, res := run(t, c, model.Query{LogGroups: []string{"-"}})
	require.Equal(t, querier.StatusSucceeded, res.Status)
	require.Len(t, first, 3)

	second, res := run(t, c, model.Query{LogGroups: []string{"-"}})
	assert.Equal(t, querier.StatusSucceeded, res.Status)
	assert.Len(t, second, 3)

	only, _ := run(t, c, model.Query{Text: "beta", LogGroups: []string{"-"}})
	require.Len(t, only, 1)
	assert.Equal(t, "beta", value(only[0], "@message"))
}

func TestStdinWaitsForMoreInput(t *testing.T) {
	pr, pw := io.Pipe()
	c := New(Options{Stdin: pr})
	id, err := c.Submit(context.Background(), model.Query{LogGroups: []string{"-"}})
	require.NoError(t, err)

	_, err = io.WriteString(pw, "one\n")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		res, err := c.Poll(context.Background(), id)
		return err == nil && res.Status == querier.StatusRunning && len(res.Records) == 1
	}, 5*time.Second, 5*time.Millisecond)

	require.NoError(t, pw.Close())
	require.Eventually(t, func() bool {
		res, err := c.Poll(context.Background(), id)
		return err == nil && res.Status == querier.StatusSucceeded
	}, 5*time.Second, 5*time.Millisecond)
}

func TestFollowUntilCancelled(t *testing.T) {
	path := writeSample(t)
	c := New(Options{Follow: true})
	id, err := c.Submit(context.Background(), model.Query{LogGroups: []string{path}, Range: window()})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		res, err := c.Poll(context.Background(), id)
		return err == nil && res.Status == querier.StatusRunning && len(res.Records) > 0
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, c.Cancel(context.Background(), id))
	res, err := c.Poll(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, querier.StatusCancelled, res.Status)
	c.Close()
}

func TestSubmitErrors(t *testing.T) {
	c := New(Options{})
	_, err := c.Submit(context.Background(), model.Query{LogGroups: []string{"a", "b"}})
	assert.True(t, querier.IsPermanent(err))

	_, err = c.Submit(context.Background(), model.Query{LogGroups: []string{filepath.Join(t.TempDir(), "missing.log")}})
	assert.True(t, querier.IsPermanent(err))

	_, err = c.Submit(context.Background(), model.Query{Text: "filter @message like /(/", LogGroups: []string{writeSample(t)}})
	assert.True(t, querier.IsPermanent(err))

	_, err = c.Poll(context.Background(), "nope")
	assert.True(t, querier.IsPermanent(err))
}

func TestCompile(t *testing.T) {
	tests := []struct {
		text  string
		line  string
		match bool
	}{
		{"", "anything", true},
		{"*", "anything", true},
		{"Error", "an ERROR happened", true},
		{"error", "all good", false},
		{`fields @message | filter @message like "a.b"`, "xa.by", true},
		{`fields @message | filter @message like "a.b"`, "axb", false},
		{`filter @message like /^GET\s/ and @message like 'ok'`, "GET /x ok", true},
		{`filter @message like /^GET\s/ and @message like 'ok'`, "POST /x ok", false},
		{"fields @timestamp | sort @timestamp desc", "anything", true},
	}
	for _, tt := range tests {
		m, err := Compile(tt.text)
		require.NoError(t, err, tt.text)
		assert.Equal(t, tt.match, m.Match(tt.line), "%s / %s", tt.text, tt.line)
	}

	m, err := Compile("fields @message | limit 3")
	require.NoError(t, err)
	assert.False(t, m.LimitReached(2))
	assert.True(t, m.LimitReached(3))
}
