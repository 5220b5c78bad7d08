package query

import (
	"errors"
	"testing"
	"time"

	"cwinsights/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hourRange() model.TimeRange {
	end := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return model.TimeRange{Start: end.Add(-time.Hour), End: end}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		in    Input
		field string
	}{
		{"ok", Input{Text: " fields @message ", LogGroups: []string{" app "}, Range: hourRange()}, ""},
		{"empty text", Input{Text: "  ", LogGroups: []string{"app"}, Range: hourRange()}, "query"},
		{"no groups", Input{Text: "x", LogGroups: []string{" ", ""}, Range: hourRange()}, "log group"},
		{"zero range", Input{Text: "x", LogGroups: []string{"app"}}, "time range"},
		{"reversed", Input{Text: "x", LogGroups: []string{"app"}, Range: model.TimeRange{Start: hourRange().End, End: hourRange().Start}}, "time range"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := tt.in.Validate()
			if tt.field == "" {
				require.NoError(t, err)
				assert.Equal(t, "fields @message", out.Text)
				assert.Equal(t, []string{"app"}, out.LogGroups)
				return
			}
			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.field, ve.Field)
			assert.True(t, IsValidation(err))
		})
	}
}

func TestValidateAllowsEmptyRange(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	_, err := Input{Text: "x", LogGroups: []string{"app"}, Range: model.TimeRange{Start: at, End: at}}.Validate()
	assert.NoError(t, err)
}

func TestSplitLogGroups(t *testing.T) {
	assert.Equal(t, []string{"a", "b/c"}, SplitLogGroups(" a, ,b/c,"))
	assert.Nil(t, SplitLogGroups(" "))
}

func TestToQueryCopiesGroups(t *testing.T) {
	in := Input{Text: "x", LogGroups: []string{"a"}, Range: hourRange()}
	now := time.Unix(100, 0)
	q := in.ToQuery("eu-west-1", "dev", now)
	in.LogGroups[0] = "changed"
	assert.Equal(t, []string{"a"}, q.LogGroups)
	assert.Equal(t, "dev", q.Profile)
	assert.Equal(t, now, q.SubmittedAt)
}

func TestRelativeOptions(t *testing.T) {
	require.Len(t, RelativeOptions, 17)
	assert.Equal(t, "1 minute", RelativeOptions[0].Label)
	assert.Equal(t, 30*24*time.Hour, RelativeOptions[len(RelativeOptions)-1].Span)
	assert.Equal(t, time.Hour, RelativeOptions[DefaultRelativeIndex()].Span)

	i, r := FindRelative("2h")
	assert.Equal(t, "2 hours", r.Label)
	assert.Equal(t, 6, i)

	i, r = FindRelative("90m")
	assert.Equal(t, -1, i)
	assert.Equal(t, 90*time.Minute, r.Span)

	_, r = FindRelative("soon")
	assert.Zero(t, r.Span)

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tr := RelativeOptions[0].Range(now)
	assert.Equal(t, now, tr.End)
	assert.Equal(t, time.Minute, tr.Duration())
}

func TestParseTime(t *testing.T) {
	loc := time.FixedZone("X", 2*3600)
	cases := map[string]time.Time{
		"2024-05-01":           time.Date(2024, 5, 1, 0, 0, 0, 0, loc),
		"2024-05-01 13:45":     time.Date(2024, 5, 1, 13, 45, 0, 0, loc),
		" 2024-05-01 13:45:07": time.Date(2024, 5, 1, 13, 45, 7, 0, loc),
	}
	for in, want := range cases {
		got, err := ParseTime(in, loc)
		require.NoError(t, err, in)
		assert.True(t, want.Equal(got), in)
	}

	_, err := ParseTime("01/05/2024", loc)
	assert.True(t, IsValidation(err))
	_, err = ParseTime("", loc)
	assert.True(t, IsValidation(err))

	ts := time.Date(2024, 5, 1, 11, 45, 7, 0, time.UTC)
	assert.Equal(t, "2024-05-01 13:45:07", FormatTime(ts, loc))
}

func TestAbsoluteRange(t *testing.T) {
	tr, err := AbsoluteRange("2024-05-01", "2024-05-02", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, tr.Duration())

	_, err = AbsoluteRange("2024-05-01", "tomorrow", time.UTC)
	assert.ErrorContains(t, err, "to: ")
	assert.True(t, IsValidation(err))
}
