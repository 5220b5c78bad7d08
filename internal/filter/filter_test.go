package filter

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cwinsights/internal/model"
	"cwinsights/internal/store"
)

func seqs(rows []model.Row) []uint64 {
	out := make([]uint64, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Seq)
	}
	return out
}

func levelStore(levels ...string) *store.Store {
	s := store.New(store.Options{})
	recs := make([]model.Record, 0, len(levels))
	for i, l := range levels {
		rec := model.Record{{Name: "@message", Value: "event " + string(rune('a'+i))}}
		if l != "" {
			rec = append(rec, model.Field{Name: "level", Value: l})
		}
		recs = append(recs, rec)
	}
	s.Append(recs)
	return s
}

func TestExcludeDebugScenario(t *testing.T) {
	s := levelStore("INFO", "DEBUG", "WARN", "DEBUG", "ERROR")
	e := NewEngine()
	require.NoError(t, e.AddRule(Rule{Field: "level", Mode: Exclude, Pattern: "DEBUG"}))

	got := seqs(e.Visible(s.Snapshot()))
	if diff := cmp.Diff([]uint64{0, 2, 4}, got); diff != "" {
		t.Fatalf("visible rows (-want +got):\n%s", diff)
	}
}

func TestMatchIsCaseInsensitiveSubstring(t *testing.T) {
	row := model.NewRow(0, model.Record{{Name: "@message", Value: "Slow Request to /v1/Items"}})
	assert.True(t, Rule{Field: "@message", Mode: Include, Pattern: "slow req"}.Passes(row))
	assert.True(t, Rule{Field: "@message", Mode: Include, Pattern: "ITEMS"}.Passes(row))
	assert.False(t, Rule{Field: "@message", Mode: Exclude, Pattern: "items"}.Passes(row))
	assert.True(t, Rule{Mode: Include, Pattern: "v1"}.Passes(row), "any-field rule")
}

func TestAnyFieldDoesNotSpanFields(t *testing.T) {
	row := model.NewRow(0, model.Record{{Name: "user", Value: "alice a"}, {Name: "action", Value: "b login"}})
	assert.False(t, Rule{Mode: Include, Pattern: "a b"}.Passes(row))
	assert.True(t, Rule{Mode: Exclude, Pattern: "a b"}.Passes(row))
	assert.True(t, Rule{Mode: Include, Pattern: "b log"}.Passes(row))
	assert.NoError(t, ParseQuick(`"a b"`)[0].Validate())
}

func TestMissingFieldProperty(t *testing.T) {
	rows := []model.Row{
		model.NewRow(0, model.Record{}),
		model.NewRow(1, model.Record{{Name: "other", Value: "level"}}),
		model.NewRow(2, model.Record{{Name: "LEVEL", Value: "debug"}}),
	}
	patterns := []string{"debug", "x", "level", " "}
	for _, row := range rows {
		for _, p := range patterns {
			assert.True(t, Rule{Field: "level", Mode: Exclude, Pattern: p}.Passes(row), "exclude must keep row %d for %q", row.Seq, p)
			assert.False(t, Rule{Field: "level", Mode: Include, Pattern: p}.Passes(row), "include must hide row %d for %q", row.Seq, p)
		}
	}
}

func TestVisibleIsIdempotent(t *testing.T) {
	s := levelStore("INFO", "DEBUG", "", "WARN")
	e := NewEngine()
	require.NoError(t, e.AddRule(Rule{Field: "level", Mode: Exclude, Pattern: "debug"}))
	first := seqs(e.Visible(s.Snapshot()))
	second := seqs(e.Visible(s.Snapshot()))
	assert.Equal(t, first, second)

	fresh := NewEngine()
	require.NoError(t, fresh.AddRule(Rule{Field: "level", Mode: Exclude, Pattern: "debug"}))
	assert.Equal(t, first, seqs(fresh.Visible(s.Snapshot())), "memoized result must equal a fresh computation")
}

func TestAddThenRemoveRestoresView(t *testing.T) {
	s := levelStore("INFO", "DEBUG", "", "WARN", "DEBUG")
	rules := []Rule{
		{Field: "level", Mode: Include, Pattern: "o"},
		{Field: "level", Mode: Exclude, Pattern: "debug"},
		{Mode: Include, Pattern: "event"},
		{Field: "nope", Mode: Include, Pattern: "x"},
	}
	for _, base := range [][]Rule{nil, {{Field: "level", Mode: Exclude, Pattern: "warn"}}} {
		for _, r := range rules {
			e := NewEngine()
			require.NoError(t, e.SetRules(base))
			before := seqs(e.Visible(s.Snapshot()))
			require.NoError(t, e.AddRule(r))
			_ = e.Visible(s.Snapshot())
			require.True(t, e.RemoveRule(r))
			assert.Equal(t, before, seqs(e.Visible(s.Snapshot())), "rule %s", r)
		}
	}
}

func TestVisibleIsOrderPreservingSubsequence(t *testing.T) {
	s := levelStore("DEBUG", "INFO", "DEBUG", "INFO", "INFO", "")
	e := NewEngine()
	require.NoError(t, e.AddRule(Rule{Field: "level", Mode: Include, Pattern: "info"}))
	vis := e.Visible(s.Snapshot())
	for i := 1; i < len(vis); i++ {
		assert.Less(t, vis[i-1].Seq, vis[i].Seq)
	}
	assert.Equal(t, []uint64{1, 3, 4}, seqs(vis))
}

func TestVisibleTracksStoreGrowth(t *testing.T) {
	s := levelStore("INFO", "DEBUG")
	e := NewEngine()
	require.NoError(t, e.AddRule(Rule{Field: "level", Mode: Exclude, Pattern: "debug"}))
	early := e.Visible(s.Snapshot())
	assert.Equal(t, []uint64{0}, seqs(early))

	s.Append([]model.Record{
		{{Name: "level", Value: "WARN"}},
		{{Name: "level", Value: "DEBUG"}},
		{{Name: "level", Value: "ERROR"}},
	})
	assert.Equal(t, []uint64{0, 2, 4}, seqs(e.Visible(s.Snapshot())))
	assert.Equal(t, []uint64{0}, seqs(early), "earlier results must not change")
}

func TestVisibleRecomputesForNewStore(t *testing.T) {
	e := NewEngine()
	a := levelStore("INFO", "INFO", "INFO")
	assert.Len(t, e.Visible(a.Snapshot()), 3)
	b := levelStore("INFO")
	assert.Len(t, e.Visible(b.Snapshot()), 1)
}

func TestVisibleDoesNotMutateStore(t *testing.T) {
	s := levelStore("INFO", "DEBUG")
	e := NewEngine()
	_ = e.Visible(s.Snapshot())
	require.NoError(t, e.AddRule(Rule{Field: "level", Mode: Include, Pattern: "debug"}))
	_ = e.Visible(s.Snapshot())
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, []uint64{0, 1}, seqs(s.Snapshot().Rows()))
}

func TestAddRuleValidation(t *testing.T) {
	e := NewEngine()
	assert.ErrorIs(t, e.AddRule(Rule{Field: "level", Mode: Include}), ErrEmptyPattern)
	assert.ErrorIs(t, e.AddRule(Rule{Field: "level", Mode: Mode(9), Pattern: "x"}), ErrInvalidMode)
	assert.ErrorIs(t, e.AddRule(Rule{Mode: Include, Pattern: "a\x00b"}), ErrBadPattern)
	assert.Empty(t, e.Rules())
	assert.False(t, e.RemoveRule(Rule{Field: "level", Mode: Include, Pattern: "x"}))
}

func TestRuleChangesBumpVersion(t *testing.T) {
	e := NewEngine()
	v := e.Version()
	require.NoError(t, e.AddRule(Rule{Mode: Include, Pattern: "x"}))
	assert.Greater(t, e.Version(), v)
	v = e.Version()
	e.RemoveRule(Rule{Mode: Include, Pattern: "x"})
	assert.Greater(t, e.Version(), v)
}

func TestExpression(t *testing.T) {
	s := store.New(store.Options{})
	s.Append([]model.Record{
		{{Name: "status", Value: "200"}, {Name: "@message", Value: "ok"}},
		{{Name: "status", Value: "503"}, {Name: "@message", Value: "unavailable"}},
		{{Name: "@message", Value: "no status"}},
	})
	e := NewEngine()
	require.NoError(t, e.SetExpression("status >= 500"))
	assert.Equal(t, []uint64{1}, seqs(e.Visible(s.Snapshot())))

	require.NoError(t, e.SetExpression("[@message] == 'ok'"))
	assert.Equal(t, []uint64{0}, seqs(e.Visible(s.Snapshot())))

	require.Error(t, e.SetExpression("status >="))
	assert.Equal(t, "[@message] == 'ok'", e.Expression(), "failed parse keeps the previous expression")

	require.NoError(t, e.SetExpression(""))
	assert.Len(t, e.Visible(s.Snapshot()), 3)
}
