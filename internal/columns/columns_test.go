package columns

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cwinsights/internal/model"
)

func TestDiscoverPutsPreferredFirst(t *testing.T) {
	p := New()
	assert.True(t, p.Discover([]string{"requestId", "@message", "@ptr", "@timestamp"}))
	assert.False(t, p.Discover([]string{"@message"}))
	assert.True(t, p.Discover([]string{"level", "duration"}))
	assert.Equal(t, []string{"@timestamp", "level", "@message", "requestId", "duration"}, p.All())
}

func TestProjectBlanksMissingAndHidesUnprojected(t *testing.T) {
	p := New()
	p.Discover([]string{"@timestamp", "@message", "level"})
	require.NoError(t, p.Hide("@message"))

	row := model.NewRow(0, model.Record{{Name: "@message", Value: "hello"}, {Name: "level", Value: "INFO"}})
	assert.Equal(t, []string{"", "INFO"}, p.Project(row))
}

func TestCannotHideLastColumn(t *testing.T) {
	p := New()
	p.Discover([]string{"a", "b"})
	require.NoError(t, p.Toggle("a"))
	assert.ErrorIs(t, p.Toggle("b"), ErrLastColumn)
	assert.Equal(t, []string{"b"}, p.Visible())
	require.NoError(t, p.Toggle("a"))
	assert.Equal(t, []string{"a", "b"}, p.Visible())
}

func TestUnknownColumn(t *testing.T) {
	p := New()
	assert.ErrorIs(t, p.Hide("x"), ErrUnknownColumn)
	assert.ErrorIs(t, p.Show("x"), ErrUnknownColumn)
	assert.ErrorIs(t, p.Move("x", 1), ErrUnknownColumn)
}

func TestMoveClamps(t *testing.T) {
	p := New()
	p.Discover([]string{"a", "b", "c"})
	require.NoError(t, p.Move("a", 1))
	assert.Equal(t, []string{"b", "a", "c"}, p.All())
	require.NoError(t, p.Move("c", -10))
	assert.Equal(t, []string{"c", "b", "a"}, p.All())
	require.NoError(t, p.Move("c", -1))
	assert.Equal(t, []string{"c", "b", "a"}, p.All())
}

func TestDiscoverKeepsMovedLayout(t *testing.T) {
	p := New()
	p.Discover([]string{"@timestamp", "@message", "user"})
	require.NoError(t, p.Move("@timestamp", 2))
	require.Equal(t, []string{"@message", "user", "@timestamp"}, p.All())

	assert.True(t, p.Discover([]string{"latency"}))
	assert.Equal(t, []string{"@message", "user", "@timestamp", "latency"}, p.All())

	// a preferred newcomer lands after the leading preferred columns only
	assert.True(t, p.Discover([]string{"level"}))
	assert.Equal(t, []string{"level", "@message", "user", "@timestamp", "latency"}, p.All())
}
