package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedNow() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

func TestGenerateBatch(t *testing.T) {
	var buf bytes.Buffer
	n, err := generate(context.Background(), &buf, options{count: 25, group: "app", seed: 3}, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, 25, n)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 25)
	for _, l := range lines {
		var v map[string]any
		require.NoError(t, json.Unmarshal([]byte(l), &v), l)
		assert.Contains(t, v, "@t")
		assert.Contains(t, v, "@l")
	}
}

func TestGenerateIsReproducible(t *testing.T) {
	var a, b bytes.Buffer
	_, err := generate(context.Background(), &a, options{count: 10, seed: 9}, fixedNow)
	require.NoError(t, err)
	_, err = generate(context.Background(), &b, options{count: 10, seed: 9}, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, a.String(), b.String())
}

func TestGenerateStreamStopsAtCount(t *testing.T) {
	var buf bytes.Buffer
	n, err := generate(context.Background(), &buf, options{count: 5, rate: 1000, seed: 1}, time.Now)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, 5, strings.Count(buf.String(), "\n"))
}

func TestGenerateStreamStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	var buf bytes.Buffer
	n, err := generate(ctx, &buf, options{rate: 100, seed: 1}, time.Now)
	require.NoError(t, err)
	assert.Greater(t, n, 0)
	assert.Less(t, n, 100)
}

func TestCountRequiredWithoutRate(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"--count", "0"})
	cmd.SetOut(&bytes.Buffer{})
	err := cmd.ExecuteContext(context.Background())
	assert.ErrorContains(t, err, "--count")
}
