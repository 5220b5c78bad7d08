package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cwinsights/internal/config"
	"cwinsights/internal/querier/cloudwatch"
	"cwinsights/internal/querier/fake"
	"cwinsights/internal/querier/file"
	"cwinsights/internal/session"
)

func TestVersionFlag(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--version"})
	require.NoError(t, cmd.ExecuteContext(context.Background()))
	assert.Contains(t, out.String(), "cwinsights")
}

func TestRejectsArgs(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"stray"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	assert.Error(t, cmd.ExecuteContext(context.Background()))
}

func TestNewClientPerBackend(t *testing.T) {
	cases := []struct {
		backend config.Backend
		check   func(t *testing.T, c any)
	}{
		{config.BackendAWS, func(t *testing.T, c any) { assert.IsType(t, &cloudwatch.Client{}, c) }},
		{config.BackendFake, func(t *testing.T, c any) { assert.IsType(t, &fake.Client{}, c) }},
		{config.BackendFile, func(t *testing.T, c any) { assert.IsType(t, &file.Client{}, c) }},
	}
	for _, tc := range cases {
		t.Run(string(tc.backend), func(t *testing.T) {
			c, closeFn := newClient(&config.Config{Backend: tc.backend})
			defer closeFn()
			tc.check(t, c)
		})
	}
}

func TestNewManager(t *testing.T) {
	cfg := &config.Config{
		Region:       "us-east-1",
		PollInterval: 250 * time.Millisecond,
		MaxRetries:   2,
		MaxRows:      100,
		CarryOver:    "reset",
	}
	mgr, err := newManager(cfg, fake.New(fake.DefaultOptions()), "prod")
	require.NoError(t, err)
	defer mgr.Close()
	assert.Equal(t, "us-east-1", mgr.Region())
	assert.Equal(t, "prod", mgr.Profile())
	assert.Equal(t, session.CarryNone, mgr.CarryOver())

	cfg.CarryOver = "sometimes"
	_, err = newManager(cfg, fake.New(fake.DefaultOptions()), "prod")
	assert.Error(t, err)
}
