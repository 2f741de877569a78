package pipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/harvest/testkit"
)

func TestSchedulerRunsAtStartAndOnEveryTick(t *testing.T) {
	h := newHarness(t)
	var hits, manual, archived atomic.Int32
	srv := jsonServer(t, &hits, teamsBody)
	manualSrv := jsonServer(t, &manual, teamsBody)
	archiveSrv := jsonServer(t, &archived, teamsBody)

	ttl := 0
	scheduled := teamsSource("scheduled", srv.URL, "sched_"+testkit.NewID())
	scheduled.Schedule = "@every 50ms"
	scheduled.Cache.TTLSeconds = &ttl

	off := false
	archive := teamsSource("archive", archiveSrv.URL, "arch_"+testkit.NewID())
	archive.Schedule = "50ms"
	archive.Enabled = &off

	r := h.runner(t, scheduled, teamsSource("manual", manualSrv.URL, "man_"+testkit.NewID()), archive)
	s := NewScheduler(r, WithLogger(testkit.NewLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	require.Eventually(t, func() bool { return hits.Load() >= 3 }, 5*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}

	assert.Zero(t, manual.Load(), "sources without a schedule are manual only")
	assert.Zero(t, archived.Load(), "disabled sources are never scheduled")

	last, ok := r.LastOutcome("scheduled")
	require.True(t, ok)
	assert.Equal(t, StatusSuccess, last.Status)
}

func TestSchedulerNeverOverlapsRunsOfOneSource(t *testing.T) {
	h := newHarness(t)
	var active, overlaps, hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if active.Add(1) > 1 {
			overlaps.Add(1)
		}
		defer active.Add(-1)
		hits.Add(1)
		time.Sleep(80 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(teamsBody))
	}))
	t.Cleanup(srv.Close)

	ttl := 0
	src := teamsSource("slow", srv.URL, "slow_"+testkit.NewID())
	src.Schedule = "10ms"
	src.Cache.TTLSeconds = &ttl
	r := h.runner(t, src)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewScheduler(r).Start(ctx) }()

	require.Eventually(t, func() bool { return hits.Load() >= 3 }, 5*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.Zero(t, overlaps.Load())
}
