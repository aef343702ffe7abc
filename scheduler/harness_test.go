package scheduler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHarnessWeightedShares(t *testing.T) {
	h, err := NewHarness(DefaultSimConfig())
	require.NoError(t, err)

	res, err := h.Run()
	require.NoError(t, err)
	require.False(t, res.Broken, "strict checks must hold through a full run")
	require.Greater(t, res.TotalSectors, int64(0))
	require.Len(t, res.Streams, 2)

	var hi, lo StreamResult
	for _, sr := range res.Streams {
		if sr.Name == "reader-hi" {
			hi = sr
		} else {
			lo = sr
		}
	}
	require.Greater(t, lo.SectorsServed, int64(0), "the lighter stream must not starve")

	// Two always-backlogged sequential readers at 200:100 should split the
	// device close to their weights.
	ratio := float64(hi.SectorsServed) / float64(lo.SectorsServed)
	require.InDelta(t, 2.0, ratio, 0.4,
		"service ratio %.2f (hi=%d lo=%d) should track the 2:1 weights",
		ratio, hi.SectorsServed, lo.SectorsServed)

	require.InDelta(t, 1.0, hi.Share+lo.Share, 1e-9)
	require.Greater(t, res.Scheduler.Dispatches, int64(0))
	require.Greater(t, res.Scheduler.Expirations, int64(0))
}

func TestHarnessDeterminism(t *testing.T) {
	cfg := DefaultSimConfig()
	cfg.Streams = append(cfg.Streams, StreamConfig{
		Name:           "random",
		Weight:         100,
		Sync:           true,
		Distribution:   DistUniform,
		RequestSectors: 64,
		ZoneStart:      2 << 24,
		ZoneSectors:    1 << 24,
		ThinkTimeMs:    2,
	})

	run := func() *Results {
		h, err := NewHarness(cfg)
		require.NoError(t, err)
		res, err := h.Run()
		require.NoError(t, err)
		return res
	}

	require.Equal(t, run(), run(), "same seed must reproduce the run exactly")
}

func TestHarnessCloneBurstDetection(t *testing.T) {
	cfg := DefaultSimConfig()
	cfg.Scheduler.LargeBurstThreshold = 4
	cfg.DurationMs = 2000
	cfg.Streams = []StreamConfig{{
		Name:           "spawn",
		Weight:         100,
		Sync:           true,
		Sequential:     true,
		RequestSectors: 64,
		ZoneStart:      0,
		ZoneSectors:    1 << 22,
		ThinkTimeMs:    1,
		Clones:         6,
		CloneStaggerMs: 1,
	}}

	h, err := NewHarness(cfg)
	require.NoError(t, err)
	res, err := h.Run()
	require.NoError(t, err)
	require.False(t, res.Broken)

	// Six near-simultaneous activations cross the threshold: every clone
	// ends up marked, and none of them gets weight-raised.
	require.Equal(t, int64(6), res.Scheduler.LargeBurstMarks)
	require.Zero(t, res.Scheduler.WrActivations)
	for _, st := range h.streams {
		require.True(t, st.queue.InLargeBurst(), "clone %s not marked", st.name)
	}
}

func TestHarnessOpenLoopStream(t *testing.T) {
	cfg := DefaultSimConfig()
	cfg.DurationMs = 5000
	cfg.Streams = []StreamConfig{{
		Name:           "writeback",
		Weight:         100,
		Sequential:     true,
		RequestSectors: 64,
		ZoneStart:      0,
		ZoneSectors:    1 << 24,
		RatePerSec:     100,
	}}

	h, err := NewHarness(cfg)
	require.NoError(t, err)
	res, err := h.Run()
	require.NoError(t, err)
	require.False(t, res.Broken)

	// 100 arrivals/sec over 5s on a device that serves each in 1ms: almost
	// everything issued must also complete.
	require.Len(t, res.Streams, 1)
	require.InDelta(t, 500, float64(res.Streams[0].Requests), 50)
}

func TestHarnessLiveCounters(t *testing.T) {
	cfg := DefaultSimConfig()
	cfg.Streams = []StreamConfig{{
		Name:           "writeback",
		Weight:         100,
		Sequential:     true,
		RequestSectors: 64,
		ZoneStart:      0,
		ZoneSectors:    1 << 24,
		RatePerSec:     100,
	}}
	h, err := NewHarness(cfg)
	require.NoError(t, err)

	require.Zero(t, h.PendingArrivals())
	_, busy := h.DeviceBusyUntil()
	require.False(t, busy)

	// The first arrival is served immediately and the next one is already
	// on the clock.
	require.NoError(t, h.Step(0))
	require.Equal(t, 1, h.PendingArrivals())
	until, busy := h.DeviceBusyUntil()
	require.True(t, busy)
	require.Equal(t, Ticks(1), until)

	// Once the completion lands the device goes idle again.
	require.NoError(t, h.Step(5))
	_, busy = h.DeviceBusyUntil()
	require.False(t, busy)
	require.Equal(t, 1, h.PendingArrivals())
}

func TestHarnessStepAndReset(t *testing.T) {
	h, err := NewHarness(DefaultSimConfig())
	require.NoError(t, err)

	require.NoError(t, h.Step(1000))
	require.Equal(t, Ticks(1000), h.Now())
	mid := h.Snapshot()
	require.Greater(t, mid.Scheduler.Dispatches, int64(0))
	require.False(t, mid.Broken)

	require.NoError(t, h.Reset())
	require.Equal(t, Ticks(0), h.Now())
	require.Zero(t, h.Snapshot().Scheduler.Dispatches)

	// A rejected config must not clobber the running one.
	bad := DefaultSimConfig()
	bad.DurationMs = 0
	require.Error(t, h.UpdateConfig(bad))
	require.Equal(t, DefaultSimConfig().DurationMs, h.cfg.DurationMs)
}
