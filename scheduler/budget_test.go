package scheduler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestServToCharge(t *testing.T) {
	cfg := DefaultConfig()
	rq := &Request{Sectors: 64}

	tests := []struct {
		name  string
		queue *Queue
		want  int64
	}{
		{"sync at parity", &Queue{sync: true, wrCoeff: 1}, 64},
		{"async charged extra", &Queue{sync: false, wrCoeff: 1}, 64 * (1 + cfg.AsyncChargeFactor)},
		{"raised async at parity", &Queue{sync: false, wrCoeff: 20}, 64},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := servToCharge(&cfg, rq, tc.queue); got != tc.want {
				t.Errorf("servToCharge() = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestRecalcBudget(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		name     string
		baseline int64
		seekMean int64
		reason   ExpireReason
		served   int64
		want     int64
	}{
		{"exhausted doubles", 1000, 0, ExpireBudgetExhausted, 1000, 2000},
		{"exhausted seeky keeps", 1000, cfg.SeekThresholdSectors + 1, ExpireBudgetExhausted, 1000, 1000},
		{"exhausted clamps at ceiling", cfg.MaxBudget, 0, ExpireBudgetExhausted, cfg.MaxBudget, cfg.MaxBudget},
		{"timeout shrinks to served", 1000, 0, ExpireBudgetTimeout, 700, 700},
		{"timeout halves when barely used", 1000, 0, ExpireBudgetTimeout, 100, 500},
		{"too idle shrinks to served", 1000, 0, ExpireTooIdle, 64, 64},
		{"too idle respects floor", 1000, 0, ExpireTooIdle, 0, minBudget(&cfg)},
		{"no more requests keeps", 1000, 0, ExpireNoMoreRequests, 64, 1000},
		{"queue exit keeps", 1000, 0, ExpireQueueExit, 64, 1000},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s, _ := newTestScheduler(t, cfg)
			q, err := s.AddQueue("q", 100, true)
			require.NoError(t, err)
			q.maxBudget = tc.baseline
			q.seekMean = tc.seekMean
			q.seekSamples = 256

			s.recalcBudget(q, tc.reason, tc.served)
			require.Equal(t, tc.want, q.maxBudget)
		})
	}
}

func TestNextActivationBudgetCoversNextRequest(t *testing.T) {
	cfg := DefaultConfig()
	q := &Queue{sync: true, wrCoeff: 1, maxBudget: 128}

	// Baseline alone when the next request fits.
	q.nextRq = &Request{Sectors: 64, Sync: true}
	if got := nextActivationBudget(&cfg, q); got != 128 {
		t.Errorf("budget = %d, want baseline 128", got)
	}

	// A larger next request grows the activation budget so one turn always
	// suffices for it.
	q.nextRq = &Request{Sectors: 4096, Sync: true}
	if got := nextActivationBudget(&cfg, q); got != 4096 {
		t.Errorf("budget = %d, want 4096", got)
	}

	// Never beyond the ceiling, even for an oversized request.
	q.nextRq = &Request{Sectors: cfg.MaxBudget * 2, Sync: true}
	if got := nextActivationBudget(&cfg, q); got != cfg.MaxBudget {
		t.Errorf("budget = %d, want ceiling %d", got, cfg.MaxBudget)
	}
}

func TestUpdatedNextRequestGrowsBacklogBudget(t *testing.T) {
	s, _ := newTestScheduler(t, DefaultConfig())

	qa, err := s.AddQueue("served", 100, true)
	require.NoError(t, err)
	qb, err := s.AddQueue("waiting", 100, true)
	require.NoError(t, err)

	s.AddRequest(qa, &Request{Sector: 1000, Sectors: 64, Sync: true})
	s.AddRequest(qb, &Request{Sector: 500000, Sectors: 64, Sync: true})
	require.NotNil(t, s.DispatchRequest())

	waiting := qb
	if s.inService == qb {
		waiting = qa
	}
	before := waiting.Entity().Budget()

	// A big request becoming the waiting queue's next-serve candidate must
	// grow its budget; shrinking never happens mid-backlog.
	s.AddRequest(waiting, &Request{Sector: waiting.nextRq.Sector - 8, Sectors: 12000, Sync: true})
	require.Greater(t, waiting.Entity().Budget(), before)
	require.Equal(t, entityActive, waiting.Entity().state)
}
