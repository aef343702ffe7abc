package scheduler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWrInteractiveRaiseOnActivation(t *testing.T) {
	s, _ := newTestScheduler(t, DefaultConfig())
	q, err := s.AddQueue("app", 100, true)
	require.NoError(t, err)

	// A queue idle long enough before activating is deemed interactive.
	s.AddRequest(q, &Request{Sector: 1000, Sectors: 64, Sync: true})
	require.Equal(t, s.cfg.WrCoeff, q.WrCoeff())
	// No peak-rate samples yet: the duration falls back to the slow
	// non-rotational reference time.
	require.Equal(t, refTimeSlow[1], q.wrCurMaxTime)
	require.Equal(t, int64(1), s.Metrics().WrActivations)
}

func TestWrDurationOverride(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WrMaxTime = 700
	s, _ := newTestScheduler(t, cfg)
	q, err := s.AddQueue("app", 100, true)
	require.NoError(t, err)

	s.AddRequest(q, &Request{Sector: 1000, Sectors: 64, Sync: true})
	require.Equal(t, Ticks(700), q.wrCurMaxTime)
}

func TestWrExpiresAtDispatch(t *testing.T) {
	s, now := newTestScheduler(t, DefaultConfig())
	q, err := s.AddQueue("app", 100, true)
	require.NoError(t, err)

	s.AddRequest(q, &Request{Sector: 1000, Sectors: 64, Sync: true})
	s.AddRequest(q, &Request{Sector: 1064, Sectors: 64, Sync: true})
	require.Equal(t, s.cfg.WrCoeff, q.WrCoeff())

	first := s.DispatchRequest()
	require.NotNil(t, first)
	require.Equal(t, s.cfg.WrCoeff, q.WrCoeff(), "raising holds within its window")

	// Raising has no timer of its own: its deadline is enforced lazily on
	// the next dispatch from the queue.
	*now += q.wrCurMaxTime + 500
	second := s.DispatchRequest()
	require.NotNil(t, second)
	require.Equal(t, int64(1), q.WrCoeff())
	require.GreaterOrEqual(t, s.Metrics().WrExpirations, int64(1))
}

func TestWrSoftRtRecharge(t *testing.T) {
	s, now := newTestScheduler(t, DefaultConfig())
	q, err := s.AddQueue("player", 100, true)
	require.NoError(t, err)

	// Mid-way through a soft real-time raising period the queue
	// re-qualifies: the period restarts instead of lapsing.
	q.wrCoeff = s.cfg.WrCoeff
	q.wrCurMaxTime = s.cfg.WrRtMaxTime
	q.lastWrStartFinish = *now - 200

	s.maybeRaiseOnActivation(q, *now, false, true, false)
	require.Equal(t, s.cfg.WrCoeff, q.WrCoeff())
	require.Equal(t, *now, q.lastWrStartFinish)
	require.Equal(t, int64(1), s.Metrics().WrRecharges)
}

func TestWrEndsWhenBurstDetectedLate(t *testing.T) {
	s, now := newTestScheduler(t, DefaultConfig())
	q, err := s.AddQueue("spawned", 100, true)
	require.NoError(t, err)

	// The queue was raised before its burst grew large; the next
	// activation sees the large-burst verdict and revokes the raising.
	q.wrCoeff = s.cfg.WrCoeff
	q.wrCurMaxTime = refTimeSlow[1]
	q.lastWrStartFinish = *now

	s.maybeRaiseOnActivation(q, *now, false, false, true)
	require.Equal(t, int64(1), q.WrCoeff())
	require.Equal(t, int64(1), s.Metrics().WrExpirations)
}

func TestWrBusyAsyncRaise(t *testing.T) {
	s, now := newTestScheduler(t, DefaultConfig())
	// Early enough that the fresh queue does not look long-idle, so the
	// activation itself does not raise it.
	*now = 1000

	q, err := s.AddQueue("flusher", 100, false)
	require.NoError(t, err)
	s.AddRequest(q, &Request{Sector: 1000, Sectors: 64})
	require.Equal(t, int64(1), q.WrCoeff())

	// Async requests trickling in far apart would otherwise wait out every
	// sync queue; the second arrival raises the already-busy queue.
	*now += s.cfg.WrMinInterArrAsync + 200
	s.AddRequest(q, &Request{Sector: 2000, Sectors: 64})
	require.Equal(t, s.cfg.WrCoeff, q.WrCoeff())
	require.Equal(t, int64(1), s.Metrics().WrActivations)
}

func TestSoftRtNextStart(t *testing.T) {
	s, now := newTestScheduler(t, DefaultConfig())
	q, err := s.AddQueue("player", 100, true)
	require.NoError(t, err)

	// With no backlogged service the bound is just the anticipation floor.
	require.Equal(t, *now+s.cfg.SliceIdle+4, s.softrtNextStart(q, *now))

	// Heavy backlogged service pushes the next soft-rt eligibility out to
	// when that service, replayed at the rate ceiling, would have finished.
	q.lastIdleBklogged = *now
	q.serviceFromBacklogged = 10 * s.cfg.WrMaxSoftrtRate
	require.Equal(t, *now+10_000, s.softrtNextStart(q, *now))
}
