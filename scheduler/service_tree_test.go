package scheduler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testInvariant(t *testing.T) func(bool, string, ...interface{}) bool {
	t.Helper()
	return func(cond bool, format string, args ...interface{}) bool {
		if !cond {
			t.Fatalf("invariant violated: "+format, args...)
		}
		return cond
	}
}

func TestServiceTreeActivation(t *testing.T) {
	st := newServiceTree(1, testInvariant(t))
	e := &Entity{weight: 100, budget: 1000}

	st.activate(e)
	require.Equal(t, entityActive, e.state)
	require.Equal(t, st.vtime, e.start, "fresh entity starts at the tree's virtual time")
	require.Equal(t, e.start+vtimeDelta(1000, 100), e.finish)
	require.Zero(t, e.service, "activation resets consumed service")
}

func TestServiceTreeExpireAdvancesByConsumedService(t *testing.T) {
	st := newServiceTree(1, testInvariant(t))
	e := &Entity{weight: 100, budget: 1000}

	st.activate(e)
	got := st.selectInService()
	require.Same(t, e, got)
	require.Equal(t, entityInService, e.state)

	// Serve 600 of the 1000-sector budget, then expire: the finish time
	// must reflect the 600 actually consumed, not the budget.
	e.service = 600
	st.expire(e)
	want := vtimeDelta(600, 100)
	require.Equal(t, want, e.finish)
	require.Equal(t, want, st.vtime)
	require.Equal(t, e.finish, e.start, "next turn starts where this one ended")
}

func TestServiceTreeZeroServiceRoundTrip(t *testing.T) {
	st := newServiceTree(1, testInvariant(t))
	e := &Entity{weight: 100, budget: 1000}

	st.activate(e)
	before := st.vtime
	got := st.selectInService()
	require.Same(t, e, got)

	// Selected but never served: expiring and deactivating must leave the
	// virtual time untouched, or a queue could lose ground just by being
	// picked at the wrong moment.
	st.expire(e)
	st.deactivate(e)
	require.Equal(t, before, st.vtime)
	require.Equal(t, entityDetached, e.state)
}

func TestServiceTreeWeightedAlternation(t *testing.T) {
	st := newServiceTree(1, testInvariant(t))
	heavy := &Entity{weight: 200, budget: 1000}
	light := &Entity{weight: 100, budget: 1000}
	st.activate(heavy)
	st.activate(light)

	counts := map[*Entity]int{}
	for i := 0; i < 30; i++ {
		e := st.selectInService()
		require.NotNil(t, e)
		counts[e]++
		e.service = e.budget // consume the full budget
		st.expire(e)
		st.requeue(e)
	}

	require.Equal(t, 30, counts[heavy]+counts[light])
	ratio := float64(counts[heavy]) / float64(counts[light])
	require.InDelta(t, 2.0, ratio, 0.25,
		"turn counts %d:%d should track the 2:1 weights", counts[heavy], counts[light])
}

func TestServiceTreeIdleEntityKeepsItsPlace(t *testing.T) {
	st := newServiceTree(1, testInvariant(t))
	served := &Entity{weight: 100, budget: 1000}
	parked := &Entity{weight: 100, budget: 1000}
	st.activate(served)
	st.activate(parked)

	// Deactivate the never-served entity while its finish is ahead of the
	// virtual time: it must be parked, and re-activating it must resume
	// from the preserved finish rather than from the virtual time.
	finish := parked.finish
	st.deactivate(parked)
	require.Equal(t, entityIdle, parked.state)

	st.activate(parked)
	require.Equal(t, finish, parked.start,
		"re-activation must not let a recently idle entity regain service")
}

func TestServiceTreeForgetIdle(t *testing.T) {
	st := newServiceTree(1, testInvariant(t))
	served := &Entity{weight: 100, budget: 1000}
	parked := &Entity{weight: 100, budget: 1000}
	st.activate(served)
	st.activate(parked)

	st.deactivate(parked)
	require.Equal(t, entityIdle, parked.state)

	// Advance the virtual time past the parked entity's finish: its
	// bookkeeping can no longer matter and must be dropped.
	e := st.selectInService()
	require.Same(t, served, e)
	e.service = e.budget
	st.expire(e)
	require.Equal(t, entityDetached, parked.state)
}

func TestServiceTreeUpdateVtimeJumps(t *testing.T) {
	st := newServiceTree(1, testInvariant(t))
	e := &Entity{weight: 100, budget: 1000}
	st.activate(e)

	// Force the entity's start ahead of the virtual time, as happens when
	// a parked entity is the only one to re-activate.
	st.activeExtract(e)
	e.start = 500 << serviceShift
	e.finish = e.start + vtimeDelta(e.budget, e.weight)
	st.activeInsert(e)

	got := st.selectInService()
	require.Same(t, e, got, "virtual time must jump forward so someone is eligible")
	require.Equal(t, e.start, st.vtime)
}

func TestServiceTreeEligibilityOrdering(t *testing.T) {
	st := newServiceTree(1, testInvariant(t))

	// Entity with the smallest finish is not eligible (start ahead of
	// vtime); selection must skip it for the eligible one.
	ahead := &Entity{weight: 100, budget: 10}
	eligible := &Entity{weight: 100, budget: 100000}
	st.activate(eligible)

	st.activate(ahead)
	st.activeExtract(ahead)
	ahead.start = st.vtime + vtimeDelta(50000, 100)
	ahead.finish = ahead.start + vtimeDelta(ahead.budget, ahead.weight)
	st.activeInsert(ahead)

	require.True(t, vtimeGT(eligible.finish, ahead.finish),
		"test premise: the ineligible entity has the smaller finish")
	got := st.selectInService()
	require.Same(t, eligible, got)
}

func TestVtimeWraparound(t *testing.T) {
	if !vtimeGT(10, ^uint64(0)-10) {
		t.Error("comparison must survive wraparound")
	}
	if vtimeGT(^uint64(0)-10, 10) {
		t.Error("comparison must survive wraparound in the other direction")
	}
	require.Equal(t, uint64(10), vtimeMax(10, ^uint64(0)-10))
}
