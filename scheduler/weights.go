package scheduler

// weightCounter tallies the active entities sharing one exact weight value.
type weightCounter struct {
	weight    int64
	numActive int
}

// weightTracker maintains one counter per distinct weight among active
// entities, so the scheduler can cheaply tell whether the scenario is
// symmetric (all active entities equally weighted). Symmetry only gates the
// idling optimization; losing track of it degrades throughput decisions,
// never correctness.
//
// The tracker is capacity-bounded: once the configured number of distinct
// weights is reached, further inserts fail and the affected entities are
// counted as untracked. While any entity is untracked the scenario is
// conservatively reported as asymmetric. Tracking is retried on the entity's
// next activation, so the counter set is reconstructed lazily.
type weightTracker struct {
	counters  map[int64]*weightCounter
	capacity  int
	untracked int
}

func newWeightTracker(capacity int) *weightTracker {
	return &weightTracker{
		counters: make(map[int64]*weightCounter),
		capacity: capacity,
	}
}

// add associates the entity with the counter for its weight, creating the
// counter on first use. Idempotent for entities already associated with a
// counter: a weight change and a backlog arrival can each trigger an add for
// the same activation, and the second invocation must be a no-op.
func (wt *weightTracker) add(e *Entity) error {
	if e.weightCounter != nil || e.weightUntracked {
		return nil
	}
	wc, ok := wt.counters[e.weight]
	if !ok {
		if len(wt.counters) >= wt.capacity {
			e.weightUntracked = true
			wt.untracked++
			return ErrWeightTrackerFull
		}
		wc = &weightCounter{weight: e.weight}
		wt.counters[e.weight] = wc
	}
	wc.numActive++
	e.weightCounter = wc
	return nil
}

// remove drops the entity's association and deletes the counter when its
// active count returns to zero.
func (wt *weightTracker) remove(e *Entity, invariant func(bool, string, ...interface{}) bool) {
	if e.weightUntracked {
		e.weightUntracked = false
		wt.untracked--
		return
	}
	wc := e.weightCounter
	if wc == nil {
		return
	}
	if !invariant(wc.numActive > 0, "weight counter underflow for weight %d", wc.weight) {
		return
	}
	if !invariant(wc.weight == e.weight, "entity weight %d does not match counter weight %d", e.weight, wc.weight) {
		return
	}
	wc.numActive--
	if wc.numActive == 0 {
		delete(wt.counters, wc.weight)
	}
	e.weightCounter = nil
}

// symmetric reports whether all tracked active entities share one weight.
// Untracked entities make the answer unknowable, so it is reported false.
func (wt *weightTracker) symmetric() bool {
	return wt.untracked == 0 && len(wt.counters) <= 1
}

// distinctWeights returns the number of tracked distinct weight values.
func (wt *weightTracker) distinctWeights() int {
	return len(wt.counters)
}
