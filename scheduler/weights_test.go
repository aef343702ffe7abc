package scheduler

import "testing"

func TestWeightTrackerSymmetry(t *testing.T) {
	inv := testInvariant(t)
	wt := newWeightTracker(16)

	a := &Entity{weight: 100}
	b := &Entity{weight: 100}
	c := &Entity{weight: 200}

	if !wt.symmetric() {
		t.Error("empty tracker should be symmetric")
	}

	if err := wt.add(a); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := wt.add(b); err != nil {
		t.Fatalf("add: %v", err)
	}
	if !wt.symmetric() {
		t.Error("two entities at one weight should be symmetric")
	}
	if wt.distinctWeights() != 1 {
		t.Errorf("expected 1 distinct weight, got %d", wt.distinctWeights())
	}

	if err := wt.add(c); err != nil {
		t.Fatalf("add: %v", err)
	}
	if wt.symmetric() {
		t.Error("two distinct weights should not be symmetric")
	}

	wt.remove(c, inv)
	if !wt.symmetric() {
		t.Error("back to one weight should be symmetric again")
	}

	wt.remove(a, inv)
	wt.remove(b, inv)
	if wt.distinctWeights() != 0 {
		t.Errorf("expected empty tracker, got %d counters", wt.distinctWeights())
	}
}

func TestWeightTrackerAddIsIdempotent(t *testing.T) {
	inv := testInvariant(t)
	wt := newWeightTracker(16)
	e := &Entity{weight: 100}

	// A weight change and a backlog arrival can each trigger an add for
	// the same activation; the second must be a no-op.
	if err := wt.add(e); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := wt.add(e); err != nil {
		t.Fatalf("second add: %v", err)
	}

	wt.remove(e, inv)
	if wt.distinctWeights() != 0 {
		t.Error("single remove should fully undo the association")
	}
}

func TestWeightTrackerCapacityDegradation(t *testing.T) {
	inv := testInvariant(t)
	wt := newWeightTracker(2)

	a := &Entity{weight: 100}
	b := &Entity{weight: 200}
	c := &Entity{weight: 300}

	if err := wt.add(a); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := wt.add(b); err != nil {
		t.Fatalf("add: %v", err)
	}

	// Third distinct weight exceeds capacity: the entity goes untracked
	// and the scenario must be reported as (conservatively) asymmetric,
	// even after the tracked counters drain.
	if err := wt.add(c); err != ErrWeightTrackerFull {
		t.Fatalf("expected ErrWeightTrackerFull, got %v", err)
	}
	if !c.weightUntracked {
		t.Error("entity should be flagged untracked")
	}

	wt.remove(a, inv)
	wt.remove(b, inv)
	if wt.symmetric() {
		t.Error("untracked entities must keep the tracker asymmetric")
	}

	// Removing the untracked entity clears the flag so the next
	// activation can retry tracking.
	wt.remove(c, inv)
	if c.weightUntracked {
		t.Error("untracked flag should clear on remove")
	}
	if !wt.symmetric() {
		t.Error("tracker should recover once nothing is untracked")
	}

	if err := wt.add(c); err != nil {
		t.Fatalf("retry after drain should succeed, got %v", err)
	}
}
