package scheduler

// forestState records which forest an entity is currently linked into. An
// entity is in exactly one of {active, idle, in-service} or detached.
type forestState int

const (
	entityDetached forestState = iota
	entityActive
	entityIdle
	entityInService
)

func (s forestState) String() string {
	switch s {
	case entityDetached:
		return "detached"
	case entityActive:
		return "active"
	case entityIdle:
		return "idle"
	case entityInService:
		return "in-service"
	default:
		return "unknown"
	}
}

// Entity is the schedulable unit: a leaf queue (or, recursively, a group
// aggregate) carrying a weight, a per-turn budget, and virtual timestamps.
type Entity struct {
	weight int64 // effective weight (base weight times wr coefficient)

	// Weight changes requested while the entity is linked take effect on
	// the next activation, so scheduling parameters stay consistent for
	// the duration of a turn.
	newWeight     int64
	weightChanged bool

	budget  int64 // service allowance for the current activation, in sectors
	service int64 // service charged during the current in-service turn

	start  uint64 // virtual start time
	finish uint64 // virtual finish time
	seq    uint64 // activation sequence, deterministic finish-time tie-break

	state forestState

	weightCounter   *weightCounter
	weightUntracked bool // counter allocation failed; retried on next activation

	queue *Queue // owning leaf queue
}

// setWeight schedules a weight change; it is applied at the next activation.
func (e *Entity) setWeight(w int64) {
	if w != e.weight || e.weightChanged {
		e.newWeight = w
		e.weightChanged = true
	}
}

// applyWeightChange installs a pending weight change. Called by the service
// tree right before computing a fresh virtual start/finish pair.
func (e *Entity) applyWeightChange() {
	if e.weightChanged {
		e.weight = e.newWeight
		e.weightChanged = false
	}
}

// Weight returns the entity's current effective weight.
func (e *Entity) Weight() int64 {
	return e.weight
}

// Budget returns the service allowance for the current activation.
func (e *Entity) Budget() int64 {
	return e.budget
}

// budgetLeft returns how much of the turn's budget is still unconsumed.
func (e *Entity) budgetLeft() int64 {
	left := e.budget - e.service
	if left < 0 {
		return 0
	}
	return left
}
