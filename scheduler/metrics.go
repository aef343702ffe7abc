package scheduler

// Metrics counts scheduling decisions. All fields are guarded by the
// scheduler's lock; Snapshot returns a copy safe to read outside it.
type Metrics struct {
	Dispatches        int64 `json:"dispatches"`
	SectorsDispatched int64 `json:"sectorsDispatched"`
	SyncDispatches    int64 `json:"syncDispatches"`
	AsyncDispatches   int64 `json:"asyncDispatches"`

	Expirations       int64 `json:"expirations"`
	ExpiredTooIdle    int64 `json:"expiredTooIdle"`
	ExpiredTimeout    int64 `json:"expiredBudgetTimeout"`
	ExpiredExhausted  int64 `json:"expiredBudgetExhausted"`
	ExpiredNoRequests int64 `json:"expiredNoMoreRequests"`

	WrActivations int64 `json:"wrActivations"`
	WrExpirations int64 `json:"wrExpirations"`
	WrRecharges   int64 `json:"wrRecharges"`

	LargeBurstMarks int64 `json:"largeBurstMarks"`

	IdleWaits     int64 `json:"idleWaits"`
	WeightsFull   int64 `json:"weightTrackerFull"`
	QueuesCreated int64 `json:"queuesCreated"`
	QueuesExited  int64 `json:"queuesExited"`
}

func (m *Metrics) countExpiration(reason ExpireReason) {
	m.Expirations++
	switch reason {
	case ExpireTooIdle:
		m.ExpiredTooIdle++
	case ExpireBudgetTimeout:
		m.ExpiredTimeout++
	case ExpireBudgetExhausted:
		m.ExpiredExhausted++
	case ExpireNoMoreRequests:
		m.ExpiredNoRequests++
	}
}
