package scheduler

// ExpireReason says why an in-service turn ended; it steers the budget
// auto-tuning for the queue's next activation.
type ExpireReason int

const (
	// ExpireTooIdle: the queue sat on an armed idling timer without
	// issuing a request.
	ExpireTooIdle ExpireReason = iota
	// ExpireBudgetTimeout: the turn's wall-time allowance ran out before
	// the budget did.
	ExpireBudgetTimeout
	// ExpireBudgetExhausted: the queue consumed its whole budget.
	ExpireBudgetExhausted
	// ExpireNoMoreRequests: the queue emptied and idling was not worth it.
	ExpireNoMoreRequests
	// ExpireQueueExit: the issuing context went away.
	ExpireQueueExit
)

func (r ExpireReason) String() string {
	switch r {
	case ExpireTooIdle:
		return "too-idle"
	case ExpireBudgetTimeout:
		return "budget-timeout"
	case ExpireBudgetExhausted:
		return "budget-exhausted"
	case ExpireNoMoreRequests:
		return "no-more-requests"
	case ExpireQueueExit:
		return "queue-exit"
	default:
		return "unknown"
	}
}

// servToCharge converts a request into budget consumption. Async service is
// charged extra (unless the queue is weight-raised): async writes can be
// deferred essentially indefinitely, and charging them at parity would let
// them starve synchronous readers of throughput share.
func servToCharge(cfg *Config, rq *Request, q *Queue) int64 {
	charge := rq.Sectors
	if !q.sync && q.wrCoeff == 1 {
		charge *= 1 + cfg.AsyncChargeFactor
	}
	return charge
}

// minBudget is the floor budgets shrink to.
func minBudget(cfg *Config) int64 {
	mb := cfg.MaxBudget / 32
	if mb < 1 {
		mb = 1
	}
	return mb
}

// nextActivationBudget computes the budget for a queue's (re)activation:
// at least its auto-tuned baseline, and always enough for its next request
// so it never needs two dispatch rounds to get it out.
func nextActivationBudget(cfg *Config, q *Queue) int64 {
	budget := q.maxBudget
	if q.nextRq != nil {
		if c := servToCharge(cfg, q.nextRq, q); c > budget {
			budget = c
		}
	}
	if budget > cfg.MaxBudget {
		budget = cfg.MaxBudget
	}
	return budget
}

// updatedNextRequest reconsiders the queue's budget after its next-serve
// candidate changed. Budgets are fixed once an entity is selected (changing
// them mid-turn would break the fairness guarantees), so in-service queues
// are left alone; for the rest the budget only grows, and a growth
// re-activates the entity so the tree sees the new finish time.
func (s *Scheduler) updatedNextRequest(q *Queue) {
	if q.nextRq == nil || q == s.inService {
		return
	}
	e := &q.entity
	if !s.invariant(e.state == entityActive, "next-request update for %s entity %s", e.state, q.name) {
		return
	}
	newBudget := nextActivationBudget(&s.cfg, q)
	if newBudget > e.budget {
		e.budget = newBudget
		s.logEvent("queue %s: next request grew budget to %d", q.name, newBudget)
		s.tree(q).activate(e)
	}
}

// recalcBudget auto-tunes the queue's baseline budget after an expiration.
// Budgets grow for queues that consistently exhaust them on useful
// (non-seek-bound) work and shrink for queues that stall or time out,
// bounded by the configured ceiling.
func (s *Scheduler) recalcBudget(q *Queue, reason ExpireReason, served int64) {
	cfg := &s.cfg
	budget := q.maxBudget
	switch reason {
	case ExpireBudgetExhausted:
		if !q.seeky(cfg) {
			budget *= 2
		}
	case ExpireBudgetTimeout:
		// Could not consume the budget in time: shrink toward what
		// was actually used.
		if served > budget/2 {
			budget = served
		} else {
			budget /= 2
		}
	case ExpireTooIdle:
		budget = served
	case ExpireNoMoreRequests, ExpireQueueExit:
		// Keep the baseline; the next activation sizes itself on the
		// next request anyway.
	}
	if budget > cfg.MaxBudget {
		budget = cfg.MaxBudget
	}
	if mb := minBudget(cfg); budget < mb {
		budget = mb
	}
	q.maxBudget = budget
}
