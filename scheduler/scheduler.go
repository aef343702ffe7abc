package scheduler

import (
	"fmt"
	"sync"
)

// priorityClass selects a service tree. Classes are served in strict
// priority order; async throughput is protected by the async charge factor
// and the async budget timeout rather than by interleaving classes.
type priorityClass int

const (
	classSync priorityClass = iota
	classAsync
	numClasses
)

// Scheduler is the proportional-share scheduling core for one device. All
// state lives behind a single lock: request arrival and dispatch may be
// invoked from any context, and both run synchronously in a bounded number
// of tree operations. Nothing here blocks.
type Scheduler struct {
	mu    sync.Mutex
	cfg   Config
	clock Clock

	trees   [numClasses]*serviceTree
	weights *weightTracker
	rate    *peakRateEstimator

	inService      *Queue
	lastPosition   int64 // head position: end sector of the last dispatch
	queuedRequests int
	busyQueues     int
	wrBusyQueues   int

	// Burst detector state
	burstList      []*Queue
	burstSize      int
	largeBurst     bool
	lastInsInBurst Ticks

	// Anticipatory idling: an expiring deadline rather than an explicit
	// timer. A new request for the in-service queue cancels it
	// implicitly; a dispatch attempt past the deadline expires the queue.
	idling    bool
	idleUntil Ticks

	metrics Metrics
	broken  bool

	// StrictChecks makes invariant violations panic instead of halting
	// the device. Tests and the harness turn this on.
	StrictChecks bool

	// LogEvent, when set, receives one line per notable scheduling event.
	LogEvent func(msg string)

	// OnDispatchNeeded, when set, is invoked (outside the lock) whenever
	// an operation leaves requests pending, so the collaborator can
	// trigger another dispatch pass.
	OnDispatchNeeded func()
}

// NewScheduler creates a scheduler for one device. A nil clock uses wall
// time; the harness and tests inject virtual clocks.
func NewScheduler(cfg Config, clock Clock) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clock == nil {
		clock = WallClock
	}
	s := &Scheduler{
		cfg:     cfg,
		clock:   clock,
		weights: newWeightTracker(cfg.MaxWeightCounters),
		rate:    newPeakRateEstimator(cfg.Rotational),
	}
	for c := range s.trees {
		s.trees[c] = newServiceTree(int64(c)+1, s.invariant)
	}
	return s, nil
}

func (s *Scheduler) logEvent(format string, args ...interface{}) {
	if s.LogEvent != nil {
		s.LogEvent(fmt.Sprintf(format, args...))
	}
}

// invariant checks a condition that can only fail through a logic defect.
// Violations are never silently corrected: with StrictChecks they panic;
// otherwise the device's scheduling halts and every entry point becomes a
// no-op, which is observable operationally but cannot corrupt state further.
func (s *Scheduler) invariant(cond bool, format string, args ...interface{}) bool {
	if cond {
		return true
	}
	msg := fmt.Sprintf(format, args...)
	if s.StrictChecks {
		panic("scheduler invariant violated: " + msg)
	}
	if !s.broken {
		s.broken = true
		s.logEvent("INVARIANT VIOLATED: %s; halting scheduling for this device", msg)
	}
	return false
}

func classOf(q *Queue) priorityClass {
	if q.sync {
		return classSync
	}
	return classAsync
}

func (s *Scheduler) tree(q *Queue) *serviceTree {
	return s.trees[classOf(q)]
}

// AddQueue registers a new I/O-issuing context. Weight is the queue's
// proportional share; sync queues carry reads and waited-on writes.
func (s *Scheduler) AddQueue(name string, weight int64, sync bool) (*Queue, error) {
	if weight <= 0 {
		return nil, SchedError{Message: fmt.Sprintf("queue %s: weight must be > 0", name)}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	q := &Queue{
		name:       name,
		sync:       sync,
		baseWeight: weight,
		wrCoeff:    1,
		maxBudget:  s.cfg.MaxBudget / 2,
		// A brand-new queue has no completion history; it must not
		// qualify as soft real-time until it has emptied at least once
		// and earned a real qualification instant.
		softRtNextStart: s.clock() + Ticks(1)<<40,
	}
	q.entity.weight = weight
	q.entity.queue = q
	s.metrics.QueuesCreated++
	return q, nil
}

// ExitQueue tears a queue down: its pending requests are dropped and its
// entity leaves whatever forest it is in.
func (s *Scheduler) ExitQueue(q *Queue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.broken {
		return
	}
	now := s.clock()

	if q.inBurstList {
		for i, item := range s.burstList {
			if item == q {
				s.burstList = append(s.burstList[:i], s.burstList[i+1:]...)
				break
			}
		}
		q.inBurstList = false
	}

	s.queuedRequests -= len(q.pending)
	q.pending = nil
	q.nextRq = nil
	q.queued = [2]int{}

	if q == s.inService {
		s.expireLocked(q, now, ExpireQueueExit)
	} else if q.busy {
		s.delBusy(q)
	}
	// The queue is gone for good: its entity must not linger in the idle
	// forest waiting for a re-activation that will never come.
	if q.entity.state == entityIdle {
		s.tree(q).idleExtract(&q.entity)
	}
	s.metrics.QueuesExited++
}

// addBusy moves a queue into the busy set and activates its entity.
// Weight-raised queues are not tracked for symmetry: raising is transient
// and would otherwise report every raised period as asymmetric.
func (s *Scheduler) addBusy(q *Queue) {
	// A weight change deferred from the previous busy period (raising that
	// ended right before the queue emptied) must land before the counter
	// association, or the tracker would record a weight this activation no
	// longer uses.
	q.entity.applyWeightChange()
	if q.wrCoeff == 1 {
		if err := s.weights.add(&q.entity); err != nil {
			s.metrics.WeightsFull++
			s.logEvent("queue %s: %v; symmetry heuristic degraded", q.name, err)
		}
	}
	s.tree(q).activate(&q.entity)
	q.busy = true
	s.busyQueues++
	if q.wrCoeff > 1 {
		s.wrBusyQueues++
	}
}

// delBusy removes a queue from the busy set and parks or forgets its entity.
func (s *Scheduler) delBusy(q *Queue) {
	s.tree(q).deactivate(&q.entity)
	q.busy = false
	s.busyQueues--
	if q.wrCoeff > 1 {
		s.wrBusyQueues--
	}
	s.weights.remove(&q.entity, s.invariant)
}

// AddRequest feeds one request into the scheduler.
func (s *Scheduler) AddRequest(q *Queue, rq *Request) {
	s.mu.Lock()
	kick := false
	if !s.broken {
		kick = s.addRequestLocked(q, rq)
	}
	cb := s.OnDispatchNeeded
	s.mu.Unlock()
	if kick && cb != nil {
		cb()
	}
}

func (s *Scheduler) addRequestLocked(q *Queue, rq *Request) bool {
	now := s.clock()
	rq.queue = q
	rq.Arrival = now
	q.queued[syncIndex(rq.Sync)]++
	s.queuedRequests++
	q.insertRequest(rq)

	if rq.Sync {
		q.updateThinkTime(&s.cfg, now)
	}
	q.updateSeekStats(rq)

	prev := q.nextRq
	next := chooseRequest(&s.cfg, q.nextRq, rq, s.lastPosition)
	if !s.invariant(next != nil, "queue %s: no next-serve candidate after arrival", q.name) {
		return false
	}
	q.nextRq = next

	if !q.busy {
		idleForLongTime := ticksBefore(q.budgetTimeout+s.cfg.WrMinIdleTime, now)

		if q.sync {
			s.handleBurst(q, idleForLongTime, now)
		}

		inBurst := q.inLargeBurst
		softRt := s.cfg.WrMaxSoftrtRate > 0 && !inBurst &&
			ticksBefore(q.softRtNextStart, now)
		interactive := !inBurst && idleForLongTime

		q.entity.budget = nextActivationBudget(&s.cfg, q)

		if !q.ioBound {
			if q.ttimeLastEndReq != 0 &&
				ticksBefore(now, q.ttimeLastEndReq+s.cfg.SliceIdle) {
				q.requestsWithinTimer++
				if q.requestsWithinTimer >= s.cfg.RequestsWithinTimer {
					q.ioBound = true
				}
			} else {
				q.requestsWithinTimer = 0
			}
		}

		if s.cfg.LowLatency {
			s.maybeRaiseOnActivation(q, now, interactive, softRt, inBurst)
		}

		q.lastIdleBklogged = now
		q.serviceFromBacklogged = 0
		s.addBusy(q)
	} else {
		s.maybeRaiseBusyAsync(q, rq, now)
		if prev != q.nextRq {
			s.updatedNextRequest(q)
		}
	}

	// A new request for the idled-upon queue cancels anticipation
	// implicitly: the bet paid off.
	if s.idling && s.inService == q {
		s.idling = false
	}

	return s.queuedRequests > 0
}

// DispatchRequest returns the next request to hand to the driver, or nil
// when there is nothing to serve right now (including while deliberately
// idling in anticipation of the in-service queue's next request).
func (s *Scheduler) DispatchRequest() *Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.broken {
		return nil
	}
	now := s.clock()

	// Each failed pick expires one queue, so the loop is bounded.
	for attempts := s.busyQueues + 1; attempts > 0; attempts-- {
		q := s.selectQueue(now)
		if q == nil {
			return nil
		}
		rq := q.nextRq
		if !s.invariant(rq != nil, "in-service queue %s has no next request", q.name) {
			return nil
		}

		charge := servToCharge(&s.cfg, rq, q)
		if charge > q.entity.budgetLeft() && q.entity.service > 0 {
			s.expireLocked(q, now, ExpireBudgetExhausted)
			continue
		}

		// Serve rq: budgets are charged at dispatch.
		next := findNextRequest(&s.cfg, q, rq)
		if !s.invariant(q.removeRequest(rq), "queue %s: dispatching request not in pending set", q.name) {
			return nil
		}
		q.nextRq = next
		q.entity.service += charge
		q.serviceFromBacklogged += charge
		if !rq.Sync {
			q.asyncServedThisTurn++
		}
		q.queued[syncIndex(rq.Sync)]--
		s.queuedRequests--
		q.dispatched++
		rq.dispatchedAt = now
		s.lastPosition = rq.endSector()

		s.updateWrData(q, now)

		s.metrics.Dispatches++
		s.metrics.SectorsDispatched += rq.Sectors
		if rq.Sync {
			s.metrics.SyncDispatches++
		} else {
			s.metrics.AsyncDispatches++
		}
		return rq
	}
	return nil
}

// selectQueue returns the queue to serve, expiring the in-service queue
// first if its turn is over, and picking a fresh entity from the service
// trees otherwise. Returns nil when the device should stay idle.
func (s *Scheduler) selectQueue(now Ticks) *Queue {
	if q := s.inService; q != nil {
		if q.nextRq != nil {
			switch {
			case q.entity.service > 0 && ticksAfterEq(now, q.budgetTimeout):
				s.expireLocked(q, now, ExpireBudgetTimeout)
			case !q.sync && q.asyncServedThisTurn >= s.cfg.MaxBudgetAsyncRequests:
				s.expireLocked(q, now, ExpireBudgetExhausted)
			default:
				return q
			}
		} else {
			if q.dispatched > 0 {
				// Still waiting on in-driver requests; the
				// completion path decides what happens next.
				return nil
			}
			if s.idling {
				if ticksBefore(now, s.idleUntil) {
					return nil // keep anticipating
				}
				s.idling = false
				s.expireLocked(q, now, ExpireTooIdle)
			} else {
				s.expireLocked(q, now, ExpireNoMoreRequests)
			}
		}
	}

	for c := 0; c < int(numClasses); c++ {
		e := s.trees[c].selectInService()
		if e == nil {
			continue
		}
		q := e.queue
		s.inService = q
		q.asyncServedThisTurn = 0
		timeout := s.cfg.TimeoutSync
		if !q.sync {
			timeout = s.cfg.TimeoutAsync
		}
		q.budgetTimeout = now + timeout
		return q
	}
	return nil
}

// expireLocked ends q's in-service turn (or busy stint) for the given
// reason: charge accounting, budget auto-tune, and requeue or deactivation.
func (s *Scheduler) expireLocked(q *Queue, now Ticks, reason ExpireReason) {
	e := &q.entity

	// A seek-bound queue that expires for idleness is charged its whole
	// budget: letting it keep the unused part would reward exactly the
	// access pattern budgets exist to contain.
	if reason == ExpireTooIdle && q.seeky(&s.cfg) && q.wrCoeff == 1 {
		e.service = e.budget
	}
	served := e.service

	st := s.tree(q)
	st.expire(e)
	s.recalcBudget(q, reason, served)

	if q == s.inService {
		s.inService = nil
	}
	s.idling = false
	s.metrics.countExpiration(reason)
	s.logEvent("queue %s: expired (%s), served %d sectors, next budget %d",
		q.name, reason, served, q.maxBudget)

	if len(q.pending) > 0 && reason != ExpireQueueExit {
		e.budget = nextActivationBudget(&s.cfg, q)
		st.requeue(e)
	} else {
		if q.sync && len(q.pending) == 0 {
			q.softRtNextStart = s.softrtNextStart(q, now)
		}
		s.delBusy(q)
	}
}

// RequestCompleted tells the scheduler a dispatched request finished.
// serviceUsed is the observed service in sectors; pass 0 to use the
// request's own size.
func (s *Scheduler) RequestCompleted(rq *Request, serviceUsed int64) {
	s.mu.Lock()
	kick := false
	if !s.broken {
		kick = s.requestCompletedLocked(rq, serviceUsed)
	}
	cb := s.OnDispatchNeeded
	s.mu.Unlock()
	if kick && cb != nil {
		cb()
	}
}

func (s *Scheduler) requestCompletedLocked(rq *Request, serviceUsed int64) bool {
	now := s.clock()
	q := rq.queue
	if !s.invariant(q != nil && q.dispatched > 0, "completion for a request that was never dispatched") {
		return false
	}
	q.dispatched--

	if serviceUsed <= 0 {
		serviceUsed = rq.Sectors
	}
	s.rate.observe(serviceUsed, now-rq.dispatchedAt)
	if rq.Sync {
		q.ttimeLastEndReq = now
	}

	if q == s.inService && len(q.pending) == 0 && q.dispatched == 0 {
		if s.shouldIdle(q) {
			s.idling = true
			s.idleUntil = now + s.cfg.SliceIdle
			s.metrics.IdleWaits++
		} else {
			s.expireLocked(q, now, ExpireNoMoreRequests)
		}
	}
	return s.queuedRequests > 0
}

// shouldIdle decides whether to leave the device idle after the in-service
// queue emptied, betting on its next request arriving imminently.
func (s *Scheduler) shouldIdle(q *Queue) bool {
	if s.cfg.SliceIdle <= 0 || !q.sync || q.inLargeBurst {
		return false
	}
	if q.wrCoeff > 1 {
		return true
	}
	if q.seeky(&s.cfg) && s.weights.symmetric() {
		// Seek-bound queue in a symmetric scenario: switching away
		// costs nothing fairness-wise and saves the idle wait.
		return false
	}
	return q.thinkTimeSmall(&s.cfg) || q.ioBound || !s.weights.symmetric()
}

// Pending returns the number of queued (not yet dispatched) requests.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queuedRequests
}

// IdleDeadline reports the anticipation deadline while idling is armed.
func (s *Scheduler) IdleDeadline() (Ticks, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.idleUntil, s.idling
}

// Broken reports whether an invariant violation halted this device.
func (s *Scheduler) Broken() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.broken
}

// Config returns a copy of the scheduler configuration.
func (s *Scheduler) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Metrics returns a snapshot of the scheduling counters.
func (s *Scheduler) Metrics() Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metrics
}

// State returns a point-in-time view of the scheduler, for UIs and
// debugging.
func (s *Scheduler) State() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	inService := ""
	if s.inService != nil {
		inService = s.inService.name
	}
	return map[string]interface{}{
		"queuedRequests":  s.queuedRequests,
		"busyQueues":      s.busyQueues,
		"wrBusyQueues":    s.wrBusyQueues,
		"inService":       inService,
		"idling":          s.idling,
		"largeBurst":      s.largeBurst,
		"burstSize":       s.burstSize,
		"distinctWeights": s.weights.distinctWeights(),
		"symmetric":       s.weights.symmetric(),
		"peakRate":        s.rate.peakRate(),
		"vtimeSync":       s.trees[classSync].vtime,
		"vtimeAsync":      s.trees[classAsync].vtime,
		"headPosition":    s.lastPosition,
		"broken":          s.broken,
	}
}
