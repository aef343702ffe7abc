package scheduler

// Weight raising temporarily multiplies a queue's weight and enables idling
// for it, to cut the latency of interactive and soft real-time workloads.
// A queue is raised on activation when it was idle long enough to be deemed
// interactive, or when its completion pattern qualifies as soft real-time,
// unless it belongs to a detected large burst.

// wrDuration returns how long interactive weight-raising lasts: the
// configured override if set, otherwise derived from the measured peak rate.
func (s *Scheduler) wrDuration() Ticks {
	if s.cfg.WrMaxTime > 0 {
		return s.cfg.WrMaxTime
	}
	return s.rate.wrDuration()
}

// endWr returns the queue to normal weight. Idling eligibility is
// reconsidered on the next dispatch.
func (s *Scheduler) endWr(q *Queue, now Ticks) {
	q.lastWrStartFinish = now
	q.wrCoeff = 1
	q.wrCurMaxTime = 0
	q.entity.setWeight(q.effectiveWeight())
	if q.busy {
		s.wrBusyQueues--
	}
	s.metrics.WrExpirations++
	s.logEvent("queue %s: weight raising ended at %d", q.name, now)
}

// maybeRaiseOnActivation runs the weight-raising state machine when a queue
// becomes busy. interactive and softRt are the activation-time
// classifications; inBurst says the queue belongs to a large burst.
func (s *Scheduler) maybeRaiseOnActivation(q *Queue, now Ticks, interactive, softRt, inBurst bool) {
	oldCoeff := q.wrCoeff

	if oldCoeff == 1 && (interactive || softRt) {
		q.wrCoeff = s.cfg.WrCoeff
		q.lastWrStartFinish = now
		if interactive {
			q.wrCurMaxTime = s.wrDuration()
		} else {
			q.wrCurMaxTime = s.cfg.WrRtMaxTime
		}
		s.metrics.WrActivations++
		s.logEvent("queue %s: weight raising started at %d, max time %d",
			q.name, now, q.wrCurMaxTime)
	} else if oldCoeff > 1 {
		if interactive {
			q.wrCurMaxTime = s.wrDuration()
		} else if inBurst ||
			(q.wrCurMaxTime == s.cfg.WrRtMaxTime && !softRt) {
			// Found to belong to a large burst, or the soft-rt
			// raising period lapsed without requalifying.
			s.endWr(q, now)
		} else if softRt &&
			ticksBefore(q.lastWrStartFinish+q.wrCurMaxTime, now+s.cfg.WrRtMaxTime) {
			// Recharge rule: the queue qualifies as soft real-time
			// while its remaining raised time is shorter than the
			// soft-rt duration. Extending now (rather than letting
			// raising lapse moments before soft-rt status could be
			// recognized again) avoids a latency spike on the
			// requests pending at that point.
			q.lastWrStartFinish = now
			q.wrCurMaxTime = s.cfg.WrRtMaxTime
			s.metrics.WrRecharges++
		}
	}

	if oldCoeff != q.wrCoeff {
		q.entity.setWeight(q.effectiveWeight())
	}
}

// maybeRaiseBusyAsync raises an already-busy queue whose async requests
// arrive so far apart that, without help, they would only be served at a
// high latency.
func (s *Scheduler) maybeRaiseBusyAsync(q *Queue, rq *Request, now Ticks) {
	if !s.cfg.LowLatency || q.wrCoeff != 1 || rq.Sync {
		return
	}
	if !ticksBefore(q.lastWrStartFinish+s.cfg.WrMinInterArrAsync, now) {
		return
	}
	// The queue went busy unraised and is tracked at its base weight.
	// Raised queues are not tracked, so drop the counter before the
	// weight changes out from under it.
	s.weights.remove(&q.entity, s.invariant)
	q.wrCoeff = s.cfg.WrCoeff
	q.lastWrStartFinish = now
	q.wrCurMaxTime = s.wrDuration()
	q.entity.setWeight(q.effectiveWeight())
	s.wrBusyQueues++
	s.metrics.WrActivations++
	s.logEvent("queue %s: non-idle weight raising started at %d", q.name, now)
}

// updateWrData ends a queue's raising period once its deadline passes.
// Called on every dispatch from the queue.
func (s *Scheduler) updateWrData(q *Queue, now Ticks) {
	if q.wrCoeff <= 1 {
		return
	}
	if ticksBefore(q.lastWrStartFinish+q.wrCurMaxTime, now) {
		s.endWr(q, now)
	}
}

// softrtNextStart computes the earliest instant at which a queue that just
// emptied may be deemed soft real-time again: the time by which its
// backlogged service, replayed at the soft-rt rate ceiling, would complete —
// but never sooner than one idling slice from now, so back-to-back
// qualification cannot happen within a single anticipation window.
func (s *Scheduler) softrtNextStart(q *Queue, now Ticks) Ticks {
	if s.cfg.WrMaxSoftrtRate <= 0 {
		return now
	}
	replay := q.lastIdleBklogged +
		Ticks(q.serviceFromBacklogged*1000/s.cfg.WrMaxSoftrtRate)
	return maxTicks(replay, now+s.cfg.SliceIdle+4)
}
