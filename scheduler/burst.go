package scheduler

// Burst detection distinguishes two kinds of activation bursts. Many queues
// activated in quick succession usually come from services spawning lots of
// parallel helpers; weight-raising (and idling for) any of them just lowers
// aggregate throughput without improving the perceived latency of a single
// job, so queues of a "large" burst must not be raised. Smaller bursts look
// like a complex application starting up, and raising all of its queues
// together minimizes the end-to-end startup latency.
//
// The detector keeps a temporary burst list. While the burst stays below the
// large threshold the list tracks its members; once the threshold is hit,
// every tracked queue is marked as in a large burst, the list is dropped
// (it has served its purpose), and any queue activated shortly after is
// marked directly.

// resetBurstList empties the burst list and restarts it with just q, which
// may be the first queue of a new burst.
func (s *Scheduler) resetBurstList(q *Queue) {
	for _, item := range s.burstList {
		item.inBurstList = false
	}
	s.burstList = s.burstList[:0]
	s.burstList = append(s.burstList, q)
	q.inBurstList = true
	s.burstSize = 1
}

// addToBurst appends q to the current burst, entering large-burst mode when
// the threshold is reached.
func (s *Scheduler) addToBurst(q *Queue) {
	s.burstSize++

	if s.burstSize == s.cfg.LargeBurstThreshold {
		// Enough queues activated shortly after each other: the burst
		// is large. Mark everything tracked so far, plus q itself.
		s.largeBurst = true
		for _, item := range s.burstList {
			item.inLargeBurst = true
			item.inBurstList = false
			s.metrics.LargeBurstMarks++
		}
		q.inLargeBurst = true
		s.metrics.LargeBurstMarks++
		s.burstList = s.burstList[:0]
	} else {
		s.burstList = append(s.burstList, q)
		q.inBurstList = true
	}
}

// handleBurst runs the burst state machine for the activation of q.
// idleForLongTime means q was idle at least as long as an interactive
// queue, so whatever burst it may have belonged to is over for it.
func (s *Scheduler) handleBurst(q *Queue, idleForLongTime bool, now Ticks) {
	if idleForLongTime {
		if q.inBurstList {
			for i, item := range s.burstList {
				if item == q {
					s.burstList = append(s.burstList[:i], s.burstList[i+1:]...)
					break
				}
			}
			q.inBurstList = false
			// burstSize is deliberately not decremented: q was
			// still activated during the current burst.
		}
		q.inLargeBurst = false
	}

	if q.inBurstList || q.inLargeBurst {
		return
	}

	// Activation happened late enough that the current burst is over.
	// This branch also handles the very first activation, when
	// lastInsInBurst is not yet significant: q still ends up as the sole
	// member of a fresh burst list, which is exactly what has to happen.
	if ticksBefore(s.lastInsInBurst+s.cfg.BurstInterval, now) {
		s.largeBurst = false
		s.resetBurstList(q)
	} else if s.largeBurst {
		// Activated shortly after the last queue while the burst is
		// already large: mark immediately, no need to track.
		q.inLargeBurst = true
		s.metrics.LargeBurstMarks++
	} else {
		s.addToBurst(q)
	}

	// Whether q joined the burst, was marked, or started a new one, it is
	// now the latest insertion. Re-insertions after a stale-membership
	// clear count too.
	s.lastInsInBurst = now
}
