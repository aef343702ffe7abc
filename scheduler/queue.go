package scheduler

import "sort"

// sampleValid reports whether enough samples were collected for a running
// mean to be trusted.
func sampleValid(samples int64) bool {
	return samples > 80
}

// Queue is a leaf entity plus the request-side state of one I/O-issuing
// context: its sorted pending requests, the next-serve candidate, seek and
// think-time statistics, weight-raising state, and burst membership.
type Queue struct {
	name       string
	sync       bool
	baseWeight int64

	entity Entity

	pending []*Request // sorted by start sector
	nextRq  *Request

	queued     [2]int // pending counts, indexed by syncIndex()
	dispatched int    // in-driver, not yet completed

	// Budget model
	maxBudget           int64 // auto-tuned per-activation budget baseline
	asyncServedThisTurn int
	budgetTimeout       Ticks

	// Weight raising
	wrCoeff           int64
	wrCurMaxTime      Ticks
	lastWrStartFinish Ticks
	softRtNextStart   Ticks

	// Soft real-time bookkeeping
	lastIdleBklogged      Ticks
	serviceFromBacklogged int64

	// Burst membership
	inBurstList  bool
	inLargeBurst bool

	// Classification
	ioBound             bool
	requestsWithinTimer int

	// Seek statistics (fixed point, 1/256 granularity)
	seekSamples    int64
	seekTotal      int64
	seekMean       int64
	lastRequestPos int64

	// Think time: gap between a sync completion and the next arrival
	ttimeSamples    int64
	ttimeTotal      int64
	ttimeMean       Ticks
	ttimeLastEndReq Ticks

	busy bool
}

func syncIndex(sync bool) int {
	if sync {
		return 1
	}
	return 0
}

// Name returns the queue's label (the issuing context's identity).
func (q *Queue) Name() string { return q.name }

// Sync reports whether the queue carries synchronous I/O.
func (q *Queue) Sync() bool { return q.sync }

// WrCoeff returns the current weight-raising coefficient (1 = not raised).
func (q *Queue) WrCoeff() int64 { return q.wrCoeff }

// InLargeBurst reports whether the queue was classified as part of a large
// activation burst.
func (q *Queue) InLargeBurst() bool { return q.inLargeBurst }

// Pending returns the number of queued requests.
func (q *Queue) Pending() int { return len(q.pending) }

// Entity returns the queue's schedulable entity.
func (q *Queue) Entity() *Entity { return &q.entity }

// effectiveWeight is the base weight amplified by the raising coefficient.
func (q *Queue) effectiveWeight() int64 {
	return q.baseWeight * q.wrCoeff
}

// insertRequest adds rq to the pending set, keeping sector order. Requests
// at equal sectors keep arrival order.
func (q *Queue) insertRequest(rq *Request) {
	i := sort.Search(len(q.pending), func(i int) bool {
		return q.pending[i].Sector > rq.Sector
	})
	q.pending = append(q.pending, nil)
	copy(q.pending[i+1:], q.pending[i:])
	q.pending[i] = rq
}

// findRequest returns the index of rq in the pending set, or -1.
func (q *Queue) findRequest(rq *Request) int {
	i := sort.Search(len(q.pending), func(i int) bool {
		return q.pending[i].Sector >= rq.Sector
	})
	for ; i < len(q.pending) && q.pending[i].Sector == rq.Sector; i++ {
		if q.pending[i] == rq {
			return i
		}
	}
	return -1
}

// removeRequest unlinks rq from the pending set. Reports whether it was
// present.
func (q *Queue) removeRequest(rq *Request) bool {
	i := q.findRequest(rq)
	if i < 0 {
		return false
	}
	copy(q.pending[i:], q.pending[i+1:])
	q.pending[len(q.pending)-1] = nil
	q.pending = q.pending[:len(q.pending)-1]
	return true
}

// neighbors returns the requests adjacent to rq in sector order. When rq is
// the last one, next wraps around to the first pending request, giving the
// elevator a restart point.
func (q *Queue) neighbors(rq *Request) (prev, next *Request) {
	i := q.findRequest(rq)
	if i < 0 {
		return nil, nil
	}
	if i > 0 {
		prev = q.pending[i-1]
	}
	if i+1 < len(q.pending) {
		next = q.pending[i+1]
	} else if len(q.pending) > 1 {
		next = q.pending[0]
	}
	return prev, next
}

// updateSeekStats folds the distance between the new request and the end of
// the previous one into the queue's running seek mean.
func (q *Queue) updateSeekStats(rq *Request) {
	sdist := rq.Sector - q.lastRequestPos
	if sdist < 0 {
		sdist = -sdist
	}
	if q.seekSamples == 0 {
		// First request: no distance to measure yet.
		q.seekSamples = 1
		q.lastRequestPos = rq.endSector()
		return
	}
	q.seekSamples = (7*q.seekSamples + 256) / 8
	q.seekTotal = (7*q.seekTotal + 256*sdist) / 8
	q.seekMean = q.seekTotal / q.seekSamples
	q.lastRequestPos = rq.endSector()
}

// seeky reports whether the queue's I/O pattern is seek-bound.
func (q *Queue) seeky(cfg *Config) bool {
	return q.seekMean > cfg.SeekThresholdSectors
}

// updateThinkTime folds the gap since the queue's last completed sync
// request into the running think-time mean.
func (q *Queue) updateThinkTime(cfg *Config, now Ticks) {
	if q.ttimeLastEndReq == 0 {
		return
	}
	elapsed := now - q.ttimeLastEndReq
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed > 2*cfg.SliceIdle {
		elapsed = 2 * cfg.SliceIdle
	}
	q.ttimeSamples = (7*q.ttimeSamples + 256) / 8
	q.ttimeTotal = (7*q.ttimeTotal + 256*int64(elapsed)) / 8
	q.ttimeMean = Ticks(q.ttimeTotal / q.ttimeSamples)
}

// thinkTimeSmall reports whether the queue issues its next request almost
// immediately after a completion. Queues without enough samples get the
// benefit of the doubt.
func (q *Queue) thinkTimeSmall(cfg *Config) bool {
	if !sampleValid(q.ttimeSamples) {
		return true
	}
	return q.ttimeMean <= cfg.SliceIdle
}
