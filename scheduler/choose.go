package scheduler

// wrapCase classifies which of the two candidate requests lies behind the
// head farther than the tolerated backseek window, i.e. would require a
// "wrapped" seek back across the device.
type wrapCase int

const (
	neitherWrapped wrapCase = iota
	firstWrapped
	secondWrapped
	bothWrapped
)

// chooseRequest picks which of rq1 and rq2 is best served next, given the
// current head position. Strict one-way elevator, except that short backward
// seeks within the backseek window are allowed, biased by the backseek
// penalty relative to a similar forward seek.
//
// Tie-break order: sync beats async, metadata beats non-metadata, then the
// smaller penalized distance; on an exact distance tie the higher sector wins
// (keep scanning forward).
func chooseRequest(cfg *Config, rq1, rq2 *Request, head int64) *Request {
	if rq1 == nil || rq1 == rq2 {
		return rq2
	}
	if rq2 == nil {
		return rq1
	}

	if rq1.Sync && !rq2.Sync {
		return rq1
	} else if rq2.Sync && !rq1.Sync {
		return rq2
	}
	if rq1.Meta && !rq2.Meta {
		return rq1
	} else if rq2.Meta && !rq1.Meta {
		return rq2
	}

	s1, s2 := rq1.Sector, rq2.Sector
	backMax := cfg.BackSeekMaxSectors

	var d1, d2 int64
	wrap := neitherWrapped

	if s1 >= head {
		d1 = s1 - head
	} else if s1+backMax >= head {
		d1 = (head - s1) * cfg.BackSeekPenalty
	} else {
		wrap = firstWrapped
	}

	if s2 >= head {
		d2 = s2 - head
	} else if s2+backMax >= head {
		d2 = (head - s2) * cfg.BackSeekPenalty
	} else {
		if wrap == firstWrapped {
			wrap = bothWrapped
		} else {
			wrap = secondWrapped
		}
	}

	switch wrap {
	case neitherWrapped:
		if d1 < d2 {
			return rq1
		}
		if d2 < d1 {
			return rq2
		}
		if s1 >= s2 {
			return rq1
		}
		return rq2

	case secondWrapped:
		return rq1
	case firstWrapped:
		return rq2
	default: // bothWrapped
		// Both requests are behind the head beyond the backseek window.
		// Start with the one further behind: only one back seek will be
		// needed, and back seeks cost more than forward ones.
		if s1 <= s2 {
			return rq1
		}
		return rq2
	}
}

// findNextRequest picks the best next-serve candidate among the sorted
// neighbors of last within the queue's pending set. last must still be in
// the pending set.
func findNextRequest(cfg *Config, q *Queue, last *Request) *Request {
	prev, next := q.neighbors(last)
	return chooseRequest(cfg, next, prev, last.Sector)
}
