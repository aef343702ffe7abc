package scheduler

import "testing"

func TestQueueInsertKeepsSectorOrder(t *testing.T) {
	q := &Queue{}
	for _, sector := range []int64{500, 100, 900, 300, 700} {
		q.insertRequest(&Request{Sector: sector, Sectors: 8})
	}

	want := []int64{100, 300, 500, 700, 900}
	if len(q.pending) != len(want) {
		t.Fatalf("pending = %d requests, want %d", len(q.pending), len(want))
	}
	for i, rq := range q.pending {
		if rq.Sector != want[i] {
			t.Errorf("pending[%d].Sector = %d, want %d", i, rq.Sector, want[i])
		}
	}
}

func TestQueueInsertEqualSectorsKeepArrivalOrder(t *testing.T) {
	q := &Queue{}
	first := &Request{Sector: 100, Sectors: 8}
	second := &Request{Sector: 100, Sectors: 16}
	q.insertRequest(first)
	q.insertRequest(second)

	if q.pending[0] != first || q.pending[1] != second {
		t.Error("equal-sector requests must keep arrival order")
	}
}

func TestQueueRemoveRequest(t *testing.T) {
	q := &Queue{}
	a := &Request{Sector: 100, Sectors: 8}
	b := &Request{Sector: 100, Sectors: 8} // same sector, distinct request
	c := &Request{Sector: 200, Sectors: 8}
	q.insertRequest(a)
	q.insertRequest(b)
	q.insertRequest(c)

	if !q.removeRequest(b) {
		t.Fatal("remove should find the exact request among equals")
	}
	if q.removeRequest(b) {
		t.Error("second remove of the same request should report absence")
	}
	if len(q.pending) != 2 || q.pending[0] != a || q.pending[1] != c {
		t.Error("remove disturbed the remaining order")
	}
}

func TestQueueNeighborsWrapAround(t *testing.T) {
	q := &Queue{}
	a := &Request{Sector: 100, Sectors: 8}
	b := &Request{Sector: 200, Sectors: 8}
	c := &Request{Sector: 300, Sectors: 8}
	q.insertRequest(a)
	q.insertRequest(b)
	q.insertRequest(c)

	prev, next := q.neighbors(b)
	if prev != a || next != c {
		t.Error("middle request should see both sector neighbors")
	}

	// The last request has no forward neighbor; the elevator restarts from
	// the lowest sector instead.
	prev, next = q.neighbors(c)
	if prev != b || next != a {
		t.Errorf("last request should wrap to the first, got prev=%v next=%v", prev, next)
	}

	prev, next = q.neighbors(a)
	if prev != nil || next != b {
		t.Error("first request has no backward neighbor")
	}
}

func TestQueueSeekStats(t *testing.T) {
	cfg := DefaultConfig()
	q := &Queue{}

	// Strictly sequential requests: the mean seek distance stays zero.
	pos := int64(1000)
	for i := 0; i < 200; i++ {
		q.updateSeekStats(&Request{Sector: pos, Sectors: 64})
		pos += 64
	}
	if q.seeky(&cfg) {
		t.Errorf("sequential pattern classified seeky, mean=%d", q.seekMean)
	}

	// Random far-apart requests push the mean past the threshold.
	r := &Queue{}
	pos = 0
	for i := 0; i < 200; i++ {
		r.updateSeekStats(&Request{Sector: pos, Sectors: 64})
		pos += 5 * cfg.SeekThresholdSectors
	}
	if !r.seeky(&cfg) {
		t.Errorf("far-seeking pattern not classified seeky, mean=%d", r.seekMean)
	}
}

func TestQueueThinkTime(t *testing.T) {
	cfg := DefaultConfig()

	// Arrivals right after each completion: small think time.
	q := &Queue{}
	now := Ticks(10_000)
	for i := 0; i < 200; i++ {
		q.ttimeLastEndReq = now
		now++
		q.updateThinkTime(&cfg, now)
	}
	if !q.thinkTimeSmall(&cfg) {
		t.Errorf("1ms gaps should count as small think time, mean=%d", q.ttimeMean)
	}

	// Long pauses between completion and next arrival: large think time.
	r := &Queue{}
	now = Ticks(10_000)
	for i := 0; i < 200; i++ {
		r.ttimeLastEndReq = now
		now += 10 * cfg.SliceIdle
		r.updateThinkTime(&cfg, now)
	}
	if r.thinkTimeSmall(&cfg) {
		t.Errorf("long gaps should not count as small think time, mean=%d", r.ttimeMean)
	}

	// Without enough samples the queue gets the benefit of the doubt.
	fresh := &Queue{}
	if !fresh.thinkTimeSmall(&cfg) {
		t.Error("unsampled queue should default to small think time")
	}
}
