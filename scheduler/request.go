package scheduler

// Request is one pending storage request. The scheduler orders requests by
// start sector and never looks at payloads; all state is in-memory and
// device-session-scoped.
type Request struct {
	Sector  int64 // start sector
	Sectors int64 // size in sectors
	Sync    bool  // reads, and writes the issuer waits on
	Meta    bool  // filesystem metadata; preferred by request selection
	Arrival Ticks // when the request entered the scheduler

	queue        *Queue
	dispatchedAt Ticks
}

// endSector returns the first sector past the request.
func (rq *Request) endSector() int64 {
	return rq.Sector + rq.Sectors
}

// Queue returns the queue the request belongs to, nil before AddRequest.
func (rq *Request) Queue() *Queue {
	return rq.queue
}
