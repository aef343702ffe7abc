package scheduler

import "fmt"

// EventType represents the type of simulation event
type EventType int

const (
	EventTypeArrival EventType = iota
	EventTypeCompletion
	EventTypeIdleExpiry
	EventTypeStreamStart
)

func (et EventType) String() string {
	switch et {
	case EventTypeArrival:
		return "arrival"
	case EventTypeCompletion:
		return "completion"
	case EventTypeIdleExpiry:
		return "idle_expiry"
	case EventTypeStreamStart:
		return "stream_start"
	default:
		return "unknown"
	}
}

// Event is the base interface for all simulation events
type Event interface {
	Timestamp() Ticks // Virtual time in milliseconds
	Type() EventType
	String() string
}

// ArrivalEvent represents one request reaching the scheduler.
type ArrivalEvent struct {
	timestamp Ticks
	stream    *stream
	sector    int64
	sectors   int64
}

func NewArrivalEvent(timestamp Ticks, st *stream, sector, sectors int64) *ArrivalEvent {
	return &ArrivalEvent{
		timestamp: timestamp,
		stream:    st,
		sector:    sector,
		sectors:   sectors,
	}
}

func (e *ArrivalEvent) Timestamp() Ticks { return e.timestamp }
func (e *ArrivalEvent) Type() EventType  { return EventTypeArrival }
func (e *ArrivalEvent) String() string {
	return fmt.Sprintf("Arrival(t=%dms, stream=%s, sector=%d+%d)",
		e.timestamp, e.stream.name, e.sector, e.sectors)
}

// CompletionEvent represents the device finishing an in-flight request.
type CompletionEvent struct {
	timestamp Ticks
	startTime Ticks // when the request was handed to the device
	request   *Request
	stream    *stream
}

func NewCompletionEvent(timestamp, startTime Ticks, rq *Request, st *stream) *CompletionEvent {
	return &CompletionEvent{
		timestamp: timestamp,
		startTime: startTime,
		request:   rq,
		stream:    st,
	}
}

func (e *CompletionEvent) Timestamp() Ticks  { return e.timestamp }
func (e *CompletionEvent) StartTime() Ticks  { return e.startTime }
func (e *CompletionEvent) Type() EventType   { return EventTypeCompletion }
func (e *CompletionEvent) Request() *Request { return e.request }
func (e *CompletionEvent) String() string {
	return fmt.Sprintf("Completion(t=%dms, stream=%s, sector=%d+%d)",
		e.timestamp, e.stream.name, e.request.Sector, e.request.Sectors)
}

// IdleExpiryEvent wakes the dispatch loop when the scheduler's anticipation
// deadline passes without the awaited request arriving.
type IdleExpiryEvent struct {
	timestamp Ticks
}

func NewIdleExpiryEvent(timestamp Ticks) *IdleExpiryEvent {
	return &IdleExpiryEvent{timestamp: timestamp}
}

func (e *IdleExpiryEvent) Timestamp() Ticks { return e.timestamp }
func (e *IdleExpiryEvent) Type() EventType  { return EventTypeIdleExpiry }
func (e *IdleExpiryEvent) String() string {
	return fmt.Sprintf("IdleExpiry(t=%dms)", e.timestamp)
}

// StreamStartEvent activates a workload stream at its configured start time.
type StreamStartEvent struct {
	timestamp Ticks
	stream    *stream
}

func NewStreamStartEvent(timestamp Ticks, st *stream) *StreamStartEvent {
	return &StreamStartEvent{timestamp: timestamp, stream: st}
}

func (e *StreamStartEvent) Timestamp() Ticks { return e.timestamp }
func (e *StreamStartEvent) Type() EventType  { return EventTypeStreamStart }
func (e *StreamStartEvent) String() string {
	return fmt.Sprintf("StreamStart(t=%dms, stream=%s)", e.timestamp, e.stream.name)
}
