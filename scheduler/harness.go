package scheduler

import (
	"fmt"
	"math/rand"
)

// DeviceConfig models the simulated device: a fixed transfer rate plus a
// flat seek penalty for jumps beyond a distance threshold. Deliberately
// crude; it is enough to make sequential access cheaper than random access,
// which is the property the scheduling heuristics react to.
type DeviceConfig struct {
	TransferSectorsPerMs  int64 `json:"transferSectorsPerMs"`
	SeekCostMs            Ticks `json:"seekCostMs"`
	SeekDistanceThreshold int64 `json:"seekDistanceThreshold"`
}

// DefaultDeviceConfig returns a device resembling a fast disk.
func DefaultDeviceConfig() DeviceConfig {
	return DeviceConfig{
		TransferSectorsPerMs:  512,
		SeekCostMs:            3,
		SeekDistanceThreshold: 2048,
	}
}

// Validate checks if device configuration values are reasonable
func (dc *DeviceConfig) Validate() error {
	if dc.TransferSectorsPerMs <= 0 {
		return ErrInvalidConfig("transferSectorsPerMs must be > 0")
	}
	if dc.SeekCostMs < 0 {
		return ErrInvalidConfig("seekCostMs must be >= 0")
	}
	if dc.SeekDistanceThreshold < 0 {
		return ErrInvalidConfig("seekDistanceThreshold must be >= 0")
	}
	return nil
}

// SimConfig is the complete configuration of one simulation run.
type SimConfig struct {
	Scheduler  Config         `json:"scheduler"`
	Device     DeviceConfig   `json:"device"`
	Streams    []StreamConfig `json:"streams"`
	DurationMs Ticks          `json:"durationMs"`
	Seed       int64          `json:"seed"`
}

// DefaultSimConfig returns a runnable two-reader baseline: one stream at
// twice the other's weight, both sequential, so the service shares should
// come out near 2:1.
func DefaultSimConfig() SimConfig {
	return SimConfig{
		Scheduler:  DefaultConfig(),
		Device:     DefaultDeviceConfig(),
		DurationMs: 10_000,
		Seed:       42,
		Streams: []StreamConfig{
			{
				Name:           "reader-hi",
				Weight:         200,
				Sync:           true,
				Sequential:     true,
				RequestSectors: 64,
				ZoneStart:      0,
				ZoneSectors:    1 << 24,
				ThinkTimeMs:    1,
			},
			{
				Name:           "reader-lo",
				Weight:         100,
				Sync:           true,
				Sequential:     true,
				RequestSectors: 64,
				ZoneStart:      1 << 24,
				ZoneSectors:    1 << 24,
				ThinkTimeMs:    1,
			},
		},
	}
}

// Validate checks if simulation configuration values are reasonable
func (sc *SimConfig) Validate() error {
	if err := sc.Scheduler.Validate(); err != nil {
		return err
	}
	if err := sc.Device.Validate(); err != nil {
		return err
	}
	if sc.DurationMs <= 0 {
		return ErrInvalidConfig("durationMs must be > 0")
	}
	if len(sc.Streams) == 0 {
		return ErrInvalidConfig("at least one stream is required")
	}
	for i := range sc.Streams {
		if err := sc.Streams[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// StreamResult is the per-stream outcome of a simulation run.
type StreamResult struct {
	Name          string  `json:"name"`
	Weight        int64   `json:"weight"`
	Requests      int64   `json:"requests"`
	SectorsServed int64   `json:"sectorsServed"`
	Share         float64 `json:"share"`
	MeanLatencyMs float64 `json:"meanLatencyMs"`
	MaxLatencyMs  Ticks   `json:"maxLatencyMs"`
}

// Results is the outcome of a simulation run.
type Results struct {
	DurationMs   Ticks          `json:"durationMs"`
	TotalSectors int64          `json:"totalSectors"`
	Streams      []StreamResult `json:"streams"`
	Scheduler    Metrics        `json:"scheduler"`
	Broken       bool           `json:"broken"`
}

// Harness drives a Scheduler against simulated streams and a simulated
// device on a virtual clock, and measures the service share each stream got.
type Harness struct {
	cfg     SimConfig
	sched   *Scheduler
	events  *EventQueue
	streams []*stream
	byQueue map[*Queue]*stream

	now          Ticks
	deviceBusy   bool
	deviceHead   int64
	lastIdleWake Ticks

	// LogEvent, when set, receives a trace of scheduler decisions.
	LogEvent func(msg string)
}

// NewHarness builds a harness (and its scheduler) from the configuration.
func NewHarness(cfg SimConfig) (*Harness, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	h := &Harness{cfg: cfg}
	if err := h.Reset(); err != nil {
		return nil, err
	}
	return h, nil
}

// Reset restarts the simulation from virtual time zero with the current
// configuration.
func (h *Harness) Reset() error {
	h.now = 0
	h.deviceBusy = false
	h.deviceHead = 0
	h.lastIdleWake = 0
	h.events = NewEventQueue()
	h.byQueue = make(map[*Queue]*stream)

	sched, err := NewScheduler(h.cfg.Scheduler, func() Ticks { return h.now })
	if err != nil {
		return err
	}
	sched.StrictChecks = true
	sched.LogEvent = func(msg string) {
		if h.LogEvent != nil {
			h.LogEvent(fmt.Sprintf("t=%dms %s", h.now, msg))
		}
	}
	h.sched = sched

	rng := rand.New(rand.NewSource(h.cfg.Seed))
	streams, err := expandStreams(h.cfg.Streams, rng)
	if err != nil {
		return err
	}
	h.streams = streams
	for _, st := range h.streams {
		h.events.Push(NewStreamStartEvent(st.cfg.StartAtMs, st))
	}
	return nil
}

// UpdateConfig swaps the configuration and restarts the run under it.
func (h *Harness) UpdateConfig(cfg SimConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	h.cfg = cfg
	return h.Reset()
}

// Scheduler exposes the harness's scheduler, mainly for live inspection.
func (h *Harness) Scheduler() *Scheduler { return h.sched }

// Now returns the current virtual time.
func (h *Harness) Now() Ticks { return h.now }

// Step advances the simulation by delta virtual milliseconds, processing
// every event due in that window.
func (h *Harness) Step(delta Ticks) error {
	target := h.now + delta
	for !h.events.IsEmpty() && h.events.Peek().Timestamp() <= target {
		ev := h.events.Pop()
		if ev.Timestamp() > h.now {
			h.now = ev.Timestamp()
		}
		if err := h.processEvent(ev); err != nil {
			return err
		}
		h.tryDispatch()
	}
	h.now = target
	return nil
}

// Run executes the simulation until the configured duration (or until the
// event queue drains) and returns the measured results.
func (h *Harness) Run() (*Results, error) {
	for !h.events.IsEmpty() {
		ev := h.events.Pop()
		if ev.Timestamp() > h.cfg.DurationMs {
			break
		}
		if ev.Timestamp() > h.now {
			h.now = ev.Timestamp()
		}
		if err := h.processEvent(ev); err != nil {
			return nil, err
		}
		h.tryDispatch()
	}
	h.now = h.cfg.DurationMs

	for _, st := range h.streams {
		if st.started {
			h.sched.ExitQueue(st.queue)
		}
	}
	return h.results(), nil
}

func (h *Harness) processEvent(ev Event) error {
	switch e := ev.(type) {
	case *StreamStartEvent:
		return h.startStream(e.stream)
	case *ArrivalEvent:
		h.handleArrival(e)
	case *CompletionEvent:
		h.handleCompletion(e)
	case *IdleExpiryEvent:
		// Nothing to do here: the dispatch pass after every event
		// notices the expired anticipation deadline.
	default:
		return SchedError{Message: fmt.Sprintf("unhandled event type %s", ev.Type())}
	}
	return nil
}

func (h *Harness) startStream(st *stream) error {
	q, err := h.sched.AddQueue(st.name, st.cfg.Weight, st.cfg.Sync)
	if err != nil {
		return err
	}
	st.queue = q
	st.started = true
	h.byQueue[q] = st
	h.scheduleArrival(st, h.now)
	return nil
}

func (h *Harness) scheduleArrival(st *stream, at Ticks) {
	if st.stoppedAt(at) || at > h.cfg.DurationMs {
		return
	}
	h.events.Push(NewArrivalEvent(at, st, st.pickSector(), st.cfg.RequestSectors))
}

func (h *Harness) handleArrival(e *ArrivalEvent) {
	st := e.stream
	rq := &Request{
		Sector:  e.sector,
		Sectors: e.sectors,
		Sync:    st.cfg.Sync,
	}
	st.issued++
	h.sched.AddRequest(st.queue, rq)

	if st.openLoop() {
		h.scheduleArrival(st, h.now+st.arrivalInterval())
	}
}

func (h *Harness) handleCompletion(e *CompletionEvent) {
	h.deviceBusy = false
	st := e.stream
	st.recordCompletion(e.request, h.now)
	h.sched.RequestCompleted(e.request, 0)

	// Closed-loop streams think for a while, then issue the next request.
	if !st.openLoop() {
		h.scheduleArrival(st, h.now+st.cfg.ThinkTimeMs)
	}
}

// tryDispatch keeps the device fed: it pulls requests from the scheduler
// until the device is busy or the scheduler yields nothing. When the
// scheduler is deliberately idling, a wakeup is planted at its deadline.
func (h *Harness) tryDispatch() {
	for !h.deviceBusy {
		rq := h.sched.DispatchRequest()
		if rq == nil {
			if deadline, idling := h.sched.IdleDeadline(); idling && deadline > h.lastIdleWake {
				h.events.Push(NewIdleExpiryEvent(deadline))
				h.lastIdleWake = deadline
			}
			return
		}
		st := h.byQueue[rq.Queue()]
		done := h.now + h.serviceTime(rq)
		h.deviceBusy = true
		h.events.Push(NewCompletionEvent(done, h.now, rq, st))
	}
}

// serviceTime models the device: a flat seek penalty for long jumps plus
// transfer time at the configured rate (at least 1ms per request).
func (h *Harness) serviceTime(rq *Request) Ticks {
	var cost Ticks
	dist := rq.Sector - h.deviceHead
	if dist < 0 {
		dist = -dist
	}
	if dist > h.cfg.Device.SeekDistanceThreshold {
		cost += h.cfg.Device.SeekCostMs
	}
	transfer := (rq.Sectors + h.cfg.Device.TransferSectorsPerMs - 1) /
		h.cfg.Device.TransferSectorsPerMs
	if transfer < 1 {
		transfer = 1
	}
	cost += Ticks(transfer)
	h.deviceHead = rq.endSector()
	return cost
}

// PendingArrivals returns how many generated requests have not yet reached
// the scheduler.
func (h *Harness) PendingArrivals() int {
	return h.events.CountArrivalEvents()
}

// DeviceBusyUntil returns the completion time of the in-flight request.
// ok is false while the device is idle.
func (h *Harness) DeviceBusyUntil() (deadline Ticks, ok bool) {
	ce := h.events.FindNextCompletionEvent()
	if ce == nil {
		return 0, false
	}
	return ce.Timestamp(), true
}

// Snapshot returns the accounting so far without ending the run.
func (h *Harness) Snapshot() *Results {
	return h.results()
}

func (h *Harness) results() *Results {
	res := &Results{
		DurationMs: h.cfg.DurationMs,
		Scheduler:  h.sched.Metrics(),
		Broken:     h.sched.Broken(),
	}
	for _, st := range h.streams {
		res.TotalSectors += st.sectorsServed
	}
	for _, st := range h.streams {
		sr := StreamResult{
			Name:          st.name,
			Weight:        st.cfg.Weight,
			Requests:      st.completed,
			SectorsServed: st.sectorsServed,
			MaxLatencyMs:  st.latencyMax,
		}
		if res.TotalSectors > 0 {
			sr.Share = float64(st.sectorsServed) / float64(res.TotalSectors)
		}
		if st.completed > 0 {
			sr.MeanLatencyMs = float64(st.latencySum) / float64(st.completed)
		}
		res.Streams = append(res.Streams, sr)
	}
	return res
}
