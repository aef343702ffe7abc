package scheduler

import (
	"fmt"
	"math/rand"
)

// StreamConfig describes one synthetic I/O stream of a simulation. A stream
// with RatePerSec > 0 is open-loop: requests arrive on a timer regardless of
// completions (the typical shape of buffered writeback). A stream with
// RatePerSec == 0 is closed-loop: it keeps one request window in flight and
// issues the next one ThinkTimeMs after a completion, like a reading process.
type StreamConfig struct {
	Name   string `json:"name"`
	Weight int64  `json:"weight"`
	Sync   bool   `json:"sync"`

	// Access pattern. Sequential streams advance through their zone;
	// non-sequential streams pick sectors from Distribution.
	Sequential   bool             `json:"sequential"`
	Distribution DistributionType `json:"distribution"`

	RequestSectors int64 `json:"requestSectors"`
	ZoneStart      int64 `json:"zoneStart"`
	ZoneSectors    int64 `json:"zoneSectors"`

	ThinkTimeMs Ticks `json:"thinkTimeMs"` // closed-loop gap after a completion
	RatePerSec  int64 `json:"ratePerSec"`  // open-loop arrival rate; 0 = closed-loop

	StartAtMs Ticks `json:"startAtMs"`
	StopAtMs  Ticks `json:"stopAtMs"` // 0 = run until the simulation ends

	// Clones spawns this many identical streams (name-0, name-1, ...)
	// starting CloneStaggerMs apart, for activation-burst scenarios.
	Clones         int   `json:"clones"`
	CloneStaggerMs Ticks `json:"cloneStaggerMs"`
}

// Validate checks if stream configuration values are reasonable
func (sc *StreamConfig) Validate() error {
	if sc.Name == "" {
		return ErrInvalidConfig("stream name must not be empty")
	}
	if sc.Weight <= 0 {
		return ErrInvalidConfig(fmt.Sprintf("stream %s: weight must be > 0", sc.Name))
	}
	if sc.RequestSectors <= 0 {
		return ErrInvalidConfig(fmt.Sprintf("stream %s: requestSectors must be > 0", sc.Name))
	}
	if sc.ZoneSectors <= 0 {
		return ErrInvalidConfig(fmt.Sprintf("stream %s: zoneSectors must be > 0", sc.Name))
	}
	if sc.ThinkTimeMs < 0 || sc.RatePerSec < 0 {
		return ErrInvalidConfig(fmt.Sprintf("stream %s: think time and rate must be >= 0", sc.Name))
	}
	if sc.StartAtMs < 0 || sc.StopAtMs < 0 {
		return ErrInvalidConfig(fmt.Sprintf("stream %s: start/stop times must be >= 0", sc.Name))
	}
	if sc.Clones < 0 {
		return ErrInvalidConfig(fmt.Sprintf("stream %s: clones must be >= 0", sc.Name))
	}
	return nil
}

// stream is the runtime state of one configured workload stream.
type stream struct {
	cfg  StreamConfig
	name string

	queue *Queue
	dist  Distribution
	rng   *rand.Rand

	nextSector int64 // sequential cursor within the zone
	started    bool

	// Accounting
	issued        int64
	completed     int64
	sectorsServed int64
	latencySum    int64
	latencyMax    Ticks
}

func newStream(cfg StreamConfig, name string, rng *rand.Rand) *stream {
	return &stream{
		cfg:        cfg,
		name:       name,
		dist:       NewDistribution(cfg.Distribution),
		rng:        rng,
		nextSector: cfg.ZoneStart,
	}
}

// stoppedAt reports whether the stream stops issuing at the given time.
func (st *stream) stoppedAt(now Ticks) bool {
	return st.cfg.StopAtMs > 0 && now >= st.cfg.StopAtMs
}

// openLoop reports whether arrivals are timer-driven.
func (st *stream) openLoop() bool {
	return st.cfg.RatePerSec > 0
}

// arrivalInterval returns the open-loop inter-arrival gap, at least 1ms.
func (st *stream) arrivalInterval() Ticks {
	interval := Ticks(1000 / st.cfg.RatePerSec)
	if interval < 1 {
		interval = 1
	}
	return interval
}

// pickSector chooses the next request's start sector: the sequential cursor
// (wrapping at the zone end) or a draw from the configured distribution.
func (st *stream) pickSector() int64 {
	if st.cfg.Sequential {
		sector := st.nextSector
		st.nextSector += st.cfg.RequestSectors
		if st.nextSector >= st.cfg.ZoneStart+st.cfg.ZoneSectors {
			st.nextSector = st.cfg.ZoneStart
		}
		return sector
	}
	hi := st.cfg.ZoneStart + st.cfg.ZoneSectors - st.cfg.RequestSectors
	if hi < st.cfg.ZoneStart {
		hi = st.cfg.ZoneStart
	}
	return st.dist.Sample(st.rng, st.cfg.ZoneStart, hi)
}

// recordCompletion folds one finished request into the stream's accounting.
func (st *stream) recordCompletion(rq *Request, now Ticks) {
	st.completed++
	st.sectorsServed += rq.Sectors
	latency := now - rq.Arrival
	if latency < 0 {
		latency = 0
	}
	st.latencySum += int64(latency)
	if latency > st.latencyMax {
		st.latencyMax = latency
	}
}

// expandStreams turns the configured stream list into runtime streams,
// expanding clones into individually named copies.
func expandStreams(cfgs []StreamConfig, rng *rand.Rand) ([]*stream, error) {
	var streams []*stream
	for _, cfg := range cfgs {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		if cfg.Clones <= 1 {
			streams = append(streams, newStream(cfg, cfg.Name, rng))
			continue
		}
		for i := 0; i < cfg.Clones; i++ {
			clone := cfg
			clone.StartAtMs = cfg.StartAtMs + Ticks(i)*cfg.CloneStaggerMs
			// Give each clone its own slice of the zone so they do
			// not all hammer the same sectors.
			span := cfg.ZoneSectors / int64(cfg.Clones)
			if span < cfg.RequestSectors {
				span = cfg.RequestSectors
			}
			clone.ZoneStart = cfg.ZoneStart + int64(i)*span
			clone.ZoneSectors = span
			streams = append(streams, newStream(clone, fmt.Sprintf("%s-%d", cfg.Name, i), rng))
		}
	}
	return streams, nil
}
