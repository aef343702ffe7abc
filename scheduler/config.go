package scheduler

// Config holds every tunable of the scheduling core. Defaults come from the
// values the algorithm was calibrated with on real devices; they are exposed
// as configuration because their exact numeric origin is empirical.
type Config struct {
	// Request selection (one-way elevator with bounded backseek)
	BackSeekMaxSectors int64 `json:"backSeekMaxSectors"` // window within which a backward seek is tolerated
	BackSeekPenalty    int64 `json:"backSeekPenalty"`    // cost multiplier applied to tolerated backseeks

	// Anticipatory idling
	SliceIdle Ticks `json:"sliceIdleMs"` // idling duration after a queue empties (0 disables idling)

	// Budget model
	MaxBudget              int64 `json:"maxBudgetSectors"`       // ceiling for per-turn budgets, in sectors
	MaxBudgetAsyncRequests int   `json:"maxBudgetAsyncRequests"` // max requests served per async in-service turn
	AsyncChargeFactor      int64 `json:"asyncChargeFactor"`      // extra charge multiplier for async service
	TimeoutSync            Ticks `json:"timeoutSyncMs"`          // budget timeout for sync in-service turns
	TimeoutAsync           Ticks `json:"timeoutAsyncMs"`         // budget timeout for async in-service turns

	// Weight raising
	LowLatency         bool  `json:"lowLatency"`           // master switch for weight-raising heuristics
	WrCoeff            int64 `json:"wrCoeff"`              // weight multiplier while raised
	WrMaxTime          Ticks `json:"wrMaxTimeMs"`          // interactive raising duration; 0 = derive from peak rate
	WrRtMaxTime        Ticks `json:"wrRtMaxTimeMs"`        // soft real-time raising duration
	WrMinIdleTime      Ticks `json:"wrMinIdleTimeMs"`      // min idle time for a queue to be deemed interactive
	WrMinInterArrAsync Ticks `json:"wrMinInterArrAsyncMs"` // min async inter-arrival time to raise a busy queue
	WrMaxSoftrtRate    int64 `json:"wrMaxSoftrtRate"`      // max sectors/sec for soft real-time detection (0 disables)

	// Burst detection
	LargeBurstThreshold int   `json:"largeBurstThreshold"` // burst size at which a burst is deemed large
	BurstInterval       Ticks `json:"burstIntervalMs"`     // max gap between activations of the same burst

	// Queue classification
	SeekThresholdSectors int64 `json:"seekThresholdSectors"` // mean seek distance above which a queue is seeky
	RequestsWithinTimer  int   `json:"requestsWithinTimer"`  // back-to-back requests before a queue is IO-bound

	// Device description
	Rotational bool `json:"rotational"` // selects the rotational reference (R, T) pairs

	// Weight tracker capacity: distinct weight values tracked for the
	// symmetry heuristic. Exceeding it only degrades idling decisions.
	MaxWeightCounters int `json:"maxWeightCounters"`
}

// DefaultConfig returns the calibrated defaults.
func DefaultConfig() Config {
	return Config{
		BackSeekMaxSectors:     16 * 1024 * 2, // 16 MiB expressed in 512B sectors
		BackSeekPenalty:        2,
		SliceIdle:              8,
		MaxBudget:              16 * 1024,
		MaxBudgetAsyncRequests: 4,
		AsyncChargeFactor:      10,
		TimeoutSync:            125,
		TimeoutAsync:           40,
		LowLatency:             true,
		WrCoeff:                20,
		WrMaxTime:              0, // auto: (R/r) * T from the measured peak rate
		WrRtMaxTime:            300,
		WrMinIdleTime:          2000,
		WrMinInterArrAsync:     500,
		WrMaxSoftrtRate:        7000,
		LargeBurstThreshold:    11,
		BurstInterval:          180,
		SeekThresholdSectors:   8 * 1024,
		RequestsWithinTimer:    120,
		Rotational:             false,
		MaxWeightCounters:      128,
	}
}

// Validate checks if configuration values are reasonable
func (c *Config) Validate() error {
	if c.BackSeekMaxSectors < 0 {
		return ErrInvalidConfig("backSeekMaxSectors must be >= 0")
	}
	if c.BackSeekPenalty < 1 {
		return ErrInvalidConfig("backSeekPenalty must be >= 1")
	}
	if c.SliceIdle < 0 {
		return ErrInvalidConfig("sliceIdleMs must be >= 0")
	}
	if c.MaxBudget <= 0 {
		return ErrInvalidConfig("maxBudgetSectors must be > 0")
	}
	if c.MaxBudgetAsyncRequests < 1 {
		return ErrInvalidConfig("maxBudgetAsyncRequests must be >= 1")
	}
	if c.AsyncChargeFactor < 0 {
		return ErrInvalidConfig("asyncChargeFactor must be >= 0")
	}
	if c.TimeoutSync <= 0 || c.TimeoutAsync <= 0 {
		return ErrInvalidConfig("budget timeouts must be > 0")
	}
	if c.WrCoeff < 1 {
		return ErrInvalidConfig("wrCoeff must be >= 1")
	}
	if c.WrMaxTime < 0 || c.WrRtMaxTime < 0 || c.WrMinIdleTime < 0 || c.WrMinInterArrAsync < 0 {
		return ErrInvalidConfig("weight-raising durations must be >= 0")
	}
	if c.WrMaxSoftrtRate < 0 {
		return ErrInvalidConfig("wrMaxSoftrtRate must be >= 0")
	}
	if c.LargeBurstThreshold < 2 {
		return ErrInvalidConfig("largeBurstThreshold must be >= 2")
	}
	if c.BurstInterval <= 0 {
		return ErrInvalidConfig("burstIntervalMs must be > 0")
	}
	if c.SeekThresholdSectors <= 0 {
		return ErrInvalidConfig("seekThresholdSectors must be > 0")
	}
	if c.RequestsWithinTimer < 1 {
		return ErrInvalidConfig("requestsWithinTimer must be >= 1")
	}
	if c.MaxWeightCounters < 1 {
		return ErrInvalidConfig("maxWeightCounters must be >= 1")
	}
	return nil
}
