package integration

import (
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/miretskiy/budgetfair/scheduler"
)

// DiskConfig defines configuration for the shared-disk component model
type DiskConfig struct {
	// Scheduling Configuration
	DefaultWeight int64 `yaml:"default_weight" json:"default_weight"`
	LowLatency    bool  `yaml:"low_latency" json:"low_latency"`
	SliceIdleMs   int64 `yaml:"slice_idle_ms" json:"slice_idle_ms"`

	// Device Configuration
	Rotational            bool  `yaml:"rotational" json:"rotational"`
	TransferSectorsPerMs  int64 `yaml:"transfer_sectors_per_ms" json:"transfer_sectors_per_ms"`
	SeekCostMs            int64 `yaml:"seek_cost_ms" json:"seek_cost_ms"`
	SeekDistanceThreshold int64 `yaml:"seek_distance_threshold" json:"seek_distance_threshold"`

	// Request Configuration
	RequestSectors int64    `yaml:"request_sectors" json:"request_sectors"`
	ErrorRate      *float64 `yaml:"error_rate,omitempty" json:"error_rate,omitempty"`
	ErrorType      *string  `yaml:"error_type,omitempty" json:"error_type,omitempty"`
}

// GensimRequestContext contains information about the incoming request
type GensimRequestContext struct {
	Component   string
	Tenant      string
	CurrentTime float64
}

// GensimLogEntry represents a log emitted by the model
type GensimLogEntry struct {
	OffsetMs float64
	Status   string
	Message  string
}

// GensimMetricSample represents a custom metric emitted by the model
type GensimMetricSample struct {
	Name  string
	Type  string
	Value float64
	Tags  map[string]string
}

// GensimParameterDescriptor describes a mutable configuration field
type GensimParameterDescriptor struct {
	Name         string      `json:"name"`
	Type         string      `json:"type"`
	CurrentValue interface{} `json:"current_value"`
	Min          *float64    `json:"min,omitempty"`
	Max          *float64    `json:"max,omitempty"`
	Description  string      `json:"description,omitempty"` // Detailed explanation of what this parameter does
}

// GensimResult represents the outcome of the model simulation for a request
type GensimResult struct {
	DurationMs float64
	WaitTimeMs float64
	Status     string
	ErrorType  *string
	ErrorMsg   *string
	Logs       []GensimLogEntry
	Metrics    []GensimMetricSample
}

// tenantState is the per-tenant view of the shared disk.
type tenantState struct {
	queue         *scheduler.Queue
	nextSector    int64
	zoneStart     int64
	requests      int64
	sectorsServed int64
}

// DiskModel implements a shared block device arbitrated by the budgetfair
// scheduler. Each tenant gets its own queue; HandleRequest issues one
// synchronous read for the calling tenant and advances the model's virtual
// clock until that read completes, so the returned duration reflects the
// queueing imposed by every other tenant's traffic.
type DiskModel struct {
	component string
	cfg       *DiskConfig
	mu        sync.Mutex
	sched     *scheduler.Scheduler
	rng       *rand.Rand

	now        scheduler.Ticks
	tenants    map[string]*tenantState
	nextZone   int64
	deviceHead int64

	inFlight    *scheduler.Request
	inFlightEnd scheduler.Ticks

	// Tracking for metrics
	totalRequests int64
	totalSectors  int64
	totalWaitMs   float64
}

// tenantZoneSectors is the contiguous slice of the device each tenant reads
// from, so tenants look sequential individually but seek between each other.
const tenantZoneSectors = 1 << 24

// NewDiskModel creates a new shared-disk component model
func NewDiskModel(component string, cfg *DiskConfig) (*DiskModel, error) {
	if cfg == nil {
		return nil, fmt.Errorf("disk config is required")
	}

	// Validate configuration
	if cfg.DefaultWeight <= 0 {
		cfg.DefaultWeight = 100
	}
	if cfg.TransferSectorsPerMs <= 0 {
		return nil, fmt.Errorf("transfer_sectors_per_ms must be positive, got %d", cfg.TransferSectorsPerMs)
	}
	if cfg.SeekCostMs < 0 {
		return nil, fmt.Errorf("seek_cost_ms must be >= 0, got %d", cfg.SeekCostMs)
	}
	if cfg.RequestSectors <= 0 {
		cfg.RequestSectors = 64
	}

	schedCfg := scheduler.DefaultConfig()
	schedCfg.Rotational = cfg.Rotational
	schedCfg.LowLatency = cfg.LowLatency
	if cfg.SliceIdleMs > 0 {
		schedCfg.SliceIdle = scheduler.Ticks(cfg.SliceIdleMs)
	}

	model := &DiskModel{
		component: component,
		cfg:       cfg,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		tenants:   make(map[string]*tenantState),
	}
	sched, err := scheduler.NewScheduler(schedCfg, func() scheduler.Ticks { return model.now })
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	model.sched = sched
	return model, nil
}

// Name returns the component name
func (d *DiskModel) Name() string {
	return d.component
}

// Health returns the generic health status of the disk model
func (d *DiskModel) Health() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sched.Broken() {
		return "error"
	}
	if d.sched.Pending() > 128 {
		return "warn"
	}
	return "ok"
}

// HealthStatus returns the detailed health status of the disk model
func (d *DiskModel) HealthStatus() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sched.Broken() {
		return "halted"
	}
	if d.sched.Pending() > 128 {
		return "backlogged"
	}
	return "normal"
}

func (d *DiskModel) tenantLocked(name string) (*tenantState, error) {
	if name == "" {
		name = "default"
	}
	if t, ok := d.tenants[name]; ok {
		return t, nil
	}
	q, err := d.sched.AddQueue(name, d.cfg.DefaultWeight, true)
	if err != nil {
		return nil, err
	}
	t := &tenantState{
		queue:      q,
		zoneStart:  d.nextZone,
		nextSector: d.nextZone,
	}
	d.nextZone += tenantZoneSectors
	d.tenants[name] = t
	return t, nil
}

// serviceTimeLocked models the device: a flat seek penalty for long jumps
// plus transfer time at the configured rate.
func (d *DiskModel) serviceTimeLocked(rq *scheduler.Request) scheduler.Ticks {
	var cost scheduler.Ticks
	dist := rq.Sector - d.deviceHead
	if dist < 0 {
		dist = -dist
	}
	if dist > d.cfg.SeekDistanceThreshold {
		cost += scheduler.Ticks(d.cfg.SeekCostMs)
	}
	transfer := (rq.Sectors + d.cfg.TransferSectorsPerMs - 1) / d.cfg.TransferSectorsPerMs
	if transfer < 1 {
		transfer = 1
	}
	return cost + scheduler.Ticks(transfer)
}

// driveUntilLocked advances the virtual clock, dispatching and completing
// requests, until target completes or nothing remains to serve.
func (d *DiskModel) driveUntilLocked(target *scheduler.Request) (dispatchedAt scheduler.Ticks, completedAt scheduler.Ticks, ok bool) {
	for i := 0; i < 100000; i++ {
		if d.inFlight != nil {
			done := d.inFlight
			d.now = d.inFlightEnd
			d.inFlight = nil
			d.sched.RequestCompleted(done, 0)
			if done == target {
				return dispatchedAt, d.now, true
			}
			continue
		}
		rq := d.sched.DispatchRequest()
		if rq == nil {
			if deadline, idling := d.sched.IdleDeadline(); idling {
				// Nothing else to serve; jump past the anticipation
				// window so the scheduler moves on.
				d.now = deadline
				continue
			}
			return 0, 0, false
		}
		if rq == target {
			dispatchedAt = d.now
		}
		d.inFlight = rq
		d.inFlightEnd = d.now + d.serviceTimeLocked(rq)
		d.deviceHead = rq.Sector + rq.Sectors
	}
	return 0, 0, false
}

// HandleRequest simulates one synchronous read through the shared disk
func (d *DiskModel) HandleRequest(ctx *GensimRequestContext) (*GensimResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	tenant := ctx.Tenant
	if tenant == "" {
		tenant = ctx.Component
	}
	t, err := d.tenantLocked(tenant)
	if err != nil {
		return nil, err
	}

	rq := &scheduler.Request{
		Sector:  t.nextSector,
		Sectors: d.cfg.RequestSectors,
		Sync:    true,
	}
	t.nextSector += d.cfg.RequestSectors
	if t.nextSector >= t.zoneStart+tenantZoneSectors {
		t.nextSector = t.zoneStart
	}

	arrival := d.now
	d.sched.AddRequest(t.queue, rq)

	dispatchedAt, completedAt, ok := d.driveUntilLocked(rq)
	if !ok {
		errType := "scheduler_halted"
		errMsg := fmt.Sprintf("%s: request for tenant %s never completed", d.component, tenant)
		return &GensimResult{
			Status:    "error",
			ErrorType: &errType,
			ErrorMsg:  &errMsg,
		}, nil
	}

	durationMs := float64(completedAt - arrival)
	waitTimeMs := float64(dispatchedAt - arrival)
	if waitTimeMs < 0 {
		waitTimeMs = 0
	}

	t.requests++
	t.sectorsServed += rq.Sectors
	d.totalRequests++
	d.totalSectors += rq.Sectors
	d.totalWaitMs += waitTimeMs

	result := &GensimResult{
		DurationMs: durationMs,
		WaitTimeMs: waitTimeMs,
		Status:     "ok",
	}

	// Check for injected errors
	if d.cfg.ErrorRate != nil && *d.cfg.ErrorRate > 0 {
		if d.rng.Float64() < *d.cfg.ErrorRate {
			result.Status = "error"
			if d.cfg.ErrorType != nil {
				result.ErrorType = d.cfg.ErrorType
			} else {
				errType := "io_error"
				result.ErrorType = &errType
			}
			msg := fmt.Sprintf("%s read failed for tenant %s", d.component, tenant)
			result.ErrorMsg = &msg
		}
	}

	if waitTimeMs > 100 {
		result.Logs = append(result.Logs, GensimLogEntry{
			OffsetMs: 0,
			Status:   "warn",
			Message:  fmt.Sprintf("%s: tenant %s waited %.0fms for the disk", d.component, tenant, waitTimeMs),
		})
	}

	result.Metrics = d.buildMetricsLocked(tenant, t, durationMs, waitTimeMs)
	return result, nil
}

// buildMetrics constructs metric samples from scheduler state
func (d *DiskModel) buildMetricsLocked(tenant string, t *tenantState, durationMs, waitMs float64) []GensimMetricSample {
	tags := map[string]string{
		"component_model": "budgetfair_disk",
		"tenant":          tenant,
	}

	m := d.sched.Metrics()

	samples := []GensimMetricSample{
		{
			Name:  "disk.request_duration_ms",
			Type:  "gauge",
			Value: durationMs,
			Tags:  tags,
		},
		{
			Name:  "disk.request_wait_ms",
			Type:  "gauge",
			Value: waitMs,
			Tags:  tags,
		},
		{
			Name:  "disk.tenant_sectors_served",
			Type:  "counter",
			Value: float64(t.sectorsServed),
			Tags:  tags,
		},
		{
			Name:  "disk.requests",
			Type:  "counter",
			Value: float64(d.totalRequests),
			Tags:  tags,
		},
		{
			Name:  "disk.sectors_dispatched",
			Type:  "counter",
			Value: float64(m.SectorsDispatched),
			Tags:  tags,
		},
		{
			Name:  "disk.turn_expirations",
			Type:  "counter",
			Value: float64(m.Expirations),
			Tags:  tags,
		},
		{
			Name:  "disk.idle_waits",
			Type:  "counter",
			Value: float64(m.IdleWaits),
			Tags:  tags,
		},
		{
			Name:  "disk.wr_activations",
			Type:  "counter",
			Value: float64(m.WrActivations),
			Tags:  tags,
		},
	}

	return samples
}

// Config returns the current model configuration
func (d *DiskModel) Config() map[string]interface{} {
	d.mu.Lock()
	defer d.mu.Unlock()

	config := map[string]interface{}{
		"default_weight":          d.cfg.DefaultWeight,
		"low_latency":             d.cfg.LowLatency,
		"slice_idle_ms":           d.cfg.SliceIdleMs,
		"rotational":              d.cfg.Rotational,
		"transfer_sectors_per_ms": d.cfg.TransferSectorsPerMs,
		"seek_cost_ms":            d.cfg.SeekCostMs,
		"seek_distance_threshold": d.cfg.SeekDistanceThreshold,
		"request_sectors":         d.cfg.RequestSectors,
	}
	return config
}

// MutableParameters returns descriptors for runtime-adjustable parameters
func (d *DiskModel) MutableParameters() []GensimParameterDescriptor {
	d.mu.Lock()
	defer d.mu.Unlock()

	params := make([]GensimParameterDescriptor, 0)

	minWeight := 1.0
	maxWeight := 1000.0
	params = append(params, GensimParameterDescriptor{
		Name:         "default_weight",
		Type:         "int",
		CurrentValue: d.cfg.DefaultWeight,
		Min:          &minWeight,
		Max:          &maxWeight,
		Description:  "Scheduling weight assigned to newly seen tenants. A tenant's long-term share of the disk is proportional to its weight, independent of its request sizes or access pattern. Existing tenants keep the weight they were created with.",
	})

	minRate := 1.0
	maxRate := 100000.0
	params = append(params, GensimParameterDescriptor{
		Name:         "transfer_sectors_per_ms",
		Type:         "int",
		CurrentValue: d.cfg.TransferSectorsPerMs,
		Min:          &minRate,
		Max:          &maxRate,
		Description:  "Simulated device transfer rate in sectors per millisecond. Lower values simulate slower storage; higher values simulate NVMe-class devices. Affects every tenant's service time and the scheduler's measured peak rate.",
	})

	minSize := 0.001
	maxSize := 64.0
	params = append(params, GensimParameterDescriptor{
		Name:         "request_size",
		Type:         "size",
		CurrentValue: float64(d.cfg.RequestSectors) / 2048.0, // Value in MB
		Min:          &minSize,
		Max:          &maxSize,
		Description:  "Size of each simulated read. Larger requests amortize seeks and consume a tenant's budget faster; smaller requests increase scheduling overhead per byte.",
	})

	return params
}

// UpdateParameters applies runtime configuration changes
func (d *DiskModel) UpdateParameters(params map[string]interface{}) error {
	if len(params) == 0 {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if raw, ok := params["default_weight"]; ok {
		val, err := parseIntParam(raw)
		if err != nil {
			return fmt.Errorf("default_weight: %w", err)
		}
		if val <= 0 {
			return fmt.Errorf("default_weight must be > 0")
		}
		d.cfg.DefaultWeight = int64(val)
	}

	if raw, ok := params["transfer_sectors_per_ms"]; ok {
		val, err := parseIntParam(raw)
		if err != nil {
			return fmt.Errorf("transfer_sectors_per_ms: %w", err)
		}
		if val <= 0 {
			return fmt.Errorf("transfer_sectors_per_ms must be > 0")
		}
		d.cfg.TransferSectorsPerMs = int64(val)
	}

	// Request size supports size strings with units like "64kb", "1mb"
	if raw, ok := params["request_size"]; ok {
		val, err := parseSizeParam(raw)
		if err != nil {
			return fmt.Errorf("request_size: %w", err)
		}
		if val <= 0 {
			return fmt.Errorf("request_size must be > 0")
		}
		sectors := int64(val * 2048.0) // MB to 512B sectors
		if sectors < 1 {
			sectors = 1
		}
		d.cfg.RequestSectors = sectors
	}

	return nil
}

// Helper functions for parameter parsing
func parseIntParam(value interface{}) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case float32:
		return int(v), nil
	default:
		return 0, fmt.Errorf("unsupported type %T", value)
	}
}

func parseFloatParam(value interface{}) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("unsupported type %T", value)
	}
}

// parseSizeParam parses a size value that can be a number (assumed MB) or a string with units (e.g., "100kb", "1mb")
func parseSizeParam(value interface{}) (float64, error) {
	// Handle string values with units
	if str, ok := value.(string); ok {
		return parseSizeString(str)
	}
	// Handle numeric values (assumed to be in MB)
	return parseFloatParam(value)
}

// parseSizeString parses a size string with optional units (kb, mb, gb, tb, b)
func parseSizeString(value string) (float64, error) {
	if value == "" {
		return 0, fmt.Errorf("empty value")
	}

	value = strings.ToLower(strings.TrimSpace(value))

	// Try parsing as plain number first (assume MB)
	if num, err := strconv.ParseFloat(value, 64); err == nil {
		return num, nil
	}

	// Parse with units
	var numericValue float64
	var unit string

	if strings.HasSuffix(value, "kb") {
		unit = "kb"
		numericValue, _ = strconv.ParseFloat(strings.TrimSuffix(value, "kb"), 64)
	} else if strings.HasSuffix(value, "mb") {
		unit = "mb"
		numericValue, _ = strconv.ParseFloat(strings.TrimSuffix(value, "mb"), 64)
	} else if strings.HasSuffix(value, "gb") {
		unit = "gb"
		numericValue, _ = strconv.ParseFloat(strings.TrimSuffix(value, "gb"), 64)
	} else if strings.HasSuffix(value, "tb") {
		unit = "tb"
		numericValue, _ = strconv.ParseFloat(strings.TrimSuffix(value, "tb"), 64)
	} else if strings.HasSuffix(value, "b") {
		unit = "b"
		numericValue, _ = strconv.ParseFloat(strings.TrimSuffix(value, "b"), 64)
	} else {
		return 0, fmt.Errorf("unable to parse size value: %s", value)
	}

	if math.IsNaN(numericValue) || math.IsInf(numericValue, 0) {
		return 0, fmt.Errorf("invalid numeric value")
	}

	// Convert to MB
	switch unit {
	case "kb":
		return numericValue / 1024.0, nil
	case "mb":
		return numericValue, nil
	case "gb":
		return numericValue * 1024.0, nil
	case "tb":
		return numericValue * 1024.0 * 1024.0, nil
	case "b":
		return numericValue / (1024.0 * 1024.0), nil
	default:
		return numericValue, nil // Assume MB if unit not recognized
	}
}
