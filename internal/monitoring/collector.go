package monitoring

import (
	"sort"
	"sync"
	"time"

	"github.com/zamong25/AIS2025-sub001/internal/resilience"
)

// StatusSnapshot holds a point-in-time view of system health.
type StatusSnapshot struct {
	// Per-service pipeline counters.
	Services []resilience.PipelineStats `json:"services"`

	// Quality gate outcomes since process start.
	GateProceeds    int64   `json:"gate_proceeds"`
	GateBlocks      int64   `json:"gate_blocks"`
	GateBlockStreak int     `json:"gate_block_streak"`
	LastConfidence  float64 `json:"last_confidence"`

	// Metadata.
	UptimeSecs  int64     `json:"uptime_secs"`
	CollectedAt time.Time `json:"collected_at"`
}

// Collector gathers live counters from registered pipelines and the quality
// gate. Safe for concurrent use.
type Collector struct {
	start time.Time

	mu             sync.Mutex
	pipelines      []*resilience.Pipeline
	gateProceeds   int64
	gateBlocks     int64
	blockStreak    int
	lastConfidence float64
}

// NewCollector creates a metrics collector over the given pipelines.
func NewCollector(pipelines ...*resilience.Pipeline) *Collector {
	c := &Collector{start: time.Now()}
	for _, p := range pipelines {
		if p != nil {
			c.pipelines = append(c.pipelines, p)
		}
	}
	return c
}

// Register adds a pipeline to the collector.
func (c *Collector) Register(p *resilience.Pipeline) {
	if p == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pipelines = append(c.pipelines, p)
}

// ObserveGate records one quality gate decision, tracking the consecutive
// block streak and updating the prometheus gate instruments.
func (c *Collector) ObserveGate(proceed bool, confidence float64) {
	RecordGate(proceed, confidence)

	c.mu.Lock()
	defer c.mu.Unlock()
	if proceed {
		c.gateProceeds++
		c.blockStreak = 0
	} else {
		c.gateBlocks++
		c.blockStreak++
	}
	c.lastConfidence = confidence
}

// Collect assembles a snapshot of pipeline counters and gate state, and
// refreshes the circuit state gauges.
func (c *Collector) Collect() *StatusSnapshot {
	c.mu.Lock()
	pipelines := make([]*resilience.Pipeline, len(c.pipelines))
	copy(pipelines, c.pipelines)
	snap := &StatusSnapshot{
		GateProceeds:    c.gateProceeds,
		GateBlocks:      c.gateBlocks,
		GateBlockStreak: c.blockStreak,
		LastConfidence:  c.lastConfidence,
	}
	c.mu.Unlock()

	for _, p := range pipelines {
		snap.Services = append(snap.Services, p.Stats())
		SetCircuitState(p.Service(), p.State())
	}
	sort.Slice(snap.Services, func(i, j int) bool {
		return snap.Services[i].Service < snap.Services[j].Service
	})

	snap.UptimeSecs = int64(time.Since(c.start).Seconds())
	snap.CollectedAt = time.Now().UTC()
	return snap
}

// Ready reports whether every registered pipeline can accept calls. An open
// circuit makes the process not ready.
func (c *Collector) Ready() bool {
	c.mu.Lock()
	pipelines := make([]*resilience.Pipeline, len(c.pipelines))
	copy(pipelines, c.pipelines)
	c.mu.Unlock()

	for _, p := range pipelines {
		if p.State() == resilience.CircuitOpen {
			return false
		}
	}
	return true
}
