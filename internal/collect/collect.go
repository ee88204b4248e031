// Package collect gathers independently sourced data fields concurrently
// and wraps every result, success or failure, in a quality record. A probe
// that fails becomes a low-confidence field rather than an error; the
// assembled snapshot carries the validated report so callers can gate on it.
package collect

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/zamong25/AIS2025-sub001/internal/quality"
)

// defaultConcurrency bounds how many probes run at once.
const defaultConcurrency = 4

// Probe fetches one field from one source. Fetch errors are recorded as
// failed quality data, never propagated.
type Probe struct {
	Field  string
	Source string
	Fetch  func(ctx context.Context) (any, error)
}

// Snapshot is the outcome of one collection cycle: every field's quality
// record plus the validated report, identified for tracing across logs.
type Snapshot struct {
	ID          string                         `json:"id"`
	CollectedAt time.Time                      `json:"collected_at"`
	Fields      map[string]quality.DataQuality `json:"fields"`
	Report      quality.Report                 `json:"report"`

	mgr *quality.Manager
}

// Values strips quality metadata for analysis, excluding unreliable entries
// unless opted in.
func (s *Snapshot) Values(includeUnreliable bool) map[string]any {
	return s.manager().ExtractValues(s.Fields, includeUnreliable)
}

// Gate returns nil when downstream analysis may consume the snapshot. A
// critical failure yields ErrCriticalDataMissing; a confidence shortfall a
// plain error.
func (s *Snapshot) Gate() error {
	report := s.Report
	if len(report.CriticalFailures) > 0 {
		return eris.Wrapf(quality.ErrCriticalDataMissing,
			"collect: %s", strings.Join(report.CriticalFailures, "; "))
	}
	if !s.manager().ShouldProceed(report) {
		return eris.Errorf("collect: overall confidence %.2f below minimum", report.OverallConfidence)
	}
	return nil
}

func (s *Snapshot) manager() *quality.Manager {
	if s.mgr == nil {
		s.mgr = quality.NewManager(nil)
	}
	return s.mgr
}

// Collector runs probes and assembles snapshots. Construct once and share;
// it is safe for concurrent use.
type Collector struct {
	manager *quality.Manager
	limit   int
	nowFunc func() time.Time
}

// Option configures a Collector.
type Option func(*Collector)

// WithConcurrency bounds the number of probes in flight at once.
func WithConcurrency(n int) Option {
	return func(c *Collector) {
		if n > 0 {
			c.limit = n
		}
	}
}

// NewCollector builds a collector over the given quality manager. A nil
// manager uses the default tier map.
func NewCollector(manager *quality.Manager, opts ...Option) *Collector {
	if manager == nil {
		manager = quality.NewManager(nil)
	}
	c := &Collector{
		manager: manager,
		limit:   defaultConcurrency,
		nowFunc: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Collect runs every probe, bounded by the concurrency limit, and returns
// the snapshot of the cycle. Probe failures degrade the snapshot's quality
// instead of failing the call; only malformed input (no probes, duplicate
// fields, missing fetch) is an error.
func (c *Collector) Collect(ctx context.Context, probes []Probe) (*Snapshot, error) {
	if len(probes) == 0 {
		return nil, eris.New("collect: no probes")
	}
	seen := make(map[string]struct{}, len(probes))
	for _, p := range probes {
		if p.Field == "" {
			return nil, eris.New("collect: probe with empty field name")
		}
		if p.Fetch == nil {
			return nil, eris.Errorf("collect: probe %s has no fetch function", p.Field)
		}
		if _, dup := seen[p.Field]; dup {
			return nil, eris.Errorf("collect: duplicate probe field %s", p.Field)
		}
		seen[p.Field] = struct{}{}
	}

	results := make([]quality.DataQuality, len(probes))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(c.limit)
	for i, probe := range probes {
		i, probe := i, probe
		g.Go(func() error {
			value, err := probe.Fetch(gCtx)
			if err != nil {
				zap.L().Warn("collect: probe failed",
					zap.String("field", probe.Field),
					zap.String("source", probe.Source),
					zap.Error(err),
				)
				results[i] = c.manager.Create(probe.Field, nil, false, probe.Source, err.Error())
				return nil
			}
			results[i] = c.manager.Create(probe.Field, value, true, probe.Source, "")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "collect: run probes")
	}

	fields := make(map[string]quality.DataQuality, len(probes))
	for i, probe := range probes {
		fields[probe.Field] = results[i]
	}

	snap := c.assemble(fields)
	zap.L().Info("collect: cycle complete",
		zap.String("id", snap.ID),
		zap.Int("reliable", snap.Report.ReliableCount),
		zap.Int("total", snap.Report.TotalCount),
		zap.Float64("overall_confidence", snap.Report.OverallConfidence),
	)
	return snap, nil
}

// Observation is a pre-recorded field result, the file/CLI counterpart of a
// live probe.
type Observation struct {
	Value  any    `json:"value"`
	OK     bool   `json:"ok"`
	Source string `json:"source"`
	Error  string `json:"error,omitempty"`
}

// FromObservations builds a snapshot from already-collected observations.
func (c *Collector) FromObservations(observations map[string]Observation) *Snapshot {
	fields := make(map[string]quality.DataQuality, len(observations))
	for field, obs := range observations {
		fields[field] = c.manager.Create(field, obs.Value, obs.OK, obs.Source, obs.Error)
	}
	return c.assemble(fields)
}

func (c *Collector) assemble(fields map[string]quality.DataQuality) *Snapshot {
	return &Snapshot{
		ID:          uuid.NewString(),
		CollectedAt: c.nowFunc().UTC(),
		Fields:      fields,
		Report:      c.manager.Validate(fields),
		mgr:         c.manager,
	}
}
