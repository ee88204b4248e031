// Package quality scores and gates independently collected data fields.
// Every field carries a confidence record built at collection time; Validate
// aggregates a snapshot of those records into a report and ShouldProceed is
// the single hard gate consulted before any downstream logic consumes the
// values. The manager is stateless: every method is a pure function of its
// arguments and the static tier map, so one instance is safe for concurrent
// use.
package quality

import (
	"fmt"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrCriticalDataMissing marks a collection cycle whose critical fields
// failed. Downstream analysis must not run on such a cycle.
var ErrCriticalDataMissing = eris.New("critical data missing")

// Tier classifies how much a field matters to downstream analysis.
type Tier string

const (
	TierCritical Tier = "critical"
	TierHigh     Tier = "high"
	TierMedium   Tier = "medium"
	TierLow      Tier = "low"
)

// Weight is the tier's multiplier in the overall confidence average.
func (t Tier) Weight() float64 {
	switch t {
	case TierCritical:
		return 4
	case TierHigh:
		return 3
	case TierMedium:
		return 2
	default:
		return 1
	}
}

// MinConfidence is the lowest per-field confidence the tier tolerates before
// the field is flagged in the report.
func (t Tier) MinConfidence() float64 {
	switch t {
	case TierCritical:
		return 0.95
	case TierHigh:
		return 0.8
	case TierMedium:
		return 0.6
	default:
		return 0.4
	}
}

// DataQuality records one collected value together with how much it should
// be trusted. Created once per field per collection cycle and never mutated;
// a fresh value always gets a fresh record.
type DataQuality struct {
	Value      any       `json:"value"`
	Reliable   bool      `json:"reliable"`
	Confidence float64   `json:"confidence"`
	Source     string    `json:"source"`
	Timestamp  time.Time `json:"timestamp"`
	Error      string    `json:"error,omitempty"`
}

// Manager assigns confidence to collected fields and gates analysis on the
// aggregate. Construct once at startup and share; it holds only the static
// tier map.
type Manager struct {
	tiers   map[string]Tier
	nowFunc func() time.Time
}

// NewManager builds a manager over the given field tier map. A nil map uses
// the built-in defaults.
func NewManager(tiers map[string]Tier) *Manager {
	if tiers == nil {
		tiers = DefaultTiers()
	}
	return &Manager{tiers: tiers, nowFunc: time.Now}
}

// TierOf returns the field's importance tier, defaulting unknown fields to
// low.
func (m *Manager) TierOf(field string) Tier {
	if t, ok := m.tiers[field]; ok {
		return t
	}
	return TierLow
}

// Create builds the quality record for one collected field. Successful
// collection yields confidence 0.95 on critical fields and 0.9 otherwise.
// A failed critical field keeps a nil value at confidence 0 so the gate
// blocks the cycle; a failed non-critical field falls back to its safe
// default at confidence 0.1 with the source marked as defaulted.
func (m *Manager) Create(field string, value any, ok bool, source, errMsg string) DataQuality {
	if source == "" {
		source = "unknown"
	}
	tier := m.TierOf(field)
	now := m.nowFunc().UTC()

	if ok {
		confidence := 0.9
		if tier == TierCritical {
			confidence = 0.95
		}
		return DataQuality{
			Value:      value,
			Reliable:   true,
			Confidence: confidence,
			Source:     source,
			Timestamp:  now,
		}
	}

	if tier == TierCritical {
		return DataQuality{
			Value:      nil,
			Reliable:   false,
			Confidence: 0.0,
			Source:     source,
			Timestamp:  now,
			Error:      errMsg,
		}
	}

	return DataQuality{
		Value:      safeDefault(field),
		Reliable:   false,
		Confidence: 0.1,
		Source:     source + "_default",
		Timestamp:  now,
		Error:      errMsg,
	}
}

// safeDefault returns a meaningful stand-in for a failed non-critical field.
// Ratios default to no-change, oscillators to their neutral midpoint. Fields
// with no sensible stand-in stay nil and are dropped at extraction.
func safeDefault(field string) any {
	switch field {
	case "oi_delta", "btc_correlation":
		return 0.0
	case "btc_dominance":
		return 50.0
	case "funding_rate":
		return 0.0001
	case "rsi":
		return 50.0
	case "ema_20", "ema_50", "price":
		return nil
	default:
		return 0.0
	}
}

// Validate aggregates a snapshot of field records into a report: the
// tier-weighted average confidence, reliable counts, and per-field threshold
// breaches sorted into critical failures and warnings.
func (m *Manager) Validate(fields map[string]DataQuality) Report {
	report := Report{
		TotalCount: len(fields),
		Fields:     fields,
	}

	var totalWeight, weightedConfidence float64
	for field, dq := range fields {
		if dq.Reliable {
			report.ReliableCount++
		}

		tier := m.TierOf(field)
		weight := tier.Weight()
		totalWeight += weight
		weightedConfidence += dq.Confidence * weight

		if dq.Confidence >= tier.MinConfidence() {
			continue
		}
		if tier == TierCritical {
			reason := dq.Error
			if reason == "" {
				reason = "unknown error"
			}
			report.CriticalFailures = append(report.CriticalFailures, field+": "+reason)
		} else {
			report.Warnings = append(report.Warnings, fmt.Sprintf("%s: low confidence (%.2f)", field, dq.Confidence))
		}
	}

	if totalWeight > 0 {
		report.OverallConfidence = weightedConfidence / totalWeight
	}

	sort.Strings(report.CriticalFailures)
	sort.Strings(report.Warnings)
	return report
}

// ShouldProceed decides whether downstream analysis may consume the
// validated fields. Any critical failure or an overall confidence below 0.5
// blocks the cycle. Hard stop, not advisory.
func (m *Manager) ShouldProceed(report Report) bool {
	if len(report.CriticalFailures) > 0 {
		zap.L().Error("quality: critical data failures",
			zap.Strings("failures", report.CriticalFailures))
		return false
	}
	if report.OverallConfidence < 0.5 {
		zap.L().Warn("quality: overall confidence too low",
			zap.Float64("overall_confidence", report.OverallConfidence))
		return false
	}
	return true
}

// ExtractValues strips quality metadata for analysis. Unreliable entries are
// excluded unless the caller opts in; nil values are always dropped so a
// failed critical field never reaches analysis as a phantom zero.
func (m *Manager) ExtractValues(fields map[string]DataQuality, includeUnreliable bool) map[string]any {
	values := make(map[string]any, len(fields))
	for field, dq := range fields {
		if !dq.Reliable && !includeUnreliable {
			continue
		}
		if dq.Value == nil {
			continue
		}
		values[field] = dq.Value
	}
	return values
}
