package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/zamong25/AIS2025-sub001/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertCallFailureRate AlertType = "call_failure_rate"
	AlertCircuitOpen     AlertType = "circuit_open"
	AlertGateBlockStreak AlertType = "gate_block_streak"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a StatusSnapshot against configured thresholds and sends
// alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *StatusSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	minFinished := a.cfg.MinFinishedCalls
	if minFinished <= 0 {
		minFinished = 5
	}

	for _, svc := range snap.Services {
		// Check call failure rate.
		finished := svc.Successes + svc.Failures
		if finished >= int64(minFinished) && svc.FailureRate > a.cfg.FailureRateThreshold {
			alerts = append(alerts, Alert{
				Type:     AlertCallFailureRate,
				Severity: "high",
				Message: fmt.Sprintf(
					"Call failure rate %.1f%% for %s exceeds threshold %.1f%% (%d failed / %d finished)",
					svc.FailureRate*100, svc.Service, a.cfg.FailureRateThreshold*100,
					svc.Failures, finished,
				),
				Details: map[string]any{
					"service":      svc.Service,
					"failure_rate": svc.FailureRate,
					"threshold":    a.cfg.FailureRateThreshold,
					"failed":       svc.Failures,
					"finished":     finished,
				},
				Timestamp: now,
			})
		}

		// Check for an open circuit.
		if svc.CircuitState == "open" {
			alerts = append(alerts, Alert{
				Type:     AlertCircuitOpen,
				Severity: "critical",
				Message: fmt.Sprintf(
					"Circuit for %s is open after %d consecutive failures (%d calls rejected)",
					svc.Service, svc.ConsecutiveFailures, svc.CircuitRejections,
				),
				Details: map[string]any{
					"service":              svc.Service,
					"consecutive_failures": svc.ConsecutiveFailures,
					"rejections":           svc.CircuitRejections,
				},
				Timestamp: now,
			})
		}
	}

	// Check consecutive quality gate blocks.
	if a.cfg.GateBlockStreak > 0 && snap.GateBlockStreak >= a.cfg.GateBlockStreak {
		alerts = append(alerts, Alert{
			Type:     AlertGateBlockStreak,
			Severity: "high",
			Message: fmt.Sprintf(
				"%d consecutive data quality gate blocks (last confidence %.2f)",
				snap.GateBlockStreak, snap.LastConfidence,
			),
			Details: map[string]any{
				"block_streak":    snap.GateBlockStreak,
				"last_confidence": snap.LastConfidence,
				"total_blocks":    snap.GateBlocks,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

// sendWebhook posts a single alert to the webhook URL.
func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
