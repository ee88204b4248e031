package quality

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReport_Summary(t *testing.T) {
	m := testManager()

	fields := map[string]DataQuality{
		"price":  m.Create("price", 64000.0, true, "binance", ""),
		"volume": m.Create("volume", nil, false, "binance", "api timeout"),
		"rsi":    m.Create("rsi", nil, false, "binance", "fetch failed"),
	}
	report := m.Validate(fields)

	summary := report.Summary()

	assert.Contains(t, summary, "data quality report")
	assert.Contains(t, summary, "reliable fields: 1/3")
	assert.Contains(t, summary, "critical failures:")
	assert.Contains(t, summary, "volume: api timeout")
	assert.Contains(t, summary, "warnings:")
	assert.Contains(t, summary, "rsi: low confidence (0.10)")
	assert.Contains(t, summary, "ok   price: 95.00% (binance)")
	assert.Contains(t, summary, "FAIL volume: 0.00% (binance)")
	assert.Contains(t, summary, "FAIL rsi: 10.00% (binance_default)")
}

func TestReport_SummaryFieldOrder(t *testing.T) {
	m := testManager()

	fields := map[string]DataQuality{
		"rsi":    m.Create("rsi", 51.0, true, "binance", ""),
		"atr":    m.Create("atr", 410.0, true, "binance", ""),
		"volume": m.Create("volume", 1.2e9, true, "binance", ""),
	}
	summary := m.Validate(fields).Summary()

	atrIdx := strings.Index(summary, "atr:")
	rsiIdx := strings.Index(summary, "rsi:")
	volIdx := strings.Index(summary, "volume:")
	assert.True(t, atrIdx < rsiIdx && rsiIdx < volIdx, "fields should print in name order")
}

func TestReport_SummaryCleanWhenHealthy(t *testing.T) {
	m := testManager()

	fields := map[string]DataQuality{
		"price": m.Create("price", 64000.0, true, "binance", ""),
	}
	summary := m.Validate(fields).Summary()

	assert.NotContains(t, summary, "critical failures:")
	assert.NotContains(t, summary, "warnings:")
}
