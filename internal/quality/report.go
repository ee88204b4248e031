package quality

import (
	"fmt"
	"sort"
	"strings"
)

// Report aggregates the quality records of one collection cycle. Built fresh
// from a field snapshot by Validate; never partially updated.
type Report struct {
	OverallConfidence float64                `json:"overall_confidence"`
	ReliableCount     int                    `json:"reliable_count"`
	TotalCount        int                    `json:"total_count"`
	CriticalFailures  []string               `json:"critical_failures,omitempty"`
	Warnings          []string               `json:"warnings,omitempty"`
	Fields            map[string]DataQuality `json:"fields"`
}

// Summary renders the report as human-readable text: overall numbers,
// failure and warning lists, then one line per field in name order.
func (r Report) Summary() string {
	var sb strings.Builder

	sb.WriteString("data quality report\n")
	fmt.Fprintf(&sb, "overall confidence: %.2f%%\n", r.OverallConfidence*100)
	fmt.Fprintf(&sb, "reliable fields: %d/%d\n", r.ReliableCount, r.TotalCount)

	if len(r.CriticalFailures) > 0 {
		sb.WriteString("\ncritical failures:\n")
		for _, failure := range r.CriticalFailures {
			fmt.Fprintf(&sb, "  - %s\n", failure)
		}
	}

	if len(r.Warnings) > 0 {
		sb.WriteString("\nwarnings:\n")
		for _, warning := range r.Warnings {
			fmt.Fprintf(&sb, "  - %s\n", warning)
		}
	}

	if len(r.Fields) > 0 {
		sb.WriteString("\nfields:\n")
		names := make([]string, 0, len(r.Fields))
		for name := range r.Fields {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			dq := r.Fields[name]
			status := "ok  "
			if !dq.Reliable {
				status = "FAIL"
			}
			fmt.Fprintf(&sb, "  %s %s: %.2f%% (%s)\n", status, name, dq.Confidence*100, dq.Source)
		}
	}

	return sb.String()
}
