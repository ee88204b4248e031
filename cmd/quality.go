package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/zamong25/AIS2025-sub001/internal/collect"
	"github.com/zamong25/AIS2025-sub001/internal/monitoring"
	"github.com/zamong25/AIS2025-sub001/internal/quality"
)

var (
	qualityFile              string
	qualitySummary           bool
	qualityValues            bool
	qualityIncludeUnreliable bool
)

var qualityCmd = &cobra.Command{
	Use:   "quality",
	Short: "Validate recorded observations and gate on the result",
	Long: "Reads a JSON map of field observations, scores each one by its " +
		"importance tier, and prints the validation report. Exits nonzero when " +
		"the gate blocks the cycle.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("quality"); err != nil {
			return err
		}

		raw, err := readInput(qualityFile, os.Stdin)
		if err != nil {
			return err
		}
		mgr, err := newQualityManager(cfg)
		if err != nil {
			return err
		}

		return runQuality(mgr, raw, qualityOptions{
			MinOverall:        cfg.Quality.MinOverall,
			Summary:           qualitySummary,
			Values:            qualityValues,
			IncludeUnreliable: qualityIncludeUnreliable,
		}, os.Stdout)
	},
}

type qualityOptions struct {
	MinOverall        float64
	Summary           bool
	Values            bool
	IncludeUnreliable bool
}

// gateVerdict applies the configured confidence floor on top of the
// snapshot's own gate. Nil means downstream use may proceed.
func gateVerdict(snap *collect.Snapshot, minOverall float64) error {
	if err := snap.Gate(); err != nil {
		return err
	}
	if snap.Report.OverallConfidence < minOverall {
		return eris.Errorf("overall confidence %.2f below configured minimum %.2f",
			snap.Report.OverallConfidence, minOverall)
	}
	return nil
}

// runQuality validates pre-recorded observations and writes the outcome to
// out. The returned error is the gate verdict: non-nil when the cycle is
// blocked, so the command exits nonzero even though the report was printed.
func runQuality(mgr *quality.Manager, raw string, opts qualityOptions, out io.Writer) error {
	var observations map[string]collect.Observation
	if err := json.Unmarshal([]byte(raw), &observations); err != nil {
		return eris.Wrap(err, "decode observations")
	}
	if len(observations) == 0 {
		return eris.New("no observations given")
	}

	snap := collect.NewCollector(mgr).FromObservations(observations)

	gateErr := gateVerdict(snap, opts.MinOverall)
	proceed := gateErr == nil
	monitoring.RecordGate(proceed, snap.Report.OverallConfidence)

	if opts.Summary {
		if _, err := io.WriteString(out, snap.Report.Summary()); err != nil {
			return err
		}
		return gateErr
	}

	result := struct {
		ID      string         `json:"id"`
		Proceed bool           `json:"proceed"`
		Report  quality.Report `json:"report"`
		Values  map[string]any `json:"values,omitempty"`
	}{
		ID:      snap.ID,
		Proceed: proceed,
		Report:  snap.Report,
	}
	if opts.Values {
		result.Values = snap.Values(opts.IncludeUnreliable)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return err
	}
	return gateErr
}

func init() {
	qualityCmd.Flags().StringVarP(&qualityFile, "file", "f", "", "read observations JSON from a file instead of stdin")
	qualityCmd.Flags().BoolVar(&qualitySummary, "summary", false, "print the human-readable report instead of JSON")
	qualityCmd.Flags().BoolVar(&qualityValues, "values", false, "include extracted values in the JSON output")
	qualityCmd.Flags().BoolVar(&qualityIncludeUnreliable, "include-unreliable", false, "keep unreliable fields when extracting values")
	rootCmd.AddCommand(qualityCmd)
}
