package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/zamong25/AIS2025-sub001/internal/sanitize"
)

var (
	sanitizeFile  string
	sanitizeParse bool
)

var sanitizeCmd = &cobra.Command{
	Use:   "sanitize",
	Short: "Repair raw model output into parseable JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := readInput(sanitizeFile, os.Stdin)
		if err != nil {
			return err
		}
		return runSanitize(raw, sanitizeParse, os.Stdout)
	},
}

// runSanitize repairs raw text and writes it to out. With parse set it also
// decodes the result and writes the indented document instead, surfacing a
// ParseError when the text is beyond repair.
func runSanitize(raw string, parse bool, out io.Writer) error {
	if !parse {
		_, err := fmt.Fprintln(out, sanitize.Sanitize(raw))
		return err
	}
	doc, err := sanitize.Parse(raw)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

func init() {
	sanitizeCmd.Flags().StringVarP(&sanitizeFile, "file", "f", "", "read raw output from a file instead of stdin")
	sanitizeCmd.Flags().BoolVar(&sanitizeParse, "parse", false, "parse the repaired text and print the document")
	rootCmd.AddCommand(sanitizeCmd)
}
