package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	invokePrompt string
	invokeFile   string
	invokeSystem string
	invokeModel  string
	invokeRaw    bool
)

var invokeCmd = &cobra.Command{
	Use:   "invoke",
	Short: "Send a prompt through the protected pipeline and print the structured answer",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("invoke"); err != nil {
			return err
		}

		prompt := invokePrompt
		if prompt == "" {
			text, err := readInput(invokeFile, os.Stdin)
			if err != nil {
				return err
			}
			prompt = strings.TrimSpace(text)
		}
		if prompt == "" {
			return eris.New("no prompt given: use --prompt, --file, or stdin")
		}

		// Flag overrides apply to a copy so the global config stays as loaded.
		c := *cfg
		if invokeSystem != "" {
			c.Inference.SystemPrompt = invokeSystem
		}
		if invokeModel != "" {
			c.Inference.Model = invokeModel
		}

		inv, err := newInvoker(&c)
		if err != nil {
			return eris.Wrap(err, "init invoker")
		}

		res, err := inv.AskJSON(ctx, prompt)
		if err != nil {
			return eris.Wrap(err, "invoke")
		}

		zap.L().Info("invocation complete",
			zap.String("invocation_id", res.ID),
			zap.Duration("elapsed", res.Elapsed),
			zap.Int("fields", len(res.Document)),
		)

		if invokeRaw {
			_, err := fmt.Fprintln(os.Stdout, res.Sanitized)
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res.Document)
	},
}

func init() {
	invokeCmd.Flags().StringVarP(&invokePrompt, "prompt", "p", "", "prompt text (falls back to --file, then stdin)")
	invokeCmd.Flags().StringVarP(&invokeFile, "file", "f", "", "read the prompt from a file")
	invokeCmd.Flags().StringVar(&invokeSystem, "system", "", "override the configured system prompt")
	invokeCmd.Flags().StringVar(&invokeModel, "model", "", "override the configured model")
	invokeCmd.Flags().BoolVar(&invokeRaw, "raw", false, "print the sanitized JSON text instead of the parsed document")
	rootCmd.AddCommand(invokeCmd)
}
