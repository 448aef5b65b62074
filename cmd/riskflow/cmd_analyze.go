package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/vk/riskflow/internal/app"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [file]",
	Short: "Analyze one transaction payload and print the decision envelope",
	Long: "Reads a JSON transaction payload from the given file, or from stdin when\n" +
		"no file is passed, runs it through the analysis graph, and prints the\n" +
		"finalized decision envelope as JSON.",
	Args: cobra.MaximumNArgs(1),
	RunE: runAnalyze,
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := app.LoadConfig(configPath)
	if err != nil {
		return err
	}

	var raw []byte
	if len(args) == 1 {
		raw, err = os.ReadFile(args[0])
	} else {
		raw, err = io.ReadAll(cmd.InOrStdin())
	}
	if err != nil {
		return fmt.Errorf("reading payload: %w", err)
	}

	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		// Not JSON; treat the raw text as a free-form description.
		payload = string(raw)
	}

	a, err := app.New(cmd.Context(), cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	out, err := a.Analyze(cmd.Context(), payload, nil)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out.FinalOutput())
}
