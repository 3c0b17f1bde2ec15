package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"damage-assessor/api/internal/damage"
	"damage-assessor/api/internal/tui"
)

func newReportCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "report <analyses.json>",
		Short: "Aggregate saved per-image results into a report",
		Long:  "Reads a JSON array of per-image analyses, an object with an \"analyses\" field, or the output of `assess analyze --json`.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}
			list, err := decodeAnalyses(data)
			if err != nil {
				return fmt.Errorf("parsing %s: %w", args[0], err)
			}

			rep := damage.Aggregate(list)
			if jsonOutput {
				return renderJSON(cmd, rep)
			}
			fmt.Fprint(cmd.OutOrStdout(), tui.RenderReport(rep))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func decodeAnalyses(data []byte) ([]damage.ImageAnalysis, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var list []damage.ImageAnalysis
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, err
		}
		return list, nil
	}
	var doc struct {
		Analyses []damage.ImageAnalysis `json:"analyses"`
		Images   []damage.ImageAnalysis `json:"images"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Analyses != nil {
		return doc.Analyses, nil
	}
	return doc.Images, nil
}
