package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"damage-assessor/api/internal/app"
	"damage-assessor/api/internal/config"
	"damage-assessor/api/internal/damage"
	"damage-assessor/api/internal/session"
	"damage-assessor/api/internal/tui"
	"damage-assessor/api/internal/util"
)

type analyzeOutput struct {
	Images []damage.ImageAnalysis `json:"images"`
	Report damage.Report          `json:"report"`
}

func newAnalyzeCmd() *cobra.Command {
	var (
		engine     string
		jsonOutput bool
		parallel   int
	)

	cmd := &cobra.Command{
		Use:   "analyze <image>...",
		Short: "Analyse car photos and print the combined report",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			d, err := app.Wire(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer d.Close()

			if _, err := d.Engines.GetEngine(engine); err != nil {
				return err
			}

			uploads, err := readImages(cmd, args, engine)
			if err != nil {
				return err
			}

			s := d.Sessions.Create()
			ids := make([]string, len(uploads))
			for i, up := range uploads {
				ids[i] = d.Orch.Publish(s, up).ID
			}
			g, ctx := errgroup.WithContext(cmd.Context())
			g.SetLimit(max(parallel, 1))
			for i, up := range uploads {
				g.Go(func() error {
					d.Orch.Complete(ctx, s, ids[i], up)
					return nil
				})
			}
			_ = g.Wait()

			out := analyzeOutput{Images: s.Snapshot(), Report: s.Report()}
			if jsonOutput {
				return renderJSON(cmd, out)
			}
			fmt.Fprint(cmd.OutOrStdout(), tui.RenderImages(out.Images))
			fmt.Fprint(cmd.OutOrStdout(), "\n"+tui.RenderReport(out.Report))
			return nil
		},
	}

	cmd.Flags().StringVar(&engine, "engine", "", "model engine: deepseek, openai or gemini (default from DEFAULT_ENGINE)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	cmd.Flags().IntVar(&parallel, "parallel", 4, "images analysed at once")
	return cmd
}

// readImages читает файлы; не-изображения пропускаются с предупреждением.
func readImages(cmd *cobra.Command, paths []string, engine string) ([]session.Upload, error) {
	var out []session.Upload
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", p, err)
		}
		mime := util.SniffMimeHTTP(data)
		if !util.IsImageMIME(mime) {
			fmt.Fprintf(cmd.ErrOrStderr(), "skipping %s: not an image (%s)\n", p, mime)
			continue
		}
		out = append(out, session.Upload{Name: filepath.Base(p), Data: data, MIME: mime, Engine: engine})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no images to analyse")
	}
	return out, nil
}

func renderJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
