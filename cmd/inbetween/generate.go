package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/maauso/gp-inbetween/internal/apperr"
	"github.com/maauso/gp-inbetween/internal/bootstrap"
	"github.com/maauso/gp-inbetween/internal/config"
	"github.com/maauso/gp-inbetween/internal/job"
	"github.com/maauso/gp-inbetween/internal/pipeline"
	"github.com/maauso/gp-inbetween/internal/preprocess"
	"github.com/maauso/gp-inbetween/internal/scoring"
)

type generateFlags struct {
	frames    int
	outputDir string
	character string
	seed      int64
	threshold float64
	backend   string
	motion    string
}

func newGenerateCmd(a *app) *cobra.Command {
	var f generateFlags

	cmd := &cobra.Command{
		Use:   "generate <frame-a> <frame-b>",
		Short: "Generate inbetweens between two keyframes",
		Long: `Generates the requested number of inbetween frames between two keyframe
images, scores each frame and writes the full set with metadata.json to the
output directory. Either the whole set is written or nothing is.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runGenerate(cmd, f, args[0], args[1])
		},
	}

	cmd.Flags().IntVarP(&f.frames, "frames", "n", 0, "number of inbetweens to generate (default from config)")
	cmd.Flags().StringVarP(&f.outputDir, "output", "o", "", "output directory (default from config)")
	cmd.Flags().StringVar(&f.character, "character", "", "character label stored with feedback")
	cmd.Flags().Int64Var(&f.seed, "seed", 0, "model seed (default from config)")
	cmd.Flags().Float64Var(&f.threshold, "threshold", 0, "auto-accept threshold (default from config)")
	cmd.Flags().StringVar(&f.backend, "backend", "", "inference backend: replicate or serverless")
	cmd.Flags().StringVar(&f.motion, "motion-type", "", "motion type recorded for this run: static, subtle, normal or dynamic (default detected)")
	return cmd
}

func (f generateFlags) overrides(cmd *cobra.Command) []config.Override {
	var o []config.Override
	flags := cmd.Flags()
	if flags.Changed("frames") {
		o = append(o, func(c *config.RunConfig) { c.Generation.FrameCount = f.frames })
	}
	if flags.Changed("output") {
		o = append(o, func(c *config.RunConfig) { c.Output.Dir = f.outputDir })
	}
	if flags.Changed("seed") {
		o = append(o, func(c *config.RunConfig) { c.API.Seed = f.seed })
	}
	if flags.Changed("threshold") {
		o = append(o, func(c *config.RunConfig) { c.Scoring.AutoAcceptThreshold = f.threshold })
	}
	if flags.Changed("backend") {
		o = append(o, func(c *config.RunConfig) { c.API.Backend = f.backend })
	}
	return o
}

func (a *app) runGenerate(cmd *cobra.Command, f generateFlags, pathA, pathB string) error {
	ctx := cmd.Context()

	cfg, logger, err := a.load(ctx, cmd, false, f.overrides(cmd)...)
	if err != nil {
		return err
	}

	var motion scoring.MotionType
	if cmd.Flags().Changed("motion-type") {
		if motion, err = scoring.ParseMotionType(f.motion); err != nil {
			return fmt.Errorf("%w: %w", apperr.ErrConfig, err)
		}
	}

	src, err := readSources(pathA, pathB)
	if err != nil {
		return err
	}

	deps, err := bootstrap.NewDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.Warn("failed to close feedback store", slog.String("error", err.Error()))
		}
	}()

	logger.Debug("configuration resolved", slog.String("config", cfg.String()))

	res, err := deps.Pipeline.Generate(ctx, pipeline.Input{
		A:          src[0],
		B:          src[1],
		Character:  f.character,
		MotionType: motion,
	})

	if cfg.Metrics.Textfile != "" {
		if werr := deps.Metrics.WriteTextfile(cfg.Metrics.Textfile); werr != nil {
			logger.Warn("failed to write metrics textfile",
				slog.String("path", cfg.Metrics.Textfile),
				slog.String("error", werr.Error()),
			)
		}
	}
	if err != nil {
		return err
	}

	return printResult(a, res)
}

// readSources reads both keyframes before any other work.
func readSources(paths ...string) ([]preprocess.Source, error) {
	out := make([]preprocess.Source, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p) // #nosec G304 - path is supplied by the user
		if err != nil {
			return nil, fmt.Errorf("%w: read %s: %w", apperr.ErrInvalidImage, p, err)
		}
		out = append(out, preprocess.Source{Name: p, Data: data})
	}
	return out, nil
}

func printResult(a *app, res *job.Result) error {
	table := tablewriter.NewWriter(a.stdout)
	table.Header("Frame", "File", "Confidence", "Classification")
	for _, fr := range res.Frames {
		if err := table.Append(
			fmt.Sprintf("%d", fr.Ordinal),
			filepath.Base(fr.Path),
			fmt.Sprintf("%.3f", fr.Confidence),
			fr.Classification,
		); err != nil {
			return err
		}
	}
	if err := table.Render(); err != nil {
		return err
	}

	fmt.Fprintf(a.stdout, "\nRun:         %s\n", res.RunID)
	fmt.Fprintf(a.stdout, "Output:      %s\n", res.OutputDir)
	fmt.Fprintf(a.stdout, "Motion type: %s\n", res.MotionType)
	fmt.Fprintf(a.stdout, "Threshold:   %.2f\n", res.Threshold)
	for _, u := range res.URLs {
		fmt.Fprintf(a.stdout, "Published:   %s\n", u)
	}
	return nil
}
