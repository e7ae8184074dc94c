package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/maauso/gp-inbetween/internal/apperr"
	"github.com/maauso/gp-inbetween/internal/feedback"
)

func newStatsCmd(a *app) *cobra.Command {
	var (
		output string
		filter feedback.Filter
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show feedback statistics",
		Long: `Reads the feedback store and prints acceptance counts, per motion type and
per character rates, common issues and a suggested auto-accept threshold once
enough frames have been reviewed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			if output != "table" && output != "json" && output != "yaml" {
				return fmt.Errorf("%w: unknown output format %q", apperr.ErrConfig, output)
			}

			cfg, logger, err := a.load(ctx, cmd, true)
			if err != nil {
				return err
			}

			store, err := feedback.Open(ctx, cfg.Feedback, logger)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			summary, err := feedback.Stats(ctx, store, filter)
			if err != nil {
				return err
			}
			return renderStats(a.stdout, output, summary)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "table", "output format: table, json or yaml")
	cmd.Flags().StringVar(&filter.Character, "character", "", "only frames of this character")
	cmd.Flags().StringVar(&filter.MotionType, "motion-type", "", "only frames of this motion type")
	return cmd
}

func renderStats(w io.Writer, format string, s feedback.Summary) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(s); err != nil {
			return err
		}
		return enc.Close()
	}

	table := tablewriter.NewWriter(w)
	table.Header("Metric", "Value")
	rows := [][]string{
		{"Frames", fmt.Sprintf("%d", s.Frames)},
		{"Runs", fmt.Sprintf("%d", s.Runs)},
		{"Accepted", fmt.Sprintf("%d", s.Accepted)},
		{"Rejected", fmt.Sprintf("%d", s.Rejected)},
		{"Unreviewed", fmt.Sprintf("%d", s.Unreviewed)},
		{"Auto-accepted", fmt.Sprintf("%d", s.AutoAccepted)},
		{"Acceptance rate", percent(s.AcceptanceRate)},
	}
	for _, d := range []feedback.Disposition{feedback.Accepted, feedback.Rejected, feedback.Unreviewed} {
		if mean, ok := s.MeanConfidence[d]; ok {
			rows = append(rows, []string{"Mean confidence (" + string(d) + ")", fmt.Sprintf("%.3f", mean)})
		}
	}
	rows = append(rows, []string{"Suggested threshold", suggestion(s.Calibration)})
	if err := appendRows(table, rows); err != nil {
		return err
	}
	if err := table.Render(); err != nil {
		return err
	}

	if err := renderRates(w, "Motion type", s.ByMotionType); err != nil {
		return err
	}
	if err := renderRates(w, "Character", s.ByCharacter); err != nil {
		return err
	}

	if len(s.CommonIssues) == 0 {
		return nil
	}
	fmt.Fprintln(w)
	issues := tablewriter.NewWriter(w)
	issues.Header("Issue", "Count")
	for _, ic := range s.CommonIssues {
		if err := issues.Append(ic.Issue, fmt.Sprintf("%d", ic.Count)); err != nil {
			return err
		}
	}
	return issues.Render()
}

func renderRates(w io.Writer, label string, rates []feedback.Rate) error {
	if len(rates) == 0 {
		return nil
	}
	fmt.Fprintln(w)
	table := tablewriter.NewWriter(w)
	table.Header(label, "Accepted", "Rejected", "Rate")
	for _, r := range rates {
		rate := r.Rate
		if err := table.Append(r.Key, fmt.Sprintf("%d", r.Accepted), fmt.Sprintf("%d", r.Rejected), percent(&rate)); err != nil {
			return err
		}
	}
	return table.Render()
}

func appendRows(table *tablewriter.Table, rows [][]string) error {
	for _, row := range rows {
		if err := table.Append(row); err != nil {
			return err
		}
	}
	return nil
}

func percent(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.1f%%", *v*100)
}

func suggestion(c feedback.Calibration) string {
	if c.Suggested == nil {
		if c.Reviewed < feedback.MinCalibrationSamples {
			return fmt.Sprintf("n/a (%d/%d reviewed)", c.Reviewed, feedback.MinCalibrationSamples)
		}
		return "n/a"
	}
	return fmt.Sprintf("%.2f (precision %s, coverage %s)", *c.Suggested, percent(c.Precision), percent(c.Coverage))
}
