package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/maauso/gp-inbetween/internal/feedback"
)

// newReviewCmd builds the accept or reject command.
func newReviewCmd(a *app, verb string) *cobra.Command {
	var (
		ordinals []int
		issues   []string
	)

	disposition := feedback.Accepted
	if verb == "reject" {
		disposition = feedback.Rejected
	}

	cmd := &cobra.Command{
		Use:   verb + " <run-id>",
		Short: fmt.Sprintf("Mark generated frames of a run as %s", disposition),
		Long: fmt.Sprintf(`Appends a %s record to the feedback store for the selected frames of a
run. Without --frames every frame of the run is reviewed.`, disposition),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, logger, err := a.load(ctx, cmd, true)
			if err != nil {
				return err
			}

			store, err := feedback.Open(ctx, cfg.Feedback, logger)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			written, err := feedback.ApplyReview(ctx, store, feedback.Review{
				RunID:       args[0],
				Ordinals:    ordinals,
				Disposition: disposition,
				Issues:      issues,
			})
			if err != nil {
				return err
			}

			logger.Debug("review recorded",
				slog.String("run_id", args[0]),
				slog.Int("frames", len(written)),
			)
			fmt.Fprintf(a.stdout, "Recorded %d frame(s) of %s as %s\n", len(written), args[0], disposition)
			return nil
		},
	}

	cmd.Flags().IntSliceVar(&ordinals, "frames", nil, "frame ordinals to review, e.g. 1,3 (default all)")
	cmd.Flags().StringSliceVar(&issues, "issue", nil, "issue tag, repeatable (e.g. jitter, off-model)")
	return cmd
}
