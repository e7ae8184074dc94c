package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/maauso/gp-inbetween/internal/apperr"
	"github.com/maauso/gp-inbetween/internal/config"
)

func newInitConfigCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init-config [path]",
		Short: "Write a default configuration file",
		Long: `Writes the built-in defaults to a config file, by default the --config path
or ` + config.DefaultPath() + `. An existing file is never overwritten.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			path := a.cfgFile
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				path = config.DefaultPath()
			}

			if err := config.WriteTemplate(path); err != nil {
				if errors.Is(err, config.ErrTemplateExists) {
					return fmt.Errorf("%w: %w", apperr.ErrConfig, err)
				}
				return err
			}
			fmt.Fprintf(a.stdout, "Wrote default configuration to %s\n", path)
			fmt.Fprintln(a.stdout, "Set api.key or INBETWEEN_API_KEY before running generate.")
			return nil
		},
	}
}
