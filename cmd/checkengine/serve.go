package main

import (
	"fmt"

	"checkengine/internal/app"
	"checkengine/internal/clock"
	"checkengine/internal/config"

	"github.com/spf13/cobra"
)

func newServeCmd(flags *configFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run ingest endpoints and the periodic check cycle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			source, err := config.FromCLI(flags.file, flags.dir)
			if err != nil {
				return err
			}
			service, err := app.NewService(source, clock.RealClock{})
			if err != nil {
				return fmt.Errorf("service init failed: %w", err)
			}
			if err := service.Run(cmd.Context()); err != nil {
				return fmt.Errorf("service run failed: %w", err)
			}
			return nil
		},
	}
}
