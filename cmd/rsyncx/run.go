package main

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/xsoft-dev/rsyncx/internal/config"
	"github.com/xsoft-dev/rsyncx/internal/engine"
)

func init() {
	rootCmd.AddCommand(newRunCmd())
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run [group]",
		Short: "Full sync in the safe order: pull, then push",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return forEachGroup(cmd.Context(), cmd, args,
				func(ctx context.Context, eng *engine.Engine, group config.SyncGroup) error {
					return eng.Run(ctx, group)
				})
		},
	}
}
