package main

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/xsoft-dev/rsyncx/internal/config"
	"github.com/xsoft-dev/rsyncx/internal/engine"
)

func init() {
	rootCmd.AddCommand(newPurgeCmd())
}

func newPurgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge [group]",
		Short: "Empty the local and remote trash subtrees",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return forEachGroup(cmd.Context(), cmd, args,
				func(ctx context.Context, eng *engine.Engine, group config.SyncGroup) error {
					return eng.Purge(ctx, group)
				})
		},
	}
}
