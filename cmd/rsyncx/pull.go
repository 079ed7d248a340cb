package main

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/xsoft-dev/rsyncx/internal/config"
	"github.com/xsoft-dev/rsyncx/internal/engine"
)

func init() {
	rootCmd.AddCommand(newPullCmd())
}

func newPullCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pull [group]",
		Short: "Download remote changes, applying propagated deletions and mirroring the trash",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return forEachGroup(cmd.Context(), cmd, args,
				func(ctx context.Context, eng *engine.Engine, group config.SyncGroup) error {
					return eng.Pull(ctx, group)
				})
		},
	}
}
