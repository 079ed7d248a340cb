package main

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/xsoft-dev/rsyncx/internal/config"
	"github.com/xsoft-dev/rsyncx/internal/engine"
)

func init() {
	rootCmd.AddCommand(newPushCmd())
}

func newPushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "push [group]",
		Short: "Upload local changes, marking deletions and backing them into the remote trash",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return forEachGroup(cmd.Context(), cmd, args,
				func(ctx context.Context, eng *engine.Engine, group config.SyncGroup) error {
					return eng.Push(ctx, group)
				})
		},
	}
}
