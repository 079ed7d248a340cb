package main

import (
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/xsoft-dev/rsyncx/internal/config"
)

func init() {
	rootCmd.AddCommand(newConfigureCmd())
}

func newConfigureCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "configure",
		Short: "Create the config directory, default config and filter files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			dir := config.DefaultConfigDir
			if cmd.Flag("config").Changed {
				path, _ := cmd.Flags().GetString("config")
				dir = filepath.Dir(path)
			}
			return config.Scaffold(dir)
		},
	}
}
