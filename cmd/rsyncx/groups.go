package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newGroupsCmd())
}

func newGroupsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "groups",
		Short: "List the configured sync groups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "GROUP\tSERVER\tLOCAL\tREMOTE FOLDER")
			for _, g := range cfg.Groups {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", g.Name, g.Server, g.LocalPath, g.RemoteFolder)
			}
			return w.Flush()
		},
	}
}
