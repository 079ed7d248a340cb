package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/xsoft-dev/rsyncx/internal/config"
	"github.com/xsoft-dev/rsyncx/internal/engine"
	"github.com/xsoft-dev/rsyncx/internal/filter"
	"github.com/xsoft-dev/rsyncx/internal/remote"
	"github.com/xsoft-dev/rsyncx/internal/state"
	"github.com/xsoft-dev/rsyncx/internal/transfer"
)

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}

func newEngine(cfg *config.Config) (*engine.Engine, error) {
	store, err := state.NewStore(cfg.StateDir(), cfg.DeletedDir())
	if err != nil {
		return nil, err
	}

	rules, err := filter.Load(cfg.FilterFile())
	if err != nil {
		return nil, err
	}

	return engine.New(
		cfg,
		remote.NewSelector(),
		remote.NewSSHGateway(),
		transfer.NewRsyncInvoker(),
		store,
		rules,
	), nil
}

// selectGroups resolves the optional group argument; no argument means
// every configured group, in config order.
func selectGroups(cfg *config.Config, args []string) ([]config.SyncGroup, error) {
	if len(args) == 0 {
		return cfg.Groups, nil
	}
	group, err := cfg.Group(args[0])
	if err != nil {
		return nil, err
	}
	return []config.SyncGroup{group}, nil
}

// forEachGroup runs op per group; one group's failure never aborts the
// rest, but it is reflected in the process exit code.
func forEachGroup(ctx context.Context, cmd *cobra.Command, args []string, op func(context.Context, *engine.Engine, config.SyncGroup) error) error {
	cmd.SilenceUsage = true

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	eng, err := newEngine(cfg)
	if err != nil {
		return err
	}
	groups, err := selectGroups(cfg, args)
	if err != nil {
		return err
	}

	var errs []error
	for _, group := range groups {
		if err := op(ctx, eng, group); err != nil {
			slog.Error("group failed", "group", group.Name, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
