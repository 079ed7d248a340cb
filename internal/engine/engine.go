// Package engine orchestrates push, pull, run and purge for one sync
// group: it diffs the current local tree against the prior snapshot,
// drives the deletion marker protocol and the bulk transfer in a fixed
// order, and updates the persisted state.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/gofrs/flock"
	"github.com/xsoft-dev/rsyncx/internal/config"
	"github.com/xsoft-dev/rsyncx/internal/filter"
	"github.com/xsoft-dev/rsyncx/internal/marker"
	"github.com/xsoft-dev/rsyncx/internal/remote"
	"github.com/xsoft-dev/rsyncx/internal/state"
	"github.com/xsoft-dev/rsyncx/internal/transfer"
	"github.com/xsoft-dev/rsyncx/internal/trash"
	"github.com/xsoft-dev/rsyncx/internal/utils"
)

var ErrGroupBusy = errors.New("group is locked by another rsyncx process")

type Engine struct {
	cfg      *config.Config
	selector *remote.Selector
	gw       remote.Gateway
	invoker  transfer.Invoker
	store    *state.Store
	markers  *marker.Protocol
	trash    *trash.Manager
	rules    *filter.RuleSet
}

func New(cfg *config.Config, selector *remote.Selector, gw remote.Gateway, invoker transfer.Invoker, store *state.Store, rules *filter.RuleSet) *Engine {
	return &Engine{
		cfg:      cfg,
		selector: selector,
		gw:       gw,
		invoker:  invoker,
		store:    store,
		markers:  marker.NewProtocol(gw),
		trash:    trash.NewManager(),
		rules:    rules,
	}
}

// Push uploads local changes: publishes markers for locally deleted
// paths, mirrors the local tree to the remote (deletions backed up into
// the remote trash), then persists the new snapshot.
func (e *Engine) Push(ctx context.Context, group config.SyncGroup) error {
	profile, err := e.cfg.Server(group)
	if err != nil {
		return err
	}

	unlock, err := e.lockGroup(group)
	if err != nil {
		return err
	}
	defer unlock()

	ep, err := e.selector.ChooseHost(profile)
	if err != nil {
		return fmt.Errorf("push %s: %w", group.Name, err)
	}

	root := remoteRoot(profile, group)
	slog.Info("push", "group", group.Name, "host", ep.Host, "remote", root)
	e.ensureRemoteLayout(ctx, ep, root)

	prev, err := e.store.LoadSnapshot(group.SafeID())
	if err != nil {
		slog.Warn("snapshot load failed, treating as first sync", "group", group.Name, "error", err)
	}
	cur, err := e.localFiles(group.LocalPath)
	if err != nil {
		return fmt.Errorf("enumerate %s: %w", group.LocalPath, err)
	}

	// Markers must be on the remote before the transfer mirrors the
	// deletion, so peers pulling after this push see both.
	deleted := deletedSince(prev, cur)
	if len(deleted) > 0 {
		slog.Info("local deletions detected", "group", group.Name, "count", len(deleted))
		if err := e.markers.Publish(ctx, ep, root, deleted); err != nil {
			return err
		}
		if err := e.store.AppendDeletions(group.SafeID(), deleted); err != nil {
			slog.Warn("deletion log append failed", "group", group.Name, "error", err)
		}
	}

	xferErr := e.invoker.Sync(ctx, &transfer.Spec{
		Endpoint: ep,
		Source:   group.LocalPath + "/",
		Dest:     ep.RsyncTarget(root + "/"),
		Options: transfer.Options{
			MirrorDeletes: true,
			UpdateOnly:    true,
			BackupDir:     trash.Dir,
			Excludes:      filter.ControlExcludes(),
			ExcludeFile:   e.cfg.FilterFile(),
		},
	})
	if xferErr != nil {
		slog.Error("push transfer failed", "group", group.Name, "error", xferErr)
	}

	// Snapshot reflects the observed local tree even after a failed
	// transfer; the next run reconciles from there.
	if err := e.store.SaveSnapshot(group.SafeID(), cur); err != nil {
		slog.Warn("snapshot write failed", "group", group.Name, "error", err)
	}

	return xferErr
}

// Pull downloads remote changes: applies outstanding deletion markers
// (moving local targets to trash) before fetching content, so a file
// deleted elsewhere is not reintroduced, then mirrors the remote trash
// and persists the new snapshot.
func (e *Engine) Pull(ctx context.Context, group config.SyncGroup) error {
	profile, err := e.cfg.Server(group)
	if err != nil {
		return err
	}

	unlock, err := e.lockGroup(group)
	if err != nil {
		return err
	}
	defer unlock()

	ep, err := e.selector.ChooseHost(profile)
	if err != nil {
		return fmt.Errorf("pull %s: %w", group.Name, err)
	}

	root := remoteRoot(profile, group)
	slog.Info("pull", "group", group.Name, "host", ep.Host, "remote", root)
	e.ensureRemoteLayout(ctx, ep, root)

	if err := utils.EnsureDir(group.LocalPath); err != nil {
		return fmt.Errorf("create %s: %w", group.LocalPath, err)
	}

	if marks := e.markers.Collect(ctx, ep, root); len(marks) > 0 {
		if moved := e.trash.MoveToTrash(group.LocalPath, marks); moved > 0 {
			slog.Info("applied remote deletions", "group", group.Name, "moved", moved)
		}
	}

	mainErr := e.invoker.Sync(ctx, &transfer.Spec{
		Endpoint: ep,
		Source:   ep.RsyncTarget(root + "/"),
		Dest:     group.LocalPath + "/",
		Options: transfer.Options{
			UpdateOnly:  true,
			Excludes:    filter.ControlExcludes(),
			ExcludeFile: e.cfg.FilterFile(),
		},
	})
	if mainErr != nil {
		slog.Error("pull transfer failed", "group", group.Name, "error", mainErr)
	}

	// Trash mirror always runs last; the main pull excludes the trash
	// subtree entirely.
	trashErr := e.invoker.Sync(ctx, &transfer.Spec{
		Endpoint: ep,
		Source:   ep.RsyncTarget(path.Join(root, trash.Dir) + "/"),
		Dest:     path.Join(group.LocalPath, trash.Dir) + "/",
		Options: transfer.Options{
			MirrorDeletes: true,
			UpdateOnly:    true,
		},
	})
	if trashErr != nil {
		slog.Warn("trash mirror failed", "group", group.Name, "error", trashErr)
	}

	cur, err := e.localFiles(group.LocalPath)
	if err != nil {
		return errors.Join(mainErr, fmt.Errorf("enumerate %s: %w", group.LocalPath, err))
	}
	if err := e.store.SaveSnapshot(group.SafeID(), cur); err != nil {
		slog.Warn("snapshot write failed", "group", group.Name, "error", err)
	}

	return errors.Join(mainErr, trashErr)
}

// Run performs a full sync in the safe order: pull first so remote
// markers are consumed before the push re-evaluates its own deletions,
// then push.
func (e *Engine) Run(ctx context.Context, group config.SyncGroup) error {
	pullErr := e.Pull(ctx, group)
	if errors.Is(pullErr, remote.ErrNoReachableHost) || errors.Is(pullErr, ErrGroupBusy) {
		return pullErr
	}
	return errors.Join(pullErr, e.Push(ctx, group))
}

// Purge empties the local and remote trash subtrees. Snapshot and
// deletion log are untouched.
func (e *Engine) Purge(ctx context.Context, group config.SyncGroup) error {
	profile, err := e.cfg.Server(group)
	if err != nil {
		return err
	}

	unlock, err := e.lockGroup(group)
	if err != nil {
		return err
	}
	defer unlock()

	slog.Info("purge", "group", group.Name)

	if err := trash.PurgeLocal(group.LocalPath); err != nil {
		return err
	}

	ep, err := e.selector.ChooseHost(profile)
	if err != nil {
		return fmt.Errorf("purge %s: %w", group.Name, err)
	}

	remoteTrash := path.Join(remoteRoot(profile, group), trash.Dir)
	if err := e.gw.RemoveContents(ctx, ep, remoteTrash); err != nil {
		slog.Warn("remote trash purge failed", "group", group.Name, "error", err)
	}
	return nil
}

// lockGroup guards one group's state against a concurrent rsyncx
// invocation for the duration of an operation.
func (e *Engine) lockGroup(group config.SyncGroup) (func(), error) {
	fl := flock.New(e.store.LockPath(group.SafeID()))
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock group %s: %w", group.Name, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrGroupBusy, group.Name)
	}
	return func() { fl.Unlock() }, nil
}

func (e *Engine) ensureRemoteLayout(ctx context.Context, ep *remote.ResolvedEndpoint, root string) {
	if err := e.gw.EnsureDirs(ctx, ep, root, path.Join(root, trash.Dir)); err != nil {
		slog.Warn("remote layout ensure failed", "root", root, "error", err)
	}
}

func remoteRoot(profile config.ServerProfile, group config.SyncGroup) string {
	return path.Join(strings.TrimRight(profile.RemoteBase, "/"), group.RemoteFolder)
}
