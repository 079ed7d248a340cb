package engine

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xsoft-dev/rsyncx/internal/config"
	"github.com/xsoft-dev/rsyncx/internal/filter"
	"github.com/xsoft-dev/rsyncx/internal/marker"
	"github.com/xsoft-dev/rsyncx/internal/remote"
	"github.com/xsoft-dev/rsyncx/internal/state"
	"github.com/xsoft-dev/rsyncx/internal/transfer"
	"github.com/xsoft-dev/rsyncx/internal/trash"
)

const testRemoteRoot = "/srv/data/docsFolder"

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

type fakeGateway struct {
	mu      sync.Mutex
	rec     *recorder
	ensured [][]string
	touched []string
	removed []string
	listOut []string
	lastEp  *remote.ResolvedEndpoint
}

func (f *fakeGateway) EnsureDirs(ctx context.Context, ep *remote.ResolvedEndpoint, paths ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rec.add("ensure")
	f.ensured = append(f.ensured, paths)
	f.lastEp = ep
	return nil
}

func (f *fakeGateway) ListSuffix(ctx context.Context, ep *remote.ResolvedEndpoint, root, suffix string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rec.add("list")
	f.lastEp = ep
	return f.listOut, nil
}

func (f *fakeGateway) Touch(ctx context.Context, ep *remote.ResolvedEndpoint, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rec.add("touch " + path)
	f.touched = append(f.touched, path)
	f.lastEp = ep
	return nil
}

func (f *fakeGateway) RemoveContents(ctx context.Context, ep *remote.ResolvedEndpoint, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rec.add("remove " + path)
	f.removed = append(f.removed, path)
	f.lastEp = ep
	return nil
}

type fakeInvoker struct {
	rec    *recorder
	specs  []*transfer.Spec
	onSync func(spec *transfer.Spec) error
}

func (f *fakeInvoker) Sync(ctx context.Context, spec *transfer.Spec) error {
	f.rec.add("sync " + spec.Dest)
	f.specs = append(f.specs, spec)
	if f.onSync != nil {
		return f.onSync(spec)
	}
	return nil
}

type testEnv struct {
	eng   *Engine
	gw    *fakeGateway
	inv   *fakeInvoker
	rec   *recorder
	store *state.Store
	group config.SyncGroup
	root  string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	localRoot := t.TempDir()
	cfg := &config.Config{
		Servers: map[string]config.ServerProfile{
			"nas": {
				HostLocal:  "192.168.1.2",
				HostVPN:    "10.8.0.2",
				Port:       22,
				User:       "backup",
				Password:   "secret",
				RemoteBase: "/srv/data/",
			},
		},
		Groups: []config.SyncGroup{
			{Name: "docs", Server: "nas", RemoteFolder: "docsFolder", LocalPath: localRoot},
		},
		Dir: t.TempDir(),
	}

	store, err := state.NewStore(cfg.StateDir(), cfg.DeletedDir())
	require.NoError(t, err)
	rules, err := filter.Load(cfg.FilterFile())
	require.NoError(t, err)

	selector := remote.NewSelector()
	selector.Dial = func(network, addr string, timeout time.Duration) (net.Conn, error) {
		client, server := net.Pipe()
		t.Cleanup(func() { server.Close() })
		return client, nil
	}

	rec := &recorder{}
	gw := &fakeGateway{rec: rec}
	inv := &fakeInvoker{rec: rec}

	return &testEnv{
		eng:   New(cfg, selector, gw, inv, store, rules),
		gw:    gw,
		inv:   inv,
		rec:   rec,
		store: store,
		group: cfg.Groups[0],
		root:  localRoot,
	}
}

func (e *testEnv) writeLocal(t *testing.T, rel string) {
	t.Helper()
	path := filepath.Join(e.root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("content"), 0o644))
}

func TestPushFirstSyncTreatsNothingAsDeleted(t *testing.T) {
	env := newTestEnv(t)
	env.writeLocal(t, "a.txt")
	env.writeLocal(t, "b.txt")
	env.writeLocal(t, "docs/c.txt")

	require.NoError(t, env.eng.Push(context.Background(), env.group))

	// no prior snapshot, so no markers and no deletion log entries
	assert.Empty(t, env.gw.touched)
	history, err := env.store.Deletions(env.group.SafeID())
	require.NoError(t, err)
	assert.Empty(t, history)

	snap, err := env.store.LoadSnapshot(env.group.SafeID())
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, []string{"a.txt", "b.txt", "docs/c.txt"}, snap.Files)

	require.Len(t, env.inv.specs, 1)
	spec := env.inv.specs[0]
	assert.Equal(t, env.root+"/", spec.Source)
	assert.Equal(t, "backup@192.168.1.2:"+testRemoteRoot+"/", spec.Dest)
	assert.True(t, spec.Options.MirrorDeletes)
	assert.True(t, spec.Options.UpdateOnly)
	assert.Equal(t, trash.Dir, spec.Options.BackupDir)
	assert.Contains(t, spec.Options.Excludes, "_papelera/")
	assert.Contains(t, spec.Options.Excludes, "*"+marker.Suffix)
}

func TestPushPublishesMarkersForLocalDeletions(t *testing.T) {
	env := newTestEnv(t)
	env.writeLocal(t, "docs/a.txt")
	env.writeLocal(t, "b.txt")
	require.NoError(t, env.eng.Push(context.Background(), env.group))

	require.NoError(t, os.Remove(filepath.Join(env.root, "docs", "a.txt")))
	require.NoError(t, env.eng.Push(context.Background(), env.group))

	assert.Equal(t, []string{testRemoteRoot + "/docs/a.txt" + marker.Suffix}, env.gw.touched)

	snap, err := env.store.LoadSnapshot(env.group.SafeID())
	require.NoError(t, err)
	assert.Equal(t, []string{"b.txt"}, snap.Files)

	history, err := env.store.Deletions(env.group.SafeID())
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, []string{"docs/a.txt"}, history[0].Deleted)
}

func TestPushIdempotentWithoutChanges(t *testing.T) {
	env := newTestEnv(t)
	env.writeLocal(t, "a.txt")

	require.NoError(t, env.eng.Push(context.Background(), env.group))
	require.NoError(t, env.eng.Push(context.Background(), env.group))

	assert.Empty(t, env.gw.touched)
	history, err := env.store.Deletions(env.group.SafeID())
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestPushMarkerPrecedesTransfer(t *testing.T) {
	env := newTestEnv(t)
	env.writeLocal(t, "a.txt")
	require.NoError(t, env.eng.Push(context.Background(), env.group))

	require.NoError(t, os.Remove(filepath.Join(env.root, "a.txt")))
	env.rec.events = nil
	require.NoError(t, env.eng.Push(context.Background(), env.group))

	var touchIdx, syncIdx int
	for i, ev := range env.rec.events {
		switch {
		case len(ev) > 5 && ev[:5] == "touch":
			touchIdx = i
		case len(ev) > 4 && ev[:4] == "sync":
			syncIdx = i
		}
	}
	assert.Less(t, touchIdx, syncIdx, "marker must be published before the transfer mirrors the deletion")
}

func TestSnapshotExcludesTrashAndControlFiles(t *testing.T) {
	env := newTestEnv(t)
	env.writeLocal(t, "live.txt")
	env.writeLocal(t, "_papelera/old.txt")
	env.writeLocal(t, "docs/gone.txt"+marker.Suffix)
	env.writeLocal(t, ".rsyncx_state.json")

	require.NoError(t, env.eng.Push(context.Background(), env.group))

	snap, err := env.store.LoadSnapshot(env.group.SafeID())
	require.NoError(t, err)
	assert.Equal(t, []string{"live.txt"}, snap.Files)
}

func TestPullAppliesMarkersBeforeFetch(t *testing.T) {
	env := newTestEnv(t)
	env.writeLocal(t, "docs/a.txt")
	env.writeLocal(t, "docs/keep.txt")
	env.gw.listOut = []string{testRemoteRoot + "/docs/a.txt" + marker.Suffix}

	livePath := filepath.Join(env.root, "docs", "a.txt")
	env.inv.onSync = func(spec *transfer.Spec) error {
		// by the time any transfer runs, the marked file must already be
		// out of the live tree
		assert.NoFileExists(t, livePath)
		return nil
	}

	require.NoError(t, env.eng.Pull(context.Background(), env.group))

	assert.NoFileExists(t, livePath)
	assert.FileExists(t, filepath.Join(env.root, "docs", "keep.txt"))

	matches, err := filepath.Glob(filepath.Join(env.root, trash.Dir, "docs", "a_*.txt"))
	require.NoError(t, err)
	assert.Len(t, matches, 1, "marked file should be in local trash")

	// snapshot reflects the post-pull tree, without the trashed file
	snap, err := env.store.LoadSnapshot(env.group.SafeID())
	require.NoError(t, err)
	assert.Equal(t, []string{"docs/keep.txt"}, snap.Files)
}

func TestPullTransferSequence(t *testing.T) {
	env := newTestEnv(t)
	env.writeLocal(t, "a.txt")

	require.NoError(t, env.eng.Pull(context.Background(), env.group))

	require.Len(t, env.inv.specs, 2)

	main := env.inv.specs[0]
	assert.Equal(t, "backup@192.168.1.2:"+testRemoteRoot+"/", main.Source)
	assert.Equal(t, env.root+"/", main.Dest)
	assert.True(t, main.Options.UpdateOnly)
	assert.False(t, main.Options.MirrorDeletes)
	assert.Contains(t, main.Options.Excludes, "_papelera/")

	mirror := env.inv.specs[1]
	assert.Equal(t, "backup@192.168.1.2:"+testRemoteRoot+"/_papelera/", mirror.Source)
	assert.Equal(t, filepath.Join(env.root, trash.Dir)+"/", mirror.Dest)
	assert.True(t, mirror.Options.MirrorDeletes)
	assert.Empty(t, mirror.Options.BackupDir)
}

func TestPullSnapshotIncludesFetchedFiles(t *testing.T) {
	env := newTestEnv(t)
	env.inv.onSync = func(spec *transfer.Spec) error {
		if spec.Dest == env.root+"/" {
			// simulate the transfer bringing in a new remote file
			require.NoError(t, os.WriteFile(filepath.Join(env.root, "fetched.txt"), []byte("x"), 0o644))
		}
		return nil
	}

	require.NoError(t, env.eng.Pull(context.Background(), env.group))

	snap, err := env.store.LoadSnapshot(env.group.SafeID())
	require.NoError(t, err)
	assert.Equal(t, []string{"fetched.txt"}, snap.Files)
}

func TestRunPullsBeforePushing(t *testing.T) {
	env := newTestEnv(t)
	env.writeLocal(t, "a.txt")

	require.NoError(t, env.eng.Run(context.Background(), env.group))

	require.Len(t, env.inv.specs, 3)
	assert.Equal(t, env.root+"/", env.inv.specs[0].Dest, "content pull first")
	assert.Equal(t, filepath.Join(env.root, trash.Dir)+"/", env.inv.specs[1].Dest, "trash mirror second")
	assert.Equal(t, "backup@192.168.1.2:"+testRemoteRoot+"/", env.inv.specs[2].Dest, "push last")
}

func TestPurge(t *testing.T) {
	env := newTestEnv(t)
	env.writeLocal(t, "live.txt")
	for _, name := range []string{"a.txt", "b.txt", "c.txt", "d.txt", "e.txt"} {
		env.writeLocal(t, "_papelera/"+name)
	}
	require.NoError(t, env.eng.Push(context.Background(), env.group))

	require.NoError(t, env.eng.Purge(context.Background(), env.group))

	entries, err := os.ReadDir(filepath.Join(env.root, trash.Dir))
	require.NoError(t, err)
	assert.Empty(t, entries)

	assert.Equal(t, []string{testRemoteRoot + "/_papelera"}, env.gw.removed)

	// snapshot and deletion log untouched by purge
	snap, err := env.store.LoadSnapshot(env.group.SafeID())
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, []string{"live.txt"}, snap.Files)
}

func TestHostFallbackThreadsThroughAllOperations(t *testing.T) {
	env := newTestEnv(t)
	env.eng.selector.Dial = func(network, addr string, timeout time.Duration) (net.Conn, error) {
		return nil, os.ErrDeadlineExceeded
	}
	env.writeLocal(t, "a.txt")
	require.NoError(t, env.eng.Push(context.Background(), env.group))

	require.NoError(t, os.Remove(filepath.Join(env.root, "a.txt")))
	require.NoError(t, env.eng.Push(context.Background(), env.group))

	assert.Equal(t, "10.8.0.2", env.gw.lastEp.Host)
	for _, spec := range env.inv.specs {
		assert.Equal(t, "10.8.0.2", spec.Endpoint.Host)
	}
}

func TestPushFailsWithoutReachableHost(t *testing.T) {
	env := newTestEnv(t)
	env.eng.cfg.Servers["nas"] = config.ServerProfile{
		HostLocal:  "192.168.1.2",
		Port:       22,
		User:       "backup",
		RemoteBase: "/srv/data/",
	}
	env.eng.selector.Dial = func(network, addr string, timeout time.Duration) (net.Conn, error) {
		return nil, os.ErrDeadlineExceeded
	}

	err := env.eng.Push(context.Background(), env.group)
	require.ErrorIs(t, err, remote.ErrNoReachableHost)
	assert.Empty(t, env.inv.specs)
}

func TestGroupLockRejectsConcurrentRun(t *testing.T) {
	env := newTestEnv(t)

	fl := flock.New(env.store.LockPath(env.group.SafeID()))
	locked, err := fl.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer fl.Unlock()

	err = env.eng.Push(context.Background(), env.group)
	require.ErrorIs(t, err, ErrGroupBusy)
}

func TestDeletedSince(t *testing.T) {
	cases := []struct {
		name     string
		prev     *state.Snapshot
		cur      []string
		expected []string
	}{
		{"no-prior-snapshot", nil, []string{"a", "b"}, nil},
		{"empty-prior", &state.Snapshot{}, []string{"a"}, nil},
		{"nothing-deleted", &state.Snapshot{Files: []string{"a"}}, []string{"a", "b"}, nil},
		{"one-deleted", &state.Snapshot{Files: []string{"a", "b"}}, []string{"b"}, []string{"a"}},
		{"all-deleted", &state.Snapshot{Files: []string{"b", "a"}}, nil, []string{"a", "b"}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := deletedSince(c.prev, c.cur)
			if c.expected == nil {
				assert.Empty(t, got)
			} else {
				assert.Equal(t, c.expected, got)
			}
		})
	}
}
