package transfer

import (
	"context"

	"github.com/xsoft-dev/rsyncx/internal/remote"
)

// Options is the declarative option set for one bulk transfer.
type Options struct {
	// MirrorDeletes removes from the destination whatever is absent at
	// the source.
	MirrorDeletes bool

	// UpdateOnly never overwrites a destination file newer than the source.
	UpdateOnly bool

	// BackupDir relocates replaced or mirror-deleted destination files
	// under this directory (relative to the destination root) instead of
	// discarding them.
	BackupDir string

	// Excludes is an ordered list of glob patterns skipped on both sides.
	Excludes []string

	// ExcludeFile points to a pattern file with one glob per line.
	ExcludeFile string
}

// Spec describes one synchronous bulk transfer between a local path and
// a remote path. Exactly one of Source/Dest is a remote target formatted
// by ResolvedEndpoint.RsyncTarget.
type Spec struct {
	Endpoint *remote.ResolvedEndpoint
	Source   string
	Dest     string
	Options  Options
}

// Invoker runs one bulk transfer and reports success or failure. The
// transfer internals are opaque; partial transfers are not rolled back.
type Invoker interface {
	Sync(ctx context.Context, spec *Spec) error
}
