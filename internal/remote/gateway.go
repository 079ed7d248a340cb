package remote

import (
	"context"
	"fmt"
)

// Gateway executes a small fixed set of filesystem operations on the
// remote store. All operations are single round-trip command executions
// and idempotent; none are transactional across paths. Implementations
// must be replaceable by test doubles.
type Gateway interface {
	// EnsureDirs creates the given directories (and parents) if absent.
	EnsureDirs(ctx context.Context, ep *ResolvedEndpoint, paths ...string) error

	// ListSuffix returns the absolute paths of all files under root whose
	// name ends with suffix.
	ListSuffix(ctx context.Context, ep *ResolvedEndpoint, root, suffix string) ([]string, error)

	// Touch creates the parent directory of path and writes a timestamp
	// line into it, creating or refreshing the file.
	Touch(ctx context.Context, ep *ResolvedEndpoint, path string) error

	// RemoveContents deletes everything below path, keeping path itself.
	RemoveContents(ctx context.Context, ep *ResolvedEndpoint, path string) error
}

// CommandError wraps a failed remote command with its captured stderr.
type CommandError struct {
	Cmd    string
	Stderr string
	Err    error
}

func (e *CommandError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("remote command %q: %v: %s", e.Cmd, e.Err, e.Stderr)
	}
	return fmt.Sprintf("remote command %q: %v", e.Cmd, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}
