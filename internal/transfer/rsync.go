package transfer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/xsoft-dev/rsyncx/internal/remote"
)

// RsyncInvoker shells out to the rsync binary. It is the production
// adapter behind the Invoker port; tests substitute a fake.
type RsyncInvoker struct {
	// Output receives rsync's stdout/stderr; defaults to os.Stdout.
	Output io.Writer
}

func NewRsyncInvoker() *RsyncInvoker {
	return &RsyncInvoker{Output: os.Stdout}
}

func (r *RsyncInvoker) Sync(ctx context.Context, spec *Spec) error {
	args := Args(spec)

	name := "rsync"
	env := os.Environ()
	if spec.Endpoint.Identity == "" {
		// password auth rides on sshpass, same as the gateway
		name = "sshpass"
		args = append([]string{"-e", "rsync"}, args...)
		env = append(env, "SSHPASS="+spec.Endpoint.Password)
	}

	slog.Debug("rsync", "source", spec.Source, "dest", spec.Dest,
		"mirror", spec.Options.MirrorDeletes, "update", spec.Options.UpdateOnly)

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = env

	var stderr bytes.Buffer
	out := r.Output
	if out == nil {
		out = os.Stdout
	}
	cmd.Stdout = out
	cmd.Stderr = io.MultiWriter(out, &stderr)

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("rsync %s -> %s: %w: %s", spec.Source, spec.Dest, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// Args builds the rsync argv (without the leading binary name) for a spec.
func Args(spec *Spec) []string {
	args := []string{"-az"}

	if spec.Options.UpdateOnly {
		args = append(args, "--update")
	}
	if spec.Options.MirrorDeletes {
		args = append(args, "--delete")
	}
	if spec.Options.BackupDir != "" {
		args = append(args, "--backup", "--backup-dir="+spec.Options.BackupDir)
	}
	for _, pattern := range spec.Options.Excludes {
		args = append(args, "--exclude", pattern)
	}
	if spec.Options.ExcludeFile != "" {
		args = append(args, "--exclude-from", spec.Options.ExcludeFile)
	}

	args = append(args, "-e", remote.SSHTransport(spec.Endpoint))
	args = append(args, spec.Source, spec.Dest)
	return args
}
