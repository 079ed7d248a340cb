package remote

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path"
	"strings"
)

// SSHGateway runs gateway operations through the ssh binary. Password
// auth goes through sshpass with the password in the SSHPASS environment
// variable so it never appears in argv.
type SSHGateway struct{}

func NewSSHGateway() *SSHGateway {
	return &SSHGateway{}
}

func (g *SSHGateway) EnsureDirs(ctx context.Context, ep *ResolvedEndpoint, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	quoted := make([]string, 0, len(paths))
	for _, p := range paths {
		quoted = append(quoted, shellQuote(p))
	}
	_, err := g.run(ctx, ep, "mkdir -p "+strings.Join(quoted, " "))
	return err
}

func (g *SSHGateway) ListSuffix(ctx context.Context, ep *ResolvedEndpoint, root, suffix string) ([]string, error) {
	cmd := fmt.Sprintf("find %s -type f -name %s -print", shellQuote(root), shellQuote("*"+suffix))
	out, err := g.run(ctx, ep, cmd)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			files = append(files, line)
		}
	}
	return files, nil
}

func (g *SSHGateway) Touch(ctx context.Context, ep *ResolvedEndpoint, p string) error {
	cmd := fmt.Sprintf("mkdir -p %s && date -Is > %s", shellQuote(path.Dir(p)), shellQuote(p))
	_, err := g.run(ctx, ep, cmd)
	return err
}

func (g *SSHGateway) RemoveContents(ctx context.Context, ep *ResolvedEndpoint, p string) error {
	cmd := fmt.Sprintf("find %s -mindepth 1 -exec rm -rf {} +", shellQuote(p))
	_, err := g.run(ctx, ep, cmd)
	return err
}

func (g *SSHGateway) run(ctx context.Context, ep *ResolvedEndpoint, remoteCmd string) (string, error) {
	name, args, env := SSHCommand(ep, remoteCmd)

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = env

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", &CommandError{
			Cmd:    remoteCmd,
			Stderr: strings.TrimSpace(stderr.String()),
			Err:    err,
		}
	}
	return stdout.String(), nil
}

// SSHCommand builds the argv and environment for executing remoteCmd on
// the endpoint. Shared with the rsync invoker, which needs the same ssh
// transport as its -e option.
func SSHCommand(ep *ResolvedEndpoint, remoteCmd string) (name string, args []string, env []string) {
	sshArgs := []string{
		"-o", "StrictHostKeyChecking=no",
		"-p", fmt.Sprintf("%d", ep.Port),
	}
	if ep.Identity != "" {
		sshArgs = append(sshArgs, "-i", ep.Identity)
	}
	sshArgs = append(sshArgs, ep.UserHost(), remoteCmd)

	env = os.Environ()
	if ep.Identity == "" {
		env = append(env, "SSHPASS="+ep.Password)
		return "sshpass", append([]string{"-e", "ssh"}, sshArgs...), env
	}
	return "ssh", sshArgs, env
}

// SSHTransport returns the ssh command string for rsync's -e option.
func SSHTransport(ep *ResolvedEndpoint) string {
	transport := fmt.Sprintf("ssh -o StrictHostKeyChecking=no -p %d", ep.Port)
	if ep.Identity != "" {
		transport += " -i " + shellQuote(ep.Identity)
	}
	return transport
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
