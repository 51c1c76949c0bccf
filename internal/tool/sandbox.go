package tool

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"

	"github.com/mscrnt/sentientos/internal/logging"
)

var sandboxLog = logging.For("tool.sandbox")

// sandbox isolates a rendered command's execution environment for the
// Sandboxed mode. When a Docker daemon is reachable it runs the command in
// a minimal, network-disabled, tmpfs-homed container; otherwise it falls
// back to overriding HOME/TMPDIR and the working directory to a private
// directory. Unreachability is logged once and is never a hard failure:
// sandboxing is defense-in-depth, not a correctness requirement.
type sandbox struct {
	docker    client.APIClient
	image     string
	hostDir   string
}

func newSandbox(hostDir string) *sandbox {
	s := &sandbox{image: "alpine:latest", hostDir: hostDir}

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		sandboxLog.Warn().Err(err).Msg("docker client unavailable, falling back to directory sandbox")
		return s
	}
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if _, err := cli.Ping(ctx); err != nil {
		sandboxLog.Warn().Err(err).Msg("docker daemon unreachable, falling back to directory sandbox")
		return s
	}
	s.docker = cli
	return s
}

// containerAvailable reports whether a Docker daemon was reachable when
// the sandbox was built. When it was not, the caller runs the command as a
// plain process with fallbackEnv's HOME, TMPDIR and working directory.
func (s *sandbox) containerAvailable() bool {
	return s.docker != nil
}

// runContainer executes command inside a minimal, network-disabled,
// tmpfs-homed container and returns its combined stdout+stderr and exit
// code.
func (s *sandbox) runContainer(ctx context.Context, command string) (stdout, stderr string, exitCode int, err error) {
	resp, err := s.docker.ContainerCreate(ctx, &container.Config{
		Image:      s.image,
		Cmd:        []string{"/bin/sh", "-c", command},
		Tty:        false,
		WorkingDir: "/home/sandbox",
		Env:        []string{"HOME=/home/sandbox"},
	}, &container.HostConfig{
		NetworkMode: "none",
		Tmpfs: map[string]string{
			"/home/sandbox": "rw,size=64m",
			"/tmp":           "rw,size=64m",
		},
		AutoRemove: true,
	}, nil, nil, "")
	if err != nil {
		return "", "", -1, fmt.Errorf("sandbox: create container: %w", err)
	}

	if err := s.docker.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return "", "", -1, fmt.Errorf("sandbox: start container: %w", err)
	}

	statusCh, errCh := s.docker.ContainerWait(ctx, resp.ID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		if err != nil {
			return "", "", -1, fmt.Errorf("sandbox: wait container: %w", err)
		}
	case status := <-statusCh:
		exitCode = int(status.StatusCode)
	}

	out, err := s.docker.ContainerLogs(ctx, resp.ID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return "", "", exitCode, fmt.Errorf("sandbox: fetch logs: %w", err)
	}
	defer out.Close()
	data, err := io.ReadAll(out)
	if err != nil {
		return "", "", exitCode, fmt.Errorf("sandbox: read logs: %w", err)
	}

	return string(data), "", exitCode, nil
}

// fallbackEnv returns the environment overrides and working directory for the
// bare-directory fallback sandbox.
func (s *sandbox) fallbackEnv() (env []string, dir string) {
	if err := os.MkdirAll(s.hostDir, 0o700); err != nil {
		sandboxLog.Warn().Err(err).Str("dir", s.hostDir).Msg("could not create sandbox directory, running unsandboxed")
		return nil, ""
	}
	return []string{
		"HOME=" + s.hostDir,
		"TMPDIR=" + s.hostDir,
	}, s.hostDir
}
