// Package sandbox manages ephemeral, isolated Docker environments. Each
// sandbox session is exclusively owned by the processing of one PR: created
// at PR-processing start and destroyed unconditionally at PR-processing end.
package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/churn-run/churn/pkg/log"
)

// State is the lifecycle state of a session.
type State int

const (
	// StateCreated means the container exists but provisioning has not run.
	StateCreated State = iota
	// StateReady means the repo is provisioned and commands may run.
	StateReady
	// StateDestroyed means the container has been released.
	StateDestroyed
)

// WorkspaceRoot is the directory inside the sandbox where the PR's
// repository is cloned.
const WorkspaceRoot = "/workspace/repo"

// Executor is the command/file capability a provisioned session exposes.
// Consumers accept this interface; *Session implements it.
type Executor interface {
	Run(ctx context.Context, cmd string, opts RunOptions) CommandResult
	ReadFile(ctx context.Context, path string) (string, error)
	WriteFile(ctx context.Context, path, content string) error
}

// Manager creates and destroys sandbox sessions.
type Manager struct {
	cli          client.APIClient
	baseTemplate string
}

// NewManager connects to the Docker daemon. baseTemplate is the fallback
// image used when the primary template is not found.
func NewManager(baseTemplate string) (*Manager, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to sandbox platform: %w", err)
	}
	return &Manager{cli: cli, baseTemplate: baseTemplate}, nil
}

// NewManagerWithClient builds a Manager on an existing API client. Used by
// tests.
func NewManagerWithClient(cli client.APIClient, baseTemplate string) *Manager {
	return &Manager{cli: cli, baseTemplate: baseTemplate}
}

// Session is one ephemeral sandbox environment. It must never be shared or
// reused across PRs.
type Session struct {
	ID          string
	Template    string
	state       State
	containerID string
	cli         client.APIClient

	releaseOnce sync.Once
}

// State returns the session lifecycle state.
func (s *Session) State() State { return s.state }

// Acquire creates and starts a sandbox container from the template image.
// On a not-found-class failure it falls back to the base template exactly
// once; other failure classes propagate.
func (m *Manager) Acquire(ctx context.Context, template string) (*Session, error) {
	sess, err := m.create(ctx, template)
	if err == nil {
		return sess, nil
	}

	if cerrdefs.IsNotFound(err) && m.baseTemplate != "" && m.baseTemplate != template {
		log.Warnf("Sandbox template %s not found, falling back to %s", template, m.baseTemplate)
		return m.create(ctx, m.baseTemplate)
	}

	return nil, err
}

// create pulls the image (best-effort; locally present images still work)
// and starts a long-lived container to exec commands in.
func (m *Manager) create(ctx context.Context, template string) (*Session, error) {
	reader, err := m.cli.ImagePull(ctx, template, image.PullOptions{})
	if err != nil {
		log.Debugf("Image pull for %s failed, relying on local image: %v", template, err)
	} else {
		_, _ = io.Copy(io.Discard, reader)
		reader.Close()
	}

	resp, err := m.cli.ContainerCreate(ctx, &container.Config{
		Image:      template,
		Cmd:        []string{"sleep", "infinity"},
		WorkingDir: WorkspaceRoot,
		Tty:        false,
	}, &container.HostConfig{}, nil, nil, "")
	if err != nil {
		return nil, fmt.Errorf("failed to create sandbox from %s: %w", template, err)
	}

	if err := m.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		// Container exists but could not start; clean it up before failing.
		_ = m.cli.ContainerRemove(context.WithoutCancel(ctx), resp.ID, container.RemoveOptions{Force: true})
		return nil, fmt.Errorf("failed to start sandbox from %s: %w", template, err)
	}

	return &Session{
		ID:          shortID(resp.ID),
		Template:    template,
		state:       StateCreated,
		containerID: resp.ID,
		cli:         m.cli,
	}, nil
}

// Release kills and removes the session's container. Idempotent; invoked
// exactly once per acquired session regardless of how PR processing
// terminates.
func (s *Session) Release(ctx context.Context) {
	s.releaseOnce.Do(func() {
		if err := s.cli.ContainerRemove(ctx, s.containerID, container.RemoveOptions{Force: true}); err != nil {
			log.Warnf("Failed to remove sandbox %s: %v", s.ID, err)
		}
		s.state = StateDestroyed
		log.Debugf("Sandbox %s destroyed", s.ID)
	})
}

// markReady flips the session to Ready after provisioning succeeds.
func (s *Session) markReady() { s.state = StateReady }

// Run executes a shell command inside the session, bounded by the option
// timeout. It always returns the CommandResult shape: timeouts and transport
// errors become a synthetic non-zero exit with the error text in stderr.
func (s *Session) Run(ctx context.Context, cmd string, opts RunOptions) CommandResult {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if opts.Cwd != "" {
		if _, err := s.exec(ctx, []string{"mkdir", "-p", opts.Cwd}, ""); err != nil {
			return CommandResult{ExitCode: syntheticExitCode, Stderr: err.Error()}
		}
	}

	result, err := s.exec(ctx, []string{"sh", "-lc", cmd}, opts.Cwd)
	if err != nil {
		return CommandResult{ExitCode: syntheticExitCode, Stderr: err.Error()}
	}
	return result
}

// exec is the low-level container exec: create, attach, demux output, and
// inspect the exit code.
func (s *Session) exec(ctx context.Context, cmd []string, cwd string) (CommandResult, error) {
	execResp, err := s.cli.ContainerExecCreate(ctx, s.containerID, container.ExecOptions{
		Cmd:          cmd,
		WorkingDir:   cwd,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return CommandResult{}, fmt.Errorf("exec create failed: %w", err)
	}

	attach, err := s.cli.ContainerExecAttach(ctx, execResp.ID, container.ExecAttachOptions{})
	if err != nil {
		return CommandResult{}, fmt.Errorf("exec attach failed: %w", err)
	}
	defer attach.Close()

	var stdout, stderr bytes.Buffer
	done := make(chan error, 1)
	go func() {
		_, copyErr := stdcopy.StdCopy(&stdout, &stderr, attach.Reader)
		done <- copyErr
	}()

	select {
	case <-ctx.Done():
		return CommandResult{}, fmt.Errorf("command timed out: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return CommandResult{}, fmt.Errorf("exec output read failed: %w", err)
		}
	}

	inspect, err := s.cli.ContainerExecInspect(ctx, execResp.ID)
	if err != nil {
		return CommandResult{}, fmt.Errorf("exec inspect failed: %w", err)
	}

	return CommandResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: inspect.ExitCode,
	}, nil
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

// quotePath shell-quotes a path for use inside sh -c command lines.
func quotePath(path string) string {
	return "'" + strings.ReplaceAll(path, "'", `'\''`) + "'"
}
