package sandbox

import (
	"context"
	"fmt"

	"github.com/churn-run/churn/pkg/redact"
)

// SandboxError is a provisioning failure. It aborts processing of the
// current PR only, never the whole run, and its text is safe to surface:
// the access token is redacted at construction time.
type SandboxError struct {
	Step    string
	Message string
}

func (e *SandboxError) Error() string {
	return fmt.Sprintf("sandbox %s failed: %s", e.Step, e.Message)
}

// newSandboxError captures a failed command result with secrets stripped.
func newSandboxError(step string, res CommandResult, r *redact.Redactor) *SandboxError {
	msg := fmt.Sprintf("exit %d: %s", res.ExitCode, res.Stderr)
	if r != nil {
		msg = r.Redact(msg)
	}
	return &SandboxError{Step: step, Message: msg}
}

// SetupSpec describes how to provision a PR's repository inside a session.
type SetupSpec struct {
	// CloneURL is the token-authenticated remote URL. It must never appear
	// unredacted in logs or errors.
	CloneURL string
	// Branch is the PR head branch.
	Branch string
	// CommitName and CommitEmail configure the commit identity.
	CommitName  string
	CommitEmail string
	// InstallCommand installs the repository's dependencies.
	InstallCommand string
	// Redactor strips the access token from surfaced error text.
	Redactor *redact.Redactor
}

// Provision clones the PR head branch, configures commit identity, and
// installs dependencies. Any non-zero exit yields a *SandboxError.
// It is exported separately from Session.SetupRepo so it can run against a
// fake Executor.
func Provision(ctx context.Context, exec Executor, spec SetupSpec) error {
	clone := fmt.Sprintf("git clone --branch %s --single-branch %s %s",
		quotePath(spec.Branch), quotePath(spec.CloneURL), quotePath(WorkspaceRoot))
	if res := exec.Run(ctx, clone, RunOptions{Timeout: SetupTimeout}); !res.OK() {
		return newSandboxError("clone", res, spec.Redactor)
	}

	identity := fmt.Sprintf("git config user.name %s && git config user.email %s",
		quotePath(spec.CommitName), quotePath(spec.CommitEmail))
	if res := exec.Run(ctx, identity, RunOptions{Timeout: MetadataTimeout, Cwd: WorkspaceRoot}); !res.OK() {
		return newSandboxError("identity", res, spec.Redactor)
	}

	if spec.InstallCommand != "" {
		if res := exec.Run(ctx, spec.InstallCommand, RunOptions{Timeout: SetupTimeout, Cwd: WorkspaceRoot}); !res.OK() {
			return newSandboxError("install", res, spec.Redactor)
		}
	}

	return nil
}

// SetupRepo provisions the session and marks it ready.
func (s *Session) SetupRepo(ctx context.Context, spec SetupSpec) error {
	if err := Provision(ctx, s, spec); err != nil {
		return err
	}
	s.markReady()
	return nil
}
