// Package gitsync commits and pushes sandbox changes back to the PR head
// branch under conflict-safe semantics: one push, and on remote divergence
// exactly one rebase-retry cycle.
package gitsync

import (
	"context"
	"fmt"
	"strings"

	"github.com/churn-run/churn/pkg/log"
	"github.com/churn-run/churn/pkg/redact"
	"github.com/churn-run/churn/pkg/sandbox"
)

// Options configures a sync.
type Options struct {
	CommitName  string
	CommitEmail string
	// Redactor strips the tokened remote URL from surfaced git output.
	Redactor *redact.Redactor
}

// Sync stages, commits, and pushes the sandbox working tree. A clean tree is
// a no-op success. "Nothing to commit" is success, not failure. On a
// divergence-class push rejection it rebases onto the remote branch and
// retries the push exactly once; a failed rebase is aborted (tree left
// clean) and reported as failure with no further retry.
func Sync(ctx context.Context, exec sandbox.Executor, prNumber int, opts Options) error {
	status := exec.Run(ctx, "git status --porcelain", sandbox.RunOptions{
		Timeout: sandbox.MetadataTimeout,
		Cwd:     sandbox.WorkspaceRoot,
	})
	if !status.OK() {
		return opts.fail("status check", status)
	}
	if strings.TrimSpace(status.Stdout) == "" {
		log.Debugf("Working tree clean for PR #%d, nothing to push", prNumber)
		return nil
	}

	commit := fmt.Sprintf(
		"git config user.name %s && git config user.email %s && git add -A && git commit -m %s",
		shellQuote(opts.CommitName), shellQuote(opts.CommitEmail),
		shellQuote(fmt.Sprintf("Apply automated review fixes for PR #%d", prNumber)))
	res := exec.Run(ctx, commit, sandbox.RunOptions{Cwd: sandbox.WorkspaceRoot})
	if !res.OK() && !strings.Contains(res.Stdout+res.Stderr, "nothing to commit") {
		return opts.fail("commit", res)
	}

	push := exec.Run(ctx, "git push", sandbox.RunOptions{Cwd: sandbox.WorkspaceRoot})
	if push.OK() {
		return nil
	}

	if !isDivergence(push) {
		return opts.fail("push", push)
	}

	log.Infof("Push rejected for PR #%d, remote diverged; attempting rebase", prNumber)

	branchRes := exec.Run(ctx, "git rev-parse --abbrev-ref HEAD", sandbox.RunOptions{
		Timeout: sandbox.MetadataTimeout,
		Cwd:     sandbox.WorkspaceRoot,
	})
	if !branchRes.OK() {
		return opts.fail("branch lookup", branchRes)
	}
	branch := strings.TrimSpace(branchRes.Stdout)

	rebase := exec.Run(ctx, fmt.Sprintf("git fetch origin && git rebase origin/%s", branch),
		sandbox.RunOptions{Cwd: sandbox.WorkspaceRoot})
	if !rebase.OK() {
		// Leave the tree clean; no second rebase is ever attempted.
		exec.Run(ctx, "git rebase --abort", sandbox.RunOptions{
			Timeout: sandbox.MetadataTimeout,
			Cwd:     sandbox.WorkspaceRoot,
		})
		return opts.fail("rebase", rebase)
	}

	retry := exec.Run(ctx, "git push", sandbox.RunOptions{Cwd: sandbox.WorkspaceRoot})
	if retry.OK() {
		return nil
	}
	return opts.fail("push after rebase", retry)
}

// isDivergence recognizes push rejections caused by the remote branch having
// commits not present locally.
func isDivergence(res sandbox.CommandResult) bool {
	out := res.Stdout + res.Stderr
	return strings.Contains(out, "rejected") || strings.Contains(out, "fetch first")
}

// shellQuote single-quotes a value for use inside sh -c command lines, so
// configured identity strings are never shell-expanded.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func (o Options) fail(step string, res sandbox.CommandResult) error {
	detail := strings.TrimSpace(res.Stderr)
	if detail == "" {
		detail = strings.TrimSpace(res.Stdout)
	}
	if o.Redactor != nil {
		detail = o.Redactor.Redact(detail)
	}
	return fmt.Errorf("git %s failed (exit %d): %s", step, res.ExitCode, detail)
}
