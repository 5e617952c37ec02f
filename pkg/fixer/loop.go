package fixer

import (
	"context"
	"path"

	"github.com/churn-run/churn/pkg/github"
	"github.com/churn-run/churn/pkg/log"
	"github.com/churn-run/churn/pkg/sandbox"
)

// MaxFileChars is the large-file guard: files above this size are never sent
// to the fix agent.
const MaxFileChars = 100_000

// replyBody is the fix-confirmation message posted on a thread whose fix was
// applied.
const replyBody = "Applied an automated fix for this comment. It will be included in the next push."

// ThreadReplier posts a reply on a review thread. *github.Client satisfies
// it; tests use a fake.
type ThreadReplier interface {
	ReplyToThread(ctx context.Context, threadID, body string) error
}

// Outcome aggregates the fix loop's result for one PR.
type Outcome struct {
	// ResolvableThreadIDs are threads whose fixes were applied in the
	// sandbox. They may be resolved only after the PR's changes are durably
	// pushed.
	ResolvableThreadIDs []string
	// TokensUsed is this PR's share of the run budget.
	TokensUsed int64
}

// Loop consumes a PR's unresolved threads up to the run budget cap.
type Loop struct {
	agent   Agent
	budget  *Budget
	replier ThreadReplier
	dryRun  bool
}

// NewLoop builds a fix loop. In dry-run mode replies are logged, not posted.
func NewLoop(agent Agent, budget *Budget, replier ThreadReplier, dryRun bool) *Loop {
	return &Loop{agent: agent, budget: budget, replier: replier, dryRun: dryRun}
}

// Process walks the harvested threads in fetch order. Threads skipped for a
// missing path, unreadable file, or oversized file are not counted against
// the budget. Once the budget crosses its cap the remaining threads are left
// untouched: not resolved, not failed, simply deferred to a future run.
func (l *Loop) Process(ctx context.Context, exec sandbox.Executor, prNumber int, threads []github.ReviewThread) Outcome {
	var out Outcome

	for _, thread := range threads {
		// Budget check happens before each fix attempt, never after.
		if l.budget.Exhausted() {
			log.Infof("Token budget exhausted (%d/%d), deferring remaining threads of PR #%d",
				l.budget.Used(), l.budget.Cap(), prNumber)
			break
		}

		if thread.Path == "" {
			log.Debugf("Skipping thread %s: no file path", thread.ID)
			continue
		}

		// TODO: compare against the churner's own bot login instead of only
		// requiring a non-empty author; as written this never skips anything.
		if thread.Author == "" {
			log.Debugf("Skipping thread %s: no comment author", thread.ID)
			continue
		}

		filePath := path.Join(sandbox.WorkspaceRoot, thread.Path)
		content, err := exec.ReadFile(ctx, filePath)
		if err != nil {
			log.Warnf("Skipping thread %s: cannot read %s: %v", thread.ID, thread.Path, err)
			continue
		}

		if len(content) > MaxFileChars {
			log.Infof("Skipping thread %s: %s exceeds %d characters", thread.ID, thread.Path, MaxFileChars)
			continue
		}

		result, err := l.agent.Fix(ctx, thread.Path, content, thread.Body)
		if err != nil {
			log.Warnf("Fix agent failed for thread %s: %v", thread.ID, err)
			continue
		}

		// Usage counts against the budget whether or not a fix was produced.
		l.budget.Add(result.TokensUsed)
		out.TokensUsed += result.TokensUsed

		if !result.Fixed || result.NewContent == content {
			log.Debugf("No fix produced for thread %s", thread.ID)
			continue
		}

		if err := exec.WriteFile(ctx, filePath, result.NewContent); err != nil {
			log.Warnf("Failed to write fix for thread %s: %v", thread.ID, err)
			continue
		}

		if l.dryRun {
			log.Infof("[DRY-RUN] Would reply to thread %s", thread.ID)
		} else if err := l.replier.ReplyToThread(ctx, thread.ID, replyBody); err != nil {
			// Reply is best-effort; the fix still counts as resolvable.
			log.Warnf("Failed to reply to thread %s: %v", thread.ID, err)
		}

		out.ResolvableThreadIDs = append(out.ResolvableThreadIDs, thread.ID)
		log.Infof("Applied fix for %s (thread %s)", thread.Path, thread.ID)
	}

	return out
}
