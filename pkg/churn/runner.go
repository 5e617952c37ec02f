// Package churn orchestrates one remediation run: select PRs, and for each
// one acquire a sandbox, provision the repo, fix unresolved review threads,
// push, validate, and report. Per-PR failures are captured and the run moves
// on; the sandbox is released exactly once per PR on every exit path.
package churn

import (
	"context"
	"fmt"

	"github.com/churn-run/churn/pkg/config"
	"github.com/churn-run/churn/pkg/fixer"
	"github.com/churn-run/churn/pkg/github"
	"github.com/churn-run/churn/pkg/gitsync"
	"github.com/churn-run/churn/pkg/log"
	"github.com/churn-run/churn/pkg/redact"
	"github.com/churn-run/churn/pkg/report"
	"github.com/churn-run/churn/pkg/sandbox"
	"github.com/churn-run/churn/pkg/validate"
)

// Options are the CLI-level knobs for one run.
type Options struct {
	// Limit is the maximum number of PRs to process; capped at
	// github.HardCap regardless of the requested value.
	Limit int
	// PR, when positive, processes exactly that PR and bypasses selection.
	PR int
	// DryRun suppresses every mutating platform call: no push, no resolve,
	// no reply, no comment.
	DryRun bool
	// Fix enables automated fix attempts via the fix agent.
	Fix bool
}

// Platform is the source-control surface the runner needs. *github.Client
// satisfies it; tests use a fake.
type Platform interface {
	ListCandidates(ctx context.Context, limit int) ([]github.PullRequestInfo, error)
	SingleCandidate(ctx context.Context, number int) ([]github.PullRequestInfo, error)
	FetchUnresolved(ctx context.Context, prNumber int) []github.ReviewThread
	ResolveThread(ctx context.Context, threadID string) error
	ReplyToThread(ctx context.Context, threadID, body string) error
	PostComment(ctx context.Context, prNumber int, body string) error
}

// TokenSource yields a currently valid installation access token.
// *github.AppAuth satisfies it.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// SandboxSession is the per-PR sandbox surface. *sandbox.Session satisfies
// it.
type SandboxSession interface {
	sandbox.Executor
	SetupRepo(ctx context.Context, spec sandbox.SetupSpec) error
	Release(ctx context.Context)
}

// SandboxProvider acquires sandbox sessions.
type SandboxProvider interface {
	Acquire(ctx context.Context, template string) (SandboxSession, error)
}

// NewDockerProvider adapts a sandbox.Manager to the SandboxProvider
// interface.
func NewDockerProvider(m *sandbox.Manager) SandboxProvider {
	return dockerProvider{m: m}
}

type dockerProvider struct {
	m *sandbox.Manager
}

func (p dockerProvider) Acquire(ctx context.Context, template string) (SandboxSession, error) {
	sess, err := p.m.Acquire(ctx, template)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// PRResult records the outcome of processing one PR.
type PRResult struct {
	Number       int
	Passed       bool
	FixedThreads int
	TokensUsed   int64
	Err          string
}

// Runner drives one run end to end. PRs are processed strictly sequentially;
// the token budget is the only state shared across them.
type Runner struct {
	platform  Platform
	sandboxes SandboxProvider
	tokens    TokenSource
	agent     fixer.Agent
	budget    *fixer.Budget
	reporter  *report.Reporter
	redactor  *redact.Redactor

	cfg   config.RunConfig
	owner string
	repo  string
	opts  Options
}

// New assembles a Runner. agent may be nil when opts.Fix is false.
func New(platform Platform, sandboxes SandboxProvider, tokens TokenSource, agent fixer.Agent,
	cfg config.RunConfig, owner, repo string, opts Options) *Runner {
	return &Runner{
		platform:  platform,
		sandboxes: sandboxes,
		tokens:    tokens,
		agent:     agent,
		budget:    fixer.NewBudget(fixer.DefaultTokenCap),
		reporter:  report.New(platform, opts.DryRun),
		redactor:  redact.New(),
		cfg:       cfg,
		owner:     owner,
		repo:      repo,
		opts:      opts,
	}
}

// Run executes the whole pipeline. It returns an error only for fatal
// conditions (credential exchange, unlistable PRs); per-PR failures are
// captured in the results and logged.
func (r *Runner) Run(ctx context.Context) ([]PRResult, error) {
	// The initial token exchange is the credential check for the whole run.
	token, err := r.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("credential exchange failed: %w", err)
	}
	r.redactor.AddSecret(token)

	prs, err := r.selectPRs(ctx)
	if err != nil {
		return nil, err
	}
	if len(prs) == 0 {
		log.Infof("No open PRs to process")
		return nil, nil
	}

	log.Infof("Processing %d PR(s), dry-run=%t fix=%t", len(prs), r.opts.DryRun, r.opts.Fix)

	results := make([]PRResult, 0, len(prs))
	for _, pr := range prs {
		results = append(results, r.processPR(ctx, pr))
	}

	passed := 0
	for _, res := range results {
		if res.Passed {
			passed++
		}
	}
	log.Infof("Run complete: %d/%d PR(s) passed validation, %d tokens used",
		passed, len(results), r.budget.Used())

	return results, nil
}

func (r *Runner) selectPRs(ctx context.Context) ([]github.PullRequestInfo, error) {
	if r.opts.PR > 0 {
		return r.platform.SingleCandidate(ctx, r.opts.PR)
	}
	return r.platform.ListCandidates(ctx, r.opts.Limit)
}

// processPR runs the full per-PR pipeline. The sandbox is released on every
// exit path, including provisioning failure.
func (r *Runner) processPR(ctx context.Context, pr github.PullRequestInfo) PRResult {
	log.Infof("Processing PR #%d: %s (by %s)", pr.Number, pr.Title, pr.Author)

	result := PRResult{Number: pr.Number}

	sess, err := r.sandboxes.Acquire(ctx, r.cfg.Sandbox.Template)
	if err != nil {
		result.Err = r.redactor.Redact(fmt.Sprintf("sandbox acquisition failed: %v", err))
		log.Errorf("PR #%d: %s", pr.Number, result.Err)
		r.report(ctx, result, validate.Result{PRNumber: pr.Number, Err: result.Err})
		return result
	}
	defer sess.Release(ctx)

	token, err := r.tokens.Token(ctx)
	if err != nil {
		result.Err = "credential refresh failed"
		log.Errorf("PR #%d: %s: %v", pr.Number, result.Err, err)
		r.report(ctx, result, validate.Result{PRNumber: pr.Number, Err: result.Err})
		return result
	}
	r.redactor.AddSecret(token)

	cloneURL := fmt.Sprintf("https://x-access-token:%s@github.com/%s/%s.git", token, r.owner, r.repo)
	setupErr := sess.SetupRepo(ctx, sandbox.SetupSpec{
		CloneURL:       cloneURL,
		Branch:         pr.HeadRef,
		CommitName:     r.cfg.Commit.Name,
		CommitEmail:    r.cfg.Commit.Email,
		InstallCommand: r.cfg.Sandbox.InstallCommand,
		Redactor:       r.redactor,
	})
	if setupErr != nil {
		result.Err = setupErr.Error()
		log.Errorf("PR #%d: %s", pr.Number, result.Err)
		r.report(ctx, result, validate.Result{PRNumber: pr.Number, Err: result.Err})
		return result
	}

	threads := r.platform.FetchUnresolved(ctx, pr.Number)
	log.Infof("PR #%d has %d unresolved review thread(s)", pr.Number, len(threads))

	var outcome fixer.Outcome
	if r.opts.Fix && r.agent != nil && len(threads) > 0 {
		loop := fixer.NewLoop(r.agent, r.budget, r.platform, r.opts.DryRun)
		outcome = loop.Process(ctx, sess, pr.Number, threads)
	}
	result.FixedThreads = len(outcome.ResolvableThreadIDs)
	result.TokensUsed = outcome.TokensUsed

	if r.opts.DryRun {
		log.Infof("[DRY-RUN] Would push changes and resolve %d threads.", result.FixedThreads)
	} else {
		syncErr := gitsync.Sync(ctx, sess, pr.Number, gitsync.Options{
			CommitName:  r.cfg.Commit.Name,
			CommitEmail: r.cfg.Commit.Email,
			Redactor:    r.redactor,
		})
		if syncErr != nil {
			// Threads stay unresolved: the fixes were never durably pushed.
			result.Err = syncErr.Error()
			log.Errorf("PR #%d: push failed: %s", pr.Number, result.Err)
		} else {
			r.resolveThreads(ctx, pr.Number, outcome.ResolvableThreadIDs)
		}
	}

	vres := validate.Run(ctx, sess, pr.Number, r.cfg.Validate)
	vres.Err = result.Err
	result.Passed = vres.Passed

	r.report(ctx, result, vres)
	return result
}

// resolveThreads marks each fixed thread resolved. Best-effort per thread: a
// failed mutation is logged and the rest proceed.
func (r *Runner) resolveThreads(ctx context.Context, prNumber int, threadIDs []string) {
	for _, id := range threadIDs {
		if err := r.platform.ResolveThread(ctx, id); err != nil {
			log.Warnf("PR #%d: failed to resolve thread %s: %v", prNumber, id, err)
			continue
		}
		log.Debugf("PR #%d: resolved thread %s", prNumber, id)
	}
}

func (r *Runner) report(ctx context.Context, res PRResult, vres validate.Result) {
	r.reporter.Post(ctx, vres, res.FixedThreads, res.TokensUsed)
}
