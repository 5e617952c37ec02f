// Package validate runs the lint/format/test suite inside a provisioned
// sandbox and aggregates the output into one diagnostic log blob.
package validate

import (
	"context"
	"fmt"
	"strings"

	"github.com/churn-run/churn/pkg/config"
	"github.com/churn-run/churn/pkg/log"
	"github.com/churn-run/churn/pkg/sandbox"
)

// Result is the validation outcome for one PR.
type Result struct {
	PRNumber int
	LintOK   bool
	FormatOK bool
	TestsOK  bool
	// Passed is the conjunction of the three step booleans.
	Passed bool
	// Logs is the concatenated, section-tagged stdout/stderr of every step,
	// kept regardless of pass/fail.
	Logs string
	// Err carries a processing error (provisioning, push) attached by the
	// runner; empty when validation itself ran.
	Err string
}

// Run executes, in order: content isolation (prune large ancillary
// directories to bound memory use), lint, format check, and the test suite.
func Run(ctx context.Context, exec sandbox.Executor, prNumber int, cfg config.ValidateConfig) Result {
	var logs strings.Builder

	// Content isolation: best-effort, does not gate the result.
	for _, dir := range cfg.PruneDirs {
		res := exec.Run(ctx, fmt.Sprintf("rm -rf %q", dir), sandbox.RunOptions{
			Timeout: sandbox.MetadataTimeout,
			Cwd:     sandbox.WorkspaceRoot,
		})
		appendSection(&logs, "prune "+dir, res)
	}

	lintOK := runStep(ctx, exec, &logs, "lint", cfg.Lint)
	formatOK := runStep(ctx, exec, &logs, "format", cfg.Format)
	testsOK := runStep(ctx, exec, &logs, "tests", cfg.Test)

	result := Result{
		PRNumber: prNumber,
		LintOK:   lintOK,
		FormatOK: formatOK,
		TestsOK:  testsOK,
		Passed:   lintOK && formatOK && testsOK,
		Logs:     logs.String(),
	}

	log.Infof("Validation for PR #%d: lint=%t format=%t tests=%t", prNumber, lintOK, formatOK, testsOK)
	return result
}

func runStep(ctx context.Context, exec sandbox.Executor, logs *strings.Builder, name, cmd string) bool {
	res := exec.Run(ctx, cmd, sandbox.RunOptions{Cwd: sandbox.WorkspaceRoot})
	appendSection(logs, name, res)
	return res.OK()
}

func appendSection(logs *strings.Builder, name string, res sandbox.CommandResult) {
	fmt.Fprintf(logs, "=== %s (exit %d) ===\n", name, res.ExitCode)
	if res.Stdout != "" {
		logs.WriteString(res.Stdout)
		if !strings.HasSuffix(res.Stdout, "\n") {
			logs.WriteString("\n")
		}
	}
	if res.Stderr != "" {
		logs.WriteString(res.Stderr)
		if !strings.HasSuffix(res.Stderr, "\n") {
			logs.WriteString("\n")
		}
	}
}
