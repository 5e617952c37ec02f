package validate

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/churn-run/churn/pkg/config"
	"github.com/churn-run/churn/pkg/sandbox"
)

type stubExec struct {
	results map[string]sandbox.CommandResult
	cmds    []string
}

func (f *stubExec) Run(ctx context.Context, cmd string, opts sandbox.RunOptions) sandbox.CommandResult {
	f.cmds = append(f.cmds, cmd)
	if res, ok := f.results[cmd]; ok {
		return res
	}
	return sandbox.CommandResult{}
}

func (f *stubExec) ReadFile(ctx context.Context, path string) (string, error) { return "", nil }
func (f *stubExec) WriteFile(ctx context.Context, path, content string) error { return nil }

func testConfig() config.ValidateConfig {
	return config.ValidateConfig{
		PruneDirs: []string{"content"},
		Lint:      "npm run lint",
		Format:    "npm run format:check",
		Test:      "npm test",
	}
}

func TestRunAllPassing(t *testing.T) {
	exec := &stubExec{results: map[string]sandbox.CommandResult{
		"npm run lint": {Stdout: "lint clean\n"},
	}}

	res := Run(context.Background(), exec, 7, testConfig())

	assert.True(t, res.Passed)
	assert.True(t, res.LintOK)
	assert.True(t, res.FormatOK)
	assert.True(t, res.TestsOK)
	assert.Equal(t, 7, res.PRNumber)
	assert.Contains(t, exec.cmds, `rm -rf "content"`)
}

func TestRunFailureIsConjunction(t *testing.T) {
	exec := &stubExec{results: map[string]sandbox.CommandResult{
		"npm test": {ExitCode: 1, Stderr: "2 tests failed\n"},
	}}

	res := Run(context.Background(), exec, 7, testConfig())

	assert.False(t, res.Passed)
	assert.True(t, res.LintOK)
	assert.True(t, res.FormatOK)
	assert.False(t, res.TestsOK)
}

func TestRunLogsKeepFailingOutput(t *testing.T) {
	exec := &stubExec{results: map[string]sandbox.CommandResult{
		"npm run lint": {ExitCode: 1, Stdout: "3 problems\n", Stderr: "eslint exited nonzero\n"},
		"npm test":     {Stdout: "12 passing\n"},
	}}

	res := Run(context.Background(), exec, 7, testConfig())

	assert.Contains(t, res.Logs, "=== lint (exit 1) ===")
	assert.Contains(t, res.Logs, "3 problems")
	assert.Contains(t, res.Logs, "eslint exited nonzero")
	assert.Contains(t, res.Logs, "=== tests (exit 0) ===")
	assert.Contains(t, res.Logs, "12 passing")
}

func TestRunContinuesPastFailingSteps(t *testing.T) {
	exec := &stubExec{results: map[string]sandbox.CommandResult{
		"npm run lint": {ExitCode: 1},
	}}

	Run(context.Background(), exec, 7, testConfig())

	joined := strings.Join(exec.cmds, "\n")
	assert.Contains(t, joined, "npm run format:check")
	assert.Contains(t, joined, "npm test")
}
