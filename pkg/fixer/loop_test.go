package fixer

import (
	"context"
	"fmt"
	"path"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/churn-run/churn/pkg/github"
	"github.com/churn-run/churn/pkg/sandbox"
)

type fakeExec struct {
	files  map[string]string
	writes map[string]string
}

func newFakeExec(files map[string]string) *fakeExec {
	return &fakeExec{files: files, writes: map[string]string{}}
}

func (f *fakeExec) Run(ctx context.Context, cmd string, opts sandbox.RunOptions) sandbox.CommandResult {
	return sandbox.CommandResult{}
}

func (f *fakeExec) ReadFile(ctx context.Context, p string) (string, error) {
	content, ok := f.files[p]
	if !ok {
		return "", fmt.Errorf("no such file: %s", p)
	}
	return content, nil
}

func (f *fakeExec) WriteFile(ctx context.Context, p, content string) error {
	f.writes[p] = content
	return nil
}

type fakeAgent struct {
	calls  int
	result FixResult
	err    error
}

func (a *fakeAgent) Fix(ctx context.Context, path, content, issue string) (FixResult, error) {
	a.calls++
	return a.result, a.err
}

type fakeReplier struct {
	replies []string
	err     error
}

func (r *fakeReplier) ReplyToThread(ctx context.Context, threadID, body string) error {
	r.replies = append(r.replies, threadID)
	return r.err
}

func workspacePath(p string) string {
	return path.Join(sandbox.WorkspaceRoot, p)
}

func TestProcessAppliesFix(t *testing.T) {
	exec := newFakeExec(map[string]string{workspacePath("a.js"): "old"})
	agent := &fakeAgent{result: FixResult{NewContent: "new", Fixed: true, TokensUsed: 42}}
	replier := &fakeReplier{}
	budget := NewBudget(1000)

	loop := NewLoop(agent, budget, replier, false)
	out := loop.Process(context.Background(), exec, 7, []github.ReviewThread{
		{ID: "T1", Path: "a.js", Body: "please fix", Author: "reviewer"},
	})

	require.Equal(t, []string{"T1"}, out.ResolvableThreadIDs)
	assert.Equal(t, int64(42), out.TokensUsed)
	assert.Equal(t, int64(42), budget.Used())
	assert.Equal(t, "new", exec.writes[workspacePath("a.js")])
	assert.Equal(t, []string{"T1"}, replier.replies)
}

func TestProcessSkipsPathlessThread(t *testing.T) {
	exec := newFakeExec(nil)
	agent := &fakeAgent{result: FixResult{Fixed: true, NewContent: "x"}}

	loop := NewLoop(agent, NewBudget(1000), &fakeReplier{}, false)
	out := loop.Process(context.Background(), exec, 7, []github.ReviewThread{
		{ID: "T1", Body: "general remark", Author: "reviewer"},
	})

	assert.Empty(t, out.ResolvableThreadIDs)
	assert.Zero(t, agent.calls)
}

func TestProcessSkipsUnreadableFile(t *testing.T) {
	exec := newFakeExec(nil)
	agent := &fakeAgent{result: FixResult{Fixed: true, NewContent: "x"}}

	loop := NewLoop(agent, NewBudget(1000), &fakeReplier{}, false)
	out := loop.Process(context.Background(), exec, 7, []github.ReviewThread{
		{ID: "T1", Path: "missing.js", Body: "fix", Author: "reviewer"},
	})

	assert.Empty(t, out.ResolvableThreadIDs)
	assert.Zero(t, agent.calls)
}

func TestProcessSkipsOversizedFile(t *testing.T) {
	big := strings.Repeat("x", MaxFileChars+1)
	exec := newFakeExec(map[string]string{workspacePath("big.js"): big})
	agent := &fakeAgent{result: FixResult{Fixed: true, NewContent: "x"}}

	loop := NewLoop(agent, NewBudget(1000), &fakeReplier{}, false)
	out := loop.Process(context.Background(), exec, 7, []github.ReviewThread{
		{ID: "T1", Path: "big.js", Body: "fix", Author: "reviewer"},
	})

	assert.Empty(t, out.ResolvableThreadIDs)
	assert.Zero(t, agent.calls)
}

func TestProcessStopsWhenBudgetExhausted(t *testing.T) {
	exec := newFakeExec(map[string]string{
		workspacePath("a.js"): "old a",
		workspacePath("b.js"): "old b",
	})
	// The first fix alone blows past the cap; the second thread must be
	// left untouched.
	agent := &fakeAgent{result: FixResult{NewContent: "new", Fixed: true, TokensUsed: 150}}
	budget := NewBudget(100)

	loop := NewLoop(agent, budget, &fakeReplier{}, false)
	out := loop.Process(context.Background(), exec, 7, []github.ReviewThread{
		{ID: "T1", Path: "a.js", Body: "fix", Author: "reviewer"},
		{ID: "T2", Path: "b.js", Body: "fix", Author: "reviewer"},
	})

	assert.Equal(t, 1, agent.calls)
	assert.Equal(t, []string{"T1"}, out.ResolvableThreadIDs)
	assert.True(t, budget.Exhausted())
}

func TestProcessRecordsUsageWithoutFix(t *testing.T) {
	exec := newFakeExec(map[string]string{workspacePath("a.js"): "old"})
	agent := &fakeAgent{result: FixResult{TokensUsed: 30}}
	budget := NewBudget(1000)
	replier := &fakeReplier{}

	loop := NewLoop(agent, budget, replier, false)
	out := loop.Process(context.Background(), exec, 7, []github.ReviewThread{
		{ID: "T1", Path: "a.js", Body: "fix", Author: "reviewer"},
	})

	assert.Empty(t, out.ResolvableThreadIDs)
	assert.Equal(t, int64(30), budget.Used(), "usage counts even when no fix is produced")
	assert.Empty(t, exec.writes)
	assert.Empty(t, replier.replies)
}

func TestProcessDryRunSkipsReply(t *testing.T) {
	exec := newFakeExec(map[string]string{workspacePath("a.js"): "old"})
	agent := &fakeAgent{result: FixResult{NewContent: "new", Fixed: true, TokensUsed: 10}}
	replier := &fakeReplier{}

	loop := NewLoop(agent, NewBudget(1000), replier, true)
	out := loop.Process(context.Background(), exec, 7, []github.ReviewThread{
		{ID: "T1", Path: "a.js", Body: "fix", Author: "reviewer"},
	})

	assert.Equal(t, []string{"T1"}, out.ResolvableThreadIDs)
	assert.Empty(t, replier.replies)
}

func TestProcessReplyFailureStillResolvable(t *testing.T) {
	exec := newFakeExec(map[string]string{workspacePath("a.js"): "old"})
	agent := &fakeAgent{result: FixResult{NewContent: "new", Fixed: true, TokensUsed: 10}}
	replier := &fakeReplier{err: fmt.Errorf("boom")}

	loop := NewLoop(agent, NewBudget(1000), replier, false)
	out := loop.Process(context.Background(), exec, 7, []github.ReviewThread{
		{ID: "T1", Path: "a.js", Body: "fix", Author: "reviewer"},
	})

	assert.Equal(t, []string{"T1"}, out.ResolvableThreadIDs)
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no fence", "plain content", "plain content"},
		{"fenced", "```js\nconst a = 1;\n```", "const a = 1;"},
		{"fence without language", "```\nbody\n```", "body"},
		{"unterminated fence", "```js\nbody", "body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stripFences(tt.in))
		})
	}
}
