// Package fixer drives the per-PR fix loop: it feeds unresolved review
// threads to an external fix-generation agent and applies accepted fixes
// back into the sandbox, bounded by the run's token budget.
package fixer

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// FixResult is what the external fix agent returns for one thread.
type FixResult struct {
	// NewContent is the full rewritten file; empty when no fix was produced.
	NewContent string
	// Fixed reports whether the agent produced a fix.
	Fixed bool
	// TokensUsed is recorded into the run budget regardless of Fixed.
	TokensUsed int64
}

// Agent generates a fix for a file given a reviewer's issue description.
type Agent interface {
	Fix(ctx context.Context, path, content, issue string) (FixResult, error)
}

const (
	defaultModel     = "claude-sonnet-4-5"
	defaultMaxTokens = 8192

	noChangeSentinel = "NO_CHANGES"

	systemPrompt = `You are an automated code-review remediation agent. You receive a file, its path, and one unresolved reviewer comment about it. Apply the smallest change that addresses the comment.

Respond with the complete updated file content and nothing else: no explanation, no markdown fences. If the comment does not warrant a change to this file, respond with exactly ` + noChangeSentinel + `.`
)

// AnthropicAgent implements Agent on the Anthropic Messages API.
type AnthropicAgent struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

// NewAnthropicAgent creates the production fix agent.
func NewAnthropicAgent(apiKey string) *AnthropicAgent {
	return &AnthropicAgent{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:     anthropic.Model(defaultModel),
		maxTokens: defaultMaxTokens,
	}
}

// Fix asks the model for a full-file rewrite addressing the issue.
func (a *AnthropicAgent) Fix(ctx context.Context, path, content, issue string) (FixResult, error) {
	prompt := fmt.Sprintf("File: %s\n\nReviewer comment:\n%s\n\n--- FILE CONTENT ---\n%s", path, issue, content)

	msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return FixResult{}, fmt.Errorf("fix agent request failed: %w", err)
	}

	usage := msg.Usage.InputTokens + msg.Usage.OutputTokens

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	out := stripFences(strings.TrimSpace(text.String()))
	if out == "" || out == noChangeSentinel {
		return FixResult{TokensUsed: usage}, nil
	}

	return FixResult{NewContent: out, Fixed: true, TokensUsed: usage}, nil
}

// stripFences unwraps a markdown code fence in case the model ignores the
// no-fences instruction.
func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	lines := strings.Split(s, "\n")
	if len(lines) < 2 {
		return s
	}
	lines = lines[1:]
	if strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}
