// Package preflight verifies host prerequisites before a run starts. A failed
// error-level check is fatal: the process must exit 1 rather than discover the
// missing tool mid-run.
package preflight

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/churn-run/churn/pkg/log"
)

// CheckLevel is the severity of a preflight check result.
type CheckLevel int

const (
	// LevelError blocks execution.
	LevelError CheckLevel = iota
	// LevelWarn is surfaced but does not block.
	LevelWarn
	// LevelInfo is informational.
	LevelInfo
)

// CheckResult is the outcome of a single check.
type CheckResult struct {
	Name    string
	Level   CheckLevel
	Message string
	Error   error
}

// Check is a single preflight check.
type Check interface {
	Name() string
	Run(ctx context.Context) CheckResult
}

// Config selects which checks run.
type Config struct {
	// RequireDocker verifies the sandbox platform daemon is reachable.
	RequireDocker bool
	// RequireAnthropicKey verifies the fix agent is usable; set only when
	// auto-fix is enabled.
	RequireAnthropicKey bool
}

// Checker runs a set of preflight checks.
type Checker struct {
	checks []Check
}

// NewChecker builds a checker from the configuration.
func NewChecker(cfg Config) *Checker {
	c := &Checker{}
	if cfg.RequireDocker {
		c.checks = append(c.checks, &DockerCheck{})
	}
	if cfg.RequireAnthropicKey {
		c.checks = append(c.checks, &AnthropicKeyCheck{})
	}
	return c
}

// Run executes all checks and returns a combined error when any error-level
// check fails.
func (c *Checker) Run(ctx context.Context) error {
	var failures []string

	for _, check := range c.checks {
		result := check.Run(ctx)
		switch result.Level {
		case LevelError:
			log.Errorf("Preflight check %s failed: %s", result.Name, result.Message)
			failures = append(failures, fmt.Sprintf("%s: %s", result.Name, result.Message))
		case LevelWarn:
			log.Warnf("Preflight check %s: %s", result.Name, result.Message)
		case LevelInfo:
			log.Debugf("Preflight check %s: %s", result.Name, result.Message)
		}
	}

	if len(failures) > 0 {
		return fmt.Errorf("preflight checks failed:\n  - %s", strings.Join(failures, "\n  - "))
	}
	return nil
}

// DockerCheck verifies the docker CLI exists and the daemon answers.
type DockerCheck struct{}

func (c *DockerCheck) Name() string { return "docker" }

func (c *DockerCheck) Run(ctx context.Context) CheckResult {
	if _, err := exec.LookPath("docker"); err != nil {
		return CheckResult{
			Name:    c.Name(),
			Level:   LevelError,
			Message: "docker command not found; install Docker from https://docs.docker.com/get-docker/",
			Error:   err,
		}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cmd := exec.CommandContext(checkCtx, "docker", "info")
	if output, err := cmd.CombinedOutput(); err != nil {
		return CheckResult{
			Name:    c.Name(),
			Level:   LevelError,
			Message: "docker daemon is not running or not accessible",
			Error:   fmt.Errorf("docker info failed: %w: %s", err, string(output)),
		}
	}

	return CheckResult{Name: c.Name(), Level: LevelInfo, Message: "docker daemon is reachable"}
}

// AnthropicKeyCheck verifies the fix-agent API key is present in the
// environment. The key value itself is never logged.
type AnthropicKeyCheck struct{}

func (c *AnthropicKeyCheck) Name() string { return "anthropic-key" }

func (c *AnthropicKeyCheck) Run(ctx context.Context) CheckResult {
	if os.Getenv("ANTHROPIC_API_KEY") == "" {
		return CheckResult{
			Name:    c.Name(),
			Level:   LevelError,
			Message: "ANTHROPIC_API_KEY is not set; required when --fix is enabled",
			Error:   fmt.Errorf("no Anthropic API key found"),
		}
	}
	return CheckResult{Name: c.Name(), Level: LevelInfo, Message: "Anthropic API key available"}
}
