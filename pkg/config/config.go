// Package config assembles the churn runtime configuration from the
// environment (credentials) and an optional YAML run-configuration file
// (sandbox images, validation commands). The resulting struct is built once
// at startup and passed by reference into each component.
package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"
)

// Credentials holds the environment-sourced app identity and API keys.
// All GitHub fields are required; their absence is a fatal startup error.
type Credentials struct {
	AppID          int64  `env:"GITHUB_APP_ID, required"`
	InstallationID int64  `env:"GITHUB_APP_INSTALLATION_ID, required"`
	PrivateKey     string `env:"GITHUB_APP_PRIVATE_KEY"`
	PrivateKeyFile string `env:"GITHUB_APP_PRIVATE_KEY_FILE"`

	// Repo is the target repository in owner/name form.
	Repo string `env:"GITHUB_REPO, required"`

	// AnthropicAPIKey is required only when fix attempts are enabled.
	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`
}

// Owner returns the owner half of Repo.
func (c *Credentials) Owner() string {
	owner, _, _ := strings.Cut(c.Repo, "/")
	return owner
}

// Name returns the repository half of Repo.
func (c *Credentials) Name() string {
	_, name, _ := strings.Cut(c.Repo, "/")
	return name
}

// PrivateKeyPEM resolves the private key material, preferring the inline
// value over the file path.
func (c *Credentials) PrivateKeyPEM() ([]byte, error) {
	if c.PrivateKey != "" {
		return []byte(c.PrivateKey), nil
	}
	if c.PrivateKeyFile != "" {
		pem, err := os.ReadFile(c.PrivateKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read private key file: %w", err)
		}
		return pem, nil
	}
	return nil, fmt.Errorf("missing GitHub App private key: set GITHUB_APP_PRIVATE_KEY or GITHUB_APP_PRIVATE_KEY_FILE")
}

// LoadCredentials parses credentials from the process environment.
func LoadCredentials(ctx context.Context) (*Credentials, error) {
	var c Credentials
	if err := envconfig.Process(ctx, &c); err != nil {
		return nil, err
	}
	if !strings.Contains(c.Repo, "/") {
		return nil, fmt.Errorf("GITHUB_REPO must be in owner/name form, got %q", c.Repo)
	}
	return &c, nil
}

// LoadCredentialsFrom parses credentials from an explicit lookup map. Used
// by tests.
func LoadCredentialsFrom(ctx context.Context, env map[string]string) (*Credentials, error) {
	var c Credentials
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &c,
		Lookuper: envconfig.MapLookuper(env),
	}); err != nil {
		return nil, err
	}
	if !strings.Contains(c.Repo, "/") {
		return nil, fmt.Errorf("GITHUB_REPO must be in owner/name form, got %q", c.Repo)
	}
	return &c, nil
}

// RunConfig holds the per-run tunables read from .churn.yaml. Every field
// has a default so the file is optional.
type RunConfig struct {
	Sandbox  SandboxConfig  `yaml:"sandbox"`
	Commit   CommitIdentity `yaml:"commit"`
	Validate ValidateConfig `yaml:"validate"`
}

// SandboxConfig selects the sandbox container images.
type SandboxConfig struct {
	// Template is the primary image, expected to mirror the target stack.
	Template string `yaml:"template"`
	// BaseTemplate is the fallback image used when Template is not found.
	BaseTemplate string `yaml:"base_template"`
	// InstallCommand installs repo dependencies during provisioning.
	InstallCommand string `yaml:"install_command"`
}

// CommitIdentity configures the git author used for fix commits.
type CommitIdentity struct {
	Name  string `yaml:"name"`
	Email string `yaml:"email"`
}

// ValidateConfig configures the validation suite run inside the sandbox.
type ValidateConfig struct {
	// PruneDirs are large ancillary content directories removed before
	// validation to bound memory use.
	PruneDirs []string `yaml:"prune_dirs"`
	Lint      string   `yaml:"lint"`
	Format    string   `yaml:"format"`
	Test      string   `yaml:"test"`
}

// DefaultRunConfig returns the run configuration used when no .churn.yaml
// is present.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		Sandbox: SandboxConfig{
			Template:       "churn-stack:latest",
			BaseTemplate:   "node:20-bookworm",
			InstallCommand: "npm ci --no-audit --no-fund",
		},
		Commit: CommitIdentity{
			Name:  "churn-bot",
			Email: "churn-bot@users.noreply.github.com",
		},
		Validate: ValidateConfig{
			PruneDirs: []string{"content", "public/media"},
			Lint:      "npm run lint --silent",
			Format:    "npm run format:check --silent",
			Test:      "npm test --silent",
		},
	}
}

// LoadRunConfig reads the run configuration from path, layering it over
// defaults. A missing file is not an error; an unparsable one is.
func LoadRunConfig(path string) (RunConfig, error) {
	cfg := DefaultRunConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read run config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse run config %s: %w", path, err)
	}
	return cfg, nil
}
