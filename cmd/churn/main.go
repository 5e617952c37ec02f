package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/churn-run/churn/pkg/churn"
	"github.com/churn-run/churn/pkg/config"
	"github.com/churn-run/churn/pkg/fixer"
	"github.com/churn-run/churn/pkg/github"
	"github.com/churn-run/churn/pkg/log"
	"github.com/churn-run/churn/pkg/preflight"
	"github.com/churn-run/churn/pkg/sandbox"
)

var (
	limit      int
	prNumber   int
	dryRun     bool
	fix        bool
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "churn",
	Short: "Churn works the open-PR backlog: fix review threads, push, validate, report.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return run(cmd.Context())
	},
}

func run(ctx context.Context) error {
	if err := log.Init(log.Config{Level: log.LogLevel(logLevel)}); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer log.Sync()

	creds, err := config.LoadCredentials(ctx)
	if err != nil {
		return fmt.Errorf("missing credentials: %w", err)
	}
	if fix && creds.AnthropicAPIKey == "" {
		return fmt.Errorf("missing credentials: ANTHROPIC_API_KEY is required with --fix")
	}

	checker := preflight.NewChecker(preflight.Config{
		RequireDocker:       true,
		RequireAnthropicKey: fix,
	})
	if err := checker.Run(ctx); err != nil {
		return err
	}

	runCfg, err := config.LoadRunConfig(configPath)
	if err != nil {
		return err
	}

	pem, err := creds.PrivateKeyPEM()
	if err != nil {
		return fmt.Errorf("missing credentials: %w", err)
	}
	auth, err := github.NewAppAuth(creds.AppID, creds.InstallationID, pem)
	if err != nil {
		return err
	}

	client, err := github.NewClient(auth.HTTPClient(), creds.Owner(), creds.Name())
	if err != nil {
		return err
	}

	manager, err := sandbox.NewManager(runCfg.Sandbox.BaseTemplate)
	if err != nil {
		return err
	}

	var agent fixer.Agent
	if fix {
		agent = fixer.NewAnthropicAgent(creds.AnthropicAPIKey)
	}

	runner := churn.New(client, churn.NewDockerProvider(manager), auth, agent,
		runCfg, creds.Owner(), creds.Name(), churn.Options{
			Limit:  limit,
			PR:     prNumber,
			DryRun: dryRun,
			Fix:    fix,
		})

	// Per-PR failures are reported inside the run and never fail the
	// process; only startup and credential errors reach here.
	_, err = runner.Run(ctx)
	return err
}

func init() {
	rootCmd.Flags().IntVar(&limit, "limit", 5, "Maximum number of PRs to process (hard cap 50)")
	rootCmd.Flags().IntVar(&prNumber, "pr", 0, "Process a single PR by number, bypassing selection")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Log mutating actions instead of performing them")
	rootCmd.Flags().BoolVar(&fix, "fix", false, "Enable automated fix attempts for unresolved review threads")
	rootCmd.Flags().StringVar(&configPath, "config", ".churn.yaml", "Path to the run configuration file")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
