package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/dialtest-cli/api/schemas"
	"github.com/xkilldash9x/dialtest-cli/internal/config"
	"github.com/xkilldash9x/dialtest-cli/internal/harness"
	"github.com/xkilldash9x/dialtest-cli/internal/llmclient"
	"github.com/xkilldash9x/dialtest-cli/internal/observability"
	"github.com/xkilldash9x/dialtest-cli/internal/reporting"
	"github.com/xkilldash9x/dialtest-cli/internal/store"
)

// newRunCmd creates and configures the `run` command.
func newRunCmd(v *viper.Viper) *cobra.Command {
	var (
		agentURL  string
		scenarios string
		count     int
		seed      int64
		output    string
		format    string
	)

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Runs goal-checked conversations against the agent under test",
		Long: `Drives one simulated caller per test case against the scheduling agent,
classifying every agent utterance, tracking conversation progress, and
evaluating goals and constraints into a final verdict per conversation.`,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Bind flags to their viper keys so command-line values override
			// the config file and environment with the right precedence.
			if err := v.BindPFlag("harness.max_turns", cmd.Flags().Lookup("max-turns")); err != nil {
				return err
			}
			return v.BindPFlag("harness.concurrency", cmd.Flags().Lookup("concurrency"))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			// Re-resolve the config now that flags are bound.
			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				return fmt.Errorf("failed to resolve config with flag overrides: %w", err)
			}

			if agentURL == "" {
				return fmt.Errorf("--agent-url is required")
			}

			cases, err := resolveCases(scenarios, seed, count, cfg.Harness.MaxTurns)
			if err != nil {
				return err
			}

			provider := buildProvider(ctx, cfg, logger)

			resultStore, cleanup, err := buildStore(cmd, cfg, logger)
			if err != nil {
				return err
			}
			if cleanup != nil {
				defer cleanup()
			}

			reporter, err := reporting.New(format, output)
			if err != nil {
				return err
			}

			runner := harness.NewRunner(cfg, provider, resultStore, logger)
			factory := func(tc harness.TestCase) (schemas.AgentUnderTest, error) {
				sessionID := fmt.Sprintf("%s-%s", tc.ID, uuid.NewString())
				return harness.NewHTTPAgent(agentURL, sessionID, cfg.Harness.TurnTimeout, logger)
			}

			logger.Info("Starting test run",
				zap.Int("cases", len(cases)),
				zap.String("agent_url", agentURL),
				zap.Int("max_turns", cfg.Harness.MaxTurns),
				zap.Int("concurrency", cfg.Harness.Concurrency))

			started := time.Now()
			results, runErr := runner.RunAll(ctx, cases, factory)

			failed := 0
			for _, result := range results {
				if result == nil {
					continue
				}
				if !result.Passed {
					failed++
				}
				if err := reporter.Write(result); err != nil {
					logger.Warn("Failed to write report entry", zap.Error(err))
				}
			}
			if err := reporter.Close(); err != nil {
				logger.Warn("Failed to finalize report", zap.Error(err))
			}

			if runErr != nil {
				return fmt.Errorf("test run aborted: %w", runErr)
			}

			logger.Info("Test run complete",
				zap.Int("cases", len(cases)),
				zap.Int("failed", failed),
				zap.Duration("elapsed", time.Since(started).Round(time.Second)))

			if failed > 0 {
				return fmt.Errorf("%d of %d conversations failed", failed, len(cases))
			}
			return nil
		},
	}

	runCmd.Flags().StringVar(&agentURL, "agent-url", "", "HTTP endpoint of the agent under test (required)")
	runCmd.Flags().StringVar(&scenarios, "scenarios", "", "YAML scenario suite (generated personas when omitted)")
	runCmd.Flags().IntVar(&count, "count", 1, "number of generated test cases when no scenario file is given")
	runCmd.Flags().Int64Var(&seed, "seed", 0, "seed for persona generation (0 derives one per case)")
	runCmd.Flags().StringVarP(&output, "output", "o", "", "report destination (default stdout)")
	runCmd.Flags().StringVarP(&format, "format", "f", "text", "report format: text or json")
	runCmd.Flags().Int("max-turns", 0, "override harness.max_turns")
	runCmd.Flags().Int("concurrency", 0, "override harness.concurrency")

	return runCmd
}

func resolveCases(scenarios string, seed int64, count, maxTurns int) ([]harness.TestCase, error) {
	if scenarios != "" {
		cases, err := harness.LoadScenarios(scenarios)
		if err != nil {
			return nil, err
		}
		return cases, nil
	}
	return harness.GenerateCases(seed, count, maxTurns), nil
}

// buildProvider wires the LLM router when an API key is available. Without
// one the classifier still works from its rule table alone.
func buildProvider(ctx context.Context, cfg *config.Config, logger *zap.Logger) schemas.LLMProvider {
	fast, ok := cfg.LLM.Models[cfg.LLM.FastModel]
	if !ok || fast.APIKey == "" {
		logger.Warn("No LLM API key configured; classification runs rules-only (set GEMINI_API_KEY to enable the fallback)")
		return nil
	}

	router, err := llmclient.NewRouter(ctx, cfg.LLM, logger)
	if err != nil {
		logger.Warn("Failed to build LLM router; classification runs rules-only", zap.Error(err))
		return nil
	}
	return router
}

// buildStore connects the optional Postgres result store.
func buildStore(cmd *cobra.Command, cfg *config.Config, logger *zap.Logger) (schemas.ResultStore, func(), error) {
	if !cfg.Store.Enabled {
		return nil, nil, nil
	}
	if cfg.Store.URL == "" {
		return nil, nil, fmt.Errorf("store is enabled but no database URL is configured (DIALTEST_DB_URL)")
	}

	ctx := cmd.Context()
	pool, err := pgxpool.New(ctx, cfg.Store.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	resultStore, err := store.New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to initialize result store: %w", err)
	}

	cleanup := func() {
		pool.Close()
		logger.Debug("Database connection pool closed.")
	}
	return resultStore, cleanup, nil
}
