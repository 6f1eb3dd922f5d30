package cmd

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/dialtest-cli/api/schemas"
	"github.com/xkilldash9x/dialtest-cli/internal/config"
	"github.com/xkilldash9x/dialtest-cli/internal/observability"
	"github.com/xkilldash9x/dialtest-cli/internal/reporting"
	"github.com/xkilldash9x/dialtest-cli/internal/store"
)

// resultReader is the slice of the store the report command needs.
type resultReader interface {
	ListResults(ctx context.Context, limit int) ([]*schemas.GoalTestResult, error)
	GetResult(ctx context.Context, sessionID string) (*schemas.GoalTestResult, error)
}

// storeProvider creates a result reader. The abstraction lets tests inject a
// fake instead of a live database connection.
type storeProvider interface {
	Create(ctx context.Context, cfg *config.Config) (resultReader, func(), error)
}

// defaultStoreProvider connects to the real PostgreSQL database.
type defaultStoreProvider struct{}

// NewStoreProvider returns the production store provider.
func NewStoreProvider() storeProvider {
	return &defaultStoreProvider{}
}

func (p *defaultStoreProvider) Create(ctx context.Context, cfg *config.Config) (resultReader, func(), error) {
	logger := observability.GetLogger()
	if cfg.Store.URL == "" {
		return nil, nil, fmt.Errorf("database URL is not configured (DIALTEST_DB_URL)")
	}

	pool, err := pgxpool.New(ctx, cfg.Store.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	storeService, err := store.New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to initialize result store: %w", err)
	}

	cleanup := func() {
		pool.Close()
		logger.Debug("Database connection pool closed (via report cleanup).")
	}
	return storeService, cleanup, nil
}

// newReportCmd creates and configures the `report` command.
func newReportCmd(provider storeProvider) *cobra.Command {
	var (
		sessionID string
		limit     int
		output    string
		format    string
	)

	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Renders persisted conversation verdicts",
		Long: `Reads conversation verdicts persisted by previous runs from the database
and renders them as a text or JSON report.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}

			reader, cleanup, err := provider.Create(ctx, cfg)
			if err != nil {
				return err
			}
			if cleanup != nil {
				defer cleanup()
			}

			var results []*schemas.GoalTestResult
			if sessionID != "" {
				result, err := reader.GetResult(ctx, sessionID)
				if err != nil {
					return fmt.Errorf("failed to load session %s: %w", sessionID, err)
				}
				results = []*schemas.GoalTestResult{result}
			} else {
				results, err = reader.ListResults(ctx, limit)
				if err != nil {
					return fmt.Errorf("failed to load results: %w", err)
				}
			}

			if len(results) == 0 {
				logger.Info("No persisted results found")
				return nil
			}

			reporter, err := reporting.New(format, output)
			if err != nil {
				return err
			}
			for _, result := range results {
				if err := reporter.Write(result); err != nil {
					logger.Warn("Failed to write report entry", zap.Error(err))
				}
			}
			return reporter.Close()
		},
	}

	reportCmd.Flags().StringVar(&sessionID, "session", "", "render a single session by id")
	reportCmd.Flags().IntVar(&limit, "limit", 20, "number of recent results to render")
	reportCmd.Flags().StringVarP(&output, "output", "o", "", "report destination (default stdout)")
	reportCmd.Flags().StringVarP(&format, "format", "f", "text", "report format: text or json")

	return reportCmd
}
