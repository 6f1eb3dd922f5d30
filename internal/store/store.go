package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/dialtest-cli/api/schemas"
)

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

// Store provides a PostgreSQL implementation of the ResultStore interface.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

const insertResultSQL = `
    INSERT INTO test_results
        (session_id, passed, summary, duration_ms, evaluated_at, goals, violations, final_state, transcript)
    VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
    ON CONFLICT (session_id) DO UPDATE SET
        passed = EXCLUDED.passed,
        summary = EXCLUDED.summary,
        duration_ms = EXCLUDED.duration_ms,
        evaluated_at = EXCLUDED.evaluated_at,
        goals = EXCLUDED.goals,
        violations = EXCLUDED.violations,
        final_state = EXCLUDED.final_state,
        transcript = EXCLUDED.transcript;
`

// PersistResult handles the database transaction for inserting one conversation verdict.
func (s *Store) PersistResult(ctx context.Context, result *schemas.GoalTestResult) error {
	if result == nil {
		return errors.New("cannot persist a nil result")
	}
	if result.SessionID == "" {
		return errors.New("cannot persist a result without a session id")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		// Use errors.Is to correctly check for pgx.ErrTxClosed, even if wrapped.
		// This prevents spurious error logs when Rollback is called on an already committed (closed) transaction.
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	goals, err := marshalJSONB(result.Goals)
	if err != nil {
		return fmt.Errorf("failed to marshal goal results: %w", err)
	}
	violations, err := marshalJSONB(result.Violations)
	if err != nil {
		return fmt.Errorf("failed to marshal constraint violations: %w", err)
	}
	finalState, err := marshalJSONB(result.FinalState)
	if err != nil {
		return fmt.Errorf("failed to marshal final state: %w", err)
	}
	transcript, err := marshalJSONB(result.Transcript)
	if err != nil {
		return fmt.Errorf("failed to marshal transcript: %w", err)
	}

	// Store the timestamp in UTC to prevent ambiguity across hosts.
	evaluatedAt := result.EvaluatedAt.UTC()

	if _, err := tx.Exec(ctx, insertResultSQL,
		result.SessionID, result.Passed, result.Summary,
		result.Duration.Milliseconds(), evaluatedAt,
		goals, violations, finalState, transcript,
	); err != nil {
		return fmt.Errorf("failed to insert test result: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.log.Debug("Persisted test result",
		zap.String("session_id", result.SessionID),
		zap.Bool("passed", result.Passed))
	return nil
}

const selectResultsSQL = `
    SELECT session_id, passed, summary, duration_ms, evaluated_at, goals, violations, final_state, transcript
    FROM test_results
    ORDER BY evaluated_at DESC
    LIMIT $1;
`

const selectResultBySessionSQL = `
    SELECT session_id, passed, summary, duration_ms, evaluated_at, goals, violations, final_state, transcript
    FROM test_results
    WHERE session_id = $1;
`

// ListResults returns the most recent conversation verdicts, newest first.
func (s *Store) ListResults(ctx context.Context, limit int) ([]*schemas.GoalTestResult, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx, selectResultsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query test results: %w", err)
	}
	defer rows.Close()

	var results []*schemas.GoalTestResult
	for rows.Next() {
		result, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate test results: %w", err)
	}
	return results, nil
}

// GetResult returns the verdict for one session, or pgx.ErrNoRows if absent.
func (s *Store) GetResult(ctx context.Context, sessionID string) (*schemas.GoalTestResult, error) {
	rows, err := s.pool.Query(ctx, selectResultBySessionSQL, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query test result: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to read test result: %w", err)
		}
		return nil, pgx.ErrNoRows
	}
	return scanResult(rows)
}

func scanResult(rows pgx.Rows) (*schemas.GoalTestResult, error) {
	var (
		result     schemas.GoalTestResult
		durationMS int64
		goals      []byte
		violations []byte
		finalState []byte
		transcript []byte
	)
	if err := rows.Scan(&result.SessionID, &result.Passed, &result.Summary,
		&durationMS, &result.EvaluatedAt,
		&goals, &violations, &finalState, &transcript); err != nil {
		return nil, fmt.Errorf("failed to scan test result row: %w", err)
	}

	result.Duration = time.Duration(durationMS) * time.Millisecond
	if err := json.Unmarshal(goals, &result.Goals); err != nil {
		return nil, fmt.Errorf("failed to unmarshal goal results: %w", err)
	}
	if len(violations) > 0 {
		if err := json.Unmarshal(violations, &result.Violations); err != nil {
			return nil, fmt.Errorf("failed to unmarshal constraint violations: %w", err)
		}
	}
	if err := json.Unmarshal(finalState, &result.FinalState); err != nil {
		return nil, fmt.Errorf("failed to unmarshal final state: %w", err)
	}
	if len(transcript) > 0 {
		if err := json.Unmarshal(transcript, &result.Transcript); err != nil {
			return nil, fmt.Errorf("failed to unmarshal transcript: %w", err)
		}
	}
	return &result, nil
}

// marshalJSONB serializes v for a jsonb column. A nil slice or zero value still
// yields a valid JSON document rather than the string "null".
func marshalJSONB(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return []byte("[]"), nil
	}
	return raw, nil
}
