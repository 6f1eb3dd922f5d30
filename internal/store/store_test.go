package store

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/dialtest-cli/api/schemas"
)

// flexibleSQLMatcher creates a regex that is insensitive to whitespace for more robust SQL mock testing.
func flexibleSQLMatcher(sql string) string {
	trimmed := strings.TrimSpace(sql)
	return regexp.MustCompile(`\s+`).ReplaceAllString(regexp.QuoteMeta(trimmed), `\s+`)
}

// ArgumentMatcherFunc is a helper to create inline mock matchers.
type ArgumentMatcherFunc func(interface{}) bool

func (f ArgumentMatcherFunc) Match(v interface{}) bool {
	return f(v)
}

// anyJSON accepts any serialized payload argument.
var anyJSON = ArgumentMatcherFunc(func(v interface{}) bool {
	return true
})

func sampleResult() *schemas.GoalTestResult {
	return &schemas.GoalTestResult{
		SessionID: uuid.NewString(),
		Passed:    true,
		Summary:   "PASSED: 2/2 goals passed; 8 turns; 4 fields collected",
		Goals: []schemas.GoalResult{
			{GoalID: "collect-contact-info", Passed: true},
			{GoalID: "complete-booking", Passed: true},
		},
		FinalState: schemas.ProgressSnapshot{
			Turn:             8,
			FlowState:        schemas.FlowConfirmation,
			BookingConfirmed: true,
		},
		Duration:    90 * time.Second,
		EvaluatedAt: time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC),
	}
}

func TestNewStore(t *testing.T) {
	t.Run("should return error if ping fails", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		pingErr := errors.New("database unavailable")
		mockPool.ExpectPing().WillReturnError(pingErr)

		_, err = New(context.Background(), mockPool, zap.NewNop())
		require.Error(t, err)
		assert.ErrorIs(t, err, pingErr, "Error from ping should be propagated")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestPersistResult(t *testing.T) {
	ctx := context.Background()

	t.Run("should persist a result successfully without rollback errors", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		observedZapCore, observedLogs := observer.New(zapcore.ErrorLevel)
		observedLogger := zap.New(observedZapCore)

		mockPool.ExpectPing().WillReturnError(nil)
		store, err := New(context.Background(), mockPool, observedLogger)
		require.NoError(t, err)

		result := sampleResult()

		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(insertResultSQL)).
			WithArgs(
				result.SessionID,
				true,
				result.Summary,
				int64(90000),
				result.EvaluatedAt,
				anyJSON, anyJSON, anyJSON, anyJSON,
			).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		// Expect Commit AND the subsequent Rollback (which returns ErrTxClosed)
		mockPool.ExpectCommit()
		mockPool.ExpectRollback().WillReturnError(pgx.ErrTxClosed)

		require.NoError(t, store.PersistResult(ctx, result))
		assert.NoError(t, mockPool.ExpectationsWereMet())
		assert.Empty(t, observedLogs.All(), "Expected no errors logged on successful commit")
	})

	t.Run("should convert timestamps to UTC before persisting", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		mockPool.ExpectPing().WillReturnError(nil)
		store, err := New(context.Background(), mockPool, zap.NewNop())
		require.NoError(t, err)

		loc, err := time.LoadLocation("America/New_York")
		require.NoError(t, err)

		result := sampleResult()
		result.EvaluatedAt = time.Date(2026, 8, 29, 10, 0, 0, 0, loc)

		utcMatcher := ArgumentMatcherFunc(func(v interface{}) bool {
			ts, ok := v.(time.Time)
			return ok && ts.Location() == time.UTC
		})

		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(insertResultSQL)).
			WithArgs(
				result.SessionID,
				true,
				result.Summary,
				int64(90000),
				utcMatcher,
				anyJSON, anyJSON, anyJSON, anyJSON,
			).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectCommit()
		mockPool.ExpectRollback().WillReturnError(pgx.ErrTxClosed)

		require.NoError(t, store.PersistResult(ctx, result))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should roll back when the insert fails", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		mockPool.ExpectPing().WillReturnError(nil)
		store, err := New(context.Background(), mockPool, zap.NewNop())
		require.NoError(t, err)

		result := sampleResult()
		insertErr := errors.New("constraint violation")

		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(insertResultSQL)).
			WithArgs(
				result.SessionID,
				true,
				result.Summary,
				int64(90000),
				result.EvaluatedAt,
				anyJSON, anyJSON, anyJSON, anyJSON,
			).
			WillReturnError(insertErr)
		mockPool.ExpectRollback()

		err = store.PersistResult(ctx, result)
		require.Error(t, err)
		assert.ErrorIs(t, err, insertErr)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should reject a nil result and an empty session id", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		mockPool.ExpectPing().WillReturnError(nil)
		store, err := New(context.Background(), mockPool, zap.NewNop())
		require.NoError(t, err)

		require.Error(t, store.PersistResult(ctx, nil))

		result := sampleResult()
		result.SessionID = ""
		require.Error(t, store.PersistResult(ctx, result))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestListResults(t *testing.T) {
	ctx := context.Background()

	t.Run("should round-trip a persisted result", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		mockPool.ExpectPing().WillReturnError(nil)
		store, err := New(context.Background(), mockPool, zap.NewNop())
		require.NoError(t, err)

		evaluatedAt := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
		rows := pgxmock.NewRows([]string{
			"session_id", "passed", "summary", "duration_ms", "evaluated_at",
			"goals", "violations", "final_state", "transcript",
		}).AddRow(
			"s-1", true, "PASSED: 2/2 goals passed", int64(90000), evaluatedAt,
			[]byte(`[{"goal_id":"complete-booking","passed":true}]`),
			[]byte(`[]`),
			[]byte(`{"turn":8,"booking_confirmed":true}`),
			[]byte(`[]`),
		)
		mockPool.ExpectQuery(flexibleSQLMatcher(selectResultsSQL)).
			WithArgs(50).
			WillReturnRows(rows)

		results, err := store.ListResults(ctx, 0)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "s-1", results[0].SessionID)
		assert.True(t, results[0].Passed)
		assert.Equal(t, 90*time.Second, results[0].Duration)
		assert.Equal(t, 8, results[0].FinalState.Turn)
		require.Len(t, results[0].Goals, 1)
		assert.Equal(t, "complete-booking", results[0].Goals[0].GoalID)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should propagate query errors", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		mockPool.ExpectPing().WillReturnError(nil)
		store, err := New(context.Background(), mockPool, zap.NewNop())
		require.NoError(t, err)

		queryErr := errors.New("connection reset")
		mockPool.ExpectQuery(flexibleSQLMatcher(selectResultsSQL)).
			WithArgs(10).
			WillReturnError(queryErr)

		_, err = store.ListResults(ctx, 10)
		require.Error(t, err)
		assert.ErrorIs(t, err, queryErr)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestGetResult(t *testing.T) {
	ctx := context.Background()

	t.Run("should return pgx.ErrNoRows when the session is unknown", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		mockPool.ExpectPing().WillReturnError(nil)
		store, err := New(context.Background(), mockPool, zap.NewNop())
		require.NoError(t, err)

		empty := pgxmock.NewRows([]string{
			"session_id", "passed", "summary", "duration_ms", "evaluated_at",
			"goals", "violations", "final_state", "transcript",
		})
		mockPool.ExpectQuery(flexibleSQLMatcher(selectResultBySessionSQL)).
			WithArgs("missing").
			WillReturnRows(empty)

		_, err = store.GetResult(ctx, "missing")
		require.Error(t, err)
		assert.ErrorIs(t, err, pgx.ErrNoRows)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestMarshalJSONB(t *testing.T) {
	t.Run("should convert nil slices to an empty JSON array", func(t *testing.T) {
		var violations []schemas.ConstraintViolation
		raw, err := marshalJSONB(violations)
		require.NoError(t, err)
		assert.Equal(t, "[]", string(raw))
	})

	t.Run("should pass through populated values", func(t *testing.T) {
		raw, err := marshalJSONB([]schemas.GoalResult{{GoalID: "g1", Passed: true}})
		require.NoError(t, err)
		assert.Contains(t, string(raw), `"g1"`)
	})
}
