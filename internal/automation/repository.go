package automation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Execution listing limits.
const (
	defaultExecutionLimit = 20
	maxExecutionLimit     = 500
	recordTimeout         = 5 * time.Second
)

// timestampLayout keeps a fixed fractional width so stored timestamps sort
// lexically in time order.
const timestampLayout = "2006-01-02T15:04:05.000000Z07:00"

// Repository defines the interface for execution history persistence.
// Rule definitions themselves are never persisted; only what they did.
type Repository interface {
	CreateExecution(ctx context.Context, exec *RuleExecution) error
	GetExecution(ctx context.Context, id string) (*RuleExecution, error)

	// ListExecutions returns the newest executions first. An empty ruleUID
	// lists executions of every rule.
	ListExecutions(ctx context.Context, ruleUID string, limit int) ([]RuleExecution, error)

	// PruneExecutions deletes executions triggered before the cutoff.
	PruneExecutions(ctx context.Context, before time.Time) (int64, error)
}

// executionColumns is the SELECT column list for execution queries.
const executionColumns = `id, rule_uid, rule_name, trigger_id, status, error,
			conditions_evaluated, actions_invoked,
			triggered_at, started_at, completed_at, duration_ms`

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// CreateExecution inserts a new execution record.
func (r *SQLiteRepository) CreateExecution(ctx context.Context, exec *RuleExecution) error {
	if exec.ID == "" {
		exec.ID = GenerateID()
	}

	query := `
		INSERT INTO rule_executions (
			id, rule_uid, rule_name, trigger_id, status, error,
			conditions_evaluated, actions_invoked,
			triggered_at, started_at, completed_at, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		exec.ID,
		exec.RuleUID,
		nullableString(exec.RuleName),
		nullableString(exec.TriggerID),
		string(exec.Status),
		nullableString(exec.Error),
		exec.ConditionsEvaluated,
		exec.ActionsInvoked,
		formatTime(exec.TriggeredAt),
		formatTime(exec.StartedAt),
		formatTime(exec.CompletedAt),
		exec.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("inserting execution: %w", err)
	}
	return nil
}

// GetExecution retrieves an execution by ID.
func (r *SQLiteRepository) GetExecution(ctx context.Context, id string) (*RuleExecution, error) {
	query := `SELECT ` + executionColumns + ` FROM rule_executions WHERE id = ?`

	exec, err := scanExecution(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrExecutionNotFound
		}
		return nil, fmt.Errorf("querying execution: %w", err)
	}
	return exec, nil
}

// ListExecutions retrieves recent executions, newest first.
func (r *SQLiteRepository) ListExecutions(ctx context.Context, ruleUID string, limit int) ([]RuleExecution, error) {
	if limit <= 0 {
		limit = defaultExecutionLimit
	}
	if limit > maxExecutionLimit {
		limit = maxExecutionLimit
	}

	query := `SELECT ` + executionColumns + ` FROM rule_executions`
	args := []any{}
	if ruleUID != "" {
		query += ` WHERE rule_uid = ?`
		args = append(args, ruleUID)
	}
	query += ` ORDER BY triggered_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying executions: %w", err)
	}
	defer rows.Close()

	executions := []RuleExecution{}
	for rows.Next() {
		exec, scanErr := scanExecution(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scanning execution: %w", scanErr)
		}
		executions = append(executions, *exec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating executions: %w", err)
	}
	return executions, nil
}

// PruneExecutions deletes executions triggered before the cutoff and returns
// how many were removed.
func (r *SQLiteRepository) PruneExecutions(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM rule_executions WHERE triggered_at < ?`, formatTime(before))
	if err != nil {
		return 0, fmt.Errorf("pruning executions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

// RecordExecutions returns an observer that writes every execution to repo.
// Write failures are logged; they never affect rule processing.
func RecordExecutions(repo Repository, logger Logger) Observer {
	if logger == nil {
		logger = noopLogger{}
	}
	return ObserverFunc(func(ctx context.Context, exec *RuleExecution) {
		ctx, cancel := context.WithTimeout(ctx, recordTimeout)
		defer cancel()

		if err := repo.CreateExecution(ctx, exec); err != nil {
			logger.Error("failed to record rule execution",
				"rule_uid", exec.RuleUID,
				"execution_id", exec.ID,
				"error", err,
			)
		}
	})
}

// ─── Row Scanning Helpers ───────────────────────────────────────────────────

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanExecution(scanner rowScanner) (*RuleExecution, error) {
	var exec RuleExecution
	var ruleName, triggerID, errMsg sql.NullString
	var status, triggeredAt, startedAt, completedAt string

	err := scanner.Scan(
		&exec.ID,
		&exec.RuleUID,
		&ruleName,
		&triggerID,
		&status,
		&errMsg,
		&exec.ConditionsEvaluated,
		&exec.ActionsInvoked,
		&triggeredAt,
		&startedAt,
		&completedAt,
		&exec.DurationMS,
	)
	if err != nil {
		return nil, err
	}

	exec.RuleName = ruleName.String
	exec.TriggerID = triggerID.String
	exec.Error = errMsg.String
	exec.Status = ExecutionStatus(status)

	if exec.TriggeredAt, err = parseTime(triggeredAt); err != nil {
		return nil, fmt.Errorf("parsing triggered_at: %w", err)
	}
	if exec.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, fmt.Errorf("parsing started_at: %w", err)
	}
	if exec.CompletedAt, err = parseTime(completedAt); err != nil {
		return nil, fmt.Errorf("parsing completed_at: %w", err)
	}
	return &exec, nil
}

// nullableString converts an empty string to a SQL NULL.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
