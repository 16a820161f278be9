package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	// Retry backoff: base delay doubled per failed attempt, capped.
	retryBaseDelay = time.Second
	retryMaxDelay  = 30 * time.Second
)

// AddTask inserts a new task row and returns its id. Zero-value options
// fall back to the queue defaults.
func (d *Database) AddTask(ctx context.Context, payload TaskPayload, opts TaskOptions) (int64, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("add_task", start, err) }()

	if payload.Type == "" {
		err = errors.New("task payload missing type")
		return 0, err
	}

	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultTaskMaxAttempts
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("failed to encode task payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := d.db.ExecContext(ctx, `
		INSERT INTO pipeline_queue (payload, status, priority, attempts, max_attempts, created_at)
		VALUES (?, ?, ?, 0, ?, ?)
	`, string(raw), TaskStatusPending, opts.Priority, maxAttempts, time.Now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to insert task: %w", err)
	}

	return res.LastInsertId()
}

// GetTask returns a task by id, or nil if it does not exist.
func (d *Database) GetTask(ctx context.Context, id int64) (*Task, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_task", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	row := d.db.QueryRowContext(ctx, `
		SELECT id, payload, status, status_stage, priority, attempts, max_attempts, error_message, created_at, completed_at
		FROM pipeline_queue WHERE id = ?
	`, id)

	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		err = nil
		return nil, nil
	}
	return task, err
}

// ClaimNextTask atomically selects the highest-priority, oldest eligible
// pending task and marks it in-stages. The select-and-update runs as one
// statement so concurrent callers never claim the same row. Returns nil
// when no task is eligible.
func (d *Database) ClaimNextTask(ctx context.Context) (*Task, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("claim_next_task", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	row := d.db.QueryRowContext(ctx, `
		UPDATE pipeline_queue
		SET status = ?
		WHERE id = (
			SELECT id FROM pipeline_queue
			WHERE status = ? AND created_at <= ?
			ORDER BY priority DESC, created_at ASC
			LIMIT 1
		)
		RETURNING id, payload, status, status_stage, priority, attempts, max_attempts, error_message, created_at, completed_at
	`, TaskStatusInStages, TaskStatusPending, time.Now().UnixMilli())

	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		err = nil
		return nil, nil
	}
	return task, err
}

// SetTaskStage persists the name of the pipeline stage about to run.
// Informational only; failures here must not fail the task.
func (d *Database) SetTaskStage(ctx context.Context, id int64, stage string) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("set_task_stage", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(ctx, `
		UPDATE pipeline_queue SET status_stage = ? WHERE id = ?
	`, stage, id)
	return err
}

// MarkTaskCompleted transitions a task to its terminal success state.
func (d *Database) MarkTaskCompleted(ctx context.Context, id int64) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("mark_task_completed", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(ctx, `
		UPDATE pipeline_queue SET status = ?, completed_at = ? WHERE id = ?
	`, TaskStatusCompleted, time.Now().UnixMilli(), id)
	return err
}

// MarkTaskFailed records a failed attempt. Under the attempt budget the task
// returns to pending with created_at pushed forward by an exponential backoff
// delay; at the budget it becomes permanently failed. Returns true when the
// task will be retried.
func (d *Database) MarkTaskFailed(ctx context.Context, id int64, errorMessage string) (bool, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("mark_task_failed", start, err) }()

	if errorMessage == "" {
		errorMessage = "Unknown error"
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var attempts, maxAttempts int
	err = tx.QueryRowContext(ctx, `
		SELECT attempts, max_attempts FROM pipeline_queue WHERE id = ?
	`, id).Scan(&attempts, &maxAttempts)
	if err != nil {
		return false, fmt.Errorf("failed to load task %d: %w", id, err)
	}

	newAttempts := attempts + 1
	shouldRetry := newAttempts < maxAttempts

	if shouldRetry {
		delay := RetryDelay(newAttempts)
		_, err = tx.ExecContext(ctx, `
			UPDATE pipeline_queue
			SET status = ?, attempts = ?, error_message = ?, created_at = ?
			WHERE id = ?
		`, TaskStatusPending, newAttempts, errorMessage, time.Now().Add(delay).UnixMilli(), id)
	} else {
		_, err = tx.ExecContext(ctx, `
			UPDATE pipeline_queue
			SET status = ?, attempts = ?, error_message = ?
			WHERE id = ?
		`, TaskStatusFailed, newAttempts, errorMessage, id)
	}
	if err != nil {
		return false, fmt.Errorf("failed to update task %d: %w", id, err)
	}

	if err = tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit task failure: %w", err)
	}
	return shouldRetry, nil
}

// RetryDelay returns the backoff delay before the given (1-based) retry:
// base delay doubled per attempt, capped.
func RetryDelay(attempt int) time.Duration {
	delay := retryBaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= retryMaxDelay {
			return retryMaxDelay
		}
	}
	if delay > retryMaxDelay {
		return retryMaxDelay
	}
	return delay
}

// QueueStats returns the number of tasks per status.
func (d *Database) QueueStats(ctx context.Context) (map[string]int, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("queue_stats", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM pipeline_queue GROUP BY status
	`)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	stats := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err = rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	err = rows.Err()
	return stats, err
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (*Task, error) {
	var (
		task         Task
		payloadRaw   string
		statusStage  sql.NullString
		errorMessage sql.NullString
		createdAtMs  int64
		completedAt  sql.NullInt64
	)

	err := row.Scan(
		&task.ID, &payloadRaw, &task.Status, &statusStage, &task.Priority,
		&task.Attempts, &task.MaxAttempts, &errorMessage, &createdAtMs, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(payloadRaw), &task.Payload); err != nil {
		return nil, fmt.Errorf("failed to decode payload for task %d: %w", task.ID, err)
	}

	task.StatusStage = statusStage.String
	task.ErrorMessage = errorMessage.String
	task.CreatedAt = time.UnixMilli(createdAtMs)
	if completedAt.Valid {
		t := time.UnixMilli(completedAt.Int64)
		task.CompletedAt = &t
	}
	return &task, nil
}
