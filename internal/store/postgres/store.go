// Package postgres is the pgx-backed Repository used when DATABASE_URL is set.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go-autoagent/internal/store"
	"go-autoagent/pkg/models"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	tasksTable = "agent_tasks"
	stepsTable = "agent_steps"
)

type Store struct {
	pool *pgxpool.Pool
}

var _ store.Repository = (*Store)(nil)

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Connect opens a pool and waits for the database to answer, retrying with
// exponential backoff until maxWait elapses.
func Connect(ctx context.Context, url string, maxWait time.Duration) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxElapsedTime = maxWait
	if err := backoff.Retry(func() error { return pool.Ping(ctx) }, backoff.WithContext(b, ctx)); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// EnsureSchema creates the task and step tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS ` + tasksTable + ` (
    task_id    TEXT PRIMARY KEY,
    objective  TEXT NOT NULL,
    status     TEXT NOT NULL,
    workspace  TEXT NOT NULL DEFAULT '',
    conclusion TEXT NOT NULL DEFAULT '',
    plan       JSONB,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
		`CREATE TABLE IF NOT EXISTS ` + stepsTable + ` (
    task_id    TEXT NOT NULL REFERENCES ` + tasksTable + ` (task_id) ON DELETE CASCADE,
    step_index INTEGER NOT NULL,
    step_id    TEXT NOT NULL UNIQUE,
    pack       TEXT NOT NULL,
    args       JSONB,
    thoughts   TEXT NOT NULL DEFAULT '',
    status     TEXT NOT NULL,
    output     TEXT NOT NULL DEFAULT '',
    data       JSONB,
    handle     TEXT NOT NULL DEFAULT '',
    error      TEXT NOT NULL DEFAULT '',
    error_kind TEXT NOT NULL DEFAULT '',
    started_at TIMESTAMPTZ NOT NULL,
    ended_at   TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (task_id, step_index)
)`,
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (s *Store) CreateTask(ctx context.Context, task models.Task) error {
	plan, err := marshalNullable(task.Plan)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO `+tasksTable+` (task_id, objective, status, workspace, conclusion, plan, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (task_id) DO NOTHING`,
		task.ID, task.Objective, string(task.Status), task.Workspace, task.Conclusion, plan, task.CreatedAt, task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", store.ErrTaskExists, task.ID)
	}
	return nil
}

func (s *Store) LoadTask(ctx context.Context, taskID string) (models.Task, error) {
	var (
		task     models.Task
		status   string
		planJSON []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT task_id, objective, status, workspace, conclusion, plan, created_at, updated_at
		 FROM `+tasksTable+` WHERE task_id = $1`,
		taskID,
	).Scan(&task.ID, &task.Objective, &status, &task.Workspace, &task.Conclusion, &planJSON, &task.CreatedAt, &task.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Task{}, fmt.Errorf("%w: %s", store.ErrTaskNotFound, taskID)
	}
	if err != nil {
		return models.Task{}, fmt.Errorf("load task: %w", err)
	}
	task.Status = models.TaskStatus(status)
	if len(planJSON) > 0 && string(planJSON) != "null" {
		var plan models.Plan
		if err := json.Unmarshal(planJSON, &plan); err != nil {
			return models.Task{}, fmt.Errorf("decode plan: %w", err)
		}
		task.Plan = &plan
	}

	rows, err := s.pool.Query(ctx,
		`SELECT step_id, task_id, step_index, pack, args, thoughts, status, output, data, handle, error, error_kind, started_at, ended_at
		 FROM `+stepsTable+` WHERE task_id = $1 ORDER BY step_index ASC`,
		taskID,
	)
	if err != nil {
		return models.Task{}, fmt.Errorf("load steps: %w", err)
	}
	defer rows.Close()

	task.Steps, err = scanSteps(rows)
	if err != nil {
		return models.Task{}, err
	}
	return task, nil
}

func (s *Store) ListTasks(ctx context.Context) ([]models.TaskSummary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT t.task_id, t.objective, t.status, t.created_at,
		        (SELECT count(*) FROM `+stepsTable+` st WHERE st.task_id = t.task_id)
		 FROM `+tasksTable+` t
		 ORDER BY t.created_at ASC, t.task_id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	out := make([]models.TaskSummary, 0)
	for rows.Next() {
		var (
			summary models.TaskSummary
			status  string
		)
		if err := rows.Scan(&summary.ID, &summary.Objective, &status, &summary.CreatedAt, &summary.StepCount); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		summary.Status = models.TaskStatus(status)
		out = append(out, summary)
	}
	return out, rows.Err()
}

func (s *Store) AppendStep(ctx context.Context, taskID string, step models.Step) error {
	args, err := marshalNullable(step.Args)
	if err != nil {
		return err
	}
	data, err := marshalNullable(step.Data)
	if err != nil {
		return err
	}

	return s.inTx(ctx, taskID, func(tx pgx.Tx) error {
		var count int
		if err := tx.QueryRow(ctx, `SELECT count(*) FROM `+stepsTable+` WHERE task_id = $1`, taskID).Scan(&count); err != nil {
			return fmt.Errorf("count steps: %w", err)
		}
		if step.Index != count {
			return fmt.Errorf("%w: task %s has %d steps, got index %d", store.ErrIndexConflict, taskID, count, step.Index)
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO `+stepsTable+` (task_id, step_index, step_id, pack, args, thoughts, status, output, data, handle, error, error_kind, started_at, ended_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
			taskID, step.Index, step.ID, step.Pack, args, step.Thoughts, string(step.Status), step.Output, data,
			step.Handle, step.Error, string(step.ErrorKind), step.StartedAt, step.EndedAt,
		)
		if err != nil {
			return fmt.Errorf("insert step: %w", err)
		}
		_, err = tx.Exec(ctx,
			`UPDATE `+tasksTable+` SET status = CASE WHEN status = $2 THEN $3 ELSE status END, updated_at = now() WHERE task_id = $1`,
			taskID, string(models.TaskCreated), string(models.TaskInProgress),
		)
		if err != nil {
			return fmt.Errorf("start task: %w", err)
		}
		return nil
	})
}

func (s *Store) TruncateSteps(ctx context.Context, taskID string, keepThrough int, reopen models.TaskStatus) error {
	return s.inTx(ctx, taskID, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM `+stepsTable+` WHERE task_id = $1 AND step_index > $2`, taskID, keepThrough); err != nil {
			return fmt.Errorf("truncate steps: %w", err)
		}
		if _, err := tx.Exec(ctx, `UPDATE `+tasksTable+` SET plan = NULL, updated_at = now() WHERE task_id = $1`, taskID); err != nil {
			return fmt.Errorf("clear plan: %w", err)
		}
		if reopen == "" {
			return nil
		}
		if _, err := tx.Exec(ctx, `UPDATE `+tasksTable+` SET status = $2, conclusion = '' WHERE task_id = $1`, taskID, string(reopen)); err != nil {
			return fmt.Errorf("reopen task: %w", err)
		}
		return nil
	})
}

func (s *Store) UpdateTaskStatus(ctx context.Context, taskID string, status models.TaskStatus, conclusion string) error {
	return s.updateTask(ctx, taskID,
		`UPDATE `+tasksTable+` SET status = $2, conclusion = $3, updated_at = now() WHERE task_id = $1`,
		string(status), conclusion,
	)
}

func (s *Store) SavePlan(ctx context.Context, taskID string, plan *models.Plan) error {
	raw, err := marshalNullable(plan)
	if err != nil {
		return err
	}
	return s.updateTask(ctx, taskID,
		`UPDATE `+tasksTable+` SET plan = $2, updated_at = now() WHERE task_id = $1`,
		raw,
	)
}

func (s *Store) DeleteTask(ctx context.Context, taskID string) error {
	return s.updateTask(ctx, taskID, `DELETE FROM `+tasksTable+` WHERE task_id = $1`)
}

func (s *Store) updateTask(ctx context.Context, taskID, query string, args ...any) error {
	tag, err := s.pool.Exec(ctx, query, append([]any{taskID}, args...)...)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", store.ErrTaskNotFound, taskID)
	}
	return nil
}

// inTx runs fn in a transaction holding the task row lock.
func (s *Store) inTx(ctx context.Context, taskID string, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	var id string
	err = tx.QueryRow(ctx, `SELECT task_id FROM `+tasksTable+` WHERE task_id = $1 FOR UPDATE`, taskID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", store.ErrTaskNotFound, taskID)
	}
	if err != nil {
		return fmt.Errorf("lock task: %w", err)
	}

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanSteps(rows rowScanner) ([]models.Step, error) {
	steps := make([]models.Step, 0)
	for rows.Next() {
		var (
			step               models.Step
			argsJSON, dataJSON []byte
			status, kind       string
		)
		if err := rows.Scan(
			&step.ID, &step.TaskID, &step.Index, &step.Pack, &argsJSON, &step.Thoughts, &status,
			&step.Output, &dataJSON, &step.Handle, &step.Error, &kind, &step.StartedAt, &step.EndedAt,
		); err != nil {
			return steps, fmt.Errorf("scan step: %w", err)
		}
		step.Status = models.StepStatus(status)
		step.ErrorKind = models.ErrorKind(kind)
		if err := unmarshalNullable(argsJSON, &step.Args); err != nil {
			return steps, fmt.Errorf("decode args of step %d: %w", step.Index, err)
		}
		if err := unmarshalNullable(dataJSON, &step.Data); err != nil {
			return steps, fmt.Errorf("decode data of step %d: %w", step.Index, err)
		}
		steps = append(steps, step)
	}
	return steps, rows.Err()
}

func marshalNullable[T any](v T) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}
	if string(raw) == "null" {
		return nil, nil
	}
	return raw, nil
}

func unmarshalNullable(raw []byte, dst any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, dst)
}
