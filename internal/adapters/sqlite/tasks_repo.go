package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/scriptducks/hashes-gui/internal/domain"
	"github.com/scriptducks/hashes-gui/internal/ports"
)

// timestamps sort lexically, so keep a fixed-width UTC layout
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const taskColumns = `id, type, state, progress, created_at, updated_at, params_json, result_json, error_code, error_message`

type TasksRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewTasksRepository(db *sql.DB) *TasksRepository {
	return &TasksRepository{db: db, now: time.Now}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (domain.Task, error) {
	var t domain.Task
	var state, createdAt, updatedAt string
	if err := row.Scan(&t.ID, &t.Type, &state, &t.Progress, &createdAt, &updatedAt, &t.ParamsJSON, &t.ResultJSON, &t.ErrorCode, &t.ErrorMessage); err != nil {
		return domain.Task{}, err
	}
	t.State = domain.TaskState(state)
	t.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	t.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)
	return t, nil
}

func (r *TasksRepository) Create(ctx context.Context, task domain.Task) (domain.Task, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tasks(`+taskColumns+`)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, task.ID, task.Type, string(task.State), task.Progress,
		formatTime(task.CreatedAt), formatTime(task.UpdatedAt), task.ParamsJSON, task.ResultJSON, task.ErrorCode, task.ErrorMessage)
	if err != nil {
		return domain.Task{}, err
	}
	return r.Get(ctx, task.ID)
}

func (r *TasksRepository) Get(ctx context.Context, id string) (domain.Task, error) {
	t, err := scanTask(r.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Task{}, ports.ErrNotFound
		}
		return domain.Task{}, err
	}
	return t, nil
}

// List returns the most recently updated tasks first.
func (r *TasksRepository) List(ctx context.Context, limit int) ([]domain.Task, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks ORDER BY updated_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *TasksRepository) ClaimNextQueued(ctx context.Context) (domain.Task, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var id string
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM tasks
		WHERE state = ?
		ORDER BY created_at ASC
		LIMIT 1
	`, string(domain.TaskQueued)).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Task{}, ports.ErrNotFound
		}
		return domain.Task{}, err
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE tasks SET state = ?, updated_at = ?
		WHERE id = ? AND state = ?
	`, string(domain.TaskRunning), formatTime(r.now()), id, string(domain.TaskQueued))
	if err != nil {
		return domain.Task{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.Task{}, ports.ErrNotFound
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return r.Get(ctx, id)
}

// exec runs an UPDATE on a single task and returns the updated row.
func (r *TasksRepository) exec(ctx context.Context, id string, query string, args ...any) (domain.Task, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return domain.Task{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.Task{}, ports.ErrNotFound
	}
	return r.Get(ctx, id)
}

func (r *TasksRepository) UpdateProgress(ctx context.Context, id string, progress float64) (domain.Task, error) {
	return r.exec(ctx, id, `UPDATE tasks SET progress = ?, updated_at = ? WHERE id = ?`,
		progress, formatTime(r.now()), id)
}

func (r *TasksRepository) UpdateResult(ctx context.Context, id string, resultJSON []byte) (domain.Task, error) {
	return r.exec(ctx, id, `UPDATE tasks SET result_json = ?, updated_at = ? WHERE id = ?`,
		resultJSON, formatTime(r.now()), id)
}

func (r *TasksRepository) UpdateError(ctx context.Context, id string, code string, message string) (domain.Task, error) {
	return r.exec(ctx, id, `UPDATE tasks SET error_code = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		code, message, formatTime(r.now()), id)
}

// UpdateState moves a task from expected to next. It returns ErrNotFound when
// the task is missing or no longer in expected.
func (r *TasksRepository) UpdateState(ctx context.Context, id string, expected domain.TaskState, next domain.TaskState) (domain.Task, error) {
	if !domain.CanTransition(expected, next) {
		return domain.Task{}, domain.ErrInvalidTransition
	}
	return r.exec(ctx, id, `UPDATE tasks SET state = ?, updated_at = ? WHERE id = ? AND state = ?`,
		string(next), formatTime(r.now()), id, string(expected))
}

// FailInterrupted marks tasks left running by a previous process as failed.
func (r *TasksRepository) FailInterrupted(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE tasks SET state = ?, error_code = ?, error_message = ?, updated_at = ?
		WHERE state = ?
	`, string(domain.TaskFailed), "interrupted", "the server stopped while the task was running",
		formatTime(r.now()), string(domain.TaskRunning))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// PruneFinished deletes terminal tasks last updated before cutoff.
func (r *TasksRepository) PruneFinished(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM tasks
		WHERE state IN (?, ?, ?) AND updated_at < ?
	`, string(domain.TaskCompleted), string(domain.TaskFailed), string(domain.TaskCanceled), formatTime(cutoff))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
