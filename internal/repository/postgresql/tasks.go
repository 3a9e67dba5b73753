package postgresql

import (
	"context"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/avoronkov/lab_ingest/internal/domain"
)

const TableTaskMetadata = "task_metadata"

var taskColumns = []string{
	"task_name",
	"queue",
	"payload",
	"status",
	"attempts",
	"first_attempt_at",
	"last_attempt_at",
	"error_message",
	"created_at",
}

type TasksRepository struct {
	pool *pgxpool.Pool
	qb   sq.StatementBuilderType
}

func NewTasksRepository(pool *pgxpool.Pool) *TasksRepository {
	return &TasksRepository{
		pool: pool,
		qb:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// CreateTask inserts the task row keyed by its idempotency name. Re-enqueue
// of an existing task is a no-op; the bool reports whether a row was created.
func (r *TasksRepository) CreateTask(ctx context.Context, task *domain.Task) (bool, error) {
	db := extractDB(ctx, r.pool)

	sql, args, err := r.qb.
		Insert(TableTaskMetadata).
		Columns(taskColumns...).
		Values(
			task.Name,
			task.Queue,
			task.Payload,
			task.Status,
			task.Attempts,
			task.FirstAttemptAt,
			task.LastAttemptAt,
			task.ErrorMessage,
			task.CreatedAt,
		).
		Suffix("ON CONFLICT (task_name) DO NOTHING").
		ToSql()
	if err != nil {
		return false, createQueryError(err)
	}

	tag, err := db.Exec(ctx, sql, args...)
	if err != nil {
		return false, executeQueryError(err)
	}

	return tag.RowsAffected() > 0, nil
}

func (r *TasksRepository) TaskByName(ctx context.Context, name string) (*domain.Task, error) {
	db := extractDB(ctx, r.pool)

	sql, args, err := r.qb.
		Select(taskColumns...).
		From(TableTaskMetadata).
		Where(sq.Eq{"task_name": name}).
		ToSql()
	if err != nil {
		return nil, createQueryError(err)
	}

	rows, err := db.Query(ctx, sql, args...)
	if err != nil {
		return nil, executeQueryError(err)
	}

	task, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByNameLax[domain.Task])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NewError(domain.CodeNotFound, "task %s not found", name)
	}
	if err != nil {
		return nil, collectRowsError(err)
	}

	return task, nil
}

// RecordAttempt bumps the attempt counter and timestamps before the attempt's
// outcome is known, so retries stay observable even when the attempt dies.
func (r *TasksRepository) RecordAttempt(ctx context.Context, name string, at time.Time) error {
	db := extractDB(ctx, r.pool)

	sql, args, err := r.qb.
		Update(TableTaskMetadata).
		Set("attempts", sq.Expr("attempts + 1")).
		Set("first_attempt_at", sq.Expr("COALESCE(first_attempt_at, ?)", at)).
		Set("last_attempt_at", at).
		Where(sq.Eq{"task_name": name}).
		ToSql()
	if err != nil {
		return createQueryError(err)
	}

	if _, err := db.Exec(ctx, sql, args...); err != nil {
		return executeQueryError(err)
	}

	return nil
}

func (r *TasksRepository) MarkTaskStatus(ctx context.Context, name string, status domain.TaskStatus, errorMessage string) error {
	db := extractDB(ctx, r.pool)

	sql, args, err := r.qb.
		Update(TableTaskMetadata).
		Set("status", status).
		Set("error_message", errorMessage).
		Where(sq.Eq{"task_name": name}).
		ToSql()
	if err != nil {
		return createQueryError(err)
	}

	if _, err := db.Exec(ctx, sql, args...); err != nil {
		return executeQueryError(err)
	}

	return nil
}

// PendingTasks lists tasks that never reached a terminal status, used to
// requeue interrupted work on boot.
func (r *TasksRepository) PendingTasks(ctx context.Context) ([]*domain.Task, error) {
	db := extractDB(ctx, r.pool)

	sql, args, err := r.qb.
		Select(taskColumns...).
		From(TableTaskMetadata).
		Where(sq.Eq{"status": domain.TaskPending}).
		OrderBy("created_at ASC").
		ToSql()
	if err != nil {
		return nil, createQueryError(err)
	}

	rows, err := db.Query(ctx, sql, args...)
	if err != nil {
		return nil, executeQueryError(err)
	}

	tasks, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByNameLax[domain.Task])
	if err != nil {
		return nil, collectRowsError(err)
	}

	return tasks, nil
}
