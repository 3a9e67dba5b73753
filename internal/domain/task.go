package domain

import "time"

type RetryPolicy struct {
	MaxAttempts int           `json:"max_attempts"`
	MinBackoff  time.Duration `json:"min_backoff"`
	MaxBackoff  time.Duration `json:"max_backoff"`
}

// TaskPayload is the unit of work carried by one task delivery. The retry
// policy is snapshotted at enqueue time so redeliveries honor the policy the
// task was created with.
type TaskPayload struct {
	UploadID string      `json:"upload_id"`
	UserID   string      `json:"user_id"`
	Retry    RetryPolicy `json:"retry"`
}

// Task is the durable record of one upload's processing attempts. The task
// name doubles as the idempotency key; rows are never deleted.
type Task struct {
	Name           string      `db:"task_name"`
	Queue          string      `db:"queue"`
	Payload        TaskPayload `db:"payload"`
	Status         TaskStatus  `db:"status"`
	Attempts       int         `db:"attempts"`
	FirstAttemptAt *time.Time  `db:"first_attempt_at"`
	LastAttemptAt  *time.Time  `db:"last_attempt_at"`
	ErrorMessage   string      `db:"error_message"`
	CreatedAt      time.Time   `db:"created_at"`
}

// IngestionTaskName derives the idempotency key for an upload's ingestion
// task, so duplicate enqueues of the same upload collapse into one row.
func IngestionTaskName(uploadID string) string {
	return "panel-upload-" + uploadID
}
