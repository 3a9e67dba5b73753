package domain

type SessionStatus string

const (
	SessionPending  SessionStatus = "pending"
	SessionExpired  SessionStatus = "expired"
	SessionConsumed SessionStatus = "consumed"
)

type UploadStatus string

const (
	UploadPending    UploadStatus = "pending"
	UploadNormalized UploadStatus = "normalized"
	UploadFailed     UploadStatus = "failed"
)

type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskSucceeded TaskStatus = "succeeded"
	TaskFailed    TaskStatus = "failed"
)

type PlanStatus string

const (
	PlanDraft     PlanStatus = "draft"
	PlanActive    PlanStatus = "active"
	PlanCompleted PlanStatus = "completed"
	PlanArchived  PlanStatus = "archived"
)
