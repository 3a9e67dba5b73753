package tasks

import (
	"context"
	"time"

	"github.com/avoronkov/lab_ingest/internal/domain"
	"github.com/avoronkov/lab_ingest/internal/extraction"
)

type TaskStore interface {
	CreateTask(ctx context.Context, task *domain.Task) (bool, error)
	RecordAttempt(ctx context.Context, name string, at time.Time) error
	MarkTaskStatus(ctx context.Context, name string, status domain.TaskStatus, errorMessage string) error
}

type UploadStore interface {
	UploadByIDForUser(ctx context.Context, id, userID string) (*domain.PanelUpload, error)
	FinalizeNormalized(ctx context.Context, id string, payload *domain.NormalizedPayload, processedAt time.Time) error
	FinalizeFailure(ctx context.Context, id string, code domain.ErrorCode, message string, payload *domain.NormalizedPayload, processedAt time.Time) error
}

type MeasurementSaver interface {
	SaveMeasurements(ctx context.Context, measurements ...*domain.Measurement) error
}

type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, body []byte, metadata map[string]string) error
}

type Supervisor interface {
	Supervise(ctx context.Context, text string, opts extraction.Options) (*extraction.Result, error)
}

type AutoLinker interface {
	AutoLink(ctx context.Context, uploadID, userID string, measurements []*domain.Measurement) (string, error)
}

type Transactor interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type Handler interface {
	Process(ctx context.Context, task *domain.Task) error
}
