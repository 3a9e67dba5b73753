package uploads

import (
	"context"
	"time"

	"github.com/avoronkov/lab_ingest/internal/domain"
	"github.com/avoronkov/lab_ingest/internal/objstore"
)

type SessionStore interface {
	CreateSession(ctx context.Context, session *domain.UploadSession) error
	ConsumeSession(ctx context.Context, id, userID string, now time.Time) (*domain.UploadSession, error)
	ExpireSessions(ctx context.Context, now time.Time) (int64, error)
}

type UploadStore interface {
	CreateUpload(ctx context.Context, upload *domain.PanelUpload) error
}

type WriteURLIssuer interface {
	IssueWriteURL(ctx context.Context, key, contentType, sha256Hex string, expiry time.Duration) (*objstore.WriteTarget, error)
}

type TaskEnqueuer interface {
	Enqueue(ctx context.Context, task *domain.Task) error
}
