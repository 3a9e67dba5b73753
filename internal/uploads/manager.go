package uploads

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/avoronkov/lab_ingest/internal/domain"
)

var allowedContentTypes = map[string]struct{}{
	"application/pdf": {},
	"text/csv":        {},
	"text/plain":      {},
	"image/png":       {},
	"image/jpeg":      {},
}

var sha256Hex = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)

// Manager issues upload sessions and registers completed uploads for
// ingestion.
type Manager struct {
	log         *slog.Logger
	maxBytes    int64
	sessionTTL  time.Duration
	queueName   string
	retryPolicy domain.RetryPolicy
	sessions    SessionStore
	uploads     UploadStore
	storage     WriteURLIssuer
	queue       TaskEnqueuer
}

func NewManager(
	log *slog.Logger,
	maxBytes int64,
	sessionTTL time.Duration,
	queueName string,
	retryPolicy domain.RetryPolicy,
	sessions SessionStore,
	uploads UploadStore,
	storage WriteURLIssuer,
	queue TaskEnqueuer,
) *Manager {
	return &Manager{
		log:         log,
		maxBytes:    maxBytes,
		sessionTTL:  sessionTTL,
		queueName:   queueName,
		retryPolicy: retryPolicy,
		sessions:    sessions,
		uploads:     uploads,
		storage:     storage,
		queue:       queue,
	}
}

type CreateSessionRequest struct {
	UserID      string
	FileName    string
	ContentType string
	ByteSize    int64
	SHA256      string
}

type CreateSessionResponse struct {
	SessionID      string
	StorageKey     string
	WriteURL       string
	Headers        map[string]string
	ExpiresAt      time.Time
	MaxUploadBytes int64
}

// CreateSession validates the declared file attributes, derives a
// user-namespaced storage key and issues a time-limited write grant.
func (m *Manager) CreateSession(ctx context.Context, req CreateSessionRequest) (*CreateSessionResponse, error) {
	if err := m.validate(req); err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	session := &domain.UploadSession{
		ID:          uuid.NewString(),
		UserID:      req.UserID,
		StorageKey:  storageKey(req.UserID, req.FileName, now),
		ContentType: req.ContentType,
		ByteSize:    req.ByteSize,
		SHA256:      strings.ToLower(req.SHA256),
		ExpiresAt:   now.Add(m.sessionTTL),
		Status:      domain.SessionPending,
		CreatedAt:   now,
	}

	target, err := m.storage.IssueWriteURL(ctx, session.StorageKey, session.ContentType, session.SHA256, m.sessionTTL)
	if err != nil {
		return nil, domain.WrapError(domain.CodeStorageProvider, err, "failed to issue write url")
	}

	if err := m.sessions.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to persist session: %w", err)
	}

	m.log.InfoContext(ctx, "upload session created",
		slog.String("session_id", session.ID),
		slog.String("storage_key", session.StorageKey),
	)

	return &CreateSessionResponse{
		SessionID:      session.ID,
		StorageKey:     session.StorageKey,
		WriteURL:       target.URL,
		Headers:        target.Headers,
		ExpiresAt:      session.ExpiresAt,
		MaxUploadBytes: m.maxBytes,
	}, nil
}

func (m *Manager) validate(req CreateSessionRequest) error {
	if strings.TrimSpace(req.FileName) == "" {
		return domain.NewError(domain.CodeInvalidFilename, "file name is required")
	}

	if _, ok := allowedContentTypes[req.ContentType]; !ok {
		return domain.NewError(domain.CodeInvalidContentType, "unsupported content type %q", req.ContentType)
	}

	if req.ByteSize <= 0 || req.ByteSize > m.maxBytes {
		return domain.NewError(domain.CodeInvalidByteSize, "byte size must be in (0;%d], got %d", m.maxBytes, req.ByteSize)
	}

	if !sha256Hex.MatchString(req.SHA256) {
		return domain.NewError(domain.CodeInvalidHash, "sha256 must be a 64-character hex string")
	}

	return nil
}

type RegisterUploadRequest struct {
	SessionID   string
	UserID      string
	RawMetadata map[string]string
}

// RegisterUpload consumes the session, creates the processing record and
// enqueues the ingestion task.
func (m *Manager) RegisterUpload(ctx context.Context, req RegisterUploadRequest) (*domain.PanelUpload, error) {
	now := time.Now().UTC()

	session, err := m.sessions.ConsumeSession(ctx, req.SessionID, req.UserID, now)
	if err != nil {
		return nil, err
	}

	upload := &domain.PanelUpload{
		ID:          uuid.NewString(),
		UserID:      req.UserID,
		SourceKey:   session.StorageKey,
		StorageKey:  sealedKey(req.UserID),
		ContentType: session.ContentType,
		SHA256:      session.SHA256,
		RawMetadata: req.RawMetadata,
		Status:      domain.UploadPending,
		CreatedAt:   now,
	}

	if err := m.uploads.CreateUpload(ctx, upload); err != nil {
		return nil, fmt.Errorf("failed to create upload: %w", err)
	}

	task := &domain.Task{
		Name:  domain.IngestionTaskName(upload.ID),
		Queue: m.queueName,
		Payload: domain.TaskPayload{
			UploadID: upload.ID,
			UserID:   upload.UserID,
			Retry:    m.retryPolicy,
		},
		Status:    domain.TaskPending,
		CreatedAt: now,
	}

	if err := m.queue.Enqueue(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to enqueue ingestion task: %w", err)
	}

	m.log.InfoContext(ctx, "upload registered",
		slog.String("upload_id", upload.ID),
		slog.String("task_name", task.Name),
	)

	return upload, nil
}

// storageKey namespaces uploads by user and day and keeps a readable slug of
// the original file name. The uuid makes keys unique across identical names.
func storageKey(userID, fileName string, now time.Time) string {
	return fmt.Sprintf("uploads/%s/%s/%s-%s", userID, now.Format("2006/01/02"), uuid.NewString(), slugFileName(fileName))
}

// sealedKey is where the sealed ciphertext will live, always distinct from
// the client-written source key.
func sealedKey(userID string) string {
	return fmt.Sprintf("sealed/%s/%s", userID, uuid.NewString())
}

var slugDisallowed = regexp.MustCompile(`[^a-z0-9.\-]+`)

func slugFileName(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = slugDisallowed.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-.")

	if len(slug) > 64 {
		slug = slug[:64]
	}
	if slug == "" {
		slug = "upload"
	}

	return slug
}
