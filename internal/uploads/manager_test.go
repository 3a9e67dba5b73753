package uploads

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avoronkov/lab_ingest/internal/domain"
	"github.com/avoronkov/lab_ingest/internal/objstore"
)

type fakeSessionStore struct {
	created *domain.UploadSession

	consumable *domain.UploadSession
	consumeErr error
}

func (s *fakeSessionStore) CreateSession(_ context.Context, session *domain.UploadSession) error {
	s.created = session
	return nil
}

func (s *fakeSessionStore) ConsumeSession(_ context.Context, id, userID string, _ time.Time) (*domain.UploadSession, error) {
	if s.consumeErr != nil {
		return nil, s.consumeErr
	}
	if s.consumable == nil || s.consumable.ID != id || s.consumable.UserID != userID {
		return nil, domain.NewError(domain.CodeNotFound, "session not found")
	}
	return s.consumable, nil
}

func (s *fakeSessionStore) ExpireSessions(context.Context, time.Time) (int64, error) {
	return 0, nil
}

type fakeUploadStore struct {
	created *domain.PanelUpload
}

func (s *fakeUploadStore) CreateUpload(_ context.Context, upload *domain.PanelUpload) error {
	s.created = upload
	return nil
}

type fakeIssuer struct {
	key         string
	contentType string
	sha256Hex   string
	err         error
}

func (i *fakeIssuer) IssueWriteURL(_ context.Context, key, contentType, sha256Hex string, expiry time.Duration) (*objstore.WriteTarget, error) {
	if i.err != nil {
		return nil, i.err
	}

	i.key = key
	i.contentType = contentType
	i.sha256Hex = sha256Hex

	return &objstore.WriteTarget{
		URL:       "https://storage.test/" + key,
		Headers:   map[string]string{"Content-Type": contentType},
		ExpiresAt: time.Now().Add(expiry),
	}, nil
}

type fakeEnqueuer struct {
	task *domain.Task
}

func (e *fakeEnqueuer) Enqueue(_ context.Context, task *domain.Task) error {
	e.task = task
	return nil
}

type managerFixture struct {
	manager  *Manager
	sessions *fakeSessionStore
	uploads  *fakeUploadStore
	issuer   *fakeIssuer
	queue    *fakeEnqueuer
}

func newManagerFixture() *managerFixture {
	f := &managerFixture{
		sessions: &fakeSessionStore{},
		uploads:  &fakeUploadStore{},
		issuer:   &fakeIssuer{},
		queue:    &fakeEnqueuer{},
	}

	f.manager = NewManager(
		slog.New(slog.DiscardHandler),
		10<<20,
		15*time.Minute,
		"panel-ingestion",
		domain.RetryPolicy{MaxAttempts: 5, MinBackoff: time.Second, MaxBackoff: time.Minute},
		f.sessions,
		f.uploads,
		f.issuer,
		f.queue,
	)

	return f
}

func validSessionRequest() CreateSessionRequest {
	digest := sha256.Sum256([]byte("report body"))

	return CreateSessionRequest{
		UserID:      "user-1",
		FileName:    "TrueAge Report 2026.pdf",
		ContentType: "application/pdf",
		ByteSize:    1024,
		SHA256:      hex.EncodeToString(digest[:]),
	}
}

func TestCreateSession(t *testing.T) {
	t.Parallel()

	f := newManagerFixture()

	resp, err := f.manager.CreateSession(context.Background(), validSessionRequest())
	require.NoError(t, err)

	require.NotNil(t, f.sessions.created)
	session := f.sessions.created

	assert.NotEmpty(t, resp.SessionID)
	assert.Equal(t, session.ID, resp.SessionID)
	assert.Equal(t, domain.SessionPending, session.Status)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), session.ExpiresAt, time.Minute)

	assert.True(t, strings.HasPrefix(session.StorageKey, "uploads/user-1/"), session.StorageKey)
	assert.True(t, strings.HasSuffix(session.StorageKey, "-trueage-report-2026.pdf"), session.StorageKey)

	assert.Equal(t, session.StorageKey, f.issuer.key)
	assert.Equal(t, "application/pdf", f.issuer.contentType)
	assert.Equal(t, session.SHA256, f.issuer.sha256Hex)

	assert.Equal(t, "https://storage.test/"+session.StorageKey, resp.WriteURL)
	assert.EqualValues(t, 10<<20, resp.MaxUploadBytes)
}

func TestCreateSession_StorageKeysAreUnique(t *testing.T) {
	t.Parallel()

	f := newManagerFixture()

	first, err := f.manager.CreateSession(context.Background(), validSessionRequest())
	require.NoError(t, err)

	second, err := f.manager.CreateSession(context.Background(), validSessionRequest())
	require.NoError(t, err)

	assert.NotEqual(t, first.StorageKey, second.StorageKey)
}

func TestCreateSession_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		mutate   func(req *CreateSessionRequest)
		wantCode domain.ErrorCode
	}{
		{
			name:     "empty file name",
			mutate:   func(req *CreateSessionRequest) { req.FileName = "   " },
			wantCode: domain.CodeInvalidFilename,
		},
		{
			name:     "unsupported content type",
			mutate:   func(req *CreateSessionRequest) { req.ContentType = "application/zip" },
			wantCode: domain.CodeInvalidContentType,
		},
		{
			name:     "zero byte size",
			mutate:   func(req *CreateSessionRequest) { req.ByteSize = 0 },
			wantCode: domain.CodeInvalidByteSize,
		},
		{
			name:     "oversized payload",
			mutate:   func(req *CreateSessionRequest) { req.ByteSize = 11 << 20 },
			wantCode: domain.CodeInvalidByteSize,
		},
		{
			name:     "short hash",
			mutate:   func(req *CreateSessionRequest) { req.SHA256 = "abc123" },
			wantCode: domain.CodeInvalidHash,
		},
		{
			name:     "non hex hash",
			mutate:   func(req *CreateSessionRequest) { req.SHA256 = strings.Repeat("z", 64) },
			wantCode: domain.CodeInvalidHash,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newManagerFixture()

			req := validSessionRequest()
			tt.mutate(&req)

			_, err := f.manager.CreateSession(context.Background(), req)
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, domain.CodeOf(err))
			assert.Nil(t, f.sessions.created, "invalid requests must not persist sessions")
		})
	}
}

func TestRegisterUpload(t *testing.T) {
	t.Parallel()

	f := newManagerFixture()
	f.sessions.consumable = &domain.UploadSession{
		ID:          "session-1",
		UserID:      "user-1",
		StorageKey:  "uploads/user-1/2026/08/29/abc-report.pdf",
		ContentType: "application/pdf",
		SHA256:      strings.Repeat("ab", 32),
		Status:      domain.SessionPending,
	}

	upload, err := f.manager.RegisterUpload(context.Background(), RegisterUploadRequest{
		SessionID:   "session-1",
		UserID:      "user-1",
		RawMetadata: map[string]string{domain.MetaOriginalFileName: "report.pdf"},
	})
	require.NoError(t, err)

	require.NotNil(t, f.uploads.created)
	assert.Equal(t, upload, f.uploads.created)

	assert.Equal(t, domain.UploadPending, upload.Status)
	assert.Equal(t, "uploads/user-1/2026/08/29/abc-report.pdf", upload.SourceKey)
	assert.True(t, strings.HasPrefix(upload.StorageKey, "sealed/user-1/"), upload.StorageKey)
	assert.NotEqual(t, upload.SourceKey, upload.StorageKey)
	assert.Equal(t, strings.Repeat("ab", 32), upload.SHA256)

	require.NotNil(t, f.queue.task)
	task := f.queue.task
	assert.Equal(t, domain.IngestionTaskName(upload.ID), task.Name)
	assert.Equal(t, "panel-ingestion", task.Queue)
	assert.Equal(t, upload.ID, task.Payload.UploadID)
	assert.Equal(t, "user-1", task.Payload.UserID)
	assert.Equal(t, 5, task.Payload.Retry.MaxAttempts)
}

func TestRegisterUpload_ConsumeFailurePropagates(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
	}{
		{name: "expired", err: domain.NewError(domain.CodeSessionExpired, "session expired")},
		{name: "consumed", err: domain.NewError(domain.CodeSessionConsumed, "session already consumed")},
		{name: "not found", err: domain.NewError(domain.CodeNotFound, "session not found")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newManagerFixture()
			f.sessions.consumeErr = tt.err

			_, err := f.manager.RegisterUpload(context.Background(), RegisterUploadRequest{
				SessionID: "session-1",
				UserID:    "user-1",
			})

			require.Error(t, err)
			assert.Equal(t, domain.CodeOf(tt.err), domain.CodeOf(err))
			assert.Nil(t, f.uploads.created)
			assert.Nil(t, f.queue.task)
		})
	}
}

func TestSlugFileName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"TrueAge Report 2026.pdf", "trueage-report-2026.pdf"},
		{"results (final).csv", "results-final-.csv"},
		{"///", "upload"},
		{"  plain.txt  ", "plain.txt"},
		{strings.Repeat("a", 100) + ".pdf", strings.Repeat("a", 64)},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, slugFileName(tt.in), tt.in)
	}
}
