package tasks

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avoronkov/lab_ingest/internal/domain"
)

type fakeTaskStore struct {
	created  atomic.Int32
	existing map[string]bool
}

func (s *fakeTaskStore) CreateTask(_ context.Context, task *domain.Task) (bool, error) {
	if s.existing[task.Name] {
		return false, nil
	}
	s.created.Add(1)
	return true, nil
}

func (s *fakeTaskStore) RecordAttempt(context.Context, string, time.Time) error {
	return nil
}

func (s *fakeTaskStore) MarkTaskStatus(context.Context, string, domain.TaskStatus, string) error {
	return nil
}

type countingHandler struct {
	calls   atomic.Int32
	failFor int32
	done    chan struct{}
}

func (h *countingHandler) Process(context.Context, *domain.Task) error {
	n := h.calls.Add(1)
	if n <= h.failFor {
		return errors.New("transient failure")
	}
	if h.done != nil {
		close(h.done)
	}
	return nil
}

func testTask(name string) *domain.Task {
	return &domain.Task{
		Name:  name,
		Queue: "ingestion",
		Payload: domain.TaskPayload{
			UploadID: "upload-1",
			UserID:   "user-1",
			Retry: domain.RetryPolicy{
				MaxAttempts: 3,
				MinBackoff:  time.Millisecond,
				MaxBackoff:  5 * time.Millisecond,
			},
		},
		Status: domain.TaskPending,
	}
}

func TestQueue_Enqueue_Delivers(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := &fakeTaskStore{}
	queue := NewQueue(slog.New(slog.DiscardHandler), store, 4)

	handler := &countingHandler{done: make(chan struct{})}
	go queue.Run(ctx, handler)

	require.NoError(t, queue.Enqueue(ctx, testTask("panel-upload-1")))

	select {
	case <-handler.done:
	case <-time.After(time.Second):
		t.Fatal("expected task delivery")
	}

	assert.EqualValues(t, 1, store.created.Load())
}

func TestQueue_Enqueue_SuppressesDuplicates(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	store := &fakeTaskStore{existing: map[string]bool{"panel-upload-1": true}}
	queue := NewQueue(slog.New(slog.DiscardHandler), store, 1)

	// No consumer is running: a duplicate must return without dispatching,
	// otherwise this would block on the full channel after the first push.
	require.NoError(t, queue.Enqueue(ctx, testTask("panel-upload-1")))
	require.NoError(t, queue.Enqueue(ctx, testTask("panel-upload-1")))

	assert.EqualValues(t, 0, store.created.Load())
	assert.Empty(t, queue.deliveries)
}

func TestQueue_Deliver_RetriesUntilSuccess(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := &fakeTaskStore{}
	queue := NewQueue(slog.New(slog.DiscardHandler), store, 1)

	handler := &countingHandler{failFor: 2, done: make(chan struct{})}
	go queue.Run(ctx, handler)

	require.NoError(t, queue.Enqueue(ctx, testTask("panel-upload-1")))

	select {
	case <-handler.done:
	case <-time.After(time.Second):
		t.Fatal("expected eventual success")
	}

	assert.EqualValues(t, 3, handler.calls.Load())
}

func TestQueue_Deliver_StopsAtMaxAttempts(t *testing.T) {
	t.Parallel()

	store := &fakeTaskStore{}
	queue := NewQueue(slog.New(slog.DiscardHandler), store, 1)

	handler := &countingHandler{failFor: 100}
	queue.deliver(context.Background(), handler, testTask("panel-upload-1"))

	assert.EqualValues(t, 3, handler.calls.Load())
}

func TestBackoffFor_CapsAtMaxBackoff(t *testing.T) {
	t.Parallel()

	policy := domain.RetryPolicy{
		MaxAttempts: 10,
		MinBackoff:  time.Second,
		MaxBackoff:  4 * time.Second,
	}

	assert.Equal(t, time.Second, backoffFor(policy, 1))
	assert.Equal(t, 2*time.Second, backoffFor(policy, 2))
	assert.Equal(t, 4*time.Second, backoffFor(policy, 3))
	assert.Equal(t, 4*time.Second, backoffFor(policy, 4))
	assert.Equal(t, 4*time.Second, backoffFor(policy, 60))
}

func TestNormalizePolicy_FillsDefaults(t *testing.T) {
	t.Parallel()

	policy := normalizePolicy(domain.RetryPolicy{})

	assert.Equal(t, defaultMaxAttempts, policy.MaxAttempts)
	assert.Equal(t, defaultMinBackoff, policy.MinBackoff)
	assert.Equal(t, defaultMaxBackoff, policy.MaxBackoff)
}
