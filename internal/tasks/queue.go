package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/avoronkov/lab_ingest/internal/domain"
)

const (
	defaultMaxAttempts = 5
	defaultMinBackoff  = time.Second
	defaultMaxBackoff  = time.Minute
)

// Queue is an in-process at-least-once delivery queue. Every task is backed
// by a durable metadata row keyed by its idempotency name; deliveries retry
// with capped exponential backoff per the policy snapshotted in the payload.
type Queue struct {
	log        *slog.Logger
	store      TaskStore
	deliveries chan *domain.Task
}

func NewQueue(log *slog.Logger, store TaskStore, buffer int) *Queue {
	return &Queue{
		log:        log,
		store:      store,
		deliveries: make(chan *domain.Task, buffer),
	}
}

// Enqueue persists the task row and schedules delivery. A task name that
// already exists is a duplicate enqueue and is suppressed.
func (q *Queue) Enqueue(ctx context.Context, task *domain.Task) error {
	created, err := q.store.CreateTask(ctx, task)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	if !created {
		q.log.DebugContext(ctx, "duplicate enqueue suppressed", slog.String("task_name", task.Name))
		return nil
	}

	return q.dispatch(ctx, task)
}

// Requeue schedules delivery for a task whose row already exists, used to
// recover interrupted work on boot.
func (q *Queue) Requeue(ctx context.Context, task *domain.Task) error {
	return q.dispatch(ctx, task)
}

func (q *Queue) dispatch(ctx context.Context, task *domain.Task) error {
	select {
	case q.deliveries <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run consumes deliveries until the context is canceled. Start one Run per
// worker; the delivery channel is shared.
func (q *Queue) Run(ctx context.Context, handler Handler) error {
	for {
		select {
		case task := <-q.deliveries:
			q.deliver(ctx, handler, task)

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (q *Queue) deliver(ctx context.Context, handler Handler, task *domain.Task) {
	policy := normalizePolicy(task.Payload.Retry)

	for attempt := 1; ; attempt++ {
		err := handler.Process(ctx, task)
		if err == nil {
			return
		}

		log := q.log.With(
			slog.String("task_name", task.Name),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", policy.MaxAttempts),
		)

		if attempt >= policy.MaxAttempts {
			log.ErrorContext(ctx, "task exhausted retry budget", slog.String("err", err.Error()))
			return
		}

		backoff := backoffFor(policy, attempt)

		log.WarnContext(ctx, "task attempt failed, redelivering",
			slog.Duration("backoff", backoff),
			slog.String("err", err.Error()),
		)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
	}
}

func normalizePolicy(policy domain.RetryPolicy) domain.RetryPolicy {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = defaultMaxAttempts
	}
	if policy.MinBackoff <= 0 {
		policy.MinBackoff = defaultMinBackoff
	}
	if policy.MaxBackoff < policy.MinBackoff {
		policy.MaxBackoff = defaultMaxBackoff
	}
	return policy
}

func backoffFor(policy domain.RetryPolicy, attempt int) time.Duration {
	backoff := policy.MinBackoff << (attempt - 1)
	if backoff > policy.MaxBackoff || backoff <= 0 {
		backoff = policy.MaxBackoff
	}
	return backoff
}
