package tasks

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/avoronkov/lab_ingest/internal/domain"
	"github.com/avoronkov/lab_ingest/internal/extraction"
	"github.com/avoronkov/lab_ingest/internal/sealing"
)

// Object metadata keys the sealed ciphertext is stored with. IV and auth tag
// are hex-encoded; the object body carries only ciphertext.
const (
	metaSealIV        = "seal-iv"
	metaSealAuthTag   = "seal-auth-tag"
	metaSealAlgorithm = "seal-algorithm"
)

// Orchestrator runs the full ingestion flow for one task: verify integrity,
// seal at rest, extract measurements, persist atomically, auto-link plans.
type Orchestrator struct {
	log          *slog.Logger
	tasks        TaskStore
	uploads      UploadStore
	measurements MeasurementSaver
	storage      ObjectStore
	codec        *sealing.Codec
	supervisor   Supervisor
	linker       AutoLinker
	tx           Transactor
}

func NewOrchestrator(
	log *slog.Logger,
	tasks TaskStore,
	uploads UploadStore,
	measurements MeasurementSaver,
	storage ObjectStore,
	codec *sealing.Codec,
	supervisor Supervisor,
	linker AutoLinker,
	tx Transactor,
) *Orchestrator {
	return &Orchestrator{
		log:          log,
		tasks:        tasks,
		uploads:      uploads,
		measurements: measurements,
		storage:      storage,
		codec:        codec,
		supervisor:   supervisor,
		linker:       linker,
		tx:           tx,
	}
}

// Process handles one delivery. A nil return acknowledges the task, whether
// it succeeded or failed terminally; a non-nil return requests redelivery.
func (o *Orchestrator) Process(ctx context.Context, task *domain.Task) error {
	now := time.Now().UTC()

	if err := o.tasks.RecordAttempt(ctx, task.Name, now); err != nil {
		return fmt.Errorf("failed to record attempt: %w", err)
	}

	payload := task.Payload
	if payload.UploadID == "" || payload.UserID == "" {
		return o.failTask(ctx, task, domain.NewError(domain.CodeMalformedPayload, "payload missing upload or user id"))
	}

	log := o.log.With(
		slog.String("task_name", task.Name),
		slog.String("upload_id", payload.UploadID),
	)

	upload, err := o.uploads.UploadByIDForUser(ctx, payload.UploadID, payload.UserID)
	if err != nil {
		if domain.CodeOf(err) == domain.CodeNotFound {
			return o.failTask(ctx, task, err)
		}
		return fmt.Errorf("failed to load upload: %w", err)
	}

	if terminalUpload(upload) {
		log.InfoContext(ctx, "upload already in terminal status, acknowledging", slog.String("status", string(upload.Status)))
		return o.tasks.MarkTaskStatus(ctx, task.Name, domain.TaskSucceeded, "")
	}

	text, terminalErr, err := o.integrityAndSeal(ctx, upload)
	if err != nil {
		return o.failBoth(ctx, task, upload, err)
	}
	if terminalErr != nil {
		log.WarnContext(ctx, "upload rejected", slog.String("err", terminalErr.Error()))

		rejected := &domain.NormalizedPayload{Method: extraction.MethodNone, Summary: "upload rejected before extraction"}
		if err := o.uploads.FinalizeFailure(ctx, upload.ID, domain.CodeOf(terminalErr), terminalErr.Message, rejected, time.Now().UTC()); err != nil {
			return fmt.Errorf("failed to finalize rejected upload: %w", err)
		}

		return o.tasks.MarkTaskStatus(ctx, task.Name, domain.TaskFailed, terminalErr.Error())
	}

	result, err := o.supervisor.Supervise(ctx, text, o.options(upload))
	if err != nil {
		return o.failBoth(ctx, task, upload, fmt.Errorf("extraction failed: %w", err))
	}

	rows := o.measurementRows(upload, result.Measurements)

	normalized := &domain.NormalizedPayload{
		Method:           result.Method,
		Summary:          result.Summary,
		Notes:            result.Notes,
		MeasurementCount: len(rows),
	}

	err = o.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if len(rows) > 0 {
			if err := o.measurements.SaveMeasurements(ctx, rows...); err != nil {
				return fmt.Errorf("failed to save measurements: %w", err)
			}
		}

		if err := o.uploads.FinalizeNormalized(ctx, upload.ID, normalized, time.Now().UTC()); err != nil {
			return fmt.Errorf("failed to finalize upload: %w", err)
		}

		return nil
	})
	if err != nil {
		return o.failBoth(ctx, task, upload, err)
	}

	// Plan linking is best-effort: the upload is already normalized, so a
	// linking failure must not fail the task.
	planID, err := o.linker.AutoLink(ctx, upload.ID, upload.UserID, rows)
	if err != nil {
		log.WarnContext(ctx, "plan auto-link failed", slog.String("err", err.Error()))
	} else if planID != "" {
		log.InfoContext(ctx, "upload linked to plan", slog.String("plan_id", planID))
	}

	log.InfoContext(ctx, "upload ingested",
		slog.String("method", result.Method),
		slog.Int("measurements", len(rows)),
	)

	return o.tasks.MarkTaskStatus(ctx, task.Name, domain.TaskSucceeded, "")
}

// terminalUpload reports whether the upload can never be reprocessed. A
// normalized upload is done; a failed one is done only when the failure code
// rules out a different outcome. Failures from infrastructure (storage,
// database) stay reprocessable so a redelivered task can finish the work.
func terminalUpload(upload *domain.PanelUpload) bool {
	switch upload.Status {
	case domain.UploadNormalized:
		return true
	case domain.UploadFailed:
		switch domain.ErrorCode(upload.ErrorCode) {
		case domain.CodeIntegrityMismatch, domain.CodeMalformedPayload:
			return true
		}
	}

	return false
}

// integrityAndSeal downloads the client-written object, verifies its digest
// against the session-declared one and writes the sealed copy. A digest
// mismatch is terminal: the raw bytes are untrusted and never processed.
func (o *Orchestrator) integrityAndSeal(ctx context.Context, upload *domain.PanelUpload) (string, *domain.Error, error) {
	raw, err := o.storage.Download(ctx, upload.SourceKey)
	if err != nil {
		return "", nil, domain.WrapError(domain.CodeStorageProvider, err, "failed to download upload")
	}

	digest := sha256.Sum256(raw)
	received := hex.EncodeToString(digest[:])
	expected := strings.ToLower(upload.SHA256)

	if received != expected {
		return "", domain.NewError(domain.CodeIntegrityMismatch,
			"digest mismatch: expected %s, received %s", expected, received), nil
	}

	sealed, err := o.codec.Seal(raw)
	if err != nil {
		return "", nil, fmt.Errorf("failed to seal upload: %w", err)
	}

	metadata := map[string]string{
		metaSealIV:        hex.EncodeToString(sealed.IV),
		metaSealAuthTag:   hex.EncodeToString(sealed.AuthTag),
		metaSealAlgorithm: sealed.Algorithm,
	}

	if err := o.storage.Save(ctx, upload.StorageKey, sealed.Ciphertext, metadata); err != nil {
		return "", nil, domain.WrapError(domain.CodeStorageProvider, err, "failed to store sealed upload")
	}

	return textOf(raw), nil, nil
}

// textOf interprets the raw bytes as extraction input. Binary formats still
// pass through so embedded text layers get a chance; invalid UTF-8 is
// sanitized rather than rejected.
func textOf(raw []byte) string {
	return strings.ToValidUTF8(string(raw), "�")
}

func (o *Orchestrator) options(upload *domain.PanelUpload) extraction.Options {
	opts := extraction.Options{
		ContentType: upload.ContentType,
		FileName:    upload.RawMetadata[domain.MetaOriginalFileName],
	}

	if raw := upload.RawMetadata[domain.MetaCapturedAt]; raw != "" {
		if capturedAt, err := time.Parse(time.RFC3339, raw); err == nil {
			capturedAt = capturedAt.UTC()
			opts.CapturedAt = &capturedAt
		}
	}

	return opts
}

func (o *Orchestrator) measurementRows(upload *domain.PanelUpload, measurements []*domain.Measurement) []*domain.Measurement {
	now := time.Now().UTC()

	for _, m := range measurements {
		m.ID = uuid.NewString()
		m.UploadID = upload.ID
		m.UserID = upload.UserID
		m.CreatedAt = now
	}

	return measurements
}

// failTask terminally fails a task with no upload to update: the payload is
// unusable or the upload row is gone. The delivery is acknowledged.
func (o *Orchestrator) failTask(ctx context.Context, task *domain.Task, cause error) error {
	o.log.ErrorContext(ctx, "task failed terminally",
		slog.String("task_name", task.Name),
		slog.String("err", cause.Error()),
	)

	return o.tasks.MarkTaskStatus(ctx, task.Name, domain.TaskFailed, cause.Error())
}

// failBoth marks the upload and task failed and returns the cause so the
// queue redelivers. The status writes are best-effort; a later attempt can
// still succeed and overwrite them.
func (o *Orchestrator) failBoth(ctx context.Context, task *domain.Task, upload *domain.PanelUpload, cause error) error {
	code := domain.CodeOf(cause)
	if code == "" {
		code = domain.CodeInternal
	}

	if err := o.uploads.FinalizeFailure(ctx, upload.ID, code, cause.Error(), nil, time.Now().UTC()); err != nil {
		o.log.ErrorContext(ctx, "failed to record upload failure", slog.String("err", err.Error()))
	}

	if err := o.tasks.MarkTaskStatus(ctx, task.Name, domain.TaskFailed, cause.Error()); err != nil {
		o.log.ErrorContext(ctx, "failed to record task failure", slog.String("err", err.Error()))
	}

	return cause
}
