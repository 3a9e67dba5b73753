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

const TablePanelUploads = "panel_uploads"

var uploadColumns = []string{
	"id",
	"user_id",
	"source_key",
	"storage_key",
	"content_type",
	"sha256",
	"raw_metadata",
	"status",
	"error_code",
	"error_message",
	"normalized_payload",
	"biomarker_tags",
	"plan_id",
	"processed_at",
	"created_at",
}

type UploadsRepository struct {
	pool *pgxpool.Pool
	qb   sq.StatementBuilderType
}

func NewUploadsRepository(pool *pgxpool.Pool) *UploadsRepository {
	return &UploadsRepository{
		pool: pool,
		qb:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func (r *UploadsRepository) CreateUpload(ctx context.Context, upload *domain.PanelUpload) error {
	db := extractDB(ctx, r.pool)

	sql, args, err := r.qb.
		Insert(TablePanelUploads).
		Columns(uploadColumns...).
		Values(
			upload.ID,
			upload.UserID,
			upload.SourceKey,
			upload.StorageKey,
			upload.ContentType,
			upload.SHA256,
			upload.RawMetadata,
			upload.Status,
			upload.ErrorCode,
			upload.ErrorMessage,
			upload.NormalizedPayload,
			upload.BiomarkerTags,
			upload.PlanID,
			upload.ProcessedAt,
			upload.CreatedAt,
		).
		ToSql()
	if err != nil {
		return createQueryError(err)
	}

	if _, err := db.Exec(ctx, sql, args...); err != nil {
		return executeQueryError(err)
	}

	return nil
}

func (r *UploadsRepository) UploadByID(ctx context.Context, id string) (*domain.PanelUpload, error) {
	return r.uploadWhere(ctx, sq.Eq{"id": id})
}

func (r *UploadsRepository) UploadByIDForUser(ctx context.Context, id, userID string) (*domain.PanelUpload, error) {
	return r.uploadWhere(ctx, sq.Eq{"id": id, "user_id": userID})
}

func (r *UploadsRepository) uploadWhere(ctx context.Context, pred sq.Eq) (*domain.PanelUpload, error) {
	db := extractDB(ctx, r.pool)

	sql, args, err := r.qb.
		Select(uploadColumns...).
		From(TablePanelUploads).
		Where(pred).
		ToSql()
	if err != nil {
		return nil, createQueryError(err)
	}

	rows, err := db.Query(ctx, sql, args...)
	if err != nil {
		return nil, executeQueryError(err)
	}

	upload, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByNameLax[domain.PanelUpload])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NewError(domain.CodeNotFound, "upload not found")
	}
	if err != nil {
		return nil, collectRowsError(err)
	}

	return upload, nil
}

func (r *UploadsRepository) UploadsForUser(
	ctx context.Context,
	userID string,
	limit, offset uint64,
) ([]*domain.PanelUpload, int, error) {
	db := extractDB(ctx, r.pool)

	sql, args, err := r.qb.
		Select("COUNT(*)").
		From(TablePanelUploads).
		Where(sq.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return nil, -1, createQueryError(err)
	}

	var total int
	if err := db.QueryRow(ctx, sql, args...).Scan(&total); err != nil {
		return nil, -1, scanRowError(err)
	}

	sql, args, err = r.qb.
		Select(uploadColumns...).
		From(TablePanelUploads).
		Where(sq.Eq{"user_id": userID}).
		OrderBy("created_at DESC").
		Limit(limit).
		Offset(offset).
		ToSql()
	if err != nil {
		return nil, -1, createQueryError(err)
	}

	rows, err := db.Query(ctx, sql, args...)
	if err != nil {
		return nil, -1, executeQueryError(err)
	}

	uploads, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByNameLax[domain.PanelUpload])
	if err != nil {
		return nil, -1, collectRowsError(err)
	}

	return uploads, total, nil
}

// FinalizeNormalized records a successful supervision run. Last write wins by
// design: a redelivered task recomputes the same result.
func (r *UploadsRepository) FinalizeNormalized(ctx context.Context, id string, payload *domain.NormalizedPayload, processedAt time.Time) error {
	db := extractDB(ctx, r.pool)

	sql, args, err := r.qb.
		Update(TablePanelUploads).
		Set("status", domain.UploadNormalized).
		Set("normalized_payload", payload).
		Set("error_code", "").
		Set("error_message", "").
		Set("processed_at", processedAt).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return createQueryError(err)
	}

	if _, err := db.Exec(ctx, sql, args...); err != nil {
		return executeQueryError(err)
	}

	return nil
}

func (r *UploadsRepository) FinalizeFailure(ctx context.Context, id string, code domain.ErrorCode, message string, payload *domain.NormalizedPayload, processedAt time.Time) error {
	db := extractDB(ctx, r.pool)

	builder := r.qb.
		Update(TablePanelUploads).
		Set("status", domain.UploadFailed).
		Set("error_code", string(code)).
		Set("error_message", message).
		Set("processed_at", processedAt).
		Where(sq.Eq{"id": id})

	if payload != nil {
		builder = builder.Set("normalized_payload", payload)
	}

	sql, args, err := builder.ToSql()
	if err != nil {
		return createQueryError(err)
	}

	if _, err := db.Exec(ctx, sql, args...); err != nil {
		return executeQueryError(err)
	}

	return nil
}

func (r *UploadsRepository) SetPlanID(ctx context.Context, uploadID, planID string) error {
	db := extractDB(ctx, r.pool)

	sql, args, err := r.qb.
		Update(TablePanelUploads).
		Set("plan_id", planID).
		Where(sq.Eq{"id": uploadID}).
		ToSql()
	if err != nil {
		return createQueryError(err)
	}

	if _, err := db.Exec(ctx, sql, args...); err != nil {
		return executeQueryError(err)
	}

	return nil
}

// UpdateTags applies the only mutation allowed on a terminal record: user
// tagging (plan link, biomarker tags).
func (r *UploadsRepository) UpdateTags(ctx context.Context, id, userID string, planID *string, biomarkerTags []string) error {
	if planID == nil && biomarkerTags == nil {
		return domain.NewError(domain.CodeMalformedPayload, "no tag fields to update")
	}

	db := extractDB(ctx, r.pool)

	builder := r.qb.
		Update(TablePanelUploads).
		Where(sq.Eq{"id": id, "user_id": userID})

	if planID != nil {
		builder = builder.Set("plan_id", *planID)
	}
	if biomarkerTags != nil {
		builder = builder.Set("biomarker_tags", biomarkerTags)
	}

	sql, args, err := builder.ToSql()
	if err != nil {
		return createQueryError(err)
	}

	tag, err := db.Exec(ctx, sql, args...)
	if err != nil {
		return executeQueryError(err)
	}

	if tag.RowsAffected() == 0 {
		return domain.NewError(domain.CodeNotFound, "upload not found")
	}

	return nil
}
