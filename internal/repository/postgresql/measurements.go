package postgresql

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/avoronkov/lab_ingest/internal/domain"
)

const TableMeasurements = "measurements"

type MeasurementsRepository struct {
	pool *pgxpool.Pool
	qb   sq.StatementBuilderType
}

func NewMeasurementsRepository(pool *pgxpool.Pool) *MeasurementsRepository {
	return &MeasurementsRepository{
		pool: pool,
		qb:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func (r *MeasurementsRepository) SaveMeasurements(ctx context.Context, measurements ...*domain.Measurement) error {
	if len(measurements) == 0 {
		return nil
	}

	db := extractDB(ctx, r.pool)

	copied, err := db.CopyFrom(ctx, pgx.Identifier{TableMeasurements}, []string{
		"id",
		"upload_id",
		"user_id",
		"marker_name",
		"biomarker_id",
		"value",
		"unit",
		"confidence",
		"flags",
		"captured_at",
		"created_at",
	}, pgx.CopyFromSlice(len(measurements), func(i int) ([]any, error) {
		return []any{
			measurements[i].ID,
			measurements[i].UploadID,
			measurements[i].UserID,
			measurements[i].MarkerName,
			measurements[i].BiomarkerID,
			measurements[i].Value,
			measurements[i].Unit,
			measurements[i].Confidence,
			measurements[i].Flags,
			measurements[i].CapturedAt,
			measurements[i].CreatedAt,
		}, nil
	}))
	if err != nil {
		return fmt.Errorf("failed to save measurements: %w", err)
	}

	if copied != int64(len(measurements)) {
		return fmt.Errorf("failed to save measurements: copied %d rows, expected %d", copied, len(measurements))
	}

	return nil
}

func (r *MeasurementsRepository) MeasurementsByUpload(ctx context.Context, uploadID string) ([]*domain.Measurement, error) {
	db := extractDB(ctx, r.pool)

	sql, args, err := r.qb.
		Select(
			"id",
			"upload_id",
			"user_id",
			"marker_name",
			"biomarker_id",
			"value",
			"unit",
			"confidence",
			"flags",
			"captured_at",
			"created_at",
		).
		From(TableMeasurements).
		Where(sq.Eq{"upload_id": uploadID}).
		OrderBy("created_at ASC", "marker_name ASC").
		ToSql()
	if err != nil {
		return nil, createQueryError(err)
	}

	rows, err := db.Query(ctx, sql, args...)
	if err != nil {
		return nil, executeQueryError(err)
	}

	measurements, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByNameLax[domain.Measurement])
	if err != nil {
		return nil, collectRowsError(err)
	}

	return measurements, nil
}
