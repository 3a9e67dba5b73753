package postgresql

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/avoronkov/lab_ingest/internal/domain"
)

const TableBiomarkers = "biomarkers"

type BiomarkersRepository struct {
	pool *pgxpool.Pool
	qb   sq.StatementBuilderType
}

func NewBiomarkersRepository(pool *pgxpool.Pool) *BiomarkersRepository {
	return &BiomarkersRepository{
		pool: pool,
		qb:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func (r *BiomarkersRepository) Biomarkers(ctx context.Context) ([]*domain.Biomarker, error) {
	db := extractDB(ctx, r.pool)

	sql, args, err := r.qb.
		Select(
			"id",
			"slug",
			"display_name",
			"canonical_unit",
		).
		From(TableBiomarkers).
		OrderBy("slug ASC").
		ToSql()
	if err != nil {
		return nil, createQueryError(err)
	}

	rows, err := db.Query(ctx, sql, args...)
	if err != nil {
		return nil, executeQueryError(err)
	}

	biomarkers, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByNameLax[domain.Biomarker])
	if err != nil {
		return nil, collectRowsError(err)
	}

	return biomarkers, nil
}
