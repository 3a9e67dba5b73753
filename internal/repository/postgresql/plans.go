package postgresql

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/avoronkov/lab_ingest/internal/domain"
)

const TablePlans = "plans"

type PlansRepository struct {
	pool *pgxpool.Pool
	qb   sq.StatementBuilderType
}

func NewPlansRepository(pool *pgxpool.Pool) *PlansRepository {
	return &PlansRepository{
		pool: pool,
		qb:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// ActivePlans returns the user's in-progress plans, most recent first. The
// order matters: the auto-linker breaks score ties toward the first row.
func (r *PlansRepository) ActivePlans(ctx context.Context, userID string, limit int) ([]*domain.Plan, error) {
	db := extractDB(ctx, r.pool)

	sql, args, err := r.qb.
		Select(
			"id",
			"user_id",
			"title",
			"status",
			"focus_areas",
			"evidence",
			"created_at",
			"updated_at",
		).
		From(TablePlans).
		Where(sq.Eq{"user_id": userID, "status": domain.PlanActive}).
		OrderBy("updated_at DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, createQueryError(err)
	}

	rows, err := db.Query(ctx, sql, args...)
	if err != nil {
		return nil, executeQueryError(err)
	}

	plans, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByNameLax[domain.Plan])
	if err != nil {
		return nil, collectRowsError(err)
	}

	return plans, nil
}

func (r *PlansRepository) UpdateEvidence(ctx context.Context, planID string, evidence []domain.EvidenceNote) error {
	db := extractDB(ctx, r.pool)

	sql, args, err := r.qb.
		Update(TablePlans).
		Set("evidence", evidence).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": planID}).
		ToSql()
	if err != nil {
		return createQueryError(err)
	}

	if _, err := db.Exec(ctx, sql, args...); err != nil {
		return executeQueryError(err)
	}

	return nil
}
