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

const TableUploadSessions = "upload_sessions"

type SessionsRepository struct {
	pool *pgxpool.Pool
	qb   sq.StatementBuilderType
}

func NewSessionsRepository(pool *pgxpool.Pool) *SessionsRepository {
	return &SessionsRepository{
		pool: pool,
		qb:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func (r *SessionsRepository) CreateSession(ctx context.Context, session *domain.UploadSession) error {
	db := extractDB(ctx, r.pool)

	sql, args, err := r.qb.
		Insert(TableUploadSessions).
		Columns(
			"id",
			"user_id",
			"storage_key",
			"content_type",
			"byte_size",
			"sha256",
			"kms_key_ref",
			"expires_at",
			"status",
			"created_at",
		).
		Values(
			session.ID,
			session.UserID,
			session.StorageKey,
			session.ContentType,
			session.ByteSize,
			session.SHA256,
			session.KMSKeyRef,
			session.ExpiresAt,
			session.Status,
			session.CreatedAt,
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

func (r *SessionsRepository) SessionByID(ctx context.Context, id string) (*domain.UploadSession, error) {
	db := extractDB(ctx, r.pool)

	sql, args, err := r.qb.
		Select(
			"id",
			"user_id",
			"storage_key",
			"content_type",
			"byte_size",
			"sha256",
			"kms_key_ref",
			"expires_at",
			"status",
			"created_at",
		).
		From(TableUploadSessions).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, createQueryError(err)
	}

	rows, err := db.Query(ctx, sql, args...)
	if err != nil {
		return nil, executeQueryError(err)
	}

	session, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByNameLax[domain.UploadSession])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NewError(domain.CodeNotFound, "upload session %s not found", id)
	}
	if err != nil {
		return nil, collectRowsError(err)
	}

	return session, nil
}

// ConsumeSession transitions a pending, unexpired session owned by the user
// to consumed. The conditional update is the concurrency guard: a second
// consumer finds no row to claim.
func (r *SessionsRepository) ConsumeSession(ctx context.Context, id, userID string, now time.Time) (*domain.UploadSession, error) {
	db := extractDB(ctx, r.pool)

	sql, args, err := r.qb.
		Update(TableUploadSessions).
		Set("status", domain.SessionConsumed).
		Where(sq.Eq{"id": id, "user_id": userID, "status": domain.SessionPending}).
		Where(sq.Gt{"expires_at": now}).
		Suffix(`RETURNING id, user_id, storage_key, content_type, byte_size, sha256,
			kms_key_ref, expires_at, status, created_at`).
		ToSql()
	if err != nil {
		return nil, createQueryError(err)
	}

	rows, err := db.Query(ctx, sql, args...)
	if err != nil {
		return nil, executeQueryError(err)
	}

	session, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByNameLax[domain.UploadSession])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, r.classifyConsumeFailure(ctx, id, userID, now)
	}
	if err != nil {
		return nil, collectRowsError(err)
	}

	return session, nil
}

func (r *SessionsRepository) classifyConsumeFailure(ctx context.Context, id, userID string, now time.Time) error {
	session, err := r.SessionByID(ctx, id)
	if err != nil {
		return err
	}

	switch {
	case session.UserID != userID:
		return domain.NewError(domain.CodeNotFound, "upload session %s not found", id)
	case session.Status == domain.SessionConsumed:
		return domain.NewError(domain.CodeSessionConsumed, "upload session %s already consumed", id)
	case session.Status == domain.SessionExpired || !session.ExpiresAt.After(now):
		return domain.NewError(domain.CodeSessionExpired, "upload session %s expired", id)
	default:
		return domain.NewError(domain.CodeNotFound, "upload session %s not consumable", id)
	}
}

// ExpireSessions marks every pending session past its expiry. Idempotent and
// safe to run from concurrent sweepers.
func (r *SessionsRepository) ExpireSessions(ctx context.Context, now time.Time) (int64, error) {
	db := extractDB(ctx, r.pool)

	sql, args, err := r.qb.
		Update(TableUploadSessions).
		Set("status", domain.SessionExpired).
		Where(sq.Eq{"status": domain.SessionPending}).
		Where(sq.LtOrEq{"expires_at": now}).
		ToSql()
	if err != nil {
		return 0, createQueryError(err)
	}

	tag, err := db.Exec(ctx, sql, args...)
	if err != nil {
		return 0, executeQueryError(err)
	}

	return tag.RowsAffected(), nil
}
