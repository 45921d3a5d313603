package privileges

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JeremyFirst/Ds-Bot-2.0/internal/platform/db"
	"github.com/JeremyFirst/Ds-Bot-2.0/internal/shared"
)

// TxRepository exposes transactional operations used by Store.
type TxRepository interface {
	InsertIfAbsent(ctx context.Context, rec Record) (Record, bool, error)
	GetForUpdate(ctx context.Context, steamID string) (Record, error)
	Update(ctx context.Context, rec Record) (Record, error)
	RecordAudit(ctx context.Context, log shared.AuditLog) error
}

// Repository persists privilege records in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx    pgx.Tx
	audit *shared.AuditLogger
}

// WithTx executes the callback inside a read-committed transaction. Same
// identity writers serialise on the unique index and the row lock taken by
// GetForUpdate, so racing upserts wait instead of failing; deadlocks are
// still replayed.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTxIso(ctx, r.pool, pgx.ReadCommitted, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx, audit: shared.NewAuditLogger(tx)})
	})
}

const recordColumns = `id, discord_user_id, steam_id, privilege_group, expires_at, created_at, updated_at`

func scanRecord(row pgx.Row) (Record, error) {
	var (
		rec     Record
		group   *string
		expires *time.Time
	)
	if err := row.Scan(&rec.ID, &rec.DiscordUserID, &rec.SteamID, &group, &expires, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return Record{}, err
	}
	if group != nil {
		rec.Group = *group
	}
	if expires != nil {
		utc := expires.UTC()
		rec.ExpiresAt = &utc
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return rec, nil
}

func nullableGroup(group string) *string {
	if group == "" {
		return nil
	}
	return &group
}

func (r *txRepo) InsertIfAbsent(ctx context.Context, rec Record) (Record, bool, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO user_privileges (discord_user_id, steam_id, privilege_group, expires_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $5)
ON CONFLICT (steam_id) DO NOTHING
RETURNING `+recordColumns,
		rec.DiscordUserID, rec.SteamID, nullableGroup(rec.Group), rec.ExpiresAt, rec.CreatedAt)
	created, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	return created, true, nil
}

func (r *txRepo) GetForUpdate(ctx context.Context, steamID string) (Record, error) {
	rec, err := scanRecord(r.tx.QueryRow(ctx, `SELECT `+recordColumns+` FROM user_privileges WHERE steam_id = $1 FOR UPDATE`, steamID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, shared.ErrNotFound
	}
	return rec, err
}

func (r *txRepo) Update(ctx context.Context, rec Record) (Record, error) {
	return scanRecord(r.tx.QueryRow(ctx, `UPDATE user_privileges
SET discord_user_id = $2, privilege_group = $3, expires_at = $4, updated_at = $5
WHERE id = $1
RETURNING `+recordColumns,
		rec.ID, rec.DiscordUserID, nullableGroup(rec.Group), rec.ExpiresAt, rec.UpdatedAt))
}

func (r *txRepo) RecordAudit(ctx context.Context, log shared.AuditLog) error {
	return r.audit.Record(ctx, log)
}
