package announcement

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JeremyFirst/Ds-Bot-2.0/internal/shared"
)

// PGRepository provides PostgreSQL backed persistence.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const recordColumns = `id, channel_id, message_id, created_at, updated_at`

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	if err := row.Scan(&rec.ID, &rec.ChannelID, &rec.MessageID, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Get returns the record for channelID or shared.ErrNotFound.
func (r *PGRepository) Get(ctx context.Context, channelID string) (Record, error) {
	rec, err := scanRecord(r.pool.QueryRow(ctx, `SELECT `+recordColumns+` FROM staff_messages WHERE channel_id = $1`, channelID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, shared.ErrNotFound
	}
	return rec, err
}

// Save inserts the record, replacing the message id if the channel is already tracked.
func (r *PGRepository) Save(ctx context.Context, rec Record) (Record, error) {
	return scanRecord(r.pool.QueryRow(ctx, `INSERT INTO staff_messages (channel_id, message_id)
VALUES ($1, $2)
ON CONFLICT (channel_id) DO UPDATE SET message_id = EXCLUDED.message_id, updated_at = NOW()
RETURNING `+recordColumns, rec.ChannelID, rec.MessageID))
}

// Delete removes the record only while it still points at messageID.
func (r *PGRepository) Delete(ctx context.Context, channelID, messageID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM staff_messages WHERE channel_id = $1 AND message_id = $2`, channelID, messageID)
	return err
}

// List returns every tracked announcement.
func (r *PGRepository) List(ctx context.Context) ([]Record, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+recordColumns+` FROM staff_messages ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}
