package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sethvargo/go-retry"
)

// MaxTxAttempts bounds how often a transaction that lost a serialization race
// or deadlock is run in total.
const MaxTxAttempts = 5

const (
	retryBase   = 10 * time.Millisecond
	retryCap    = 250 * time.Millisecond
	retryJitter = 50
)

// TxBeginner is satisfied by *pgxpool.Pool and *pgx.Conn.
type TxBeginner interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// WithTx runs fn in a RepeatableRead transaction. See WithTxIso.
func WithTx(ctx context.Context, pool TxBeginner, fn func(pgx.Tx) error) error {
	return WithTxIso(ctx, pool, pgx.RepeatableRead, fn)
}

// WithTxIso runs fn in a transaction at the given isolation level. The whole
// transaction is replayed with jittered exponential backoff when Postgres
// reports a serialization failure or deadlock.
func WithTxIso(ctx context.Context, pool TxBeginner, iso pgx.TxIsoLevel, fn func(pgx.Tx) error) error {
	backoff := retry.WithMaxRetries(MaxTxAttempts-1,
		retry.WithCappedDuration(retryCap,
			retry.WithJitterPercent(retryJitter, retry.NewExponential(retryBase))))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := runTx(ctx, pool, iso, fn)
		if IsRetryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func runTx(ctx context.Context, pool TxBeginner, iso pgx.TxIsoLevel, fn func(pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: iso})
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: commit tx: %w", err)
	}

	return nil
}

// IsRetryable reports serialization_failure and deadlock_detected.
func IsRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

// IsUniqueViolation reports unique_violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
