package shared

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrAuditIncomplete marks an audit entry missing a required field.
var ErrAuditIncomplete = errors.New("audit entry incomplete")

// Execer is the write surface shared by pools, connections and transactions.
type Execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// AuditLog is one row of audit_logs. Meta is stored as JSONB.
type AuditLog struct {
	ActorID  string
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
	At       time.Time
}

func (l AuditLog) check() error {
	var errs []error
	for field, v := range map[string]string{"actor": l.ActorID, "action": l.Action, "entity": l.Entity, "entity id": l.EntityID} {
		if v == "" {
			errs = append(errs, fmt.Errorf("%w: %s", ErrAuditIncomplete, field))
		}
	}
	return errors.Join(errs...)
}

// AuditLogger appends audit entries. Built on a transaction, entries commit
// or roll back with the change they describe.
type AuditLogger struct {
	db Execer
}

// NewAuditLogger binds a logger to db.
func NewAuditLogger(db Execer) *AuditLogger {
	return &AuditLogger{db: db}
}

// Record appends log. A zero At defaults to the database clock.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil || l.db == nil {
		return errors.New("audit: no database")
	}
	if err := log.check(); err != nil {
		return err
	}
	meta := log.Meta
	if meta == nil {
		meta = map[string]any{}
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("audit: encode meta: %w", err)
	}
	var at *time.Time
	if !log.At.IsZero() {
		utc := log.At.UTC()
		at = &utc
	}
	if _, err := l.db.Exec(ctx, `INSERT INTO audit_logs (actor_id, action, entity, entity_id, meta, occurred_at)
VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()))`,
		log.ActorID, log.Action, log.Entity, log.EntityID, raw, at); err != nil {
		return fmt.Errorf("audit: insert: %w", err)
	}
	return nil
}
