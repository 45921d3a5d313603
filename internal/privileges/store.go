package privileges

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/JeremyFirst/Ds-Bot-2.0/internal/shared"
)

const auditEntity = "user_privilege"

// RepositoryPort abstracts repository usage for Store.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// Store keeps one privilege record per Steam account and reports whether a
// write actually changed anything, so callers can skip downstream side effects.
type Store struct {
	repo   RepositoryPort
	logger *slog.Logger
	now    func() time.Time
}

// NewStore builds Store.
func NewStore(repo RepositoryPort, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{repo: repo, logger: logger, now: time.Now}
}

// Upsert creates or updates the record for in.SteamID in one transaction.
// Any failure is returned wrapping shared.ErrPersistence.
func (s *Store) Upsert(ctx context.Context, in UpsertInput) (UpsertResult, error) {
	if in.SteamID == "" || in.DiscordUserID == "" {
		return UpsertResult{}, fmt.Errorf("privileges: upsert: %w: steam id and owner required", shared.ErrInvalidInput)
	}
	if in.ExpiresAt != nil {
		utc := in.ExpiresAt.UTC()
		in.ExpiresAt = &utc
	}

	var result UpsertResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		result = UpsertResult{}
		now := s.now().UTC()
		created, inserted, err := tx.InsertIfAbsent(ctx, Record{
			SteamID:       in.SteamID,
			DiscordUserID: in.DiscordUserID,
			Group:         in.Group,
			ExpiresAt:     in.ExpiresAt,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
		if err != nil {
			return fmt.Errorf("insert: %w", err)
		}
		if inserted {
			result = UpsertResult{Record: created, Changed: true, Created: true}
			return tx.RecordAudit(ctx, auditLog(in, "privilege.created", nil, now))
		}

		current, err := tx.GetForUpdate(ctx, in.SteamID)
		if err != nil {
			return fmt.Errorf("select for update: %w", err)
		}
		next, changed := apply(current, in)
		if !changed {
			result = UpsertResult{Record: current}
			return nil
		}
		next.UpdatedAt = s.now().UTC()
		updated, err := tx.Update(ctx, next)
		if err != nil {
			return fmt.Errorf("update: %w", err)
		}
		prev := current
		result = UpsertResult{Record: updated, Changed: true, Previous: &prev}
		return tx.RecordAudit(ctx, auditLog(in, "privilege.updated", &prev, next.UpdatedAt))
	})
	if err != nil {
		s.logger.Error("privilege upsert failed",
			slog.String("steam_id", in.SteamID),
			slog.String("discord_user_id", in.DiscordUserID),
			slog.Any("error", err),
		)
		return UpsertResult{}, fmt.Errorf("privileges: upsert %s: %w: %w", in.SteamID, shared.ErrPersistence, err)
	}

	switch {
	case result.Created:
		s.logger.Info("privilege record created", slog.String("steam_id", in.SteamID), slog.String("group", in.Group))
	case result.Changed:
		s.logger.Info("privilege record updated", slog.String("steam_id", in.SteamID), slog.String("group", in.Group))
	default:
		s.logger.Info("privilege record unchanged", slog.String("steam_id", in.SteamID))
	}
	return result, nil
}

// apply copies the differing fields of in onto current.
func apply(current Record, in UpsertInput) (Record, bool) {
	next := current
	changed := false
	if current.Group != in.Group {
		next.Group = in.Group
		changed = true
	}
	if !sameExpiry(current.ExpiresAt, in.ExpiresAt) {
		next.ExpiresAt = in.ExpiresAt
		changed = true
	}
	if current.DiscordUserID != in.DiscordUserID {
		next.DiscordUserID = in.DiscordUserID
		changed = true
	}
	return next, changed
}

func auditLog(in UpsertInput, action string, prev *Record, at time.Time) shared.AuditLog {
	meta := map[string]any{
		"discord_user_id": in.DiscordUserID,
		"group":           in.Group,
		"expires_at":      in.ExpiresAt,
	}
	if prev != nil {
		meta["previous_discord_user_id"] = prev.DiscordUserID
		meta["previous_group"] = prev.Group
		meta["previous_expires_at"] = prev.ExpiresAt
	}
	actor := in.ActorID
	if actor == "" {
		actor = in.DiscordUserID
	}
	return shared.AuditLog{
		ActorID:  actor,
		Action:   action,
		Entity:   auditEntity,
		EntityID: in.SteamID,
		Meta:     meta,
		At:       at,
	}
}
