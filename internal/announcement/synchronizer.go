// Package announcement keeps one self-healing staff list message per channel.
package announcement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/JeremyFirst/Ds-Bot-2.0/internal/platform/lock"
	"github.com/JeremyFirst/Ds-Bot-2.0/internal/shared"
)

// ErrAnnouncement wraps every create, fetch or edit failure.
var ErrAnnouncement = errors.New("announcement failure")

// RepairAction reports what Repair did for a channel.
type RepairAction string

const (
	RepairSkipped   RepairAction = "skipped"
	RepairRefreshed RepairAction = "refreshed"
	RepairRecreated RepairAction = "recreated"
)

// Synchronizer owns the announcement message of each channel. Every public
// method runs inside the channel's critical section.
type Synchronizer struct {
	repo      Repository
	messenger Messenger
	members   Membership
	locker    lock.Locker
	roles     []StaffRole
	logger    *slog.Logger
	now       func() time.Time
}

// NewSynchronizer builds a Synchronizer. A nil locker uses an in-process lock.
func NewSynchronizer(repo Repository, messenger Messenger, members Membership, locker lock.Locker, roles []StaffRole, logger *slog.Logger) *Synchronizer {
	if locker == nil {
		locker = lock.NewKeyed()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Synchronizer{
		repo:      repo,
		messenger: messenger,
		members:   members,
		locker:    locker,
		roles:     SortRoles(roles),
		logger:    logger,
		now:       time.Now,
	}
}

// HasRole reports whether roleID is one of the configured staff roles.
func (s *Synchronizer) HasRole(roleID string) bool {
	for _, r := range s.roles {
		if r.RoleID == roleID {
			return true
		}
	}
	return false
}

func (s *Synchronizer) acquire(ctx context.Context, channelID string) (func(), error) {
	release, err := s.locker.Lock(ctx, shared.AnnouncementLockKey(channelID))
	if err != nil {
		return nil, fmt.Errorf("announcement: lock channel %s: %w", channelID, err)
	}
	return release, nil
}

// GetOrCreate returns the live announcement record for channelID, sending a
// new message when none is tracked or the tracked one was deleted.
func (s *Synchronizer) GetOrCreate(ctx context.Context, guildID, channelID string) (Record, error) {
	release, err := s.acquire(ctx, channelID)
	if err != nil {
		return Record{}, err
	}
	defer release()
	return s.getOrCreate(ctx, guildID, channelID)
}

func (s *Synchronizer) getOrCreate(ctx context.Context, guildID, channelID string) (Record, error) {
	rec, err := s.repo.Get(ctx, channelID)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		return s.create(ctx, guildID, channelID)
	case err != nil:
		return Record{}, fmt.Errorf("announcement: load record %s: %w: %w", channelID, ErrAnnouncement, err)
	}

	err = s.messenger.Fetch(ctx, channelID, rec.MessageID)
	switch {
	case err == nil:
		return rec, nil
	case errors.Is(err, shared.ErrNotFound):
		s.logger.Info("announcement message missing, recreating",
			slog.String("channel_id", channelID),
			slog.String("message_id", rec.MessageID),
		)
		if err := s.repo.Delete(ctx, channelID, rec.MessageID); err != nil {
			return Record{}, fmt.Errorf("announcement: delete stale record %s: %w: %w", channelID, ErrAnnouncement, err)
		}
		return s.create(ctx, guildID, channelID)
	default:
		return Record{}, fmt.Errorf("announcement: fetch message %s/%s: %w: %w", channelID, rec.MessageID, ErrAnnouncement, err)
	}
}

func (s *Synchronizer) create(ctx context.Context, guildID, channelID string) (Record, error) {
	content, err := s.render(ctx, guildID)
	if err != nil {
		return Record{}, err
	}
	messageID, err := s.messenger.Send(ctx, channelID, content)
	if err != nil {
		return Record{}, fmt.Errorf("announcement: send %s: %w: %w", channelID, ErrAnnouncement, err)
	}
	rec, err := s.repo.Save(ctx, Record{ChannelID: channelID, MessageID: messageID})
	if err != nil {
		s.logger.Error("announcement sent but not tracked",
			slog.String("channel_id", channelID),
			slog.String("message_id", messageID),
			slog.Any("error", err),
		)
		return Record{}, fmt.Errorf("announcement: save record %s: %w: %w", channelID, ErrAnnouncement, err)
	}
	s.logger.Info("announcement created", slog.String("channel_id", channelID), slog.String("message_id", messageID))
	return rec, nil
}

func (s *Synchronizer) render(ctx context.Context, guildID string) (Content, error) {
	roleIDs := make([]string, len(s.roles))
	for i, r := range s.roles {
		roleIDs[i] = r.RoleID
	}
	roster, err := s.members.Roster(ctx, guildID, roleIDs)
	if err != nil {
		return Content{}, fmt.Errorf("announcement: roster for guild %s: %w: %w", guildID, ErrAnnouncement, err)
	}
	for _, id := range roleIDs {
		if _, ok := roster[id]; !ok {
			s.logger.Warn("staff role not found in guild", slog.String("guild_id", guildID), slog.String("role_id", id))
		}
	}
	return Render(s.roles, roster, s.now()), nil
}

// Refresh makes sure the announcement exists and rewrites it from current
// membership. Failures are logged and reported as false.
func (s *Synchronizer) Refresh(ctx context.Context, guildID, channelID string) bool {
	release, err := s.acquire(ctx, channelID)
	if err != nil {
		s.logger.Error("announcement refresh", slog.String("channel_id", channelID), slog.Any("error", err))
		return false
	}
	defer release()

	rec, err := s.getOrCreate(ctx, guildID, channelID)
	if err != nil {
		s.logger.Error("announcement refresh", slog.String("channel_id", channelID), slog.Any("error", err))
		return false
	}
	if err := s.edit(ctx, guildID, rec); err != nil {
		s.logger.Error("announcement refresh", slog.String("channel_id", channelID), slog.Any("error", err))
		return false
	}
	return true
}

func (s *Synchronizer) edit(ctx context.Context, guildID string, rec Record) error {
	content, err := s.render(ctx, guildID)
	if err != nil {
		return err
	}
	if err := s.messenger.Edit(ctx, rec.ChannelID, rec.MessageID, content); err != nil {
		return fmt.Errorf("announcement: edit %s/%s: %w: %w", rec.ChannelID, rec.MessageID, ErrAnnouncement, err)
	}
	return nil
}

// Repair re-validates a tracked announcement: an existing message is
// refreshed, a deleted one is recreated. Untracked channels are skipped.
func (s *Synchronizer) Repair(ctx context.Context, guildID, channelID string) (RepairAction, error) {
	release, err := s.acquire(ctx, channelID)
	if err != nil {
		return RepairSkipped, err
	}
	defer release()

	rec, err := s.repo.Get(ctx, channelID)
	if errors.Is(err, shared.ErrNotFound) {
		return RepairSkipped, nil
	}
	if err != nil {
		return RepairSkipped, fmt.Errorf("announcement: load record %s: %w: %w", channelID, ErrAnnouncement, err)
	}

	err = s.messenger.Fetch(ctx, channelID, rec.MessageID)
	switch {
	case err == nil:
		return RepairRefreshed, s.edit(ctx, guildID, rec)
	case errors.Is(err, shared.ErrNotFound):
		s.logger.Info("announcement message missing, recreating",
			slog.String("channel_id", channelID),
			slog.String("message_id", rec.MessageID),
		)
		if err := s.repo.Delete(ctx, channelID, rec.MessageID); err != nil {
			return RepairRecreated, fmt.Errorf("announcement: delete stale record %s: %w: %w", channelID, ErrAnnouncement, err)
		}
		_, err := s.create(ctx, guildID, channelID)
		return RepairRecreated, err
	default:
		return RepairSkipped, fmt.Errorf("announcement: fetch message %s/%s: %w: %w", channelID, rec.MessageID, ErrAnnouncement, err)
	}
}

// Tracked lists every channel with a tracked announcement.
func (s *Synchronizer) Tracked(ctx context.Context) ([]Record, error) {
	records, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("announcement: list records: %w", err)
	}
	return records, nil
}
