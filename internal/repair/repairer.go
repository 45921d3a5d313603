// Package repair periodically checks every tracked staff announcement and
// restores the ones that were deleted or drifted.
package repair

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/JeremyFirst/Ds-Bot-2.0/internal/announcement"
	"github.com/JeremyFirst/Ds-Bot-2.0/internal/shared"
)

// Synchronizer is the announcement surface used by the repairer.
type Synchronizer interface {
	Tracked(ctx context.Context) ([]announcement.Record, error)
	Repair(ctx context.Context, guildID, channelID string) (announcement.RepairAction, error)
}

// ChannelResolver returns the guild owning a channel, or an error wrapping
// shared.ErrNotFound when the channel no longer exists.
type ChannelResolver interface {
	ChannelGuild(ctx context.Context, channelID string) (string, error)
}

// Observer records per-channel repair results.
type Observer interface {
	ObserveRepair(result string)
}

const resultFailed = "failed"

// Summary counts what one pass did.
type Summary struct {
	Refreshed int
	Recreated int
	Skipped   int
	Failed    int
}

// Repairer walks all known announcement channels.
type Repairer struct {
	sync     Synchronizer
	channels ChannelResolver
	observer Observer
	logger   *slog.Logger
	flight   singleflight.Group
}

// NewRepairer builds Repairer. Only channels with a tracked announcement are
// visited; a channel without a record is created on demand by /staff.
func NewRepairer(sync Synchronizer, channels ChannelResolver, observer Observer, logger *slog.Logger) *Repairer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repairer{sync: sync, channels: channels, observer: observer, logger: logger}
}

// RepairAll runs one pass. Overlapping callers share the pass in flight.
// Per-channel failures are counted and logged, never returned.
func (r *Repairer) RepairAll(ctx context.Context) (Summary, error) {
	v, err, _ := r.flight.Do("repair", func() (any, error) {
		return r.repairAll(ctx)
	})
	if err != nil {
		return Summary{}, err
	}
	return v.(Summary), nil
}

func (r *Repairer) repairAll(ctx context.Context) (Summary, error) {
	records, err := r.sync.Tracked(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("repair: list tracked: %w", err)
	}
	channels := make([]string, 0, len(records))
	seen := make(map[string]bool)
	for _, rec := range records {
		if !seen[rec.ChannelID] {
			seen[rec.ChannelID] = true
			channels = append(channels, rec.ChannelID)
		}
	}

	var sum Summary
	for _, channelID := range channels {
		if ctx.Err() != nil {
			return sum, ctx.Err()
		}
		result := r.repairChannel(ctx, channelID)
		switch result {
		case string(announcement.RepairRefreshed):
			sum.Refreshed++
		case string(announcement.RepairRecreated):
			sum.Recreated++
		case string(announcement.RepairSkipped):
			sum.Skipped++
		default:
			sum.Failed++
		}
		if r.observer != nil {
			r.observer.ObserveRepair(result)
		}
	}
	r.logger.Info("announcement repair pass finished",
		slog.Int("refreshed", sum.Refreshed),
		slog.Int("recreated", sum.Recreated),
		slog.Int("skipped", sum.Skipped),
		slog.Int("failed", sum.Failed),
	)
	return sum, nil
}

func (r *Repairer) repairChannel(ctx context.Context, channelID string) string {
	guildID, err := r.channels.ChannelGuild(ctx, channelID)
	if errors.Is(err, shared.ErrNotFound) {
		return string(announcement.RepairSkipped)
	}
	if err != nil {
		r.logger.Warn("resolve announcement channel failed", slog.String("channel_id", channelID), slog.Any("error", err))
		return resultFailed
	}
	action, err := r.sync.Repair(ctx, guildID, channelID)
	if err != nil {
		r.logger.Error("announcement repair failed",
			slog.String("guild_id", guildID),
			slog.String("channel_id", channelID),
			slog.String("action", string(action)),
			slog.Any("error", err),
		)
		return resultFailed
	}
	return string(action)
}
