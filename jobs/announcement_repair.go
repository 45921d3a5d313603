package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/JeremyFirst/Ds-Bot-2.0/internal/jobs"
	"github.com/JeremyFirst/Ds-Bot-2.0/internal/repair"
)

// RepairRunner runs one pass over every tracked announcement.
type RepairRunner interface {
	RepairAll(ctx context.Context) (repair.Summary, error)
}

// AnnouncementRepairJob handles TaskAnnouncementRepair.
type AnnouncementRepairJob struct {
	Repairer RepairRunner
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewAnnouncementRepairJob wires dependencies for the repair handler.
func NewAnnouncementRepairJob(repairer RepairRunner, logger *slog.Logger, metrics *jobmetrics.Metrics) *AnnouncementRepairJob {
	return &AnnouncementRepairJob{Repairer: repairer, Logger: logger, Metrics: metrics}
}

// Handle processes announcement repair tasks. Per-channel failures are part
// of the summary; only a failed listing is retried.
func (j *AnnouncementRepairJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Repairer == nil {
		return errors.New("announcement repair: handler not configured")
	}
	var payload RepairPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.Reason == "" {
		payload.Reason = "scheduled"
	}

	tracker := j.Metrics.Track(TaskAnnouncementRepair)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.String("reason", payload.Reason))
	sum, err := j.Repairer.RepairAll(ctx)
	if err != nil {
		logger.Error("announcement repair job failed", slog.Any("error", err))
		return err
	}
	logger.Info("announcement repair job completed",
		slog.Int("refreshed", sum.Refreshed),
		slog.Int("recreated", sum.Recreated),
		slog.Int("failed", sum.Failed),
	)
	return nil
}

func (j *AnnouncementRepairJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
