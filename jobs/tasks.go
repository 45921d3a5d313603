package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskAnnouncementRepair runs one announcement repair pass.
	TaskAnnouncementRepair = "announcement:repair"
)

// RepairPayload describes why a repair pass was requested.
type RepairPayload struct {
	Reason string `json:"reason"`
}

// NewAnnouncementRepairTask constructs an Asynq task.
func NewAnnouncementRepairTask(reason string) (*asynq.Task, error) {
	data, err := json.Marshal(RepairPayload{Reason: reason})
	if err != nil {
		return nil, fmt.Errorf("jobs: encode repair payload: %w", err)
	}
	return asynq.NewTask(TaskAnnouncementRepair, data), nil
}
