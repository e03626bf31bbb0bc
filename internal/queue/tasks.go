package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/optipress/optipress/internal/domain"
)

const TypeCompressBatch = "batch:compress"

type CompressBatchPayload struct {
	BatchID     string                 `json:"batch_id"`
	WebhookURL  string                 `json:"webhook_url,omitempty"`
	Options     domain.CompressOptions `json:"options"`
	Records     []domain.Record        `json:"records"`
	RequestedAt time.Time              `json:"requested_at"`
}

func NewCompressBatchTask(payload CompressBatchPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal compress payload: %w", err)
	}
	return asynq.NewTask(TypeCompressBatch, body), nil
}

func ParseCompressBatchPayload(task *asynq.Task) (CompressBatchPayload, error) {
	var payload CompressBatchPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return CompressBatchPayload{}, fmt.Errorf("unmarshal compress payload: %w", err)
	}
	return payload, nil
}
