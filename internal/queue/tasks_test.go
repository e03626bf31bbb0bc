package queue

import (
	"testing"
	"time"

	"github.com/optipress/optipress/internal/domain"
)

func TestCompressBatchTaskRoundTrip(t *testing.T) {
	quality := 70
	payload := CompressBatchPayload{
		BatchID:    "batch-123",
		WebhookURL: "https://example.com/hooks/optipress",
		Options: domain.CompressOptions{
			InputMode:  domain.InputModeBinary,
			BinarySlot: "data",
			Format:     domain.FormatWebP,
			Quality:    &quality,
			Resize:     domain.ResizeSpec{Width: 1280},
		},
		Records: []domain.Record{
			{
				Data:   map[string]any{"id": "r0"},
				Binary: map[string]domain.BinaryRef{"data": {ObjectKey: "uploads/batch-123/0/data"}},
			},
		},
		RequestedAt: time.Now().UTC(),
	}

	task, err := NewCompressBatchTask(payload)
	if err != nil {
		t.Fatalf("NewCompressBatchTask returned error: %v", err)
	}
	if task.Type() != TypeCompressBatch {
		t.Fatalf("expected task type %q, got %q", TypeCompressBatch, task.Type())
	}

	parsed, err := ParseCompressBatchPayload(task)
	if err != nil {
		t.Fatalf("ParseCompressBatchPayload returned error: %v", err)
	}

	if parsed.BatchID != payload.BatchID {
		t.Fatalf("expected batch_id %q, got %q", payload.BatchID, parsed.BatchID)
	}
	if parsed.Options.Format != domain.FormatWebP {
		t.Fatalf("expected format webp, got %q", parsed.Options.Format)
	}
	if parsed.Options.Quality == nil || *parsed.Options.Quality != quality {
		t.Fatalf("expected quality %d to survive the round trip, got %v", quality, parsed.Options.Quality)
	}
	if len(parsed.Records) != 1 {
		t.Fatalf("expected one record, got %d", len(parsed.Records))
	}
	if parsed.Records[0].Binary["data"].ObjectKey != "uploads/batch-123/0/data" {
		t.Fatalf("unexpected binary ref: %+v", parsed.Records[0].Binary)
	}
}

func TestParseCompressBatchPayloadOmittedQualityStaysNil(t *testing.T) {
	task, err := NewCompressBatchTask(CompressBatchPayload{
		BatchID: "batch-q",
		Options: domain.CompressOptions{InputMode: domain.InputModeBase64, Format: domain.FormatJPEG},
	})
	if err != nil {
		t.Fatalf("NewCompressBatchTask returned error: %v", err)
	}

	parsed, err := ParseCompressBatchPayload(task)
	if err != nil {
		t.Fatalf("ParseCompressBatchPayload returned error: %v", err)
	}
	if parsed.Options.Quality != nil {
		t.Fatalf("expected omitted quality to stay nil, got %d", *parsed.Options.Quality)
	}
	if parsed.Options.QualityValue() != domain.DefaultQuality {
		t.Fatalf("expected default quality %d, got %d", domain.DefaultQuality, parsed.Options.QualityValue())
	}
}
