package store

import (
	"context"

	"github.com/optipress/optipress/internal/domain"
)

type BatchStore interface {
	Create(ctx context.Context, batch domain.Batch) error
	Get(ctx context.Context, id string) (domain.Batch, bool, error)
	UpdateStatus(ctx context.Context, id, status string) (domain.Batch, error)
	SaveSummary(ctx context.Context, id, status string, summary domain.BatchSummary) (domain.Batch, error)
}
