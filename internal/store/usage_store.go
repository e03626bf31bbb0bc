package store

import (
	"context"

	"github.com/optipress/optipress/internal/domain"
)

// UsageStore receives one accounting row per finished batch. The postgres
// and memory batch stores both implement it, so deployments need no second
// store handle.
type UsageStore interface {
	CreateUsageLog(ctx context.Context, usage domain.UsageLog) error
}
