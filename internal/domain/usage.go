package domain

import "time"

// UsageLog is one accounting row per finished batch: how much work the
// workers did and how many bytes the compression saved.
type UsageLog struct {
	BatchID          string
	RecordsProcessed int64
	PixelsProcessed  int64
	BytesSaved       int64
	ComputeTimeMS    int64
	CreatedAt        time.Time
}
