package pipeline

import (
	"fmt"
	"math"
)

const bytesPerMegabyte = 1 << 20

// MaxInputBytes converts the megabyte cap into a byte limit. Fractional
// megabytes are floored and the cap never drops below one megabyte.
func MaxInputBytes(maxMegabytes float64) int64 {
	mb := int64(math.Floor(maxMegabytes))
	if mb < 1 {
		mb = 1
	}
	return mb * bytesPerMegabyte
}

// CheckSize rejects oversized payloads before any decode work runs. An input
// of exactly the cap passes.
func CheckSize(byteLength int64, maxMegabytes float64) error {
	limit := MaxInputBytes(maxMegabytes)
	if byteLength > limit {
		return fmt.Errorf("%w: %d bytes over the %d byte cap", ErrSizeExceeded, byteLength, limit)
	}
	return nil
}
