package pipeline

import (
	"errors"

	"github.com/optipress/optipress/internal/codec"
)

var (
	ErrMissingInput = errors.New("missing input payload")
	ErrSizeExceeded = errors.New("input size exceeded")
	ErrTransform    = errors.New("transform image")
)

// ErrorKind buckets per-record failures for output records and metric labels.
type ErrorKind string

const (
	KindMissingInput    ErrorKind = "missing_input"
	KindSizeExceeded    ErrorKind = "size_exceeded"
	KindDecodeFailed    ErrorKind = "decode_failed"
	KindTransformFailed ErrorKind = "transform_failed"
)

// Classify maps a record failure onto its kind. Anything unrecognized counts
// as a transform failure, the broadest bucket.
func Classify(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrMissingInput):
		return KindMissingInput
	case errors.Is(err, ErrSizeExceeded):
		return KindSizeExceeded
	case errors.Is(err, codec.ErrDecode):
		return KindDecodeFailed
	default:
		return KindTransformFailed
	}
}
