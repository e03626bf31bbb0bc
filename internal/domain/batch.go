package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	BatchStatusCreated    = "created"
	BatchStatusQueued     = "queued"
	BatchStatusProcessing = "processing"
	BatchStatusSucceeded  = "succeeded"
	BatchStatusPartial    = "partial"
	BatchStatusFailed     = "failed"

	InputModeBinary = "binary"
	InputModeBase64 = "base64"

	FormatJPEG = "jpeg"
	FormatPNG  = "png"
	FormatWebP = "webp"
	FormatAVIF = "avif"

	DefaultSlotName   = "data"
	DefaultQuality    = 80
	DefaultMaxInputMB = 32
	MinMaxInputMB     = 1
	MaxMaxInputMB     = 512
)

// BinaryRef points at a payload held in the object store. Records never carry
// raw bytes through the queue; the worker resolves refs on demand.
type BinaryRef struct {
	ObjectKey string `json:"object_key"`
	FileName  string `json:"file_name,omitempty"`
	MimeType  string `json:"mime_type,omitempty"`
	SizeBytes int64  `json:"size_bytes,omitempty"`
}

// Record is one item of a batch: arbitrary structured data plus named binary
// slots. Output records reuse the same shape.
type Record struct {
	Data   map[string]any       `json:"data,omitempty"`
	Binary map[string]BinaryRef `json:"binary,omitempty"`
}

// ResizeSpec describes the optional resize stage. Zero width and height means
// no resize. The zero value of IgnoreAspectRatio keeps the aspect ratio, which
// is the default fit policy (bounding box, never upscaling). AllowEnlarge
// lifts the no-upscale rule for exact-size targets.
type ResizeSpec struct {
	Width             int  `json:"width,omitempty"`
	Height            int  `json:"height,omitempty"`
	IgnoreAspectRatio bool `json:"ignore_aspect_ratio,omitempty"`
	AllowEnlarge      bool `json:"allow_enlarge,omitempty"`
}

func (r ResizeSpec) Requested() bool {
	return r.Width > 0 || r.Height > 0
}

// CompressOptions is the flat per-batch configuration. One options struct
// applies to every record of the batch. The zero value of KeepMetadata strips
// embedded metadata, which is the default encode path.
type CompressOptions struct {
	InputMode         string     `json:"input_mode"`
	BinarySlot        string     `json:"binary_slot,omitempty"`
	Base64Field       string     `json:"base64_field,omitempty"`
	OutputSlot        string     `json:"output_slot,omitempty"`
	Format            string     `json:"format"`
	Quality           *int       `json:"quality,omitempty"`
	KeepMetadata      bool       `json:"keep_metadata,omitempty"`
	Resize            ResizeSpec `json:"resize,omitempty"`
	MaxInputMB        int        `json:"max_input_mb,omitempty"`
	ContinueOnFailure bool       `json:"continue_on_failure,omitempty"`
}

// QualityValue resolves the effective quality, defaulting when the caller
// omitted it. An explicit 0 is honored.
func (o CompressOptions) QualityValue() int {
	if o.Quality == nil {
		return DefaultQuality
	}
	return *o.Quality
}

// Normalize fills defaulted fields in place. Call after Validate.
func (o *CompressOptions) Normalize() {
	o.InputMode = strings.ToLower(strings.TrimSpace(o.InputMode))
	o.Format = strings.ToLower(strings.TrimSpace(o.Format))
	if strings.TrimSpace(o.BinarySlot) == "" {
		o.BinarySlot = DefaultSlotName
	}
	if strings.TrimSpace(o.Base64Field) == "" {
		o.Base64Field = DefaultSlotName
	}
	if strings.TrimSpace(o.OutputSlot) == "" {
		o.OutputSlot = DefaultSlotName
	}
	if o.MaxInputMB == 0 {
		o.MaxInputMB = DefaultMaxInputMB
	}
}

func (o CompressOptions) Validate() error {
	mode := strings.ToLower(strings.TrimSpace(o.InputMode))
	if mode == "" {
		return errors.New("input_mode is required")
	}
	if mode != InputModeBinary && mode != InputModeBase64 {
		return fmt.Errorf("unsupported input_mode: %s", o.InputMode)
	}
	if !ValidFormat(o.Format) {
		return fmt.Errorf("unsupported format: %s", o.Format)
	}
	if o.MaxInputMB != 0 && (o.MaxInputMB < MinMaxInputMB || o.MaxInputMB > MaxMaxInputMB) {
		return fmt.Errorf("max_input_mb must be between %d and %d", MinMaxInputMB, MaxMaxInputMB)
	}
	if o.Resize.Width < 0 {
		return errors.New("resize.width must not be negative")
	}
	if o.Resize.Height < 0 {
		return errors.New("resize.height must not be negative")
	}
	return nil
}

func ValidFormat(format string) bool {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case FormatJPEG, FormatPNG, FormatWebP, FormatAVIF:
		return true
	default:
		return false
	}
}

// CreateBatchRequest is the intake payload. Records arrive in processing
// order; in binary mode their refs may omit object keys, in which case the
// API assigns upload keys and returns presigned PUT URLs.
type CreateBatchRequest struct {
	WebhookURL string          `json:"webhook_url,omitempty"`
	Options    CompressOptions `json:"options"`
	Records    []Record        `json:"records"`
}

func (r CreateBatchRequest) Validate() error {
	if err := r.Options.Validate(); err != nil {
		return err
	}
	if len(r.Records) == 0 {
		return errors.New("batch must contain at least one record")
	}
	return nil
}

// CompressionSummary is merged into each successful output record under the
// "compression" key. Field names are part of the host contract and stay
// camelCase regardless of the snake_case used elsewhere on the wire.
type CompressionSummary struct {
	OriginalSize     int64   `json:"originalSize"`
	NewSize          int64   `json:"newSize"`
	PercentReduction float64 `json:"percentReduction"`
	Format           string  `json:"format"`
}

type BatchSummary struct {
	Records      int      `json:"records"`
	Succeeded    int      `json:"succeeded"`
	Failed       int      `json:"failed"`
	BytesIn      int64    `json:"bytes_in"`
	BytesOut     int64    `json:"bytes_out"`
	PercentSaved float64  `json:"percent_saved"`
	Outputs      []Record `json:"outputs"`
}

type Batch struct {
	ID         string
	Status     string
	WebhookURL string
	Options    CompressOptions
	Records    []Record
	Summary    *BatchSummary
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
