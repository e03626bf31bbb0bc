package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/optipress/optipress/internal/codec"
	"github.com/optipress/optipress/internal/domain"
)

// PayloadSink stores one output payload under the given key.
type PayloadSink interface {
	StorePayload(ctx context.Context, objectKey string, data []byte, contentType string) error
}

// RecordOutcome is the per-record success-or-error result. Successful
// outcomes carry the compression summary and final pixel dimensions; failed
// ones carry the classified kind and keep the original payload untouched.
type RecordOutcome struct {
	Index       int
	Record      domain.Record
	Compression *domain.CompressionSummary
	Width       int
	Height      int
	Kind        ErrorKind
	Message     string
}

func (o RecordOutcome) Failed() bool {
	return o.Kind != ""
}

// BatchResult aggregates outcomes in input order. In fail-fast mode it holds
// whatever succeeded before the batch aborted.
type BatchResult struct {
	Outcomes []RecordOutcome
}

// Summarize folds the outcomes into batch-level numbers. Byte totals count
// successful records only.
func (r BatchResult) Summarize() domain.BatchSummary {
	summary := domain.BatchSummary{
		Records: len(r.Outcomes),
		Outputs: make([]domain.Record, 0, len(r.Outcomes)),
	}
	for _, outcome := range r.Outcomes {
		summary.Outputs = append(summary.Outputs, outcome.Record)
		if outcome.Failed() {
			summary.Failed++
			continue
		}
		summary.Succeeded++
		if outcome.Compression != nil {
			summary.BytesIn += outcome.Compression.OriginalSize
			summary.BytesOut += outcome.Compression.NewSize
		}
	}
	summary.PercentSaved = PercentReduction(summary.BytesIn, summary.BytesOut)
	return summary
}

// Processor drives the per-record flow: resolve input, guard size, transform,
// assemble, store. Records run strictly one at a time in input order.
type Processor struct {
	codec        codec.Codec
	fetcher      PayloadFetcher
	sink         PayloadSink
	outputPrefix string
}

func NewProcessor(fetcher PayloadFetcher, sink PayloadSink, outputPrefix string) (*Processor, error) {
	if fetcher == nil {
		return nil, errors.New("payload fetcher is required")
	}
	if sink == nil {
		return nil, errors.New("payload sink is required")
	}

	return &Processor{
		codec:        codec.New(),
		fetcher:      fetcher,
		sink:         sink,
		outputPrefix: defaultOutputPrefix(outputPrefix),
	}, nil
}

// Supports reports whether the active codec build can encode the format.
func (p *Processor) Supports(format string) bool {
	return p.codec.Supports(format)
}

// Process runs the batch. With ContinueOnFailure set, failing records become
// error-describing outcomes and the batch keeps going; otherwise the first
// failure aborts the remaining queue and surfaces as the returned error,
// leaving the outcomes produced so far in the result.
func (p *Processor) Process(ctx context.Context, batchID string, opts domain.CompressOptions, records []domain.Record) (BatchResult, error) {
	if strings.TrimSpace(batchID) == "" {
		return BatchResult{}, errors.New("batch id is required")
	}
	if len(records) == 0 {
		return BatchResult{}, errors.New("batch must contain at least one record")
	}
	format := codec.NormalizeFormat(opts.Format)
	if format == "" || !p.codec.Supports(format) {
		return BatchResult{}, fmt.Errorf("%w: %s", codec.ErrUnsupportedFormat, opts.Format)
	}

	enc := EncodeParamsFor(opts)
	resize := resizeParams(opts.Resize)

	result := BatchResult{Outcomes: make([]RecordOutcome, 0, len(records))}
	for idx, record := range records {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		outcome, err := p.processRecord(ctx, batchID, idx, record, opts, resize, enc)
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			if !opts.ContinueOnFailure {
				return result, fmt.Errorf("record %d: %w", idx, err)
			}
			result.Outcomes = append(result.Outcomes, failureOutcome(idx, record, err))
			continue
		}
		result.Outcomes = append(result.Outcomes, outcome)
	}

	return result, nil
}

func (p *Processor) processRecord(ctx context.Context, batchID string, index int, record domain.Record, opts domain.CompressOptions, resize codec.ResizeParams, enc codec.EncodeParams) (RecordOutcome, error) {
	input, err := Resolve(ctx, p.fetcher, record, opts)
	if err != nil {
		return RecordOutcome{}, err
	}

	if err := CheckSize(int64(len(input.Bytes)), float64(opts.MaxInputMB)); err != nil {
		return RecordOutcome{}, err
	}

	data, width, height, err := p.codec.Transform(ctx, input.Bytes, resize, enc)
	if err != nil {
		if errors.Is(err, codec.ErrDecode) {
			return RecordOutcome{}, err
		}
		return RecordOutcome{}, fmt.Errorf("%w: %v", ErrTransform, err)
	}

	assembled := Assemble(input, data, enc.Format, width, height)
	objectKey := outputKey(p.outputPrefix, batchID, index, assembled.FileName)
	if err := p.sink.StorePayload(ctx, objectKey, assembled.Bytes, assembled.ContentType); err != nil {
		return RecordOutcome{}, fmt.Errorf("store output %s: %w", objectKey, err)
	}

	out := domain.Record{Data: cloneData(record.Data), Binary: cloneBinary(record.Binary)}
	out.Data["compression"] = assembled.Summary
	out.Binary[opts.OutputSlot] = domain.BinaryRef{
		ObjectKey: objectKey,
		FileName:  assembled.FileName,
		MimeType:  assembled.ContentType,
		SizeBytes: int64(len(assembled.Bytes)),
	}

	return RecordOutcome{
		Index:       index,
		Record:      out,
		Compression: &assembled.Summary,
		Width:       assembled.Width,
		Height:      assembled.Height,
	}, nil
}

// failureOutcome turns an error into an output record that keeps the original
// payload and describes what went wrong.
func failureOutcome(index int, original domain.Record, err error) RecordOutcome {
	kind := Classify(err)
	out := domain.Record{Data: cloneData(original.Data), Binary: cloneBinary(original.Binary)}
	out.Data["error"] = err.Error()
	out.Data["errorKind"] = string(kind)

	return RecordOutcome{
		Index:   index,
		Record:  out,
		Kind:    kind,
		Message: err.Error(),
	}
}

func resizeParams(spec domain.ResizeSpec) codec.ResizeParams {
	return codec.ResizeParams{
		Width:        spec.Width,
		Height:       spec.Height,
		Exact:        spec.IgnoreAspectRatio,
		AllowEnlarge: spec.AllowEnlarge,
	}
}

func outputKey(prefix, batchID string, index int, fileName string) string {
	return path.Join(
		defaultOutputPrefix(prefix),
		sanitizePathToken(batchID),
		fmt.Sprintf("%d-%s", index, sanitizeFileName(fileName)),
	)
}

func defaultOutputPrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return "outputs"
	}
	return prefix
}

// sanitizeFileName keeps the extension separator while scrubbing the base
// name, so derived keys stay browsable in the bucket.
func sanitizeFileName(name string) string {
	ext := path.Ext(name)
	base := strings.TrimSuffix(name, ext)
	if ext == "" {
		return sanitizePathToken(base)
	}
	return sanitizePathToken(base) + ext
}

func sanitizePathToken(in string) string {
	in = strings.TrimSpace(in)
	if in == "" {
		return "unknown"
	}

	var b strings.Builder
	b.Grow(len(in))
	for _, r := range in {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

func cloneData(in map[string]any) map[string]any {
	out := make(map[string]any, len(in)+2)
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneBinary(in map[string]domain.BinaryRef) map[string]domain.BinaryRef {
	out := make(map[string]domain.BinaryRef, len(in)+1)
	for k, v := range in {
		out[k] = v
	}
	return out
}
