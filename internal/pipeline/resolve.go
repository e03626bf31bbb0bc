package pipeline

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"unicode"

	"github.com/gabriel-vasile/mimetype"

	"github.com/optipress/optipress/internal/codec"
	"github.com/optipress/optipress/internal/domain"
)

// Base64SourceName names inputs that arrive inline, where no filename exists.
const Base64SourceName = "input"

// ImageInput is a resolved payload ready for the codec. Immutable once built.
type ImageInput struct {
	Bytes      []byte
	SourceName string
	SourceMime string
}

// PayloadFetcher loads the raw bytes behind a binary ref. Implementations
// wrap absent objects in ErrMissingInput so the failure classifies correctly.
type PayloadFetcher interface {
	FetchPayload(ctx context.Context, ref domain.BinaryRef) ([]byte, error)
}

// Resolve produces the ImageInput for one record according to the configured
// input mode. Options must be normalized before calling.
func Resolve(ctx context.Context, fetcher PayloadFetcher, record domain.Record, opts domain.CompressOptions) (ImageInput, error) {
	if opts.InputMode == domain.InputModeBase64 {
		return resolveBase64(record, opts.Base64Field)
	}
	return resolveBinary(ctx, fetcher, record, opts.BinarySlot)
}

func resolveBinary(ctx context.Context, fetcher PayloadFetcher, record domain.Record, slot string) (ImageInput, error) {
	ref, ok := record.Binary[slot]
	if !ok || strings.TrimSpace(ref.ObjectKey) == "" {
		return ImageInput{}, fmt.Errorf("%w: no binary payload in slot %q", ErrMissingInput, slot)
	}

	data, err := fetcher.FetchPayload(ctx, ref)
	if err != nil {
		return ImageInput{}, fmt.Errorf("fetch payload %s: %w", ref.ObjectKey, err)
	}

	return ImageInput{
		Bytes:      data,
		SourceName: ref.FileName,
		SourceMime: sourceMime(ref.MimeType, data),
	}, nil
}

func resolveBase64(record domain.Record, field string) (ImageInput, error) {
	raw, ok := record.Data[field]
	if !ok {
		return ImageInput{}, fmt.Errorf("%w: no field %q in record data", ErrMissingInput, field)
	}
	text, ok := raw.(string)
	if !ok {
		return ImageInput{}, fmt.Errorf("%w: field %q is not text", ErrMissingInput, field)
	}

	data, err := decodeBase64Payload(text)
	if err != nil {
		return ImageInput{}, err
	}

	return ImageInput{
		Bytes:      data,
		SourceName: Base64SourceName,
		SourceMime: sourceMime("", data),
	}, nil
}

// decodeBase64Payload strips an optional data-URI prefix and interior
// whitespace, then decodes with and without padding. Anything that still
// fails is malformed input, not a transport error.
func decodeBase64Payload(text string) ([]byte, error) {
	text = stripDataURIPrefix(text)
	text = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, text)
	if text == "" {
		return nil, fmt.Errorf("%w: base64 field is empty", ErrMissingInput)
	}

	if data, err := base64.StdEncoding.DecodeString(text); err == nil {
		return data, nil
	}
	data, err := base64.RawStdEncoding.DecodeString(text)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64 payload: %v", codec.ErrDecode, err)
	}
	return data, nil
}

func stripDataURIPrefix(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "data:") {
		return trimmed
	}
	if idx := strings.IndexByte(trimmed, ','); idx >= 0 {
		return trimmed[idx+1:]
	}
	return trimmed
}

func sourceMime(declared string, data []byte) string {
	if strings.TrimSpace(declared) != "" {
		return declared
	}
	return mimetype.Detect(data).String()
}
