package pipeline

import (
	"path/filepath"
	"strings"

	"github.com/optipress/optipress/internal/codec"
	"github.com/optipress/optipress/internal/domain"
)

// CompressionResult pairs the encoded bytes with their stats and the output
// metadata derived from the source.
type CompressionResult struct {
	Bytes       []byte
	FileName    string
	ContentType string
	Width       int
	Height      int
	Summary     domain.CompressionSummary
}

// Assemble computes the compression stats for one transformed record and
// derives the output filename and MIME type.
func Assemble(input ImageInput, encoded []byte, format string, width, height int) CompressionResult {
	originalSize := int64(len(input.Bytes))
	newSize := int64(len(encoded))

	return CompressionResult{
		Bytes:       encoded,
		FileName:    OutputFileName(input.SourceName, format),
		ContentType: ContentTypeForFormat(format),
		Width:       width,
		Height:      height,
		Summary: domain.CompressionSummary{
			OriginalSize:     originalSize,
			NewSize:          newSize,
			PercentReduction: PercentReduction(originalSize, newSize),
			Format:           codec.NormalizeFormat(format),
		},
	}
}

// PercentReduction reports how much smaller the output is, negative when the
// output grew. An empty original reports zero rather than dividing by it.
func PercentReduction(originalBytes, newBytes int64) float64 {
	if originalBytes == 0 {
		return 0
	}
	return float64(originalBytes-newBytes) / float64(originalBytes) * 100
}

// OutputFileName swaps the source extension for the target format's canonical
// one. Sources without a usable name become "image".
func OutputFileName(sourceName, format string) string {
	base := strings.TrimSuffix(filepath.Base(sourceName), filepath.Ext(sourceName))
	if base == "" || base == "." {
		base = "image"
	}
	return base + "." + FormatExtension(format)
}

// FormatExtension returns the canonical file extension. Jpeg output uses jpg.
func FormatExtension(format string) string {
	switch codec.NormalizeFormat(format) {
	case domain.FormatJPEG:
		return "jpg"
	case domain.FormatPNG:
		return "png"
	case domain.FormatWebP:
		return "webp"
	case domain.FormatAVIF:
		return "avif"
	default:
		return "bin"
	}
}

// ContentTypeForFormat maps a target format onto its MIME type. Unknown
// formats fall back to the generic binary type; intake validation keeps that
// branch unreachable.
func ContentTypeForFormat(format string) string {
	switch codec.NormalizeFormat(format) {
	case domain.FormatJPEG:
		return "image/jpeg"
	case domain.FormatPNG:
		return "image/png"
	case domain.FormatWebP:
		return "image/webp"
	case domain.FormatAVIF:
		return "image/avif"
	default:
		return "application/octet-stream"
	}
}
