package pipeline

import (
	"math"

	"github.com/optipress/optipress/internal/codec"
	"github.com/optipress/optipress/internal/domain"
)

// ClampQuality bounds a caller-supplied quality to the unified 0-100 scale.
func ClampQuality(quality int) int {
	if quality < 0 {
		return 0
	}
	if quality > 100 {
		return 100
	}
	return quality
}

// PNGCompressionLevel maps quality onto the png encoder's 0-9 compression
// effort. The scale inverts: quality 100 is level 0 (fast, large), quality 0
// is level 9 (slow, small). Ties round away from zero, so quality 50 lands on
// level 5.
func PNGCompressionLevel(quality int) int {
	return int(math.Round(float64(100-ClampQuality(quality)) * 9 / 100))
}

// EncodeParamsFor resolves the encoder parameters one batch applies to every
// record. Jpeg, webp and avif take the clamped quality directly; png derives
// its compression level from it.
func EncodeParamsFor(opts domain.CompressOptions) codec.EncodeParams {
	quality := ClampQuality(opts.QualityValue())
	return codec.EncodeParams{
		Format:         codec.NormalizeFormat(opts.Format),
		Quality:        quality,
		PNGCompression: PNGCompressionLevel(quality),
		KeepMetadata:   opts.KeepMetadata,
	}
}
