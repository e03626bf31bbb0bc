package codec

import (
	"context"
	"errors"
	"math"
	"strings"
)

var (
	ErrDecode            = errors.New("decode image")
	ErrUnsupportedFormat = errors.New("unsupported output format")
)

// ResizeParams is a resolved resize request. Zero Width and Height means no
// resize. Exact scales each axis independently to the given size; otherwise
// the dimensions form a bounding box and aspect ratio is preserved. Upscaling
// past the source resolution requires AllowEnlarge in either mode.
type ResizeParams struct {
	Width        int
	Height       int
	Exact        bool
	AllowEnlarge bool
}

// EncodeParams carries encoder settings for one output. Quality is already
// clamped to [0,100]; PNGCompression is the zlib effort level [0,9] derived
// from it. KeepMetadata asks the codec to retain EXIF/ICC/XMP on export.
type EncodeParams struct {
	Format         string
	Quality        int
	PNGCompression int
	KeepMetadata   bool
}

// Codec turns source bytes into encoded output bytes in one call:
// decode with EXIF auto-orientation, resize, apply the metadata policy,
// encode. It reports the final pixel dimensions alongside the output.
type Codec interface {
	Transform(ctx context.Context, input []byte, resize ResizeParams, enc EncodeParams) (data []byte, width, height int, err error)
	Supports(format string) bool
}

// NormalizeFormat canonicalizes a format name, folding the jpg alias into
// jpeg. Unknown formats return "".
func NormalizeFormat(format string) string {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "jpg", "jpeg":
		return "jpeg"
	case "png":
		return "png"
	case "webp":
		return "webp"
	case "avif":
		return "avif"
	default:
		return ""
	}
}

func targetSize(srcW, srcH int, p ResizeParams) (int, int) {
	if p.Exact {
		return exactSize(srcW, srcH, p.Width, p.Height, p.AllowEnlarge)
	}
	return fitWithin(srcW, srcH, p.Width, p.Height, p.AllowEnlarge)
}

// fitWithin scales the source to fit inside the box, preserving aspect ratio.
// A non-positive box dimension leaves that axis unbounded. Without
// allowEnlarge the scale never exceeds 1, so a source already inside the box
// keeps its dimensions.
func fitWithin(srcW, srcH, boxW, boxH int, allowEnlarge bool) (int, int) {
	scale := math.Inf(1)
	if boxW > 0 {
		scale = math.Min(scale, float64(boxW)/float64(srcW))
	}
	if boxH > 0 {
		scale = math.Min(scale, float64(boxH)/float64(srcH))
	}
	if math.IsInf(scale, 1) {
		return srcW, srcH
	}
	if !allowEnlarge && scale > 1 {
		scale = 1
	}
	if scale == 1 {
		return srcW, srcH
	}
	return scaleDim(srcW, scale), scaleDim(srcH, scale)
}

// exactSize scales each axis independently to the requested size. A missing
// axis is unconstrained: it follows the source aspect ratio, so a
// single-dimension exact request behaves as a bounding box on that axis.
func exactSize(srcW, srcH, w, h int, allowEnlarge bool) (int, int) {
	switch {
	case w <= 0 && h <= 0:
		return srcW, srcH
	case w <= 0:
		w = scaleDim(srcW, float64(h)/float64(srcH))
	case h <= 0:
		h = scaleDim(srcH, float64(w)/float64(srcW))
	}
	if !allowEnlarge {
		w = min(w, srcW)
		h = min(h, srcH)
	}
	return w, h
}

func scaleDim(dim int, scale float64) int {
	scaled := int(math.Round(float64(dim) * scale))
	if scaled < 1 {
		return 1
	}
	return scaled
}
