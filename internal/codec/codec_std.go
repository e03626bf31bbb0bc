//go:build !govips || !cgo

package codec

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// stdCodec is the pure-Go codec. It decodes jpeg/png/gif/bmp/tiff/webp and
// encodes jpeg and png only; webp and avif output need the govips build.
// The stdlib encoders carry no metadata, so this codec always strips and
// KeepMetadata is best-effort only under the govips build.
type stdCodec struct{}

func (stdCodec) Supports(format string) bool {
	switch NormalizeFormat(format) {
	case "jpeg", "png":
		return true
	default:
		return false
	}
}

func (stdCodec) Transform(ctx context.Context, input []byte, resize ResizeParams, enc EncodeParams) ([]byte, int, int, error) {
	select {
	case <-ctx.Done():
		return nil, 0, 0, ctx.Err()
	default:
	}

	// AutoOrientation applies the EXIF orientation during decode; the
	// encoders below write no EXIF, so the tag cannot rotate the image a
	// second time downstream.
	img, err := imaging.Decode(bytes.NewReader(input), imaging.AutoOrientation(true))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	if resize.Width > 0 || resize.Height > 0 {
		bounds := img.Bounds()
		w, h := targetSize(bounds.Dx(), bounds.Dy(), resize)
		if w != bounds.Dx() || h != bounds.Dy() {
			img = imaging.Resize(img, w, h, imaging.Lanczos)
		}
	}

	out, err := encodeStd(img, enc)
	if err != nil {
		return nil, 0, 0, err
	}

	final := img.Bounds()
	return out, final.Dx(), final.Dy(), nil
}

func encodeStd(img image.Image, enc EncodeParams) ([]byte, error) {
	var buf bytes.Buffer

	switch NormalizeFormat(enc.Format) {
	case "jpeg":
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: enc.Quality}); err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
	case "png":
		encoder := png.Encoder{CompressionLevel: stdPNGLevel(enc.PNGCompression)}
		if err := encoder.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
	case "webp", "avif":
		return nil, fmt.Errorf("%w: %s output requires the govips build tag", ErrUnsupportedFormat, enc.Format)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, enc.Format)
	}

	return buf.Bytes(), nil
}

// stdPNGLevel buckets the 0-9 zlib effort scale onto the four levels the
// stdlib encoder exposes. The govips codec honors the exact level.
func stdPNGLevel(level int) png.CompressionLevel {
	switch {
	case level <= 0:
		return png.NoCompression
	case level <= 3:
		return png.BestSpeed
	case level <= 6:
		return png.DefaultCompression
	default:
		return png.BestCompression
	}
}
