//go:build govips && cgo

package codec

import (
	"context"
	"fmt"

	"github.com/davidbyttow/govips/v2/vips"
)

type vipsCodec struct{}

func (vipsCodec) Supports(format string) bool {
	switch NormalizeFormat(format) {
	case "jpeg", "png", "webp", "avif":
		return true
	default:
		return false
	}
}

func (vipsCodec) Transform(ctx context.Context, input []byte, resize ResizeParams, enc EncodeParams) ([]byte, int, int, error) {
	select {
	case <-ctx.Done():
		return nil, 0, 0, ctx.Err()
	default:
	}

	img, err := vips.NewImageFromBuffer(input)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	defer img.Close()

	// AutoRotate applies the EXIF orientation and removes the tag so the
	// output cannot be rotated a second time downstream.
	if err := img.AutoRotate(); err != nil {
		return nil, 0, 0, fmt.Errorf("auto-orient image: %w", err)
	}

	if resize.Width > 0 || resize.Height > 0 {
		if err := resizeVips(img, resize); err != nil {
			return nil, 0, 0, err
		}
	}

	data, err := exportVips(img, enc)
	if err != nil {
		return nil, 0, 0, err
	}

	return data, img.Width(), img.Height(), nil
}

func resizeVips(img *vips.ImageRef, p ResizeParams) error {
	srcW, srcH := img.Width(), img.Height()
	if srcW <= 0 || srcH <= 0 {
		return fmt.Errorf("source image has invalid dimensions")
	}

	w, h := targetSize(srcW, srcH, p)
	if w == srcW && h == srcH {
		return nil
	}

	hscale := float64(w) / float64(srcW)
	vscale := float64(h) / float64(srcH)
	if err := img.ResizeWithVScale(hscale, vscale, vips.KernelLanczos3); err != nil {
		return fmt.Errorf("resize image: %w", err)
	}
	return nil
}

func exportVips(img *vips.ImageRef, enc EncodeParams) ([]byte, error) {
	strip := !enc.KeepMetadata
	quality := enc.Quality
	if quality < 1 {
		quality = 1
	}

	switch NormalizeFormat(enc.Format) {
	case "jpeg":
		params := vips.NewJpegExportParams()
		params.Quality = quality
		params.StripMetadata = strip
		// mozjpeg switches; no-ops when libvips is built without mozjpeg.
		params.Interlace = true
		params.OptimizeCoding = true
		params.TrellisQuant = true
		params.OvershootDeringing = true
		params.OptimizeScans = true
		params.QuantTable = 3
		data, _, err := img.ExportJpeg(params)
		if err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
		return data, nil
	case "png":
		params := vips.NewPngExportParams()
		params.Compression = enc.PNGCompression
		params.StripMetadata = strip
		data, _, err := img.ExportPng(params)
		if err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
		return data, nil
	case "webp":
		params := vips.NewWebpExportParams()
		params.Quality = quality
		params.StripMetadata = strip
		data, _, err := img.ExportWebp(params)
		if err != nil {
			return nil, fmt.Errorf("encode webp: %w", err)
		}
		return data, nil
	case "avif":
		params := vips.NewAvifExportParams()
		params.Quality = quality
		params.StripMetadata = strip
		data, _, err := img.ExportAvif(params)
		if err != nil {
			return nil, fmt.Errorf("encode avif: %w", err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, enc.Format)
	}
}
