//go:build !govips || !cgo

package codec

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

func buildTestPNG(t *testing.T, width, height int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: uint8((x + y) % 256), A: 255})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode test png: %v", err)
	}
	return buf.Bytes()
}

func TestStdCodecTransformToJPEG(t *testing.T) {
	input := buildTestPNG(t, 64, 48)

	out, w, h, err := New().Transform(context.Background(), input, ResizeParams{}, EncodeParams{Format: "jpeg", Quality: 80})
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	if w != 64 || h != 48 {
		t.Fatalf("expected 64x48 output, got %dx%d", w, h)
	}

	decoded, err := jpeg.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if b := decoded.Bounds(); b.Dx() != 64 || b.Dy() != 48 {
		t.Fatalf("expected 64x48 jpeg, got %dx%d", b.Dx(), b.Dy())
	}
}

func TestStdCodecTransformResizes(t *testing.T) {
	input := buildTestPNG(t, 400, 300)

	out, w, h, err := New().Transform(context.Background(), input, ResizeParams{Width: 200, Height: 200}, EncodeParams{Format: "png", PNGCompression: 6})
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	if w != 200 || h != 150 {
		t.Fatalf("expected 200x150 output, got %dx%d", w, h)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode output config: %v", err)
	}
	if format != "png" {
		t.Fatalf("expected png output, got %q", format)
	}
	if cfg.Width != 200 || cfg.Height != 150 {
		t.Fatalf("expected 200x150 png, got %dx%d", cfg.Width, cfg.Height)
	}
}

func TestStdCodecPNGCompressionShrinks(t *testing.T) {
	input := buildTestPNG(t, 128, 128)

	raw, _, _, err := New().Transform(context.Background(), input, ResizeParams{}, EncodeParams{Format: "png", PNGCompression: 0})
	if err != nil {
		t.Fatalf("transform level 0: %v", err)
	}
	packed, _, _, err := New().Transform(context.Background(), input, ResizeParams{}, EncodeParams{Format: "png", PNGCompression: 9})
	if err != nil {
		t.Fatalf("transform level 9: %v", err)
	}
	if len(packed) >= len(raw) {
		t.Fatalf("expected level 9 output smaller than level 0, got %d >= %d", len(packed), len(raw))
	}
}

func TestStdCodecUnsupportedOutput(t *testing.T) {
	input := buildTestPNG(t, 8, 8)

	for _, format := range []string{"webp", "avif"} {
		_, _, _, err := New().Transform(context.Background(), input, ResizeParams{}, EncodeParams{Format: format, Quality: 80})
		if !errors.Is(err, ErrUnsupportedFormat) {
			t.Fatalf("format %q: expected ErrUnsupportedFormat, got %v", format, err)
		}
	}
}

func TestStdCodecDecodeFailure(t *testing.T) {
	_, _, _, err := New().Transform(context.Background(), []byte("not an image"), ResizeParams{}, EncodeParams{Format: "jpeg", Quality: 80})
	if !errors.Is(err, ErrDecode) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}
}

func TestStdCodecHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, _, err := New().Transform(ctx, buildTestPNG(t, 8, 8), ResizeParams{}, EncodeParams{Format: "jpeg", Quality: 80})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestStdCodecSupports(t *testing.T) {
	codec := New()
	for format, want := range map[string]bool{
		"jpeg": true,
		"jpg":  true,
		"png":  true,
		"webp": false,
		"avif": false,
		"":     false,
	} {
		if got := codec.Supports(format); got != want {
			t.Fatalf("Supports(%q): expected %v, got %v", format, want, got)
		}
	}
}
