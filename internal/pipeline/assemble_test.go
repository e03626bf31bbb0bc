package pipeline

import "testing"

func TestPercentReduction(t *testing.T) {
	cases := []struct {
		original int64
		newSize  int64
		want     float64
	}{
		{1000, 600, 40},
		{1000, 1000, 0},
		{1000, 1500, -50},
		{0, 500, 0},
		{0, 0, 0},
		{4, 3, 25},
	}
	for _, tc := range cases {
		if got := PercentReduction(tc.original, tc.newSize); got != tc.want {
			t.Fatalf("PercentReduction(%d, %d): expected %v, got %v", tc.original, tc.newSize, tc.want, got)
		}
	}
}

func TestOutputFileName(t *testing.T) {
	cases := []struct {
		source string
		format string
		want   string
	}{
		{"photo.tiff", "png", "photo.png"},
		{"photo.jpeg", "jpeg", "photo.jpg"},
		{"input", "avif", "input.avif"},
		{"archive.tar.gz", "webp", "archive.tar.webp"},
		{"", "jpeg", "image.jpg"},
		{"uploads/cat.png", "png", "cat.png"},
	}
	for _, tc := range cases {
		if got := OutputFileName(tc.source, tc.format); got != tc.want {
			t.Fatalf("OutputFileName(%q, %q): expected %q, got %q", tc.source, tc.format, tc.want, got)
		}
	}
}

func TestFormatExtension(t *testing.T) {
	for format, want := range map[string]string{
		"jpeg": "jpg",
		"jpg":  "jpg",
		"png":  "png",
		"webp": "webp",
		"avif": "avif",
		"":     "bin",
	} {
		if got := FormatExtension(format); got != want {
			t.Fatalf("FormatExtension(%q): expected %q, got %q", format, want, got)
		}
	}
}

func TestContentTypeForFormat(t *testing.T) {
	for format, want := range map[string]string{
		"jpeg":  "image/jpeg",
		"jpg":   "image/jpeg",
		"png":   "image/png",
		"webp":  "image/webp",
		"avif":  "image/avif",
		"weird": "application/octet-stream",
	} {
		if got := ContentTypeForFormat(format); got != want {
			t.Fatalf("ContentTypeForFormat(%q): expected %q, got %q", format, want, got)
		}
	}
}

func TestAssemble(t *testing.T) {
	input := ImageInput{Bytes: make([]byte, 1000), SourceName: "holiday.png"}
	encoded := make([]byte, 250)

	res := Assemble(input, encoded, "jpg", 320, 240)

	if res.FileName != "holiday.jpg" {
		t.Fatalf("expected holiday.jpg, got %q", res.FileName)
	}
	if res.ContentType != "image/jpeg" {
		t.Fatalf("expected image/jpeg, got %q", res.ContentType)
	}
	if res.Width != 320 || res.Height != 240 {
		t.Fatalf("expected 320x240, got %dx%d", res.Width, res.Height)
	}
	if res.Summary.OriginalSize != 1000 || res.Summary.NewSize != 250 {
		t.Fatalf("unexpected sizes: %+v", res.Summary)
	}
	if res.Summary.PercentReduction != 75 {
		t.Fatalf("expected 75%% reduction, got %v", res.Summary.PercentReduction)
	}
	if res.Summary.Format != "jpeg" {
		t.Fatalf("expected normalized format jpeg, got %q", res.Summary.Format)
	}
}
