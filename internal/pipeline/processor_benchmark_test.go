package pipeline

import (
	"context"
	"fmt"
	"testing"

	"github.com/optipress/optipress/internal/domain"
)

type staticFetcher struct {
	data []byte
}

func (f staticFetcher) FetchPayload(_ context.Context, _ domain.BinaryRef) ([]byte, error) {
	return f.data, nil
}

type discardSink struct{}

func (discardSink) StorePayload(_ context.Context, _ string, _ []byte, _ string) error {
	return nil
}

func BenchmarkProcessorCompressBatch(b *testing.B) {
	source := buildTestPNG(b, 1920, 1080)
	processor, err := NewProcessor(staticFetcher{data: source}, discardSink{}, "outputs")
	if err != nil {
		b.Fatalf("new processor: %v", err)
	}

	quality := 82
	opts := domain.CompressOptions{
		InputMode: domain.InputModeBinary,
		Format:    domain.FormatJPEG,
		Quality:   &quality,
		Resize:    domain.ResizeSpec{Width: 640},
	}
	opts.Normalize()

	records := []domain.Record{
		{Binary: map[string]domain.BinaryRef{"data": {ObjectKey: "ignored.png", FileName: "bench.png"}}},
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := processor.Process(context.Background(), fmt.Sprintf("bench-%d", i), opts, records); err != nil {
			b.Fatalf("process: %v", err)
		}
	}
}
