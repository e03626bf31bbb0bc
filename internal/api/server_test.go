package api

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hibiken/asynq"

	"github.com/optipress/optipress/internal/domain"
	"github.com/optipress/optipress/internal/queue"
	"github.com/optipress/optipress/internal/store"
)

func TestExtractBatchIDFromStartPath(t *testing.T) {
	batchID, err := extractBatchIDFromStartPath("/v1/batches/abc123/start")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if batchID != "abc123" {
		t.Fatalf("expected abc123, got %s", batchID)
	}

	if _, err := extractBatchIDFromStartPath("/v1/batches/abc123"); err == nil {
		t.Fatal("expected error for invalid path")
	}
	if _, err := extractBatchIDFromStartPath("/v1/batches//start"); err == nil {
		t.Fatal("expected error for empty batch id")
	}
}

func TestExtractBatchIDFromGetPath(t *testing.T) {
	batchID, err := extractBatchIDFromGetPath("/v1/batches/abc123")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if batchID != "abc123" {
		t.Fatalf("expected abc123, got %s", batchID)
	}

	if _, err := extractBatchIDFromGetPath("/v1/batches/abc123/start"); err == nil {
		t.Fatal("expected error for nested path")
	}
}

func TestCreateBatchAssignsUploadKeys(t *testing.T) {
	batchStore := store.NewMemoryBatchStore()
	storage := &fakeStorage{exists: true}
	s := newTestServer(t, &fakeEnqueuer{}, batchStore, storage)

	body := `{
		"options": {"input_mode": "binary", "format": "webp"},
		"records": [{"data": {"name": "first"}}]
	}`
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/batches", strings.NewReader(body)))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		BatchID string `json:"batch_id"`
		Status  string `json:"status"`
		Uploads []struct {
			Record          int    `json:"record"`
			Slot            string `json:"slot"`
			ObjectKey       string `json:"object_key"`
			PresignedPutURL string `json:"presigned_put_url"`
		} `json:"uploads"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != domain.BatchStatusCreated {
		t.Fatalf("expected status created, got %s", resp.Status)
	}
	if len(resp.Uploads) != 1 {
		t.Fatalf("expected 1 upload descriptor, got %d", len(resp.Uploads))
	}
	if resp.Uploads[0].Slot != domain.DefaultSlotName {
		t.Fatalf("expected default slot, got %s", resp.Uploads[0].Slot)
	}
	if resp.Uploads[0].PresignedPutURL == "" {
		t.Fatal("expected a presigned upload URL")
	}

	batch, ok, err := batchStore.Get(context.Background(), resp.BatchID)
	if err != nil || !ok {
		t.Fatalf("expected stored batch, ok=%v err=%v", ok, err)
	}
	ref := batch.Records[0].Binary[domain.DefaultSlotName]
	if ref.ObjectKey != resp.Uploads[0].ObjectKey {
		t.Fatalf("expected stored record to carry upload key %s, got %s", resp.Uploads[0].ObjectKey, ref.ObjectKey)
	}
}

func TestCreateBatchRejectsInvalidOptions(t *testing.T) {
	s := newTestServer(t, &fakeEnqueuer{}, store.NewMemoryBatchStore(), &fakeStorage{})

	body := `{
		"options": {"input_mode": "binary", "format": "tiff"},
		"records": [{}]
	}`
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/batches", strings.NewReader(body)))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
}

func TestStartBatchEnqueuesAndMarksQueued(t *testing.T) {
	batchStore := store.NewMemoryBatchStore()
	enqueuer := &fakeEnqueuer{}
	s := newTestServer(t, enqueuer, batchStore, &fakeStorage{exists: true})

	seedBatch(t, batchStore, "batch-1")

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/batches/batch-1/start", nil))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d: %s", rec.Code, rec.Body.String())
	}
	if enqueuer.payload.BatchID != "batch-1" {
		t.Fatalf("expected enqueued batch-1, got %q", enqueuer.payload.BatchID)
	}

	batch, _, err := batchStore.Get(context.Background(), "batch-1")
	if err != nil {
		t.Fatalf("get batch: %v", err)
	}
	if batch.Status != domain.BatchStatusQueued {
		t.Fatalf("expected status queued, got %s", batch.Status)
	}
}

func TestStartBatchMissingSourceConflicts(t *testing.T) {
	batchStore := store.NewMemoryBatchStore()
	enqueuer := &fakeEnqueuer{}
	s := newTestServer(t, enqueuer, batchStore, &fakeStorage{exists: false})

	seedBatch(t, batchStore, "batch-2")

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/batches/batch-2/start", nil))

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rec.Code)
	}
	if enqueuer.called {
		t.Fatal("expected no enqueue for a batch with missing sources")
	}
}

func TestGetBatchReturnsSummary(t *testing.T) {
	batchStore := store.NewMemoryBatchStore()
	s := newTestServer(t, &fakeEnqueuer{}, batchStore, &fakeStorage{exists: true})

	seedBatch(t, batchStore, "batch-3")
	if _, err := batchStore.SaveSummary(context.Background(), "batch-3", domain.BatchStatusSucceeded, domain.BatchSummary{
		Records:   1,
		Succeeded: 1,
	}); err != nil {
		t.Fatalf("save summary: %v", err)
	}

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/batches/batch-3", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var resp struct {
		Status  string `json:"status"`
		Summary *struct {
			Succeeded int `json:"succeeded"`
		} `json:"summary"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != domain.BatchStatusSucceeded {
		t.Fatalf("expected status succeeded, got %s", resp.Status)
	}
	if resp.Summary == nil || resp.Summary.Succeeded != 1 {
		t.Fatalf("expected summary with one success, got %+v", resp.Summary)
	}
}

func newTestServer(t *testing.T, enqueuer queueEnqueuer, batchStore store.BatchStore, storage objectStorage) *Server {
	t.Helper()
	return NewServer(log.New(io.Discard, "", 0), enqueuer, batchStore, storage, Options{})
}

func seedBatch(t *testing.T, batchStore store.BatchStore, batchID string) {
	t.Helper()
	opts := domain.CompressOptions{InputMode: domain.InputModeBinary, Format: domain.FormatJPEG}
	opts.Normalize()
	err := batchStore.Create(context.Background(), domain.Batch{
		ID:      batchID,
		Status:  domain.BatchStatusCreated,
		Options: opts,
		Records: []domain.Record{
			{Binary: map[string]domain.BinaryRef{domain.DefaultSlotName: {ObjectKey: "uploads/" + batchID + "/0/source"}}},
		},
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed batch: %v", err)
	}
}

type fakeEnqueuer struct {
	called  bool
	payload queue.CompressBatchPayload
}

func (f *fakeEnqueuer) EnqueueCompressBatch(_ context.Context, payload queue.CompressBatchPayload) (*asynq.TaskInfo, error) {
	f.called = true
	f.payload = payload
	return &asynq.TaskInfo{ID: "task-1", Queue: "optipress", State: asynq.TaskStatePending}, nil
}

type fakeStorage struct {
	exists bool
}

func (f *fakeStorage) PresignedPutURL(_ context.Context, objectKey string, _ time.Duration) (string, error) {
	return "https://uploads.example/" + objectKey, nil
}

func (f *fakeStorage) PayloadExists(_ context.Context, _ string) (bool, error) {
	return f.exists, nil
}
