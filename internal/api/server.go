package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel/trace"

	"github.com/optipress/optipress/internal/domain"
	"github.com/optipress/optipress/internal/id"
	"github.com/optipress/optipress/internal/queue"
	"github.com/optipress/optipress/internal/store"
)

const defaultMaxBodyBytes = 32 << 20

type Server struct {
	logger         *log.Logger
	queueClient    queueEnqueuer
	batchStore     store.BatchStore
	storage        objectStorage
	rateLimiter    RateLimiter
	tracer         trace.Tracer
	metrics        *metrics
	presignTTL     time.Duration
	maxBodyBytes   int64
	clientIDHeader string
	mux            *http.ServeMux
}

type queueEnqueuer interface {
	EnqueueCompressBatch(ctx context.Context, payload queue.CompressBatchPayload) (*asynq.TaskInfo, error)
}

type objectStorage interface {
	PresignedPutURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error)
	PayloadExists(ctx context.Context, objectKey string) (bool, error)
}

// Options tunes the optional server pieces. The zero value works: sane
// defaults, no rate limiting, no tracing.
type Options struct {
	PresignTTL     time.Duration
	MaxBodyBytes   int64
	ClientIDHeader string
	RateLimiter    RateLimiter
	Tracer         trace.Tracer
}

func NewServer(logger *log.Logger, queueClient queueEnqueuer, batchStore store.BatchStore, storage objectStorage, opts Options) *Server {
	if opts.PresignTTL <= 0 {
		opts.PresignTTL = 15 * time.Minute
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}
	if strings.TrimSpace(opts.ClientIDHeader) == "" {
		opts.ClientIDHeader = "X-Client-ID"
	}
	if storage == nil {
		storage = unavailableObjectStorage{}
	}

	s := &Server{
		logger:         logger,
		queueClient:    queueClient,
		batchStore:     batchStore,
		storage:        storage,
		rateLimiter:    opts.RateLimiter,
		tracer:         opts.Tracer,
		metrics:        newMetrics(),
		presignTTL:     opts.PresignTTL,
		maxBodyBytes:   opts.MaxBodyBytes,
		clientIDHeader: opts.ClientIDHeader,
		mux:            http.NewServeMux(),
	}
	s.routes()
	return s
}

type unavailableObjectStorage struct{}

func (unavailableObjectStorage) PresignedPutURL(_ context.Context, _ string, _ time.Duration) (string, error) {
	return "", errors.New("object storage is unavailable")
}

func (unavailableObjectStorage) PayloadExists(_ context.Context, _ string) (bool, error) {
	return false, errors.New("object storage is unavailable")
}

func (s *Server) Handler() http.Handler {
	return s.withTracing(s.withRateLimit(s.metrics.withHTTPMetrics(s.mux)))
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.Handle("GET /metrics", s.metrics.metricsHandler())
	s.mux.HandleFunc("POST /v1/batches", s.handleCreateBatch)
	s.mux.HandleFunc("POST /v1/batches/", s.handleStartBatch)
	s.mux.HandleFunc("GET /v1/batches/", s.handleGetBatch)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleCreateBatch validates the request, assigns upload keys for binary
// records that arrived without one, and stores the batch in created state.
// Image bytes never travel through this endpoint in binary mode; clients PUT
// them to the presigned URLs instead.
func (s *Server) handleCreateBatch(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateBatchRequest
	if err := s.decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	req.Options.Normalize()

	now := time.Now().UTC()
	batchID := id.New()
	records := req.Records
	uploads := make([]map[string]any, 0)

	if req.Options.InputMode == domain.InputModeBinary {
		for idx := range records {
			ref := records[idx].Binary[req.Options.BinarySlot]
			if strings.TrimSpace(ref.ObjectKey) != "" {
				continue
			}

			objectKey := fmt.Sprintf("uploads/%s/%d/source", batchID, idx)
			url, err := s.storage.PresignedPutURL(r.Context(), objectKey, s.presignTTL)
			if err != nil {
				s.logger.Printf("generate presigned url failed batch_id=%s record=%d err=%v", batchID, idx, err)
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to generate upload URL"})
				return
			}

			ref.ObjectKey = objectKey
			if records[idx].Binary == nil {
				records[idx].Binary = make(map[string]domain.BinaryRef, 1)
			}
			records[idx].Binary[req.Options.BinarySlot] = ref

			uploads = append(uploads, map[string]any{
				"record":            idx,
				"slot":              req.Options.BinarySlot,
				"object_key":        objectKey,
				"presigned_put_url": url,
			})
		}
	}

	batch := domain.Batch{
		ID:         batchID,
		Status:     domain.BatchStatusCreated,
		WebhookURL: req.WebhookURL,
		Options:    req.Options,
		Records:    records,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.batchStore.Create(r.Context(), batch); err != nil {
		s.logger.Printf("create batch failed batch_id=%s err=%v", batch.ID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create batch"})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"batch_id":  batch.ID,
		"status":    batch.Status,
		"records":   len(batch.Records),
		"uploads":   uploads,
		"start_url": fmt.Sprintf("/v1/batches/%s/start", batch.ID),
	})
}

func (s *Server) handleStartBatch(w http.ResponseWriter, r *http.Request) {
	batchID, err := extractBatchIDFromStartPath(r.URL.Path)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	batch, ok, err := s.batchStore.Get(r.Context(), batchID)
	if err != nil {
		s.logger.Printf("fetch batch failed batch_id=%s err=%v", batchID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load batch"})
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "batch not found"})
		return
	}

	if err := s.verifySourcesExist(r.Context(), batch); err != nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	}

	payload := queue.CompressBatchPayload{
		BatchID:     batch.ID,
		WebhookURL:  batch.WebhookURL,
		Options:     batch.Options,
		Records:     batch.Records,
		RequestedAt: time.Now().UTC(),
	}

	taskInfo, err := s.queueClient.EnqueueCompressBatch(r.Context(), payload)
	if err != nil {
		s.logger.Printf("enqueue failed batch_id=%s err=%v", batch.ID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to enqueue batch"})
		return
	}
	s.metrics.batchesEnqueued.WithLabelValues(taskInfo.Queue).Inc()

	if _, err := s.batchStore.UpdateStatus(r.Context(), batch.ID, domain.BatchStatusQueued); err != nil {
		s.logger.Printf("update status failed batch_id=%s err=%v", batch.ID, err)
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"batch_id":    batch.ID,
		"status":      domain.BatchStatusQueued,
		"queue":       taskInfo.Queue,
		"task_id":     taskInfo.ID,
		"state":       taskInfo.State.String(),
		"enqueued_at": taskInfo.NextProcessAt,
	})
}

func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	batchID, err := extractBatchIDFromGetPath(r.URL.Path)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	batch, ok, err := s.batchStore.Get(r.Context(), batchID)
	if err != nil {
		s.logger.Printf("fetch batch failed batch_id=%s err=%v", batchID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load batch"})
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "batch not found"})
		return
	}

	body := map[string]any{
		"batch_id":   batch.ID,
		"status":     batch.Status,
		"options":    batch.Options,
		"records":    len(batch.Records),
		"created_at": batch.CreatedAt,
		"updated_at": batch.UpdatedAt,
	}
	if batch.Summary != nil {
		body["summary"] = batch.Summary
	}
	writeJSON(w, http.StatusOK, body)
}

// verifySourcesExist confirms every binary record has an uploaded object
// behind its input slot before the batch is allowed to start. Base64 batches
// carry their payloads inline and skip the check.
func (s *Server) verifySourcesExist(ctx context.Context, batch domain.Batch) error {
	if batch.Options.InputMode != domain.InputModeBinary {
		return nil
	}

	slot := batch.Options.BinarySlot
	for idx, record := range batch.Records {
		ref, ok := record.Binary[slot]
		if !ok || strings.TrimSpace(ref.ObjectKey) == "" {
			return fmt.Errorf("record %d has no payload in slot %q", idx, slot)
		}

		exists, err := s.storage.PayloadExists(ctx, ref.ObjectKey)
		if err != nil {
			return fmt.Errorf("record %d source check failed: %w", idx, err)
		}
		if !exists {
			return fmt.Errorf("record %d source object is missing: %s", idx, ref.ObjectKey)
		}
	}
	return nil
}

func extractBatchIDFromStartPath(path string) (string, error) {
	trimmed := strings.TrimPrefix(path, "/v1/batches/")
	parts := strings.Split(strings.Trim(trimmed, "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "start" {
		return "", errors.New("expected path format /v1/batches/{id}/start")
	}
	return parts[0], nil
}

func extractBatchIDFromGetPath(path string) (string, error) {
	trimmed := strings.Trim(strings.TrimPrefix(path, "/v1/batches/"), "/")
	if trimmed == "" || strings.Contains(trimmed, "/") {
		return "", errors.New("expected path format /v1/batches/{id}")
	}
	return trimmed, nil
}

func (s *Server) decodeJSON(r *http.Request, into any) error {
	limited := io.LimitReader(r.Body, s.maxBodyBytes)
	decoder := json.NewDecoder(limited)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(into); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return errors.New("invalid JSON body: multiple JSON values are not allowed")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
