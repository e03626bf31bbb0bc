package worker

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/optipress/optipress/internal/config"
	"github.com/optipress/optipress/internal/domain"
	"github.com/optipress/optipress/internal/pipeline"
	"github.com/optipress/optipress/internal/queue"
	"github.com/optipress/optipress/internal/storage"
	"github.com/optipress/optipress/internal/store"
	"github.com/optipress/optipress/internal/webhook"
)

type Server struct {
	logger        *log.Logger
	server        *asynq.Server
	sem           chan struct{}
	processor     *pipeline.Processor
	webhookClient webhookSender
	batchStore    store.BatchStore
	usageStore    store.UsageStore
	metrics       *metrics
	tracer        trace.Tracer
}

type webhookSender interface {
	Send(ctx context.Context, endpoint, event string, payload any) error
}

func NewServer(
	logger *log.Logger,
	queueCfg config.QueueConfig,
	workerCfg config.WorkerConfig,
	storageClient *storage.Client,
	webhookClient *webhook.Client,
	batchStore store.BatchStore,
	usageStore store.UsageStore,
) (*Server, error) {
	if storageClient == nil {
		return nil, fmt.Errorf("storage client is required")
	}

	processor, err := pipeline.NewProcessor(
		pipeline.ObjectStoreFetcher{Storage: storageClient},
		pipeline.ObjectStoreSink{Storage: storageClient},
		workerCfg.OutputPrefix,
	)
	if err != nil {
		return nil, fmt.Errorf("initialize batch processor: %w", err)
	}

	if usageStore == nil {
		if batchAndUsageStore, ok := batchStore.(store.UsageStore); ok {
			usageStore = batchAndUsageStore
		}
	}

	s := &Server{
		logger: logger,
		server: asynq.NewServer(
			queueCfg.RedisClientOpt(),
			asynq.Config{
				Concurrency: workerCfg.Concurrency,
				Queues: map[string]int{
					queueCfg.Name: 1,
				},
				LogLevel: asynq.InfoLevel,
				ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
					retried, _ := asynq.GetRetryCount(ctx)
					maxRetry, _ := asynq.GetMaxRetry(ctx)
					logger.Printf("task failed type=%s retry=%d/%d err=%v", task.Type(), retried, maxRetry, err)
				}),
			},
		),
		sem:        make(chan struct{}, max(1, workerCfg.MaxActiveBatches)),
		processor:  processor,
		batchStore: batchStore,
		usageStore: usageStore,
		metrics:    newMetrics(),
		tracer:     otel.Tracer("optipress/worker"),
	}
	if webhookClient != nil {
		s.webhookClient = webhookClient
	}
	return s, nil
}

func (s *Server) Run() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeCompressBatch, s.handleCompressBatch)
	return s.server.Run(mux)
}

func (s *Server) MetricsHandler() http.Handler {
	return s.metrics.Handler()
}

// handleCompressBatch runs one batch end to end. Records inside the batch are
// processed strictly one at a time in input order; concurrency applies across
// batches only, bounded by the semaphore.
func (s *Server) handleCompressBatch(ctx context.Context, task *asynq.Task) error {
	startedAt := time.Now()
	outcome := domain.BatchStatusFailed

	payload, err := queue.ParseCompressBatchPayload(task)
	if err != nil {
		return fmt.Errorf("parse payload: %v: %w", err, asynq.SkipRetry)
	}
	payload.Options.Normalize()

	ctx, span := s.tracer.Start(ctx, "worker.compress_batch", trace.WithSpanKind(trace.SpanKindConsumer))
	span.SetAttributes(
		attribute.String("batch.id", payload.BatchID),
		attribute.String("batch.format", payload.Options.Format),
		attribute.String("batch.input_mode", payload.Options.InputMode),
		attribute.Int("batch.records", len(payload.Records)),
	)
	defer span.End()
	defer func() {
		s.metrics.batchDuration.WithLabelValues(payload.Options.Format, outcome).Observe(time.Since(startedAt).Seconds())
		s.metrics.batchesTotal.WithLabelValues(payload.Options.Format, outcome).Inc()
	}()

	s.sem <- struct{}{}
	s.metrics.activeBatches.Inc()
	defer func() {
		<-s.sem
		s.metrics.activeBatches.Dec()
	}()

	s.logger.Printf(
		"Working... batch_id=%s format=%s input_mode=%s records=%d continue_on_failure=%t",
		payload.BatchID,
		payload.Options.Format,
		payload.Options.InputMode,
		len(payload.Records),
		payload.Options.ContinueOnFailure,
	)

	s.updateBatchStatus(ctx, payload.BatchID, domain.BatchStatusProcessing)

	result, err := s.processor.Process(ctx, payload.BatchID, payload.Options, payload.Records)
	s.countRecordOutcomes(result)
	if err != nil {
		// Fail-fast abort: keep whatever completed before the failing record.
		summary := result.Summarize()
		s.saveSummary(ctx, payload.BatchID, domain.BatchStatusFailed, summary)
		span.RecordError(err)
		span.SetStatus(codes.Error, "batch failed")
		s.dispatchWebhook(ctx, payload, webhook.EventBatchFailed, map[string]any{
			"batch_id":     payload.BatchID,
			"status":       domain.BatchStatusFailed,
			"format":       payload.Options.Format,
			"requested_at": payload.RequestedAt,
			"failed_at":    time.Now().UTC(),
			"error":        err.Error(),
			"summary":      summary,
		})
		return fmt.Errorf("process batch: %w", err)
	}

	summary := result.Summarize()
	status := statusForSummary(summary)
	s.saveSummary(ctx, payload.BatchID, status, summary)
	s.logger.Printf(
		"Processed batch_id=%s status=%s succeeded=%d failed=%d saved=%.1f%%",
		payload.BatchID,
		status,
		summary.Succeeded,
		summary.Failed,
		summary.PercentSaved,
	)
	s.recordUsage(ctx, payload.BatchID, result, time.Since(startedAt))

	if err := s.dispatchWebhook(ctx, payload, webhook.EventBatchCompleted, map[string]any{
		"batch_id":     payload.BatchID,
		"status":       status,
		"format":       payload.Options.Format,
		"requested_at": payload.RequestedAt,
		"completed_at": time.Now().UTC(),
		"summary":      summary,
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "webhook dispatch failed")
		return err
	}

	outcome = status
	span.SetStatus(codes.Ok, "processed")
	return nil
}

// statusForSummary folds per-record outcomes into the batch status: partial
// covers failure-tolerant batches where some records made it and some did not.
func statusForSummary(summary domain.BatchSummary) string {
	switch {
	case summary.Failed == 0:
		return domain.BatchStatusSucceeded
	case summary.Succeeded == 0:
		return domain.BatchStatusFailed
	default:
		return domain.BatchStatusPartial
	}
}

func (s *Server) countRecordOutcomes(result pipeline.BatchResult) {
	for _, outcome := range result.Outcomes {
		if outcome.Failed() {
			s.metrics.recordsTotal.WithLabelValues(string(outcome.Kind)).Inc()
			continue
		}
		s.metrics.recordsTotal.WithLabelValues("succeeded").Inc()
	}
}

func (s *Server) updateBatchStatus(ctx context.Context, batchID, status string) {
	if s.batchStore == nil {
		return
	}
	if _, err := s.batchStore.UpdateStatus(ctx, batchID, status); err != nil {
		s.logger.Printf("batch status update failed batch_id=%s status=%s err=%v", batchID, status, err)
	}
}

func (s *Server) saveSummary(ctx context.Context, batchID, status string, summary domain.BatchSummary) {
	if s.batchStore == nil {
		return
	}
	if _, err := s.batchStore.SaveSummary(ctx, batchID, status, summary); err != nil {
		s.logger.Printf("batch summary write failed batch_id=%s status=%s err=%v", batchID, status, err)
	}
}

func (s *Server) dispatchWebhook(ctx context.Context, payload queue.CompressBatchPayload, event string, body map[string]any) error {
	if payload.WebhookURL == "" || s.webhookClient == nil {
		return nil
	}

	if err := s.webhookClient.Send(ctx, payload.WebhookURL, event, body); err != nil {
		s.logger.Printf("webhook delivery failed batch_id=%s event=%s err=%v", payload.BatchID, event, err)
		return fmt.Errorf("dispatch webhook: %w", err)
	}

	return nil
}

func (s *Server) recordUsage(ctx context.Context, batchID string, result pipeline.BatchResult, computeDuration time.Duration) {
	if s.usageStore == nil {
		return
	}

	var (
		pixelsProcessed int64
		bytesIn         int64
		bytesOut        int64
	)
	for _, outcome := range result.Outcomes {
		if outcome.Failed() || outcome.Compression == nil {
			continue
		}
		pixelsProcessed += int64(outcome.Width) * int64(outcome.Height)
		bytesIn += outcome.Compression.OriginalSize
		bytesOut += outcome.Compression.NewSize
	}

	bytesSaved := bytesIn - bytesOut
	if bytesSaved < 0 {
		bytesSaved = 0
	}

	computeTimeMS := computeDuration.Milliseconds()
	if computeTimeMS < 1 {
		computeTimeMS = 1
	}

	usage := domain.UsageLog{
		BatchID:          batchID,
		RecordsProcessed: int64(len(result.Outcomes)),
		PixelsProcessed:  pixelsProcessed,
		BytesSaved:       bytesSaved,
		ComputeTimeMS:    computeTimeMS,
		CreatedAt:        time.Now().UTC(),
	}
	if err := s.usageStore.CreateUsageLog(ctx, usage); err != nil {
		s.logger.Printf("usage log write failed batch_id=%s err=%v", batchID, err)
		return
	}

	s.metrics.pixelsProcessedTotal.Add(float64(pixelsProcessed))
	s.metrics.bytesSavedTotal.Add(float64(bytesSaved))
	s.metrics.computeTimeMSTotal.Add(float64(computeTimeMS))
}
