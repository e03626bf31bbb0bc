package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/optipress/optipress/internal/domain"
)

var ErrBatchNotFound = errors.New("batch not found")

// MemoryBatchStore keeps batches in process memory. It backs local runs and
// tests; deployments point at postgres instead.
type MemoryBatchStore struct {
	mu      sync.RWMutex
	batches map[string]domain.Batch
	usage   []domain.UsageLog
}

func NewMemoryBatchStore() *MemoryBatchStore {
	return &MemoryBatchStore{
		batches: make(map[string]domain.Batch),
	}
}

func (s *MemoryBatchStore) Create(_ context.Context, batch domain.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches[batch.ID] = batch
	return nil
}

func (s *MemoryBatchStore) Get(_ context.Context, id string) (domain.Batch, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	batch, ok := s.batches[id]
	return batch, ok, nil
}

func (s *MemoryBatchStore) UpdateStatus(_ context.Context, id, status string) (domain.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch, ok := s.batches[id]
	if !ok {
		return domain.Batch{}, ErrBatchNotFound
	}

	batch.Status = status
	batch.UpdatedAt = time.Now().UTC()
	s.batches[id] = batch
	return batch, nil
}

func (s *MemoryBatchStore) SaveSummary(_ context.Context, id, status string, summary domain.BatchSummary) (domain.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch, ok := s.batches[id]
	if !ok {
		return domain.Batch{}, ErrBatchNotFound
	}

	batch.Status = status
	batch.Summary = &summary
	batch.UpdatedAt = time.Now().UTC()
	s.batches[id] = batch
	return batch, nil
}

func (s *MemoryBatchStore) CreateUsageLog(_ context.Context, usage domain.UsageLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage = append(s.usage, usage)
	return nil
}

// UsageLogs returns a copy of the recorded usage rows, oldest first.
func (s *MemoryBatchStore) UsageLogs() []domain.UsageLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.UsageLog, len(s.usage))
	copy(out, s.usage)
	return out
}
