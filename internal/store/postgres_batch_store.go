package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/optipress/optipress/internal/domain"
)

const batchSchemaSQL = `
CREATE TABLE IF NOT EXISTS batches (
	id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	webhook_url TEXT NOT NULL DEFAULT '',
	options JSONB NOT NULL,
	records JSONB NOT NULL,
	summary JSONB,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS usage_logs (
	id BIGSERIAL PRIMARY KEY,
	batch_id TEXT NOT NULL,
	records_processed BIGINT NOT NULL,
	pixels_processed BIGINT NOT NULL,
	bytes_saved BIGINT NOT NULL,
	compute_time_ms BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
`

type PostgresBatchStore struct {
	db *sql.DB
}

func NewPostgresBatchStore(ctx context.Context, dsn string) (*PostgresBatchStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := &PostgresBatchStore{db: db}
	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *PostgresBatchStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, batchSchemaSQL); err != nil {
		return fmt.Errorf("ensure batches schema: %w", err)
	}
	return nil
}

func (s *PostgresBatchStore) Close() error {
	return s.db.Close()
}

func (s *PostgresBatchStore) Create(ctx context.Context, batch domain.Batch) error {
	optionsJSON, err := json.Marshal(batch.Options)
	if err != nil {
		return fmt.Errorf("marshal batch options: %w", err)
	}
	recordsJSON, err := json.Marshal(batch.Records)
	if err != nil {
		return fmt.Errorf("marshal batch records: %w", err)
	}

	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO batches (id, status, webhook_url, options, records, summary, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, NULL, $6, $7)`,
		batch.ID,
		batch.Status,
		batch.WebhookURL,
		optionsJSON,
		recordsJSON,
		batch.CreatedAt,
		batch.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}

	return nil
}

func (s *PostgresBatchStore) Get(ctx context.Context, id string) (domain.Batch, bool, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, status, webhook_url, options, records, summary, created_at, updated_at
		 FROM batches
		 WHERE id = $1`,
		id,
	)

	var (
		batch       domain.Batch
		optionsJSON []byte
		recordsJSON []byte
		summaryJSON []byte
	)
	if err := row.Scan(
		&batch.ID,
		&batch.Status,
		&batch.WebhookURL,
		&optionsJSON,
		&recordsJSON,
		&summaryJSON,
		&batch.CreatedAt,
		&batch.UpdatedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return domain.Batch{}, false, nil
		}
		return domain.Batch{}, false, fmt.Errorf("query batch: %w", err)
	}

	if err := json.Unmarshal(optionsJSON, &batch.Options); err != nil {
		return domain.Batch{}, false, fmt.Errorf("unmarshal batch options: %w", err)
	}
	if err := json.Unmarshal(recordsJSON, &batch.Records); err != nil {
		return domain.Batch{}, false, fmt.Errorf("unmarshal batch records: %w", err)
	}
	if len(summaryJSON) > 0 {
		var summary domain.BatchSummary
		if err := json.Unmarshal(summaryJSON, &summary); err != nil {
			return domain.Batch{}, false, fmt.Errorf("unmarshal batch summary: %w", err)
		}
		batch.Summary = &summary
	}

	return batch, true, nil
}

func (s *PostgresBatchStore) UpdateStatus(ctx context.Context, id, status string) (domain.Batch, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE batches
		 SET status = $1, updated_at = $2
		 WHERE id = $3`,
		status,
		now,
		id,
	)
	if err != nil {
		return domain.Batch{}, fmt.Errorf("update batch status: %w", err)
	}

	return s.mustGet(ctx, id)
}

func (s *PostgresBatchStore) SaveSummary(ctx context.Context, id, status string, summary domain.BatchSummary) (domain.Batch, error) {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return domain.Batch{}, fmt.Errorf("marshal batch summary: %w", err)
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(
		ctx,
		`UPDATE batches
		 SET status = $1, summary = $2, updated_at = $3
		 WHERE id = $4`,
		status,
		summaryJSON,
		now,
		id,
	)
	if err != nil {
		return domain.Batch{}, fmt.Errorf("save batch summary: %w", err)
	}

	return s.mustGet(ctx, id)
}

func (s *PostgresBatchStore) CreateUsageLog(ctx context.Context, usage domain.UsageLog) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO usage_logs (batch_id, records_processed, pixels_processed, bytes_saved, compute_time_ms, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		usage.BatchID,
		usage.RecordsProcessed,
		usage.PixelsProcessed,
		usage.BytesSaved,
		usage.ComputeTimeMS,
		usage.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert usage log: %w", err)
	}
	return nil
}

func (s *PostgresBatchStore) mustGet(ctx context.Context, id string) (domain.Batch, error) {
	batch, ok, err := s.Get(ctx, id)
	if err != nil {
		return domain.Batch{}, err
	}
	if !ok {
		return domain.Batch{}, ErrBatchNotFound
	}
	return batch, nil
}
