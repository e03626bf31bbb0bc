package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/optipress/optipress/internal/domain"
	"github.com/optipress/optipress/internal/storage"
)

// ObjectStoreFetcher resolves binary refs against the shared object store.
// Keys that no longer have an object behind them count as missing input, not
// as transport failures.
type ObjectStoreFetcher struct {
	Storage *storage.Client
}

func (f ObjectStoreFetcher) FetchPayload(ctx context.Context, ref domain.BinaryRef) ([]byte, error) {
	if f.Storage == nil {
		return nil, errors.New("storage client is required")
	}

	data, err := f.Storage.ReadPayload(ctx, ref.ObjectKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: no object behind key %s", ErrMissingInput, ref.ObjectKey)
		}
		return nil, err
	}
	return data, nil
}

// ObjectStoreSink writes compressed outputs back to the object store.
type ObjectStoreSink struct {
	Storage *storage.Client
}

func (s ObjectStoreSink) StorePayload(ctx context.Context, objectKey string, data []byte, contentType string) error {
	if s.Storage == nil {
		return errors.New("storage client is required")
	}
	return s.Storage.WritePayload(ctx, objectKey, data, contentType)
}
