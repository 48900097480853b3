package cache

import (
	"context"
	"time"
)

// SnapshotCache stores JSON-encodable metric snapshots under opaque keys.
type SnapshotCache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

type NoopSnapshotCache struct{}

func (NoopSnapshotCache) Get(_ context.Context, _ string, _ any) (bool, error) {
	return false, nil
}

func (NoopSnapshotCache) Set(_ context.Context, _ string, _ any, _ time.Duration) error {
	return nil
}
