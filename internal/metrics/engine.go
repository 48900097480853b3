package metrics

import (
	"context"
	"fmt"
	"time"

	"pharmasys/internal/cache"
	"pharmasys/internal/domain"
	"pharmasys/internal/logx"
)

// Source is the read side of the catalog store the engine aggregates over.
type Source interface {
	Revision(ctx context.Context) (int64, error)
	ListProducts(ctx context.Context) ([]domain.Product, error)
	ListSales(ctx context.Context) ([]domain.Sale, error)
}

// Engine serves dashboard and report views, caching each snapshot under the
// store revision and calendar day it was computed for. A snapshot is only
// cached when the revision did not move while it was being built.
type Engine struct {
	cache     cache.SnapshotCache
	cacheTTL  time.Duration
	keyPrefix string
}

func NewEngine(cacheStore cache.SnapshotCache, cacheTTL time.Duration, keyPrefix string) *Engine {
	if cacheStore == nil {
		cacheStore = cache.NoopSnapshotCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}
	if keyPrefix == "" {
		keyPrefix = "pharmasys"
	}

	return &Engine{
		cache:     cacheStore,
		cacheTTL:  cacheTTL,
		keyPrefix: keyPrefix,
	}
}

func (e *Engine) Dashboard(ctx context.Context, src Source, now time.Time) (domain.Dashboard, error) {
	var view domain.Dashboard
	err := e.snapshot(ctx, src, "dashboard", now, &view, func(products []domain.Product, sales []domain.Sale) any {
		view = BuildDashboard(products, sales, now)
		return view
	})
	return view, err
}

func (e *Engine) Report(ctx context.Context, src Source, now time.Time) (domain.Report, error) {
	var view domain.Report
	err := e.snapshot(ctx, src, "report", now, &view, func(products []domain.Product, sales []domain.Sale) any {
		view = BuildReport(products, sales, now)
		return view
	})
	return view, err
}

func (e *Engine) snapshot(
	ctx context.Context,
	src Source,
	name string,
	now time.Time,
	dest any,
	build func([]domain.Product, []domain.Sale) any,
) error {
	revision, err := src.Revision(ctx)
	if err != nil {
		return err
	}

	key := e.cacheKey(name, revision, now)
	if ok, err := e.cache.Get(ctx, key, dest); err != nil {
		logx.Warn().Err(err).Str("key", key).Msg("metrics cache read failed")
	} else if ok {
		return nil
	}

	products, err := src.ListProducts(ctx)
	if err != nil {
		return err
	}
	sales, err := src.ListSales(ctx)
	if err != nil {
		return err
	}
	value := build(products, sales)

	after, err := src.Revision(ctx)
	if err != nil || after != revision {
		return nil
	}
	if err := e.cache.Set(ctx, key, value, e.cacheTTL); err != nil {
		logx.Warn().Err(err).Str("key", key).Msg("metrics cache write failed")
	}
	return nil
}

func (e *Engine) cacheKey(name string, revision int64, now time.Time) string {
	return fmt.Sprintf("%s:metrics:%s:r%d:%s:%s", e.keyPrefix, name, revision, now.Format(domain.DateLayout), now.Location())
}
