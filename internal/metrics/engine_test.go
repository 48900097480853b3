package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"pharmasys/internal/domain"
	"pharmasys/internal/store/memory"
)

type mapCache struct {
	entries map[string][]byte
	sets    int
}

func newMapCache() *mapCache {
	return &mapCache{entries: make(map[string][]byte)}
}

func (c *mapCache) Get(_ context.Context, key string, dest any) (bool, error) {
	raw, ok := c.entries[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (c *mapCache) Set(_ context.Context, key string, value any, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.entries[key] = raw
	c.sets++
	return nil
}

type mockSource struct {
	mock.Mock
}

func (m *mockSource) Revision(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockSource) ListProducts(ctx context.Context) ([]domain.Product, error) {
	args := m.Called(ctx)
	if products := args.Get(0); products != nil {
		return products.([]domain.Product), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSource) ListSales(ctx context.Context) ([]domain.Sale, error) {
	args := m.Called(ctx)
	if sales := args.Get(0); sales != nil {
		return sales.([]domain.Sale), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestEngineSkipsCacheWhenRevisionMoves(t *testing.T) {
	src := new(mockSource)
	src.On("Revision", mock.Anything).Return(int64(3), nil).Once()
	src.On("Revision", mock.Anything).Return(int64(4), nil).Once()
	src.On("ListProducts", mock.Anything).Return([]domain.Product{{ID: 1, Stock: 2, Price: dec("1.5")}}, nil).Once()
	src.On("ListSales", mock.Anything).Return([]domain.Sale{}, nil).Once()

	cache := newMapCache()
	view, err := NewEngine(cache, time.Minute, "test").Dashboard(context.Background(), src, time.Now())
	require.NoError(t, err)
	assert.True(t, view.InventoryValue.Equal(dec("3")))
	assert.Equal(t, 0, cache.sets)
	src.AssertExpectations(t)
}

func TestEnginePropagatesSourceErrors(t *testing.T) {
	src := new(mockSource)
	src.On("Revision", mock.Anything).Return(int64(1), nil).Once()
	src.On("ListProducts", mock.Anything).Return(nil, errors.New("db down")).Once()

	_, err := NewEngine(nil, 0, "").Report(context.Background(), src, time.Now())
	assert.EqualError(t, err, "db down")
	src.AssertExpectations(t)
}

func TestEngineCachesPerRevision(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewSeeded()
	cache := newMapCache()
	engine := NewEngine(cache, time.Minute, "test")
	now := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)

	first, err := engine.Dashboard(ctx, repo, now)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.sets)

	again, err := engine.Dashboard(ctx, repo, now)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.sets)
	assert.True(t, first.InventoryValue.Equal(again.InventoryValue))

	p, err := repo.GetProduct(ctx, 1)
	require.NoError(t, err)
	tax, err := repo.GetTaxRate(ctx, 1)
	require.NoError(t, err)
	_, err = repo.CommitSale(ctx, []domain.CartItem{{ProductID: 1, Name: p.Name, Price: p.Price, PurchasedPrice: p.PurchasedPrice, Quantity: 2}}, *tax, now)
	require.NoError(t, err)

	after, err := engine.Dashboard(ctx, repo, now)
	require.NoError(t, err)
	assert.Equal(t, 2, cache.sets)
	assert.Equal(t, 1, after.TodaysSales)
	assert.True(t, after.InventoryValue.LessThan(first.InventoryValue))
}

func TestEngineReport(t *testing.T) {
	engine := NewEngine(nil, 0, "")
	report, err := engine.Report(context.Background(), memory.NewSeeded(), time.Now())
	require.NoError(t, err)
	assert.Len(t, report.MonthlySales, 12)
	assert.Empty(t, report.TopSellers)
	assert.Len(t, report.InventoryByCategory, 9)
}
