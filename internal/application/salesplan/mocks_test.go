package salesplan

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/salesplan/backend/internal/domain/salesplan"
)

// MockRepository is a mock implementation of salesplan.Repository
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Preview(ctx context.Context, limit int) ([]salesplan.SalesPlanRecord, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]salesplan.SalesPlanRecord), args.Error(1)
}

func (m *MockRepository) FindByKey(ctx context.Context, key salesplan.RecordKey) (*salesplan.SalesPlanRecord, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*salesplan.SalesPlanRecord), args.Error(1)
}

func (m *MockRepository) DescribeColumns(ctx context.Context) ([]salesplan.ColumnInfo, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]salesplan.ColumnInfo), args.Error(1)
}

func (m *MockRepository) RunReadOnly(ctx context.Context, query string, maxRows int) (*salesplan.ResultSet, error) {
	args := m.Called(ctx, query, maxRows)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*salesplan.ResultSet), args.Error(1)
}

// memCache is a map-backed PreviewCache
type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
	err  error
}

func newMemCache() *memCache {
	return &memCache{data: map[string][]byte{}}
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, false, c.err
	}
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.data[key] = value
	return nil
}

type recordingMetrics struct {
	hits, misses int
	queries      []string
}

func (r *recordingMetrics) ObserveCache(hit bool) {
	if hit {
		r.hits++
	} else {
		r.misses++
	}
}

func (r *recordingMetrics) ObserveQuery(kind string, _ time.Duration) {
	r.queries = append(r.queries, kind)
}

// cleanRecord satisfies every reconciliation rule
func cleanRecord(doc string, line int) salesplan.SalesPlanRecord {
	return salesplan.SalesPlanRecord{
		DocumentNo:          doc,
		LineNo:              line,
		OrderDate:           time.Date(2024, 7, 15, 0, 0, 0, 0, time.UTC),
		Amount:              decimal.NewFromInt(10000),
		Quantity:            decimal.NewFromInt(1),
		OutstandingQuantity: decimal.Zero,
		QuantityInvoiced:    decimal.NewFromInt(1),
		OrderFY:             "2024-25",
		DocumentMonthNumber: 7,
		OrderMonthNumber:    4,
		OrderYear:           2024,
		MonthYear:           202407,
		MMMMYY:              "Jul-24",
	}
}
