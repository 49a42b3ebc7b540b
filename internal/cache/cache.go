package cache

import (
	"context"
	"time"

	"posinet/backend/internal/domain"
)

// ReportCache holds computed report results between sales. Keys are opaque
// to callers; Invalidate drops everything written through the cache.
type ReportCache interface {
	GetSummary(ctx context.Context, key string) (*domain.SalesSummary, bool, error)
	SetSummary(ctx context.Context, key string, value domain.SalesSummary, ttl time.Duration) error
	GetTopProducts(ctx context.Context, key string) ([]domain.TopProduct, bool, error)
	SetTopProducts(ctx context.Context, key string, value []domain.TopProduct, ttl time.Duration) error
	Invalidate(ctx context.Context) error
}

type NoopReportCache struct{}

func (NoopReportCache) GetSummary(_ context.Context, _ string) (*domain.SalesSummary, bool, error) {
	return nil, false, nil
}

func (NoopReportCache) SetSummary(_ context.Context, _ string, _ domain.SalesSummary, _ time.Duration) error {
	return nil
}

func (NoopReportCache) GetTopProducts(_ context.Context, _ string) ([]domain.TopProduct, bool, error) {
	return nil, false, nil
}

func (NoopReportCache) SetTopProducts(_ context.Context, _ string, _ []domain.TopProduct, _ time.Duration) error {
	return nil
}

func (NoopReportCache) Invalidate(_ context.Context) error {
	return nil
}
