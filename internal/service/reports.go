package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"posinet/backend/internal/domain"
)

func (s *Service) ListSales(ctx context.Context) ([]domain.Sale, error) {
	return s.repo.ListSales(ctx)
}

func (s *Service) RecentSales(ctx context.Context, limit int) ([]domain.Sale, error) {
	return s.repo.RecentSales(ctx, clampLimit(limit, 10, 100))
}

func (s *Service) GetSale(ctx context.Context, id string) (domain.Sale, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Sale{}, invalid("id", "is required")
	}
	sale, err := s.repo.GetSale(ctx, id)
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

// SalesByDateRange returns sales dated within [from, to]. A date-only to
// bound covers that whole day.
func (s *Service) SalesByDateRange(ctx context.Context, from string, to string) ([]domain.Sale, error) {
	start, end, err := parseRange(from, to)
	if err != nil {
		return nil, err
	}
	return s.repo.ListSalesBetween(ctx, start, end)
}

func (s *Service) TopSellingProducts(ctx context.Context, limit int) ([]domain.TopProduct, error) {
	limit = clampLimit(limit, 5, 50)
	key := fmt.Sprintf("limit=%d", limit)

	if cached, ok, err := s.reports.GetTopProducts(ctx, key); err != nil {
		log.Printf("[service] WARN: report cache read failed key=top:%s: %v", key, err)
	} else if ok {
		return cached, nil
	}

	products, err := s.repo.TopSellingProducts(ctx, limit)
	if err != nil {
		return nil, err
	}
	if err := s.reports.SetTopProducts(ctx, key, products, s.reportTTL); err != nil {
		log.Printf("[service] WARN: report cache write failed key=top:%s: %v", key, err)
	}
	return products, nil
}

func (s *Service) SalesSummary(ctx context.Context, from string, to string) (domain.SalesSummary, error) {
	start, end, err := parseRange(from, to)
	if err != nil {
		return domain.SalesSummary{}, err
	}
	key := rangeKey(start, end)

	if cached, ok, err := s.reports.GetSummary(ctx, key); err != nil {
		log.Printf("[service] WARN: report cache read failed key=summary:%s: %v", key, err)
	} else if ok {
		return *cached, nil
	}

	summary, err := s.repo.SalesSummary(ctx, start, end)
	if err != nil {
		return domain.SalesSummary{}, err
	}
	if err := s.reports.SetSummary(ctx, key, summary, s.reportTTL); err != nil {
		log.Printf("[service] WARN: report cache write failed key=summary:%s: %v", key, err)
	}
	return summary, nil
}

// parseRange turns optional query bounds into a half-open [start, end)
// interval. Empty bounds stay zero, which the store treats as unbounded.
func parseRange(from string, to string) (time.Time, time.Time, error) {
	var start, end time.Time

	if from = strings.TrimSpace(from); from != "" {
		t, _, err := parseBound(from)
		if err != nil {
			return start, end, invalid("from", err.Error())
		}
		start = t
	}
	if to = strings.TrimSpace(to); to != "" {
		t, dateOnly, err := parseBound(to)
		if err != nil {
			return start, end, invalid("to", err.Error())
		}
		if dateOnly {
			end = t.AddDate(0, 0, 1)
		} else {
			end = t.Add(time.Nanosecond)
		}
	}
	if !start.IsZero() && !end.IsZero() && !start.Before(end) {
		return start, end, invalid("from", "must not be after to")
	}
	return start, end, nil
}

func parseBound(raw string) (time.Time, bool, error) {
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t.UTC(), true, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t.UTC(), false, nil
	}
	return time.Time{}, false, fmt.Errorf("expected YYYY-MM-DD or RFC3339, got %q", raw)
}

func rangeKey(start time.Time, end time.Time) string {
	format := func(t time.Time) string {
		if t.IsZero() {
			return "-"
		}
		return t.Format(time.RFC3339Nano)
	}
	return format(start) + "|" + format(end)
}
