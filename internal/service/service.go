package service

import (
	"context"
	"log"
	"time"

	"posinet/backend/internal/cache"
	"posinet/backend/internal/domain"
	"posinet/backend/internal/store"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Options struct {
	// ReportTTL bounds how long summary and top-product results are served
	// from the report cache.
	ReportTTL time.Duration
	// SaleTimeout bounds one sale's transactional scope. Zero leaves it to
	// the caller's context and the store.
	SaleTimeout time.Duration
}

type Service struct {
	repo        store.Repository
	reports     cache.ReportCache
	reportTTL   time.Duration
	saleTimeout time.Duration
	activity    *ActivityLogger
	now         func() time.Time
}

func New(repo store.Repository, reports cache.ReportCache, opts Options) *Service {
	if reports == nil {
		reports = cache.NoopReportCache{}
	}
	if opts.ReportTTL <= 0 {
		opts.ReportTTL = 30 * time.Second
	}
	now := func() time.Time { return time.Now().UTC() }

	return &Service{
		repo:        repo,
		reports:     reports,
		reportTTL:   opts.ReportTTL,
		saleTimeout: opts.SaleTimeout,
		activity:    NewActivityLogger(repo, now),
		now:         now,
	}
}

func requireAdmin(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return domain.Actor{}, ErrForbidden
	}
	return actor, nil
}

func actorName(ctx context.Context) string {
	if actor, ok := ActorFromContext(ctx); ok && actor.Username != "" {
		return actor.Username
	}
	return "system"
}

// invalidateReports drops cached reports after a committed write. A failure
// only leaves stale reports until their TTL expires.
func (s *Service) invalidateReports(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := s.reports.Invalidate(ctx); err != nil {
		log.Printf("[service] WARN: failed to invalidate report cache: %v", err)
	}
}

func clampLimit(limit int, fallback int, max int) int {
	if limit < 1 {
		return fallback
	}
	if limit > max {
		return max
	}
	return limit
}
