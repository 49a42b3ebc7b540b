package service

import (
	"context"
	"log"
	"time"

	"posinet/backend/internal/domain"
)

type activityAppender interface {
	AppendActivity(ctx context.Context, entry domain.ActivityLogEntry) error
}

// ActivityLogger writes audit entries after the fact. It never reports an
// error to its caller: failures are wrapped in ActivityLogError and logged.
type ActivityLogger struct {
	store   activityAppender
	now     func() time.Time
	timeout time.Duration
}

func NewActivityLogger(store activityAppender, now func() time.Time) *ActivityLogger {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &ActivityLogger{store: store, now: now, timeout: 3 * time.Second}
}

// Log detaches from ctx's cancellation so a client hanging up right after a
// commit does not drop the entry.
func (l *ActivityLogger) Log(ctx context.Context, activityType string, description string) {
	entry := domain.ActivityLogEntry{
		Type:        activityType,
		Description: description,
		Timestamp:   l.now(),
	}
	if actor, ok := ActorFromContext(ctx); ok {
		entry.Actor = actor.Username
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
	defer cancel()

	if err := l.store.AppendActivity(ctx, entry); err != nil {
		log.Printf("[activity] WARN: %v", &ActivityLogError{Type: activityType, Cause: err})
	}
}

func (s *Service) RecentActivities(ctx context.Context, limit int) ([]domain.ActivityLogEntry, error) {
	return s.repo.RecentActivities(ctx, clampLimit(limit, 20, 200))
}
