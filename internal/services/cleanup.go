package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/example/printdesk/internal/logger"
	"github.com/example/printdesk/internal/metrics"
)

// CleanupService removes checkouts that were opened and never paid.
type CleanupService struct {
	ledger *Ledger
	ttl    time.Duration
	now    func() time.Time
}

func NewCleanupService(ledger *Ledger, ttl time.Duration) *CleanupService {
	return &CleanupService{ledger: ledger, ttl: ttl, now: time.Now}
}

// DefaultMaxAge is the configured pending TTL.
func (s *CleanupService) DefaultMaxAge() time.Duration {
	return s.ttl
}

// CleanupExpired deletes pending payments older than maxAge that have no project and
// are not awaiting reconciliation. A non-positive maxAge uses the configured TTL.
func (s *CleanupService) CleanupExpired(ctx context.Context, maxAge time.Duration) (int64, error) {
	if maxAge <= 0 {
		maxAge = s.ttl
	}
	cutoff := s.now().Add(-maxAge)

	deleted, err := s.ledger.DeleteExpiredPending(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	if deleted > 0 {
		metrics.GetMetrics().CleanupDeletedTotal.Add(float64(deleted))
		logger.L().Info("expired payment intents removed",
			zap.Int64("deleted", deleted),
			zap.Duration("max_age", maxAge),
		)
	}
	return deleted, nil
}
