package service

import (
	"context"
	"fmt"
	"time"

	"github.com/purgeworks/deletion-engine/internal/observability"
	"github.com/purgeworks/deletion-engine/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultRetentionWindow       = 7 * 24 * time.Hour
	defaultRetentionScanInterval = time.Hour
	defaultRetentionScanLimit    = 500
)

// RetentionSweeper periodically removes tracking records older than the
// retention window. Postgres has no native TTL; this sweep is the equivalent
// cleanup.
type RetentionSweeper struct {
	trackings repository.TrackingRepository
	logger    *zap.Logger
	metrics   *observability.Metrics
	window    time.Duration
	interval  time.Duration
	limit     int
	now       func() time.Time
}

func NewRetentionSweeper(
	trackings repository.TrackingRepository,
	window time.Duration,
	interval time.Duration,
	limit int,
	logger *zap.Logger,
) (*RetentionSweeper, error) {
	if trackings == nil {
		return nil, fmt.Errorf("tracking repository is required")
	}
	if window <= 0 {
		window = defaultRetentionWindow
	}
	if interval <= 0 {
		interval = defaultRetentionScanInterval
	}
	if limit <= 0 {
		limit = defaultRetentionScanLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RetentionSweeper{
		trackings: trackings,
		logger:    logger,
		window:    window,
		interval:  interval,
		limit:     limit,
		now:       time.Now,
	}, nil
}

func (s *RetentionSweeper) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

func (s *RetentionSweeper) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// Sweep once at startup so a long downtime does not leave expired rows
	// waiting for the first ticker edge.
	if err := s.sweep(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("retention sweep failed", zap.Error(err))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.sweep(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.Error("retention sweep failed", zap.Error(err))
			}
		}
	}
}

func (s *RetentionSweeper) sweep(ctx context.Context) error {
	cutoff := s.now().UTC().Add(-s.window)

	for {
		removed, err := s.trackings.DeleteExpired(ctx, cutoff, s.limit)
		if err != nil {
			return fmt.Errorf("failed to delete expired tracking records: %w", err)
		}
		if removed == 0 {
			return nil
		}

		if s.metrics != nil {
			s.metrics.AddTrackingExpired(float64(removed))
		}
		s.logger.Info("expired tracking records removed",
			zap.Int64("count", removed),
			zap.Time("cutoff", cutoff),
		)

		if removed < int64(s.limit) {
			return nil
		}
	}
}
