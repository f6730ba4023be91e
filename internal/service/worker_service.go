package service

import (
	"context"
	"fmt"
	"time"

	"github.com/purgeworks/deletion-engine/internal/domain"
	"github.com/purgeworks/deletion-engine/internal/observability"
	"github.com/purgeworks/deletion-engine/internal/queue"
	"github.com/purgeworks/deletion-engine/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultMaxHardDeleteAttempts = 3
	baseHardDeleteBackoff        = time.Second
)

// WorkerService consumes hard-deletion jobs, one goroutine per partition
// queue. The ack contract: a message is acknowledged only after the
// destructive delete and the tracking update both succeed, so a crash
// mid-processing causes safe redelivery.
type WorkerService struct {
	trackings     repository.TrackingRepository
	notifications repository.NotificationRepository
	consumer      queue.Consumer
	cache         StatusCache
	logger        *zap.Logger
	metrics       *observability.Metrics
	partitions    int
	maxAttempts   int
	baseBackoff   time.Duration
	now           func() time.Time
	sleep         func(ctx context.Context, d time.Duration) error
}

func NewWorkerService(
	trackings repository.TrackingRepository,
	notifications repository.NotificationRepository,
	consumer queue.Consumer,
	cache StatusCache,
	partitions int,
	maxAttempts int,
	logger *zap.Logger,
) (*WorkerService, error) {
	if trackings == nil {
		return nil, fmt.Errorf("tracking repository is required")
	}
	if notifications == nil {
		return nil, fmt.Errorf("notification repository is required")
	}
	if consumer == nil {
		return nil, fmt.Errorf("consumer is required")
	}
	if partitions < 1 {
		partitions = queue.DefaultPartitions
	}
	if maxAttempts < 1 {
		maxAttempts = defaultMaxHardDeleteAttempts
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &WorkerService{
		trackings:     trackings,
		notifications: notifications,
		consumer:      consumer,
		cache:         cache,
		logger:        logger,
		partitions:    partitions,
		maxAttempts:   maxAttempts,
		baseBackoff:   baseHardDeleteBackoff,
		now:           time.Now,
		sleep:         sleepWithContext,
	}, nil
}

func (s *WorkerService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// Start consumes every partition queue until context cancellation. Exactly one
// consumer per partition: per-key ordering depends on it.
func (s *WorkerService) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	g, groupCtx := errgroup.WithContext(ctx)
	for partition := 0; partition < s.partitions; partition++ {
		queueName := queue.PartitionQueueName(partition)

		g.Go(func() error {
			s.logger.Info("hard-deletion worker started", zap.String("queue", queueName))

			if err := s.consumer.Consume(groupCtx, queueName, s.processMessage); err != nil {
				s.logger.Error("hard-deletion worker stopped with error",
					zap.String("queue", queueName),
					zap.Error(err),
				)
				return err
			}

			s.logger.Info("hard-deletion worker stopped", zap.String("queue", queueName))
			return nil
		})
	}

	return g.Wait()
}

func (s *WorkerService) processMessage(ctx context.Context, job queue.DeletionJob) error {
	if s.metrics != nil {
		s.metrics.IncWorkerInFlight()
		defer s.metrics.DecWorkerInFlight()
	}

	// Idempotent: redeliveries and records already past SOFT_DELETED are
	// no-ops here.
	if _, err := s.trackings.AdvanceStatus(ctx, job.IdempotencyKey, domain.DeletionSoftDeleted, s.now().UTC()); err != nil {
		return fmt.Errorf("failed to advance tracking to SOFT_DELETED: %w", err)
	}

	start := s.now()
	deleteErr := s.hardDeleteWithRetry(ctx, job)
	if s.metrics != nil {
		s.metrics.ObserveHardDeleteDuration(s.now().Sub(start))
	}

	if deleteErr != nil {
		// Unacknowledged: the broker redelivers, and after the delivery limit
		// the message dead-letters. Never published to the DLQ from here.
		s.logger.Error("hard deletion retries exhausted, leaving message for redelivery",
			zap.String("idempotencyKey", job.IdempotencyKey),
			zap.Int("attempts", s.maxAttempts),
			zap.Error(deleteErr),
		)
		return deleteErr
	}

	advanced, err := s.trackings.AdvanceStatus(ctx, job.IdempotencyKey, domain.DeletionHardDeleted, s.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to advance tracking to HARD_DELETED: %w", err)
	}
	if !advanced {
		// Duplicate delivery of an already-completed key.
		s.logger.Debug("tracking already terminal, skipping status update",
			zap.String("idempotencyKey", job.IdempotencyKey),
		)
	}

	if s.cache != nil {
		s.cache.Invalidate(ctx, job.IdempotencyKey)
	}
	if s.metrics != nil {
		s.metrics.IncHardDeleted()
	}

	s.logger.Info("hard deletion completed",
		zap.String("idempotencyKey", job.IdempotencyKey),
		zap.Int("targets", len(job.NotificationIDs)),
		zap.Bool("manualRetry", job.ManualRetry),
	)

	return nil
}

// hardDeleteWithRetry attempts the destructive delete with a bounded local
// retry loop and exponential backoff (1s, 2s, ...). The loop blocks only this
// partition; other partitions keep flowing.
func (s *WorkerService) hardDeleteWithRetry(ctx context.Context, job queue.DeletionJob) error {
	var lastErr error

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		lastErr = s.notifications.HardDelete(ctx, job.NotificationIDs)
		if lastErr == nil {
			return nil
		}

		if s.metrics != nil {
			s.metrics.IncHardDeleteRetry()
		}
		s.logger.Warn("hard delete attempt failed",
			zap.String("idempotencyKey", job.IdempotencyKey),
			zap.Int("attempt", attempt),
			zap.Error(lastErr),
		)

		if err := s.trackings.RecordAttemptFailure(ctx, job.IdempotencyKey, lastErr.Error()); err != nil {
			s.logger.Warn("failed to record attempt failure",
				zap.String("idempotencyKey", job.IdempotencyKey),
				zap.Error(err),
			)
		}

		if attempt == s.maxAttempts {
			break
		}

		if err := s.sleep(ctx, s.backoffDelay(attempt)); err != nil {
			return fmt.Errorf("hard delete retry interrupted: %w", err)
		}
	}

	return fmt.Errorf("hard delete failed after %d attempts: %w", s.maxAttempts, lastErr)
}

func (s *WorkerService) backoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := s.baseBackoff
	for i := 1; i < attempt; i++ {
		delay *= 2
	}
	return delay
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
