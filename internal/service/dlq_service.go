package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/purgeworks/deletion-engine/internal/alert"
	"github.com/purgeworks/deletion-engine/internal/domain"
	"github.com/purgeworks/deletion-engine/internal/observability"
	"github.com/purgeworks/deletion-engine/internal/queue"
	"github.com/purgeworks/deletion-engine/internal/repository"
	"go.uber.org/zap"
)

const terminalFailureReason = "hard deletion retries exhausted; message dead-lettered"

// DLQService consumes deletion jobs that exhausted broker redelivery, marks
// them permanently failed and raises an alert. The message acks only after
// the tracking update; the alert is fire-and-forget.
type DLQService struct {
	trackings  repository.TrackingRepository
	consumer   queue.Consumer
	publisher  queue.Publisher
	alerter    alert.Alerter
	cache      StatusCache
	partitions int
	logger     *zap.Logger
	metrics    *observability.Metrics
	now        func() time.Time
}

func NewDLQService(
	trackings repository.TrackingRepository,
	consumer queue.Consumer,
	publisher queue.Publisher,
	alerter alert.Alerter,
	cache StatusCache,
	partitions int,
	logger *zap.Logger,
) (*DLQService, error) {
	if trackings == nil {
		return nil, fmt.Errorf("tracking repository is required")
	}
	if consumer == nil {
		return nil, fmt.Errorf("consumer is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if alerter == nil {
		return nil, fmt.Errorf("alerter is required")
	}
	if partitions < 1 {
		partitions = queue.DefaultPartitions
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &DLQService{
		trackings:  trackings,
		consumer:   consumer,
		publisher:  publisher,
		alerter:    alerter,
		cache:      cache,
		partitions: partitions,
		logger:     logger,
		now:        time.Now,
	}, nil
}

func (s *DLQService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// Start consumes the dead-letter queue until context cancellation.
func (s *DLQService) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s.logger.Info("dead-letter consumer started", zap.String("queue", queue.DLQName()))
	return s.consumer.Consume(ctx, queue.DLQName(), s.processMessage)
}

func (s *DLQService) processMessage(ctx context.Context, job queue.DeletionJob) error {
	marked, err := s.trackings.MarkFailed(ctx, job.IdempotencyKey, terminalFailureReason)
	if err != nil {
		// Unacknowledged: the DLQ redelivers until the record is marked.
		return fmt.Errorf("failed to mark tracking as FAILED: %w", err)
	}
	if !marked {
		s.logger.Debug("tracking already terminal on dead-letter",
			zap.String("idempotencyKey", job.IdempotencyKey),
		)
	}

	if s.cache != nil {
		s.cache.Invalidate(ctx, job.IdempotencyKey)
	}
	if s.metrics != nil {
		s.metrics.IncDeadLettered()
	}

	s.logger.Error("deletion permanently failed",
		zap.String("idempotencyKey", job.IdempotencyKey),
		zap.String("userId", job.UserID),
		zap.Int("targets", len(job.NotificationIDs)),
	)

	// Best-effort: alert delivery failure must never block the commit.
	if marked {
		s.emitAlert(ctx, job)
	}

	return nil
}

func (s *DLQService) emitAlert(ctx context.Context, job queue.DeletionJob) {
	a := alert.Alert{
		IdempotencyKey:  job.IdempotencyKey,
		RequesterID:     job.UserID,
		NotificationIDs: job.NotificationIDs,
		Reason:          terminalFailureReason,
		FailedAt:        s.now().UTC(),
	}

	if err := s.alerter.Alert(ctx, a); err != nil {
		if s.metrics != nil {
			s.metrics.IncAlert("failed")
		}
		s.logger.Warn("failed to deliver dead-letter alert",
			zap.String("idempotencyKey", job.IdempotencyKey),
			zap.Error(err),
		)
		return
	}

	if s.metrics != nil {
		s.metrics.IncAlert("delivered")
	}
}

// Requeue publishes a fresh job for a dead-lettered deletion onto the primary
// topic. Administrative entry point; the tracking record resets naturally when
// the worker reprocesses the job.
func (s *DLQService) Requeue(ctx context.Context, idempotencyKey string, requesterID string, targetIDs []string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	idempotencyKey = strings.TrimSpace(idempotencyKey)
	if idempotencyKey == "" {
		return fmt.Errorf("%w: idempotency key is required", domain.ErrValidation)
	}

	job := queue.DeletionJob{
		IdempotencyKey:  idempotencyKey,
		UserID:          strings.TrimSpace(requesterID),
		NotificationIDs: targetIDs,
		Timestamp:       s.now().UTC(),
		Attempt:         1,
		ManualRetry:     true,
	}
	if err := job.Validate(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	queueName := queue.PartitionQueueName(queue.PartitionFor(idempotencyKey, s.partitions))
	if err := s.publisher.Publish(ctx, queueName, job); err != nil {
		return fmt.Errorf("%w: failed to requeue deletion job: %v", domain.ErrQueueUnavailable, err)
	}

	if s.metrics != nil {
		s.metrics.IncManualRequeue()
	}
	s.logger.Info("deletion job manually requeued",
		zap.String("idempotencyKey", idempotencyKey),
		zap.String("queue", queueName),
	)

	return nil
}
