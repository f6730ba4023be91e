package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/purgeworks/deletion-engine/internal/domain"
	"github.com/purgeworks/deletion-engine/internal/idempotency"
	"github.com/purgeworks/deletion-engine/internal/observability"
	"github.com/purgeworks/deletion-engine/internal/queue"
	"github.com/purgeworks/deletion-engine/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxDeletionBatchSize = 1000

// StatusCache is a best-effort cache of tracking records for status polling.
// Implementations log their own failures; callers never branch on cache
// health.
type StatusCache interface {
	GetTracking(ctx context.Context, trackingID string) (*domain.DeletionTracking, bool)
	SetTracking(ctx context.Context, t *domain.DeletionTracking)
	Invalidate(ctx context.Context, trackingID string)
}

// SubmitResult is the accepted-deletion response shape. Identical for fresh
// and duplicate submissions so clients can retry blindly.
type SubmitResult struct {
	Status           string
	IdempotencyKey   string
	TrackingID       string
	SoftDeletedCount int
}

// StatusAccepted is the only submit outcome; everything async is observed via
// status polling.
const StatusAccepted = "ACCEPTED"

// RequestService accepts deletion requests: idempotency check, tracking
// record, synchronous soft delete, then a best-effort enqueue of the
// hard-deletion job.
type RequestService struct {
	trackings     repository.TrackingRepository
	notifications repository.NotificationRepository
	publisher     queue.Publisher
	cache         StatusCache
	partitions    int
	logger        *zap.Logger
	metrics       *observability.Metrics
	now           func() time.Time
}

func NewRequestService(
	trackings repository.TrackingRepository,
	notifications repository.NotificationRepository,
	publisher queue.Publisher,
	cache StatusCache,
	partitions int,
	logger *zap.Logger,
) (*RequestService, error) {
	if trackings == nil {
		return nil, fmt.Errorf("tracking repository is required")
	}
	if notifications == nil {
		return nil, fmt.Errorf("notification repository is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if partitions < 1 {
		partitions = queue.DefaultPartitions
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RequestService{
		trackings:     trackings,
		notifications: notifications,
		publisher:     publisher,
		cache:         cache,
		partitions:    partitions,
		logger:        logger,
		now:           time.Now,
	}, nil
}

func (s *RequestService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// SubmitBatch accepts a bulk deletion request. Safe to call repeatedly: the
// same requester and target set always dedupe onto one tracking record.
func (s *RequestService) SubmitBatch(ctx context.Context, requesterID string, targetIDs []string) (*SubmitResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	requesterID, targetIDs, err := normalizeRequest(requesterID, targetIDs)
	if err != nil {
		return nil, err
	}

	key := idempotency.Key(requesterID, targetIDs)
	result, err := s.submit(ctx, key, requesterID, targetIDs)
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.IncDeletionAccepted("batch")
	}
	return result, nil
}

// SubmitSingle is SubmitBatch specialized to a one-element set; the target id
// itself guarantees uniqueness, so the key uses the simpler single scheme.
func (s *RequestService) SubmitSingle(ctx context.Context, requesterID string, targetID string) (*SubmitResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	requesterID, targetIDs, err := normalizeRequest(requesterID, []string{targetID})
	if err != nil {
		return nil, err
	}

	key := idempotency.SingleKey(targetIDs[0])
	result, err := s.submit(ctx, key, requesterID, targetIDs)
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.IncDeletionAccepted("single")
	}
	return result, nil
}

func (s *RequestService) submit(ctx context.Context, key string, requesterID string, targetIDs []string) (*SubmitResult, error) {
	existing, err := s.trackings.GetByKey(ctx, key)
	if err == nil {
		if s.metrics != nil {
			s.metrics.IncDuplicateSubmission()
		}
		s.logger.Info("duplicate deletion submission",
			zap.String("idempotencyKey", key),
			zap.String("trackingId", existing.ID),
		)
		return &SubmitResult{
			Status:         StatusAccepted,
			IdempotencyKey: key,
			TrackingID:     existing.ID,
			// Targets were already soft-deleted by the first accept.
			SoftDeletedCount: 0,
		}, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%w: failed to look up tracking record: %v", domain.ErrStorage, err)
	}

	tracking := &domain.DeletionTracking{
		ID:             uuid.NewString(),
		IdempotencyKey: key,
		RequesterID:    requesterID,
		TargetIDs:      domain.TargetIDs(targetIDs),
		Status:         domain.DeletionPending,
	}
	if err := tracking.Validate(); err != nil {
		return nil, err
	}

	// The tracking record must exist before any visible side effect; if this
	// write fails the request fails with no partial state.
	if err := s.trackings.Create(ctx, tracking); err != nil {
		resolved, resolveErr := s.resolveCreateRace(ctx, err, key)
		if resolveErr != nil {
			return nil, resolveErr
		}
		if resolved != nil {
			return resolved, nil
		}
		return nil, fmt.Errorf("%w: failed to create tracking record: %v", domain.ErrStorage, err)
	}

	softDeleted := s.softDelete(ctx, key, requesterID, targetIDs)

	if err := s.trackings.SetSoftDeletedCount(ctx, key, int(softDeleted)); err != nil {
		s.logger.Warn("failed to record soft-deleted count",
			zap.String("idempotencyKey", key),
			zap.Error(err),
		)
	}

	s.enqueue(ctx, key, requesterID, targetIDs)

	return &SubmitResult{
		Status:           StatusAccepted,
		IdempotencyKey:   key,
		TrackingID:       tracking.ID,
		SoftDeletedCount: int(softDeleted),
	}, nil
}

// softDelete hides the targets from active reads immediately. Optimistic and
// best-effort: a failure here is recovered by the async worker, never
// surfaced to the caller.
func (s *RequestService) softDelete(ctx context.Context, key string, requesterID string, targetIDs []string) int64 {
	softDeleted, err := s.notifications.SoftDelete(ctx, targetIDs, requesterID, s.now().UTC())
	if err != nil {
		s.logger.Warn("synchronous soft delete failed",
			zap.String("idempotencyKey", key),
			zap.Error(err),
		)
		return 0
	}

	if s.metrics != nil {
		s.metrics.AddSoftDeleted(float64(softDeleted))
	}
	return softDeleted
}

// enqueue publishes the hard-deletion job, keyed so every retry of the same
// logical deletion lands on the same partition. A publish failure is logged
// and swallowed: the record stays PENDING and is recoverable by resubmission
// or the reconciliation sweep.
func (s *RequestService) enqueue(ctx context.Context, key string, requesterID string, targetIDs []string) {
	job := queue.DeletionJob{
		IdempotencyKey:  key,
		UserID:          requesterID,
		NotificationIDs: targetIDs,
		Timestamp:       s.now().UTC(),
		Attempt:         1,
	}

	queueName := queue.PartitionQueueName(queue.PartitionFor(key, s.partitions))
	if err := s.publisher.Publish(ctx, queueName, job); err != nil {
		if s.metrics != nil {
			s.metrics.IncEnqueueFailure()
		}
		s.logger.Error("failed to enqueue hard-deletion job",
			zap.String("idempotencyKey", key),
			zap.String("queue", queueName),
			zap.Error(err),
		)
		return
	}

	if err := s.trackings.SetQueueMessageID(ctx, key, key); err != nil {
		s.logger.Warn("failed to record queue message id",
			zap.String("idempotencyKey", key),
			zap.Error(err),
		)
	}
}

// GetStatus returns the tracking record for polling. Records owned by another
// requester read as missing; existence is never leaked.
func (s *RequestService) GetStatus(ctx context.Context, trackingID string, requesterID string) (*domain.DeletionTracking, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	trackingID = strings.TrimSpace(trackingID)
	requesterID = strings.TrimSpace(requesterID)
	if trackingID == "" {
		return nil, fmt.Errorf("%w: tracking id is required", domain.ErrValidation)
	}
	if requesterID == "" {
		return nil, fmt.Errorf("%w: requester id is required", domain.ErrValidation)
	}

	if s.cache != nil {
		if cached, ok := s.cache.GetTracking(ctx, trackingID); ok {
			if cached.RequesterID != requesterID {
				return nil, domain.ErrNotFound
			}
			return cached, nil
		}
	}

	tracking, err := s.trackings.GetByID(ctx, trackingID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("%w: failed to load tracking record: %v", domain.ErrStorage, err)
	}

	if tracking.RequesterID != requesterID {
		return nil, domain.ErrNotFound
	}

	if s.cache != nil {
		s.cache.SetTracking(ctx, tracking)
	}

	return tracking, nil
}

// resolveCreateRace handles two concurrent first submissions: the loser of the
// unique-index race returns the winner's record.
func (s *RequestService) resolveCreateRace(ctx context.Context, createErr error, key string) (*SubmitResult, error) {
	if !isUniqueViolationError(createErr) {
		return nil, nil
	}

	existing, err := s.trackings.GetByKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load tracking record after idempotency conflict: %v", domain.ErrStorage, err)
	}

	s.logger.Info("idempotency conflict resolved",
		zap.String("trackingId", existing.ID),
		zap.String("idempotencyKey", key),
	)

	return &SubmitResult{
		Status:           StatusAccepted,
		IdempotencyKey:   key,
		TrackingID:       existing.ID,
		SoftDeletedCount: 0,
	}, nil
}

func normalizeRequest(requesterID string, targetIDs []string) (string, []string, error) {
	requesterID = strings.TrimSpace(requesterID)
	if requesterID == "" {
		return "", nil, fmt.Errorf("%w: requester id is required", domain.ErrValidation)
	}
	if len(targetIDs) == 0 {
		return "", nil, fmt.Errorf("%w: target ids are required", domain.ErrValidation)
	}
	if len(targetIDs) > maxDeletionBatchSize {
		return "", nil, fmt.Errorf("%w: batch size exceeds %d", domain.ErrValidation, maxDeletionBatchSize)
	}

	normalized := make([]string, 0, len(targetIDs))
	for _, id := range targetIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			return "", nil, fmt.Errorf("%w: target ids must not be empty", domain.ErrValidation)
		}
		normalized = append(normalized, id)
	}

	return requesterID, normalized, nil
}

func isUniqueViolationError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}
