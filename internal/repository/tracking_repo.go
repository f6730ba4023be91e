package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/purgeworks/deletion-engine/internal/domain"
	"gorm.io/gorm"
)

// TrackingRepository persists deletion tracking records. Status updates are
// conditional and forward-only so a duplicate delivery can never regress a
// record that already reached a later or terminal state.
type TrackingRepository interface {
	Create(ctx context.Context, t *domain.DeletionTracking) error
	GetByKey(ctx context.Context, idempotencyKey string) (*domain.DeletionTracking, error)
	GetByID(ctx context.Context, id string) (*domain.DeletionTracking, error)
	AdvanceStatus(ctx context.Context, idempotencyKey string, to domain.DeletionStatus, at time.Time) (bool, error)
	MarkFailed(ctx context.Context, idempotencyKey string, lastError string) (bool, error)
	RecordAttemptFailure(ctx context.Context, idempotencyKey string, lastError string) error
	SetQueueMessageID(ctx context.Context, idempotencyKey string, messageID string) error
	SetSoftDeletedCount(ctx context.Context, idempotencyKey string, count int) error
	DeleteExpired(ctx context.Context, olderThan time.Time, limit int) (int64, error)
}

type GormTrackingRepo struct {
	db *gorm.DB
}

func NewGormTrackingRepo(db *gorm.DB) *GormTrackingRepo {
	return &GormTrackingRepo{db: db}
}

func (r *GormTrackingRepo) Create(ctx context.Context, t *domain.DeletionTracking) error {
	model := trackingModelFromDomain(t)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if t != nil {
		*t = *trackingModelToDomain(model)
	}
	return nil
}

func (r *GormTrackingRepo) GetByKey(ctx context.Context, idempotencyKey string) (*domain.DeletionTracking, error) {
	var model DeletionTrackingModel
	err := r.db.WithContext(ctx).
		Where("idempotency_key = ?", idempotencyKey).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return trackingModelToDomain(&model), nil
}

func (r *GormTrackingRepo) GetByID(ctx context.Context, id string) (*domain.DeletionTracking, error) {
	var model DeletionTrackingModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return trackingModelToDomain(&model), nil
}

// AdvanceStatus moves the record forward in the state machine. Returns false
// when no row matched, i.e. the record is already at or past the requested
// state; callers treat that as an idempotent no-op.
func (r *GormTrackingRepo) AdvanceStatus(ctx context.Context, idempotencyKey string, to domain.DeletionStatus, at time.Time) (bool, error) {
	prior := domain.StatusesBefore(to)
	if len(prior) == 0 {
		return false, domain.ErrConflict
	}

	fields := map[string]any{"status": to}
	switch to {
	case domain.DeletionSoftDeleted:
		fields["soft_deleted_at"] = at
	case domain.DeletionHardDeleted:
		fields["hard_deleted_at"] = at
	}

	result := r.db.WithContext(ctx).
		Model(&DeletionTrackingModel{}).
		Where("idempotency_key = ? AND status IN ?", idempotencyKey, prior).
		Updates(fields)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// MarkFailed transitions a non-terminal record to FAILED and records the
// terminal error. Idempotent: a record already terminal is left untouched.
func (r *GormTrackingRepo) MarkFailed(ctx context.Context, idempotencyKey string, lastError string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&DeletionTrackingModel{}).
		Where("idempotency_key = ? AND status IN ?", idempotencyKey, domain.StatusesBefore(domain.DeletionFailed)).
		Updates(map[string]any{
			"status":      domain.DeletionFailed,
			"last_error":  truncateError(lastError),
			"retry_count": gorm.Expr("retry_count + 1"),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *GormTrackingRepo) RecordAttemptFailure(ctx context.Context, idempotencyKey string, lastError string) error {
	return r.db.WithContext(ctx).
		Model(&DeletionTrackingModel{}).
		Where("idempotency_key = ?", idempotencyKey).
		Updates(map[string]any{
			"last_error":  truncateError(lastError),
			"retry_count": gorm.Expr("retry_count + 1"),
		}).Error
}

func (r *GormTrackingRepo) SetQueueMessageID(ctx context.Context, idempotencyKey string, messageID string) error {
	return r.db.WithContext(ctx).
		Model(&DeletionTrackingModel{}).
		Where("idempotency_key = ?", idempotencyKey).
		Update("queue_message_id", messageID).Error
}

func (r *GormTrackingRepo) SetSoftDeletedCount(ctx context.Context, idempotencyKey string, count int) error {
	return r.db.WithContext(ctx).
		Model(&DeletionTrackingModel{}).
		Where("idempotency_key = ?", idempotencyKey).
		Update("soft_deleted_count", count).Error
}

// DeleteExpired removes tracking records past the retention window in bounded
// batches. Returns the number of rows removed.
func (r *GormTrackingRepo) DeleteExpired(ctx context.Context, olderThan time.Time, limit int) (int64, error) {
	if limit < 1 {
		limit = 100
	}

	result := r.db.WithContext(ctx).
		Where("id IN (?)", r.db.
			Model(&DeletionTrackingModel{}).
			Select("id").
			Where("created_at < ?", olderThan).
			Limit(limit),
		).
		Delete(&DeletionTrackingModel{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

const maxStoredErrorLen = 2048

func truncateError(msg string) string {
	msg = strings.TrimSpace(msg)
	if len(msg) > maxStoredErrorLen {
		return msg[:maxStoredErrorLen]
	}
	return msg
}
