package repository

import (
	"context"
	"errors"
	"time"

	"github.com/purgeworks/deletion-engine/internal/domain"
	"gorm.io/gorm"
)

// NotificationRepository covers the deletion pipeline's view of the
// notification store: soft-delete marking and the destructive hard delete.
type NotificationRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Notification, error)
	ListActive(ctx context.Context, recipientID string, limit int) ([]domain.Notification, error)
	SoftDelete(ctx context.Context, ids []string, requesterID string, at time.Time) (int64, error)
	HardDelete(ctx context.Context, ids []string) error
}

type GormNotificationRepo struct {
	db *gorm.DB
}

func NewGormNotificationRepo(db *gorm.DB) *GormNotificationRepo {
	return &GormNotificationRepo{db: db}
}

func (r *GormNotificationRepo) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	var model NotificationModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return notificationModelToDomain(&model), nil
}

// ListActive excludes soft-deleted rows; soft-deleted notifications must never
// surface on active read paths.
func (r *GormNotificationRepo) ListActive(ctx context.Context, recipientID string, limit int) ([]domain.Notification, error) {
	if limit < 1 {
		limit = 50
	}

	var models []NotificationModel
	err := r.db.WithContext(ctx).
		Where("recipient_id = ? AND deleted_at IS NULL", recipientID).
		Order("created_at DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	notifications := make([]domain.Notification, 0, len(models))
	for i := range models {
		notifications = append(notifications, *notificationModelToDomain(&models[i]))
	}
	return notifications, nil
}

// SoftDelete marks the requester's notifications among ids as deleted and
// returns how many rows were newly affected. Rows already soft-deleted or
// owned by someone else are skipped, which makes the call safe to repeat.
func (r *GormNotificationRepo) SoftDelete(ctx context.Context, ids []string, requesterID string, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	result := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("id IN ? AND recipient_id = ? AND deleted_at IS NULL", ids, requesterID).
		Updates(map[string]any{
			"deleted_at": at,
			"deleted_by": requesterID,
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// HardDelete physically removes the rows. Set removal: deleting an id that is
// already absent is not an error, so redelivered jobs are no-ops.
func (r *GormNotificationRepo) HardDelete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	return r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Delete(&NotificationModel{}).Error
}
