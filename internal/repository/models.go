package repository

import (
	"time"

	"github.com/purgeworks/deletion-engine/internal/domain"
)

// DeletionTrackingModel is the persistence model for deletion_trackings.
type DeletionTrackingModel struct {
	ID               string                `gorm:"type:uuid;primaryKey"`
	IdempotencyKey   string                `gorm:"type:varchar(128);not null"`
	RequesterID      string                `gorm:"type:varchar(255);not null"`
	TargetIDs        domain.TargetIDs      `gorm:"type:jsonb;not null"`
	Status           domain.DeletionStatus `gorm:"type:varchar(20);not null"`
	QueueMessageID   *string               `gorm:"type:varchar(255)"`
	RetryCount       int                   `gorm:"not null;default:0"`
	LastError        *string               `gorm:"type:text"`
	SoftDeletedCount int                   `gorm:"not null;default:0"`
	SoftDeletedAt    *time.Time
	HardDeletedAt    *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (DeletionTrackingModel) TableName() string {
	return "deletion_trackings"
}

// NotificationModel is the persistence model for notifications.
type NotificationModel struct {
	ID          string `gorm:"type:uuid;primaryKey"`
	RecipientID string `gorm:"type:varchar(255);not null"`
	Title       string `gorm:"type:varchar(255);not null"`
	Body        string `gorm:"type:text;not null"`
	DeletedAt   *time.Time
	DeletedBy   *string `gorm:"type:varchar(255)"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (NotificationModel) TableName() string {
	return "notifications"
}

func trackingModelFromDomain(t *domain.DeletionTracking) *DeletionTrackingModel {
	if t == nil {
		return nil
	}

	return &DeletionTrackingModel{
		ID:               t.ID,
		IdempotencyKey:   t.IdempotencyKey,
		RequesterID:      t.RequesterID,
		TargetIDs:        t.TargetIDs,
		Status:           t.Status,
		QueueMessageID:   t.QueueMessageID,
		RetryCount:       t.RetryCount,
		LastError:        t.LastError,
		SoftDeletedCount: t.SoftDeletedCount,
		SoftDeletedAt:    t.SoftDeletedAt,
		HardDeletedAt:    t.HardDeletedAt,
		CreatedAt:        t.CreatedAt,
		UpdatedAt:        t.UpdatedAt,
	}
}

func trackingModelToDomain(m *DeletionTrackingModel) *domain.DeletionTracking {
	if m == nil {
		return nil
	}

	return &domain.DeletionTracking{
		ID:               m.ID,
		IdempotencyKey:   m.IdempotencyKey,
		RequesterID:      m.RequesterID,
		TargetIDs:        m.TargetIDs,
		Status:           m.Status,
		QueueMessageID:   m.QueueMessageID,
		RetryCount:       m.RetryCount,
		LastError:        m.LastError,
		SoftDeletedCount: m.SoftDeletedCount,
		SoftDeletedAt:    m.SoftDeletedAt,
		HardDeletedAt:    m.HardDeletedAt,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

func notificationModelToDomain(m *NotificationModel) *domain.Notification {
	if m == nil {
		return nil
	}

	return &domain.Notification{
		ID:          m.ID,
		RecipientID: m.RecipientID,
		Title:       m.Title,
		Body:        m.Body,
		DeletedAt:   m.DeletedAt,
		DeletedBy:   m.DeletedBy,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}
