package domain

import "time"

// Notification is the stored entity whose deletion lifecycle this pipeline
// owns. The authoring subsystem creates rows; once a deletion request is
// accepted only the deletion pipeline mutates or removes them.
type Notification struct {
	ID          string `gorm:"type:uuid;primaryKey"`
	RecipientID string `gorm:"type:varchar(255);not null"`
	Title       string `gorm:"type:varchar(255);not null"`
	Body        string `gorm:"type:text;not null"`
	DeletedAt   *time.Time
	DeletedBy   *string `gorm:"type:varchar(255)"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsSoftDeleted reports whether the notification is hidden from active reads.
func (n *Notification) IsSoftDeleted() bool {
	return n != nil && n.DeletedAt != nil
}
