package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DeletionStatus represents the lifecycle state of a deletion request.
type DeletionStatus string

const (
	DeletionPending     DeletionStatus = "PENDING"
	DeletionSoftDeleted DeletionStatus = "SOFT_DELETED"
	DeletionHardDeleted DeletionStatus = "HARD_DELETED"
	DeletionFailed      DeletionStatus = "FAILED"
)

func (s DeletionStatus) String() string { return string(s) }

func (s DeletionStatus) IsValid() bool {
	switch s {
	case DeletionPending, DeletionSoftDeleted, DeletionHardDeleted, DeletionFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is allowed out of s.
func (s DeletionStatus) IsTerminal() bool {
	return s == DeletionHardDeleted || s == DeletionFailed
}

func ParseDeletionStatusFromString(v string) (DeletionStatus, error) {
	st := DeletionStatus(strings.ToUpper(strings.TrimSpace(v)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid deletion status %q", ErrValidation, v)
	}
	return st, nil
}

// statusRank orders the state machine: PENDING -> SOFT_DELETED -> HARD_DELETED,
// with FAILED terminal from any non-terminal state.
func statusRank(s DeletionStatus) int {
	switch s {
	case DeletionPending:
		return 0
	case DeletionSoftDeleted:
		return 1
	case DeletionHardDeleted, DeletionFailed:
		return 2
	}
	return -1
}

// CanTransition reports whether moving from -> to is a legal forward step.
func CanTransition(from, to DeletionStatus) bool {
	if !from.IsValid() || !to.IsValid() {
		return false
	}
	if from.IsTerminal() {
		return false
	}
	if to == DeletionFailed {
		return true
	}
	return statusRank(to) > statusRank(from)
}

// StatusesBefore returns every state a record may be in right before reaching
// to. Repositories use it to build forward-only conditional updates.
func StatusesBefore(to DeletionStatus) []DeletionStatus {
	prior := make([]DeletionStatus, 0, 2)
	for _, s := range []DeletionStatus{DeletionPending, DeletionSoftDeleted} {
		if CanTransition(s, to) {
			prior = append(prior, s)
		}
	}
	return prior
}

// TargetIDs is the ordered set of notification ids in a deletion request.
// Input order is irrelevant for identity but preserved for audit.
type TargetIDs []string

func (t TargetIDs) Value() (driver.Value, error) {
	return json.Marshal([]string(t))
}

func (t *TargetIDs) Scan(value any) error {
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, (*[]string)(t))
	case string:
		return json.Unmarshal([]byte(v), (*[]string)(t))
	case nil:
		*t = nil
		return nil
	}
	return fmt.Errorf("unsupported target ids column type %T", value)
}

// DeletionTracking is the persisted state machine instance for one deletion
// request. Exclusively owned by the deletion pipeline; expired rows are removed
// by the retention sweeper, never by the pipeline itself.
type DeletionTracking struct {
	ID               string         `gorm:"type:uuid;primaryKey"`
	IdempotencyKey   string         `gorm:"type:varchar(128);not null"`
	RequesterID      string         `gorm:"type:varchar(255);not null"`
	TargetIDs        TargetIDs      `gorm:"type:jsonb;not null"`
	Status           DeletionStatus `gorm:"type:varchar(20);not null"`
	QueueMessageID   *string        `gorm:"type:varchar(255)"`
	RetryCount       int            `gorm:"not null;default:0"`
	LastError        *string        `gorm:"type:text"`
	SoftDeletedCount int            `gorm:"not null;default:0"`
	SoftDeletedAt    *time.Time
	HardDeletedAt    *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (t *DeletionTracking) Validate() error {
	if strings.TrimSpace(t.IdempotencyKey) == "" {
		return fmt.Errorf("%w: idempotency key is required", ErrValidation)
	}
	if strings.TrimSpace(t.RequesterID) == "" {
		return fmt.Errorf("%w: requester id is required", ErrValidation)
	}
	if len(t.TargetIDs) == 0 {
		return fmt.Errorf("%w: target ids are required", ErrValidation)
	}
	if !t.Status.IsValid() {
		return fmt.Errorf("%w: invalid status %q", ErrValidation, t.Status)
	}
	return nil
}
