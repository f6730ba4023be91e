package queue

import (
	"fmt"
	"strings"
	"time"
)

// DeletionJob is the broker payload for hard-deletion work. Field names are
// part of the wire contract.
type DeletionJob struct {
	IdempotencyKey  string    `json:"idempotencyKey"`
	UserID          string    `json:"userId"`
	NotificationIDs []string  `json:"notificationIds"`
	Timestamp       time.Time `json:"timestamp"`
	Attempt         int       `json:"attempt,omitempty"`
	ManualRetry     bool      `json:"manualRetry,omitempty"`
}

func (j DeletionJob) Validate() error {
	if strings.TrimSpace(j.IdempotencyKey) == "" {
		return fmt.Errorf("idempotencyKey is required")
	}
	if strings.TrimSpace(j.UserID) == "" {
		return fmt.Errorf("userId is required")
	}
	if len(j.NotificationIDs) == 0 {
		return fmt.Errorf("notificationIds is required")
	}
	for _, id := range j.NotificationIDs {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("notificationIds must not contain empty ids")
		}
	}
	return nil
}
