package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/purgeworks/deletion-engine/internal/domain"
	"github.com/purgeworks/deletion-engine/internal/service"
	"github.com/purgeworks/deletion-engine/internal/transport"
)

// requesterHeader carries the authenticated identity, set by the upstream
// auth middleware.
const requesterHeader = "X-User-ID"

type DeletionService interface {
	SubmitBatch(ctx context.Context, requesterID string, targetIDs []string) (*service.SubmitResult, error)
	SubmitSingle(ctx context.Context, requesterID string, targetID string) (*service.SubmitResult, error)
	GetStatus(ctx context.Context, trackingID string, requesterID string) (*domain.DeletionTracking, error)
}

type RequeueService interface {
	Requeue(ctx context.Context, idempotencyKey string, requesterID string, targetIDs []string) error
}

type DeletionHandler struct {
	deletions DeletionService
	requeues  RequeueService
}

func NewDeletionHandler(deletions DeletionService, requeues RequeueService) (*DeletionHandler, error) {
	if deletions == nil {
		return nil, fmt.Errorf("deletion service is required")
	}
	if requeues == nil {
		return nil, fmt.Errorf("requeue service is required")
	}
	return &DeletionHandler{deletions: deletions, requeues: requeues}, nil
}

func RegisterDeletionRoutes(router fiber.Router, deletions DeletionService, requeues RequeueService) error {
	h, err := NewDeletionHandler(deletions, requeues)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/deletions", h.SubmitBatchDeletion)
	v1.Delete("/notifications/:id", h.SubmitSingleDeletion)
	v1.Get("/deletions/:id", h.GetDeletionStatus)
	v1.Post("/deletions/:id/requeue", h.RequeueDeletion)

	return nil
}

type submitBatchRequest struct {
	NotificationIDs []string `json:"notificationIds"`
}

type submitResponse struct {
	Status           string `json:"status"`
	IdempotencyKey   string `json:"idempotencyKey"`
	TrackingID       string `json:"trackingId"`
	SoftDeletedCount int    `json:"softDeletedCount"`
}

type trackingResponse struct {
	TrackingID       string     `json:"trackingId"`
	IdempotencyKey   string     `json:"idempotencyKey"`
	Status           string     `json:"status"`
	TargetIDs        []string   `json:"targetIds"`
	RetryCount       int        `json:"retryCount"`
	LastError        *string    `json:"lastError,omitempty"`
	SoftDeletedCount int        `json:"softDeletedCount"`
	SoftDeletedAt    *time.Time `json:"softDeletedAt,omitempty"`
	HardDeletedAt    *time.Time `json:"hardDeletedAt,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

func (h *DeletionHandler) SubmitBatchDeletion(c *fiber.Ctx) error {
	requesterID, err := requesterFrom(c)
	if err != nil {
		return err
	}

	var req submitBatchRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	result, err := h.deletions.SubmitBatch(c.Context(), requesterID, req.NotificationIDs)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusAccepted).JSON(toSubmitResponse(result))
}

func (h *DeletionHandler) SubmitSingleDeletion(c *fiber.Ctx) error {
	requesterID, err := requesterFrom(c)
	if err != nil {
		return err
	}

	result, err := h.deletions.SubmitSingle(c.Context(), requesterID, c.Params("id"))
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusAccepted).JSON(toSubmitResponse(result))
}

func (h *DeletionHandler) GetDeletionStatus(c *fiber.Ctx) error {
	requesterID, err := requesterFrom(c)
	if err != nil {
		return err
	}

	tracking, err := h.deletions.GetStatus(c.Context(), c.Params("id"), requesterID)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toTrackingResponse(tracking))
}

// RequeueDeletion re-publishes a dead-lettered deletion. The tracking record
// is looked up under the calling requester, so operators requeue on behalf of
// the record's owner.
func (h *DeletionHandler) RequeueDeletion(c *fiber.Ctx) error {
	requesterID, err := requesterFrom(c)
	if err != nil {
		return err
	}

	tracking, err := h.deletions.GetStatus(c.Context(), c.Params("id"), requesterID)
	if err != nil {
		return toHTTPError(err)
	}

	if err := h.requeues.Requeue(c.Context(), tracking.IdempotencyKey, tracking.RequesterID, tracking.TargetIDs); err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"status":     "REQUEUED",
		"trackingId": tracking.ID,
	})
}

func requesterFrom(c *fiber.Ctx) (string, error) {
	requesterID := strings.TrimSpace(c.Get(requesterHeader))
	if requesterID == "" {
		return "", fiber.NewError(fiber.StatusUnauthorized, "missing requester identity")
	}
	return requesterID, nil
}

func toHTTPError(err error) error {
	return fiber.NewError(transport.StatusCode(err), err.Error())
}

func toSubmitResponse(result *service.SubmitResult) submitResponse {
	return submitResponse{
		Status:           result.Status,
		IdempotencyKey:   result.IdempotencyKey,
		TrackingID:       result.TrackingID,
		SoftDeletedCount: result.SoftDeletedCount,
	}
}

func toTrackingResponse(t *domain.DeletionTracking) trackingResponse {
	return trackingResponse{
		TrackingID:       t.ID,
		IdempotencyKey:   t.IdempotencyKey,
		Status:           t.Status.String(),
		TargetIDs:        t.TargetIDs,
		RetryCount:       t.RetryCount,
		LastError:        t.LastError,
		SoftDeletedCount: t.SoftDeletedCount,
		SoftDeletedAt:    t.SoftDeletedAt,
		HardDeletedAt:    t.HardDeletedAt,
		CreatedAt:        t.CreatedAt,
		UpdatedAt:        t.UpdatedAt,
	}
}
