package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/purgeworks/deletion-engine/internal/domain"
	"github.com/purgeworks/deletion-engine/internal/service"
	"github.com/purgeworks/deletion-engine/internal/transport"
	"go.uber.org/zap"
)

func TestDeletionIntegration_SubmitBatch(t *testing.T) {
	t.Parallel()

	svc := &stubDeletionService{
		submitBatchFn: func(ctx context.Context, requesterID string, targetIDs []string) (*service.SubmitResult, error) {
			if requesterID != "user-1" {
				t.Fatalf("requester = %s, want user-1", requesterID)
			}
			if len(targetIDs) != 2 {
				t.Fatalf("targets = %d, want 2", len(targetIDs))
			}
			return &service.SubmitResult{
				Status:           service.StatusAccepted,
				IdempotencyKey:   "key-1",
				TrackingID:       "tracking-1",
				SoftDeletedCount: 2,
			}, nil
		},
	}

	app := newDeletionTestApp(t, svc, &stubRequeueService{})

	body := `{"notificationIds":["n-1","n-2"]}`
	resp, respBody := performRequest(t, app, http.MethodPost, "/v1/deletions", body, "user-1")
	if resp.StatusCode != fiber.StatusAccepted {
		t.Fatalf("status = %d, want 202, body=%s", resp.StatusCode, string(respBody))
	}

	var accepted map[string]any
	if err := json.Unmarshal(respBody, &accepted); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if accepted["status"] != service.StatusAccepted {
		t.Fatalf("status = %v, want ACCEPTED", accepted["status"])
	}
	if accepted["trackingId"] != "tracking-1" {
		t.Fatalf("trackingId = %v, want tracking-1", accepted["trackingId"])
	}
	if accepted["softDeletedCount"] != float64(2) {
		t.Fatalf("softDeletedCount = %v, want 2", accepted["softDeletedCount"])
	}
}

func TestDeletionIntegration_SubmitBatchValidation(t *testing.T) {
	t.Parallel()

	svc := &stubDeletionService{
		submitBatchFn: func(ctx context.Context, requesterID string, targetIDs []string) (*service.SubmitResult, error) {
			return nil, domain.ErrValidation
		},
	}

	app := newDeletionTestApp(t, svc, &stubRequeueService{})

	resp, _ := performRequest(t, app, http.MethodPost, "/v1/deletions", `{"notificationIds":[]}`, "user-1")
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for empty target list", resp.StatusCode)
	}

	resp, _ = performRequest(t, app, http.MethodPost, "/v1/deletions", `not json`, "user-1")
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for malformed body", resp.StatusCode)
	}
}

func TestDeletionIntegration_MissingRequesterHeader(t *testing.T) {
	t.Parallel()

	app := newDeletionTestApp(t, &stubDeletionService{}, &stubRequeueService{})

	resp, _ := performRequest(t, app, http.MethodPost, "/v1/deletions", `{"notificationIds":["n-1"]}`, "")
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 without requester header", resp.StatusCode)
	}

	resp, _ = performRequest(t, app, http.MethodGet, "/v1/deletions/tracking-1", "", "")
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 without requester header", resp.StatusCode)
	}
}

func TestDeletionIntegration_SubmitSingle(t *testing.T) {
	t.Parallel()

	svc := &stubDeletionService{
		submitSingleFn: func(ctx context.Context, requesterID string, targetID string) (*service.SubmitResult, error) {
			if targetID != "n-42" {
				t.Fatalf("target = %s, want n-42", targetID)
			}
			return &service.SubmitResult{
				Status:           service.StatusAccepted,
				IdempotencyKey:   "single-n-42",
				TrackingID:       "tracking-42",
				SoftDeletedCount: 1,
			}, nil
		},
	}

	app := newDeletionTestApp(t, svc, &stubRequeueService{})

	resp, respBody := performRequest(t, app, http.MethodDelete, "/v1/notifications/n-42", "", "user-1")
	if resp.StatusCode != fiber.StatusAccepted {
		t.Fatalf("status = %d, want 202, body=%s", resp.StatusCode, string(respBody))
	}

	var accepted map[string]any
	if err := json.Unmarshal(respBody, &accepted); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if accepted["idempotencyKey"] != "single-n-42" {
		t.Fatalf("idempotencyKey = %v, want single-n-42", accepted["idempotencyKey"])
	}
}

func TestDeletionIntegration_GetStatus(t *testing.T) {
	t.Parallel()

	hardDeletedAt := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	svc := &stubDeletionService{
		getStatusFn: func(ctx context.Context, trackingID string, requesterID string) (*domain.DeletionTracking, error) {
			if trackingID != "tracking-1" {
				return nil, domain.ErrNotFound
			}
			return &domain.DeletionTracking{
				ID:             "tracking-1",
				IdempotencyKey: "key-1",
				RequesterID:    requesterID,
				TargetIDs:      domain.TargetIDs{"n-1"},
				Status:         domain.DeletionHardDeleted,
				HardDeletedAt:  &hardDeletedAt,
			}, nil
		},
	}

	app := newDeletionTestApp(t, svc, &stubRequeueService{})

	resp, respBody := performRequest(t, app, http.MethodGet, "/v1/deletions/tracking-1", "", "user-1")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(respBody))
	}

	var view map[string]any
	if err := json.Unmarshal(respBody, &view); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if view["status"] != domain.DeletionHardDeleted.String() {
		t.Fatalf("status = %v, want HARD_DELETED", view["status"])
	}
	if view["hardDeletedAt"] == nil {
		t.Fatal("hardDeletedAt should be present for a completed deletion")
	}

	resp, _ = performRequest(t, app, http.MethodGet, "/v1/deletions/missing", "", "user-1")
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("status = %d, want 404 for unknown tracking id", resp.StatusCode)
	}
}

func TestDeletionIntegration_Requeue(t *testing.T) {
	t.Parallel()

	svc := &stubDeletionService{
		getStatusFn: func(ctx context.Context, trackingID string, requesterID string) (*domain.DeletionTracking, error) {
			return &domain.DeletionTracking{
				ID:             "tracking-1",
				IdempotencyKey: "key-1",
				RequesterID:    "user-1",
				TargetIDs:      domain.TargetIDs{"n-1", "n-2"},
				Status:         domain.DeletionFailed,
			}, nil
		},
	}

	var requeuedKey string
	requeues := &stubRequeueService{
		requeueFn: func(ctx context.Context, key string, requesterID string, targetIDs []string) error {
			requeuedKey = key
			if requesterID != "user-1" {
				t.Fatalf("requeue requester = %s, want user-1", requesterID)
			}
			if len(targetIDs) != 2 {
				t.Fatalf("requeue targets = %d, want 2", len(targetIDs))
			}
			return nil
		},
	}

	app := newDeletionTestApp(t, svc, requeues)

	resp, respBody := performRequest(t, app, http.MethodPost, "/v1/deletions/tracking-1/requeue", "", "user-1")
	if resp.StatusCode != fiber.StatusAccepted {
		t.Fatalf("status = %d, want 202, body=%s", resp.StatusCode, string(respBody))
	}
	if requeuedKey != "key-1" {
		t.Fatalf("requeued key = %s, want key-1", requeuedKey)
	}
}

func TestDeletionIntegration_RequeueBrokerDown(t *testing.T) {
	t.Parallel()

	svc := &stubDeletionService{
		getStatusFn: func(ctx context.Context, trackingID string, requesterID string) (*domain.DeletionTracking, error) {
			return &domain.DeletionTracking{
				ID:             "tracking-1",
				IdempotencyKey: "key-1",
				RequesterID:    "user-1",
				TargetIDs:      domain.TargetIDs{"n-1"},
				Status:         domain.DeletionFailed,
			}, nil
		},
	}

	requeues := &stubRequeueService{
		requeueFn: func(ctx context.Context, key string, requesterID string, targetIDs []string) error {
			return domain.ErrQueueUnavailable
		},
	}

	app := newDeletionTestApp(t, svc, requeues)

	resp, _ := performRequest(t, app, http.MethodPost, "/v1/deletions/tracking-1/requeue", "", "user-1")
	if resp.StatusCode != fiber.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503 when the broker is down", resp.StatusCode)
	}
}

type stubDeletionService struct {
	submitBatchFn  func(ctx context.Context, requesterID string, targetIDs []string) (*service.SubmitResult, error)
	submitSingleFn func(ctx context.Context, requesterID string, targetID string) (*service.SubmitResult, error)
	getStatusFn    func(ctx context.Context, trackingID string, requesterID string) (*domain.DeletionTracking, error)
}

func (s *stubDeletionService) SubmitBatch(ctx context.Context, requesterID string, targetIDs []string) (*service.SubmitResult, error) {
	if s.submitBatchFn != nil {
		return s.submitBatchFn(ctx, requesterID, targetIDs)
	}
	return &service.SubmitResult{Status: service.StatusAccepted}, nil
}

func (s *stubDeletionService) SubmitSingle(ctx context.Context, requesterID string, targetID string) (*service.SubmitResult, error) {
	if s.submitSingleFn != nil {
		return s.submitSingleFn(ctx, requesterID, targetID)
	}
	return &service.SubmitResult{Status: service.StatusAccepted}, nil
}

func (s *stubDeletionService) GetStatus(ctx context.Context, trackingID string, requesterID string) (*domain.DeletionTracking, error) {
	if s.getStatusFn != nil {
		return s.getStatusFn(ctx, trackingID, requesterID)
	}
	return nil, domain.ErrNotFound
}

type stubRequeueService struct {
	requeueFn func(ctx context.Context, idempotencyKey string, requesterID string, targetIDs []string) error
}

func (s *stubRequeueService) Requeue(ctx context.Context, idempotencyKey string, requesterID string, targetIDs []string) error {
	if s.requeueFn != nil {
		return s.requeueFn(ctx, idempotencyKey, requesterID, targetIDs)
	}
	return nil
}

func newDeletionTestApp(t *testing.T, svc DeletionService, requeues RequeueService) *fiber.App {
	t.Helper()

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(zap.NewNop()),
	})

	if err := RegisterDeletionRoutes(app, svc, requeues); err != nil {
		t.Fatalf("RegisterDeletionRoutes() error = %v", err)
	}

	return app
}

func performRequest(t *testing.T, app *fiber.App, method string, path string, body string, requesterID string) (*http.Response, []byte) {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if requesterID != "" {
		req.Header.Set(requesterHeader, requesterID)
	}

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	_ = resp.Body.Close()

	return resp, respBody
}
