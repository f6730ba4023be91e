package observability

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsPipelineCollectors(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()

	metrics.IncDeletionAccepted("BATCH")
	metrics.IncDuplicateSubmission()
	metrics.AddSoftDeleted(3)
	metrics.IncEnqueueFailure()
	metrics.IncHardDeleted()
	metrics.IncHardDeleteRetry()
	metrics.ObserveHardDeleteDuration(80 * time.Millisecond)
	metrics.IncWorkerInFlight()
	metrics.DecWorkerInFlight()
	metrics.IncDeadLettered()
	metrics.IncAlert("delivered")
	metrics.IncManualRequeue()
	metrics.AddTrackingExpired(42)

	if got := testutil.ToFloat64(metrics.deletionsAcceptedTotal.WithLabelValues("batch")); got != 1 {
		t.Fatalf("deletions_accepted_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.duplicateSubmissionsTotal); got != 1 {
		t.Fatalf("duplicate_submissions_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.softDeletedTotal); got != 3 {
		t.Fatalf("soft_deleted_total = %v, want 3", got)
	}
	if got := testutil.ToFloat64(metrics.enqueueFailuresTotal); got != 1 {
		t.Fatalf("enqueue_failures_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.hardDeletedTotal); got != 1 {
		t.Fatalf("hard_deleted_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.hardDeleteRetriesTotal); got != 1 {
		t.Fatalf("hard_delete_retries_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.workerInflight); got != 0 {
		t.Fatalf("worker_inflight = %v, want 0", got)
	}
	if got := testutil.ToFloat64(metrics.deadLetteredTotal); got != 1 {
		t.Fatalf("dead_lettered_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.alertsTotal.WithLabelValues("delivered")); got != 1 {
		t.Fatalf("alerts_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.manualRequeuesTotal); got != 1 {
		t.Fatalf("manual_requeues_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.trackingExpiredTotal); got != 42 {
		t.Fatalf("tracking_expired_total = %v, want 42", got)
	}
}

func TestMetricsNilReceiverIsSafe(t *testing.T) {
	t.Parallel()

	var metrics *Metrics

	metrics.IncDeletionAccepted("single")
	metrics.IncDuplicateSubmission()
	metrics.AddSoftDeleted(1)
	metrics.IncHardDeleted()
	metrics.IncWorkerInFlight()
	metrics.DecWorkerInFlight()
	metrics.IncDeadLettered()
	metrics.IncAlert("failed")
	metrics.IncManualRequeue()
	metrics.AddTrackingExpired(1)
}

func TestMetricsHTTPMiddlewareRecordsRequest(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()
	app := fiber.New()
	app.Use(metrics.HTTPMiddleware())
	app.Get("/livez", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest("GET", "/livez", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	if got := testutil.ToFloat64(metrics.httpRequestsTotal.WithLabelValues("GET", "/livez", "200")); got != 1 {
		t.Fatalf("http_requests_total = %v, want 1", got)
	}
}

func TestMetricsHTTPMiddlewareRecordsErrorStatus(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()
	app := fiber.New()
	app.Use(metrics.HTTPMiddleware())
	app.Get("/boom", func(c *fiber.Ctx) error {
		return errors.New("boom")
	})

	req := httptest.NewRequest("GET", "/boom", nil)
	if _, err := app.Test(req); err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}

	if got := testutil.ToFloat64(metrics.httpRequestsTotal.WithLabelValues("GET", "/boom", "500")); got != 1 {
		t.Fatalf("http_requests_total = %v, want 1", got)
	}
}
