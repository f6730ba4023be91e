package alert

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestWebhookAlerterDeliversAlert(t *testing.T) {
	t.Parallel()

	var received Alert
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Fatalf("content type = %s, want application/json", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("failed to decode alert payload: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	alerter, err := NewWebhookAlerter(server.URL)
	if err != nil {
		t.Fatalf("NewWebhookAlerter() error = %v", err)
	}

	a := Alert{
		IdempotencyKey:  "key-1",
		RequesterID:     "user-1",
		NotificationIDs: []string{"n-1", "n-2"},
		Reason:          "delivery limit exceeded",
		FailedAt:        time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC),
	}

	if err := alerter.Alert(context.Background(), a); err != nil {
		t.Fatalf("Alert() error = %v", err)
	}

	if received.IdempotencyKey != "key-1" {
		t.Fatalf("idempotencyKey = %s, want key-1", received.IdempotencyKey)
	}
	if received.RequesterID != "user-1" {
		t.Fatalf("requesterId = %s, want user-1", received.RequesterID)
	}
	if len(received.NotificationIDs) != 2 {
		t.Fatalf("notificationIds = %v, want 2 ids", received.NotificationIDs)
	}
}

func TestWebhookAlerterErrorStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	alerter, err := NewWebhookAlerter(server.URL)
	if err != nil {
		t.Fatalf("NewWebhookAlerter() error = %v", err)
	}

	if err := alerter.Alert(context.Background(), Alert{IdempotencyKey: "key-1"}); err == nil {
		t.Fatal("Alert() expected error for 500 response")
	}
}

func TestWebhookAlerterEndpointValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		endpoint string
	}{
		{name: "empty", endpoint: "   "},
		{name: "not a url", endpoint: "::bad::"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if _, err := NewWebhookAlerter(tt.endpoint); err == nil {
				t.Fatal("NewWebhookAlerter() expected error")
			}
		})
	}
}
