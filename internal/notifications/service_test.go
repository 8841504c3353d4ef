package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"rinkreel/internal/config"
	"rinkreel/internal/notifications"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.NotifyJobStarted(context.Background(), "Home vs Away"); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		notify         func(svc notifications.Service) error
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name: "job started",
			notify: func(svc notifications.Service) error {
				return svc.NotifyJobStarted(context.Background(), "Bears vs Wolves")
			},
			expectTitle:   "RinkReel - Processing Started",
			expectMessage: "Started processing: Bears vs Wolves",
			expectTags:    "rinkreel,job,started",
		},
		{
			name: "job completed",
			notify: func(svc notifications.Service) error {
				return svc.NotifyJobCompleted(context.Background(), "Bears vs Wolves", "/out/session_x_final.mp4")
			},
			expectTitle:    "RinkReel - Complete",
			expectMessage:  "Highlight reel ready: Bears vs Wolves\nFile: /out/session_x_final.mp4",
			expectTags:     "rinkreel,job,completed",
			expectPriority: "high",
		},
		{
			name: "job failed",
			notify: func(svc notifications.Service) error {
				return svc.NotifyJobFailed(context.Background(), "Bears vs Wolves", "no feed available")
			},
			expectTitle:    "RinkReel - Failed",
			expectMessage:  "Processing failed: Bears vs Wolves\nno feed available",
			expectTags:     "rinkreel,job,failed",
			expectPriority: "high",
		},
		{
			name: "job cancelled",
			notify: func(svc notifications.Service) error {
				return svc.NotifyJobCancelled(context.Background(), "Bears vs Wolves")
			},
			expectTitle:   "RinkReel - Cancelled",
			expectMessage: "Processing cancelled: Bears vs Wolves",
			expectTags:    "rinkreel,job,cancelled",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var captured struct {
				title    string
				tags     string
				priority string
				body     string
			}

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Fatalf("unexpected method: %s", r.Method)
				}
				captured.title = r.Header.Get("Title")
				captured.tags = r.Header.Get("Tags")
				captured.priority = r.Header.Get("Priority")
				body, err := io.ReadAll(r.Body)
				if err != nil {
					t.Fatalf("read body: %v", err)
				}
				captured.body = string(body)
				_ = r.Body.Close()
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			cfg := config.Default()
			cfg.Notifications.NtfyTopic = server.URL
			cfg.Notifications.RequestTimeout = 5

			svc := notifications.NewService(&cfg)
			if err := tc.notify(svc); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}

			if captured.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, captured.title)
			}
			if captured.body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, captured.body)
			}
			if captured.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, captured.tags)
			}
			if captured.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, captured.priority)
			}
		})
	}
}
