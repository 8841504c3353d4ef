package feedprovider_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"rinkreel/internal/services"
	"rinkreel/internal/services/feedprovider"
	"rinkreel/internal/testsupport"
)

func newClient(t *testing.T, handler http.Handler) *feedprovider.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := testsupport.NewConfig(t)
	cfg.Provider.BaseURL = server.URL
	cfg.Provider.RetryAttempts = 3
	cfg.Provider.RetryBackoffMS = 1
	return feedprovider.NewClient(cfg, nil)
}

func loginHandler(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Email == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"token":      "tok-123",
			"expires_at": time.Now().Add(time.Hour).Format(time.RFC3339),
		})
	})
}

func TestAuthenticateCachesSession(t *testing.T) {
	var logins atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		logins.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]string{"token": "tok-123"})
	})
	client := newClient(t, mux)

	ctx := context.Background()
	first, err := client.Authenticate(ctx)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if first.Token != "tok-123" {
		t.Fatalf("token = %q", first.Token)
	}
	if _, err := client.Authenticate(ctx); err != nil {
		t.Fatalf("second authenticate: %v", err)
	}
	if got := logins.Load(); got != 1 {
		t.Fatalf("login calls = %d, want 1", got)
	}
}

func TestAuthenticateBadCredentials(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	client := newClient(t, mux)

	_, err := client.Authenticate(context.Background())
	if !errors.Is(err, services.ErrAuthentication) {
		t.Fatalf("err = %v, want authentication failure", err)
	}
}

func TestLocateFeedFindsMatchingRink(t *testing.T) {
	mux := http.NewServeMux()
	loginHandler(mux)
	mux.HandleFunc("GET /api/feeds", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-123" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Query().Get("date") != "2026-03-14" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"feeds": []map[string]string{
				{"rink_id": "other", "url": "http://feeds.test/other"},
				{"rink_id": "feed-1001", "url": "http://feeds.test/1001"},
			},
		})
	})
	client := newClient(t, mux)

	feed, err := client.LocateFeed(context.Background(), "feed-1001",
		time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("locate: %v", err)
	}
	if feed.URL != "http://feeds.test/1001" {
		t.Fatalf("feed url = %q", feed.URL)
	}
}

func TestLocateFeedMissingRink(t *testing.T) {
	mux := http.NewServeMux()
	loginHandler(mux)
	mux.HandleFunc("GET /api/feeds", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"feeds": []map[string]string{}})
	})
	client := newClient(t, mux)

	_, err := client.LocateFeed(context.Background(), "feed-1001", time.Now())
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestFetchRangeRetriesTransientFailures(t *testing.T) {
	var attempts atomic.Int32
	mux := http.NewServeMux()
	loginHandler(mux)
	mux.HandleFunc("GET /range", func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("video-bytes"))
	})
	client := newClient(t, mux)

	feed := &feedprovider.FeedHandle{URL: client.BaseURL() + "/range", RinkID: "feed-1001"}
	var buf bytes.Buffer
	n, err := client.FetchRange(context.Background(), feed, 0, 30_000, &buf)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if n != int64(len("video-bytes")) || buf.String() != "video-bytes" {
		t.Fatalf("fetched %d bytes: %q", n, buf.String())
	}
	if got := attempts.Load(); got != 3 {
		t.Fatalf("attempts = %d, want 3", got)
	}
}

func TestFetchRangeRestartsPartialWrite(t *testing.T) {
	const body = "video-bytes"
	var attempts atomic.Int32
	mux := http.NewServeMux()
	loginHandler(mux)
	mux.HandleFunc("GET /range", func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			// Advertise the full body but drop the connection mid-stream.
			w.Header().Set("Content-Length", strconv.Itoa(len(body)))
			_, _ = w.Write([]byte(body[:4]))
			return
		}
		_, _ = w.Write([]byte(body))
	})
	client := newClient(t, mux)

	dst, err := os.Create(filepath.Join(t.TempDir(), "seg.mp4"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer dst.Close()

	feed := &feedprovider.FeedHandle{URL: client.BaseURL() + "/range", RinkID: "feed-1001"}
	n, err := client.FetchRange(context.Background(), feed, 0, 30_000, dst)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if n != int64(len(body)) {
		t.Fatalf("written = %d, want %d", n, len(body))
	}
	got, err := os.ReadFile(dst.Name())
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(got) != body {
		t.Fatalf("file = %q, want %q", got, body)
	}
	if count := attempts.Load(); count != 2 {
		t.Fatalf("attempts = %d, want 2", count)
	}
}

func TestFetchRangePartialWriteNotRetriedOnPlainWriter(t *testing.T) {
	var attempts atomic.Int32
	mux := http.NewServeMux()
	loginHandler(mux)
	mux.HandleFunc("GET /range", func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.Header().Set("Content-Length", "64")
		_, _ = w.Write([]byte("half"))
	})
	client := newClient(t, mux)

	feed := &feedprovider.FeedHandle{URL: client.BaseURL() + "/range", RinkID: "feed-1001"}
	var buf bytes.Buffer
	_, err := client.FetchRange(context.Background(), feed, 0, 30_000, &buf)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("err = %v, want external tool failure", err)
	}
	if got := attempts.Load(); got != 1 {
		t.Fatalf("attempts = %d, want 1", got)
	}
}

func TestFetchRangeEmptyBodyIsNotFound(t *testing.T) {
	mux := http.NewServeMux()
	loginHandler(mux)
	mux.HandleFunc("GET /range", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	client := newClient(t, mux)

	feed := &feedprovider.FeedHandle{URL: client.BaseURL() + "/range", RinkID: "feed-1001"}
	var buf bytes.Buffer
	_, err := client.FetchRange(context.Background(), feed, 0, 30_000, &buf)
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestFetchRangeNoRetryOnAuthFailure(t *testing.T) {
	var attempts atomic.Int32
	mux := http.NewServeMux()
	loginHandler(mux)
	mux.HandleFunc("GET /range", func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusForbidden)
	})
	client := newClient(t, mux)

	feed := &feedprovider.FeedHandle{URL: client.BaseURL() + "/range", RinkID: "feed-1001"}
	var buf bytes.Buffer
	_, err := client.FetchRange(context.Background(), feed, 0, 30_000, &buf)
	if !errors.Is(err, services.ErrAuthentication) {
		t.Fatalf("err = %v, want authentication failure", err)
	}
	if got := attempts.Load(); got != 1 {
		t.Fatalf("attempts = %d, want 1", got)
	}
}
