// Package feedprovider talks to the remote rink video provider: it signs in,
// locates the camera feed for a rink and date, and streams ranges of feed
// video to disk.
package feedprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"rinkreel/internal/config"
	"rinkreel/internal/logging"
	"rinkreel/internal/services"
)

// Credentials identify the coach's account with the provider.
type Credentials struct {
	Email    string
	Password string
}

// Session is an authenticated provider session.
type Session struct {
	Token     string
	ExpiresAt time.Time
}

// Valid reports whether the session token can still be used.
func (s *Session) Valid() bool {
	if s == nil || s.Token == "" {
		return false
	}
	return s.ExpiresAt.IsZero() || time.Now().Before(s.ExpiresAt)
}

// FeedHandle describes a located camera feed for one rink and date.
type FeedHandle struct {
	URL    string
	RinkID string
	Date   time.Time
}

// Client is an HTTP client for the provider API.
type Client struct {
	baseURL     string
	credentials Credentials
	httpClient  *http.Client
	attempts    int
	backoff     time.Duration
	logger      *slog.Logger

	sessionMu sync.Mutex
	session   *Session
}

// NewClient builds a provider client from configuration. Credentials come
// from the config layer, which resolves them from the environment when the
// file leaves them blank.
func NewClient(cfg *config.Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = logging.NewNop()
	}
	attempts := cfg.Provider.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &Client{
		baseURL:     strings.TrimRight(cfg.Provider.BaseURL, "/"),
		credentials: Credentials{Email: cfg.Provider.Email, Password: cfg.Provider.Password},
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Provider.RequestTimeout) * time.Second,
		},
		attempts: attempts,
		backoff:  time.Duration(cfg.Provider.RetryBackoffMS) * time.Millisecond,
		logger:   logger.With(logging.String(logging.FieldComponent, "feedprovider")),
	}
}

// BaseURL returns the provider endpoint the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

// Authenticate signs in and caches the session token. A still-valid cached
// session is reused without a network round trip. Concurrent callers share
// one login.
func (c *Client) Authenticate(ctx context.Context) (*Session, error) {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()
	if c.session.Valid() {
		return c.session, nil
	}

	body, err := json.Marshal(loginRequest{Email: c.credentials.Email, Password: c.credentials.Password})
	if err != nil {
		return nil, services.Wrap(services.ErrInternal, "authenticate", "marshal", "encoding login request", err)
	}

	var login loginResponse
	err = c.withRetry(ctx, "authenticate", func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/auth/login", bytes.NewReader(body))
		if err != nil {
			return services.Wrap(services.ErrInternal, "authenticate", "request", "building login request", err)
		}
		req.Header.Set("Content-Type", "application/json")
		return c.doJSON(req, "authenticate", &login)
	})
	if err != nil {
		return nil, err
	}
	if login.Token == "" {
		return nil, services.Wrap(services.ErrAuthentication, "authenticate", "login", "provider returned no session token", nil)
	}

	session := &Session{Token: login.Token}
	if login.ExpiresAt != "" {
		if expires, err := time.Parse(time.RFC3339, login.ExpiresAt); err == nil {
			session.ExpiresAt = expires
		}
	}
	c.session = session
	c.logger.Debug("provider session established")
	return session, nil
}

type feedResponse struct {
	Feeds []struct {
		RinkID string `json:"rink_id"`
		URL    string `json:"url"`
	} `json:"feeds"`
}

// LocateFeed finds the feed URL for a rink on a given date.
func (c *Client) LocateFeed(ctx context.Context, rinkID string, date time.Time) (*FeedHandle, error) {
	session, err := c.Authenticate(ctx)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("rink", rinkID)
	query.Set("date", date.Format("2006-01-02"))

	var feeds feedResponse
	err = c.withRetry(ctx, "locate", func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/feeds?"+query.Encode(), nil)
		if err != nil {
			return services.Wrap(services.ErrInternal, "locate", "request", "building feed request", err)
		}
		req.Header.Set("Authorization", "Bearer "+session.Token)
		return c.doJSON(req, "locate", &feeds)
	})
	if err != nil {
		return nil, err
	}

	for _, feed := range feeds.Feeds {
		if feed.RinkID == rinkID && feed.URL != "" {
			return &FeedHandle{URL: feed.URL, RinkID: rinkID, Date: date}, nil
		}
	}
	return nil, services.Wrap(services.ErrNotFound, "locate", "feeds",
		fmt.Sprintf("no feed available for rink %s on %s", rinkID, date.Format("2006-01-02")), nil)
}

// rewindableWriter is a destination that can be emptied before a retry.
// *os.File satisfies it.
type rewindableWriter interface {
	io.Seeker
	Truncate(size int64) error
}

// FetchRange downloads the feed between start and end (milliseconds on the
// feed timeline) into dst, returning the number of bytes written. A failure
// mid-stream is retried only when dst can be rewound and truncated; partial
// bytes written to a plain writer cannot be taken back, so those failures
// are terminal.
func (c *Client) FetchRange(ctx context.Context, feed *FeedHandle, startMS, endMS int64, dst io.Writer) (int64, error) {
	session, err := c.Authenticate(ctx)
	if err != nil {
		return 0, err
	}

	rangeURL := fmt.Sprintf("%s?start=%d&end=%d", feed.URL, startMS/1000, endMS/1000)
	var written int64
	err = c.withRetry(ctx, "fetch", func() error {
		if written > 0 {
			rw, ok := dst.(rewindableWriter)
			if !ok {
				return services.Wrap(services.ErrInternal, "fetch", "copy",
					"cannot retry a partially written range", nil)
			}
			if err := rw.Truncate(0); err != nil {
				return services.Wrap(services.ErrInternal, "fetch", "copy", "truncating partial range", err)
			}
			if _, err := rw.Seek(0, io.SeekStart); err != nil {
				return services.Wrap(services.ErrInternal, "fetch", "copy", "rewinding partial range", err)
			}
			written = 0
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rangeURL, nil)
		if err != nil {
			return services.Wrap(services.ErrInternal, "fetch", "request", "building range request", err)
		}
		req.Header.Set("Authorization", "Bearer "+session.Token)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return services.Wrap(services.ErrTransient, "fetch", "http", "requesting feed range", err)
		}
		defer resp.Body.Close()
		if err := classifyStatus(resp.StatusCode, "fetch"); err != nil {
			return err
		}

		written, err = io.Copy(dst, resp.Body)
		if err != nil {
			if _, ok := dst.(rewindableWriter); written > 0 && !ok {
				return services.Wrap(services.ErrExternalTool, "fetch", "copy",
					"feed stream failed after a partial write", err)
			}
			return services.Wrap(services.ErrTransient, "fetch", "copy", "streaming feed range", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if written == 0 {
		return 0, services.Wrap(services.ErrNotFound, "fetch", "copy", "provider returned an empty range", nil)
	}
	return written, nil
}

func (c *Client) doJSON(req *http.Request, step string, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, step, "http", "requesting provider endpoint", err)
	}
	defer resp.Body.Close()
	if err := classifyStatus(resp.StatusCode, step); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return services.Wrap(services.ErrExternalTool, step, "decode", "decoding provider response", err)
	}
	return nil
}

func classifyStatus(status int, step string) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return services.Wrap(services.ErrAuthentication, step, "http",
			"provider rejected credentials. Check RINKREEL_PROVIDER_EMAIL and RINKREEL_PROVIDER_PASSWORD", nil)
	case status == http.StatusNotFound:
		return services.Wrap(services.ErrNotFound, step, "http", "provider resource not found", nil)
	case status >= 500:
		return services.Wrap(services.ErrTransient, step, "http",
			fmt.Sprintf("provider returned status %d", status), nil)
	default:
		return services.Wrap(services.ErrExternalTool, step, "http",
			fmt.Sprintf("provider returned unexpected status %d", status), nil)
	}
}

// withRetry runs fn up to the configured attempt count, backing off between
// tries. Only transient failures retry.
func (c *Client) withRetry(ctx context.Context, step string, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return services.Wrap(services.ErrTransient, step, "retry", "cancelled while retrying", err)
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !services.IsRetryable(lastErr) || attempt == c.attempts {
			return lastErr
		}
		c.logger.Warn("provider request failed, retrying",
			logging.String("step", step),
			logging.Int("attempt", attempt),
			logging.Error(lastErr))
		select {
		case <-ctx.Done():
			return services.Wrap(services.ErrTransient, step, "retry", "cancelled while retrying", ctx.Err())
		case <-time.After(c.backoff * time.Duration(attempt)):
		}
	}
	return lastErr
}
