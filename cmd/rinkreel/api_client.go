package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// apiClient talks to the daemon's HTTP API.
type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient(addr string) *apiClient {
	base := strings.TrimRight(addr, "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &apiClient{
		base: base,
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

type apiEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

type sessionView struct {
	ID       string `json:"id"`
	GameDate string `json:"game_date"`
	HomeTeam string `json:"home_team"`
	AwayTeam string `json:"away_team"`
	Status   string `json:"status"`
	Rink     struct {
		Name           string `json:"name"`
		ProviderRinkID string `json:"provider_rink_id"`
	} `json:"rink"`
	Comments []struct {
		TimestampMS int64  `json:"timestamp_ms"`
		Text        string `json:"text"`
	} `json:"comments"`
}

type jobView struct {
	ID           string `json:"id"`
	SessionID    string `json:"session_id"`
	Status       string `json:"status"`
	Progress     int    `json:"progress"`
	CurrentStep  string `json:"current_step"`
	ErrorMessage string `json:"error_message"`
	StitchedFile string `json:"stitched_file"`
	FinalFile    string `json:"final_file"`
	StartedAt    string `json:"started_at"`
	CompletedAt  string `json:"completed_at"`
}

type statusView struct {
	Running  bool           `json:"running"`
	Database string         `json:"database"`
	LockFile string         `json:"lock_file"`
	Jobs     map[string]int `json:"jobs"`
}

func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("is the daemon running? (%v)", err)
	}
	defer resp.Body.Close()

	var env apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if !env.Success {
		if env.Error != "" {
			return fmt.Errorf("%s", env.Error)
		}
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
	}
	return nil
}

func (c *apiClient) listSessions(ctx context.Context) ([]sessionView, error) {
	var sessions []sessionView
	err := c.do(ctx, http.MethodGet, "/api/sessions", nil, &sessions)
	return sessions, err
}

func (c *apiClient) getSession(ctx context.Context, id string) (*sessionView, error) {
	var session sessionView
	if err := c.do(ctx, http.MethodGet, "/api/sessions/"+id, nil, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (c *apiClient) createSession(ctx context.Context, body any) (*sessionView, error) {
	var session sessionView
	if err := c.do(ctx, http.MethodPost, "/api/sessions", body, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (c *apiClient) addComment(ctx context.Context, sessionID string, body any) error {
	return c.do(ctx, http.MethodPost, "/api/sessions/"+sessionID+"/comments", body, nil)
}

func (c *apiClient) submitJob(ctx context.Context, sessionID string) (*jobView, error) {
	var job jobView
	err := c.do(ctx, http.MethodPost, "/api/processing/jobs", map[string]string{"session_id": sessionID}, &job)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *apiClient) listJobs(ctx context.Context, status string) ([]jobView, error) {
	path := "/api/processing/jobs"
	if status != "" {
		path += "?status=" + status
	}
	var jobs []jobView
	err := c.do(ctx, http.MethodGet, path, nil, &jobs)
	return jobs, err
}

func (c *apiClient) getJob(ctx context.Context, id string) (*jobView, error) {
	var job jobView
	if err := c.do(ctx, http.MethodGet, "/api/processing/jobs/"+id, nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *apiClient) cancelJob(ctx context.Context, id string) (*jobView, error) {
	var job jobView
	if err := c.do(ctx, http.MethodPost, "/api/processing/jobs/"+id+"/cancel", nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *apiClient) status(ctx context.Context) (*statusView, error) {
	var status statusView
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}
