package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"rinkreel/internal/logging"
	"rinkreel/internal/services"
	"rinkreel/internal/store"
)

// envelope is the JSON wrapper every API response uses.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (d *Daemon) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(d.requestContext)
	if d.metrics != nil {
		r.Use(d.metrics.Middleware)
	}
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", d.handleStatus)

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", d.handleCreateSession)
			r.Get("/", d.handleListSessions)
			r.Get("/{sessionID}", d.handleGetSession)
			r.Post("/{sessionID}/comments", d.handleAddComment)
		})

		r.Route("/processing/jobs", func(r chi.Router) {
			r.Post("/", d.handleSubmitJob)
			r.Get("/", d.handleListJobs)
			r.Get("/{jobID}", d.handleGetJob)
			r.Post("/{jobID}/cancel", d.handleCancelJob)
		})
	})

	if d.metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.metrics.Handler(func() {
			stats, err := d.store.Stats(context.Background())
			if err != nil {
				return
			}
			d.metrics.SetQueuedJobs(stats.Queued)
		}))
	}
	return r
}

func (d *Daemon) requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := services.WithRequestID(r.Context(), uuid.NewString())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type rinkRequest struct {
	Name           string `json:"name"`
	Address        string `json:"address,omitempty"`
	ProviderRinkID string `json:"provider_rink_id"`
	Timezone       string `json:"timezone,omitempty"`
}

type createSessionRequest struct {
	Rink     rinkRequest `json:"rink"`
	GameDate string      `json:"game_date"`
	HomeTeam string      `json:"home_team"`
	AwayTeam string      `json:"away_team"`
}

func (d *Daemon) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		d.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	gameDate, err := parseGameDate(req.GameDate)
	if err != nil {
		d.writeError(w, http.StatusBadRequest, "game_date must be YYYY-MM-DD or RFC 3339")
		return
	}

	session, err := d.store.CreateSession(r.Context(), &store.Session{
		Rink: store.RinkLocation{
			Name:           req.Rink.Name,
			Address:        req.Rink.Address,
			ProviderRinkID: req.Rink.ProviderRinkID,
			Timezone:       req.Rink.Timezone,
		},
		GameDate: gameDate,
		HomeTeam: req.HomeTeam,
		AwayTeam: req.AwayTeam,
	})
	if err != nil {
		d.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	d.writeJSON(w, http.StatusCreated, sessionResponse(session))
}

func (d *Daemon) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := d.store.ListSessions(r.Context())
	if err != nil {
		d.internalError(w, r, err)
		return
	}
	out := make([]map[string]any, 0, len(sessions))
	for _, session := range sessions {
		out = append(out, sessionResponse(session))
	}
	d.writeJSON(w, http.StatusOK, out)
}

func (d *Daemon) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := d.store.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		d.internalError(w, r, err)
		return
	}
	if session == nil {
		d.writeError(w, http.StatusNotFound, "session not found")
		return
	}
	d.writeJSON(w, http.StatusOK, sessionResponse(session))
}

type addCommentRequest struct {
	TimestampMS int64    `json:"timestamp_ms"`
	Text        string   `json:"text"`
	Author      string   `json:"author,omitempty"`
	GameClock   string   `json:"game_clock,omitempty"`
	PosX        *float64 `json:"pos_x,omitempty"`
	PosY        *float64 `json:"pos_y,omitempty"`
	Color       string   `json:"color,omitempty"`
}

func (d *Daemon) handleAddComment(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	session, err := d.store.GetSession(r.Context(), sessionID)
	if err != nil {
		d.internalError(w, r, err)
		return
	}
	if session == nil {
		d.writeError(w, http.StatusNotFound, "session not found")
		return
	}

	var req addCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		d.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	comment, err := d.store.AddComment(r.Context(), &store.Comment{
		SessionID:   sessionID,
		TimestampMS: req.TimestampMS,
		Text:        req.Text,
		Author:      req.Author,
		GameClock:   req.GameClock,
		PosX:        req.PosX,
		PosY:        req.PosY,
		Color:       req.Color,
	})
	if err != nil {
		d.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	d.writeJSON(w, http.StatusCreated, commentResponse(*comment))
}

type submitJobRequest struct {
	SessionID string `json:"session_id"`
}

func (d *Daemon) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	var req submitJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		d.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	job, err := d.orch.Submit(r.Context(), req.SessionID)
	if err != nil {
		d.writeServiceError(w, r, err)
		return
	}
	d.writeJSON(w, http.StatusAccepted, jobResponse(job))
}

func (d *Daemon) handleListJobs(w http.ResponseWriter, r *http.Request) {
	var statuses []store.JobStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, ok := store.ParseJobStatus(raw)
		if !ok {
			d.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown job status %q", raw))
			return
		}
		statuses = append(statuses, status)
	}
	jobs, err := d.store.ListJobs(r.Context(), statuses...)
	if err != nil {
		d.internalError(w, r, err)
		return
	}
	out := make([]map[string]any, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, jobResponse(job))
	}
	d.writeJSON(w, http.StatusOK, out)
}

func (d *Daemon) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := d.store.GetJob(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		d.internalError(w, r, err)
		return
	}
	if job == nil {
		d.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	d.writeJSON(w, http.StatusOK, jobResponse(job))
}

func (d *Daemon) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	job, err := d.orch.Cancel(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		d.writeServiceError(w, r, err)
		return
	}
	d.writeJSON(w, http.StatusOK, jobResponse(job))
}

func (d *Daemon) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := d.store.Stats(r.Context())
	if err != nil {
		d.internalError(w, r, err)
		return
	}
	d.writeJSON(w, http.StatusOK, map[string]any{
		"running":   d.running.Load(),
		"database":  d.store.Path(),
		"lock_file": d.lockPath,
		"jobs": map[string]int{
			"total":     stats.Total,
			"queued":    stats.Queued,
			"running":   stats.Running,
			"completed": stats.Completed,
			"failed":    stats.Failed,
			"cancelled": stats.Cancelled,
		},
	})
}

func sessionResponse(session *store.Session) map[string]any {
	comments := make([]map[string]any, 0, len(session.Comments))
	for _, c := range session.Comments {
		comments = append(comments, commentResponse(c))
	}
	return map[string]any{
		"id": session.ID,
		"rink": map[string]any{
			"id":               session.Rink.ID,
			"name":             session.Rink.Name,
			"address":          session.Rink.Address,
			"provider_rink_id": session.Rink.ProviderRinkID,
			"timezone":         session.Rink.Timezone,
		},
		"game_date":  session.GameDate.Format("2006-01-02"),
		"home_team":  session.HomeTeam,
		"away_team":  session.AwayTeam,
		"status":     session.Status,
		"comments":   comments,
		"created_at": session.CreatedAt.Format(time.RFC3339),
		"updated_at": session.UpdatedAt.Format(time.RFC3339),
	}
}

func commentResponse(c store.Comment) map[string]any {
	return map[string]any{
		"id":           c.ID,
		"session_id":   c.SessionID,
		"timestamp_ms": c.TimestampMS,
		"text":         c.Text,
		"author":       c.Author,
		"game_clock":   c.GameClock,
		"pos_x":        c.PosX,
		"pos_y":        c.PosY,
		"color":        c.Color,
	}
}

func jobResponse(job *store.Job) map[string]any {
	out := map[string]any{
		"id":            job.ID,
		"session_id":    job.SessionID,
		"status":        job.Status,
		"progress":      job.Progress,
		"current_step":  job.CurrentStep,
		"error_message": job.ErrorMessage,
		"stitched_file": job.StitchedFile,
		"final_file":    job.FinalFile,
	}
	if job.StartedAt != nil {
		out["started_at"] = job.StartedAt.Format(time.RFC3339)
	}
	if job.CompletedAt != nil {
		out["completed_at"] = job.CompletedAt.Format(time.RFC3339)
	}
	return out
}

func parseGameDate(raw string) (time.Time, error) {
	if parsed, err := time.Parse("2006-01-02", raw); err == nil {
		return parsed, nil
	}
	return time.Parse(time.RFC3339, raw)
}

func (d *Daemon) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: true, Data: data})
}

func (d *Daemon) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: false, Error: message})
}

// writeServiceError maps the error taxonomy onto HTTP status codes.
func (d *Daemon) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, services.ErrValidation):
		d.writeError(w, http.StatusConflict, services.Message(err))
	case errors.Is(err, services.ErrNotFound):
		d.writeError(w, http.StatusNotFound, services.Message(err))
	case errors.Is(err, services.ErrAuthentication):
		d.writeError(w, http.StatusBadGateway, services.Message(err))
	default:
		d.internalError(w, r, err)
	}
}

func (d *Daemon) internalError(w http.ResponseWriter, r *http.Request, err error) {
	d.logger.Error("api request failed",
		logging.String("path", r.URL.Path),
		logging.Error(err))
	d.writeError(w, http.StatusInternalServerError, "internal error")
}
