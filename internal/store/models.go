package store

import (
	"strings"
	"time"
)

// SessionStatus represents the lifecycle of a coaching session.
type SessionStatus string

const (
	SessionActive     SessionStatus = "active"
	SessionProcessing SessionStatus = "processing"
	SessionCompleted  SessionStatus = "completed"
	SessionFailed     SessionStatus = "failed"
)

// JobStatus represents the lifecycle of a processing job.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

var allJobStatuses = []JobStatus{JobQueued, JobRunning, JobCompleted, JobFailed, JobCancelled}

// AllJobStatuses returns the ordered list of known job statuses.
func AllJobStatuses() []JobStatus {
	cp := make([]JobStatus, len(allJobStatuses))
	copy(cp, allJobStatuses)
	return cp
}

// ParseJobStatus converts a string into a known JobStatus.
func ParseJobStatus(value string) (JobStatus, bool) {
	normalized := JobStatus(strings.ToLower(strings.TrimSpace(value)))
	for _, status := range allJobStatuses {
		if status == normalized {
			return status, true
		}
	}
	return "", false
}

// IsTerminal reports whether the status permits no further transitions.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobCompleted, JobFailed, JobCancelled:
		return true
	default:
		return false
	}
}

// RinkLocation identifies the venue whose recorded feed a session annotates.
type RinkLocation struct {
	ID             string
	Name           string
	Address        string
	ProviderRinkID string
	Timezone       string
}

// Comment is a single timestamped annotation within a session.
type Comment struct {
	ID          string
	SessionID   string
	TimestampMS int64
	Text        string
	Author      string
	GameClock   string
	PosX        *float64
	PosY        *float64
	Color       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Session is a recorded game plus the ordered comments a coach attached to it.
// Comments carry insertion order; the segmenter relies on that order for
// stable caption sequencing at equal timestamps.
type Session struct {
	ID        string
	Rink      RinkLocation
	GameDate  time.Time
	HomeTeam  string
	AwayTeam  string
	Status    SessionStatus
	Comments  []Comment
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Job tracks one asynchronous highlight-video run for a session.
type Job struct {
	ID              string
	SessionID       string
	Status          JobStatus
	Progress        int
	CurrentStep     string
	ErrorMessage    string
	StitchedFile    string
	FinalFile       string
	CancelRequested bool
	StartedAt       *time.Time
	CompletedAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// SetProgress advances the job's progress and step label. Progress never
// decreases while a job is running.
func (j *Job) SetProgress(progress int, step string) {
	if progress > j.Progress {
		j.Progress = progress
	}
	if step != "" {
		j.CurrentStep = step
	}
}

// SetFailed marks the job failed with the given message and completion time.
func (j *Job) SetFailed(message string, at time.Time) {
	j.Status = JobFailed
	j.ErrorMessage = message
	j.CurrentStep = "Processing failed"
	j.CompletedAt = &at
}

// SetCancelled marks the job cancelled at the given time.
func (j *Job) SetCancelled(at time.Time) {
	j.Status = JobCancelled
	j.CurrentStep = "Cancelled"
	j.CompletedAt = &at
}

// SetCompleted marks the job completed with the final artifact location.
func (j *Job) SetCompleted(finalFile string, at time.Time) {
	j.Status = JobCompleted
	j.Progress = 100
	j.CurrentStep = "Processing completed"
	j.FinalFile = finalFile
	j.CompletedAt = &at
}

// StatsSummary aggregates job counts per lifecycle state.
type StatsSummary struct {
	Total     int
	Queued    int
	Running   int
	Completed int
	Failed    int
	Cancelled int
}
