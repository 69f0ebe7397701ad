// Package jobs tracks asynchronous extraction attempts. Each job is written
// only by the worker that owns it, and its status only moves forward.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// ErrInvalidTransition is returned when a write would move a job backwards
// or out of a terminal state.
var ErrInvalidTransition = errors.New("invalid job status transition")

// Terminal reports whether no transition may leave s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// CanTransition reports whether a job in status s may move to next.
// Rewriting the current status is allowed for non-terminal states. A pending
// job may fail directly when its worker could not start it.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusPending || next == StatusProcessing || next == StatusError
	case StatusProcessing:
		return next == StatusProcessing || next.Terminal()
	default:
		return false
	}
}

// Job is one extraction attempt for one stored document.
type Job struct {
	ID           string          `json:"job_id"`
	DocumentPath string          `json:"document_path"`
	Status       Status          `json:"status"`
	Result       json.RawMessage `json:"result,omitempty"`
	Error        string          `json:"error,omitempty"`
	StartedAt    time.Time       `json:"started_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
}

// Store persists jobs. UpdateJob must reject writes that fail
// CanTransition with ErrInvalidTransition, and GetJob must return an error
// wrapping apperr.ErrNotFound for unknown ids.
type Store interface {
	CreateJob(ctx context.Context, job *Job) error
	UpdateJob(ctx context.Context, job *Job) error
	GetJob(ctx context.Context, id string) (*Job, error)
}

// StatusReport is what a caller polling a job sees.
type StatusReport struct {
	Status      Status          `json:"status"`
	Error       *string         `json:"error"`
	CompletedAt *time.Time      `json:"completed_at"`
	Result      json.RawMessage `json:"result"`
}

// Report builds the caller-facing view of j.
func (j *Job) Report() *StatusReport {
	r := &StatusReport{
		Status:      j.Status,
		CompletedAt: j.CompletedAt,
		Result:      j.Result,
	}
	if j.Error != "" {
		msg := j.Error
		r.Error = &msg
	}
	return r
}
