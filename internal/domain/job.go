package domain

import (
	"errors"
	"time"
)

// JobStatus represents the status of a research job.
// Values include JobStatusPending, JobStatusProcessing, JobStatusCompleted,
// JobStatusFailed and JobStatusCancelled.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// IsTerminal reports whether no further transitions are possible from s.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// JobStage is a finer-grained, informational view of where a processing job is.
type JobStage string

const (
	StageSubmitting  JobStage = "submitting"
	StageResearching JobStage = "researching"
	StageRefining    JobStage = "refining"
	StageDone        JobStage = "done"
)

var (
	ErrJobNotFound = errors.New("job not found")
)

// Source is a citation returned by the remote research service.
type Source struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// Job is one client-tracked research request and its lifecycle state.
// Query, Documents and Options never change after submission.
type Job struct {
	ID          string     `json:"id"`
	Query       string     `json:"query"`
	Documents   []Document `json:"documents,omitempty"`
	Options     Options    `json:"options"`
	RemoteJobID string     `json:"remote_job_id,omitempty"`
	Status      JobStatus  `json:"status"`
	Stage       JobStage   `json:"stage,omitempty"`
	Progress    int        `json:"progress"`
	Content     string     `json:"content,omitempty"`
	Sources     []Source   `json:"sources,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Clone returns a deep copy of the job so callers can't mutate shared slices.
func (j Job) Clone() Job {
	out := j
	if j.Documents != nil {
		out.Documents = append([]Document(nil), j.Documents...)
	}
	if j.Sources != nil {
		out.Sources = append([]Source(nil), j.Sources...)
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		out.CompletedAt = &t
	}
	return out
}
