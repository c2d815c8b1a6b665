package domain

import (
	"fmt"
	"time"
)

// JobType represents the kind of asynchronous pipeline stage a job tracks
type JobType string

const (
	JobTypeChunk                JobType = "chunk"
	JobTypeEmbed                JobType = "embed"
	JobTypeExtractRelationships JobType = "extract_relationships"
	JobTypeFullProcess          JobType = "full_process"
)

// JobStatus represents the status of a processing job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// ProcessingJob tracks one asynchronous unit of pipeline work against an
// asset. Completed and failed jobs are immutable history; retries create a
// fresh row rather than mutating a terminal one.
type ProcessingJob struct {
	ID         string
	AssetID    string
	Type       JobType
	Status     JobStatus
	Progress   int // percent, 0-100
	Error      string
	Metadata   map[string]string
	CreatedAt  time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time
}

// NewProcessingJob creates a pending ProcessingJob for an asset
func NewProcessingJob(id, assetID string, jobType JobType, metadata map[string]string, now time.Time) *ProcessingJob {
	if metadata == nil {
		metadata = map[string]string{}
	}
	return &ProcessingJob{
		ID:        id,
		AssetID:   assetID,
		Type:      jobType,
		Status:    JobStatusPending,
		Metadata:  metadata,
		CreatedAt: now,
	}
}

// IsTerminal reports whether the job status is completed or failed
func (j *ProcessingJob) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// ValidateJob validates a ProcessingJob instance
func ValidateJob(j *ProcessingJob) error {
	if j == nil {
		return fmt.Errorf("job cannot be nil")
	}

	if j.ID == "" {
		return fmt.Errorf("job ID is required")
	}

	if j.AssetID == "" {
		return fmt.Errorf("job AssetID is required")
	}

	if !isValidJobType(j.Type) {
		return fmt.Errorf("job Type is invalid: %s", j.Type)
	}

	if !isValidJobStatus(j.Status) {
		return fmt.Errorf("job Status is invalid: %s", j.Status)
	}

	if j.Progress < 0 || j.Progress > 100 {
		return fmt.Errorf("job Progress must be in [0,100], got %d", j.Progress)
	}

	return nil
}

// CanTransitionJob reports whether the job state machine permits the
// transition. The only reachable path is pending -> running -> {completed, failed};
// running is never skipped.
func CanTransitionJob(from, to JobStatus) bool {
	switch from {
	case JobStatusPending:
		return to == JobStatusRunning
	case JobStatusRunning:
		return to == JobStatusCompleted || to == JobStatusFailed
	}
	return false
}

func isValidJobType(t JobType) bool {
	switch t {
	case JobTypeChunk, JobTypeEmbed, JobTypeExtractRelationships, JobTypeFullProcess:
		return true
	}
	return false
}

func isValidJobStatus(s JobStatus) bool {
	switch s {
	case JobStatusPending, JobStatusRunning, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}
