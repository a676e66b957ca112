package domain

import (
	"context"
	"encoding/json"
	"time"
)

type JobType string

const (
	JobExtractInsights JobType = "extract-insights"
	JobSynthesize      JobType = "synthesize"
	JobEmbed           JobType = "embed"
)

type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	// JobApproved marks successful completion.
	JobApproved JobStatus = "approved"
	JobFailed   JobStatus = "failed"
)

func (s JobStatus) Terminal() bool {
	return s == JobApproved || s == JobFailed
}

const DefaultMaxRetries = 3

type Job struct {
	ID          string          `json:"id"`
	BrandID     string          `json:"brand_id"`
	ArtifactID  string          `json:"artifact_id,omitempty"`
	Type        JobType         `json:"type"`
	Status      JobStatus       `json:"status"`
	Priority    int             `json:"priority"`
	Progress    int             `json:"progress"`
	CurrentStep string          `json:"current_step,omitempty"`
	RetryCount  int             `json:"retry_count"`
	LastError   string          `json:"last_error,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// DecodePayload unmarshals the job-type-specific payload into out; an empty
// payload leaves out untouched.
func (j *Job) DecodePayload(out any) error {
	if len(j.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(j.Payload, out)
}

// ProgressFunc reports intermediate progress of a running job.
type ProgressFunc func(ctx context.Context, percent int, step string)
