package models

import (
	"time"

	"gorm.io/datatypes"
)

// SubmissionStatus enumerates the submission lifecycle states.
const (
	SubmissionStatusPending    = "pending"
	SubmissionStatusProcessing = "processing"
	SubmissionStatusCompleted  = "completed"
	SubmissionStatusFailed     = "failed"
)

// Submission represents a user's request to execute code, tracked to a verdict.
type Submission struct {
	ID             string                                `gorm:"primaryKey;size:36" json:"id"`
	OwnerID        string                                `gorm:"size:36;not null;index" json:"owner_id"`
	InterviewID    string                                `gorm:"size:36;index" json:"interview_id,omitempty"`
	Language       string                                `gorm:"size:32;not null" json:"language"`
	Code           string                                `gorm:"type:text;not null" json:"code"`
	Input          string                                `gorm:"type:text" json:"input"`
	ExpectedOutput string                                `gorm:"type:text" json:"expected_output"`
	Status         string                                `gorm:"size:16;not null;index" json:"status"`
	Result         *datatypes.JSONType[SubmissionResult] `json:"result,omitempty"`
	CreatedAt      time.Time                             `json:"created_at"`
	UpdatedAt      time.Time                             `json:"updated_at"`
}

// Terminal reports whether the submission has reached a final state.
func (s Submission) Terminal() bool {
	return s.Status == SubmissionStatusCompleted || s.Status == SubmissionStatusFailed
}

// SubmissionResult is the outcome of a terminal submission. Exactly one of
// Completed or Failed is set; the constructors below are the only way a result
// should be built.
type SubmissionResult struct {
	Completed *CompletedResult `json:"completed,omitempty"`
	Failed    *FailedResult    `json:"failed,omitempty"`
}

// CompletedResult carries the engine verdict for a submission that ran to completion.
// A wrong answer is still a completed result with IsCorrect false.
type CompletedResult struct {
	Stdout            string `json:"stdout"`
	Stderr            string `json:"stderr"`
	StatusID          int    `json:"status_id"`
	StatusDescription string `json:"status_description"`
	TimeMs            int64  `json:"time_ms"`
	MemoryKB          int64  `json:"memory_kb"`
	IsCorrect         bool   `json:"is_correct"`
}

// FailedResult describes why evaluation infrastructure could not produce a verdict.
type FailedResult struct {
	Error string `json:"error"`
}

// NewCompletedResult builds the completed variant of a submission result.
func NewCompletedResult(verdict CompletedResult) SubmissionResult {
	return SubmissionResult{Completed: &verdict}
}

// NewFailedResult builds the failed variant of a submission result.
func NewFailedResult(reason string) SubmissionResult {
	return SubmissionResult{Failed: &FailedResult{Error: reason}}
}
