package dto

import (
	"time"

	"github.com/hireloop/hireloop-api/internal/models"
)

// SubmissionRequest represents the payload for submitting code for evaluation.
type SubmissionRequest struct {
	Code           string `json:"code" validate:"required,min=1"`
	Language       string `json:"language" validate:"required"`
	Input          string `json:"input"`
	ExpectedOutput string `json:"expected_output"`
	InterviewID    string `json:"interview_id,omitempty"`
}

// SubmissionAcceptedResponse acknowledges an accepted submission without
// waiting for its evaluation.
type SubmissionAcceptedResponse struct {
	SubmissionID string `json:"submission_id"`
	Status       string `json:"status"`
}

// SubmissionResponse represents a submission and its lifecycle state to API consumers.
type SubmissionResponse struct {
	ID             string                    `json:"id"`
	OwnerID        string                    `json:"owner_id"`
	InterviewID    string                    `json:"interview_id,omitempty"`
	Language       string                    `json:"language"`
	Code           string                    `json:"code"`
	Input          string                    `json:"input"`
	ExpectedOutput string                    `json:"expected_output"`
	Status         string                    `json:"status"`
	Result         *SubmissionResultResponse `json:"result,omitempty"`
	CreatedAt      time.Time                 `json:"created_at"`
	UpdatedAt      time.Time                 `json:"updated_at"`
}

// SubmissionResultResponse mirrors the result union: exactly one field is set.
type SubmissionResultResponse struct {
	Completed *CompletedResultResponse `json:"completed,omitempty"`
	Failed    *FailedResultResponse    `json:"failed,omitempty"`
}

// CompletedResultResponse is the verdict payload for a completed submission.
type CompletedResultResponse struct {
	Stdout            string `json:"stdout"`
	Stderr            string `json:"stderr"`
	StatusID          int    `json:"status_id"`
	StatusDescription string `json:"status_description"`
	TimeMs            int64  `json:"time_ms"`
	MemoryKB          int64  `json:"memory_kb"`
	IsCorrect         bool   `json:"is_correct"`
}

// FailedResultResponse is the error payload for a failed submission.
type FailedResultResponse struct {
	Error string `json:"error"`
}

// NewSubmissionResponse builds a response DTO from a model.
func NewSubmissionResponse(submission models.Submission) SubmissionResponse {
	response := SubmissionResponse{
		ID:             submission.ID,
		OwnerID:        submission.OwnerID,
		InterviewID:    submission.InterviewID,
		Language:       submission.Language,
		Code:           submission.Code,
		Input:          submission.Input,
		ExpectedOutput: submission.ExpectedOutput,
		Status:         submission.Status,
		CreatedAt:      submission.CreatedAt,
		UpdatedAt:      submission.UpdatedAt,
	}

	if submission.Result != nil {
		outcome := submission.Result.Data()
		result := &SubmissionResultResponse{}
		if outcome.Completed != nil {
			result.Completed = &CompletedResultResponse{
				Stdout:            outcome.Completed.Stdout,
				Stderr:            outcome.Completed.Stderr,
				StatusID:          outcome.Completed.StatusID,
				StatusDescription: outcome.Completed.StatusDescription,
				TimeMs:            outcome.Completed.TimeMs,
				MemoryKB:          outcome.Completed.MemoryKB,
				IsCorrect:         outcome.Completed.IsCorrect,
			}
		}
		if outcome.Failed != nil {
			result.Failed = &FailedResultResponse{Error: outcome.Failed.Error}
		}
		if result.Completed != nil || result.Failed != nil {
			response.Result = result
		}
	}

	return response
}
