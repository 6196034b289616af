package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/hireloop/hireloop-api/internal/models"
)

// ErrTerminalSubmission indicates an attempted transition out of a terminal state.
var ErrTerminalSubmission = errors.New("submission is already in a terminal state")

// SubmissionRepository exposes persistence helpers for code submissions.
type SubmissionRepository interface {
	Create(ctx context.Context, submission *models.Submission) error
	GetByID(ctx context.Context, id string) (models.Submission, error)
	GetByIDForOwner(ctx context.Context, id, ownerID string) (models.Submission, error)
	ListByInterview(ctx context.Context, interviewID string) ([]models.Submission, error)
	MarkProcessing(ctx context.Context, id string) error
	MarkCompleted(ctx context.Context, id string, verdict models.CompletedResult) error
	MarkFailed(ctx context.Context, id string, reason string) error
}

// NewSubmissionRepository constructs a submission repository.
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

type submissionRepository struct {
	db *gorm.DB
}

func (r *submissionRepository) Create(ctx context.Context, submission *models.Submission) error {
	submission.Status = models.SubmissionStatusPending
	submission.Result = nil
	return r.db.WithContext(ctx).Create(submission).Error
}

func (r *submissionRepository) GetByID(ctx context.Context, id string) (models.Submission, error) {
	var submission models.Submission
	err := r.db.WithContext(ctx).First(&submission, "id = ?", id).Error
	if err != nil {
		return models.Submission{}, err
	}
	return submission, nil
}

func (r *submissionRepository) GetByIDForOwner(ctx context.Context, id, ownerID string) (models.Submission, error) {
	var submission models.Submission
	err := r.db.WithContext(ctx).First(&submission, "id = ? AND owner_id = ?", id, ownerID).Error
	if err != nil {
		return models.Submission{}, err
	}
	return submission, nil
}

func (r *submissionRepository) ListByInterview(ctx context.Context, interviewID string) ([]models.Submission, error) {
	var submissions []models.Submission
	err := r.db.WithContext(ctx).
		Where("interview_id = ?", interviewID).
		Order("created_at DESC").
		Find(&submissions).Error
	if err != nil {
		return nil, err
	}
	return submissions, nil
}

// MarkProcessing moves a pending submission to processing. A submission already
// in processing is treated as a successful no-op so queue redelivery does not
// trip the forward-only guard.
func (r *submissionRepository) MarkProcessing(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).
		Model(&models.Submission{}).
		Where("id = ? AND status = ?", id, models.SubmissionStatusPending).
		Updates(map[string]interface{}{
			"status":     models.SubmissionStatusProcessing,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		current, err := r.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if current.Status == models.SubmissionStatusProcessing {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrTerminalSubmission, current.Status)
	}

	return nil
}

func (r *submissionRepository) MarkCompleted(ctx context.Context, id string, verdict models.CompletedResult) error {
	return r.markTerminal(ctx, id, models.SubmissionStatusCompleted, models.NewCompletedResult(verdict))
}

func (r *submissionRepository) MarkFailed(ctx context.Context, id string, reason string) error {
	return r.markTerminal(ctx, id, models.SubmissionStatusFailed, models.NewFailedResult(reason))
}

func (r *submissionRepository) markTerminal(ctx context.Context, id, status string, outcome models.SubmissionResult) error {
	payload := datatypes.NewJSONType(outcome)
	result := r.db.WithContext(ctx).
		Model(&models.Submission{}).
		Where("id = ? AND status IN ?", id, []string{models.SubmissionStatusPending, models.SubmissionStatusProcessing}).
		Updates(map[string]interface{}{
			"status":     status,
			"result":     payload,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("%w: refusing transition to %s", ErrTerminalSubmission, status)
	}

	return nil
}
