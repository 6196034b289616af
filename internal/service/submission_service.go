package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/hireloop/hireloop-api/internal/dto"
	"github.com/hireloop/hireloop-api/internal/middleware"
	"github.com/hireloop/hireloop-api/internal/models"
	"github.com/hireloop/hireloop-api/internal/observability"
	"github.com/hireloop/hireloop-api/internal/queue"
	"github.com/hireloop/hireloop-api/internal/repository"
	"github.com/hireloop/hireloop-api/pkg/judge0"
)

// ErrSubmissionNotFound indicates the submission does not exist or is not
// visible to the requester. Missing and non-owned submissions are deliberately
// indistinguishable so ownership is never confirmed to non-owners.
var ErrSubmissionNotFound = errors.New("submission not found")

// SubmissionService is the producer-facing entry point of the evaluation pipeline.
type SubmissionService interface {
	Submit(ctx context.Context, ownerID string, payload dto.SubmissionRequest) (dto.SubmissionAcceptedResponse, error)
	Get(ctx context.Context, id, ownerID string) (dto.SubmissionResponse, error)
	ListByInterview(ctx context.Context, interviewID string) ([]dto.SubmissionResponse, error)
}

type submissionService struct {
	submissions repository.SubmissionRepository
	jobs        queue.Enqueuer
	cache       *redis.Client
	cacheTTL    time.Duration
	validator   *validator.Validate
	logger      zerolog.Logger
	tracer      trace.Tracer
}

// NewSubmissionService constructs the submission intake service.
func NewSubmissionService(submissionRepo repository.SubmissionRepository, jobs queue.Enqueuer, cache *redis.Client, cacheTTL time.Duration, validate *validator.Validate, logger zerolog.Logger) SubmissionService {
	return &submissionService{
		submissions: submissionRepo,
		jobs:        jobs,
		cache:       cache,
		cacheTTL:    cacheTTL,
		validator:   validate,
		logger:      logger.With().Str("component", "submission_service").Logger(),
		tracer:      otel.Tracer("github.com/hireloop/hireloop-api/internal/service"),
	}
}

// Submit validates the request, persists a pending submission and enqueues its
// evaluation job. It returns as soon as the job is durably accepted; the caller
// polls Get for the outcome.
func (s *submissionService) Submit(ctx context.Context, ownerID string, payload dto.SubmissionRequest) (dto.SubmissionAcceptedResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.SubmissionAcceptedResponse{}, err
	}

	language := strings.ToLower(strings.TrimSpace(payload.Language))
	if _, err := judge0.ResolveLanguage(language); err != nil {
		return dto.SubmissionAcceptedResponse{}, err
	}

	spanCtx, span := s.tracer.Start(ctx, "submissions.submit", trace.WithAttributes(
		attribute.String("submission.language", language),
	))
	defer span.End()

	submission := models.Submission{
		ID:             uuid.NewString(),
		OwnerID:        ownerID,
		InterviewID:    payload.InterviewID,
		Language:       language,
		Code:           payload.Code,
		Input:          payload.Input,
		ExpectedOutput: payload.ExpectedOutput,
	}

	if err := s.submissions.Create(spanCtx, &submission); err != nil {
		return dto.SubmissionAcceptedResponse{}, fmt.Errorf("create submission: %w", err)
	}

	job := queue.EvaluationJob{
		SubmissionID:   submission.ID,
		Code:           submission.Code,
		Language:       submission.Language,
		Input:          submission.Input,
		ExpectedOutput: submission.ExpectedOutput,
		OwnerID:        submission.OwnerID,
		InterviewID:    submission.InterviewID,
		CorrelationID:  middleware.CorrelationIDFromContext(ctx),
	}

	if err := s.jobs.Enqueue(spanCtx, job); err != nil {
		// Without a queued job the submission would strand in pending forever.
		if markErr := s.submissions.MarkFailed(spanCtx, submission.ID, "failed to enqueue evaluation job"); markErr != nil {
			s.logger.Error().Err(markErr).Str("submission_id", submission.ID).Msg("failed to mark stranded submission as failed")
		}
		return dto.SubmissionAcceptedResponse{}, fmt.Errorf("enqueue evaluation job: %w", err)
	}

	observability.SubmissionsEnqueued().Inc()
	s.logger.Info().
		Str("submission_id", submission.ID).
		Str("language", language).
		Msg("submission accepted")

	return dto.SubmissionAcceptedResponse{
		SubmissionID: submission.ID,
		Status:       models.SubmissionStatusPending,
	}, nil
}

// Get returns a submission visible to ownerID. Terminal submissions are served
// through a read-through cache; in-flight ones always hit the store so polling
// clients observe transitions promptly.
func (s *submissionService) Get(ctx context.Context, id, ownerID string) (dto.SubmissionResponse, error) {
	cacheKey := fmt.Sprintf("submission:%s:%s", id, ownerID)

	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, cacheKey).Result(); err == nil {
			var response dto.SubmissionResponse
			if unmarshalErr := json.Unmarshal([]byte(cached), &response); unmarshalErr == nil {
				return response, nil
			}
		} else if err != redis.Nil {
			s.logger.Warn().Err(err).Msg("failed to read submission cache")
		}
	}

	submission, err := s.submissions.GetByIDForOwner(ctx, id, ownerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionResponse{}, ErrSubmissionNotFound
		}
		return dto.SubmissionResponse{}, err
	}

	response := dto.NewSubmissionResponse(submission)

	if s.cache != nil && submission.Terminal() {
		if payload, err := json.Marshal(response); err == nil {
			if err := s.cache.Set(ctx, cacheKey, payload, s.cacheTTL).Err(); err != nil {
				s.logger.Warn().Err(err).Msg("failed to store submission cache")
			}
		}
	}

	return response, nil
}

// ListByInterview returns an interview's submissions, newest first.
func (s *submissionService) ListByInterview(ctx context.Context, interviewID string) ([]dto.SubmissionResponse, error) {
	submissions, err := s.submissions.ListByInterview(ctx, interviewID)
	if err != nil {
		return nil, err
	}

	responses := make([]dto.SubmissionResponse, 0, len(submissions))
	for _, submission := range submissions {
		responses = append(responses, dto.NewSubmissionResponse(submission))
	}

	return responses, nil
}
