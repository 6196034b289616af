package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/hireloop/hireloop-api/internal/models"
	"github.com/hireloop/hireloop-api/internal/observability"
	"github.com/hireloop/hireloop-api/internal/queue"
	"github.com/hireloop/hireloop-api/internal/repository"
	"github.com/hireloop/hireloop-api/pkg/judge0"
)

// Evaluator consumes evaluation jobs and drives each submission through its
// state machine to a terminal verdict.
type Evaluator struct {
	submissions repository.SubmissionRepository
	engine      judge0.Client
	logger      zerolog.Logger
	tracer      trace.Tracer
}

// NewEvaluator constructs an evaluation worker.
func NewEvaluator(submissionRepo repository.SubmissionRepository, engine judge0.Client, logger zerolog.Logger) *Evaluator {
	return &Evaluator{
		submissions: submissionRepo,
		engine:      engine,
		logger:      logger.With().Str("component", "evaluation_worker").Logger(),
		tracer:      otel.Tracer("github.com/hireloop/hireloop-api/internal/worker"),
	}
}

// Handle processes one delivered job. Every path ends in exactly one terminal
// store write; only a failure to record the outcome itself returns an error,
// which the queue answers with redelivery.
func (w *Evaluator) Handle(ctx context.Context, job queue.EvaluationJob) error {
	logger := w.logger.With().Str("submission_id", job.SubmissionID).Logger()
	if job.CorrelationID != "" {
		logger = logger.With().Str("correlation_id", job.CorrelationID).Logger()
	}

	ctx, span := w.tracer.Start(ctx, "submissions.evaluate", trace.WithAttributes(
		attribute.String("submission.id", job.SubmissionID),
		attribute.String("submission.language", job.Language),
	))
	defer span.End()

	// At-least-once delivery: a redelivered job whose submission already
	// reached a terminal state must not re-run on the engine.
	current, err := w.submissions.GetByID(ctx, job.SubmissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Warn().Msg("dropping job for unknown submission")
			observability.Evaluations().WithLabelValues("skipped").Inc()
			return nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("load submission %s: %w", job.SubmissionID, err)
	}

	if current.Terminal() {
		logger.Info().Str("status", current.Status).Msg("submission already terminal, skipping redelivered job")
		observability.Evaluations().WithLabelValues("skipped").Inc()
		return nil
	}

	if err := w.submissions.MarkProcessing(ctx, job.SubmissionID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("mark submission %s processing: %w", job.SubmissionID, err)
	}

	languageID, err := judge0.ResolveLanguage(job.Language)
	if err != nil {
		logger.Warn().Str("language", job.Language).Msg("unsupported language reached the queue")
		return w.recordFailure(ctx, span, logger, job.SubmissionID, err)
	}

	token, err := w.engine.Submit(ctx, judge0.SubmissionRequest{
		SourceCode:     job.Code,
		LanguageID:     languageID,
		Stdin:          job.Input,
		ExpectedOutput: job.ExpectedOutput,
	})
	if err != nil {
		return w.recordFailure(ctx, span, logger, job.SubmissionID, err)
	}

	verdict, err := w.engine.AwaitVerdict(ctx, token)
	if err != nil {
		return w.recordFailure(ctx, span, logger, job.SubmissionID, err)
	}

	result := models.CompletedResult{
		Stdout:            verdict.Stdout,
		Stderr:            verdict.Stderr,
		StatusID:          verdict.StatusID,
		StatusDescription: verdict.StatusDescription,
		TimeMs:            verdict.TimeMs,
		MemoryKB:          verdict.MemoryKB,
		IsCorrect:         judge0.IsCorrect(verdict.Stdout, job.ExpectedOutput),
	}

	if err := w.submissions.MarkCompleted(ctx, job.SubmissionID, result); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("record verdict for submission %s: %w", job.SubmissionID, err)
	}

	observability.Evaluations().WithLabelValues("completed").Inc()
	logger.Info().
		Int("status_id", verdict.StatusID).
		Bool("is_correct", result.IsCorrect).
		Msg("submission evaluated")

	return nil
}

// recordFailure translates an evaluation error into a terminal failed
// submission. The error itself is absorbed; only an unwritable store escapes.
func (w *Evaluator) recordFailure(ctx context.Context, span trace.Span, logger zerolog.Logger, submissionID string, cause error) error {
	span.RecordError(cause)
	span.SetStatus(codes.Error, cause.Error())

	if err := w.submissions.MarkFailed(ctx, submissionID, cause.Error()); err != nil {
		// The one unrecoverable condition: the failure could not be recorded.
		logger.Error().Err(err).AnErr("cause", cause).Msg("failed to record submission failure")
		return fmt.Errorf("record failure for submission %s: %w", submissionID, err)
	}

	observability.Evaluations().WithLabelValues("failed").Inc()
	logger.Warn().Err(cause).Msg("submission failed")
	return nil
}
