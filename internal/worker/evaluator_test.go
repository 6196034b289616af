package worker

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/hireloop/hireloop-api/internal/models"
	"github.com/hireloop/hireloop-api/internal/queue"
	"github.com/hireloop/hireloop-api/pkg/judge0"
)

type stubStore struct {
	submission  models.Submission
	missing     bool
	transitions []string
	completed   *models.CompletedResult
	failedWith  string
	markErr     error
}

func (s *stubStore) Create(ctx context.Context, submission *models.Submission) error {
	return errors.New("not used")
}

func (s *stubStore) GetByID(ctx context.Context, id string) (models.Submission, error) {
	if s.missing {
		return models.Submission{}, gorm.ErrRecordNotFound
	}
	return s.submission, nil
}

func (s *stubStore) GetByIDForOwner(ctx context.Context, id, ownerID string) (models.Submission, error) {
	return s.GetByID(ctx, id)
}

func (s *stubStore) ListByInterview(ctx context.Context, interviewID string) ([]models.Submission, error) {
	return nil, errors.New("not used")
}

func (s *stubStore) MarkProcessing(ctx context.Context, id string) error {
	if s.markErr != nil {
		return s.markErr
	}
	s.transitions = append(s.transitions, models.SubmissionStatusProcessing)
	return nil
}

func (s *stubStore) MarkCompleted(ctx context.Context, id string, verdict models.CompletedResult) error {
	if s.markErr != nil {
		return s.markErr
	}
	s.transitions = append(s.transitions, models.SubmissionStatusCompleted)
	clone := verdict
	s.completed = &clone
	return nil
}

func (s *stubStore) MarkFailed(ctx context.Context, id string, reason string) error {
	if s.markErr != nil {
		return s.markErr
	}
	s.transitions = append(s.transitions, models.SubmissionStatusFailed)
	s.failedWith = reason
	return nil
}

type stubEngine struct {
	submitErr  error
	verdict    judge0.Verdict
	verdictErr error
	submits    int
}

func (s *stubEngine) Submit(ctx context.Context, req judge0.SubmissionRequest) (string, error) {
	s.submits++
	if s.submitErr != nil {
		return "", s.submitErr
	}
	return "token-1", nil
}

func (s *stubEngine) AwaitVerdict(ctx context.Context, token string) (judge0.Verdict, error) {
	if s.verdictErr != nil {
		return judge0.Verdict{}, s.verdictErr
	}
	return s.verdict, nil
}

func pendingJob() queue.EvaluationJob {
	return queue.EvaluationJob{
		SubmissionID:   "sub-1",
		Code:           "print('hello')",
		Language:       "python",
		ExpectedOutput: "hello",
		OwnerID:        "owner-1",
		CorrelationID:  "corr-1",
	}
}

func TestHandleCompletesCorrectSubmission(t *testing.T) {
	store := &stubStore{submission: models.Submission{ID: "sub-1", Status: models.SubmissionStatusPending}}
	engine := &stubEngine{verdict: judge0.Verdict{
		Stdout:            "hello\n",
		StatusID:          3,
		StatusDescription: "Accepted",
		TimeMs:            7,
		MemoryKB:          1024,
	}}

	evaluator := NewEvaluator(store, engine, zerolog.Nop())

	require.NoError(t, evaluator.Handle(context.Background(), pendingJob()))
	require.Equal(t, []string{models.SubmissionStatusProcessing, models.SubmissionStatusCompleted}, store.transitions)
	require.NotNil(t, store.completed)
	require.True(t, store.completed.IsCorrect)
	require.Equal(t, "Accepted", store.completed.StatusDescription)
}

func TestHandleCompletesWrongAnswerAsIncorrect(t *testing.T) {
	store := &stubStore{submission: models.Submission{ID: "sub-1", Status: models.SubmissionStatusPending}}
	engine := &stubEngine{verdict: judge0.Verdict{
		Stdout:            "goodbye",
		StatusID:          4,
		StatusDescription: "Wrong Answer",
	}}

	evaluator := NewEvaluator(store, engine, zerolog.Nop())

	require.NoError(t, evaluator.Handle(context.Background(), pendingJob()))
	require.Equal(t, []string{models.SubmissionStatusProcessing, models.SubmissionStatusCompleted}, store.transitions)
	require.NotNil(t, store.completed)
	require.False(t, store.completed.IsCorrect, "a wrong answer is a completed evaluation, not a failure")
}

func TestHandleFailsOnUnsupportedLanguage(t *testing.T) {
	store := &stubStore{submission: models.Submission{ID: "sub-1", Status: models.SubmissionStatusPending}}
	engine := &stubEngine{}

	evaluator := NewEvaluator(store, engine, zerolog.Nop())

	job := pendingJob()
	job.Language = "brainfuck"

	require.NoError(t, evaluator.Handle(context.Background(), job))
	require.Equal(t, []string{models.SubmissionStatusProcessing, models.SubmissionStatusFailed}, store.transitions)
	require.Contains(t, store.failedWith, "unsupported language")
	require.Zero(t, engine.submits, "nothing may reach the engine for an unknown language")
}

func TestHandleFailsOnTransportError(t *testing.T) {
	store := &stubStore{submission: models.Submission{ID: "sub-1", Status: models.SubmissionStatusPending}}
	engine := &stubEngine{submitErr: errors.New("call execution engine: connection refused")}

	evaluator := NewEvaluator(store, engine, zerolog.Nop())

	require.NoError(t, evaluator.Handle(context.Background(), pendingJob()))
	require.Equal(t, []string{models.SubmissionStatusProcessing, models.SubmissionStatusFailed}, store.transitions)
	require.Contains(t, store.failedWith, "connection refused")
}

func TestHandleFailsOnEvaluationTimeout(t *testing.T) {
	store := &stubStore{submission: models.Submission{ID: "sub-1", Status: models.SubmissionStatusPending}}
	engine := &stubEngine{verdictErr: fmt.Errorf("%w (10 attempts)", judge0.ErrEvaluationTimeout)}

	evaluator := NewEvaluator(store, engine, zerolog.Nop())

	require.NoError(t, evaluator.Handle(context.Background(), pendingJob()))
	require.Equal(t, []string{models.SubmissionStatusProcessing, models.SubmissionStatusFailed}, store.transitions)
	require.Contains(t, store.failedWith, "no terminal verdict")
}

func TestHandleSkipsTerminalSubmissionOnRedelivery(t *testing.T) {
	store := &stubStore{submission: models.Submission{ID: "sub-1", Status: models.SubmissionStatusCompleted}}
	engine := &stubEngine{}

	evaluator := NewEvaluator(store, engine, zerolog.Nop())

	require.NoError(t, evaluator.Handle(context.Background(), pendingJob()))
	require.Empty(t, store.transitions, "a terminal submission must not be touched")
	require.Zero(t, engine.submits, "a terminal submission must not be re-executed")
}

func TestHandleAcksJobForUnknownSubmission(t *testing.T) {
	store := &stubStore{missing: true}
	engine := &stubEngine{}

	evaluator := NewEvaluator(store, engine, zerolog.Nop())

	require.NoError(t, evaluator.Handle(context.Background(), pendingJob()))
	require.Zero(t, engine.submits)
}

func TestHandlePropagatesUnrecordableFailure(t *testing.T) {
	store := &stubStore{
		submission: models.Submission{ID: "sub-1", Status: models.SubmissionStatusPending},
		markErr:    errors.New("store unreachable"),
	}
	engine := &stubEngine{verdict: judge0.Verdict{Stdout: "hello", StatusID: 3}}

	evaluator := NewEvaluator(store, engine, zerolog.Nop())

	err := evaluator.Handle(context.Background(), pendingJob())
	require.Error(t, err, "an unrecordable outcome must surface for redelivery")
}
