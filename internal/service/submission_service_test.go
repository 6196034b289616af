package service

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/hireloop/hireloop-api/internal/dto"
	"github.com/hireloop/hireloop-api/internal/middleware"
	"github.com/hireloop/hireloop-api/internal/models"
	"github.com/hireloop/hireloop-api/internal/queue"
	"github.com/hireloop/hireloop-api/pkg/judge0"
)

type stubSubmissionRepo struct {
	created   *models.Submission
	stored    map[string]models.Submission
	failedIDs []string
	getCalls  int
	createErr error
}

func newStubSubmissionRepo() *stubSubmissionRepo {
	return &stubSubmissionRepo{stored: make(map[string]models.Submission)}
}

func (s *stubSubmissionRepo) Create(ctx context.Context, submission *models.Submission) error {
	if s.createErr != nil {
		return s.createErr
	}
	submission.Status = models.SubmissionStatusPending
	clone := *submission
	s.created = &clone
	s.stored[submission.ID] = clone
	return nil
}

func (s *stubSubmissionRepo) GetByID(ctx context.Context, id string) (models.Submission, error) {
	submission, ok := s.stored[id]
	if !ok {
		return models.Submission{}, gorm.ErrRecordNotFound
	}
	return submission, nil
}

func (s *stubSubmissionRepo) GetByIDForOwner(ctx context.Context, id, ownerID string) (models.Submission, error) {
	s.getCalls++
	submission, ok := s.stored[id]
	if !ok || submission.OwnerID != ownerID {
		return models.Submission{}, gorm.ErrRecordNotFound
	}
	return submission, nil
}

func (s *stubSubmissionRepo) ListByInterview(ctx context.Context, interviewID string) ([]models.Submission, error) {
	var matched []models.Submission
	for _, submission := range s.stored {
		if submission.InterviewID == interviewID {
			matched = append(matched, submission)
		}
	}
	return matched, nil
}

func (s *stubSubmissionRepo) MarkProcessing(ctx context.Context, id string) error {
	submission := s.stored[id]
	submission.Status = models.SubmissionStatusProcessing
	s.stored[id] = submission
	return nil
}

func (s *stubSubmissionRepo) MarkCompleted(ctx context.Context, id string, verdict models.CompletedResult) error {
	submission := s.stored[id]
	submission.Status = models.SubmissionStatusCompleted
	payload := datatypes.NewJSONType(models.NewCompletedResult(verdict))
	submission.Result = &payload
	s.stored[id] = submission
	return nil
}

func (s *stubSubmissionRepo) MarkFailed(ctx context.Context, id string, reason string) error {
	s.failedIDs = append(s.failedIDs, id)
	submission := s.stored[id]
	submission.Status = models.SubmissionStatusFailed
	payload := datatypes.NewJSONType(models.NewFailedResult(reason))
	submission.Result = &payload
	s.stored[id] = submission
	return nil
}

type stubEnqueuer struct {
	jobs []queue.EvaluationJob
	err  error
}

func (s *stubEnqueuer) Enqueue(ctx context.Context, job queue.EvaluationJob) error {
	if s.err != nil {
		return s.err
	}
	s.jobs = append(s.jobs, job)
	return nil
}

func newTestService(repo *stubSubmissionRepo, jobs *stubEnqueuer, cache *redis.Client) SubmissionService {
	return NewSubmissionService(repo, jobs, cache, time.Minute, validator.New(validator.WithRequiredStructEnabled()), zerolog.Nop())
}

func TestSubmitAcceptsAndEnqueues(t *testing.T) {
	repo := newStubSubmissionRepo()
	jobs := &stubEnqueuer{}
	svc := newTestService(repo, jobs, nil)

	ctx := middleware.ContextWithCorrelation(context.Background(), "corr-1")
	response, err := svc.Submit(ctx, "owner-1", dto.SubmissionRequest{
		Code:           "print('hello')",
		Language:       "Python",
		ExpectedOutput: "hello",
		InterviewID:    "interview-9",
	})
	require.NoError(t, err)
	require.NotEmpty(t, response.SubmissionID)
	require.Equal(t, models.SubmissionStatusPending, response.Status)

	require.NotNil(t, repo.created)
	require.Equal(t, models.SubmissionStatusPending, repo.created.Status)
	require.Equal(t, "python", repo.created.Language, "language is normalised at intake")
	require.Equal(t, "owner-1", repo.created.OwnerID)

	require.Len(t, jobs.jobs, 1)
	job := jobs.jobs[0]
	require.Equal(t, response.SubmissionID, job.SubmissionID)
	require.Equal(t, "print('hello')", job.Code)
	require.Equal(t, "python", job.Language)
	require.Equal(t, "hello", job.ExpectedOutput)
	require.Equal(t, "owner-1", job.OwnerID)
	require.Equal(t, "interview-9", job.InterviewID)
	require.Equal(t, "corr-1", job.CorrelationID)
}

func TestSubmitRejectsUnsupportedLanguageBeforePersisting(t *testing.T) {
	repo := newStubSubmissionRepo()
	jobs := &stubEnqueuer{}
	svc := newTestService(repo, jobs, nil)

	_, err := svc.Submit(context.Background(), "owner-1", dto.SubmissionRequest{
		Code:     "+++",
		Language: "brainfuck",
	})
	require.True(t, errors.Is(err, judge0.ErrUnsupportedLanguage))
	require.Nil(t, repo.created, "no record may be created for a rejected language")
	require.Empty(t, jobs.jobs, "nothing may be enqueued for a rejected language")
}

func TestSubmitRejectsMissingFields(t *testing.T) {
	repo := newStubSubmissionRepo()
	jobs := &stubEnqueuer{}
	svc := newTestService(repo, jobs, nil)

	_, err := svc.Submit(context.Background(), "owner-1", dto.SubmissionRequest{Language: "python"})
	require.Error(t, err)

	var validationErrors validator.ValidationErrors
	require.True(t, errors.As(err, &validationErrors))
	require.Nil(t, repo.created)
}

func TestSubmitMarksFailedWhenEnqueueFails(t *testing.T) {
	repo := newStubSubmissionRepo()
	jobs := &stubEnqueuer{err: errors.New("jetstream unavailable")}
	svc := newTestService(repo, jobs, nil)

	_, err := svc.Submit(context.Background(), "owner-1", dto.SubmissionRequest{
		Code:     "print(1)",
		Language: "python",
	})
	require.Error(t, err)
	require.NotNil(t, repo.created)
	require.Len(t, repo.failedIDs, 1, "a submission that cannot be enqueued must not strand in pending")
	require.Equal(t, repo.created.ID, repo.failedIDs[0])
}

func TestGetHidesMissingAndForeignSubmissions(t *testing.T) {
	repo := newStubSubmissionRepo()
	repo.stored["sub-1"] = models.Submission{ID: "sub-1", OwnerID: "owner-1", Status: models.SubmissionStatusPending}
	svc := newTestService(repo, &stubEnqueuer{}, nil)

	_, err := svc.Get(context.Background(), "missing", "owner-1")
	require.True(t, errors.Is(err, ErrSubmissionNotFound))

	_, err = svc.Get(context.Background(), "sub-1", "someone-else")
	require.True(t, errors.Is(err, ErrSubmissionNotFound), "foreign submissions must look identical to missing ones")

	response, err := svc.Get(context.Background(), "sub-1", "owner-1")
	require.NoError(t, err)
	require.Equal(t, "sub-1", response.ID)
}

func TestGetCachesTerminalSubmissions(t *testing.T) {
	mini, err := miniredis.Run()
	require.NoError(t, err)
	defer mini.Close()

	cache := redis.NewClient(&redis.Options{Addr: mini.Addr()})

	repo := newStubSubmissionRepo()
	payload := datatypes.NewJSONType(models.NewCompletedResult(models.CompletedResult{Stdout: "hello\n", StatusID: 3, IsCorrect: true}))
	repo.stored["sub-1"] = models.Submission{
		ID:      "sub-1",
		OwnerID: "owner-1",
		Status:  models.SubmissionStatusCompleted,
		Result:  &payload,
	}

	svc := newTestService(repo, &stubEnqueuer{}, cache)

	first, err := svc.Get(context.Background(), "sub-1", "owner-1")
	require.NoError(t, err)
	require.NotNil(t, first.Result)
	require.NotNil(t, first.Result.Completed)
	require.True(t, first.Result.Completed.IsCorrect)
	require.Equal(t, 1, repo.getCalls)

	second, err := svc.Get(context.Background(), "sub-1", "owner-1")
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, repo.getCalls, "terminal submissions are served from cache")
}

func TestGetDoesNotCacheInFlightSubmissions(t *testing.T) {
	mini, err := miniredis.Run()
	require.NoError(t, err)
	defer mini.Close()

	cache := redis.NewClient(&redis.Options{Addr: mini.Addr()})

	repo := newStubSubmissionRepo()
	repo.stored["sub-1"] = models.Submission{ID: "sub-1", OwnerID: "owner-1", Status: models.SubmissionStatusProcessing}

	svc := newTestService(repo, &stubEnqueuer{}, cache)

	_, err = svc.Get(context.Background(), "sub-1", "owner-1")
	require.NoError(t, err)
	_, err = svc.Get(context.Background(), "sub-1", "owner-1")
	require.NoError(t, err)
	require.Equal(t, 2, repo.getCalls, "in-flight submissions must always hit the store")
}

func TestListByInterview(t *testing.T) {
	repo := newStubSubmissionRepo()
	repo.stored["a"] = models.Submission{ID: "a", OwnerID: "o", InterviewID: "int-1", Status: models.SubmissionStatusPending}
	repo.stored["b"] = models.Submission{ID: "b", OwnerID: "o", InterviewID: "int-2", Status: models.SubmissionStatusPending}

	svc := newTestService(repo, &stubEnqueuer{}, nil)

	responses, err := svc.ListByInterview(context.Background(), "int-1")
	require.NoError(t, err)
	require.Len(t, responses, 1)
	require.Equal(t, "a", responses[0].ID)
}
