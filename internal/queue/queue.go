package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// EvaluationJob is the self-contained descriptor carried on the work queue.
// It duplicates the submission fields so the worker can act without a store
// read; the submission id is the correlation key for writing results back.
type EvaluationJob struct {
	SubmissionID   string `json:"submission_id"`
	Code           string `json:"code"`
	Language       string `json:"language"`
	Input          string `json:"input"`
	ExpectedOutput string `json:"expected_output"`
	OwnerID        string `json:"owner_id"`
	InterviewID    string `json:"interview_id,omitempty"`
	CorrelationID  string `json:"correlation_id,omitempty"`
}

// Enqueuer is the producer side of the evaluation queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, job EvaluationJob) error
}

// Handler processes one delivered job. A nil return acknowledges the message;
// an error requests redelivery.
type Handler func(ctx context.Context, job EvaluationJob) error

// Config groups evaluation queue settings.
type Config struct {
	Stream     string
	Subject    string
	Group      string
	MaxDeliver int
}

// JetStreamQueue is a durable at-least-once evaluation queue backed by NATS JetStream.
type JetStreamQueue struct {
	js     nats.JetStreamContext
	cfg    Config
	logger zerolog.Logger
}

// NewJetStreamQueue binds a queue to the configured stream, creating the stream
// when it does not exist yet. Work-queue retention keeps each job until a
// consumer acknowledges it.
func NewJetStreamQueue(js nats.JetStreamContext, cfg Config, logger zerolog.Logger) (*JetStreamQueue, error) {
	if cfg.Stream == "" || cfg.Subject == "" || cfg.Group == "" {
		return nil, fmt.Errorf("queue stream, subject and group must be configured")
	}

	if cfg.MaxDeliver <= 0 {
		cfg.MaxDeliver = 3
	}

	if _, err := js.StreamInfo(cfg.Stream); err != nil {
		if !errors.Is(err, nats.ErrStreamNotFound) {
			return nil, fmt.Errorf("inspect stream %s: %w", cfg.Stream, err)
		}

		_, err = js.AddStream(&nats.StreamConfig{
			Name:      cfg.Stream,
			Subjects:  []string{cfg.Subject},
			Retention: nats.WorkQueuePolicy,
			Storage:   nats.FileStorage,
		})
		if err != nil {
			return nil, fmt.Errorf("create stream %s: %w", cfg.Stream, err)
		}
	}

	return &JetStreamQueue{
		js:     js,
		cfg:    cfg,
		logger: logger.With().Str("component", "evaluation_queue").Logger(),
	}, nil
}

// Enqueue publishes a job descriptor and returns once the stream has durably
// accepted it, not once it has been processed.
func (q *JetStreamQueue) Enqueue(ctx context.Context, job EvaluationJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode evaluation job: %w", err)
	}

	if _, err := q.js.Publish(q.cfg.Subject, payload, nats.Context(ctx)); err != nil {
		return fmt.Errorf("publish evaluation job: %w", err)
	}

	q.logger.Debug().Str("submission_id", job.SubmissionID).Msg("evaluation job enqueued")
	return nil
}

// Consume registers a durable queue-group subscription delivering jobs to the
// handler. Messages are acknowledged only after the handler returns nil, so a
// worker crash mid-job leads to redelivery. The returned stop function drains
// the subscription.
func (q *JetStreamQueue) Consume(handler Handler) (func(), error) {
	sub, err := q.js.QueueSubscribe(q.cfg.Subject, q.cfg.Group, func(msg *nats.Msg) {
		var job EvaluationJob
		if err := json.Unmarshal(msg.Data, &job); err != nil {
			q.logger.Error().Err(err).Msg("dropping undecodable evaluation job")
			if termErr := msg.Term(); termErr != nil {
				q.logger.Warn().Err(termErr).Msg("failed to terminate poison message")
			}
			return
		}

		if err := handler(context.Background(), job); err != nil {
			q.logger.Error().Err(err).
				Str("submission_id", job.SubmissionID).
				Msg("evaluation job failed, requesting redelivery")
			if nakErr := msg.Nak(); nakErr != nil {
				q.logger.Warn().Err(nakErr).Msg("failed to nak evaluation job")
			}
			return
		}

		if err := msg.Ack(); err != nil {
			q.logger.Warn().Err(err).
				Str("submission_id", job.SubmissionID).
				Msg("failed to ack evaluation job")
		}
	},
		nats.Durable(q.cfg.Group),
		nats.ManualAck(),
		nats.AckExplicit(),
		nats.MaxDeliver(q.cfg.MaxDeliver),
		nats.DeliverAll(),
	)
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", q.cfg.Subject, err)
	}

	return func() {
		if err := sub.Drain(); err != nil {
			q.logger.Warn().Err(err).Msg("failed to drain evaluation subscription")
		}
	}, nil
}
