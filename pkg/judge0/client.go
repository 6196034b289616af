package judge0

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	pollDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "hireloop",
		Subsystem: "judge0",
		Name:      "evaluation_duration_seconds",
		Help:      "Wall time spent waiting for a terminal verdict",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 15, 30},
	})

	pollTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "hireloop",
		Subsystem: "judge0",
		Name:      "evaluation_timeouts_total",
		Help:      "Number of evaluations that exhausted the poll ceiling",
	})

	transportFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "hireloop",
		Subsystem: "judge0",
		Name:      "transport_failures_total",
		Help:      "Number of failed calls to the execution engine",
	})
)

// ErrMissingCredentials indicates the engine API key is absent from configuration.
var ErrMissingCredentials = errors.New("judge0 api key is not configured")

// ErrEvaluationTimeout indicates the poll ceiling was exhausted without a terminal verdict.
var ErrEvaluationTimeout = errors.New("no terminal verdict after maximum poll attempts")

// Judge0 status ids 1 (In Queue) and 2 (Processing) are the only non-terminal states.
const maxNonTerminalStatusID = 2

// Client defines the behaviour for executing code on the remote engine.
type Client interface {
	Submit(ctx context.Context, req SubmissionRequest) (string, error)
	AwaitVerdict(ctx context.Context, token string) (Verdict, error)
}

// SubmissionRequest describes one program plus input pair sent to the engine.
type SubmissionRequest struct {
	SourceCode     string `json:"source_code"`
	LanguageID     int    `json:"language_id"`
	Stdin          string `json:"stdin"`
	ExpectedOutput string `json:"expected_output"`
}

// Verdict is the terminal outcome of one execution attempt.
type Verdict struct {
	Stdout            string
	Stderr            string
	StatusID          int
	StatusDescription string
	TimeMs            int64
	MemoryKB          int64
}

// Terminal reports whether the verdict's status is past queued/processing.
func (v Verdict) Terminal() bool {
	return v.StatusID > maxNonTerminalStatusID
}

// IsCorrect compares engine output against the expected output. Leading and
// trailing whitespace is ignored on both sides; nothing else is normalised.
func IsCorrect(stdout, expectedOutput string) bool {
	return strings.TrimSpace(stdout) == strings.TrimSpace(expectedOutput)
}

// Config groups engine client configuration values.
type Config struct {
	BaseURL      string
	APIKey       string
	APIHost      string
	PollAttempts int
	PollInterval time.Duration
	HTTPClient   *http.Client
	Logger       zerolog.Logger
}

// HTTPClient talks to a Judge0 instance over its submit/poll protocol.
type HTTPClient struct {
	cfg    Config
	http   *http.Client
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewHTTPClient constructs a Judge0 client from configuration.
func NewHTTPClient(cfg Config) *HTTPClient {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	if cfg.PollAttempts <= 0 {
		cfg.PollAttempts = 10
	}

	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &HTTPClient{
		cfg:    cfg,
		http:   httpClient,
		tracer: otel.Tracer("github.com/hireloop/hireloop-api/pkg/judge0"),
		logger: cfg.Logger.With().Str("component", "judge0_client").Logger(),
	}
}

type submitResponse struct {
	Token string `json:"token"`
}

type verdictResponse struct {
	Stdout *string `json:"stdout"`
	Stderr *string `json:"stderr"`
	Status struct {
		ID          int    `json:"id"`
		Description string `json:"description"`
	} `json:"status"`
	Time   *string  `json:"time"`
	Memory *float64 `json:"memory"`
}

// Submit sends one program plus input pair to the engine and returns its tracking token.
func (c *HTTPClient) Submit(parent context.Context, req SubmissionRequest) (string, error) {
	if c.cfg.APIKey == "" {
		return "", ErrMissingCredentials
	}

	ctx, span := c.tracer.Start(parent, "judge0.submit", trace.WithAttributes(
		attribute.Int("judge0.language_id", req.LanguageID),
	))
	defer span.End()

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encode submission: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/submissions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build submission request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.setAuthHeaders(httpReq)

	var parsed submitResponse
	if err := c.do(httpReq, &parsed); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	if parsed.Token == "" {
		transportFailures.Inc()
		return "", fmt.Errorf("engine returned an empty submission token")
	}

	return parsed.Token, nil
}

// AwaitVerdict polls the engine until the submission identified by token reaches
// a terminal status. A queued or processing response is retried after a fixed
// sleep, up to the configured attempt ceiling; exhausting the ceiling fails with
// ErrEvaluationTimeout. A terminal verdict, including wrong answer or runtime
// error, is returned immediately and is not an error.
func (c *HTTPClient) AwaitVerdict(parent context.Context, token string) (Verdict, error) {
	if c.cfg.APIKey == "" {
		return Verdict{}, ErrMissingCredentials
	}

	ctx, span := c.tracer.Start(parent, "judge0.await_verdict", trace.WithAttributes(
		attribute.String("judge0.token", token),
	))
	defer span.End()

	start := time.Now()

	for attempt := 0; attempt < c.cfg.PollAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return Verdict{}, ctx.Err()
			case <-time.After(c.cfg.PollInterval):
			}
		}

		verdict, err := c.fetchVerdict(ctx, token)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return Verdict{}, err
		}

		if !verdict.Terminal() {
			c.logger.Debug().
				Str("token", token).
				Int("attempt", attempt+1).
				Int("status_id", verdict.StatusID).
				Msg("verdict not terminal yet")
			continue
		}

		pollDuration.Observe(time.Since(start).Seconds())
		span.SetAttributes(attribute.Int("judge0.status_id", verdict.StatusID))
		return verdict, nil
	}

	pollTimeouts.Inc()
	span.SetStatus(codes.Error, "poll ceiling exhausted")
	return Verdict{}, fmt.Errorf("%w (%d attempts)", ErrEvaluationTimeout, c.cfg.PollAttempts)
}

func (c *HTTPClient) fetchVerdict(ctx context.Context, token string) (Verdict, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/submissions/"+token, nil)
	if err != nil {
		return Verdict{}, fmt.Errorf("build verdict request: %w", err)
	}
	c.setAuthHeaders(httpReq)

	var parsed verdictResponse
	if err := c.do(httpReq, &parsed); err != nil {
		return Verdict{}, err
	}

	verdict := Verdict{
		StatusID:          parsed.Status.ID,
		StatusDescription: parsed.Status.Description,
	}
	if parsed.Stdout != nil {
		verdict.Stdout = *parsed.Stdout
	}
	if parsed.Stderr != nil {
		verdict.Stderr = *parsed.Stderr
	}
	if parsed.Time != nil {
		if seconds, err := strconv.ParseFloat(*parsed.Time, 64); err == nil {
			verdict.TimeMs = int64(seconds * 1000)
		}
	}
	if parsed.Memory != nil {
		verdict.MemoryKB = int64(*parsed.Memory)
	}

	return verdict, nil
}

func (c *HTTPClient) do(req *http.Request, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		transportFailures.Inc()
		return fmt.Errorf("call execution engine: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		transportFailures.Inc()
		return fmt.Errorf("execution engine returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		transportFailures.Inc()
		return fmt.Errorf("decode engine response: %w", err)
	}

	return nil
}

func (c *HTTPClient) setAuthHeaders(req *http.Request) {
	req.Header.Set("X-RapidAPI-Key", c.cfg.APIKey)
	if c.cfg.APIHost != "" {
		req.Header.Set("X-RapidAPI-Host", c.cfg.APIHost)
	}
}
