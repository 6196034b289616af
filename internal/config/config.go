package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values shared by the API and worker processes.
type Config struct {
	AppName            string
	AppEnv             string
	AppPort            string
	DatabaseURL        string
	RedisURL           string
	NATSURL            string
	JWTSecret          string
	Judge0BaseURL      string
	Judge0APIKey       string
	Judge0APIHost      string
	Judge0PollAttempts int
	Judge0PollInterval time.Duration
	QueueStream        string
	QueueSubject       string
	QueueGroup         string
	QueueMaxDeliver    int
	WorkerConcurrency  int
	SubmissionCacheTTL time.Duration
	SubmitRateMax      int
	SubmitRateWindow   time.Duration
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("HIRELOOP")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Hireloop API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("nats.url", "nats://127.0.0.1:4222")
	v.SetDefault("judge0.base_url", "https://judge0-ce.p.rapidapi.com")
	v.SetDefault("judge0.api_host", "judge0-ce.p.rapidapi.com")
	v.SetDefault("judge0.poll_attempts", 10)
	v.SetDefault("judge0.poll_interval", "1s")
	v.SetDefault("queue.stream", "SUBMISSIONS")
	v.SetDefault("queue.subject", "submissions.evaluate")
	v.SetDefault("queue.group", "evaluators")
	v.SetDefault("queue.max_deliver", 3)
	v.SetDefault("worker.concurrency", 4)
	v.SetDefault("submission.cache_ttl", "10m")
	v.SetDefault("submission.rate_max", 20)
	v.SetDefault("submission.rate_window", "1m")

	interval, err := time.ParseDuration(v.GetString("judge0.poll_interval"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid judge0 poll interval: %w", err)
	}

	ttl, err := time.ParseDuration(v.GetString("submission.cache_ttl"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid submission cache ttl: %w", err)
	}

	rateWindow, err := time.ParseDuration(v.GetString("submission.rate_window"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid submission rate window: %w", err)
	}

	cfg := Config{
		AppName:            v.GetString("app.name"),
		AppEnv:             v.GetString("app.env"),
		AppPort:            v.GetString("app.port"),
		DatabaseURL:        v.GetString("database.url"),
		RedisURL:           v.GetString("redis.url"),
		NATSURL:            v.GetString("nats.url"),
		JWTSecret:          v.GetString("jwt.secret"),
		Judge0BaseURL:      strings.TrimRight(v.GetString("judge0.base_url"), "/"),
		Judge0APIKey:       v.GetString("judge0.api_key"),
		Judge0APIHost:      v.GetString("judge0.api_host"),
		Judge0PollAttempts: v.GetInt("judge0.poll_attempts"),
		Judge0PollInterval: interval,
		QueueStream:        v.GetString("queue.stream"),
		QueueSubject:       v.GetString("queue.subject"),
		QueueGroup:         v.GetString("queue.group"),
		QueueMaxDeliver:    v.GetInt("queue.max_deliver"),
		WorkerConcurrency:  v.GetInt("worker.concurrency"),
		SubmissionCacheTTL: ttl,
		SubmitRateMax:      v.GetInt("submission.rate_max"),
		SubmitRateWindow:   rateWindow,
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.Judge0PollAttempts <= 0 {
		cfg.Judge0PollAttempts = 10
	}

	if cfg.Judge0PollInterval <= 0 {
		cfg.Judge0PollInterval = time.Second
	}

	if cfg.WorkerConcurrency <= 0 {
		cfg.WorkerConcurrency = 1
	}

	return cfg, nil
}
