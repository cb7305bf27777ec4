package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	apierrors "github.com/zhengjr9/hive-agent/internal/errors"
)

// Attempter performs a single classified exchange with the upstream.
type Attempter interface {
	Attempt(ctx context.Context, credential string, payload Payload) (Outcome, error)
}

// Config describes the upstream deployment.
type Config struct {
	BaseURL string
	Model   string
	// FastModel serves requests with Fast set. Empty means Model.
	FastModel   string
	Credentials []string
	Timeout     time.Duration
	ProxyURL    string
	Policy      Policy
}

// Client turns a Request into response text, rotating credentials on every
// attempt and retrying rate limits and transient failures.
// It is safe for concurrent use.
type Client struct {
	pool      *Pool
	transport Attempter
	model     string
	fastModel string
	policy    Policy
	sleep     func(ctx context.Context, d time.Duration) error
	logger    *slog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithTransport replaces the HTTP transport.
func WithTransport(t Attempter) Option {
	return func(c *Client) { c.transport = t }
}

// WithSleep replaces the backoff sleep.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) { c.sleep = fn }
}

// WithLogger replaces the logger. Each call adds call_id and model attributes.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New builds a Client. A zero Policy means DefaultPolicy.
func New(cfg Config, opts ...Option) *Client {
	policy := cfg.Policy
	if policy == (Policy{}) {
		policy = DefaultPolicy()
	}
	c := &Client{
		pool:      NewPool(cfg.Credentials),
		model:     cfg.Model,
		fastModel: cfg.FastModel,
		policy:    policy,
		sleep:     sleepContext,
		logger:    slog.Default().With("component", "llm"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.transport == nil {
		c.transport = NewHTTPTransport(cfg.BaseURL, cfg.Timeout, cfg.ProxyURL)
	}
	return c
}

// PoolSize returns the number of configured credentials.
func (c *Client) PoolSize() int { return c.pool.Size() }

// Complete returns the trimmed text of the first choice of a successful
// completion. After 2×PoolSize failed attempts it returns an
// *errors.UpstreamExhaustedError carrying the last cause.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	size := c.pool.Size()
	if size == 0 {
		CompletionsTotal.WithLabelValues("config_error").Inc()
		return "", apierrors.ErrNoCredentials
	}
	if len(req.Messages) == 0 {
		CompletionsTotal.WithLabelValues("invalid").Inc()
		return "", apierrors.ErrEmptyMessages
	}
	if !(req.Temperature >= 0 && req.Temperature <= 2) {
		CompletionsTotal.WithLabelValues("invalid").Inc()
		return "", fmt.Errorf("%w: temperature %v outside [0,2]", apierrors.ErrInvalidOptions, req.Temperature)
	}

	payload := c.payload(req)
	budget := c.policy.Budget(size)
	log := c.logger.With("call_id", uuid.NewString(), "model", payload.Model)

	for attempt := 0; attempt < budget; attempt++ {
		idx, credential := c.pool.Next()
		outcome, err := c.transport.Attempt(ctx, credential, payload)
		label := outcome.Kind.String()
		if err != nil {
			outcome = Outcome{Kind: OutcomeFailure, Err: err}
			label = "error"
		}
		AttemptsTotal.WithLabelValues(label).Inc()
		last := attempt == budget-1

		switch outcome.Kind {
		case OutcomeSuccess:
			log.Debug("completion succeeded", "attempt", attempt, "credential_index", idx)
			CompletionsTotal.WithLabelValues("success").Inc()
			return outcome.Text, nil

		case OutcomeRateLimited:
			if last {
				return "", c.exhausted(log, budget, outcome.Err)
			}
			delay := c.policy.RateLimitDelay(attempt)
			log.Warn("rate limited, rotating credential",
				"attempt", attempt, "credential_index", idx, "backoff", delay.String())
			if err := c.wait(ctx, delay, "rate_limited"); err != nil {
				return "", err
			}

		default:
			if last {
				return "", c.exhausted(log, budget, outcome.Err)
			}
			log.Warn("completion attempt failed",
				"attempt", attempt, "credential_index", idx, "status", outcome.StatusCode, "error", outcome.Err)
			if err := c.wait(ctx, c.policy.RetryDelay, "failure"); err != nil {
				return "", err
			}
		}
	}

	// Every branch above returns on the final attempt.
	log.Error("attempt loop ended without a result", "budget", budget)
	CompletionsTotal.WithLabelValues("retries_exhausted").Inc()
	return "", apierrors.ErrRetriesExhausted
}

func (c *Client) payload(req Request) Payload {
	model := c.model
	if req.Fast && c.fastModel != "" {
		model = c.fastModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return Payload{
		Model:       model,
		Messages:    append([]Message(nil), req.Messages...),
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
		Stream:      false,
	}
}

func (c *Client) wait(ctx context.Context, d time.Duration, reason string) error {
	BackoffSecondsTotal.WithLabelValues(reason).Add(d.Seconds())
	if err := c.sleep(ctx, d); err != nil {
		CompletionsTotal.WithLabelValues("canceled").Inc()
		return fmt.Errorf("completion aborted during backoff: %w", err)
	}
	return nil
}

func (c *Client) exhausted(log *slog.Logger, attempts int, cause error) error {
	log.Error("completion failed on every credential", "attempts", attempts, "error", cause)
	CompletionsTotal.WithLabelValues("exhausted").Inc()
	return &apierrors.UpstreamExhaustedError{Attempts: attempts, Cause: cause}
}
