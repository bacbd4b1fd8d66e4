package completion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const (
	defaultModel       = "gpt-3.5-turbo"
	defaultTimeout     = 10 * time.Second
	defaultMaxAttempts = 2
	defaultRetryDelay  = 300 * time.Millisecond
)

// OpenAIConfig configures the OpenAI chat completion client.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Timeout     time.Duration // per attempt
	MaxAttempts int
	RetryDelay  time.Duration
	HTTPClient  *http.Client
	Logger      *slog.Logger
}

// OpenAI implements Client using the OpenAI Chat Completions API.
type OpenAI struct {
	client      *openai.Client
	model       string
	maxTokens   int
	timeout     time.Duration
	maxAttempts int
	retryDelay  time.Duration
	logger      *slog.Logger
}

// NewOpenAI creates an OpenAI client, filling zero fields with defaults.
func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	if cfg.HTTPClient != nil {
		oc.HTTPClient = cfg.HTTPClient
	}

	return &OpenAI{
		client:      openai.NewClientWithConfig(oc),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		timeout:     cfg.Timeout,
		maxAttempts: cfg.MaxAttempts,
		retryDelay:  cfg.RetryDelay,
		logger:      cfg.Logger,
	}
}

// Complete runs up to maxAttempts attempts, retrying only rate limits and
// timeouts, and never sleeping past the deadline of ctx.
func (o *OpenAI) Complete(ctx context.Context, req Request) (string, error) {
	var lastErr error
	delay := o.retryDelay

	for attempt := 1; attempt <= o.maxAttempts; attempt++ {
		if attempt > 1 {
			if !fitsDeadline(ctx, delay) {
				o.logger.Warn("completion retry skipped, deadline too close", "attempt", attempt, "error", lastErr)
				break
			}
			o.logger.Warn("retrying completion", "attempt", attempt, "backoff", delay, "error", lastErr)
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("completion abandoned: %w", ctx.Err())
			case <-time.After(delay):
			}
			delay *= 2
		}

		text, err := o.attempt(ctx, req)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !Retryable(err) || ctx.Err() != nil {
			return "", err
		}
	}
	return "", lastErr
}

func (o *OpenAI) attempt(ctx context.Context, req Request) (string, error) {
	actx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Text,
	})

	apiReq := openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: messages,
	}
	if o.maxTokens > 0 {
		apiReq.MaxTokens = o.maxTokens
	}

	start := time.Now()
	resp, err := o.client.CreateChatCompletion(actx, apiReq)
	if err != nil {
		return "", classify(ctx, actx, err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices returned", ErrEmptyCompletion)
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("%w: finish_reason %q", ErrEmptyCompletion, resp.Choices[0].FinishReason)
	}

	o.logger.Debug("completion received",
		"model", resp.Model,
		"duration_ms", time.Since(start).Milliseconds(),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
	)
	return text, nil
}

// classify maps a transport or API error onto the failure kinds. A
// cancelled parent context is reported as such, not as a timeout.
func classify(parent, attempt context.Context, err error) error {
	if parent.Err() == context.Canceled {
		return fmt.Errorf("completion abandoned: %w", context.Canceled)
	}
	if attempt.Err() == context.DeadlineExceeded || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("%w: %s", ErrRateLimited, apiErr.Message)
		}
		return fmt.Errorf("%w: HTTP %d: %s", ErrRemote, apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.HTTPStatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("%w: %v", ErrRateLimited, reqErr.Err)
		}
		return fmt.Errorf("%w: HTTP %d: %v", ErrRemote, reqErr.HTTPStatusCode, reqErr.Err)
	}
	return fmt.Errorf("%w: %v", ErrRemote, err)
}

func fitsDeadline(ctx context.Context, delay time.Duration) bool {
	deadline, ok := ctx.Deadline()
	if !ok {
		return true
	}
	return time.Until(deadline) > delay
}
