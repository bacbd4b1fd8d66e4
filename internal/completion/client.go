// Package completion turns user text into a generated reply through a
// remote language model.
package completion

import (
	"context"
	"errors"
)

// Failure kinds. Returned errors wrap exactly one of these.
var (
	ErrRateLimited     = errors.New("completion rate limited")
	ErrTimeout         = errors.New("completion timed out")
	ErrRemote          = errors.New("completion remote error")
	ErrEmptyCompletion = errors.New("empty completion")
)

// Request is the input of a single completion.
type Request struct {
	SystemPrompt string
	Text         string
}

// Client generates reply text for a user message.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Retryable reports whether err is a failure worth another attempt.
func Retryable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrTimeout)
}
