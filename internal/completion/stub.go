package completion

import (
	"context"
	"log/slog"
)

// StubClient is a Client that logs the request and returns a canned reply.
// `relay run` uses it when openai.stub is set, so the LINE side can be
// exercised without an API key.
type StubClient struct {
	Logger *slog.Logger
	Reply  string
}

// Complete returns s.Reply, or the user text itself when Reply is empty.
func (s *StubClient) Complete(_ context.Context, req Request) (string, error) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("stub completion", "text_len", len(req.Text))

	if s.Reply == "" {
		return req.Text, nil
	}
	return s.Reply, nil
}
