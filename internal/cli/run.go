package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/youmna-rabie/line-relay/internal/channel"
	"github.com/youmna-rabie/line-relay/internal/completion"
	"github.com/youmna-rabie/line-relay/internal/config"
	"github.com/youmna-rabie/line-relay/internal/locale"
	"github.com/youmna-rabie/line-relay/internal/outcome"
	"github.com/youmna-rabie/line-relay/internal/relay"
	"github.com/youmna-rabie/line-relay/internal/reply"
	"github.com/youmna-rabie/line-relay/internal/server"
	"github.com/youmna-rabie/line-relay/internal/transport"
)

func init() {
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the relay HTTP server",
	RunE:  runRelay,
}

func runRelay(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := newLogger(cfg.Logging)

	srv, err := buildServer(cfg, logger)
	if err != nil {
		return err
	}

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	httpSrv := srv.HTTPServer(addr)

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", addr, "model", cfg.OpenAI.Model, "locale", cfg.Relay.Locale)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down gracefully")
		// In-flight webhooks get their full request timeout to finish.
		shutCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.RequestTimeout+5*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
	}

	logger.Info("server stopped")
	return nil
}

// buildServer constructs every client from cfg and wires them into the
// HTTP surface.
func buildServer(cfg *config.Config, logger *slog.Logger) (*server.Server, error) {
	reg := locale.NewRegistry()
	if len(cfg.Relay.LocaleDirs) > 0 {
		if err := reg.Scan(cfg.Relay.LocaleDirs); err != nil {
			logger.Warn("locale scan error", "error", err)
		}
	}
	loc, err := reg.Lookup(cfg.Relay.Locale)
	if err != nil {
		return nil, fmt.Errorf("resolving locale: %w", err)
	}

	var completer completion.Client = completion.NewOpenAI(completion.OpenAIConfig{
		APIKey:      cfg.OpenAI.APIKey,
		BaseURL:     cfg.OpenAI.BaseURL,
		Model:       cfg.OpenAI.Model,
		MaxTokens:   cfg.OpenAI.MaxTokens,
		Timeout:     cfg.OpenAI.Timeout,
		MaxAttempts: cfg.OpenAI.MaxAttempts,
		RetryDelay:  cfg.OpenAI.RetryDelay,
		HTTPClient:  transport.NewHTTPClient(cfg.Relay.Concurrency, cfg.Server.RequestTimeout),
		Logger:      logger,
	})
	if cfg.OpenAI.Stub {
		logger.Warn("openai.stub is set, completions are canned")
		completer = &completion.StubClient{Logger: logger, Reply: cfg.OpenAI.StubReply}
	}

	replies, err := reply.NewLine(reply.LineConfig{
		ChannelSecret:      cfg.Line.ChannelSecret,
		ChannelAccessToken: cfg.Line.ChannelAccessToken,
		EndpointBase:       cfg.Line.APIBase,
		HTTPClient:         transport.NewHTTPClient(cfg.Relay.Concurrency, cfg.Line.Timeout),
		Logger:             logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating reply dispatcher: %w", err)
	}

	var store outcome.Store
	if cfg.Relay.OutcomeCapacity > 0 {
		ms, err := outcome.NewMemoryStore(cfg.Relay.OutcomeCapacity)
		if err != nil {
			return nil, fmt.Errorf("creating outcome store: %w", err)
		}
		store = ms
	}

	orch := relay.New(relay.Options{
		Completion:       completer,
		Replies:          replies,
		Locale:           loc,
		Store:            store,
		Concurrency:      cfg.Relay.Concurrency,
		CompletionBudget: cfg.OpenAI.Budget,
		Logger:           logger,
	})

	line := channel.NewLineChannel("line", cfg.Line.ChannelSecret)
	return server.NewServer(cfg, line, orch, store, logger), nil
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
