// Package relay composes classification, completion and reply into the
// per-event pipeline run for each webhook batch.
package relay

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/youmna-rabie/line-relay/internal/completion"
	"github.com/youmna-rabie/line-relay/internal/locale"
	"github.com/youmna-rabie/line-relay/internal/outcome"
	"github.com/youmna-rabie/line-relay/internal/reply"
	"github.com/youmna-rabie/line-relay/internal/types"
)

const defaultConcurrency = 4

// Outcome causes.
const (
	CauseRateLimited     = "rate_limited"
	CauseTimeout         = "timeout"
	CauseRemoteError     = "remote_error"
	CauseEmptyCompletion = "empty_completion"
	CauseInvalidToken    = "invalid_token"
	CauseDeliveryError   = "delivery_error"
	CauseCanceled        = "canceled"
)

// Options wires an Orchestrator. Store is optional; without it redelivered
// events are not recognised.
type Options struct {
	Completion       completion.Client
	Replies          reply.Dispatcher
	Locale           locale.Locale
	Store            outcome.Store
	Concurrency      int
	CompletionBudget time.Duration
	Logger           *slog.Logger
}

// Orchestrator relays each actionable event through the completion client
// and the reply dispatcher.
type Orchestrator struct {
	completion  completion.Client
	replies     reply.Dispatcher
	locale      locale.Locale
	store       outcome.Store
	concurrency int
	budget      time.Duration
	logger      *slog.Logger
}

// New creates an Orchestrator from opts.
func New(opts Options) *Orchestrator {
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Orchestrator{
		completion:  opts.Completion,
		replies:     opts.Replies,
		locale:      opts.Locale,
		store:       opts.Store,
		concurrency: opts.Concurrency,
		budget:      opts.CompletionBudget,
		logger:      opts.Logger,
	}
}

// Relay processes a batch and returns one outcome per event, in input
// order. Actionable events run concurrently up to the configured limit;
// a failure in one never affects the others.
func (o *Orchestrator) Relay(ctx context.Context, events []types.InboundEvent) []types.Outcome {
	classified := Classify(events)
	outcomes := make([]types.Outcome, len(classified))

	var g errgroup.Group
	g.SetLimit(o.concurrency)

	for i, c := range classified {
		if !c.Actionable {
			outcomes[i] = o.record(skipped(c.Event.ID, c.Reason))
			continue
		}
		if o.store != nil {
			if err := o.store.Claim(c.Event.ID); errors.Is(err, outcome.ErrDuplicate) {
				o.logger.Info("duplicate event skipped", "event_id", c.Event.ID, "redelivery", c.Event.Redelivery)
				outcomes[i] = skipped(c.Event.ID, types.ReasonDuplicate)
				continue
			}
		}
		g.Go(func() error {
			outcomes[i] = o.record(o.handle(ctx, c.Event))
			return nil
		})
	}

	_ = g.Wait()
	return outcomes
}

// handle runs Completing → Replying for one actionable event. Exactly one
// reply is attempted unless the request was abandoned first.
func (o *Orchestrator) handle(ctx context.Context, ev types.InboundEvent) types.Outcome {
	log := o.logger.With("event_id", ev.ID, "source", ev.Source)
	out := types.Outcome{EventID: ev.ID, Status: types.OutcomeDelivered}

	if ev.ReplyToken == "" {
		log.Warn("text message without reply token")
		return failed(out, types.StageDelivery, CauseInvalidToken)
	}

	attrs := []any{"text_len", len(ev.Message.Text)}
	if !ev.Timestamp.IsZero() {
		attrs = append(attrs, "age_ms", time.Since(ev.Timestamp).Milliseconds())
	}
	log.Info("relaying message", attrs...)

	text, err := o.complete(ctx, ev.Message.Text)
	if ctx.Err() != nil {
		log.Warn("request abandoned during completion", "error", ctx.Err())
		return failed(out, types.StageCompletion, CauseCanceled)
	}

	msg := types.OutboundReply{ReplyToken: ev.ReplyToken, Text: text}
	if err != nil {
		cause := causeOf(err, CauseRemoteError)
		log.Warn("completion failed, sending fallback", "cause", cause, "error", err)
		out = failed(out, types.StageCompletion, cause)
		msg.Text = o.locale.Fallback
	}

	if err := o.replies.Reply(ctx, msg); err != nil {
		cause := causeOf(err, CauseDeliveryError)
		log.Error("reply failed", "cause", cause, "error", err)
		return failed(out, types.StageDelivery, cause)
	}

	if out.Status == types.OutcomeFailed {
		out.FallbackSent = true
	}
	log.Info("reply sent", "status", out.Status, "reply_len", len(msg.Text))
	return out
}

func (o *Orchestrator) complete(ctx context.Context, text string) (string, error) {
	if o.budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.budget)
		defer cancel()
	}
	return o.completion.Complete(ctx, completion.Request{
		SystemPrompt: o.locale.SystemPrompt,
		Text:         text,
	})
}

func (o *Orchestrator) record(out types.Outcome) types.Outcome {
	out.Timestamp = time.Now()
	if o.store != nil {
		if err := o.store.Save(out); err != nil {
			o.logger.Warn("failed to record outcome", "event_id", out.EventID, "error", err)
		}
	}
	return out
}

func skipped(id, reason string) types.Outcome {
	return types.Outcome{EventID: id, Status: types.OutcomeSkipped, Reason: reason, Timestamp: time.Now()}
}

func failed(out types.Outcome, stage, cause string) types.Outcome {
	out.Status = types.OutcomeFailed
	out.Stage = stage
	out.Cause = cause
	return out
}

// causeOf names the failure kind of err, or def when it has none.
func causeOf(err error, def string) string {
	switch {
	case errors.Is(err, completion.ErrRateLimited):
		return CauseRateLimited
	case errors.Is(err, completion.ErrTimeout):
		return CauseTimeout
	case errors.Is(err, completion.ErrEmptyCompletion):
		return CauseEmptyCompletion
	case errors.Is(err, reply.ErrInvalidToken):
		return CauseInvalidToken
	case errors.Is(err, reply.ErrDelivery):
		return CauseDeliveryError
	case errors.Is(err, context.Canceled):
		return CauseCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return CauseTimeout
	default:
		return def
	}
}
