package reply

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/line/line-bot-sdk-go/v7/linebot"
	"github.com/youmna-rabie/line-relay/internal/types"
)

// maxTextLen is the LINE limit for a text message.
const maxTextLen = 5000

// LineConfig configures the LINE reply dispatcher.
type LineConfig struct {
	ChannelSecret      string
	ChannelAccessToken string
	EndpointBase       string
	HTTPClient         *http.Client
	Logger             *slog.Logger
}

// Line sends replies through the LINE Messaging API reply endpoint.
type Line struct {
	bot    *linebot.Client
	logger *slog.Logger
}

// NewLine creates a Line dispatcher.
func NewLine(cfg LineConfig) (*Line, error) {
	opts := []linebot.ClientOption{}
	if cfg.HTTPClient != nil {
		opts = append(opts, linebot.WithHTTPClient(cfg.HTTPClient))
	}
	if cfg.EndpointBase != "" {
		opts = append(opts, linebot.WithEndpointBase(cfg.EndpointBase))
	}
	bot, err := linebot.New(cfg.ChannelSecret, cfg.ChannelAccessToken, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating line client: %w", err)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Line{bot: bot, logger: cfg.Logger}, nil
}

// Reply sends msg at most once. The only second attempt is made when the
// first failed while dialing, so the platform never saw the token.
func (l *Line) Reply(ctx context.Context, msg types.OutboundReply) error {
	text := truncate(msg.Text, maxTextLen)

	err := l.send(ctx, msg.ReplyToken, text)
	if err != nil && notSent(err) && ctx.Err() == nil {
		l.logger.Warn("reply not sent, retrying once", "error", err)
		err = l.send(ctx, msg.ReplyToken, text)
	}
	if err != nil {
		return classify(err)
	}
	return nil
}

func (l *Line) send(ctx context.Context, token, text string) error {
	_, err := l.bot.ReplyMessage(token, linebot.NewTextMessage(text)).WithContext(ctx).Do()
	return err
}

// notSent reports whether err happened before the request left the process.
func notSent(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

func classify(err error) error {
	var apiErr *linebot.APIError
	if errors.As(err, &apiErr) {
		msg := ""
		if apiErr.Response != nil {
			msg = apiErr.Response.Message
		}
		if apiErr.Code == http.StatusBadRequest && strings.Contains(strings.ToLower(msg), "reply token") {
			return fmt.Errorf("%w: %s", ErrInvalidToken, msg)
		}
		return fmt.Errorf("%w: HTTP %d: %s", ErrDelivery, apiErr.Code, msg)
	}
	return fmt.Errorf("%w: %v", ErrDelivery, err)
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
