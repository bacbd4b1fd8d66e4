package channel

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/youmna-rabie/line-relay/internal/types"
)

const (
	maxBodySize = 1 << 20 // 1 MB

	// SignatureHeader carries the base64 HMAC-SHA256 of the raw body.
	SignatureHeader = "X-Line-Signature"
)

var (
	ErrAuthentication   = errors.New("authentication failed")
	ErrMissingSignature = fmt.Errorf("%w: missing signature", ErrAuthentication)
	ErrInvalidSignature = fmt.Errorf("%w: signature mismatch", ErrAuthentication)
	ErrMalformedPayload = errors.New("malformed payload")
)

// LineChannel verifies LINE Messaging API webhooks with the channel secret.
type LineChannel struct {
	name   string
	secret []byte
}

// NewLineChannel creates a LineChannel that authenticates with secret.
func NewLineChannel(name, secret string) *LineChannel {
	return &LineChannel{name: name, secret: []byte(secret)}
}

func (l *LineChannel) Name() string {
	return l.name
}

// ParseRequest reads the body (1MB max) and verifies it against the
// X-Line-Signature header.
func (l *LineChannel) ParseRequest(r *http.Request) ([]types.InboundEvent, error) {
	limited := io.LimitReader(r.Body, maxBodySize+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("%w: reading request body: %v", ErrMalformedPayload, err)
	}
	if len(body) > maxBodySize {
		return nil, fmt.Errorf("%w: request body exceeds 1MB limit", ErrMalformedPayload)
	}
	return l.Verify(body, r.Header.Get(SignatureHeader))
}

// Verify authenticates body against signature and parses the event batch.
// Nothing is parsed unless the signature matches.
func (l *LineChannel) Verify(body []byte, signature string) ([]types.InboundEvent, error) {
	if signature == "" {
		return nil, ErrMissingSignature
	}
	got, err := base64.StdEncoding.DecodeString(signature)
	if err != nil || !hmac.Equal(got, l.mac(body)) {
		return nil, ErrInvalidSignature
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if env.Events == nil {
		return nil, fmt.Errorf("%w: missing events array", ErrMalformedPayload)
	}

	events := make([]types.InboundEvent, 0, len(env.Events))
	for _, raw := range env.Events {
		events = append(events, raw.toEvent())
	}
	return events, nil
}

// Sign returns the signature LINE would send for body.
func (l *LineChannel) Sign(body []byte) string {
	return base64.StdEncoding.EncodeToString(l.mac(body))
}

func (l *LineChannel) mac(body []byte) []byte {
	m := hmac.New(sha256.New, l.secret)
	m.Write(body)
	return m.Sum(nil)
}

// envelope is the webhook request body.
type envelope struct {
	Destination string      `json:"destination"`
	Events      []lineEvent `json:"events"`
}

type lineEvent struct {
	Type            string       `json:"type"`
	WebhookEventID  string       `json:"webhookEventId"`
	ReplyToken      string       `json:"replyToken"`
	Timestamp       int64        `json:"timestamp"`
	Source          lineSource   `json:"source"`
	DeliveryContext lineDelivery `json:"deliveryContext"`
	Message         *lineMessage `json:"message"`
}

type lineSource struct {
	Type    string `json:"type"`
	UserID  string `json:"userId"`
	GroupID string `json:"groupId"`
	RoomID  string `json:"roomId"`
}

type lineDelivery struct {
	IsRedelivery bool `json:"isRedelivery"`
}

type lineMessage struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Text string `json:"text"`
}

// toEvent never fails: an event of unknown or incomplete shape is kept so
// that it is skipped on its own instead of rejecting its siblings.
func (e lineEvent) toEvent() types.InboundEvent {
	ev := types.InboundEvent{
		ID:         e.WebhookEventID,
		Type:       e.Type,
		ReplyToken: e.ReplyToken,
		Source:     e.Source.id(),
		Redelivery: e.DeliveryContext.IsRedelivery,
	}
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if e.Timestamp > 0 {
		ev.Timestamp = time.UnixMilli(e.Timestamp)
	} else {
		ev.Timestamp = time.Now()
	}

	if e.Type == types.EventTypeMessage {
		ev.Message = &types.Message{}
		if e.Message != nil {
			ev.Message.ID = e.Message.ID
			ev.Message.Type = e.Message.Type
			if e.Message.Type == types.MessageTypeText {
				ev.Message.Text = e.Message.Text
			}
		}
	}
	return ev
}

func (s lineSource) id() string {
	switch {
	case s.GroupID != "":
		return s.GroupID
	case s.RoomID != "":
		return s.RoomID
	default:
		return s.UserID
	}
}
