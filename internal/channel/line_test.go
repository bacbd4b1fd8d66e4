package channel

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/youmna-rabie/line-relay/internal/types"
)

const testSecret = "channel-secret"

const batchBody = `{
  "destination": "U0000",
  "events": [
    {
      "type": "message",
      "webhookEventId": "01EVT1",
      "replyToken": "token-1",
      "timestamp": 1462629479859,
      "source": {"type": "user", "userId": "U1"},
      "deliveryContext": {"isRedelivery": false},
      "message": {"id": "m1", "type": "text", "text": "Hello"}
    },
    {
      "type": "message",
      "webhookEventId": "01EVT2",
      "replyToken": "token-2",
      "source": {"type": "group", "groupId": "G1", "userId": "U2"},
      "deliveryContext": {"isRedelivery": true},
      "message": {"id": "m2", "type": "image"}
    },
    {
      "type": "follow",
      "replyToken": "token-3",
      "source": {"type": "user", "userId": "U3"}
    }
  ]
}`

func signedRequest(t *testing.T, ch *LineChannel, body string) *http.Request {
	t.Helper()
	r := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set(SignatureHeader, ch.Sign([]byte(body)))
	return r
}

func TestLineChannel_Name(t *testing.T) {
	ch := NewLineChannel("line", testSecret)
	if ch.Name() != "line" {
		t.Fatalf("expected name %q, got %q", "line", ch.Name())
	}
}

func TestLineChannel_ParseRequest_ValidBatch(t *testing.T) {
	ch := NewLineChannel("line", testSecret)

	events, err := ch.ParseRequest(signedRequest(t, ch, batchBody))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}

	first := events[0]
	if first.ID != "01EVT1" {
		t.Errorf("events[0].ID = %q, want %q", first.ID, "01EVT1")
	}
	if first.ReplyToken != "token-1" {
		t.Errorf("events[0].ReplyToken = %q, want %q", first.ReplyToken, "token-1")
	}
	if !first.IsText() || first.Message.Text != "Hello" {
		t.Errorf("events[0] should be text %q, got %+v", "Hello", first.Message)
	}
	if first.Timestamp.UnixMilli() != 1462629479859 {
		t.Errorf("events[0].Timestamp = %v", first.Timestamp)
	}

	second := events[1]
	if second.IsText() {
		t.Error("image message must not be text")
	}
	if second.Message == nil || second.Message.Type != "image" {
		t.Errorf("events[1].Message = %+v, want image", second.Message)
	}
	if !second.Redelivery {
		t.Error("events[1] should be flagged as redelivery")
	}
	if second.Source != "G1" {
		t.Errorf("events[1].Source = %q, want group id", second.Source)
	}

	third := events[2]
	if third.Type != "follow" || third.Message != nil {
		t.Errorf("events[2] = %+v, want follow without message", third)
	}
	if third.ID == "" {
		t.Error("events without webhookEventId should get a generated ID")
	}
}

func TestLineChannel_Verify_IncompleteEventsKeepSiblings(t *testing.T) {
	ch := NewLineChannel("line", testSecret)
	body := []byte(`{"events":[
		{"replyToken":"t0"},
		{"type":"message","replyToken":"t1"},
		{"type":"message","replyToken":"t2","message":{"id":"m2"}},
		{"type":"message","webhookEventId":"ok","replyToken":"t3","message":{"id":"m3","type":"text","text":"hi"}}
	]}`)

	events, err := ch.Verify(body, ch.Sign(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(events))
	}
	if events[0].Type != "" || events[0].Message != nil {
		t.Errorf("events[0] = %+v, want untyped event without message", events[0])
	}
	for i := 1; i <= 2; i++ {
		if events[i].Message == nil || events[i].IsText() {
			t.Errorf("events[%d].Message = %+v, want non-text payload", i, events[i].Message)
		}
	}
	if !events[3].IsText() || events[3].Message.Text != "hi" {
		t.Errorf("events[3] = %+v, want text sibling intact", events[3])
	}
}

func TestLineChannel_Verify_EmptyEvents(t *testing.T) {
	ch := NewLineChannel("line", testSecret)
	body := []byte(`{"destination":"U0000","events":[]}`)

	events, err := ch.Verify(body, ch.Sign(body))
	if err != nil {
		t.Fatalf("empty batch should verify: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected 0 events, got %d", len(events))
	}
}

func TestLineChannel_Verify_Errors(t *testing.T) {
	ch := NewLineChannel("line", testSecret)
	other := NewLineChannel("line", "another-secret")

	tests := []struct {
		name      string
		body      string
		signature func(body []byte) string
		want      error
	}{
		{"missing signature", batchBody, func([]byte) string { return "" }, ErrMissingSignature},
		{"wrong secret", batchBody, other.Sign, ErrInvalidSignature},
		{"not base64", batchBody, func([]byte) string { return "%%%" }, ErrInvalidSignature},
		{"tampered body", batchBody, func([]byte) string { return ch.Sign([]byte(batchBody + " ")) }, ErrInvalidSignature},
		{"invalid json", "not json", ch.Sign, ErrMalformedPayload},
		{"missing events", `{"destination":"U0000"}`, ch.Sign, ErrMalformedPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ch.Verify([]byte(tt.body), tt.signature([]byte(tt.body)))
			if !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestLineChannel_AuthenticationErrorsShareSentinel(t *testing.T) {
	for _, err := range []error{ErrMissingSignature, ErrInvalidSignature} {
		if !errors.Is(err, ErrAuthentication) {
			t.Errorf("%v should wrap ErrAuthentication", err)
		}
	}
	if errors.Is(ErrMalformedPayload, ErrAuthentication) {
		t.Error("ErrMalformedPayload must not be an authentication error")
	}
}

func TestLineChannel_BadSignatureCheckedBeforeParsing(t *testing.T) {
	ch := NewLineChannel("line", testSecret)
	_, err := ch.Verify([]byte("not json"), "bogus")
	if !errors.Is(err, ErrAuthentication) {
		t.Fatalf("expected authentication error before parse, got %v", err)
	}
}

func TestLineChannel_ParseRequest_BodyTooLarge(t *testing.T) {
	ch := NewLineChannel("line", testSecret)
	big := strings.Repeat("x", maxBodySize+1)

	_, err := ch.ParseRequest(signedRequest(t, ch, big))
	if !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("expected ErrMalformedPayload, got %v", err)
	}
	if !strings.Contains(err.Error(), "1MB") {
		t.Errorf("error should mention 1MB limit: %v", err)
	}
}

func TestLineChannel_ImplementsChannel(t *testing.T) {
	var _ types.Channel = (*LineChannel)(nil)
}
