// Package reply sends generated text back to the originating conversation.
package reply

import (
	"context"
	"errors"

	"github.com/youmna-rabie/line-relay/internal/types"
)

var (
	// ErrInvalidToken means the reply token was expired or already used.
	// The conversation turn is lost.
	ErrInvalidToken = errors.New("invalid reply token")

	// ErrDelivery covers every other failure to send the reply.
	ErrDelivery = errors.New("reply delivery failed")
)

// Dispatcher sends one reply against a single-use reply token.
type Dispatcher interface {
	Reply(ctx context.Context, msg types.OutboundReply) error
}
