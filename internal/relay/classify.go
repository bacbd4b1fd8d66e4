package relay

import "github.com/youmna-rabie/line-relay/internal/types"

// Classified pairs an event with whether the relay can answer it.
type Classified struct {
	Event      types.InboundEvent
	Actionable bool
	Reason     string // why a non-actionable event is skipped
}

// Classify marks text messages actionable and everything else skipped.
// Unsupported kinds are normal traffic, never errors.
func Classify(events []types.InboundEvent) []Classified {
	out := make([]Classified, len(events))
	for i, ev := range events {
		c := Classified{Event: ev}
		switch {
		case ev.IsText():
			c.Actionable = true
		case ev.Type == types.EventTypeMessage:
			c.Reason = types.ReasonNonText
		default:
			c.Reason = types.ReasonNonMessage
		}
		out[i] = c
	}
	return out
}
