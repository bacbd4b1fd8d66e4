package types

import "net/http"

// Channel authenticates an inbound webhook request and parses it into events.
type Channel interface {
	Name() string
	ParseRequest(r *http.Request) ([]InboundEvent, error)
}
