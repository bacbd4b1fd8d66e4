// Package transport builds the pooled HTTP client shared by the outbound
// completion and reply calls.
package transport

import (
	"net"
	"net/http"
	"time"
)

// NewHTTPClient returns a client whose connection pool holds at most
// maxConns connections per host. Per-call deadlines come from the request
// context, so the client itself carries only a safety timeout.
func NewHTTPClient(maxConns int, timeout time.Duration) *http.Client {
	if maxConns <= 0 {
		maxConns = 4
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	t := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        maxConns * 2,
		MaxIdleConnsPerHost: maxConns,
		MaxConnsPerHost:     maxConns,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: t,
	}
}
