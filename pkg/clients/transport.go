package clients

import (
	"net"
	"net/http"
	"time"
)

// DefaultTransport returns a configured HTTP transport with connection limits.
// This prevents resource exhaustion during downstream failures by capping
// the number of concurrent connections per host.
func DefaultTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,

		// Cap concurrent connections to any single host
		MaxConnsPerHost: 32,

		// Keep some connections warm for reuse
		MaxIdleConnsPerHost: 8,
		MaxIdleConns:        32,
		IdleConnTimeout:     90 * time.Second,

		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,

		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// ObservedTransport wraps a RoundTripper and reports the outcome of every
// round trip. OnSuccess fires when a response arrived (whatever its status);
// OnError fires when the transport itself failed. The error is returned
// unchanged: this is a side channel, not a retry.
type ObservedTransport struct {
	Next      http.RoundTripper
	OnSuccess func()
	OnError   func(err error)
}

func (t *ObservedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	next := t.Next
	if next == nil {
		next = http.DefaultTransport
	}
	resp, err := next.RoundTrip(req)
	if err != nil {
		if t.OnError != nil {
			t.OnError(err)
		}
		return nil, err
	}
	if t.OnSuccess != nil {
		t.OnSuccess()
	}
	return resp, nil
}
