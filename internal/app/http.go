package app

import (
	"net"
	"net/http"
	"time"

	"github.com/hyperifyio/revimg/internal/fetch"
)

// newHighThroughputHTTPClient returns an HTTP client tuned for many parallel
// provider and probe requests. Timeouts are kept reasonable to avoid hangs.
func newHighThroughputHTTPClient() *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          0,
		MaxIdleConnsPerHost:   256,
		MaxConnsPerHost:       0,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   60 * time.Second,
	}
}

// newFetchClient is shared by the rule service, endpoint and selector
// workers, and link probes.
func newFetchClient(cfg Config) *fetch.Client {
	return &fetch.Client{
		HTTPClient:        newHighThroughputHTTPClient(),
		UserAgent:         cfg.UserAgent,
		MaxAttempts:       2,
		PerRequestTimeout: 15 * time.Second,
		RedirectMaxHops:   5,
		MaxConcurrent:     16,
	}
}
