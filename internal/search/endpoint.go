package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/revimg/internal/fetch"
)

// EndpointWorker queries a JSON search proxy that answers
// {"results": [record, ...]}. Proxies that have not finished crawling return
// an empty list, so the worker polls with exponential backoff and gives up
// after MaxPolls attempts.
type EndpointWorker struct {
	Name    string
	BaseURL string
	Client  *fetch.Client
	// MaxPolls bounds how many times an empty answer is retried. Zero means 5.
	MaxPolls int
	// Backoff is the first delay between polls, doubled each time. Zero means 500ms.
	Backoff time.Duration
	// MaxBackoff caps a single delay. Zero means 8s.
	MaxBackoff time.Duration
}

func (e *EndpointWorker) Provider() string { return e.Name }

type endpointResponse struct {
	Results []json.RawMessage `json:"results"`
}

func (e *EndpointWorker) Search(ctx context.Context, q Query, out chan<- []byte) error {
	if e.BaseURL == "" || e.Client == nil {
		return fmt.Errorf("endpoint worker %s: missing base url or client", e.Name)
	}
	u, err := url.Parse(e.BaseURL)
	if err != nil {
		return err
	}
	v := u.Query()
	v.Set("image_url", q.ImageURL)
	if q.Limit > 0 {
		v.Set("limit", fmt.Sprintf("%d", q.Limit))
	}
	u.RawQuery = v.Encode()

	polls := e.MaxPolls
	if polls <= 0 {
		polls = 5
	}
	delay := e.Backoff
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	maxDelay := e.MaxBackoff
	if maxDelay <= 0 {
		maxDelay = 8 * time.Second
	}

	var results []json.RawMessage
	for attempt := 1; ; attempt++ {
		body, _, err := e.Client.Get(ctx, u.String())
		if err != nil {
			return err
		}
		var resp endpointResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return fmt.Errorf("decode endpoint response: %w", err)
		}
		if len(resp.Results) > 0 {
			results = resp.Results
			break
		}
		if attempt >= polls {
			log.Debug().Str("provider", e.Name).Int("polls", attempt).Msg("endpoint returned no results")
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}

	for _, raw := range results {
		select {
		case out <- withProvider(raw, e.Name):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// withProvider stamps the provider id onto an object record that lacks one.
// Anything that is not an object is passed through for the orchestrator to
// reject.
func withProvider(raw json.RawMessage, provider string) []byte {
	trimmed := strings.TrimSpace(string(raw))
	if !strings.HasPrefix(trimmed, "{") {
		return raw
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return raw
	}
	if _, ok := obj["provider"]; ok {
		return raw
	}
	p, _ := json.Marshal(provider)
	obj["provider"] = p
	b, err := json.Marshal(obj)
	if err != nil {
		return raw
	}
	return b
}
