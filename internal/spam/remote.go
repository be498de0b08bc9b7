package spam

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/hyperifyio/revimg/internal/fetch"
)

// ErrServiceSoft marks a page the rule service answered with an error field,
// such as a temporary lock. It is retried like a transport failure.
var ErrServiceSoft = errors.New("rule service soft failure")

// Page is one paginated answer of the rule service.
type Page struct {
	Total   int               `json:"total"`
	Filters []json.RawMessage `json:"filters"`
	Error   json.RawMessage   `json:"error,omitempty"`
}

// SoftError returns the service-reported error text, or "" when the page
// carries no error. null, false, 0 and "" count as no error.
func (p Page) SoftError() string {
	raw := bytes.TrimSpace(p.Error)
	switch string(raw) {
	case "", "null", "false", "0", `""`:
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// PageFetcher retrieves one page of a rule list.
type PageFetcher interface {
	FetchPage(ctx context.Context, t ListType, start, count int) (Page, error)
}

// Service talks to the remote rule service over HTTP:
// GET <BaseURL>?method=get_filters&type=<t>&start=<n>&count=<n>.
type Service struct {
	BaseURL string
	Client  *fetch.Client
}

func (s *Service) FetchPage(ctx context.Context, t ListType, start, count int) (Page, error) {
	if s.Client == nil {
		return Page{}, errors.New("rule service: no http client")
	}
	u, err := url.Parse(s.BaseURL)
	if err != nil {
		return Page{}, fmt.Errorf("rule service url: %w", err)
	}
	q := u.Query()
	q.Set("method", "get_filters")
	q.Set("type", string(t))
	q.Set("start", strconv.Itoa(start))
	q.Set("count", strconv.Itoa(count))
	u.RawQuery = q.Encode()

	body, _, err := s.Client.Get(ctx, u.String())
	if err != nil {
		return Page{}, err
	}
	var p Page
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(&p); err != nil {
		return Page{}, fmt.Errorf("decode %s page at %d: %w", t, start, err)
	}
	if msg := p.SoftError(); msg != "" {
		return p, fmt.Errorf("%w: %s", ErrServiceSoft, msg)
	}
	if p.Total < 0 {
		return Page{}, fmt.Errorf("decode %s page at %d: negative total %d", t, start, p.Total)
	}
	return p, nil
}
