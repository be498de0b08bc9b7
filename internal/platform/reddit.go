package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/hyperifyio/revimg/internal/metrics"
)

// RateLimit is the platform's view of the request budget as reported by the
// X-Ratelimit-* headers of the latest response.
type RateLimit struct {
	Remaining float64
	Used      int
	Reset     time.Duration
	Updated   time.Time
}

// Reddit implements Client over the Reddit OAuth HTTP API. Token is a bearer
// token obtained elsewhere.
type Reddit struct {
	BaseURL    string
	Token      string
	UserAgent  string
	Account    string
	HTTPClient *http.Client
	// Limiter throttles outgoing requests. Nil disables client-side limits.
	Limiter *rate.Limiter

	mu   sync.Mutex
	last RateLimit
}

// NewReddit builds an adapter from account settings.
func NewReddit(a Account) *Reddit {
	r := &Reddit{
		BaseURL:    a.BaseURL,
		Token:      a.Token,
		UserAgent:  a.UserAgent,
		Account:    a.Name,
		HTTPClient: &http.Client{Timeout: a.Timeout},
	}
	if a.RatePerMinute > 0 {
		burst := int(math.Max(1, math.Ceil(a.RatePerMinute/10)))
		r.Limiter = rate.NewLimiter(rate.Limit(a.RatePerMinute/60), burst)
	}
	return r
}

// RateLimit returns the most recently observed server-side budget.
func (r *Reddit) RateLimit() RateLimit {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

type thingData struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Author     string  `json:"author"`
	Body       string  `json:"body"`
	CreatedUTC float64 `json:"created_utc"`
}

type commentResponse struct {
	JSON struct {
		Errors [][]any `json:"errors"`
		Data   struct {
			Things []struct {
				Data thingData `json:"data"`
			} `json:"things"`
		} `json:"data"`
	} `json:"json"`
}

type listingResponse struct {
	Data struct {
		Children []struct {
			Kind string    `json:"kind"`
			Data thingData `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type meResponse struct {
	CommentKarma int `json:"comment_karma"`
	LinkKarma    int `json:"link_karma"`
}

func (r *Reddit) Post(ctx context.Context, target, text string) (string, error) {
	form := url.Values{"api_type": {"json"}, "thing_id": {target}, "text": {text}}
	var resp commentResponse
	if err := r.do(ctx, http.MethodPost, "/api/comment", form, &resp); err != nil {
		return "", err
	}
	if len(resp.JSON.Errors) > 0 {
		return "", fmt.Errorf("post comment: %v", resp.JSON.Errors[0])
	}
	if len(resp.JSON.Data.Things) == 0 {
		return "", fmt.Errorf("post comment: empty response")
	}
	d := resp.JSON.Data.Things[0].Data
	if d.Name != "" {
		return d.Name, nil
	}
	return d.ID, nil
}

func (r *Reddit) Inbox(ctx context.Context, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 25
	}
	q := url.Values{"limit": {strconv.Itoa(limit)}, "raw_json": {"1"}}
	var resp listingResponse
	if err := r.do(ctx, http.MethodGet, "/message/unread?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	out := make([]Message, 0, len(resp.Data.Children))
	for _, c := range resp.Data.Children {
		d := c.Data
		sec, frac := math.Modf(d.CreatedUTC)
		out = append(out, Message{
			ID:      d.Name,
			Author:  d.Author,
			Body:    d.Body,
			Created: time.Unix(int64(sec), int64(frac*1e9)).UTC(),
		})
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *Reddit) MarkRead(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return r.do(ctx, http.MethodPost, "/api/read_message", url.Values{"id": {strings.Join(ids, ",")}}, nil)
}

func (r *Reddit) Score(ctx context.Context) (int, error) {
	var resp meResponse
	if err := r.do(ctx, http.MethodGet, "/api/v1/me", nil, &resp); err != nil {
		return 0, err
	}
	return resp.CommentKarma, nil
}

func (r *Reddit) Delete(ctx context.Context, id string) error {
	return r.do(ctx, http.MethodPost, "/api/del", url.Values{"id": {id}}, nil)
}

func (r *Reddit) do(ctx context.Context, method, path string, form url.Values, out any) error {
	if r.Limiter != nil {
		if err := r.Limiter.Wait(ctx); err != nil {
			return err
		}
	}
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(r.BaseURL, "/")+path, body)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if r.Token != "" {
		req.Header.Set("Authorization", "Bearer "+r.Token)
	}
	if r.UserAgent != "" {
		req.Header.Set("User-Agent", r.UserAgent)
	}
	hc := r.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	r.capture(resp.Header)

	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %s %s", ErrRateLimited, method, path)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (r *Reddit) capture(h http.Header) {
	rem := h.Get("X-Ratelimit-Remaining")
	if rem == "" {
		return
	}
	var rl RateLimit
	rl.Updated = time.Now()
	if v, err := strconv.ParseFloat(rem, 64); err == nil {
		rl.Remaining = v
	}
	if v, err := strconv.ParseFloat(h.Get("X-Ratelimit-Used"), 64); err == nil {
		rl.Used = int(v)
	}
	if v, err := strconv.ParseFloat(h.Get("X-Ratelimit-Reset"), 64); err == nil {
		rl.Reset = time.Duration(v * float64(time.Second))
	}
	r.mu.Lock()
	r.last = rl
	r.mu.Unlock()
	metrics.PlatformRateRemaining.WithLabelValues(r.Account).Set(rl.Remaining)
	if rl.Remaining < 1 {
		log.Warn().Str("account", r.Account).Dur("reset", rl.Reset).Msg("platform rate limit exhausted")
	}
}
