// Package verify confirms that posted links survive platform-side spam
// filtering by checking that a second account receives them.
//
// A round posts every candidate with the poster account, waits a fixed
// window, then reads the observer's inbox once. Links not seen by then are
// treated as suppressed. Delivery slower than the window therefore produces
// false negatives: a good link is reported unconfirmed and its domain joins
// the runtime blacklist. This is a known limitation of the fixed window; the
// round never re-polls.
package verify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/revimg/internal/domains"
	"github.com/hyperifyio/revimg/internal/lock"
	"github.com/hyperifyio/revimg/internal/metrics"
	"github.com/hyperifyio/revimg/internal/platform"
	"github.com/hyperifyio/revimg/internal/spam"
)

var (
	// ErrRoundInProgress is returned when another round holds the same
	// poster/observer pair.
	ErrRoundInProgress = errors.New("verification round already in progress")
	// ErrPosterSuppressed is returned when the poster's score is below the
	// configured minimum; its posts would not be delivered anyway.
	ErrPosterSuppressed = errors.New("poster account score below minimum")
)

// State is the position of one link in a round.
type State string

const (
	StatePending     State = "PENDING"
	StateConfirmed   State = "CONFIRMED"
	StateUnconfirmed State = "UNCONFIRMED"
	// StatePostFailed marks a link that never entered the round.
	StatePostFailed State = "POST_FAILED"
)

const (
	DefaultWindow     = 30 * time.Second
	DefaultInboxLimit = 100
)

// Record tracks one link through a round.
type Record struct {
	RoundID    string    `json:"round_id"`
	Link       string    `json:"link"`
	Text       string    `json:"text"`
	MessageID  string    `json:"message_id,omitempty"`
	PostedAt   time.Time `json:"posted_at"`
	State      State     `json:"state"`
	ObservedAt time.Time `json:"observed_at,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// RecordStore persists finished rounds.
type RecordStore interface {
	SaveRecords(ctx context.Context, records []Record) error
}

// Identity is one platform account taking part in a round.
type Identity struct {
	Name   string
	Client platform.Client
}

// Verifier runs verification rounds.
type Verifier struct {
	// Window is how long to wait between posting and polling. Zero means 30s.
	Window time.Duration
	// InboxLimit bounds the single inbox read. Zero means 100.
	InboxLimit int
	// MinPosterScore, when positive, aborts rounds whose poster scores
	// lower.
	MinPosterScore int
	// Cleanup deletes the posted messages after the poll.
	Cleanup bool
	// Text renders the message posted for a link. Nil posts the link as is.
	Text func(link string) string

	Locker       lock.Locker
	Runtime      *spam.RuntimeBlacklist
	RuntimeStore spam.RuntimeStore
	Records      RecordStore
	Resolver     *domains.Resolver

	Sleep func(ctx context.Context, d time.Duration) error
	Now   func() time.Time

	lockOnce sync.Once
}

// Verify posts links as poster at target and returns those the observer
// received within the window, in input order. Links that fail to post are
// left out of the round. The domains of unconfirmed links are added to the
// runtime blacklist. When ctx ends before the poll, no link is confirmed and
// nothing is blacklisted.
func (v *Verifier) Verify(ctx context.Context, links []string, poster, observer Identity, target string) ([]string, error) {
	if poster.Client == nil || observer.Client == nil {
		return nil, errors.New("verify: poster and observer clients are required")
	}
	release, err := v.locker().TryAcquire(ctx, poster.Name+"/"+observer.Name, v.window()+5*time.Minute)
	if errors.Is(err, lock.ErrHeld) {
		return nil, ErrRoundInProgress
	}
	if err != nil {
		return nil, fmt.Errorf("verify: lock: %w", err)
	}
	defer release()

	round := uuid.NewString()
	logger := log.With().Str("round", round).Str("poster", poster.Name).Str("observer", observer.Name).Logger()

	if v.MinPosterScore > 0 {
		score, err := poster.Client.Score(ctx)
		switch {
		case err != nil:
			logger.Warn().Err(err).Msg("poster score unavailable; continuing")
		case score < v.MinPosterScore:
			logger.Warn().Int("score", score).Int("min", v.MinPosterScore).Msg("poster suppressed; skipping round")
			return nil, fmt.Errorf("%w: %d < %d", ErrPosterSuppressed, score, v.MinPosterScore)
		}
	}

	records := make([]Record, 0, len(links))
	pending := map[string]int{}
	seen := map[string]struct{}{}
	for _, link := range links {
		text := v.text(link)
		if _, dup := seen[text]; dup {
			continue
		}
		seen[text] = struct{}{}
		rec := Record{RoundID: round, Link: link, Text: text, PostedAt: v.now(), State: StatePending}
		id, err := poster.Client.Post(ctx, target, text)
		if err != nil {
			rec.State = StatePostFailed
			rec.Error = err.Error()
			records = append(records, rec)
			metrics.VerifyLinks.WithLabelValues(string(StatePostFailed)).Inc()
			logger.Warn().Err(err).Str("link", link).Msg("failed to post link; excluded from round")
			if ctx.Err() != nil {
				break
			}
			continue
		}
		rec.MessageID = id
		pending[text] = len(records)
		records = append(records, rec)
	}
	defer v.cleanup(logger, poster.Client, records)

	if len(pending) == 0 {
		v.save(ctx, records)
		return nil, ctx.Err()
	}
	if err := v.sleep(ctx, v.window()); err != nil {
		v.save(ctx, records)
		return nil, err
	}

	msgs, err := observer.Client.Inbox(ctx, v.inboxLimit())
	if err != nil {
		v.save(ctx, records)
		return nil, fmt.Errorf("verify: read observer inbox: %w", err)
	}
	var read []string
	for _, m := range msgs {
		i, ok := pending[m.Body]
		if !ok {
			continue
		}
		delete(pending, m.Body)
		records[i].State = StateConfirmed
		records[i].ObservedAt = v.now()
		read = append(read, m.ID)
	}
	if err := observer.Client.MarkRead(ctx, read); err != nil {
		logger.Warn().Err(err).Int("messages", len(read)).Msg("failed to mark observed messages read")
	}

	var confirmed []string
	for i := range records {
		switch records[i].State {
		case StateConfirmed:
			confirmed = append(confirmed, records[i].Link)
			metrics.VerifyLinks.WithLabelValues(string(StateConfirmed)).Inc()
		case StatePending:
			records[i].State = StateUnconfirmed
			metrics.VerifyLinks.WithLabelValues(string(StateUnconfirmed)).Inc()
			v.blacklist(logger, records[i].Link)
		}
	}
	logger.Info().Int("posted", len(records)).Int("confirmed", len(confirmed)).Msg("verification round finished")

	v.save(ctx, records)
	if v.Runtime != nil && v.RuntimeStore != nil {
		if err := v.Runtime.Save(ctx, v.RuntimeStore); err != nil {
			logger.Warn().Err(err).Msg("failed to persist runtime blacklist")
		}
	}
	return confirmed, nil
}

func (v *Verifier) blacklist(logger zerolog.Logger, link string) {
	if v.Runtime == nil {
		return
	}
	domain, _ := v.resolver().Resolve(link)
	if domain == "" {
		return
	}
	if v.Runtime.Add(domain) {
		logger.Info().Str("domain", domain).Str("link", link).Msg("unconfirmed link; domain blacklisted")
	}
}

func (v *Verifier) cleanup(logger zerolog.Logger, c platform.Client, records []Record) {
	if !v.Cleanup {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, r := range records {
		if r.MessageID == "" {
			continue
		}
		if err := c.Delete(ctx, r.MessageID); err != nil {
			logger.Debug().Err(err).Str("message", r.MessageID).Msg("cleanup delete failed")
		}
	}
}

func (v *Verifier) save(ctx context.Context, records []Record) {
	if v.Records == nil || len(records) == 0 {
		return
	}
	// a cancelled round still gets its records written
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := v.Records.SaveRecords(sctx, records); err != nil {
		log.Warn().Err(err).Str("round", records[0].RoundID).Msg("failed to save verification records")
	}
}

func (v *Verifier) text(link string) string {
	if v.Text != nil {
		return v.Text(link)
	}
	return link
}

func (v *Verifier) window() time.Duration {
	if v.Window > 0 {
		return v.Window
	}
	return DefaultWindow
}

func (v *Verifier) inboxLimit() int {
	if v.InboxLimit > 0 {
		return v.InboxLimit
	}
	return DefaultInboxLimit
}

func (v *Verifier) locker() lock.Locker {
	v.lockOnce.Do(func() {
		if v.Locker == nil {
			v.Locker = lock.NewMemory()
		}
	})
	return v.Locker
}

func (v *Verifier) resolver() *domains.Resolver {
	if v.Resolver != nil {
		return v.Resolver
	}
	return domains.New()
}

func (v *Verifier) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}

func (v *Verifier) sleep(ctx context.Context, d time.Duration) error {
	if v.Sleep != nil {
		return v.Sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
