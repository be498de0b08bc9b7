package spam

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/revimg/internal/cache"
	"github.com/hyperifyio/revimg/internal/metrics"
)

var (
	// ErrNoSpamData means a list type has neither a usable cache nor a
	// successful remote fetch. The process cannot run without it.
	ErrNoSpamData = errors.New("no spam list data available")
	// ErrNoCache reports a missing or corrupt cache entry.
	ErrNoCache = errors.New("no cached spam list")
)

const (
	DefaultPageSize    = 100
	DefaultMaxAttempts = 3
	DefaultBackoff     = time.Second
	DefaultMaxAge      = 24 * time.Hour
	maxPages           = 10000
)

// Store keeps the remote rule lists in sync with the local cache and
// publishes immutable Lists snapshots.
type Store struct {
	Remote PageFetcher
	Cache  *cache.ListCache
	// Static supplies the hard blacklist and whitelist.
	Static  StaticLists
	Runtime *RuntimeBlacklist
	// Types defaults to RemoteTypes.
	Types []ListType

	PageSize    int
	MaxAttempts int
	// Backoff is multiplied by the attempt number between page retries.
	Backoff time.Duration
	// MaxAge is the cache staleness threshold.
	MaxAge time.Duration

	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error

	mu      sync.RWMutex
	current *Lists
}

// Refresh fetches every page of t and replaces the cache with the merged
// filters. When any page keeps failing the fetch is abandoned, the cache is
// left untouched and the cached set is returned instead. ErrNoSpamData is
// returned when there is nothing cached to fall back to.
func (s *Store) Refresh(ctx context.Context, t ListType) (Set, error) {
	filters, err := s.fetchAll(ctx, t)
	if err == nil {
		set, perr := ParseFilters(t, filters)
		if perr == nil {
			if serr := s.save(ctx, t, filters); serr != nil {
				log.Warn().Err(serr).Str("type", string(t)).Msg("spam list fetched but cache write failed")
			}
			metrics.SpamRefresh.WithLabelValues(string(t), "ok").Inc()
			log.Info().Str("type", string(t)).Int("entries", set.Len()).Msg("spam list refreshed")
			return set, nil
		}
		err = perr
	}
	metrics.SpamRefresh.WithLabelValues(string(t), "fallback").Inc()
	log.Warn().Err(err).Str("type", string(t)).Msg("spam list refresh failed; using cache")
	set, lerr := s.Load(ctx, t)
	if lerr != nil {
		metrics.SpamRefresh.WithLabelValues(string(t), "fatal").Inc()
		return nil, fmt.Errorf("%w: %s list: refresh: %v; cache: %v", ErrNoSpamData, t, err, lerr)
	}
	return set, nil
}

// Load returns the cached set for t without network access. A corrupt entry
// is deleted and reported as ErrNoCache.
func (s *Store) Load(ctx context.Context, t ListType) (Set, error) {
	if s.Cache == nil {
		return nil, ErrNoCache
	}
	var filters []json.RawMessage
	if _, err := s.Cache.Decode(ctx, string(t), &filters); err != nil {
		if errors.Is(err, cache.ErrCorrupt) {
			log.Warn().Err(err).Str("type", string(t)).Msg("spam list cache corrupt; removed")
			return nil, fmt.Errorf("%w: %v", ErrNoCache, err)
		}
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoCache
		}
		return nil, err
	}
	set, err := ParseFilters(t, filters)
	if err != nil {
		_ = s.Cache.Invalidate(string(t))
		log.Warn().Err(err).Str("type", string(t)).Msg("spam list cache corrupt; removed")
		return nil, fmt.Errorf("%w: %v", ErrNoCache, err)
	}
	return set, nil
}

// Ensure returns the set for t, refreshing only when the cache is missing or
// older than MaxAge.
func (s *Store) Ensure(ctx context.Context, t ListType) (Set, error) {
	if s.Cache != nil {
		if age, ok := s.Cache.Age(string(t), s.now()); ok && age <= s.maxAge() {
			set, err := s.Load(ctx, t)
			if err == nil {
				return set, nil
			}
			if !errors.Is(err, ErrNoCache) {
				log.Warn().Err(err).Str("type", string(t)).Msg("spam list cache unreadable")
			}
		}
	}
	return s.Refresh(ctx, t)
}

// Tick brings every list up to date and publishes a new snapshot. A list
// type that has no data at all keeps its entries from the previous snapshot;
// without one, Tick fails with ErrNoSpamData and publishes nothing.
func (s *Store) Tick(ctx context.Context) error {
	prev := s.Current()
	next := &Lists{
		Hard:      s.Static.Hard,
		Whitelist: s.Static.Whitelist,
		Runtime:   s.Runtime,
	}
	for _, t := range s.types() {
		if err := ctx.Err(); err != nil {
			return err
		}
		set, err := s.Ensure(ctx, t)
		if err != nil {
			if prev != nil && errors.Is(err, ErrNoSpamData) {
				log.Error().Err(err).Str("type", string(t)).Msg("keeping previous spam list")
				next.set(t, prev.Get(t))
				continue
			}
			return err
		}
		next.set(t, set)
	}
	s.mu.Lock()
	s.current = next
	s.mu.Unlock()
	return nil
}

// Open loads the runtime blacklist from rs, when given, and publishes the
// first snapshot. It is the startup check: ErrNoSpamData is fatal.
func (s *Store) Open(ctx context.Context, rs RuntimeStore) error {
	if s.Runtime == nil {
		s.Runtime = NewRuntimeBlacklist()
	}
	if rs != nil {
		if err := s.Runtime.Load(ctx, rs); err != nil {
			log.Warn().Err(err).Msg("runtime blacklist not loaded")
		}
	}
	return s.Tick(ctx)
}

// Run calls Tick every interval until ctx is done.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := s.Tick(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("spam list tick failed")
			}
		}
	}
}

// Current returns the latest published snapshot, or nil before the first
// successful Tick.
func (s *Store) Current() *Lists {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

func (s *Store) fetchAll(ctx context.Context, t ListType) ([]json.RawMessage, error) {
	if s.Remote == nil {
		return nil, errors.New("no rule service configured")
	}
	count := s.PageSize
	if count <= 0 {
		count = DefaultPageSize
	}
	var all []json.RawMessage
	for start, pages := 0, 0; pages < maxPages; pages++ {
		page, err := s.fetchPage(ctx, t, start, count)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Filters...)
		start += count
		if start > page.Total {
			if all == nil {
				all = []json.RawMessage{}
			}
			return all, nil
		}
	}
	return nil, fmt.Errorf("%s list: more than %d pages", t, maxPages)
}

func (s *Store) fetchPage(ctx context.Context, t ListType, start, count int) (Page, error) {
	attempts := s.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	backoff := s.Backoff
	if backoff <= 0 {
		backoff = DefaultBackoff
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		page, err := s.Remote.FetchPage(ctx, t, start, count)
		if err == nil {
			return page, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		if attempt < attempts {
			log.Debug().Err(err).Str("type", string(t)).Int("start", start).Int("attempt", attempt).Msg("spam list page failed; retrying")
			if err := s.sleep(ctx, time.Duration(attempt)*backoff); err != nil {
				return Page{}, err
			}
		}
	}
	return Page{}, fmt.Errorf("%s page at %d failed after %d attempts: %w", t, start, attempts, lastErr)
}

func (s *Store) save(ctx context.Context, t ListType, filters []json.RawMessage) error {
	if s.Cache == nil {
		return nil
	}
	b, err := json.Marshal(filters)
	if err != nil {
		return err
	}
	return s.Cache.Save(ctx, string(t), b)
}

func (s *Store) types() []ListType {
	if len(s.Types) > 0 {
		return s.Types
	}
	return RemoteTypes
}

func (s *Store) maxAge() time.Duration {
	if s.MaxAge > 0 {
		return s.MaxAge
	}
	return DefaultMaxAge
}

func (s *Store) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Store) sleep(ctx context.Context, d time.Duration) error {
	if s.Sleep != nil {
		return s.Sleep(ctx, d)
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
