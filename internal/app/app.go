package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/revimg/internal/aggregate"
	"github.com/hyperifyio/revimg/internal/cache"
	"github.com/hyperifyio/revimg/internal/domains"
	"github.com/hyperifyio/revimg/internal/fetch"
	"github.com/hyperifyio/revimg/internal/lock"
	"github.com/hyperifyio/revimg/internal/metrics"
	"github.com/hyperifyio/revimg/internal/platform"
	"github.com/hyperifyio/revimg/internal/search"
	"github.com/hyperifyio/revimg/internal/spam"
	"github.com/hyperifyio/revimg/internal/store"
	"github.com/hyperifyio/revimg/internal/verify"
)

type App struct {
	cfg Config

	resolver     *domains.Resolver
	client       *fetch.Client
	lists        *spam.Store
	orchestrator *search.Orchestrator
	aggregator   *aggregate.Aggregator
	store        store.Store
	registry     *prometheus.Registry

	verifier *verify.Verifier
	poster   verify.Identity
	observer verify.Identity
	redis    *lock.Redis
}

// New wires every component from cfg and loads the spam lists. It returns an
// error wrapping spam.ErrNoSpamData when no list data is available at all.
func New(ctx context.Context, cfg Config) (*App, error) {
	if err := ValidateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	a := &App{cfg: cfg, registry: prometheus.NewRegistry()}
	metrics.MustRegister(a.registry)

	resolver, err := newResolver(cfg)
	if err != nil {
		return nil, err
	}
	a.resolver = resolver

	a.client = newFetchClient(cfg)

	workers, err := buildWorkers(cfg, a.client)
	if err != nil {
		return nil, err
	}
	a.orchestrator = &search.Orchestrator{
		Workers:   workers,
		Providers: cfg.Providers,
		Timeout:   cfg.SearchTimeout,
	}
	a.aggregator = &aggregate.Aggregator{
		Classifier: &spam.Classifier{Resolver: resolver},
		Prober:     a.client,
		Options: aggregate.Options{
			MaxPerProvider: cfg.MaxPerProvider,
			PerDomain:      cfg.PerDomainCap,
			MinTextChars:   cfg.MinTextChars,
			CheckLinks:     cfg.CheckLinks,
			DropBroken:     cfg.DropBroken,
		},
	}

	st, err := store.Open(cfg.StorePath)
	if err != nil {
		return nil, err
	}
	a.store = st

	if err := a.openLists(ctx); err != nil {
		a.Close()
		return nil, err
	}

	if cfg.VerifyEnabled {
		if err := a.openVerifier(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}
	return a, nil
}

func newResolver(cfg Config) (*domains.Resolver, error) {
	switch {
	case cfg.FallbackResolver:
		log.Warn().Msg("domain resolver in fallback mode; multi-label suffixes resolve inaccurately")
		return domains.NewFallback(), nil
	case cfg.PublicSuffixFile != "":
		rs, err := domains.LoadRuleSet(cfg.PublicSuffixFile)
		if err != nil {
			return nil, err
		}
		log.Info().Str("file", cfg.PublicSuffixFile).Int("rules", rs.Len()).Msg("loaded public suffix rules")
		return &domains.Resolver{Suffixes: rs}, nil
	default:
		return domains.New(), nil
	}
}

func (a *App) openLists(ctx context.Context) error {
	dir := filepath.Join(a.cfg.CacheDir, "lists")
	if a.cfg.CacheClear {
		if err := cache.ClearDir(dir); err != nil {
			log.Warn().Err(err).Str("dir", dir).Msg("cache clear failed")
		}
	}
	// Leftovers from interrupted saves only; stale lists remain the fallback.
	_, _ = cache.PurgeOlderThan(dir, 0, time.Now())

	static, err := spam.LoadStatic(a.cfg.ListsPath, a.cfg.HardBlacklist, a.cfg.Whitelist)
	if err != nil {
		return err
	}
	a.lists = &spam.Store{
		Cache:  &cache.ListCache{Dir: dir, StrictPerms: a.cfg.CacheStrictPerms},
		Static: static,
		MaxAge: a.cfg.CacheMaxAge,
	}
	if a.cfg.RuleServiceURL != "" {
		a.lists.Remote = &spam.Service{BaseURL: a.cfg.RuleServiceURL, Client: a.client}
	} else {
		log.Warn().Msg("no rule service configured; spam lists come from cache only")
	}
	return a.lists.Open(ctx, a.store)
}

func (a *App) openVerifier(ctx context.Context) error {
	posterAcct, err := platform.LoadAccount("POSTER")
	if err != nil {
		return err
	}
	observerAcct, err := platform.LoadAccount("OBSERVER")
	if err != nil {
		return err
	}
	if !posterAcct.Configured() || !observerAcct.Configured() {
		return errors.New("verification needs POSTER_TOKEN and OBSERVER_TOKEN")
	}
	a.poster = verify.Identity{Name: posterAcct.Name, Client: platform.NewReddit(posterAcct)}
	a.observer = verify.Identity{Name: observerAcct.Name, Client: platform.NewReddit(observerAcct)}

	var locker lock.Locker = lock.NewMemory()
	if a.cfg.RedisAddr != "" {
		r, err := lock.NewRedis(ctx, a.cfg.RedisAddr, "", 0)
		if err != nil {
			return err
		}
		a.redis = r
		locker = r
	}
	a.verifier = &verify.Verifier{
		Window:         a.cfg.VerifyWindow,
		InboxLimit:     a.cfg.VerifyInboxLimit,
		MinPosterScore: a.cfg.MinPosterScore,
		Cleanup:        a.cfg.VerifyCleanup,
		Locker:         locker,
		Runtime:        a.lists.Runtime,
		RuntimeStore:   a.store,
		Records:        a.store,
		Resolver:       a.resolver,
	}
	return nil
}

// Close persists the runtime blacklist and releases resources.
func (a *App) Close() {
	if a.lists != nil && a.lists.Runtime != nil && a.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.lists.Runtime.Save(ctx, a.store); err != nil {
			log.Warn().Err(err).Msg("runtime blacklist not saved")
		}
		cancel()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			log.Warn().Err(err).Msg("store close failed")
		}
	}
}

// Search runs the provider fan-out for imageURL, filters the results and,
// when verification is enabled, keeps only links the observer received.
// Verification failures leave the unverified results in place.
func (a *App) Search(ctx context.Context, imageURL string) (search.ResultMap, error) {
	lists := a.lists.Current()
	if lists == nil {
		return nil, spam.ErrNoSpamData
	}
	raw := a.orchestrator.Search(ctx, search.Query{ImageURL: imageURL, Limit: a.cfg.ResultLimit})
	out := a.aggregator.Aggregate(ctx, raw, lists)
	if a.verifier == nil || out.Total() == 0 {
		return out, nil
	}
	return a.verify(ctx, out), nil
}

func (a *App) verify(ctx context.Context, m search.ResultMap) search.ResultMap {
	var links []string
	for _, p := range m.Providers() {
		for _, it := range m[p] {
			if !it.Spam {
				links = append(links, it.URL)
			}
		}
	}
	confirmed, err := a.verifier.Verify(ctx, links, a.poster, a.observer, a.cfg.VerifyTarget)
	if err != nil {
		log.Warn().Err(err).Int("links", len(links)).Msg("verification skipped; returning unverified results")
		return m
	}
	ok := make(map[string]bool, len(confirmed))
	for _, l := range confirmed {
		ok[l] = true
	}
	out := search.NewResultMap(m.Providers())
	for _, p := range m.Providers() {
		for _, it := range m[p] {
			if ok[it.URL] {
				out[p] = append(out[p], it)
			}
		}
	}
	return out
}

// Lists returns the spam list store.
func (a *App) Lists() *spam.Store { return a.lists }

// Store returns the persistence backend.
func (a *App) Store() store.Store { return a.store }

// Registry returns the registry holding the pipeline metrics.
func (a *App) Registry() *prometheus.Registry { return a.registry }

// Config returns the validated configuration.
func (a *App) Config() Config { return a.cfg }
