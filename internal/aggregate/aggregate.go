// Package aggregate turns raw per-provider search results into the final
// result map: sanitized, deduplicated, spam-filtered and truncated.
package aggregate

import (
	"context"
	"math"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/hyperifyio/revimg/internal/domains"
	"github.com/hyperifyio/revimg/internal/metrics"
	"github.com/hyperifyio/revimg/internal/search"
	selecter "github.com/hyperifyio/revimg/internal/select"
	"github.com/hyperifyio/revimg/internal/spam"
)

// Prober reports the HTTP status of a URL.
type Prober interface {
	Probe(ctx context.Context, rawURL string) (int, error)
}

// Options configures the aggregation stages.
type Options struct {
	// MaxPerProvider caps each provider's list. Zero means 5.
	MaxPerProvider int
	// PerDomain caps results per registrable domain within a provider.
	PerDomain int
	// MinTextChars drops results with almost no title or description.
	MinTextChars int
	// CheckLinks probes each kept result and sets Broken.
	CheckLinks bool
	// DropBroken removes results whose probe failed. Implies CheckLinks.
	DropBroken bool
	// ProbeConcurrency bounds parallel probes. Zero means 4.
	ProbeConcurrency int
	// ProbeTimeout bounds a single probe. Zero means 10s.
	ProbeTimeout time.Duration
	// KeepSpam keeps spam results flagged instead of removing them.
	KeepSpam bool
}

// Aggregator applies sanitization, classification and selection to a
// ResultMap.
type Aggregator struct {
	Classifier *spam.Classifier
	Prober     Prober
	Options    Options
}

// Aggregate returns a new map with the same provider keys as in. Items are
// sanitized, deduplicated per provider by normalized URL (first emission
// wins), classified against lists and truncated. Within a provider the
// emission order is preserved.
func (a *Aggregator) Aggregate(ctx context.Context, in search.ResultMap, lists *spam.Lists) search.ResultMap {
	out := search.NewResultMap(in.Providers())
	for _, provider := range in.Providers() {
		out[provider] = a.filter(provider, in[provider], lists)
	}

	opt := a.Options
	check := (opt.CheckLinks || opt.DropBroken) && a.Prober != nil
	selOpt := selecter.Options{
		MaxTotal:     a.maxPerProvider(),
		PerDomain:    opt.PerDomain,
		MinTextChars: opt.MinTextChars,
		Resolver:     a.resolver(),
	}
	if check && opt.DropBroken {
		// broken links must be known before truncation so that survivors
		// can take their place
		wide := selOpt
		wide.MaxTotal, wide.PerDomain = math.MaxInt32, 0
		for p, items := range out {
			out[p] = selecter.Select(items, wide)
		}
		a.probe(ctx, out)
		for p, items := range out {
			kept := items[:0]
			for _, it := range items {
				if !it.Broken {
					kept = append(kept, it)
				}
			}
			out[p] = selecter.Select(kept, selOpt)
		}
		return out
	}
	for p, items := range out {
		out[p] = selecter.Select(items, selOpt)
	}
	if check {
		a.probe(ctx, out)
	}
	return out
}

func (a *Aggregator) filter(provider string, items []search.Item, lists *spam.Lists) []search.Item {
	seen := make(map[string]struct{}, len(items))
	kept := make([]search.Item, 0, len(items))
	for _, it := range items {
		it.Provider = provider
		if !sanitize(&it) {
			log.Debug().Str("provider", provider).Msg("dropping result without http(s) url")
			continue
		}
		if _, dup := seen[it.URL]; dup {
			continue
		}
		seen[it.URL] = struct{}{}
		var reason spam.Reason
		it.Spam, reason = a.Classifier.Classify(it, lists)
		if it.Spam {
			metrics.SpamVerdicts.WithLabelValues("spam").Inc()
			log.Debug().Str("provider", provider).Str("url", it.URL).Str("reason", string(reason)).Msg("spam result")
			if !a.Options.KeepSpam {
				continue
			}
		} else {
			metrics.SpamVerdicts.WithLabelValues("clean").Inc()
		}
		kept = append(kept, it)
	}
	return kept
}

// probe sets Broken on every item whose URL answers with a status >= 400 or
// cannot be reached.
func (a *Aggregator) probe(ctx context.Context, m search.ResultMap) {
	limit := a.Options.ProbeConcurrency
	if limit <= 0 {
		limit = 4
	}
	timeout := a.Options.ProbeTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	var g errgroup.Group
	g.SetLimit(limit)
	for _, provider := range m.Providers() {
		items := m[provider]
		for i := range items {
			it := &items[i]
			g.Go(func() error {
				pctx, cancel := context.WithTimeout(ctx, timeout)
				defer cancel()
				status, err := a.Prober.Probe(pctx, it.URL)
				if err != nil || status >= http.StatusBadRequest {
					it.Broken = true
					log.Debug().Err(err).Int("status", status).Str("url", it.URL).Msg("broken link")
				}
				return nil
			})
		}
	}
	_ = g.Wait()
}

func (a *Aggregator) maxPerProvider() int {
	if a.Options.MaxPerProvider > 0 {
		return a.Options.MaxPerProvider
	}
	return 5
}

func (a *Aggregator) resolver() *domains.Resolver {
	if a.Classifier != nil && a.Classifier.Resolver != nil {
		return a.Classifier.Resolver
	}
	return nil
}
