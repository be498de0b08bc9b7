package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/hyperifyio/revimg/internal/metrics"
)

// Orchestrator fans a query out to every worker concurrently and collects
// their records into a ResultMap.
type Orchestrator struct {
	Workers []Worker
	// Providers is the configured provider set. Providers without a worker
	// still appear in the result with an empty list. When empty, the
	// providers of Workers are used.
	Providers []string
	// Buffer sizes each worker's output channel. Zero means 32.
	Buffer int
	// Timeout, when positive, caps the whole fan-out in addition to any
	// deadline already carried by the caller's context.
	Timeout time.Duration
}

type outcome struct {
	provider  string
	items     []Item
	err       error
	cancelled bool
}

// Search runs all workers and returns once each has closed its stream or the
// deadline has passed. A provider that has not finished by the deadline
// contributes an empty list; records buffered for it are discarded. A worker
// that fails, or a search the caller cancels, keeps the records already
// delivered.
func (o *Orchestrator) Search(ctx context.Context, q Query) ResultMap {
	start := time.Now()
	defer metrics.ObserveSearch(start)

	if o.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.Timeout)
		defer cancel()
	}
	providers := o.Providers
	if len(providers) == 0 {
		for _, w := range o.Workers {
			providers = append(providers, w.Provider())
		}
	}
	result := NewResultMap(providers)

	results := make([]outcome, len(o.Workers))
	var g errgroup.Group
	for i, w := range o.Workers {
		i, w := i, w
		g.Go(func() error {
			results[i] = o.collect(ctx, w, q)
			return nil
		})
	}
	_ = g.Wait()

	for _, res := range results {
		if _, ok := result[res.provider]; !ok {
			log.Warn().Str("provider", res.provider).Msg("worker for unconfigured provider; dropping its results")
			continue
		}
		switch {
		case res.cancelled:
			metrics.WorkerOutcome.WithLabelValues(res.provider, "cancelled").Inc()
			log.Warn().Str("provider", res.provider).Dur("elapsed", time.Since(start)).Msg("provider did not finish before deadline; no results")
			continue
		case errors.Is(res.err, context.Canceled):
			metrics.WorkerOutcome.WithLabelValues(res.provider, "interrupted").Inc()
			log.Warn().Str("provider", res.provider).Int("kept", len(res.items)).Msg("search abandoned; keeping records already collected")
		case res.err != nil:
			metrics.WorkerOutcome.WithLabelValues(res.provider, "error").Inc()
			log.Warn().Err(res.err).Str("provider", res.provider).Int("kept", len(res.items)).Msg("provider worker failed")
		default:
			metrics.WorkerOutcome.WithLabelValues(res.provider, "ok").Inc()
		}
		result[res.provider] = append(result[res.provider], res.items...)
	}
	log.Debug().Int("providers", len(result)).Int("results", result.Total()).Dur("elapsed", time.Since(start)).Msg("search fan-out finished")
	return result
}

// collect drives one worker and reads its stream until it is closed or ctx
// is done.
func (o *Orchestrator) collect(ctx context.Context, w Worker, q Query) outcome {
	provider := w.Provider()
	buf := o.Buffer
	if buf <= 0 {
		buf = 32
	}
	out := make(chan []byte, buf)
	done := make(chan error, 1)
	go func() {
		defer close(out)
		done <- runWorker(ctx, w, q, out)
	}()

	res := outcome{provider: provider, items: []Item{}}
	for {
		select {
		case raw, ok := <-out:
			if !ok {
				res.err = <-done
				if res.err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && errors.Is(res.err, ctx.Err()) {
					res.cancelled = true
					res.items = nil
				}
				return res
			}
			res.accept(raw)
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				res.cancelled = true
				res.items = nil
			} else {
				// abandoned by the caller: keep what was delivered
				res.err = ctx.Err()
			drain:
				for {
					select {
					case raw, ok := <-out:
						if !ok {
							break drain
						}
						res.accept(raw)
					default:
						break drain
					}
				}
			}
			// release a worker that ignores ctx and is blocked on send
			go func() {
				for range out {
				}
			}()
			return res
		}
	}
}

func (res *outcome) accept(raw []byte) {
	item, err := DecodeRecord(res.provider, raw)
	if err != nil {
		metrics.WorkerMalformed.WithLabelValues(res.provider).Inc()
		log.Warn().Str("provider", res.provider).Str("reason", err.Error()).Msg("dropping malformed record")
		return
	}
	metrics.WorkerRecords.WithLabelValues(res.provider).Inc()
	res.items = append(res.items, item)
}

func runWorker(ctx context.Context, w Worker, q Query, out chan<- []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker panic: %v", r)
		}
	}()
	return w.Search(ctx, q, out)
}
