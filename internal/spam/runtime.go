package spam

import (
	"context"
	"sort"
	"sync"
)

// RuntimeStore persists the runtime blacklist between process lifetimes.
type RuntimeStore interface {
	LoadRuntime(ctx context.Context) ([]string, error)
	SaveRuntime(ctx context.Context, domains []string) error
}

// RuntimeBlacklist accumulates domains found spammy while the process runs.
// It is append-only and safe for concurrent use.
type RuntimeBlacklist struct {
	mu      sync.RWMutex
	domains map[string]struct{}
	version uint64
	saved   uint64
}

func NewRuntimeBlacklist(domains ...string) *RuntimeBlacklist {
	r := &RuntimeBlacklist{domains: make(map[string]struct{}, len(domains))}
	for _, d := range domains {
		if d = NormalizeDomain(d); d != "" {
			r.domains[d] = struct{}{}
		}
	}
	return r
}

// Add records domain and reports whether it was new.
func (r *RuntimeBlacklist) Add(domain string) bool {
	domain = NormalizeDomain(domain)
	if domain == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.domains == nil {
		r.domains = make(map[string]struct{})
	}
	if _, ok := r.domains[domain]; ok {
		return false
	}
	r.domains[domain] = struct{}{}
	r.version++
	return true
}

func (r *RuntimeBlacklist) Contains(domain string) bool {
	if r == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.domains[NormalizeDomain(domain)]
	return ok
}

func (r *RuntimeBlacklist) Len() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.domains)
}

// Snapshot returns the domains in sorted order.
func (r *RuntimeBlacklist) Snapshot() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.domains))
	for d := range r.domains {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// Load merges previously persisted domains into r.
func (r *RuntimeBlacklist) Load(ctx context.Context, st RuntimeStore) error {
	domains, err := st.LoadRuntime(ctx)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.domains == nil {
		r.domains = make(map[string]struct{}, len(domains))
	}
	for _, d := range domains {
		if d = NormalizeDomain(d); d != "" {
			r.domains[d] = struct{}{}
		}
	}
	return nil
}

// Save persists r when it changed since the last successful Save.
func (r *RuntimeBlacklist) Save(ctx context.Context, st RuntimeStore) error {
	r.mu.RLock()
	version, saved := r.version, r.saved
	r.mu.RUnlock()
	if version == saved {
		return nil
	}
	if err := st.SaveRuntime(ctx, r.Snapshot()); err != nil {
		return err
	}
	r.mu.Lock()
	if version > r.saved {
		r.saved = version
	}
	r.mu.Unlock()
	return nil
}
