// Package domains resolves registrable domains and top-level labels from URLs.
package domains

import (
	"net"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// Resolver maps a URL to its registrable domain. When Suffixes is nil the
// resolver runs in fallback mode and keeps the last two dot-separated labels
// of the host, which is less accurate for multi-label suffixes like co.uk.
type Resolver struct {
	Suffixes cookiejar.PublicSuffixList
}

// New returns a Resolver backed by the embedded public suffix list.
func New() *Resolver {
	return &Resolver{Suffixes: publicsuffix.List}
}

// NewFallback returns a Resolver that never consults a suffix rule set.
func NewFallback() *Resolver {
	return &Resolver{}
}

// Fallback reports whether the resolver runs without suffix rules.
func (r *Resolver) Fallback() bool {
	return r == nil || r.Suffixes == nil
}

// Resolve returns the registrable domain and the full lower-cased host of raw.
// Both are empty when raw has no parseable host. The domain alone is empty
// when the host is itself a public suffix.
func (r *Resolver) Resolve(raw string) (string, string) {
	host := Host(raw)
	if host == "" {
		return "", ""
	}
	if net.ParseIP(host) != nil {
		return host, host
	}
	if r.Fallback() {
		return lastLabels(host, 2), host
	}
	suffix := r.Suffixes.PublicSuffix(host)
	if suffix == "" || suffix == host {
		return "", host
	}
	rest := strings.TrimSuffix(host, "."+suffix)
	if rest == host {
		// host does not end with the reported suffix
		return "", host
	}
	if i := strings.LastIndexByte(rest, '.'); i >= 0 {
		rest = rest[i+1:]
	}
	if rest == "" {
		return "", host
	}
	return rest + "." + suffix, host
}

// Host extracts the lower-cased hostname from raw. Scheme-less input such as
// "example.com/path" is treated as an http URL.
func Host(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	if strings.HasPrefix(s, "//") {
		s = "http:" + s
	} else if !strings.Contains(s, "://") {
		s = "http://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return ""
	}
	host := strings.ToLower(strings.TrimSuffix(u.Hostname(), "."))
	if host == "" || strings.ContainsAny(host, " \t") {
		return ""
	}
	return host
}

// TLDFromSuffix returns every label of domain except the first, i.e. the
// public suffix part. It is only used as a lookup key into tld blacklists.
// IP literals and single-label names have no suffix.
func TLDFromSuffix(domain string) string {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" || net.ParseIP(domain) != nil {
		return ""
	}
	i := strings.IndexByte(domain, '.')
	if i < 0 || i == len(domain)-1 {
		return ""
	}
	return domain[i+1:]
}

func lastLabels(host string, n int) string {
	labels := strings.Split(host, ".")
	if len(labels) <= n {
		return host
	}
	return strings.Join(labels[len(labels)-n:], ".")
}
