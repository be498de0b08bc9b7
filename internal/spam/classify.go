package spam

import (
	"strings"

	"github.com/hyperifyio/revimg/internal/domains"
	"github.com/hyperifyio/revimg/internal/search"
)

// Reason names the rule that decided a verdict.
type Reason string

const (
	ReasonClean            Reason = ""
	ReasonShortURL         Reason = "short_url"
	ReasonNoDomain         Reason = "no_domain"
	ReasonNoTLD            Reason = "no_tld"
	ReasonWhitelisted      Reason = "whitelist"
	ReasonHardBlacklist    Reason = "hard_blacklist"
	ReasonRuntimeBlacklist Reason = "runtime_blacklist"
	ReasonTLDBlacklist     Reason = "tld_blacklist"
	ReasonLinkFilter       Reason = "link_filter"
	ReasonThumbFilter      Reason = "thumb_filter"
	ReasonTextFilter       Reason = "text_filter"
)

// minURLLen is the shortest string that can still be an absolute URL.
const minURLLen = 6

// Classifier decides whether a result is spam. It holds no state besides the
// resolver, so one Classifier can be shared by concurrent callers.
type Classifier struct {
	Resolver *domains.Resolver
}

// Spam reports the verdict for item under lists.
func (c *Classifier) Spam(item search.Item, lists *Lists) bool {
	spam, _ := c.Classify(item, lists)
	return spam
}

// Classify returns the verdict for item and the rule that produced it. The
// first matching rule wins. Results that cannot be resolved to a domain and
// top-level label are spam.
func (c *Classifier) Classify(item search.Item, lists *Lists) (bool, Reason) {
	u := strings.ToLower(strings.TrimSpace(item.URL))
	if len(u) < minURLLen {
		return true, ReasonShortURL
	}
	domain, _ := c.resolver().Resolve(u)
	if domain == "" {
		return true, ReasonNoDomain
	}
	tld := NormalizeTLD(domains.TLDFromSuffix(domain))
	if tld == "" {
		return true, ReasonNoTLD
	}
	if lists == nil {
		lists = &Lists{}
	}
	if lists.Whitelist.Has(domain) {
		return false, ReasonWhitelisted
	}
	if lists.Hard.Has(domain) {
		return true, ReasonHardBlacklist
	}
	if lists.Runtime.Contains(domain) {
		return true, ReasonRuntimeBlacklist
	}
	if _, ok := lists.TLD[tld]; ok {
		return true, ReasonTLDBlacklist
	}
	if lists.Link.Has(u) {
		return true, ReasonLinkFilter
	}
	if item.ImageURL != "" && lists.Thumb.Has(item.ImageURL) {
		return true, ReasonThumbFilter
	}
	if lists.Text.Has(item.Title) || lists.Text.Has(item.Description) {
		return true, ReasonTextFilter
	}
	return false, ReasonClean
}

func (c *Classifier) resolver() *domains.Resolver {
	if c == nil || c.Resolver == nil {
		return domains.New()
	}
	return c.Resolver
}
