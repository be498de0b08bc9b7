package selecter

import (
    "net/url"
    "strings"

    "github.com/hyperifyio/revimg/internal/domains"
    "github.com/hyperifyio/revimg/internal/search"
)

// Options configures selection constraints for one provider's list.
type Options struct {
    // MaxTotal caps the list length. Zero means 5.
    MaxTotal int
    // PerDomain caps results sharing a registrable domain. Zero disables
    // the cap.
    PerDomain int
    // MinTextChars drops results whose title and description together have
    // fewer than this many non-whitespace characters. Zero disables
    // low-signal filtering.
    MinTextChars int
    // Resolver groups hosts for PerDomain. Nil groups by full host.
    Resolver *domains.Resolver
}

// Select keeps results in their original order, skipping repeats of the same
// canonical URL and results over the per-domain cap, until MaxTotal is
// reached.
func Select(results []search.Item, opt Options) []search.Item {
	if opt.MaxTotal <= 0 {
		opt.MaxTotal = 5
	}
	domainCounts := map[string]int{}
	seenURL := map[string]struct{}{}

    out := make([]search.Item, 0, min(opt.MaxTotal, len(results)))
	for _, r := range results {
        if opt.MinTextChars > 0 && textChars(r.Title+r.Description) < opt.MinTextChars {
            continue
        }
		u, err := url.Parse(strings.TrimSpace(r.URL))
		if err != nil || u.Host == "" {
			continue
		}
		canon := canonicalizeURL(u)
		if _, ok := seenURL[canon]; ok {
			continue
		}
		key := groupKey(u, opt.Resolver)
		if opt.PerDomain > 0 && domainCounts[key] >= opt.PerDomain {
			continue
		}
		seenURL[canon] = struct{}{}
		domainCounts[key]++
		out = append(out, r)
		if len(out) >= opt.MaxTotal {
			break
		}
	}
	return out
}

func groupKey(u *url.URL, r *domains.Resolver) string {
    host := strings.ToLower(u.Hostname())
    if r == nil {
        return host
    }
    if d, _ := r.Resolve(u.String()); d != "" {
        return d
    }
    return host
}

func textChars(s string) int {
    n := 0
    for _, f := range strings.Fields(s) {
        n += len([]rune(f))
    }
    return n
}

func canonicalizeURL(u *url.URL) string {
	// drop fragments and default ports; lower-case host
	u2 := *u
	u2.Fragment = ""
	u2.Host = strings.ToLower(u2.Host)
	if (u2.Scheme == "http" && strings.HasSuffix(u2.Host, ":80")) || (u2.Scheme == "https" && strings.HasSuffix(u2.Host, ":443")) {
		host := u2.Hostname()
		u2.Host = host
	}
	return u2.String()
}
