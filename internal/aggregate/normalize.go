package aggregate

import (
	"net/url"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/hyperifyio/revimg/internal/search"
)

var trackingParams = []string{"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content", "utm_id", "gclid", "fbclid"}

// cleanText NFC-normalizes s, replaces control characters with spaces and
// collapses runs of whitespace.
func cleanText(s string) string {
	s = norm.NFC.String(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

// cleanURL returns the canonical form of raw, or "" when raw is not an
// absolute http(s) URL with a host.
func cleanURL(raw string) string {
	raw = strings.TrimSpace(norm.NFC.String(raw))
	if raw == "" || strings.IndexFunc(raw, func(r rune) bool { return unicode.IsControl(r) || unicode.IsSpace(r) }) >= 0 {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if (u.Scheme != "http" && u.Scheme != "https") || u.Hostname() == "" {
		return ""
	}
	normalizeURL(u)
	return u.String()
}

func normalizeURL(u *url.URL) {
	u.Fragment = ""
	u.Host = strings.ToLower(u.Host)
	if (u.Scheme == "http" && strings.HasSuffix(u.Host, ":80")) || (u.Scheme == "https" && strings.HasSuffix(u.Host, ":443")) {
		u.Host = u.Hostname()
	}
	if u.RawQuery == "" {
		return
	}
	q := u.Query()
	removed := false
	for _, p := range trackingParams {
		if q.Has(p) {
			q.Del(p)
			removed = true
		}
	}
	// re-encoding reorders parameters, so only do it when something changed
	if removed {
		u.RawQuery = q.Encode()
	}
}

// sanitize cleans every field of it and reports whether it is still usable.
func sanitize(it *search.Item) bool {
	it.URL = cleanURL(it.URL)
	if it.URL == "" {
		return false
	}
	it.Title = cleanText(it.Title)
	it.Description = cleanText(it.Description)
	it.ImageSize = cleanText(it.ImageSize)
	it.DisplayURL = cleanText(it.DisplayURL)
	if it.ImageURL != "" {
		it.ImageURL = cleanURL(it.ImageURL)
	}
	return true
}
