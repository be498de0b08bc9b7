package spam

import (
	"strings"
	"testing"

	"github.com/hyperifyio/revimg/internal/domains"
	"github.com/hyperifyio/revimg/internal/search"
)

func testLists() *Lists {
	return &Lists{
		Link:      NewSet("https://bad.example.com/landing"),
		Thumb:     NewSet("https://cdn.example.net/stolen.jpg"),
		Text:      NewSet("buy followers now"),
		User:      NewSet("spammer42"),
		TLD:       Set{"xyz": {}, "couk": {}},
		Hard:      NewSet("banned.com", "both.com"),
		Whitelist: NewSet("both.com", "good.xyz"),
		Runtime:   NewRuntimeBlacklist("learned.org"),
	}
}

func TestClassify_DecisionOrder(t *testing.T) {
	c := &Classifier{Resolver: domains.New()}
	lists := testLists()
	cases := []struct {
		name   string
		item   search.Item
		spam   bool
		reason Reason
	}{
		{"short url", search.Item{URL: "a.b"}, true, ReasonShortURL},
		{"no host", search.Item{URL: "http://"}, true, ReasonNoDomain},
		{"host is suffix", search.Item{URL: "http://co.uk/x"}, true, ReasonNoDomain},
		{"whitelist beats hard", search.Item{URL: "https://www.both.com/p"}, false, ReasonWhitelisted},
		{"whitelist beats tld", search.Item{URL: "https://good.xyz/"}, false, ReasonWhitelisted},
		{"hard blacklist", search.Item{URL: "https://BANNED.com/a"}, true, ReasonHardBlacklist},
		{"runtime blacklist", search.Item{URL: "https://x.learned.org"}, true, ReasonRuntimeBlacklist},
		{"tld blacklist", search.Item{URL: "https://shop.xyz/item"}, true, ReasonTLDBlacklist},
		{"multi label tld", search.Item{URL: "http://a.b.co.uk/x"}, true, ReasonTLDBlacklist},
		{"link filter", search.Item{URL: "HTTPS://Bad.Example.com/Landing"}, true, ReasonLinkFilter},
		{"link filter is exact", search.Item{URL: "https://bad.example.com/landing/2"}, false, ReasonClean},
		{"thumb filter", search.Item{URL: "https://ok.example.org/", ImageURL: "https://cdn.example.net/stolen.jpg"}, true, ReasonThumbFilter},
		{"text filter", search.Item{URL: "https://ok.example.org/", Title: "Buy Followers NOW"}, true, ReasonTextFilter},
		{"clean", search.Item{URL: "https://ok.example.org/", Title: "A cat"}, false, ReasonClean},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			spam, reason := c.Classify(tc.item, lists)
			if spam != tc.spam || reason != tc.reason {
				t.Fatalf("Classify(%q) = (%v, %q), want (%v, %q)", tc.item.URL, spam, reason, tc.spam, tc.reason)
			}
		})
	}
}

func TestClassify_ShortURLAlwaysSpam(t *testing.T) {
	c := &Classifier{Resolver: domains.New()}
	lists := testLists()
	lists.Whitelist.Add("a.co")
	for _, u := range []string{"", "a", "a.co", "ab.co", " x.io "} {
		if !c.Spam(search.Item{URL: u, Title: "fine"}, lists) {
			t.Fatalf("expected %q to be spam", u)
		}
	}
}

func TestClassify_WhitelistPrecedence(t *testing.T) {
	c := &Classifier{Resolver: domains.New()}
	lists := testLists()
	for _, d := range []string{"masked.xyz", "banned.com", "learned.org"} {
		lists.Whitelist.Add(d)
		if c.Spam(search.Item{URL: "https://" + d + "/"}, lists) {
			t.Fatalf("whitelisted %s classified as spam", d)
		}
	}
}

func TestClassify_Idempotent(t *testing.T) {
	c := &Classifier{Resolver: domains.New()}
	lists := testLists()
	items := []search.Item{
		{URL: "https://banned.com/x"},
		{URL: "https://ok.example.org/"},
		{URL: "nope"},
		{URL: "https://127.0.0.1/"},
	}
	for _, it := range items {
		first := c.Spam(it, lists)
		it.Spam = first
		if second := c.Spam(it, lists); second != first {
			t.Fatalf("%s: verdict changed from %v to %v", it.URL, first, second)
		}
	}
}

func TestClassify_FallbackResolver(t *testing.T) {
	c := &Classifier{Resolver: domains.NewFallback()}
	lists := &Lists{Hard: NewSet("co.uk")}
	spam, reason := c.Classify(search.Item{URL: "http://a.b.co.uk/x"}, lists)
	if !spam || reason != ReasonHardBlacklist {
		t.Fatalf("fallback mode: got (%v, %q)", spam, reason)
	}
}

func TestLists_BlockedUser(t *testing.T) {
	lists := testLists()
	for _, name := range []string{"spammer42", "u/Spammer42", "/u/spammer42"} {
		if !lists.BlockedUser(name) {
			t.Fatalf("expected %s blocked", name)
		}
	}
	if lists.BlockedUser("someone") {
		t.Fatalf("unexpected block")
	}
	var nilLists *Lists
	if nilLists.BlockedUser("spammer42") {
		t.Fatalf("nil lists block nobody")
	}
}

func TestParseFilters_NormalizesTLD(t *testing.T) {
	set, err := ParseFilters(TLDList, rawFilters(`{"spamtext":".XYZ"}`, `{"spamtext":"co.uk"}`, `{"id":3}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, ok := set["xyz"]; !ok {
		t.Fatalf("missing xyz: %v", set)
	}
	if _, ok := set["couk"]; !ok {
		t.Fatalf("missing couk: %v", set)
	}
	if set.Len() != 2 {
		t.Fatalf("len = %d", set.Len())
	}
	if _, err := ParseFilters(LinkList, rawFilters(`"bare string"`)); err == nil {
		t.Fatalf("expected error for non-object filter")
	}
}

func TestParseListType(t *testing.T) {
	if lt, err := ParseListType(" Thumb "); err != nil || lt != ThumbList {
		t.Fatalf("got %q %v", lt, err)
	}
	if _, err := ParseListType("domain"); err == nil || !strings.Contains(err.Error(), "domain") {
		t.Fatalf("expected error, got %v", err)
	}
}
