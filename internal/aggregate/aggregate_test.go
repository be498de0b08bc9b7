package aggregate

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/hyperifyio/revimg/internal/domains"
	"github.com/hyperifyio/revimg/internal/fetch"
	"github.com/hyperifyio/revimg/internal/search"
	"github.com/hyperifyio/revimg/internal/spam"
)

type fakeProber struct {
	mu     sync.Mutex
	status map[string]int
	calls  []string
}

func (f *fakeProber) Probe(_ context.Context, u string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, u)
	if s, ok := f.status[u]; ok {
		if s == 0 {
			return 0, errors.New("dial tcp: refused")
		}
		return s, nil
	}
	return http.StatusOK, nil
}

func newAggregator(opt Options, p Prober) *Aggregator {
	return &Aggregator{Classifier: &spam.Classifier{Resolver: domains.New()}, Prober: p, Options: opt}
}

func TestAggregate_SanitizeDedupAndClassify(t *testing.T) {
	in := search.ResultMap{
		"bing": {
			{URL: " https://EXAMPLE.com/page?utm_source=x#frag ", Title: "  Café \x07 photo\n\n"},
			{URL: "https://example.com/page", Title: "duplicate"},
			{URL: "ftp://example.com/file"},
			{URL: "https://banned.com/x", Title: "spam"},
			{URL: "https://ok.org/?b=2&a=1", Title: "order kept"},
		},
		"tineye": {},
	}
	lists := &spam.Lists{Hard: spam.NewSet("banned.com")}
	out := newAggregator(Options{}, nil).Aggregate(context.Background(), in, lists)
	if len(out) != 2 || out["tineye"] == nil || len(out["tineye"]) != 0 {
		t.Fatalf("provider keys not preserved: %v", out)
	}
	got := out["bing"]
	if len(got) != 2 {
		t.Fatalf("expected 2 items, got %d: %+v", len(got), got)
	}
	if got[0].URL != "https://example.com/page" {
		t.Fatalf("url = %q", got[0].URL)
	}
	if got[0].Title != "Café photo" {
		t.Fatalf("title = %q", got[0].Title)
	}
	if got[0].Provider != "bing" || got[0].Spam {
		t.Fatalf("unexpected flags: %+v", got[0])
	}
	if got[1].URL != "https://ok.org/?b=2&a=1" {
		t.Fatalf("query without tracking params must be untouched: %q", got[1].URL)
	}
}

func TestAggregate_KeepSpamFlags(t *testing.T) {
	in := search.ResultMap{"g": {{URL: "https://banned.com/x"}, {URL: "x"}}}
	lists := &spam.Lists{Hard: spam.NewSet("banned.com")}
	out := newAggregator(Options{KeepSpam: true}, nil).Aggregate(context.Background(), in, lists)
	if len(out["g"]) != 1 || !out["g"][0].Spam {
		t.Fatalf("expected flagged spam item, got %+v", out["g"])
	}
}

func TestAggregate_TruncatesPerProvider(t *testing.T) {
	var items []search.Item
	for _, p := range []string{"1", "2", "3", "4", "5", "6", "7"} {
		items = append(items, search.Item{URL: "https://site" + p + ".example.org/"})
	}
	out := newAggregator(Options{MaxPerProvider: 3}, nil).Aggregate(context.Background(), search.ResultMap{"y": items}, &spam.Lists{})
	if len(out["y"]) != 3 || out["y"][2].URL != "https://site3.example.org/" {
		t.Fatalf("unexpected truncation: %+v", out["y"])
	}
}

func TestAggregate_DropBrokenBackfills(t *testing.T) {
	p := &fakeProber{status: map[string]int{
		"https://a.example.org/": http.StatusNotFound,
		"https://b.example.org/": 0,
	}}
	in := search.ResultMap{"g": {
		{URL: "https://a.example.org/"},
		{URL: "https://b.example.org/"},
		{URL: "https://c.example.org/"},
		{URL: "https://d.example.org/"},
	}}
	out := newAggregator(Options{MaxPerProvider: 2, DropBroken: true}, p).Aggregate(context.Background(), in, &spam.Lists{})
	if len(out["g"]) != 2 || out["g"][0].URL != "https://c.example.org/" || out["g"][1].URL != "https://d.example.org/" {
		t.Fatalf("unexpected: %+v", out["g"])
	}
}

func TestAggregate_CheckLinksFlagsOnly(t *testing.T) {
	p := &fakeProber{status: map[string]int{"https://a.example.org/": http.StatusGone}}
	in := search.ResultMap{"g": {{URL: "https://a.example.org/"}, {URL: "https://b.example.org/"}, {URL: "https://c.example.org/"}}}
	out := newAggregator(Options{MaxPerProvider: 2, CheckLinks: true}, p).Aggregate(context.Background(), in, &spam.Lists{})
	if len(out["g"]) != 2 || !out["g"][0].Broken || out["g"][1].Broken {
		t.Fatalf("unexpected: %+v", out["g"])
	}
	if len(p.calls) != 2 {
		t.Fatalf("only kept results should be probed, got %v", p.calls)
	}
}

func TestAggregate_ProbeWithFetchClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/gone" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	// httptest serves on an IP literal which never resolves to a domain
	agg := &Aggregator{Classifier: &spam.Classifier{Resolver: domains.New()}, Prober: &fetch.Client{MaxAttempts: 1}, Options: Options{CheckLinks: true, KeepSpam: true}}
	in := search.ResultMap{"g": {{URL: srv.URL + "/ok"}, {URL: srv.URL + "/gone"}}}
	out := agg.Aggregate(context.Background(), in, &spam.Lists{})
	if len(out["g"]) != 2 || out["g"][0].Broken || !out["g"][1].Broken {
		t.Fatalf("unexpected: %+v", out["g"])
	}
}

func TestCleanURL(t *testing.T) {
	cases := map[string]string{
		"HTTP://Example.COM:80/a":         "http://example.com/a",
		"https://x.org/p?utm_medium=m&q=1": "https://x.org/p?q=1",
		"javascript:alert(1)":             "",
		"https:///nohost":                 "",
		"https://x.org/a b":               "",
		"":                                "",
	}
	for in, want := range cases {
		if got := cleanURL(in); got != want {
			t.Fatalf("cleanURL(%q) = %q, want %q", in, got, want)
		}
	}
}
