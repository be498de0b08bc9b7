package domains

import (
	"strings"
	"testing"
)

func TestResolve_WithSuffixRules(t *testing.T) {
	rs, err := ParseRuleSet(strings.NewReader("// test rules\nuk\nco.uk\ncom\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	r := &Resolver{Suffixes: rs}
	domain, host := r.Resolve("http://a.b.co.uk/x")
	if domain != "b.co.uk" {
		t.Fatalf("domain = %q, want b.co.uk", domain)
	}
	if host != "a.b.co.uk" {
		t.Fatalf("host = %q", host)
	}
}

func TestResolve_EmbeddedList(t *testing.T) {
	r := New()
	if r.Fallback() {
		t.Fatalf("embedded resolver must not be in fallback mode")
	}
	if d, _ := r.Resolve("http://a.b.co.uk/x"); d != "b.co.uk" {
		t.Fatalf("domain = %q, want b.co.uk", d)
	}
	if d, _ := r.Resolve("https://www.Example.COM/path?q=1"); d != "example.com" {
		t.Fatalf("domain = %q, want example.com", d)
	}
}

func TestResolve_FallbackMode(t *testing.T) {
	r := NewFallback()
	if !r.Fallback() {
		t.Fatalf("expected fallback mode")
	}
	domain, host := r.Resolve("http://a.b.co.uk/x")
	if domain != "co.uk" {
		t.Fatalf("fallback domain = %q, want co.uk", domain)
	}
	if host != "a.b.co.uk" {
		t.Fatalf("host = %q", host)
	}
	if d, _ := r.Resolve("example.org"); d != "example.org" {
		t.Fatalf("scheme-less domain = %q", d)
	}
}

func TestResolve_NoHost(t *testing.T) {
	for _, r := range []*Resolver{New(), NewFallback()} {
		for _, raw := range []string{"", "http://", "   ", "http:///path"} {
			if d, h := r.Resolve(raw); d != "" || h != "" {
				t.Fatalf("Resolve(%q) = %q, %q; want empty", raw, d, h)
			}
		}
	}
}

func TestResolve_HostIsSuffix(t *testing.T) {
	r := New()
	d, h := r.Resolve("http://co.uk/")
	if d != "" {
		t.Fatalf("domain = %q, want empty for bare suffix", d)
	}
	if h != "co.uk" {
		t.Fatalf("host = %q", h)
	}
}

func TestRuleSet_WildcardAndException(t *testing.T) {
	rs, err := ParseRuleSet(strings.NewReader("*.ck\n!www.ck\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	cases := map[string]string{
		"x.foo.ck": "foo.ck",
		"www.ck":   "ck",
		"a.www.ck": "ck",
		"host.zz":  "zz",
	}
	for in, want := range cases {
		if got := rs.PublicSuffix(in); got != want {
			t.Fatalf("PublicSuffix(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTLDFromSuffix(t *testing.T) {
	cases := map[string]string{
		"b.co.uk":     "co.uk",
		"example.com": "com",
		"localhost":   "",
		"":            "",
		"10.0.0.1":    "",
	}
	for in, want := range cases {
		if got := TLDFromSuffix(in); got != want {
			t.Fatalf("TLDFromSuffix(%q) = %q, want %q", in, got, want)
		}
	}
}
