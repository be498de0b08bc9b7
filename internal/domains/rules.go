package domains

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// RuleSet is a public suffix rule list parsed from the publicsuffix.org text
// format. It satisfies cookiejar.PublicSuffixList so it can replace the
// embedded list, for example with a pinned or trimmed copy.
type RuleSet struct {
	name       string
	rules      map[string]struct{}
	wildcards  map[string]struct{}
	exceptions map[string]struct{}
}

// LoadRuleSet reads a rule file from disk.
func LoadRuleSet(path string) (*RuleSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open suffix rules %s: %w", path, err)
	}
	defer f.Close()
	rs, err := ParseRuleSet(f)
	if err != nil {
		return nil, fmt.Errorf("parse suffix rules %s: %w", path, err)
	}
	rs.name = path
	return rs, nil
}

// ParseRuleSet parses rules, one per line. Blank lines and // comments are
// skipped; "*.x" marks a wildcard and "!y.x" an exception.
func ParseRuleSet(r io.Reader) (*RuleSet, error) {
	rs := &RuleSet{
		name:       "rules",
		rules:      map[string]struct{}{},
		wildcards:  map[string]struct{}{},
		exceptions: map[string]struct{}{},
	}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		// only the first whitespace-separated token is significant
		if i := strings.IndexAny(line, " \t"); i >= 0 {
			line = line[:i]
		}
		line = strings.ToLower(strings.Trim(line, "."))
		switch {
		case strings.HasPrefix(line, "!"):
			rs.exceptions[line[1:]] = struct{}{}
		case strings.HasPrefix(line, "*."):
			rs.wildcards[line[2:]] = struct{}{}
		case line != "":
			rs.rules[line] = struct{}{}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return rs, nil
}

// Len reports the number of rules of all kinds.
func (rs *RuleSet) Len() int {
	return len(rs.rules) + len(rs.wildcards) + len(rs.exceptions)
}

// PublicSuffix returns the longest matching suffix of domain. Unlisted TLDs
// fall back to the implicit "*" rule, i.e. the last label.
func (rs *RuleSet) PublicSuffix(domain string) string {
	domain = strings.ToLower(strings.Trim(domain, "."))
	labels := strings.Split(domain, ".")
	for i := range labels {
		candidate := strings.Join(labels[i:], ".")
		if _, ok := rs.exceptions[candidate]; ok {
			return strings.Join(labels[i+1:], ".")
		}
		if _, ok := rs.rules[candidate]; ok {
			return candidate
		}
		if i+1 < len(labels) {
			if _, ok := rs.wildcards[strings.Join(labels[i+1:], ".")]; ok {
				return candidate
			}
		}
	}
	return labels[len(labels)-1]
}

func (rs *RuleSet) String() string { return rs.name }
