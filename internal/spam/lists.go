// Package spam holds the spam rule lists, the rule-based classifier and the
// store that keeps the lists synchronized with the remote rule service.
package spam

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ListType names one remotely maintained rule list.
type ListType string

const (
	LinkList  ListType = "link"
	ThumbList ListType = "thumb"
	TextList  ListType = "text"
	UserList  ListType = "user"
	TLDList   ListType = "tld"
)

// RemoteTypes are the list types fetched from the rule service, in refresh
// order.
var RemoteTypes = []ListType{LinkList, ThumbList, TextList, UserList, TLDList}

// ParseListType validates a list type name.
func ParseListType(s string) (ListType, error) {
	t := ListType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range RemoteTypes {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown spam list type %q", s)
}

// Set is a set of normalized entries. The zero value is an empty, read-only
// set.
type Set map[string]struct{}

// NewSet builds a Set from values normalized for display-independent lookup.
func NewSet(values ...string) Set {
	s := make(Set, len(values))
	for _, v := range values {
		s.Add(v)
	}
	return s
}

// Add inserts the lower-cased, trimmed value. Blank values are ignored.
func (s Set) Add(v string) {
	v = normalize(v)
	if v == "" {
		return
	}
	s[v] = struct{}{}
}

// Has reports whether v, normalized the same way as on insert, is present.
func (s Set) Has(v string) bool {
	if len(s) == 0 {
		return false
	}
	_, ok := s[normalize(v)]
	return ok
}

func (s Set) Len() int { return len(s) }

func normalize(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

// NormalizeTLD strips separators from a top-level label set so that "co.uk",
// ".co.uk" and "couk" share a key.
func NormalizeTLD(v string) string {
	return strings.ReplaceAll(normalize(v), ".", "")
}

// NormalizeDomain lower-cases a domain and drops a trailing root dot.
func NormalizeDomain(v string) string {
	return strings.TrimSuffix(normalize(v), ".")
}

type filter struct {
	SpamText *string `json:"spamtext"`
}

// ParseFilters extracts the spamtext entries of a filters payload. The same
// extraction runs on live pages and on cached payloads. Filters without a
// spamtext are skipped; a filter that is not an object fails the payload.
func ParseFilters(t ListType, filters []json.RawMessage) (Set, error) {
	s := make(Set, len(filters))
	for i, raw := range filters {
		var f filter
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("%s filter %d: %w", t, i, err)
		}
		if f.SpamText == nil {
			continue
		}
		switch t {
		case TLDList:
			if v := NormalizeTLD(*f.SpamText); v != "" {
				s[v] = struct{}{}
			}
		default:
			s.Add(*f.SpamText)
		}
	}
	return s, nil
}

// Lists is an immutable snapshot of every rule list the classifier reads.
// Runtime is shared across snapshots and is the only mutable part.
type Lists struct {
	Link      Set
	Thumb     Set
	Text      Set
	User      Set
	TLD       Set
	Hard      Set
	Whitelist Set
	Runtime   *RuntimeBlacklist
}

// Get returns the remote list of type t.
func (l *Lists) Get(t ListType) Set {
	if l == nil {
		return nil
	}
	switch t {
	case LinkList:
		return l.Link
	case ThumbList:
		return l.Thumb
	case TextList:
		return l.Text
	case UserList:
		return l.User
	case TLDList:
		return l.TLD
	}
	return nil
}

func (l *Lists) set(t ListType, s Set) {
	switch t {
	case LinkList:
		l.Link = s
	case ThumbList:
		l.Thumb = s
	case TextList:
		l.Text = s
	case UserList:
		l.User = s
	case TLDList:
		l.TLD = s
	}
}

// BlockedUser reports whether name is on the user list. A leading "u/" or
// "/u/" is ignored.
func (l *Lists) BlockedUser(name string) bool {
	if l == nil {
		return false
	}
	name = strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(name), "/"), "u/")
	return l.User.Has(name)
}
