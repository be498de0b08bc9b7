package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Item is one candidate match returned by a provider. Workers fill the
// descriptive fields; Spam and Broken are owned by the aggregator.
type Item struct {
	Provider    string `json:"provider"`
	URL         string `json:"url"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
	ImageSize   string `json:"image_size,omitempty"`
	DisplayURL  string `json:"display_url,omitempty"`
	Spam        bool   `json:"spam"`
	Broken      bool   `json:"broken"`
}

// Query identifies the image being searched for.
type Query struct {
	ImageURL string
	// Limit is a hint for how many records a worker should emit. Zero means
	// the worker's own default.
	Limit int
}

// Worker searches one provider and emits one JSON record per result on out.
// Search returns when the provider is exhausted; the caller closes out.
type Worker interface {
	Provider() string
	Search(ctx context.Context, q Query, out chan<- []byte) error
}

// ErrMalformedRecord marks a record that could not be turned into an Item.
var ErrMalformedRecord = errors.New("malformed record")

// Emit encodes item as a record and sends it, giving up when ctx is done.
func Emit(ctx context.Context, out chan<- []byte, item Item) error {
	b, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	select {
	case out <- b:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type wireRecord struct {
	Provider    *string `json:"provider"`
	URL         *string `json:"url"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	ImageURL    string  `json:"image_url"`
	ImageSize   string  `json:"image_size"`
	DisplayURL  string  `json:"display_url"`
}

// DecodeRecord parses one record emitted by the worker for provider. The
// record must be a JSON object naming provider and carrying a non-empty url.
func DecodeRecord(provider string, raw []byte) (Item, error) {
	var w wireRecord
	if err := json.Unmarshal(raw, &w); err != nil {
		return Item{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	if w.Provider == nil {
		return Item{}, fmt.Errorf("%w: missing provider", ErrMalformedRecord)
	}
	if *w.Provider != provider {
		return Item{}, fmt.Errorf("%w: provider %q from %q worker", ErrMalformedRecord, *w.Provider, provider)
	}
	if w.URL == nil || strings.TrimSpace(*w.URL) == "" {
		return Item{}, fmt.Errorf("%w: missing url", ErrMalformedRecord)
	}
	return Item{
		Provider:    provider,
		URL:         *w.URL,
		Title:       w.Title,
		Description: w.Description,
		ImageURL:    w.ImageURL,
		ImageSize:   w.ImageSize,
		DisplayURL:  w.DisplayURL,
	}, nil
}

// ResultMap maps each configured provider to its results in emission order.
// Every configured provider is present, possibly with an empty list.
type ResultMap map[string][]Item

// NewResultMap returns a map holding an empty list for every provider.
func NewResultMap(providers []string) ResultMap {
	m := make(ResultMap, len(providers))
	for _, p := range providers {
		m[p] = []Item{}
	}
	return m
}

// Providers returns the provider identifiers in sorted order.
func (m ResultMap) Providers() []string {
	out := make([]string, 0, len(m))
	for p := range m {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Total counts items across all providers.
func (m ResultMap) Total() int {
	n := 0
	for _, items := range m {
		n += len(items)
	}
	return n
}

// Clone returns a copy whose lists can be modified independently.
func (m ResultMap) Clone() ResultMap {
	out := make(ResultMap, len(m))
	for p, items := range m {
		cp := make([]Item, len(items))
		copy(cp, items)
		out[p] = cp
	}
	return out
}
