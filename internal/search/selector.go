package search

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"gopkg.in/yaml.v3"

	"github.com/hyperifyio/revimg/internal/fetch"
)

// Preset describes how to read one provider's HTML result page. Field
// selectors take the text of the first match, or an attribute when written
// as "selector@attr" (e.g. "a@href", "img@src").
type Preset struct {
	// SearchURL must contain {image_url}, replaced by the escaped image URL.
	SearchURL   string `yaml:"search_url"`
	Item        string `yaml:"item"`
	Title       string `yaml:"title"`
	Link        string `yaml:"link"`
	Description string `yaml:"description"`
	Image       string `yaml:"image"`
	Size        string `yaml:"size"`
	Display     string `yaml:"display"`
}

// LoadPresets reads a YAML map of provider name to Preset.
func LoadPresets(path string) (map[string]Preset, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open presets %s: %w", path, err)
	}
	var presets map[string]Preset
	if err := yaml.Unmarshal(b, &presets); err != nil {
		return nil, fmt.Errorf("unmarshal presets %s: %w", path, err)
	}
	for name, p := range presets {
		if !strings.Contains(p.SearchURL, "{image_url}") {
			return nil, fmt.Errorf("preset %s: search_url lacks {image_url}", name)
		}
		if p.Item == "" || p.Link == "" {
			return nil, fmt.Errorf("preset %s: item and link selectors are required", name)
		}
	}
	return presets, nil
}

// SelectorWorker fetches a provider's result page and extracts records with
// CSS selectors.
type SelectorWorker struct {
	Name   string
	Preset Preset
	Client *fetch.Client
}

func (s *SelectorWorker) Provider() string { return s.Name }

func (s *SelectorWorker) Search(ctx context.Context, q Query, out chan<- []byte) error {
	if s.Client == nil {
		return fmt.Errorf("selector worker %s: no http client", s.Name)
	}
	pageURL := strings.ReplaceAll(s.Preset.SearchURL, "{image_url}", url.QueryEscape(q.ImageURL))
	base, err := url.Parse(pageURL)
	if err != nil {
		return fmt.Errorf("parse search url: %w", err)
	}
	body, _, err := s.Client.Get(ctx, pageURL)
	if err != nil {
		return err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("parse html: %w", err)
	}
	var emitErr error
	count := 0
	doc.Find(s.Preset.Item).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if q.Limit > 0 && count >= q.Limit {
			return false
		}
		link := resolveRef(base, pick(sel, s.Preset.Link))
		if link == "" {
			return true
		}
		item := Item{
			Provider:    s.Name,
			URL:         link,
			Title:       pick(sel, s.Preset.Title),
			Description: pick(sel, s.Preset.Description),
			ImageURL:    resolveRef(base, pick(sel, s.Preset.Image)),
			ImageSize:   pick(sel, s.Preset.Size),
			DisplayURL:  pick(sel, s.Preset.Display),
		}
		if emitErr = Emit(ctx, out, item); emitErr != nil {
			return false
		}
		count++
		return true
	})
	return emitErr
}

// pick evaluates a "selector" or "selector@attr" expression relative to sel.
// An empty selector before @ reads the attribute of sel itself.
func pick(sel *goquery.Selection, expr string) string {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return ""
	}
	css, attr := expr, ""
	if i := strings.LastIndex(expr, "@"); i >= 0 {
		css, attr = strings.TrimSpace(expr[:i]), strings.TrimSpace(expr[i+1:])
	}
	target := sel
	if css != "" {
		target = sel.Find(css).First()
	}
	if target.Length() == 0 {
		return ""
	}
	if attr != "" {
		v, _ := target.Attr(attr)
		return strings.TrimSpace(v)
	}
	return strings.TrimSpace(target.Text())
}

func resolveRef(base *url.URL, ref string) string {
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	return base.ResolveReference(u).String()
}
