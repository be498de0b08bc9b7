package search

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hyperifyio/revimg/internal/fetch"
)

func TestFileWorker_EmitsVerbatim(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bing.json")
	data := `[{"provider":"bing","url":"https://a.example/"},{"provider":"bing"},{"provider":"bing","url":"https://b.example/"}]`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	o := &Orchestrator{Workers: []Worker{&FileWorker{Name: "bing", Path: path}}}
	got := o.Search(context.Background(), Query{})
	if len(got["bing"]) != 2 {
		t.Fatalf("expected 2 items, got %d", len(got["bing"]))
	}
}

// funcWorker adapts an in-process search function into a Worker.
type funcWorker struct {
	Name string
	Fn   func(ctx context.Context, q Query) ([]Item, error)
}

func (f *funcWorker) Provider() string { return f.Name }

func (f *funcWorker) Search(ctx context.Context, q Query, out chan<- []byte) error {
	items, err := f.Fn(ctx, q)
	for _, it := range items {
		it.Provider = f.Name
		if emitErr := Emit(ctx, out, it); emitErr != nil {
			return emitErr
		}
	}
	return err
}

func TestEmit_StampsProvider(t *testing.T) {
	w := &funcWorker{Name: "tineye", Fn: func(ctx context.Context, q Query) ([]Item, error) {
		return []Item{{URL: "https://t.example/" + q.ImageURL}}, nil
	}}
	got := (&Orchestrator{Workers: []Worker{w}}).Search(context.Background(), Query{ImageURL: "x"})
	if len(got["tineye"]) != 1 || got["tineye"][0].Provider != "tineye" {
		t.Fatalf("unexpected: %v", got)
	}
}

func TestCommandWorker_StreamsLines(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	w := &CommandWorker{
		Name: "cmd",
		Path: sh,
		Args: []string{"-c", `echo "{\"provider\":\"cmd\",\"url\":\"$1\"}"; echo; echo 'not json'`, "sh"},
	}
	got := (&Orchestrator{Workers: []Worker{w}}).Search(context.Background(), Query{ImageURL: "https://i.example/a.png"})
	if len(got["cmd"]) != 1 {
		t.Fatalf("expected 1 item, got %v", got["cmd"])
	}
	if got["cmd"][0].URL != "https://i.example/a.png" {
		t.Fatalf("url = %q", got["cmd"][0].URL)
	}
}

func TestCommandWorker_NonZeroExitKeepsEmitted(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	w := &CommandWorker{Name: "cmd", Path: sh, Args: []string{"-c", `echo '{"provider":"cmd","url":"https://k.example/"}'; exit 3`, "sh"}}
	ch := make(chan []byte, 4)
	err = w.Search(context.Background(), Query{}, ch)
	if err == nil {
		t.Fatalf("expected exit error")
	}
	if len(ch) != 1 {
		t.Fatalf("expected 1 buffered record, got %d", len(ch))
	}
}

// Lines over the limit are skipped and the records after them still arrive.
func TestCommandWorker_OversizedLineSkipped(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	script := `echo '{"provider":"cmd","url":"https://a.example/"}'
printf '{"provider":"cmd","url":"https://big.example/","title":"%0200d"}\n' 0
echo '{"provider":"cmd","url":"https://c.example/"}'`
	w := &CommandWorker{Name: "cmd", Path: sh, Args: []string{"-c", script, "sh"}, MaxLineBytes: 100}
	got := (&Orchestrator{Workers: []Worker{w}}).Search(context.Background(), Query{})
	var urls []string
	for _, it := range got["cmd"] {
		urls = append(urls, it.URL)
	}
	if strings.Join(urls, " ") != "https://a.example/ https://c.example/" {
		t.Fatalf("urls = %v", urls)
	}
}

func TestReadRecord_ContinuesPastBufferSize(t *testing.T) {
	br := bufio.NewReaderSize(strings.NewReader(strings.Repeat("x", 40)+"\nshort\n"+strings.Repeat("y", 90)+"\ntail"), 16)
	line, over, err := readRecord(br, 64)
	if err != nil || over || len(line) != 40 {
		t.Fatalf("first: len=%d over=%v err=%v", len(line), over, err)
	}
	line, over, err = readRecord(br, 64)
	if err != nil || over || string(line) != "short" {
		t.Fatalf("second: %q over=%v err=%v", line, over, err)
	}
	if line, over, err = readRecord(br, 64); err != nil || !over || line != nil {
		t.Fatalf("third: len=%d over=%v err=%v", len(line), over, err)
	}
	line, over, err = readRecord(br, 64)
	if !errors.Is(err, io.EOF) || over || string(line) != "tail" {
		t.Fatalf("last: %q over=%v err=%v", line, over, err)
	}
}

func TestSelectorWorker_ExtractsRecords(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("img")
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body>
<div class="r"><a class="t" href="/page/1">First</a><p>desc one</p><img src="https://cdn.example/1.jpg"><span class="s">800x600</span></div>
<div class="r"><a class="t">no link</a></div>
<div class="r"><a class="t" href="https://other.example/2">Second</a></div>
</body></html>`))
	}))
	defer srv.Close()

	w := &SelectorWorker{
		Name:   "html",
		Client: &fetch.Client{MaxAttempts: 1},
		Preset: Preset{
			SearchURL:   srv.URL + "/search?img={image_url}",
			Item:        "div.r",
			Title:       "a.t",
			Link:        "a.t@href",
			Description: "p",
			Image:       "img@src",
			Size:        "span.s",
		},
	}
	got := (&Orchestrator{Workers: []Worker{w}}).Search(context.Background(), Query{ImageURL: "https://i.example/q.jpg"})
	items := got["html"]
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].URL != srv.URL+"/page/1" || items[0].Title != "First" || items[0].ImageSize != "800x600" {
		t.Fatalf("unexpected first item: %+v", items[0])
	}
	if gotQuery != "https://i.example/q.jpg" {
		t.Fatalf("image url not passed: %q", gotQuery)
	}
}

func TestLoadPresets_Validates(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.yaml")
	_ = os.WriteFile(good, []byte("yandex:\n  search_url: https://y.example/?u={image_url}\n  item: li\n  link: a@href\n"), 0o644)
	presets, err := LoadPresets(good)
	if err != nil || presets["yandex"].Item != "li" {
		t.Fatalf("load: %v %v", presets, err)
	}
	bad := filepath.Join(dir, "bad.yaml")
	_ = os.WriteFile(bad, []byte("yandex:\n  search_url: https://y.example/\n  item: li\n  link: a@href\n"), 0o644)
	if _, err := LoadPresets(bad); err == nil {
		t.Fatalf("expected error for missing placeholder")
	}
}

func TestEndpointWorker_PollsUntilResults(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		if n < 3 {
			_, _ = w.Write([]byte(`{"results":[]}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"results": []any{
			map[string]any{"url": "https://p.example/1", "title": "one"},
			"garbage",
		}})
	}))
	defer srv.Close()

	w := &EndpointWorker{Name: "proxy", BaseURL: srv.URL, Client: &fetch.Client{MaxAttempts: 1}, Backoff: time.Millisecond}
	got := (&Orchestrator{Workers: []Worker{w}}).Search(context.Background(), Query{ImageURL: "https://i.example/"})
	if len(got["proxy"]) != 1 || got["proxy"][0].Provider != "proxy" {
		t.Fatalf("unexpected: %v", got["proxy"])
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestEndpointWorker_GivesUpAfterMaxPolls(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte(`{"results":[]}`))
	}))
	defer srv.Close()

	w := &EndpointWorker{Name: "proxy", BaseURL: srv.URL, Client: &fetch.Client{}, MaxPolls: 4, Backoff: time.Millisecond}
	ch := make(chan []byte, 1)
	if err := w.Search(context.Background(), Query{}, ch); err != nil {
		t.Fatalf("search: %v", err)
	}
	if calls != 4 {
		t.Fatalf("calls = %d, want 4", calls)
	}
}
