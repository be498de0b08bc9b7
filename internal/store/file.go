package store

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/hyperifyio/revimg/internal/verify"
)

// File keeps the runtime blacklist as a JSON document and verification
// records as JSON lines inside Dir.
type File struct {
	Dir string
	mu  sync.Mutex
}

type runtimeDoc struct {
	Domains []string `json:"domains"`
}

// OpenFile creates dir when needed.
func OpenFile(dir string) (*File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("open file store %s: %w", dir, err)
	}
	return &File{Dir: dir}, nil
}

func (f *File) runtimePath() string { return filepath.Join(f.Dir, "runtime_blacklist.json") }
func (f *File) recordsPath() string { return filepath.Join(f.Dir, "verifications.jsonl") }

func (f *File) LoadRuntime(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, err := os.ReadFile(f.runtimePath())
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var doc runtimeDoc
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", f.runtimePath(), err)
	}
	return doc.Domains, nil
}

func (f *File) SaveRuntime(_ context.Context, domains []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, err := json.MarshalIndent(runtimeDoc{Domains: domains}, "", "  ")
	if err != nil {
		return err
	}
	p := f.runtimePath()
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write runtime blacklist: %w", err)
	}
	if err := os.Rename(tmp, p); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace runtime blacklist: %w", err)
	}
	return nil
}

func (f *File) SaveRecords(_ context.Context, records []verify.Record) error {
	if len(records) == 0 {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	fh, err := os.OpenFile(f.recordsPath(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open records: %w", err)
	}
	if _, err := fh.Write(buf.Bytes()); err != nil {
		_ = fh.Close()
		return fmt.Errorf("append records: %w", err)
	}
	return fh.Close()
}

// RecentRecords scans the whole log; unparseable lines are skipped.
func (f *File) RecentRecords(_ context.Context, limit int) ([]verify.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fh, err := os.Open(f.recordsPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	var all []verify.Record
	sc := bufio.NewScanner(fh)
	sc.Buffer(make([]byte, 64<<10), 1<<20)
	for sc.Scan() {
		var r verify.Record
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			continue
		}
		all = append(all, r)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	out := make([]verify.Record, 0, min(limit, len(all)))
	for i := len(all) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		out = append(out, all[i])
	}
	return out, nil
}

func (f *File) Close() error { return nil }
