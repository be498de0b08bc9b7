package cache

import (
    "context"
    "errors"
    "os"
    "path/filepath"
    "testing"
    "time"
)

func TestListCache_SaveLoad(t *testing.T) {
    t.Parallel()
    c := &ListCache{Dir: t.TempDir()}
    payload := []byte(`[{"spamtext":"bad.example"}]`)
    if err := c.Save(context.Background(), "link", payload); err != nil {
        t.Fatalf("save: %v", err)
    }
    got, mod, err := c.Load(context.Background(), "link")
    if err != nil {
        t.Fatalf("load: %v", err)
    }
    if string(got) != string(payload) {
        t.Fatalf("payload = %q", got)
    }
    if mod.IsZero() {
        t.Fatalf("expected modification time")
    }
    if _, err := os.Stat(c.Path("link") + ".tmp"); !errors.Is(err, os.ErrNotExist) {
        t.Fatalf("temp file left behind: %v", err)
    }
}

func TestListCache_MissingIsNotExist(t *testing.T) {
    t.Parallel()
    c := &ListCache{Dir: t.TempDir()}
    if _, _, err := c.Load(context.Background(), "text"); !errors.Is(err, os.ErrNotExist) {
        t.Fatalf("expected not-exist, got %v", err)
    }
    if _, ok := c.Age("text", time.Now()); ok {
        t.Fatalf("expected no age for missing entry")
    }
}

func TestListCache_AgeUsesModTime(t *testing.T) {
    t.Parallel()
    c := &ListCache{Dir: t.TempDir()}
    if err := c.Save(context.Background(), "tld", []byte(`[]`)); err != nil {
        t.Fatalf("save: %v", err)
    }
    old := time.Now().Add(-48 * time.Hour)
    if err := os.Chtimes(c.Path("tld"), old, old); err != nil {
        t.Fatalf("chtimes: %v", err)
    }
    age, ok := c.Age("tld", time.Now())
    if !ok || age < 47*time.Hour {
        t.Fatalf("age = %v ok=%v, want ~48h", age, ok)
    }
}

func TestListCache_InvalidateAndRejectBadType(t *testing.T) {
    t.Parallel()
    c := &ListCache{Dir: t.TempDir()}
    if err := c.Save(context.Background(), "user", []byte(`[]`)); err != nil {
        t.Fatalf("save: %v", err)
    }
    if err := c.Invalidate("user"); err != nil {
        t.Fatalf("invalidate: %v", err)
    }
    if err := c.Invalidate("user"); err != nil {
        t.Fatalf("second invalidate should be a no-op: %v", err)
    }
    if err := c.Save(context.Background(), "../escape", []byte(`[]`)); err == nil {
        t.Fatalf("expected invalid list type error")
    }
}

func TestListCache_StrictPerms(t *testing.T) {
    t.Parallel()
    dir := filepath.Join(t.TempDir(), "lists")
    c := &ListCache{Dir: dir, StrictPerms: true}
    if err := c.Save(context.Background(), "link", []byte(`[]`)); err != nil {
        t.Fatalf("save: %v", err)
    }
    info, err := os.Stat(dir)
    if err != nil {
        t.Fatalf("stat dir: %v", err)
    }
    if got := info.Mode() & 0o777; got != 0o700 {
        t.Fatalf("dir mode = %o, want 0700", got)
    }
    finfo, err := os.Stat(c.Path("link"))
    if err != nil {
        t.Fatalf("stat file: %v", err)
    }
    if got := finfo.Mode() & 0o777; got != 0o600 {
        t.Fatalf("file mode = %o, want 0600", got)
    }
}

func TestPurgeOlderThan(t *testing.T) {
    t.Parallel()
    dir := t.TempDir()
    c := &ListCache{Dir: dir}
    for _, k := range []string{"link", "text"} {
        if err := c.Save(context.Background(), k, []byte(`[]`)); err != nil {
            t.Fatalf("save %s: %v", k, err)
        }
    }
    old := time.Now().Add(-72 * time.Hour)
    _ = os.Chtimes(c.Path("link"), old, old)
    _ = os.WriteFile(filepath.Join(dir, "text.json.tmp"), []byte("x"), 0o644)
    removed, err := PurgeOlderThan(dir, 24*time.Hour, time.Now())
    if err != nil {
        t.Fatalf("purge: %v", err)
    }
    if removed != 1 {
        t.Fatalf("removed = %d, want 1", removed)
    }
    if _, err := os.Stat(c.Path("text")); err != nil {
        t.Fatalf("fresh entry should survive: %v", err)
    }
}

func TestListCache_DecodeInvalidatesCorrupt(t *testing.T) {
    t.Parallel()
    c := &ListCache{Dir: t.TempDir()}
    if err := os.WriteFile(c.Path("tld"), []byte(`[{"spamtext":`), 0o644); err != nil {
        t.Fatalf("seed: %v", err)
    }
    var v []map[string]string
    if _, err := c.Decode(context.Background(), "tld", &v); !errors.Is(err, ErrCorrupt) {
        t.Fatalf("expected ErrCorrupt, got %v", err)
    }
    if _, err := os.Stat(c.Path("tld")); !errors.Is(err, os.ErrNotExist) {
        t.Fatalf("corrupt entry should be removed: %v", err)
    }
    if _, err := c.Decode(context.Background(), "tld", &v); !errors.Is(err, os.ErrNotExist) {
        t.Fatalf("second decode should report missing, got %v", err)
    }
}
