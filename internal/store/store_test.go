package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperifyio/revimg/internal/spam"
	"github.com/hyperifyio/revimg/internal/verify"
)

func backends(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()
	fs, err := Open(filepath.Join(dir, "files"))
	if err != nil {
		t.Fatalf("open file store: %v", err)
	}
	db, err := Open("sqlite:" + filepath.Join(dir, "revimg.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		_ = fs.Close()
		_ = db.Close()
	})
	return map[string]Store{"file": fs, "sqlite": db}
}

func TestStore_RuntimeRoundTrip(t *testing.T) {
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			got, err := st.LoadRuntime(ctx)
			if err != nil || len(got) != 0 {
				t.Fatalf("empty load: %v %v", got, err)
			}
			rb := spam.NewRuntimeBlacklist()
			rb.Add("b.example")
			rb.Add("a.example")
			if err := rb.Save(ctx, st); err != nil {
				t.Fatalf("save: %v", err)
			}
			rb.Add("c.example")
			if err := rb.Save(ctx, st); err != nil {
				t.Fatalf("save again: %v", err)
			}
			reloaded := spam.NewRuntimeBlacklist()
			if err := reloaded.Load(ctx, st); err != nil {
				t.Fatalf("load: %v", err)
			}
			if snap := reloaded.Snapshot(); len(snap) != 3 || snap[0] != "a.example" || snap[2] != "c.example" {
				t.Fatalf("snapshot = %v", snap)
			}
		})
	}
}

func TestStore_RecordsNewestFirst(t *testing.T) {
	posted := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			first := []verify.Record{
				{RoundID: "r1", Link: "https://a.example/", Text: "https://a.example/", MessageID: "t1_a", PostedAt: posted, State: verify.StateConfirmed, ObservedAt: posted.Add(30 * time.Second)},
				{RoundID: "r1", Link: "https://b.example/", Text: "https://b.example/", PostedAt: posted, State: verify.StatePostFailed, Error: "403"},
			}
			if err := st.SaveRecords(ctx, first); err != nil {
				t.Fatalf("save: %v", err)
			}
			if err := st.SaveRecords(ctx, []verify.Record{{RoundID: "r2", Link: "https://c.example/", PostedAt: posted, State: verify.StateUnconfirmed}}); err != nil {
				t.Fatalf("save: %v", err)
			}
			got, err := st.RecentRecords(ctx, 2)
			if err != nil {
				t.Fatalf("recent: %v", err)
			}
			if len(got) != 2 || got[0].RoundID != "r2" || got[1].Link != "https://b.example/" {
				t.Fatalf("recent = %+v", got)
			}
			if got[1].Error != "403" || got[1].State != verify.StatePostFailed || !got[1].ObservedAt.IsZero() {
				t.Fatalf("record fields lost: %+v", got[1])
			}
			all, err := st.RecentRecords(ctx, 0)
			if err != nil || len(all) != 3 {
				t.Fatalf("all = %d %v", len(all), err)
			}
			if !all[2].PostedAt.Equal(posted) || !all[2].ObservedAt.Equal(posted.Add(30*time.Second)) {
				t.Fatalf("times = %v %v", all[2].PostedAt, all[2].ObservedAt)
			}
		})
	}
}

func TestOpen_SelectsBackend(t *testing.T) {
	dir := t.TempDir()
	st, err := Open(filepath.Join(dir, "x.sqlite"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer st.Close()
	if _, ok := st.(*SQLite); !ok {
		t.Fatalf("expected sqlite backend, got %T", st)
	}
	if _, err := Open("  "); err == nil {
		t.Fatalf("expected error for empty location")
	}
}
