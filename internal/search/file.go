package search

import (
    "context"
    "encoding/json"
    "errors"
    "os"
    "strings"
)

// FileWorker replays records from a local JSON array for offline/testing use.
// Elements are emitted verbatim, so malformed entries reach the orchestrator
// the same way they would from a live worker.
type FileWorker struct {
    Name string
    Path string
}

func (f *FileWorker) Provider() string { return f.Name }

func (f *FileWorker) Search(ctx context.Context, q Query, out chan<- []byte) error {
    if strings.TrimSpace(f.Path) == "" {
        return errors.New("file worker path is empty")
    }
    b, err := os.ReadFile(f.Path)
    if err != nil {
        return err
    }
    var raw []json.RawMessage
    if err := json.Unmarshal(b, &raw); err != nil {
        return err
    }
    for i, r := range raw {
        if q.Limit > 0 && i >= q.Limit {
            break
        }
        select {
        case out <- []byte(r):
        case <-ctx.Done():
            return ctx.Err()
        }
    }
    return nil
}
