package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"
)

// ListCache stores one file per spam list type as <dir>/<type>.json. The file
// holds the last successfully fetched payload verbatim, and its modification
// time is the staleness clock.
type ListCache struct {
	Dir string
	// StrictPerms, when true, enforces 0700 on the cache directory and 0600
	// on files.
	StrictPerms bool
}

// ErrCorrupt reports a cache entry whose contents could not be parsed. The
// entry has already been removed when this is returned.
var ErrCorrupt = errors.New("cache entry corrupt")

var validListType = regexp.MustCompile(`^[a-z0-9_-]+$`)

func (c *ListCache) ensureDir() error {
	if c == nil || c.Dir == "" {
		return errors.New("cache dir not configured")
	}
	perm := os.FileMode(0o755)
	if c.StrictPerms {
		perm = 0o700
	}
	if err := os.MkdirAll(c.Dir, perm); err != nil {
		return err
	}
	if c.StrictPerms {
		if info, err := os.Stat(c.Dir); err == nil && info.Mode()&0o777 != 0o700 {
			_ = os.Chmod(c.Dir, 0o700)
		}
	}
	return nil
}

// Path returns the cache file location for listType.
func (c *ListCache) Path(listType string) string {
	return filepath.Join(c.Dir, listType+".json")
}

func (c *ListCache) check(listType string) error {
	if !validListType.MatchString(listType) {
		return fmt.Errorf("invalid list type %q", listType)
	}
	return c.ensureDir()
}

// Load returns the cached payload and its modification time. A missing entry
// is reported with an error wrapping os.ErrNotExist.
func (c *ListCache) Load(_ context.Context, listType string) ([]byte, time.Time, error) {
	if err := c.check(listType); err != nil {
		return nil, time.Time{}, err
	}
	p := c.Path(listType)
	info, err := os.Stat(p)
	if err != nil {
		return nil, time.Time{}, err
	}
	b, err := os.ReadFile(p)
	if err != nil {
		return nil, time.Time{}, err
	}
	return b, info.ModTime(), nil
}

// Decode loads the entry for listType and unmarshals it into v. An entry that
// does not parse is invalidated and reported as ErrCorrupt.
func (c *ListCache) Decode(ctx context.Context, listType string, v any) (time.Time, error) {
	b, mod, err := c.Load(ctx, listType)
	if err != nil {
		return time.Time{}, err
	}
	if err := json.Unmarshal(b, v); err != nil {
		if rmErr := c.Invalidate(listType); rmErr != nil {
			return time.Time{}, fmt.Errorf("%w: %v (invalidate: %v)", ErrCorrupt, err, rmErr)
		}
		return time.Time{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return mod, nil
}

// Age reports how long ago listType was last written. ok is false when no
// cache entry exists.
func (c *ListCache) Age(listType string, now time.Time) (time.Duration, bool) {
	if err := c.check(listType); err != nil {
		return 0, false
	}
	info, err := os.Stat(c.Path(listType))
	if err != nil {
		return 0, false
	}
	return now.Sub(info.ModTime()), true
}

// Save atomically replaces the cache entry for listType.
func (c *ListCache) Save(_ context.Context, listType string, payload []byte) error {
	if err := c.check(listType); err != nil {
		return err
	}
	mode := os.FileMode(0o644)
	if c.StrictPerms {
		mode = 0o600
	}
	p := c.Path(listType)
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, payload, mode); err != nil {
		return fmt.Errorf("write cache: %w", err)
	}
	if err := os.Rename(tmp, p); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace cache: %w", err)
	}
	return nil
}

// Invalidate deletes the entry for listType. Deleting a missing entry is not
// an error.
func (c *ListCache) Invalidate(listType string) error {
	if err := c.check(listType); err != nil {
		return err
	}
	if err := os.Remove(c.Path(listType)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
