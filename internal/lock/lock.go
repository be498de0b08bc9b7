// Package lock provides exclusive leases keyed by name, used to keep two
// verification rounds off the same poster/observer pair.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrHeld is returned by TryAcquire when another holder owns the key.
var ErrHeld = errors.New("lock held")

// Locker hands out exclusive leases.
type Locker interface {
	// TryAcquire takes key for at most ttl or fails with ErrHeld. The
	// returned release func is safe to call more than once.
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

// Memory is an in-process Locker.
type Memory struct {
	mu     sync.Mutex
	leases map[string]lease
	now    func() time.Time
}

type lease struct {
	token   string
	expires time.Time
}

func NewMemory() *Memory {
	return &Memory{leases: map[string]lease{}, now: time.Now}
}

func (m *Memory) TryAcquire(_ context.Context, key string, ttl time.Duration) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.leases == nil {
		m.leases = map[string]lease{}
	}
	now := time.Now()
	if m.now != nil {
		now = m.now()
	}
	if l, ok := m.leases[key]; ok && (l.expires.IsZero() || now.Before(l.expires)) {
		return nil, ErrHeld
	}
	l := lease{token: uuid.NewString()}
	if ttl > 0 {
		l.expires = now.Add(ttl)
	}
	m.leases[key] = l
	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if cur, ok := m.leases[key]; ok && cur.token == l.token {
				delete(m.leases, key)
			}
		})
	}, nil
}
