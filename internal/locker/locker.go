// Package locker provides short-lived named locks used to elect a single
// instance for periodic jobs.
package locker

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Locker interface {
	// TryLock returns ok=false without error when another holder owns key.
	// The token must be passed back to Unlock.
	TryLock(ctx context.Context, key string, ttl time.Duration) (ok bool, token string, err error)
	Unlock(ctx context.Context, key, token string) error
}

// Local is an in-process Locker for single-instance deployments and tests.
type Local struct {
	mu    sync.Mutex
	held  map[string]localLock
	clock func() time.Time
}

type localLock struct {
	token   string
	expires time.Time
}

func NewLocal() *Local {
	return &Local{held: make(map[string]localLock), clock: time.Now}
}

func (l *Local) TryLock(_ context.Context, key string, ttl time.Duration) (bool, string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	if cur, ok := l.held[key]; ok && now.Before(cur.expires) {
		return false, "", nil
	}
	token := uuid.NewString()
	l.held[key] = localLock{token: token, expires: now.Add(ttl)}
	return true, token, nil
}

func (l *Local) Unlock(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cur, ok := l.held[key]; ok && cur.token == token {
		delete(l.held, key)
	}
	return nil
}
