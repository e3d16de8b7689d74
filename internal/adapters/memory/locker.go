package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/b2aeddine/collabmarket-56-sub000/internal/domain"
)

// Locker is a process-local lock table with the same contract as the Redis
// locker: a held key fails fast with domain.ErrOrderBusy.
type Locker struct {
	mu    sync.Mutex
	held  map[string]heldLock
	nowFn func() time.Time
}

type heldLock struct {
	token   string
	expires time.Time
}

func NewLocker() *Locker {
	return &Locker{held: map[string]heldLock{}, nowFn: time.Now}
}

func (l *Locker) Acquire(_ context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.nowFn()
	if current, ok := l.held[key]; ok && now.Before(current.expires) {
		return nil, domain.ErrOrderBusy
	}
	token := uuid.NewString()
	l.held[key] = heldLock{token: token, expires: now.Add(ttl)}
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if current, ok := l.held[key]; ok && current.token == token {
			delete(l.held, key)
		}
		return nil
	}, nil
}
