package memory

import (
	"context"
	"sync"

	"github.com/dtroode/mdpublish/internal/model"
)

var _ model.Locker = (*KeyedLocker)(nil)

type lease struct {
	ch   chan struct{}
	refs int
}

// KeyedLocker is an in-process mutex per key. Entries are dropped once no
// goroutine holds or waits for them.
type KeyedLocker struct {
	mu     sync.Mutex
	leases map[string]*lease
}

func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{leases: make(map[string]*lease)}
}

func (l *KeyedLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	le, ok := l.leases[key]
	if !ok {
		le = &lease{ch: make(chan struct{}, 1)}
		l.leases[key] = le
	}
	le.refs++
	l.mu.Unlock()

	select {
	case le.ch <- struct{}{}:
	case <-ctx.Done():
		l.unref(key, le)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-le.ch
			l.unref(key, le)
		})
	}, nil
}

func (l *KeyedLocker) unref(key string, le *lease) {
	l.mu.Lock()
	defer l.mu.Unlock()

	le.refs--
	if le.refs == 0 {
		delete(l.leases, key)
	}
}
