package google

import (
	"context"
	"sync"
)

// lazy opens an API client on first use. A failed open is retried on the
// next call.
type lazy[T any] struct {
	mu   sync.Mutex
	open func(context.Context) (T, error)
	v    T
	ok   bool
}

func (l *lazy[T]) get(ctx context.Context) (T, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ok {
		return l.v, nil
	}
	v, err := l.open(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	l.v, l.ok = v, true
	return v, nil
}
