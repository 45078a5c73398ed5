package manager

import (
	"context"
	"sync"
)

// lazyBackend defers starting the runtime until the first operation that
// needs it. Success is cached; a failure is returned as a dependency error
// and the next call tries again. Once closed it never starts again.
type lazyBackend struct {
	// startMu serializes factory calls; mu guards the fields below and is
	// never held while the factory runs.
	startMu sync.Mutex

	mu      sync.Mutex
	factory BackendFactory
	b       Backend
	closed  bool
}

func newLazyBackend(f BackendFactory) *lazyBackend { return &lazyBackend{factory: f} }

func (l *lazyBackend) current() (Backend, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrTooBusy("shutting down")
	}
	return l.b, nil
}

func (l *lazyBackend) get(ctx context.Context) (Backend, error) {
	if b, err := l.current(); err != nil || b != nil {
		return b, err
	}
	l.startMu.Lock()
	defer l.startMu.Unlock()
	if b, err := l.current(); err != nil || b != nil {
		return b, err
	}
	if l.factory == nil {
		return nil, ErrDependencyUnavailable("no backend configured")
	}
	b, err := l.factory(ctx)
	if err != nil {
		return nil, dependencyUnavailableError{msg: "start backend: " + err.Error(), err: err}
	}
	if b == nil {
		return nil, ErrDependencyUnavailable("backend factory returned nil")
	}

	l.mu.Lock()
	closed := l.closed
	if !closed {
		l.b = b
	}
	l.mu.Unlock()
	if closed {
		_ = b.Close()
		return nil, ErrTooBusy("shutting down")
	}
	return b, nil
}

func (l *lazyBackend) started() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b != nil
}

func (l *lazyBackend) close() error {
	l.mu.Lock()
	b := l.b
	l.b = nil
	l.closed = true
	l.mu.Unlock()
	if b == nil {
		return nil
	}
	return b.Close()
}
