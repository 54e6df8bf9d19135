package keylock

import "sync"

// threadLock scopes mutual exclusion to goroutines of this process.
type threadLock struct {
	mu sync.Mutex
}

func (l *threadLock) Acquire() error {
	l.mu.Lock()
	return nil
}

func (l *threadLock) Release() error {
	l.mu.Unlock()
	return nil
}

// NewThreadManager returns a keyed lock manager whose locks exclude only
// within the current process.
func NewThreadManager() *Manager {
	return newManager("thread", func(string) (Locker, error) {
		return &threadLock{}, nil
	})
}
