package keylock

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
)

// fileLock materializes a key as <dir>/<key>.lock and takes an advisory
// exclusive lock on it, excluding any process on the same host that opens
// the same path. The file persists after release; its lock state is the
// coordination channel, not its presence.
//
// flock treats an already-locked handle as acquired, so a process-local
// mutex in front of it keeps same-key acquisitions exclusive between
// goroutines too.
type fileLock struct {
	mu sync.Mutex
	fl *flock.Flock
}

func (l *fileLock) Acquire() error {
	l.mu.Lock()
	if err := l.fl.Lock(); err != nil {
		l.mu.Unlock()
		return err
	}
	return nil
}

func (l *fileLock) Release() error {
	err := l.fl.Unlock()
	l.mu.Unlock()
	return err
}

// NewFileManager returns a keyed lock manager backed by advisory file locks
// under dir. The directory is created here; an unusable lock directory is a
// construction error, not an acquisition one.
func NewFileManager(dir string) (*Manager, error) {
	if dir == "" {
		return nil, fmt.Errorf("empty lock directory")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create lock directory %s: %w", dir, err)
	}
	return newManager("file", func(key string) (Locker, error) {
		return &fileLock{fl: flock.New(filepath.Join(dir, key+".lock"))}, nil
	}), nil
}
