// Package keylock provides lock-per-key mutual exclusion. A Manager lazily
// creates one lock per string key and hands out scoped guards for it. Two
// backings share the contract: in-process mutexes, and advisory file locks
// that exclude any process on the same host.
package keylock

import (
	"log/slog"
	"sync"
	"time"

	"github.com/loykin/supervisr/internal/logger"
	"github.com/loykin/supervisr/internal/metrics"
)

// Locker is the capability a keyed lock backing must provide. Acquire blocks
// until the lock is obtainable; there is no built-in timeout.
type Locker interface {
	Acquire() error
	Release() error
}

// entry is one arena slot. refs counts outstanding guards; doomed marks a
// key whose deletion is deferred until the last guard is released.
type entry struct {
	lk     Locker
	refs   int
	doomed bool
}

// Manager maps string keys to lazily-created locks. The arena itself is
// guarded by the manager mutex; the locks it hands out are independent
// resources.
//
// Deleting a key while guards for it are outstanding is deferred until the
// last guard is released, so two live lock instances for one logical key can
// never coexist.
type Manager struct {
	mu      sync.Mutex
	entries map[string]*entry
	newLock func(key string) (Locker, error)
	log     *slog.Logger
	backend string
}

func newManager(backend string, factory func(string) (Locker, error)) *Manager {
	return &Manager{
		entries: make(map[string]*entry),
		newLock: factory,
		log:     logger.Get("keylock"),
		backend: backend,
	}
}

// Lock returns a scoped guard for the key's lock, creating the lock on first
// use of the key. The guard is not yet acquired.
func (m *Manager) Lock(key string) (*ScopedLock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		lk, err := m.newLock(key)
		if err != nil {
			return nil, err
		}
		e = &entry{lk: lk}
		m.entries[key] = e
	}
	e.refs++
	return &ScopedLock{mgr: m, key: key, lk: e.lk, backend: m.backend}, nil
}

// Delete drops the key's cached lock. When guards for it are outstanding the
// drop is deferred until the last one is released; a held lock is never
// force-released.
func (m *Manager) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return
	}
	if e.refs > 0 {
		e.doomed = true
		return
	}
	delete(m.entries, key)
}

// Clear drops every cached lock, deferring entries with outstanding guards.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, e := range m.entries {
		if e.refs > 0 {
			e.doomed = true
			continue
		}
		delete(m.entries, key)
	}
}

// release returns one guard's reference and completes a deferred delete.
func (m *Manager) release(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return
	}
	if e.refs > 0 {
		e.refs--
	}
	if e.doomed && e.refs == 0 {
		delete(m.entries, key)
	}
}

// ScopedLock guards one acquisition of a keyed lock. Release is idempotent,
// so a deferred Release runs safely on every exit path of the protected
// region.
type ScopedLock struct {
	mgr      *Manager
	key      string
	lk       Locker
	backend  string
	held     bool
	heldAt   time.Time
	released bool
}

// Acquire blocks until the underlying lock is obtained.
func (s *ScopedLock) Acquire() error {
	if s.held {
		return nil
	}
	if err := s.lk.Acquire(); err != nil {
		return err
	}
	s.held = true
	s.heldAt = time.Now()
	metrics.IncLockAcquire(s.backend)
	return nil
}

// Release unlocks if held and returns the guard's arena reference. Calling
// it again, or without a prior Acquire, is a no-op.
func (s *ScopedLock) Release() {
	if s.held {
		if err := s.lk.Release(); err != nil {
			s.mgr.log.Error("lock release failed", "key", s.key, "error", err)
		}
		metrics.ObserveLockHold(s.backend, time.Since(s.heldAt))
		s.held = false
	}
	if !s.released {
		s.released = true
		s.mgr.release(s.key)
	}
}
