package keylock

import (
	"sync"
	"testing"
	"time"
)

func TestSameKeySerializesGoroutines(t *testing.T) {
	m := NewThreadManager()
	const workers = 10
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			guard, err := m.Lock("counter")
			if err != nil {
				t.Errorf("Lock: %v", err)
				return
			}
			defer guard.Release()
			if err := guard.Acquire(); err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			counter++
		}()
	}
	wg.Wait()
	if counter != workers {
		t.Fatalf("counter = %d, want %d", counter, workers)
	}
}

func TestDifferentKeysDoNotBlockEachOther(t *testing.T) {
	m := NewThreadManager()
	held, err := m.Lock("a")
	if err != nil {
		t.Fatalf("Lock a: %v", err)
	}
	defer held.Release()
	if err := held.Acquire(); err != nil {
		t.Fatalf("Acquire a: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		guard, err := m.Lock("b")
		if err != nil {
			t.Errorf("Lock b: %v", err)
			return
		}
		defer guard.Release()
		if err := guard.Acquire(); err != nil {
			t.Errorf("Acquire b: %v", err)
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("key b blocked behind held key a")
	}
}

func TestGuardReleaseIsIdempotent(t *testing.T) {
	m := NewThreadManager()
	guard, err := m.Lock("k")
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if err := guard.Acquire(); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := guard.Acquire(); err != nil {
		t.Fatalf("reacquire on held guard: %v", err)
	}
	guard.Release()
	guard.Release()

	m.mu.Lock()
	refs := m.entries["k"].refs
	m.mu.Unlock()
	if refs != 0 {
		t.Fatalf("refs = %d after double release, want 0", refs)
	}
}

func TestReleaseWithoutAcquireOnlyDropsReference(t *testing.T) {
	m := NewThreadManager()
	guard, err := m.Lock("k")
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	guard.Release()

	// lock must still be acquirable; an unlock of a never-locked mutex
	// would have panicked above
	other, err := m.Lock("k")
	if err != nil {
		t.Fatalf("Lock after bare release: %v", err)
	}
	defer other.Release()
	if err := other.Acquire(); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
}

func TestDeleteDeferredWhileGuardsOutstanding(t *testing.T) {
	m := NewThreadManager()
	guard, err := m.Lock("doomed")
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if err := guard.Acquire(); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	m.Delete("doomed")
	m.mu.Lock()
	_, present := m.entries["doomed"]
	m.mu.Unlock()
	if !present {
		t.Fatalf("entry dropped while a guard was outstanding")
	}

	// a new guard taken during the doomed window shares the same lock
	second, err := m.Lock("doomed")
	if err != nil {
		t.Fatalf("Lock during doomed window: %v", err)
	}
	if second.lk != guard.lk {
		t.Fatalf("doomed key handed out a second lock instance")
	}
	second.Release()

	guard.Release()
	m.mu.Lock()
	_, present = m.entries["doomed"]
	m.mu.Unlock()
	if present {
		t.Fatalf("deferred delete did not complete after last release")
	}
}

func TestClearDefersHeldEntries(t *testing.T) {
	m := NewThreadManager()
	held, err := m.Lock("held")
	if err != nil {
		t.Fatalf("Lock held: %v", err)
	}
	if err := held.Acquire(); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	idle, err := m.Lock("idle")
	if err != nil {
		t.Fatalf("Lock idle: %v", err)
	}
	idle.Release()

	m.Clear()
	m.mu.Lock()
	_, heldPresent := m.entries["held"]
	_, idlePresent := m.entries["idle"]
	m.mu.Unlock()
	if !heldPresent {
		t.Fatalf("held entry dropped by Clear")
	}
	if idlePresent {
		t.Fatalf("idle entry survived Clear")
	}

	held.Release()
	m.mu.Lock()
	_, heldPresent = m.entries["held"]
	m.mu.Unlock()
	if heldPresent {
		t.Fatalf("held entry survived its last release after Clear")
	}
}

func TestDeleteUnknownKeyIsNoop(t *testing.T) {
	m := NewThreadManager()
	m.Delete("missing")
	m.Clear()
}
