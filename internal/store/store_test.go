package store

import (
	"testing"
	"time"
)

func TestUniqueKeyDistinguishesRuns(t *testing.T) {
	at := time.Now()
	if UniqueKey(100, at) == UniqueKey(100, at.Add(time.Nanosecond)) {
		t.Fatalf("same pid, different start times collided")
	}
	if UniqueKey(100, at) == UniqueKey(101, at) {
		t.Fatalf("different pids collided")
	}
	if UniqueKey(100, at) != UniqueKey(100, at) {
		t.Fatalf("identical runs produced different keys")
	}
}
