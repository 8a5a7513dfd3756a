package ratelimit

import (
	"fmt"
	"testing"
	"time"
)

func TestAllowUpToCeiling(t *testing.T) {
	now := time.Date(2026, 2, 8, 10, 0, 0, 0, time.UTC)
	l := New(20, time.Minute, WithClock(func() time.Time { return now }))

	for i := 1; i <= 20; i++ {
		if !l.Allow("628111") {
			t.Fatalf("Allow() call %d = false, want true", i)
		}
		now = now.Add(time.Second)
	}
	for i := 21; i <= 25; i++ {
		if l.Allow("628111") {
			t.Fatalf("Allow() call %d = true, want false", i)
		}
		now = now.Add(time.Second)
	}
	if got := l.Rejected("628111"); got != 5 {
		t.Fatalf("Rejected() = %d, want 5", got)
	}
}

func TestWindowRollover(t *testing.T) {
	now := time.Date(2026, 2, 8, 10, 0, 0, 0, time.UTC)
	l := New(2, time.Minute, WithClock(func() time.Time { return now }))

	l.Allow("s")
	l.Allow("s")
	if l.Allow("s") {
		t.Fatalf("Allow() above ceiling = true, want false")
	}

	now = now.Add(time.Minute)
	if !l.Allow("s") {
		t.Fatalf("Allow() after rollover = false, want true")
	}
	if got := l.Rejected("s"); got != 0 {
		t.Fatalf("Rejected() after rollover = %d, want 0", got)
	}
}

func TestScopesAreIndependent(t *testing.T) {
	now := time.Date(2026, 2, 8, 10, 0, 0, 0, time.UTC)
	l := New(1, time.Minute, WithClock(func() time.Time { return now }))

	if !l.Allow("a") {
		t.Fatalf("Allow(a) = false, want true")
	}
	if l.Allow("a") {
		t.Fatalf("Allow(a) second = true, want false")
	}
	if !l.Allow("b") {
		t.Fatalf("Allow(b) = false, want true; scope a must not affect b")
	}
}

func TestZeroCeilingDisablesLimiting(t *testing.T) {
	l := New(0, time.Minute)
	for i := 0; i < 100; i++ {
		if !l.Allow("s") {
			t.Fatalf("Allow() with ceiling 0 = false, want true")
		}
	}
}

func TestStaleScopesPruned(t *testing.T) {
	now := time.Date(2026, 2, 8, 10, 0, 0, 0, time.UTC)
	l := New(1, time.Minute, WithClock(func() time.Time { return now }))

	for i := 0; i < 50; i++ {
		l.Allow(fmt.Sprintf("sender-%d", i))
		now = now.Add(3 * time.Minute)
	}

	l.mu.Lock()
	n := len(l.windows)
	l.mu.Unlock()
	if n > 2 {
		t.Fatalf("windows map holds %d scopes, want stale scopes pruned", n)
	}
}
