// Package ratelimit implements fixed-window admission control. The gateway
// runs two independent limiters: a global one protecting the outbound channel
// and a per-sender one protecting against a single abusive sender. Rejected
// messages are dropped silently; replying with a throttle notice would let an
// abusive sender amplify traffic, so the alternative (one notice per window)
// is deliberately not taken.
package ratelimit

import (
	"sync"
	"time"
)

// GlobalScope is the scope key for the process-wide ceiling.
const GlobalScope = "global"

type window struct {
	start    time.Time
	count    int
	rejected int
}

type Limiter struct {
	mu       sync.Mutex
	windows  map[string]*window
	ceiling  int
	duration time.Duration
	nowFn    func() time.Time
}

type Option func(*Limiter)

func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.nowFn = now }
}

func New(ceiling int, duration time.Duration, opts ...Option) *Limiter {
	l := &Limiter{
		windows:  make(map[string]*window),
		ceiling:  ceiling,
		duration: duration,
		nowFn:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow admits the call if the scope has not exceeded the ceiling within the
// current window. The window resets once its duration has fully elapsed.
func (l *Limiter) Allow(scope string) bool {
	if l.ceiling <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFn()
	w, ok := l.windows[scope]
	if !ok || now.Sub(w.start) >= l.duration {
		w = &window{start: now}
		l.windows[scope] = w
		l.pruneLocked(now)
	}

	w.count++
	if w.count > l.ceiling {
		w.rejected++
		return false
	}
	return true
}

// Rejected reports how many calls the scope's current window has refused.
func (l *Limiter) Rejected(scope string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.windows[scope]
	if !ok || l.nowFn().Sub(w.start) >= l.duration {
		return 0
	}
	return w.rejected
}

func (l *Limiter) pruneLocked(now time.Time) {
	for scope, w := range l.windows {
		if now.Sub(w.start) >= 2*l.duration {
			delete(l.windows, scope)
		}
	}
}
