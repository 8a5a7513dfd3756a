// Package dedup suppresses repeat delivery of inbound events. Observer-style
// drivers re-surface the same message on every poll, so the pipeline admits an
// event id exactly once within a retention horizon.
package dedup

import (
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/AdeKurniawannnn/wabot/internal/transport"
)

const DefaultHorizon = 10 * time.Minute

// fingerprintBucket coarsens the timestamp used in synthesized ids. Two
// identical bodies from the same sender inside one bucket collapse into one
// event; that false-negative risk is the price of not depending on driver ids.
const fingerprintBucket = time.Minute

type Deduplicator struct {
	mu      sync.Mutex
	seen    map[string]time.Time
	horizon time.Duration
	nowFn   func() time.Time
}

type Option func(*Deduplicator)

func WithClock(now func() time.Time) Option {
	return func(d *Deduplicator) { d.nowFn = now }
}

func New(horizon time.Duration, opts ...Option) *Deduplicator {
	if horizon <= 0 {
		horizon = DefaultHorizon
	}
	d := &Deduplicator{
		seen:    make(map[string]time.Time),
		horizon: horizon,
		nowFn:   time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Admit reports whether the event is new. The first observation of an id
// within the horizon returns true; repeats return false.
func (d *Deduplicator) Admit(ev transport.InboundEvent) bool {
	id := ev.ID
	if id == "" {
		id = Fingerprint(ev)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.nowFn()
	d.evictLocked(now)

	if _, ok := d.seen[id]; ok {
		return false
	}
	d.seen[id] = now
	return true
}

func (d *Deduplicator) evictLocked(now time.Time) {
	for id, firstSeen := range d.seen {
		if now.Sub(firstSeen) >= d.horizon {
			delete(d.seen, id)
		}
	}
}

// Len reports the number of tracked ids. Test hook.
func (d *Deduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

// Fingerprint synthesizes a stable id for events the driver did not identify.
func Fingerprint(ev transport.InboundEvent) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(ev.Body))
	bucket := ev.ReceivedAt.Truncate(fingerprintBucket).Unix()
	return fmt.Sprintf("%s|%x|%d", ev.SenderID, h.Sum64(), bucket)
}
