// Package history keeps bounded per-sender conversation context for model
// calls. Unbounded history grows request cost and latency without bound, so
// each sender's sequence is capped and truncated oldest-first.
package history

import (
	"context"
	"sync"
	"time"

	"github.com/AdeKurniawannnn/wabot/llm"
)

const DefaultMaxTurns = 10

type conversation struct {
	entries []llm.Message
	version uint64
	touched time.Time
}

type Store struct {
	mu       sync.Mutex
	convs    map[string]*conversation
	maxTurns int
	idleTTL  time.Duration
	nowFn    func() time.Time
}

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.nowFn = now }
}

// WithIdleTTL evicts conversations untouched for ttl. Zero disables eviction.
func WithIdleTTL(ttl time.Duration) Option {
	return func(s *Store) { s.idleTTL = ttl }
}

func New(maxTurns int, opts ...Option) *Store {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	s := &Store{
		convs:    make(map[string]*conversation),
		maxTurns: maxTurns,
		nowFn:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append adds one turn to the sender's context, creating it lazily and
// truncating to the configured cap.
func (s *Store) Append(senderID, role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.convLocked(senderID)
	s.appendLocked(c, role, content)
}

// AppendIfVersion adds a turn only when the sender's context has not been
// reset since version was captured. A reset during an in-flight model call
// wins over the stale reply.
func (s *Store) AppendIfVersion(senderID string, version uint64, role, content string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.convLocked(senderID)
	if c.version != version {
		return false
	}
	s.appendLocked(c, role, content)
	return true
}

func (s *Store) appendLocked(c *conversation, role, content string) {
	c.entries = append(c.entries, llm.Message{Role: role, Content: content})
	if len(c.entries) > s.maxTurns {
		c.entries = c.entries[len(c.entries)-s.maxTurns:]
	}
	c.touched = s.nowFn()
}

// Get returns a copy of the sender's context in insertion order.
func (s *Store) Get(senderID string) []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[senderID]
	if !ok {
		return nil
	}
	return append([]llm.Message(nil), c.entries...)
}

// Version identifies the sender's current context generation; Reset bumps it.
func (s *Store) Version(senderID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.convs[senderID]; ok {
		return c.version
	}
	return 0
}

// Reset clears the sender's context.
func (s *Store) Reset(senderID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.convLocked(senderID)
	c.entries = nil
	c.version++
	c.touched = s.nowFn()
}

func (s *Store) convLocked(senderID string) *conversation {
	c, ok := s.convs[senderID]
	if !ok {
		c = &conversation{touched: s.nowFn()}
		s.convs[senderID] = c
	}
	return c
}

// StartJanitor evicts idle conversations until ctx is done. No-op when the
// store has no idle TTL.
func (s *Store) StartJanitor(ctx context.Context, interval time.Duration) {
	if s.idleTTL <= 0 {
		return
	}
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.evictIdle()
			}
		}
	}()
}

func (s *Store) evictIdle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.nowFn()
	for senderID, c := range s.convs {
		if now.Sub(c.touched) >= s.idleTTL {
			delete(s.convs, senderID)
		}
	}
}
