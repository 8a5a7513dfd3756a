// Package session supervises the logical connection to the chat transport:
// a small state machine with bounded-retry reconnection, pairing timeout, and
// status fan-out. The pipeline only accepts inbound events while the machine
// is connected.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/AdeKurniawannnn/wabot/internal/transport"
)

type State string

const (
	StateDisconnected    State = "disconnected"
	StateConnecting      State = "connecting"
	StateAwaitingPairing State = "awaiting_pairing"
	StateConnected       State = "connected"
	StateDegraded        State = "degraded"
)

// ExhaustionPolicy picks what happens after MaxAttempts consecutive failures.
// Exit terminates the process (the canonical behavior); Reset re-arms the
// counter once and keeps retrying.
type ExhaustionPolicy string

const (
	ExhaustionExit  ExhaustionPolicy = "exit"
	ExhaustionReset ExhaustionPolicy = "reset"
)

const (
	DefaultMaxAttempts    = 5
	DefaultReconnectDelay = 5 * time.Second
	DefaultPairingTimeout = 3 * time.Minute
)

type Config struct {
	MaxAttempts    int
	ReconnectDelay time.Duration
	PairingTimeout time.Duration
	Exhaustion     ExhaustionPolicy
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = DefaultReconnectDelay
	}
	if c.PairingTimeout <= 0 {
		c.PairingTimeout = DefaultPairingTimeout
	}
	switch c.Exhaustion {
	case ExhaustionExit, ExhaustionReset:
	default:
		c.Exhaustion = ExhaustionExit
	}
	return c
}

type Machine struct {
	cfg    Config
	tr     transport.Transport
	sink   transport.StatusSink
	logger *slog.Logger

	onExhausted func(reason string)

	mu           sync.Mutex
	ctx          context.Context
	state        State
	attempt      int
	startedAt    time.Time
	retryTimer   *time.Timer
	pairingTimer *time.Timer
	stopped      bool
}

type Option func(*Machine)

// WithExhaustionHook replaces the process-exit behavior on retry exhaustion.
// Tests and the reset policy rely on this.
func WithExhaustionHook(fn func(reason string)) Option {
	return func(m *Machine) { m.onExhausted = fn }
}

func New(cfg Config, tr transport.Transport, sink transport.StatusSink, logger *slog.Logger, opts ...Option) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	if sink == nil {
		sink = transport.SinkFunc(func(transport.StatusEvent) {})
	}
	m := &Machine{
		cfg:    cfg.withDefaults(),
		tr:     tr,
		sink:   sink,
		logger: logger,
		state:  StateDisconnected,
	}
	m.onExhausted = func(reason string) {
		m.logger.Error("session_retries_exhausted", "reason", reason, "attempts", m.cfg.MaxAttempts)
		os.Exit(1)
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start brings the transport up and begins supervising its lifecycle events.
func (m *Machine) Start(ctx context.Context) {
	m.mu.Lock()
	m.ctx = ctx
	m.startedAt = time.Now()
	m.mu.Unlock()

	go m.superviseLifecycle(ctx)
	m.connect(ctx)
}

// Stop halts supervision and cancels any pending reconnect or pairing timer.
func (m *Machine) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	m.cancelTimersLocked()
	m.setStateLocked(StateDisconnected)
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connected reports whether the pipeline may accept inbound events.
func (m *Machine) Connected() bool {
	return m.State() == StateConnected
}

func (m *Machine) Attempt() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempt
}

func (m *Machine) Uptime() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.startedAt.IsZero() {
		return 0
	}
	return time.Since(m.startedAt)
}

func (m *Machine) connect(ctx context.Context) {
	m.mu.Lock()
	if m.stopped || ctx.Err() != nil {
		m.mu.Unlock()
		return
	}
	m.setStateLocked(StateConnecting)
	m.mu.Unlock()

	// Transport bring-up may hang on network conditions; never block the
	// caller on it.
	go func() {
		if err := m.tr.Start(ctx); err != nil {
			m.Fault(fmt.Sprintf("transport start: %v", err))
		}
	}()
}

func (m *Machine) superviseLifecycle(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-m.tr.Lifecycle():
			if !ok {
				return
			}
			m.handleLifecycle(ev)
		}
	}
}

func (m *Machine) handleLifecycle(ev transport.LifecycleEvent) {
	switch ev.Kind {
	case transport.LifecyclePairingRequired:
		m.enterPairing(ev.Payload)
	case transport.LifecycleConnected:
		m.enterConnected()
	case transport.LifecycleDisconnected:
		reason := ev.Reason
		if reason == "" {
			reason = "transport disconnected"
		}
		m.fault(transport.StatusDisconnected, reason)
	}
}

func (m *Machine) enterPairing(payload string) {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.setStateLocked(StateAwaitingPairing)
	if m.pairingTimer != nil {
		m.pairingTimer.Stop()
	}
	m.pairingTimer = time.AfterFunc(m.cfg.PairingTimeout, func() {
		m.mu.Lock()
		expired := m.state == StateAwaitingPairing
		m.mu.Unlock()
		if expired {
			m.Fault("pairing timeout")
		}
	})
	m.mu.Unlock()

	m.publish(transport.StatusEvent{Kind: transport.StatusPairingRequired, Payload: payload})
}

func (m *Machine) enterConnected() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.attempt = 0
	m.cancelTimersLocked()
	m.setStateLocked(StateConnected)
	m.mu.Unlock()

	m.publish(transport.StatusEvent{Kind: transport.StatusConnected})
}

// Fault records a transport failure from any state, moves to disconnected and
// schedules reconnection unless attempts are exhausted.
func (m *Machine) Fault(reason string) {
	m.fault(transport.StatusFault, reason)
}

func (m *Machine) fault(kind transport.StatusKind, reason string) {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	// Cancel any in-flight timer before scheduling a new one so overlapping
	// reconnect attempts cannot pile up.
	m.cancelTimersLocked()
	m.setStateLocked(StateDisconnected)

	if m.attempt >= m.cfg.MaxAttempts {
		policy := m.cfg.Exhaustion
		hook := m.onExhausted
		if policy == ExhaustionReset {
			m.logger.Warn("session_retry_counter_reset", "reason", reason, "attempts", m.attempt)
			m.attempt = 0
			m.scheduleReconnectLocked()
			m.mu.Unlock()
			m.publish(transport.StatusEvent{Kind: kind, Reason: reason})
			return
		}
		m.mu.Unlock()
		m.publish(transport.StatusEvent{Kind: kind, Reason: reason})
		hook(reason)
		return
	}

	m.attempt++
	attempt := m.attempt
	m.scheduleReconnectLocked()
	m.mu.Unlock()

	m.logger.Info("session_reconnect_scheduled",
		"reason", reason,
		"attempt", attempt,
		"max_attempts", m.cfg.MaxAttempts,
		"delay", m.cfg.ReconnectDelay.String(),
	)
	m.publish(transport.StatusEvent{Kind: kind, Reason: reason})
}

func (m *Machine) scheduleReconnectLocked() {
	ctx := m.ctx
	m.retryTimer = time.AfterFunc(m.cfg.ReconnectDelay, func() {
		m.connect(ctx)
	})
}

// Degrade suspends the pipeline without tearing the transport down, for
// conditions like repeated outbound send failures. A connected lifecycle
// event or a successful send recovers it.
func (m *Machine) Degrade(reason string) {
	m.mu.Lock()
	if m.stopped || m.state != StateConnected {
		m.mu.Unlock()
		return
	}
	m.setStateLocked(StateDegraded)
	m.mu.Unlock()

	m.publish(transport.StatusEvent{Kind: transport.StatusFault, Reason: reason})
}

// Recover returns a degraded session to connected.
func (m *Machine) Recover() {
	m.mu.Lock()
	if m.stopped || m.state != StateDegraded {
		m.mu.Unlock()
		return
	}
	m.setStateLocked(StateConnected)
	m.mu.Unlock()

	m.publish(transport.StatusEvent{Kind: transport.StatusConnected})
}

func (m *Machine) setStateLocked(next State) {
	if m.state == next {
		return
	}
	m.logger.Info("session_state", "from", string(m.state), "to", string(next))
	m.state = next
}

func (m *Machine) cancelTimersLocked() {
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
	if m.pairingTimer != nil {
		m.pairingTimer.Stop()
		m.pairingTimer = nil
	}
}

func (m *Machine) publish(ev transport.StatusEvent) {
	ev.At = time.Now()
	m.sink.Publish(ev)
}
