// Package transport defines the boundary to the external chat network. The
// gateway never assumes how the driver detects messages or authenticates; it
// only consumes inbound events and lifecycle notifications and hands back
// plain-text sends.
package transport

import (
	"context"
	"time"
)

// InboundEvent is one message observed by the driver. ID may be empty when the
// driver cannot produce a stable identifier; the deduplicator synthesizes a
// fingerprint in that case.
type InboundEvent struct {
	ID         string
	SenderID   string
	Body       string
	IsGroup    bool
	HasMedia   bool
	ReceivedAt time.Time
}

type LifecycleKind string

const (
	LifecyclePairingRequired LifecycleKind = "pairing_required"
	LifecycleConnected       LifecycleKind = "connected"
	LifecycleDisconnected    LifecycleKind = "disconnected"
)

// LifecycleEvent is pushed by the driver when the link changes state. Payload
// carries the pairing material (QR string) for pairing_required.
type LifecycleEvent struct {
	Kind    LifecycleKind
	Payload string
	Reason  string
}

type Transport interface {
	// Start initiates bring-up. Connection progress is reported through
	// Lifecycle, not through the return value; Start only fails on errors
	// that occur before the driver is running at all.
	Start(ctx context.Context) error
	Events() <-chan InboundEvent
	Lifecycle() <-chan LifecycleEvent
	SendText(ctx context.Context, to, text string) error
	Close() error
}

type StatusKind string

const (
	StatusPairingRequired StatusKind = "pairing_required"
	StatusConnected       StatusKind = "connected"
	StatusDisconnected    StatusKind = "disconnected"
	StatusFault           StatusKind = "fault"
)

// StatusEvent mirrors session state changes out to observers (status server,
// logs).
type StatusEvent struct {
	Kind    StatusKind
	Reason  string
	Payload string
	At      time.Time
}

type StatusSink interface {
	Publish(ev StatusEvent)
}

// SinkFunc adapts a function to StatusSink.
type SinkFunc func(ev StatusEvent)

func (f SinkFunc) Publish(ev StatusEvent) { f(ev) }

// MultiSink fans one status stream out to several sinks.
type MultiSink []StatusSink

func (m MultiSink) Publish(ev StatusEvent) {
	for _, s := range m {
		if s != nil {
			s.Publish(ev)
		}
	}
}
