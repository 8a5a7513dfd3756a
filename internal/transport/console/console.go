// Package console implements a stdin/stdout loopback transport so the gateway
// can be exercised without a real chat driver. Each input line becomes one
// inbound event from a single synthetic sender.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AdeKurniawannnn/wabot/internal/transport"
)

const SenderID = "console"

type Transport struct {
	in  io.Reader
	out io.Writer

	events    chan transport.InboundEvent
	lifecycle chan transport.LifecycleEvent

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

func New(in io.Reader, out io.Writer) *Transport {
	return &Transport{
		in:        in,
		out:       out,
		events:    make(chan transport.InboundEvent, 16),
		lifecycle: make(chan transport.LifecycleEvent, 4),
		done:      make(chan struct{}),
	}
}

func (t *Transport) Start(ctx context.Context) error {
	t.lifecycle <- transport.LifecycleEvent{Kind: transport.LifecycleConnected}

	go func() {
		scanner := bufio.NewScanner(t.in)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			ev := transport.InboundEvent{
				ID:         "console_" + uuid.NewString(),
				SenderID:   SenderID,
				Body:       line,
				ReceivedAt: time.Now(),
			}
			select {
			case t.events <- ev:
			case <-ctx.Done():
				return
			case <-t.done:
				return
			}
		}
		t.mu.Lock()
		closed := t.closed
		t.mu.Unlock()
		if !closed {
			select {
			case t.lifecycle <- transport.LifecycleEvent{Kind: transport.LifecycleDisconnected, Reason: "input closed"}:
			default:
			}
		}
	}()
	return nil
}

func (t *Transport) Events() <-chan transport.InboundEvent { return t.events }

func (t *Transport) Lifecycle() <-chan transport.LifecycleEvent { return t.lifecycle }

func (t *Transport) SendText(ctx context.Context, to, text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return fmt.Errorf("console transport is closed")
	}
	_, err := fmt.Fprintf(t.out, "[%s] %s\n", to, text)
	return err
}

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	close(t.done)
	return nil
}
