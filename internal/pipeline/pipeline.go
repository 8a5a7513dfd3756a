// Package pipeline chains admission control for inbound events: session gate,
// sender allow/deny lists, deduplication, global and per-sender rate limits,
// then routing on a per-sender worker. Senders are serialized individually so
// conversation context reflects arrival order, while a global semaphore bounds
// total concurrency; a hung model call for one sender never stalls the others.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/AdeKurniawannnn/wabot/internal/bot"
	"github.com/AdeKurniawannnn/wabot/internal/dedup"
	"github.com/AdeKurniawannnn/wabot/internal/ratelimit"
	"github.com/AdeKurniawannnn/wabot/internal/transport"
)

const (
	DefaultMaxConcurrency = 3
	senderQueueSize       = 16
)

type SendFunc func(ctx context.Context, to, text string) error

type Options struct {
	Dedup     *dedup.Deduplicator
	Global    *ratelimit.Limiter
	PerSender *ratelimit.Limiter
	Router    *bot.Router
	Send      SendFunc
	// Gate reports whether the session currently accepts inbound events.
	Gate           func() bool
	Allowlist      []string
	Denylist       []string
	MaxConcurrency int
	// OnSendResult observes every outbound send, for degraded-session
	// tracking. Optional.
	OnSendResult func(err error)
	Logger       *slog.Logger
}

type Pipeline struct {
	dedup        *dedup.Deduplicator
	global       *ratelimit.Limiter
	perSender    *ratelimit.Limiter
	router       *bot.Router
	send         SendFunc
	gate         func() bool
	allowlist    map[string]bool
	denylist     map[string]bool
	sem          chan struct{}
	onSendResult func(err error)
	logger       *slog.Logger

	mu      sync.Mutex
	workers map[string]chan transport.InboundEvent
}

func New(opts Options) (*Pipeline, error) {
	if opts.Dedup == nil || opts.Global == nil || opts.PerSender == nil {
		return nil, fmt.Errorf("dedup and rate limiters are required")
	}
	if opts.Router == nil {
		return nil, fmt.Errorf("router is required")
	}
	if opts.Send == nil {
		return nil, fmt.Errorf("send func is required")
	}
	if opts.Gate == nil {
		opts.Gate = func() bool { return true }
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = DefaultMaxConcurrency
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Pipeline{
		dedup:        opts.Dedup,
		global:       opts.Global,
		perSender:    opts.PerSender,
		router:       opts.Router,
		send:         opts.Send,
		gate:         opts.Gate,
		allowlist:    toSet(opts.Allowlist),
		denylist:     toSet(opts.Denylist),
		sem:          make(chan struct{}, opts.MaxConcurrency),
		onSendResult: opts.OnSendResult,
		logger:       opts.Logger,
		workers:      make(map[string]chan transport.InboundEvent),
	}, nil
}

// Run consumes events until the channel closes or ctx is done.
func (p *Pipeline) Run(ctx context.Context, events <-chan transport.InboundEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			p.Handle(ctx, ev)
		}
	}
}

// Handle admits one event through the pipeline. Drops are silent toward the
// sender and logged locally.
func (p *Pipeline) Handle(ctx context.Context, ev transport.InboundEvent) {
	if !p.gate() {
		p.logger.Debug("event_dropped_session_not_connected", "sender", ev.SenderID)
		return
	}
	if p.denylist[ev.SenderID] {
		p.logger.Debug("event_dropped_denylisted", "sender", ev.SenderID)
		return
	}
	if len(p.allowlist) > 0 && !p.allowlist[ev.SenderID] {
		p.logger.Debug("event_dropped_not_allowlisted", "sender", ev.SenderID)
		return
	}
	if !p.dedup.Admit(ev) {
		p.logger.Debug("dedup_drop", "sender", ev.SenderID, "id", ev.ID)
		return
	}
	if !p.global.Allow(ratelimit.GlobalScope) {
		p.logger.Warn("rate_limited", "scope", "global", "sender", ev.SenderID)
		return
	}
	if !p.perSender.Allow(ev.SenderID) {
		p.logger.Warn("rate_limited", "scope", "sender", "sender", ev.SenderID)
		return
	}

	select {
	case p.workerFor(ctx, ev.SenderID) <- ev:
	default:
		p.logger.Warn("sender_queue_full", "sender", ev.SenderID)
	}
}

func (p *Pipeline) workerFor(ctx context.Context, senderID string) chan transport.InboundEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ch, ok := p.workers[senderID]; ok {
		return ch
	}
	ch := make(chan transport.InboundEvent, senderQueueSize)
	p.workers[senderID] = ch

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				select {
				case p.sem <- struct{}{}:
				case <-ctx.Done():
					return
				}
				p.process(ctx, ev)
				<-p.sem
			}
		}
	}()
	return ch
}

func (p *Pipeline) process(ctx context.Context, ev transport.InboundEvent) {
	reply, ok := p.router.Route(ctx, ev)
	if !ok || reply == "" {
		return
	}
	err := p.send(ctx, ev.SenderID, reply)
	if p.onSendResult != nil {
		p.onSendResult(err)
	}
	if err != nil {
		p.logger.Warn("send_failed", "sender", ev.SenderID, "error", err.Error())
	}
}

func toSet(items []string) map[string]bool {
	if len(items) == 0 {
		return nil
	}
	set := make(map[string]bool, len(items))
	for _, item := range items {
		if item != "" {
			set[item] = true
		}
	}
	return set
}
