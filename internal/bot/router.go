// Package bot routes admitted inbound events to static command replies or the
// model responder, and owns the process-wide active model selection.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/AdeKurniawannnn/wabot/internal/history"
	"github.com/AdeKurniawannnn/wabot/internal/transport"
)

const (
	resetCommand = "!reset"
	modelCommand = "!model"

	DefaultAIPrefix = "!ai "
)

const (
	msgResetDone = "🔄 History chat dengan AI telah direset!"
	msgApology   = "❌ Maaf, terjadi error. Silakan coba lagi."
)

type RouterOptions struct {
	History      *history.Store
	Responder    *Responder
	Table        Table
	Aliases      map[string]string // alias -> provider model id
	ActiveAlias  string
	AIPrefix     string
	IgnoreGroups bool
	StartedAt    time.Time
	Logger       *slog.Logger
	Now          func() time.Time
}

type Router struct {
	history      *history.Store
	responder    *Responder
	commands     map[string]string
	keywords     map[string]string
	aliases      map[string]string
	aiPrefix     string
	ignoreGroups bool
	startedAt    time.Time
	logger       *slog.Logger
	nowFn        func() time.Time

	mu          sync.Mutex
	activeModel string
}

func NewRouter(opts RouterOptions) (*Router, error) {
	if opts.History == nil {
		return nil, fmt.Errorf("history store is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.AIPrefix == "" {
		opts.AIPrefix = DefaultAIPrefix
	}
	if opts.StartedAt.IsZero() {
		opts.StartedAt = opts.Now()
	}
	if opts.Table.Commands == nil && opts.Table.Keywords == nil {
		opts.Table = DefaultTable()
	}

	active := ""
	if opts.ActiveAlias != "" {
		id, ok := opts.Aliases[opts.ActiveAlias]
		if !ok {
			return nil, fmt.Errorf("model.active %q is not a configured alias", opts.ActiveAlias)
		}
		active = id
	}

	return &Router{
		history:      opts.History,
		responder:    opts.Responder,
		commands:     opts.Table.Commands,
		keywords:     opts.Table.Keywords,
		aliases:      opts.Aliases,
		aiPrefix:     strings.ToLower(opts.AIPrefix),
		ignoreGroups: opts.IgnoreGroups,
		startedAt:    opts.StartedAt,
		logger:       opts.Logger,
		nowFn:        opts.Now,
		activeModel:  active,
	}, nil
}

// ActiveModel returns the provider model id currently selected. In-flight
// model calls that captured an older value keep it; that race is accepted.
func (r *Router) ActiveModel() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activeModel
}

// Route resolves one admitted event to a reply. ok is false when the event
// produces no reply at all (group traffic, unmatched text with no AI
// fallback). A panicking handler is answered with a generic apology so one
// bad message cannot kill the pipeline.
func (r *Router) Route(ctx context.Context, ev transport.InboundEvent) (reply string, ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("router_handler_panic", "sender", ev.SenderID, "panic", fmt.Sprint(rec))
			reply, ok = msgApology, true
		}
	}()

	if ev.IsGroup && r.ignoreGroups {
		r.logger.Debug("group_message_ignored", "sender", ev.SenderID)
		return "", false
	}

	body := strings.TrimSpace(ev.Body)
	lower := strings.ToLower(body)
	if lower == "" {
		return "", false
	}

	if lower == resetCommand {
		r.history.Reset(ev.SenderID)
		return msgResetDone, true
	}

	if lower == modelCommand || strings.HasPrefix(lower, modelCommand+" ") {
		alias := strings.TrimSpace(strings.TrimPrefix(lower, modelCommand))
		return r.switchModel(alias), true
	}

	// The static table always wins over model delegation; first word, exact
	// match, no fuzzy lookup.
	word := lower
	if i := strings.IndexByte(lower, ' '); i >= 0 {
		word = lower[:i]
	}
	if tmpl, found := r.commands[word]; found {
		return expandTemplate(tmpl, r.nowFn(), r.nowFn().Sub(r.startedAt), r.ActiveModel()), true
	}

	if strings.HasPrefix(lower, r.aiPrefix) {
		question := strings.TrimSpace(body[len(r.aiPrefix):])
		if question == "" {
			return "Gunakan: !ai [pertanyaan]", true
		}
		if r.responder == nil {
			return "", false
		}
		return r.responder.Respond(ctx, ev.SenderID, question), true
	}

	if msg, found := r.keywords[lower]; found {
		return msg, true
	}

	return "", false
}

func (r *Router) switchModel(alias string) string {
	if id, found := r.aliases[alias]; found {
		r.mu.Lock()
		r.activeModel = id
		r.mu.Unlock()
		return fmt.Sprintf("✅ Model AI diubah ke: %s", id)
	}

	names := make([]string, 0, len(r.aliases))
	for name := range r.aliases {
		names = append(names, name)
	}
	sort.Strings(names)
	return fmt.Sprintf("❌ Model tidak valid. Model yang tersedia:\n%s", strings.Join(names, ", "))
}
