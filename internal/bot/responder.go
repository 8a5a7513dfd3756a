package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/AdeKurniawannnn/wabot/internal/history"
	"github.com/AdeKurniawannnn/wabot/llm"
)

const (
	msgAIUnavailable = "❌ *AI Tidak Tersedia*\n\n" +
		"Maaf, OpenRouter belum dikonfigurasi dengan benar.\n" +
		"Pastikan api_key sudah diset di konfigurasi.\n\n" +
		"Silakan gunakan perintah bot biasa:\n" +
		"!menu - untuk melihat daftar perintah\n" +
		"!help - untuk bantuan"

	msgAITimeout = "❌ *AI Timeout*\n\n" +
		"Maaf, respons dari AI terlalu lama. Silakan coba lagi dengan pertanyaan " +
		"yang lebih singkat atau gunakan perintah bot biasa (!menu)"

	msgAIQuota = "❌ *Kuota AI Habis*\n\n" +
		"Maaf, kuota API OpenRouter sudah habis.\n\n" +
		"Silakan gunakan perintah bot biasa:\n" +
		"!menu - untuk melihat daftar perintah\n" +
		"!help - untuk bantuan"

	msgAIKey = "❌ *Error API Key*\n\n" +
		"Maaf, terjadi masalah dengan API key OpenRouter.\n\n" +
		"Silakan gunakan perintah bot biasa:\n" +
		"!menu - untuk melihat daftar perintah\n" +
		"!help - untuk bantuan"

	msgAIErrorFmt = "❌ *AI Error*\n\n" +
		"Maaf, terjadi error saat berkomunikasi dengan AI: %v\n\n" +
		"Silakan coba lagi nanti atau gunakan perintah bot biasa (!menu)"
)

// failureClasses maps a failure signal to its fixed user-facing reply. Order
// matters: the first matching substring wins.
var failureClasses = []struct {
	substr string
	reply  string
}{
	{"timeout", msgAITimeout},
	{"deadline exceeded", msgAITimeout},
	{"quota", msgAIQuota},
	{"credits", msgAIQuota},
	{"unauthorized", msgAIKey},
	{"invalid", msgAIKey},
}

type ResponderOptions struct {
	Client       llm.Client // nil when no credential is configured
	History      *history.Store
	Model        func() string
	SystemPrompt string
	MaxTokens    int
	Temperature  float64
	Timeout      time.Duration
	Logger       *slog.Logger
}

// Responder calls the remote model with the sender's trimmed context and
// classifies failures into user-facing messages. No retry happens here; a
// conversational channel cannot surface structured faults, so every failure
// class gets a short explanatory reply instead.
type Responder struct {
	client       llm.Client
	history      *history.Store
	model        func() string
	systemPrompt string
	maxTokens    int
	temperature  float64
	timeout      time.Duration
	logger       *slog.Logger
}

func NewResponder(opts ResponderOptions) (*Responder, error) {
	if opts.History == nil {
		return nil, fmt.Errorf("history store is required")
	}
	if opts.Model == nil {
		return nil, fmt.Errorf("model selector is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Responder{
		client:       opts.Client,
		history:      opts.History,
		model:        opts.Model,
		systemPrompt: opts.SystemPrompt,
		maxTokens:    opts.MaxTokens,
		temperature:  opts.Temperature,
		timeout:      opts.Timeout,
		logger:       opts.Logger,
	}, nil
}

// Respond answers a free-text question for the sender. The user turn is
// recorded before the call; the assistant turn only lands on success, and is
// discarded when a reset raced the call.
func (r *Responder) Respond(ctx context.Context, senderID, text string) string {
	if r.client == nil {
		return msgAIUnavailable
	}

	r.history.Append(senderID, llm.RoleUser, text)
	version := r.history.Version(senderID)

	messages := make([]llm.Message, 0, history.DefaultMaxTurns+1)
	if r.systemPrompt != "" {
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: r.systemPrompt})
	}
	messages = append(messages, r.history.Get(senderID)...)

	model := r.model()
	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.client.Chat(callCtx, llm.Request{
		Model:       model,
		Messages:    messages,
		MaxTokens:   r.maxTokens,
		Temperature: r.temperature,
	})
	if err != nil {
		r.logger.Warn("model_call_failed", "sender", senderID, "model", model, "error", err.Error())
		return classifyFailure(err)
	}

	r.logger.Info("model_call_ok",
		"sender", senderID,
		"model", model,
		"input_tokens", res.Usage.InputTokens,
		"output_tokens", res.Usage.OutputTokens,
		"duration", res.Duration.String(),
	)

	if !r.history.AppendIfVersion(senderID, version, llm.RoleAssistant, res.Text) {
		r.logger.Debug("assistant_turn_dropped_after_reset", "sender", senderID)
	}
	return res.Text
}

func classifyFailure(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return msgAITimeout
	}
	cause := strings.ToLower(err.Error())
	for _, class := range failureClasses {
		if strings.Contains(cause, class.substr) {
			return class.reply
		}
	}
	return fmt.Sprintf(msgAIErrorFmt, err)
}
