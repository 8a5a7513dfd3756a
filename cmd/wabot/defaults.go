package main

import (
	"time"

	"github.com/spf13/viper"
)

func initViperDefaults() {
	// Remote model (OpenRouter speaks the OpenAI wire format).
	viper.SetDefault("provider", "openrouter")
	viper.SetDefault("endpoint", "https://openrouter.ai/api")
	viper.SetDefault("api_key", "")
	viper.SetDefault("app.referer", "https://github.com/AdeKurniawannnn/wabot")
	viper.SetDefault("app.title", "WhatsApp Bot")

	viper.SetDefault("model.active", "gpt35")
	viper.SetDefault("model.aliases", map[string]string{
		"gpt35":   "openai/gpt-3.5-turbo",
		"gpt4":    "openai/gpt-4",
		"claude":  "anthropic/claude-2",
		"mistral": "mistralai/mistral-7b",
	})
	viper.SetDefault("model.max_tokens", 500)
	viper.SetDefault("model.temperature", 0.3)
	viper.SetDefault("model.request_timeout", 30*time.Second)
	viper.SetDefault("model.system_prompt",
		"Kamu adalah asisten AI yang membantu di WhatsApp. Berikan jawaban yang "+
			"singkat, jelas, dan dalam Bahasa Indonesia. Gunakan emoji yang sesuai "+
			"untuk membuat chat lebih menarik.")

	// Session supervision.
	viper.SetDefault("reconnect.max_attempts", 5)
	viper.SetDefault("reconnect.delay", 5*time.Second)
	viper.SetDefault("reconnect.exhaustion_policy", "exit")
	viper.SetDefault("pairing.timeout", 3*time.Minute)

	// Admission control.
	viper.SetDefault("rate_limit.global_per_minute", 20)
	viper.SetDefault("rate_limit.per_sender_max", 10)
	viper.SetDefault("rate_limit.per_sender_window", 5*time.Minute)
	viper.SetDefault("dedup.horizon", 10*time.Minute)

	// Conversation context.
	viper.SetDefault("context.max_turns", 10)
	viper.SetDefault("context.idle_ttl", 0*time.Second)

	// Command surface.
	viper.SetDefault("commands.file", "")
	viper.SetDefault("commands.ignore_groups", true)
	viper.SetDefault("commands.ai_prefix", "!ai ")
	viper.SetDefault("senders.allowlist", []string{})
	viper.SetDefault("senders.denylist", []string{})

	// Pipeline.
	viper.SetDefault("pipeline.max_concurrency", 3)

	// Status broadcast.
	viper.SetDefault("status.enabled", false)
	viper.SetDefault("status.bind", "127.0.0.1:3000")
}
