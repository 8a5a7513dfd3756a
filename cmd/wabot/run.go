package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/AdeKurniawannnn/wabot/internal/bot"
	"github.com/AdeKurniawannnn/wabot/internal/dedup"
	"github.com/AdeKurniawannnn/wabot/internal/history"
	"github.com/AdeKurniawannnn/wabot/internal/pipeline"
	"github.com/AdeKurniawannnn/wabot/internal/ratelimit"
	"github.com/AdeKurniawannnn/wabot/internal/session"
	"github.com/AdeKurniawannnn/wabot/internal/statusserver"
	"github.com/AdeKurniawannnn/wabot/internal/transport"
	"github.com/AdeKurniawannnn/wabot/internal/transport/console"
	"github.com/AdeKurniawannnn/wabot/llm"
	"github.com/AdeKurniawannnn/wabot/providers/openrouter"
)

// degradeThreshold is how many consecutive send failures flip the session to
// degraded.
const degradeThreshold = 3

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the chat gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := loggerFromViper()
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return runGateway(ctx, cmd, logger)
		},
	}

	cmd.Flags().String("transport", "console", "Transport driver (console).")
	cmd.Flags().String("commands-file", "", "YAML file overlaying the built-in command table.")
	cmd.Flags().Bool("status-enabled", false, "Serve connection status over HTTP/websocket.")
	cmd.Flags().String("status-bind", "", "Status server bind address.")

	return cmd
}

func runGateway(ctx context.Context, cmd *cobra.Command, logger *slog.Logger) error {
	table, err := bot.LoadTableFile(flagOrViperString(cmd, "commands-file", "commands.file"))
	if err != nil {
		return err
	}

	aliases := viper.GetStringMapString("model.aliases")
	if len(aliases) == 0 {
		return fmt.Errorf("model.aliases must not be empty")
	}

	store := history.New(
		viper.GetInt("context.max_turns"),
		history.WithIdleTTL(viper.GetDuration("context.idle_ttl")),
	)
	store.StartJanitor(ctx, time.Minute)

	var client llm.Client
	apiKey := strings.TrimSpace(viper.GetString("api_key"))
	if apiKey != "" {
		c := openrouter.New(viper.GetString("endpoint"), apiKey)
		c.Referer = viper.GetString("app.referer")
		c.AppTitle = viper.GetString("app.title")
		client = c
	} else {
		logger.Warn("api_key_not_configured", "hint", "AI replies disabled; static commands still work")
	}

	var router *bot.Router
	responder, err := bot.NewResponder(bot.ResponderOptions{
		Client:       client,
		History:      store,
		Model:        func() string { return router.ActiveModel() },
		SystemPrompt: viper.GetString("model.system_prompt"),
		MaxTokens:    viper.GetInt("model.max_tokens"),
		Temperature:  viper.GetFloat64("model.temperature"),
		Timeout:      viper.GetDuration("model.request_timeout"),
		Logger:       logger,
	})
	if err != nil {
		return err
	}
	router, err = bot.NewRouter(bot.RouterOptions{
		History:      store,
		Responder:    responder,
		Table:        table,
		Aliases:      aliases,
		ActiveAlias:  viper.GetString("model.active"),
		AIPrefix:     viper.GetString("commands.ai_prefix"),
		IgnoreGroups: viper.GetBool("commands.ignore_groups"),
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	tr, err := buildTransport(flagOrViperString(cmd, "transport", "transport"))
	if err != nil {
		return err
	}

	sinks := transport.MultiSink{logSink(logger)}
	if flagOrViperBool(cmd, "status-enabled", "status.enabled") {
		statusSrv := statusserver.New(logger)
		sinks = append(sinks, statusSrv)
		bind := flagOrViperString(cmd, "status-bind", "status.bind")
		go func() {
			if err := statusSrv.Serve(ctx, bind); err != nil {
				logger.Error("status_server_failed", "error", err.Error())
			}
		}()
	}

	machine := session.New(session.Config{
		MaxAttempts:    viper.GetInt("reconnect.max_attempts"),
		ReconnectDelay: viper.GetDuration("reconnect.delay"),
		PairingTimeout: viper.GetDuration("pairing.timeout"),
		Exhaustion:     session.ExhaustionPolicy(viper.GetString("reconnect.exhaustion_policy")),
	}, tr, sinks, logger)

	var sendFailures atomic.Int32
	pipe, err := pipeline.New(pipeline.Options{
		Dedup:          dedup.New(viper.GetDuration("dedup.horizon")),
		Global:         ratelimit.New(viper.GetInt("rate_limit.global_per_minute"), time.Minute),
		PerSender:      ratelimit.New(viper.GetInt("rate_limit.per_sender_max"), viper.GetDuration("rate_limit.per_sender_window")),
		Router:         router,
		Send:           tr.SendText,
		Gate:           func() bool { return machine.Connected() },
		Allowlist:      viper.GetStringSlice("senders.allowlist"),
		Denylist:       viper.GetStringSlice("senders.denylist"),
		MaxConcurrency: viper.GetInt("pipeline.max_concurrency"),
		OnSendResult: func(err error) {
			if err != nil {
				if sendFailures.Add(1) >= degradeThreshold {
					machine.Degrade("repeated send failures")
				}
				return
			}
			sendFailures.Store(0)
			machine.Recover()
		},
		Logger: logger,
	})
	if err != nil {
		return err
	}

	logger.Info("gateway_start",
		"transport", flagOrViperString(cmd, "transport", "transport"),
		"model_active", router.ActiveModel(),
		"max_attempts", viper.GetInt("reconnect.max_attempts"),
		"global_per_minute", viper.GetInt("rate_limit.global_per_minute"),
	)

	machine.Start(ctx)
	pipe.Run(ctx, tr.Events())

	machine.Stop()
	if err := tr.Close(); err != nil {
		logger.Warn("transport_close_failed", "error", err.Error())
	}
	logger.Info("gateway_stopped")
	return nil
}

func buildTransport(name string) (transport.Transport, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "console":
		return console.New(os.Stdin, os.Stdout), nil
	default:
		return nil, fmt.Errorf("unknown transport %q (available: console)", name)
	}
}

func logSink(logger *slog.Logger) transport.StatusSink {
	return transport.SinkFunc(func(ev transport.StatusEvent) {
		switch ev.Kind {
		case transport.StatusPairingRequired:
			logger.Info("status_event", "kind", string(ev.Kind), "qr_len", len(ev.Payload))
		default:
			logger.Info("status_event", "kind", string(ev.Kind), "reason", ev.Reason)
		}
	})
}
