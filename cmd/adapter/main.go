package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/featherworks/feishu-agent-bridge/agent"
	"github.com/featherworks/feishu-agent-bridge/feishu"
	"github.com/featherworks/feishu-agent-bridge/internal/bus"
	"github.com/featherworks/feishu-agent-bridge/internal/conf"
	"github.com/featherworks/feishu-agent-bridge/internal/data"
	"github.com/featherworks/feishu-agent-bridge/internal/server"
	"github.com/featherworks/feishu-agent-bridge/internal/service"
	"github.com/featherworks/feishu-agent-bridge/session"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file found, using environment variables")
	}

	cfg := conf.LoadFromEnv()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})
	}

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	archive, err := data.NewArchive(cfg.Archive.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open message archive")
	}
	defer archive.Close()

	sessions, err := session.NewStore(cfg.Session.Dir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open session store")
	}

	client := feishu.NewClient(cfg.Feishu.AppID, cfg.Feishu.AppSecret,
		feishu.WithMediaDir(cfg.Feishu.MediaDir))

	b := bus.New()
	srv := server.NewFeishuServer(client, b, archive, cfg.Feishu.MessageTitle)

	cleanup := service.NewMediaCleanup(cfg.Feishu.MediaDir,
		time.Duration(cfg.Cleanup.MaxAgeHours)*time.Hour, cfg.Cleanup.Schedule)
	if err := cleanup.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start media cleanup")
	}
	defer cleanup.Stop()

	var responder *agent.Client
	if cfg.Agent.APIKey != "" {
		responder = agent.NewClient(cfg.Agent.APIKey, cfg.Agent.BaseURL,
			cfg.Agent.Model, cfg.Agent.SystemPrompt)
	} else {
		log.Warn().Msg("AGENT_API_KEY not set, inbound messages are logged but not answered")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go runAgentLoop(ctx, b, sessions, responder)

	if err := srv.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start bridge")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("shutting down")
	srv.Stop()
	cancel()
	b.Close()
}

// runAgentLoop consumes inbound messages, produces replies, and publishes
// them back to the channel that delivered the message.
func runAgentLoop(ctx context.Context, b *bus.MessageBus, sessions *session.Store, responder *agent.Client) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-b.Inbound:
			if !ok {
				return
			}
			handleInbound(ctx, b, sessions, responder, msg)
		}
	}
}

func handleInbound(ctx context.Context, b *bus.MessageBus, sessions *session.Store, responder *agent.Client, msg bus.InboundMessage) {
	log.Info().
		Str("channel", msg.Channel).
		Str("chat_id", msg.ChatID).
		Str("sender_id", msg.SenderID).
		Msg("inbound message")

	if responder == nil {
		return
	}

	sess, err := sessions.GetOrCreate(msg.SessionKey())
	if err != nil {
		log.Error().Err(err).Msg("failed to load session")
		return
	}

	sess.AddMessage("user", msg.Content)
	reply, err := responder.Reply(ctx, sess.Messages, msg.Content)
	if err != nil {
		log.Error().Err(err).Msg("agent reply failed")
		return
	}
	sess.AddMessage("assistant", reply)

	if err := sessions.Save(sess); err != nil {
		log.Warn().Err(err).Msg("failed to persist session")
	}

	b.PublishOutbound(bus.OutboundMessage{
		Channel: msg.Channel,
		ChatID:  msg.ChatID,
		Content: reply,
	})
}
