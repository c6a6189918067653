package main

import (
	"context"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/featherworks/feishu-agent-bridge/feishu"
	"github.com/featherworks/feishu-agent-bridge/internal/conf"
	"github.com/featherworks/feishu-agent-bridge/internal/data"
	"github.com/featherworks/feishu-agent-bridge/mcpserver"
	"github.com/featherworks/feishu-agent-bridge/session"
)

func main() {
	_ = godotenv.Load()

	cfg := conf.LoadFromEnv()

	// Stdout carries the MCP protocol; all logging goes to stderr.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})

	if cfg.Feishu.AppID == "" || cfg.Feishu.AppSecret == "" {
		log.Fatal().Msg("FEISHU_APP_ID and FEISHU_APP_SECRET are required")
	}

	client := feishu.NewClient(cfg.Feishu.AppID, cfg.Feishu.AppSecret,
		feishu.WithMediaDir(cfg.Feishu.MediaDir))

	sessions, err := session.NewStore(cfg.Session.Dir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open session store")
	}

	archive, err := data.NewArchive(cfg.Archive.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open message archive")
	}
	defer archive.Close()

	send := func(ctx context.Context, chatID, content string) (string, error) {
		return client.Send(ctx, feishu.OutboundMessage{ChatID: chatID, Text: content})
	}

	srv := mcpserver.NewServer(send, sessions, archive)
	if err := srv.Run(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("mcp server exited")
	}
}
