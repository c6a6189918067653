package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/featherworks/feishu-agent-bridge/feishu"
)

func main() {
	_ = godotenv.Load()

	appID := os.Getenv("FEISHU_APP_ID")
	appSecret := os.Getenv("FEISHU_APP_SECRET")
	if appID == "" || appSecret == "" {
		fmt.Println("Error: FEISHU_APP_ID and FEISHU_APP_SECRET must be set")
		os.Exit(1)
	}

	if len(os.Args) < 3 {
		fmt.Println("Usage: send-message <chat_id> <text> [media_path ...]")
		os.Exit(1)
	}

	chatID := os.Args[1]
	text := os.Args[2]
	media := os.Args[3:]

	client := feishu.NewClient(appID, appSecret)

	outcome, err := client.Send(context.Background(), feishu.OutboundMessage{
		ChatID: chatID,
		Text:   text,
		Media:  media,
	})
	if outcome != "" {
		fmt.Println(outcome)
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}
