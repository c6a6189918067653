// Package agent wraps an OpenAI-compatible chat completion API to produce
// replies from conversation history.
package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/featherworks/feishu-agent-bridge/session"
)

const (
	defaultModel        = "gpt-4o-mini"
	defaultSystemPrompt = "You are a helpful assistant reachable through a chat channel. Keep replies concise."

	// historyWindow bounds how much history goes into each request.
	historyWindow = 20

	requestTimeout = 60 * time.Second
)

// Client talks to the completion API.
type Client struct {
	client       *openai.Client
	model        string
	systemPrompt string
}

// NewClient creates a client. baseURL may be empty to use the provider
// default; model and systemPrompt fall back to built-in defaults.
func NewClient(apiKey, baseURL, model, systemPrompt string) *Client {
	if model == "" {
		model = defaultModel
	}
	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt
	}

	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}

	return &Client{
		client:       openai.NewClientWithConfig(config),
		model:        model,
		systemPrompt: systemPrompt,
	}
}

// Reply produces the assistant's next turn given prior history and the new
// user message. History already containing the new message is fine; it is
// not appended twice.
func (c *Client) Reply(ctx context.Context, history []session.Message, userMessage string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: c.systemPrompt},
	}

	if n := len(history); n > historyWindow {
		history = history[n-historyWindow:]
	}
	for _, m := range history {
		role := openai.ChatMessageRoleUser
		if m.Role == "assistant" {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}

	if n := len(history); n == 0 || history[n-1].Role != "user" || history[n-1].Content != userMessage {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: userMessage,
		})
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response choices")
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
