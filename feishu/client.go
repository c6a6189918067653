// Package feishu implements the Feishu/Lark channel adapter core: the
// WebSocket long-connection client, tenant credential cache, inbound media
// fetcher, and outbound message compositor.
package feishu

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	"github.com/larksuite/oapi-sdk-go/v3/event/dispatcher"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	larkws "github.com/larksuite/oapi-sdk-go/v3/ws"
	"github.com/rs/zerolog/log"
)

const defaultBaseURL = "https://open.feishu.cn"

// Event is a vendor-pushed notification of a new chat message. It is
// ephemeral: decoded from the wire payload, handed to the adapter, and
// dropped after forwarding.
type Event struct {
	ID         string
	SenderID   string
	SenderType string // user, bot, app
	ChatID     string
	ChatType   string // p2p, group
	MsgType    string // text, image, audio, file, sticker, ...
	Content    string // raw JSON payload as delivered by Feishu
}

// EventHandler receives decoded events. It is invoked on the goroutine owned
// by the lark WebSocket client and must return quickly without blocking.
type EventHandler func(ev *Event)

// Client wraps the lark SDK client plus the raw HTTP endpoints the SDK does
// not cover (tenant token, file upload, resource download).
type Client struct {
	appID     string
	appSecret string
	baseURL   string
	httpc     *http.Client
	larkCli   *lark.Client
	onEvent   EventHandler
	mediaDir  string

	// mu guards cancel and wsCli, which Start writes while Stop may be
	// called from another goroutine.
	mu     sync.Mutex
	wsCli  *larkws.Client
	cancel context.CancelFunc

	tokens *tokenCache
}

// Option customizes a Client.
type Option func(*Client)

// WithBaseURL overrides the Feishu open-platform base URL. Used in tests.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient overrides the HTTP client used for the raw endpoints.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpc = h }
}

// WithMediaDir sets the directory inbound media is downloaded to.
func WithMediaDir(dir string) Option {
	return func(c *Client) { c.mediaDir = dir }
}

// NewClient creates a Feishu client.
func NewClient(appID, appSecret string, opts ...Option) *Client {
	c := &Client{
		appID:     appID,
		appSecret: appSecret,
		baseURL:   defaultBaseURL,
		httpc:     &http.Client{Timeout: 30 * time.Second},
		mediaDir:  "/tmp/feishu-media",
	}
	for _, opt := range opts {
		opt(c)
	}
	c.tokens = newTokenCache(appID, appSecret, c.baseURL, c.httpc)
	c.larkCli = lark.NewClient(appID, appSecret, lark.WithOpenBaseUrl(c.baseURL))
	return c
}

// OnEvent sets the handler for decoded inbound events.
func (c *Client) OnEvent(handler EventHandler) {
	c.onEvent = handler
}

// Start opens the WebSocket long connection and blocks until the connection
// ends or ctx is cancelled. Reconnection is the lark SDK's own concern; a
// returned error means the transport gave up.
func (c *Client) Start(ctx context.Context) error {
	// The handler must return promptly so the SDK can ACK, otherwise the
	// vendor redelivers the event.
	eventHandler := dispatcher.NewEventDispatcher("", "").
		OnP2MessageReceiveV1(func(ctx context.Context, event *larkim.P2MessageReceiveV1) error {
			c.handleEvent(event)
			return nil
		})

	ctx, cancel := context.WithCancel(ctx)
	wsCli := larkws.NewClient(c.appID, c.appSecret,
		larkws.WithEventHandler(eventHandler),
		larkws.WithLogLevel(larkcore.LogLevelWarn),
	)

	c.mu.Lock()
	c.cancel = cancel
	c.wsCli = wsCli
	c.mu.Unlock()

	log.Info().Msg("starting Feishu WebSocket connection")
	return wsCli.Start(ctx)
}

// Stop tears down the WebSocket connection. Safe to call from any
// goroutine, including before Start.
func (c *Client) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// handleEvent decodes a raw vendor event and passes it to the handler.
// It never panics across the SDK boundary.
func (c *Client) handleEvent(event *larkim.P2MessageReceiveV1) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("panic while decoding Feishu event")
		}
	}()

	raw := event.Event
	if raw == nil || raw.Message == nil || raw.Message.MessageId == nil {
		log.Warn().Msg("malformed Feishu event, skipped")
		return
	}
	msg := raw.Message

	ev := &Event{ID: *msg.MessageId}
	if msg.ChatId != nil {
		ev.ChatID = *msg.ChatId
	}
	if msg.ChatType != nil {
		ev.ChatType = *msg.ChatType
	}
	if msg.MessageType != nil {
		ev.MsgType = *msg.MessageType
	}
	if msg.Content != nil {
		ev.Content = *msg.Content
	}
	if raw.Sender != nil {
		if raw.Sender.SenderType != nil {
			ev.SenderType = *raw.Sender.SenderType
		}
		if raw.Sender.SenderId != nil && raw.Sender.SenderId.OpenId != nil {
			ev.SenderID = *raw.Sender.SenderId.OpenId
		}
	}
	if ev.SenderID == "" {
		ev.SenderID = "unknown"
	}

	if c.onEvent != nil {
		c.onEvent(ev)
	}
}

// AddReaction adds an emoji reaction to a message. Best effort; used to
// signal that a message was seen.
func (c *Client) AddReaction(ctx context.Context, messageID, emojiType string) error {
	req := larkim.NewCreateMessageReactionReqBuilder().
		MessageId(messageID).
		Body(larkim.NewCreateMessageReactionReqBodyBuilder().
			ReactionType(larkim.NewEmojiBuilder().EmojiType(emojiType).Build()).
			Build()).
		Build()

	resp, err := c.larkCli.Im.MessageReaction.Create(ctx, req)
	if err != nil {
		return fmt.Errorf("add reaction: %w", err)
	}
	if !resp.Success() {
		return fmt.Errorf("add reaction: code=%d msg=%s", resp.Code, resp.Msg)
	}
	return nil
}

// ParseTextContent extracts the text field from a text message payload.
// Malformed payloads fall back to the raw content.
func ParseTextContent(content string) string {
	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return content
	}
	return parsed.Text
}

// ExtractResourceKey pulls the media resource key out of an image or file
// message payload. Returns "" when no key is present.
func ExtractResourceKey(content string) string {
	var parsed map[string]any
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return ""
	}
	for _, field := range []string{"image_key", "file_key", "imageKey", "fileKey"} {
		if v, ok := parsed[field].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
