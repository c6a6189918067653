// Package mcpserver exposes the bridge over the Model Context Protocol so
// an MCP-capable agent can send messages and inspect conversation state.
package mcpserver

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/featherworks/feishu-agent-bridge/internal/data"
	"github.com/featherworks/feishu-agent-bridge/session"
)

// SendFunc delivers a message to a chat and returns an outcome summary.
type SendFunc func(ctx context.Context, chatID, content string) (string, error)

// Server wires the bridge's capabilities into MCP tools.
type Server struct {
	server   *mcp.Server
	send     SendFunc
	sessions *session.Store
	archive  *data.Archive
}

// NewServer builds the MCP server. sessions and archive may be nil; the
// corresponding tools then report that the capability is unavailable.
func NewServer(send SendFunc, sessions *session.Store, archive *data.Archive) *Server {
	s := &Server{
		server: mcp.NewServer(&mcp.Implementation{
			Name:    "feishu-agent-bridge",
			Version: "v1.0.0",
		}, nil),
		send:     send,
		sessions: sessions,
		archive:  archive,
	}
	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "send_message",
		Description: "Send a text message to a Feishu chat. chat_id may be a group chat id (oc_ prefix) or a user open id.",
	}, s.handleSendMessage)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_sessions",
		Description: "List stored conversation sessions with their titles, newest first.",
	}, s.handleListSessions)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_recent_messages",
		Description: "Get recent archived messages for a chat, newest first.",
	}, s.handleGetRecentMessages)
}

// SendMessageInput is the input for the send_message tool.
type SendMessageInput struct {
	ChatID  string `json:"chat_id" jsonschema:"The target chat id or user open id"`
	Content string `json:"content" jsonschema:"The message text to send"`
}

// SendMessageOutput is the output of the send_message tool.
type SendMessageOutput struct {
	Success bool   `json:"success"`
	Outcome string `json:"outcome,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) handleSendMessage(ctx context.Context, req *mcp.CallToolRequest, input SendMessageInput) (*mcp.CallToolResult, SendMessageOutput, error) {
	if s.send == nil {
		return nil, SendMessageOutput{Error: "sending not configured"}, nil
	}
	if input.ChatID == "" {
		return nil, SendMessageOutput{Error: "chat_id is required"}, nil
	}

	outcome, err := s.send(ctx, input.ChatID, input.Content)
	if err != nil {
		return nil, SendMessageOutput{Outcome: outcome, Error: err.Error()}, nil
	}
	return nil, SendMessageOutput{Success: true, Outcome: outcome}, nil
}

// ListSessionsInput is empty.
type ListSessionsInput struct{}

// SessionEntry is one row of the list_sessions result.
type SessionEntry struct {
	Key       string `json:"key"`
	Title     string `json:"title"`
	UpdatedAt string `json:"updated_at"`
}

// ListSessionsOutput is the output of the list_sessions tool.
type ListSessionsOutput struct {
	Sessions []SessionEntry `json:"sessions"`
	Error    string         `json:"error,omitempty"`
}

func (s *Server) handleListSessions(ctx context.Context, req *mcp.CallToolRequest, input ListSessionsInput) (*mcp.CallToolResult, ListSessionsOutput, error) {
	if s.sessions == nil {
		return nil, ListSessionsOutput{Error: "session store not configured"}, nil
	}

	infos, err := s.sessions.ListSessions()
	if err != nil {
		return nil, ListSessionsOutput{Error: err.Error()}, nil
	}

	entries := make([]SessionEntry, 0, len(infos))
	for _, info := range infos {
		entries = append(entries, SessionEntry{
			Key:       info.Key,
			Title:     info.Title,
			UpdatedAt: info.UpdatedAt.Format(time.RFC3339),
		})
	}
	return nil, ListSessionsOutput{Sessions: entries}, nil
}

// GetRecentMessagesInput is the input for the get_recent_messages tool.
type GetRecentMessagesInput struct {
	ChatID string `json:"chat_id" jsonschema:"The chat to read history from"`
	Limit  int    `json:"limit,omitempty" jsonschema:"Maximum number of messages (default 20)"`
}

// ArchivedMessage is one row of the get_recent_messages result.
type ArchivedMessage struct {
	Direction string `json:"direction"`
	SenderID  string `json:"sender_id"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

// GetRecentMessagesOutput is the output of the get_recent_messages tool.
type GetRecentMessagesOutput struct {
	Messages []ArchivedMessage `json:"messages"`
	Error    string            `json:"error,omitempty"`
}

func (s *Server) handleGetRecentMessages(ctx context.Context, req *mcp.CallToolRequest, input GetRecentMessagesInput) (*mcp.CallToolResult, GetRecentMessagesOutput, error) {
	if s.archive == nil {
		return nil, GetRecentMessagesOutput{Error: "archive not configured"}, nil
	}
	if input.ChatID == "" {
		return nil, GetRecentMessagesOutput{Error: "chat_id is required"}, nil
	}

	records, err := s.archive.Recent(ctx, input.ChatID, input.Limit)
	if err != nil {
		return nil, GetRecentMessagesOutput{Error: err.Error()}, nil
	}

	messages := make([]ArchivedMessage, 0, len(records))
	for _, r := range records {
		messages = append(messages, ArchivedMessage{
			Direction: r.Direction,
			SenderID:  r.SenderID,
			Content:   r.Content,
			CreatedAt: r.CreatedAt.Format(time.RFC3339),
		})
	}
	return nil, GetRecentMessagesOutput{Messages: messages}, nil
}

// Run serves MCP over stdio until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}
