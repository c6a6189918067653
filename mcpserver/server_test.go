package mcpserver

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/featherworks/feishu-agent-bridge/session"
)

func TestSendMessageTool(t *testing.T) {
	var gotChat, gotContent string
	send := func(ctx context.Context, chatID, content string) (string, error) {
		gotChat, gotContent = chatID, content
		return "sent 1 message", nil
	}
	s := NewServer(send, nil, nil)

	_, out, err := s.handleSendMessage(context.Background(), nil, SendMessageInput{
		ChatID:  "oc_chat",
		Content: "hello",
	})
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, "sent 1 message", out.Outcome)
	assert.Equal(t, "oc_chat", gotChat)
	assert.Equal(t, "hello", gotContent)
}

func TestSendMessageToolErrors(t *testing.T) {
	s := NewServer(func(ctx context.Context, chatID, content string) (string, error) {
		return "sent 0 messages", errors.New("vendor rejected")
	}, nil, nil)

	_, out, err := s.handleSendMessage(context.Background(), nil, SendMessageInput{ChatID: "oc_chat"})
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Equal(t, "vendor rejected", out.Error)

	_, out, err = s.handleSendMessage(context.Background(), nil, SendMessageInput{})
	require.NoError(t, err)
	assert.Equal(t, "chat_id is required", out.Error)
}

func TestListSessionsTool(t *testing.T) {
	store, err := session.NewStore(t.TempDir())
	require.NoError(t, err)
	sess, err := store.GetOrCreate("feishu:oc_chat")
	require.NoError(t, err)
	sess.AddMessage("user", "what is the weather")
	require.NoError(t, store.Save(sess))

	s := NewServer(nil, store, nil)
	_, out, err := s.handleListSessions(context.Background(), nil, ListSessionsInput{})
	require.NoError(t, err)
	require.Len(t, out.Sessions, 1)
	assert.Equal(t, "feishu:oc_chat", out.Sessions[0].Key)
	assert.Equal(t, "what is the weather", out.Sessions[0].Title)
}

func TestToolsReportMissingCapabilities(t *testing.T) {
	s := NewServer(nil, nil, nil)

	_, sendOut, _ := s.handleSendMessage(context.Background(), nil, SendMessageInput{ChatID: "oc_chat"})
	assert.Equal(t, "sending not configured", sendOut.Error)

	_, listOut, _ := s.handleListSessions(context.Background(), nil, ListSessionsInput{})
	assert.Equal(t, "session store not configured", listOut.Error)

	_, histOut, _ := s.handleGetRecentMessages(context.Background(), nil, GetRecentMessagesInput{ChatID: "oc_chat"})
	assert.Equal(t, "archive not configured", histOut.Error)
}
