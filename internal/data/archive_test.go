package data

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestArchive(t *testing.T) *Archive {
	t.Helper()
	a, err := NewArchive(filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func TestRecordAndRecent(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()

	base := time.Unix(1700000000, 0)
	for i, content := range []string{"first", "second", "third"} {
		err := a.Record(ctx, &Record{
			MsgID:     "m" + string(rune('1'+i)),
			Direction: DirectionInbound,
			Channel:   "feishu",
			ChatID:    "oc_chat",
			SenderID:  "ou_user",
			Content:   content,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	records, err := a.Recent(ctx, "oc_chat", 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "third", records[0].Content)
	assert.Equal(t, "second", records[1].Content)
}

func TestDuplicateMsgIDIgnored(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()

	rec := &Record{
		MsgID:     "m1",
		Direction: DirectionInbound,
		Channel:   "feishu",
		ChatID:    "oc_chat",
		SenderID:  "ou_user",
		Content:   "hello",
		CreatedAt: time.Now(),
	}
	require.NoError(t, a.Record(ctx, rec))
	require.NoError(t, a.Record(ctx, rec))

	records, err := a.Recent(ctx, "oc_chat", 10)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestOutboundRecordsNeverCollide(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()

	for _, content := range []string{"reply one", "reply two"} {
		err := a.Record(ctx, &Record{
			Direction: DirectionOutbound,
			Channel:   "feishu",
			ChatID:    "oc_chat",
			SenderID:  "bot",
			Content:   content,
			CreatedAt: time.Now(),
		})
		require.NoError(t, err)
	}

	records, err := a.Recent(ctx, "oc_chat", 10)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestRecentEmptyChat(t *testing.T) {
	a := openTestArchive(t)
	records, err := a.Recent(context.Background(), "oc_none", 5)
	require.NoError(t, err)
	assert.Empty(t, records)
}
