package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dkeye/Coderoom/internal/domain"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestDocumentSaveLoad(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_, ok, err := db.LoadDocument(ctx, "r1")
	require.NoError(t, err)
	require.False(t, ok, "unknown room has no document")

	doc := domain.Document{
		Content:   "package main\n",
		Language:  "go",
		UpdatedAt: time.Unix(0, 1724500000000000000),
	}
	require.NoError(t, db.SaveDocument(ctx, "r1", doc))

	got, ok, err := db.LoadDocument(ctx, "r1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, doc.Content, got.Content)
	require.Equal(t, doc.Language, got.Language)
	require.True(t, doc.UpdatedAt.Equal(got.UpdatedAt))
}

func TestDocumentUpsert(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.SaveDocument(ctx, "r1", domain.Document{Content: "v1", UpdatedAt: time.Now()}))
	require.NoError(t, db.SaveDocument(ctx, "r1", domain.Document{Content: "v2", UpdatedAt: time.Now()}))

	got, ok, err := db.LoadDocument(ctx, "r1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v2", got.Content, "later write wins")
}

func TestRecentMessagesOrderAndLimit(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	base := time.Unix(0, 1724500000000000000)

	for i := 0; i < 60; i++ {
		require.NoError(t, db.SaveMessage(ctx, domain.ChatMessage{
			ID:      fmt.Sprintf("m%02d", i),
			Room:    "r1",
			Sender:  "alice",
			Content: fmt.Sprintf("msg %d", i),
			Kind:    domain.ChatText,
			SentAt:  base.Add(time.Duration(i) * time.Second),
		}))
	}
	// Another room's traffic must not bleed in.
	require.NoError(t, db.SaveMessage(ctx, domain.ChatMessage{
		ID: "other", Room: "r2", Sender: "bob", Kind: domain.ChatText, SentAt: base,
	}))

	msgs, err := db.RecentMessages(ctx, "r1", 50)
	require.NoError(t, err)
	require.Len(t, msgs, 50)
	require.Equal(t, "m10", msgs[0].ID, "oldest surviving message first")
	require.Equal(t, "m59", msgs[49].ID)
	for _, m := range msgs {
		require.Equal(t, domain.RoomID("r1"), m.Room)
	}
}

func TestRecentMessagesEmptyRoom(t *testing.T) {
	db := openTestDB(t)
	msgs, err := db.RecentMessages(context.Background(), "empty", 50)
	require.NoError(t, err)
	require.Empty(t, msgs)
}
