package repository

import (
	"context"
	"testing"
	"time"

	"chatsync/infrastructure/store"
	"chatsync/internal/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedMessage(t *testing.T, repo MessageRepository, id, sender, text string, ts time.Time) {
	t.Helper()
	require.NoError(t, repo.Insert(context.Background(), entity.Message{
		Id:             id,
		ConversationId: "alice_bob",
		SenderId:       sender,
		Text:           text,
		Timestamp:      ts,
		ReadBy:         []string{sender},
	}))
}

func TestWatchDeliversAscendingByTimestamp(t *testing.T) {
	repo := NewMessageRepository(store.NewMemStore())

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	seedMessage(t, repo, "m2", "alice", "second", base.Add(time.Minute))
	seedMessage(t, repo, "m1", "bob", "first", base)

	ch, cancel, err := repo.Watch(context.Background(), "alice_bob")
	require.NoError(t, err)
	defer cancel()

	select {
	case messages := <-ch:
		require.Len(t, messages, 2)
		assert.Equal(t, "m1", messages[0].Id)
		assert.Equal(t, "m2", messages[1].Id)
	case <-time.After(2 * time.Second):
		t.Fatal("no messages delivered")
	}
}

func TestAppendReadByIsSetUnion(t *testing.T) {
	repo := NewMessageRepository(store.NewMemStore())
	ctx := context.Background()

	seedMessage(t, repo, "m1", "alice", "hi", time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))

	require.NoError(t, repo.AppendReadBy(ctx, "m1", "bob"))
	require.NoError(t, repo.AppendReadBy(ctx, "m1", "bob"))

	message, exists, err := repo.Get(ctx, "m1")
	require.NoError(t, err)
	require.True(t, exists)
	assert.Equal(t, []string{"alice", "bob"}, message.ReadBy)
}

func TestSoftDeleteClearsContentKeepsPosition(t *testing.T) {
	repo := NewMessageRepository(store.NewMemStore())
	ctx := context.Background()

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	seedMessage(t, repo, "m1", "alice", "first", base)
	seedMessage(t, repo, "m2", "alice", "second", base.Add(time.Minute))

	require.NoError(t, repo.SoftDelete(ctx, "m1"))

	ch, cancel, err := repo.Watch(ctx, "alice_bob")
	require.NoError(t, err)
	defer cancel()

	select {
	case messages := <-ch:
		require.Len(t, messages, 2, "deleted message keeps its slot")
		assert.Equal(t, "m1", messages[0].Id)
		assert.True(t, messages[0].IsDeleted)
		assert.Empty(t, messages[0].Text)
		assert.Empty(t, messages[0].AttachmentUrls)
	case <-time.After(2 * time.Second):
		t.Fatal("no messages delivered")
	}
}

func TestSetTextRecordsEditedAt(t *testing.T) {
	repo := NewMessageRepository(store.NewMemStore())
	ctx := context.Background()

	seedMessage(t, repo, "m1", "alice", "tpyo", time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))

	editedAt := time.Date(2024, 5, 1, 12, 5, 0, 0, time.UTC)
	require.NoError(t, repo.SetText(ctx, "m1", "typo", editedAt))

	message, _, err := repo.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "typo", message.Text)
	require.NotNil(t, message.EditedAt)
	assert.True(t, message.EditedAt.Equal(editedAt))
}
