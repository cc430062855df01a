package session

import (
	"context"
	"testing"
	"time"

	"chatsync/internal/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func msgAt(id, sender string, ts time.Time) entity.Message {
	return entity.Message{Id: id, SenderId: sender, Text: id, Timestamp: ts, ReadBy: []string{sender}}
}

func TestGroupMessagesLabels(t *testing.T) {
	now := time.Date(2024, 5, 3, 15, 0, 0, 0, time.UTC)
	messages := []entity.Message{
		msgAt("m1", "alice", time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)),
		msgAt("m2", "alice", now.AddDate(0, 0, -1)),
		msgAt("m3", "bob", now.Add(-time.Hour)),
	}

	items := GroupMessages(messages, now)
	require.Len(t, items, 6)
	assert.Equal(t, ItemDate, items[0].Type)
	assert.Equal(t, "January 15, 2024", items[0].Label)
	assert.Equal(t, "Yesterday", items[2].Label)
	assert.Equal(t, "Today", items[4].Label)
	assert.Equal(t, "m3", items[5].Message.Id)
}

func TestGroupMessagesOneSeparatorPerDayChange(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	messages := []entity.Message{
		msgAt("m1", "alice", time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)),
		msgAt("m2", "bob", time.Date(2024, 1, 1, 11, 0, 0, 0, time.UTC)),
		msgAt("m3", "alice", time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)),
	}

	items := GroupMessages(messages, now)
	require.Len(t, items, 5)
	assert.Equal(t, "January 1, 2024", items[0].Label)
	assert.Equal(t, ItemMessage, items[1].Type)
	assert.Equal(t, ItemMessage, items[2].Type)
	assert.Equal(t, "January 2, 2024", items[3].Label)
	assert.Equal(t, ItemMessage, items[4].Type)
}

func TestGroupMessagesSameDayHasSingleSeparator(t *testing.T) {
	now := time.Date(2024, 5, 3, 15, 0, 0, 0, time.UTC)
	messages := []entity.Message{
		msgAt("m1", "alice", now.Add(-2*time.Hour)),
		msgAt("m2", "bob", now.Add(-time.Hour)),
	}

	items := GroupMessages(messages, now)
	require.Len(t, items, 3)
	assert.Equal(t, ItemDate, items[0].Type)
	assert.Equal(t, "Today", items[0].Label)
}

func TestGroupMessagesIsDeterministic(t *testing.T) {
	now := time.Date(2024, 5, 3, 15, 0, 0, 0, time.UTC)
	messages := []entity.Message{
		msgAt("m1", "alice", time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)),
		msgAt("m2", "bob", now),
	}

	first := GroupMessages(messages, now)
	second := GroupMessages(messages, now)
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Type, second[i].Type)
		assert.Equal(t, first[i].Label, second[i].Label)
	}
}

func TestGroupMessagesEmpty(t *testing.T) {
	items := GroupMessages(nil, time.Now())
	assert.Empty(t, items)
}

func TestShouldAutoScroll(t *testing.T) {
	assert.True(t, ShouldAutoScroll(0))
	assert.True(t, ShouldAutoScroll(50))
	assert.False(t, ShouldAutoScroll(51))
	assert.False(t, ShouldAutoScroll(400))
}

func TestDuplicateSnapshotIssuesOneReceipt(t *testing.T) {
	repo := newFakeMsgRepo()
	stream := NewMessageStream(repo, "alice_bob", "alice", zap.NewNop())

	done := make(chan struct{})
	defer close(done)
	cancel := stream.Run(context.Background(), func([]entity.Message) {}, done)
	defer cancel()

	incoming := []entity.Message{
		{Id: "m1", SenderId: "bob", Text: "hi", Timestamp: time.Now(), ReadBy: []string{"bob"}},
	}
	repo.watch <- incoming
	repo.watch <- incoming // identical redelivery

	select {
	case id := <-repo.reads:
		assert.Equal(t, "m1", id)
	case <-time.After(2 * time.Second):
		t.Fatal("no read receipt issued")
	}

	select {
	case <-repo.reads:
		t.Fatal("duplicate snapshot produced a second receipt")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestNoReceiptForOwnOrAlreadyReadMessages(t *testing.T) {
	repo := newFakeMsgRepo()
	stream := NewMessageStream(repo, "alice_bob", "alice", zap.NewNop())

	done := make(chan struct{})
	defer close(done)
	cancel := stream.Run(context.Background(), func([]entity.Message) {}, done)
	defer cancel()

	repo.watch <- []entity.Message{
		{Id: "mine", SenderId: "alice", ReadBy: []string{"alice"}},
		{Id: "seen", SenderId: "bob", ReadBy: []string{"bob", "alice"}},
	}

	select {
	case id := <-repo.reads:
		t.Fatalf("unexpected receipt for %s", id)
	case <-time.After(100 * time.Millisecond):
	}
}
