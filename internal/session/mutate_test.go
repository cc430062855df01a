package session

import (
	"context"
	"testing"
	"time"

	"chatsync/infrastructure/store"
	"chatsync/internal/entity"
	"chatsync/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newMutator(api *fakeAPI, convRepo repository.ConversationRepository, messages ...entity.Message) *MutationController {
	lookup := func(id string) (entity.Message, bool) {
		for _, m := range messages {
			if m.Id == id {
				return m, true
			}
		}
		return entity.Message{}, false
	}
	last := func() (entity.Message, bool) {
		if len(messages) == 0 {
			return entity.Message{}, false
		}
		return messages[len(messages)-1], true
	}
	return NewMutationController("alice", "alice_bob", api, convRepo, lookup, last, zap.NewNop())
}

func TestEditUnchangedTextIssuesNoRequest(t *testing.T) {
	api := &fakeAPI{}
	m := newMutator(api, nil, entity.Message{Id: "m1", SenderId: "alice", Text: "same"})

	require.NoError(t, m.Edit(context.Background(), "m1", "same"))
	require.NoError(t, m.Edit(context.Background(), "m1", "   "))

	_, edits, _ := api.counts()
	assert.Zero(t, edits)
}

func TestEditRejectsNonAuthor(t *testing.T) {
	api := &fakeAPI{}
	m := newMutator(api, nil, entity.Message{Id: "m1", SenderId: "bob", Text: "theirs"})

	assert.ErrorIs(t, m.Edit(context.Background(), "m1", "mine now"), ErrNotMessageAuthor)
	assert.ErrorIs(t, m.Edit(context.Background(), "missing", "x"), ErrMessageNotFound)
}

func TestEditLastMessageRefreshesSnippet(t *testing.T) {
	mem := store.NewMemStore()
	convRepo := repository.NewConversationRepository(mem)
	ctx := context.Background()

	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, convRepo.RecordMessage(ctx, "alice", "bob",
		entity.MessageSnippet{Text: "before", SenderId: "alice", Timestamp: ts}, 1))

	api := &fakeAPI{}
	m := newMutator(api, convRepo,
		entity.Message{Id: "m0", SenderId: "bob", Text: "earlier"},
		entity.Message{Id: "m1", SenderId: "alice", Text: "before"},
	)

	require.NoError(t, m.Edit(ctx, "m1", "after"))

	_, edits, _ := api.counts()
	assert.Equal(t, 1, edits)
	conv, _, err := convRepo.Get(ctx, "alice_bob")
	require.NoError(t, err)
	assert.Equal(t, "after", conv.LastMessage.Text)
}

func TestEditNonLastMessageLeavesSnippet(t *testing.T) {
	mem := store.NewMemStore()
	convRepo := repository.NewConversationRepository(mem)
	ctx := context.Background()

	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, convRepo.RecordMessage(ctx, "alice", "bob",
		entity.MessageSnippet{Text: "latest", SenderId: "bob", Timestamp: ts}, 1))

	api := &fakeAPI{}
	m := newMutator(api, convRepo,
		entity.Message{Id: "m1", SenderId: "alice", Text: "old"},
		entity.Message{Id: "m2", SenderId: "bob", Text: "latest"},
	)

	require.NoError(t, m.Edit(ctx, "m1", "old edited"))

	conv, _, err := convRepo.Get(ctx, "alice_bob")
	require.NoError(t, err)
	assert.Equal(t, "latest", conv.LastMessage.Text)
}

func TestDeleteRequiresConfirmation(t *testing.T) {
	api := &fakeAPI{}
	m := newMutator(api, nil, entity.Message{Id: "m1", SenderId: "alice", Text: "x"})

	assert.ErrorIs(t, m.Delete(context.Background(), "m1", false), ErrDeleteNotConfirmed)
	_, _, deletes := api.counts()
	assert.Zero(t, deletes)

	require.NoError(t, m.Delete(context.Background(), "m1", true))
	_, _, deletes = api.counts()
	assert.Equal(t, 1, deletes)
}

func TestDeleteRejectsNonAuthor(t *testing.T) {
	api := &fakeAPI{}
	m := newMutator(api, nil, entity.Message{Id: "m1", SenderId: "bob", Text: "x"})

	assert.ErrorIs(t, m.Delete(context.Background(), "m1", true), ErrNotMessageAuthor)
}
