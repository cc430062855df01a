package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func waitSnapshot(t *testing.T, ch <-chan Snapshot) Snapshot {
	t.Helper()
	select {
	case snap := <-ch:
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot delivered")
		return Snapshot{}
	}
}

func waitCollection(t *testing.T, ch <-chan []Snapshot) []Snapshot {
	t.Helper()
	select {
	case snaps := <-ch:
		return snaps
	case <-time.After(2 * time.Second):
		t.Fatal("no collection snapshot delivered")
		return nil
	}
}

func TestSetMergeUpsertsAndMergesFields(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "conversations/a_b", bson.M{"participants": []string{"a", "b"}}, true))
	require.NoError(t, s.Set(ctx, "conversations/a_b", bson.M{"typing.a": true}, true))

	snap, err := s.Get(ctx, "conversations/a_b")
	require.NoError(t, err)
	require.True(t, snap.Exists)
	assert.Equal(t, bson.M{"a": true}, snap.Data["typing"])
	assert.NotNil(t, snap.Data["participants"], "merge must not drop existing fields")
}

func TestSetReplaceDropsUnmentionedFields(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "messages/m1", bson.M{"text": "hi", "senderId": "a"}, false))
	require.NoError(t, s.Set(ctx, "messages/m1", bson.M{"text": "bye"}, false))

	snap, err := s.Get(ctx, "messages/m1")
	require.NoError(t, err)
	assert.Equal(t, "bye", snap.Data["text"])
	assert.Nil(t, snap.Data["senderId"])
}

func TestGetMissingDocumentIsNotAnError(t *testing.T) {
	s := NewMemStore()

	snap, err := s.Get(context.Background(), "conversations/nope")
	require.NoError(t, err)
	assert.False(t, snap.Exists)
}

func TestSnapshotCarriesDocumentId(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "conversations/a_b", bson.M{"participants": []string{"a", "b"}}, true))

	snap, err := s.Get(ctx, "conversations/a_b")
	require.NoError(t, err)
	assert.Equal(t, "a_b", snap.Data["_id"])
}

func TestArrayUnionIsIdempotent(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "messages/m1", bson.M{"readBy": bson.A{"a"}}, true))
	require.NoError(t, s.Set(ctx, "messages/m1", bson.M{"readBy": ArrayUnion("b")}, true))
	require.NoError(t, s.Set(ctx, "messages/m1", bson.M{"readBy": ArrayUnion("b")}, true))

	snap, err := s.Get(ctx, "messages/m1")
	require.NoError(t, err)
	assert.Equal(t, bson.A{"a", "b"}, snap.Data["readBy"])
}

func TestArrayRemove(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "users/u1", bson.M{"blockedUsers": ArrayUnion("x", "y")}, true))
	require.NoError(t, s.Update(ctx, "users/u1", bson.M{"blockedUsers": ArrayRemove("x")}))

	snap, err := s.Get(ctx, "users/u1")
	require.NoError(t, err)
	assert.Equal(t, bson.A{"y"}, snap.Data["blockedUsers"])
}

func TestUpdateMissingDocumentFails(t *testing.T) {
	s := NewMemStore()

	err := s.Update(context.Background(), "conversations/nope", bson.M{"typing.a": true})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWatchDocDeliversInitialAndChanges(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	ch, cancel, err := s.WatchDoc(ctx, "conversations/a_b")
	require.NoError(t, err)
	defer cancel()

	initial := waitSnapshot(t, ch)
	assert.False(t, initial.Exists, "initial snapshot for a missing doc reports absence")

	require.NoError(t, s.Set(ctx, "conversations/a_b", bson.M{"participants": []string{"a", "b"}}, true))
	changed := waitSnapshot(t, ch)
	assert.True(t, changed.Exists)
}

func TestWatchDocCancelClosesChannel(t *testing.T) {
	s := NewMemStore()

	ch, cancel, err := s.WatchDoc(context.Background(), "conversations/a_b")
	require.NoError(t, err)
	waitSnapshot(t, ch)

	cancel()
	_, open := <-ch
	assert.False(t, open)

	// A write after cancel must not panic on the closed channel.
	require.NoError(t, s.Set(context.Background(), "conversations/a_b", bson.M{"x": 1}, true))
}

func TestWatchCollectionFiltersAndOrders(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.Set(ctx, "messages/m2", bson.M{"conversationId": "a_b", "timestamp": base.Add(time.Minute)}, false))
	require.NoError(t, s.Set(ctx, "messages/m1", bson.M{"conversationId": "a_b", "timestamp": base}, false))
	require.NoError(t, s.Set(ctx, "messages/other", bson.M{"conversationId": "c_d", "timestamp": base}, false))

	ch, cancel, err := s.WatchCollection(ctx, "messages", Query{
		Equals:  &FieldValue{Field: "conversationId", Value: "a_b"},
		OrderBy: "timestamp",
	})
	require.NoError(t, err)
	defer cancel()

	snaps := waitCollection(t, ch)
	require.Len(t, snaps, 2)
	assert.Equal(t, "messages/m1", snaps[0].Path)
	assert.Equal(t, "messages/m2", snaps[1].Path)
}

func TestWatchCollectionContains(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "conversations/a_b", bson.M{"participants": []string{"a", "b"}}, true))
	require.NoError(t, s.Set(ctx, "conversations/b_c", bson.M{"participants": []string{"b", "c"}}, true))

	ch, cancel, err := s.WatchCollection(ctx, "conversations", Query{
		Contains: &FieldValue{Field: "participants", Value: "a"},
	})
	require.NoError(t, err)
	defer cancel()

	snaps := waitCollection(t, ch)
	require.Len(t, snaps, 1)
	assert.Equal(t, "conversations/a_b", snaps[0].Path)
}

func TestInvalidPaths(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	_, err := s.Get(ctx, "noslash")
	assert.ErrorIs(t, err, ErrInvalidPath)

	err = s.Set(ctx, "a/b/c", bson.M{}, true)
	assert.ErrorIs(t, err, ErrInvalidPath)

	_, _, err = s.WatchCollection(ctx, "a/b", Query{})
	assert.ErrorIs(t, err, ErrInvalidPath)
}
