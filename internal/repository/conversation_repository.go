package repository

import (
	"context"

	"chatsync/infrastructure/store"
	"chatsync/internal/entity"

	"go.mongodb.org/mongo-driver/bson"
)

const conversationsCollection = "conversations"

// ConversationSnapshot is one delivery from a conversation watch. A
// conversation that does not exist yet is a valid snapshot, not an
// error.
type ConversationSnapshot struct {
	Exists       bool
	Conversation entity.Conversation
}

type ConversationRepository interface {
	Get(ctx context.Context, conversationId string) (entity.Conversation, bool, error)
	Watch(ctx context.Context, conversationId string) (<-chan ConversationSnapshot, func(), error)
	WatchByParticipant(ctx context.Context, userId string) (<-chan []entity.Conversation, func(), error)

	// RecordMessage refreshes the conversation document after a
	// confirmed send, creating it on the first message.
	RecordMessage(ctx context.Context, senderId, receiverId string, snippet entity.MessageSnippet, receiverUnread int) error

	// SetTyping publishes a typing flag. It fails when the conversation
	// document does not exist yet; callers treat that as a no-op.
	SetTyping(ctx context.Context, conversationId, userId string, typing bool) error

	// MarkRead zeroes the user's unread count, writing only when the
	// current count is nonzero.
	MarkRead(ctx context.Context, conversationId, userId string) error

	// SetUnread sets the user's unread slot to an explicit value; the
	// read/unread toggle uses 0 and 1.
	SetUnread(ctx context.Context, conversationId, userId string, count int) error

	UpdateLastMessageText(ctx context.Context, conversationId, text string) error
}

type conversationRepository struct {
	store store.Store
}

func NewConversationRepository(s store.Store) ConversationRepository {
	return &conversationRepository{store: s}
}

func (r *conversationRepository) Get(ctx context.Context, conversationId string) (entity.Conversation, bool, error) {
	snap, err := r.store.Get(ctx, store.DocPath(conversationsCollection, conversationId))
	if err != nil {
		return entity.Conversation{}, false, err
	}
	if !snap.Exists {
		return entity.Conversation{}, false, nil
	}

	var conv entity.Conversation
	if err := snap.Decode(&conv); err != nil {
		return entity.Conversation{}, false, err
	}
	return conv, true, nil
}

func (r *conversationRepository) Watch(ctx context.Context, conversationId string) (<-chan ConversationSnapshot, func(), error) {
	src, cancel, err := r.store.WatchDoc(ctx, store.DocPath(conversationsCollection, conversationId))
	if err != nil {
		return nil, nil, err
	}

	out := make(chan ConversationSnapshot, 1)
	go func() {
		defer close(out)
		for snap := range src {
			decoded := ConversationSnapshot{}
			if snap.Exists {
				var conv entity.Conversation
				if err := snap.Decode(&conv); err == nil {
					decoded = ConversationSnapshot{Exists: true, Conversation: conv}
				}
			}
			out <- decoded
		}
	}()
	return out, cancel, nil
}

func (r *conversationRepository) WatchByParticipant(ctx context.Context, userId string) (<-chan []entity.Conversation, func(), error) {
	query := store.Query{
		Contains:   &store.FieldValue{Field: "participants", Value: userId},
		OrderBy:    "lastUpdatedAt",
		Descending: true,
	}
	src, cancel, err := r.store.WatchCollection(ctx, conversationsCollection, query)
	if err != nil {
		return nil, nil, err
	}

	out := make(chan []entity.Conversation, 1)
	go func() {
		defer close(out)
		for snaps := range src {
			conversations := make([]entity.Conversation, 0, len(snaps))
			for _, snap := range snaps {
				var conv entity.Conversation
				if err := snap.Decode(&conv); err == nil {
					conversations = append(conversations, conv)
				}
			}
			out <- conversations
		}
	}()
	return out, cancel, nil
}

func (r *conversationRepository) RecordMessage(ctx context.Context, senderId, receiverId string, snippet entity.MessageSnippet, receiverUnread int) error {
	conversationId := entity.ConversationId(senderId, receiverId)
	if receiverUnread < 0 {
		receiverUnread = 0
	}

	// Stored as a plain document so later dotted-path patches like
	// lastMessage.text can address its fields.
	snippetDoc, err := toDoc(snippet)
	if err != nil {
		return err
	}

	data := bson.M{
		"participants":  entity.SortedParticipants(senderId, receiverId),
		"lastMessage":   snippetDoc,
		"lastUpdatedAt": snippet.Timestamp,
		"unreadCounts." + senderId:   0,
		"unreadCounts." + receiverId: receiverUnread,
	}
	return r.store.Set(ctx, store.DocPath(conversationsCollection, conversationId), data, true)
}

func (r *conversationRepository) SetTyping(ctx context.Context, conversationId, userId string, typing bool) error {
	patch := bson.M{"typing." + userId: typing}
	return r.store.Update(ctx, store.DocPath(conversationsCollection, conversationId), patch)
}

func (r *conversationRepository) MarkRead(ctx context.Context, conversationId, userId string) error {
	conv, exists, err := r.Get(ctx, conversationId)
	if err != nil || !exists {
		return err
	}
	if conv.UnreadFor(userId) == 0 {
		return nil
	}
	return r.SetUnread(ctx, conversationId, userId, 0)
}

func (r *conversationRepository) SetUnread(ctx context.Context, conversationId, userId string, count int) error {
	if count < 0 {
		count = 0
	}
	data := bson.M{"unreadCounts." + userId: count}
	return r.store.Set(ctx, store.DocPath(conversationsCollection, conversationId), data, true)
}

func (r *conversationRepository) UpdateLastMessageText(ctx context.Context, conversationId, text string) error {
	patch := bson.M{"lastMessage.text": text}
	return r.store.Update(ctx, store.DocPath(conversationsCollection, conversationId), patch)
}
