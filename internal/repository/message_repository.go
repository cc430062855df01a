package repository

import (
	"context"
	"time"

	"chatsync/infrastructure/store"
	"chatsync/internal/entity"

	"go.mongodb.org/mongo-driver/bson"
)

const messagesCollection = "messages"

type MessageRepository interface {
	Insert(ctx context.Context, message entity.Message) error
	Get(ctx context.Context, messageId string) (entity.Message, bool, error)

	// Watch delivers the conversation's full message list, ascending by
	// timestamp, once per change.
	Watch(ctx context.Context, conversationId string) (<-chan []entity.Message, func(), error)

	// AppendReadBy adds userId to the message's readBy set. Set-union
	// semantics make duplicate deliveries harmless.
	AppendReadBy(ctx context.Context, messageId, userId string) error

	SetText(ctx context.Context, messageId, text string, editedAt time.Time) error

	// SoftDelete clears content but keeps the document, preserving
	// stream position and read-receipt history.
	SoftDelete(ctx context.Context, messageId string) error
}

type messageRepository struct {
	store store.Store
}

func NewMessageRepository(s store.Store) MessageRepository {
	return &messageRepository{store: s}
}

func (r *messageRepository) Insert(ctx context.Context, message entity.Message) error {
	doc, err := toDoc(message)
	if err != nil {
		return err
	}
	return r.store.Set(ctx, store.DocPath(messagesCollection, message.Id), doc, false)
}

func (r *messageRepository) Get(ctx context.Context, messageId string) (entity.Message, bool, error) {
	snap, err := r.store.Get(ctx, store.DocPath(messagesCollection, messageId))
	if err != nil {
		return entity.Message{}, false, err
	}
	if !snap.Exists {
		return entity.Message{}, false, nil
	}

	var message entity.Message
	if err := snap.Decode(&message); err != nil {
		return entity.Message{}, false, err
	}
	return message, true, nil
}

func (r *messageRepository) Watch(ctx context.Context, conversationId string) (<-chan []entity.Message, func(), error) {
	query := store.Query{
		Equals:  &store.FieldValue{Field: "conversationId", Value: conversationId},
		OrderBy: "timestamp",
	}
	src, cancel, err := r.store.WatchCollection(ctx, messagesCollection, query)
	if err != nil {
		return nil, nil, err
	}

	out := make(chan []entity.Message, 1)
	go func() {
		defer close(out)
		for snaps := range src {
			messages := make([]entity.Message, 0, len(snaps))
			for _, snap := range snaps {
				var message entity.Message
				if err := snap.Decode(&message); err == nil {
					messages = append(messages, message)
				}
			}
			out <- messages
		}
	}()
	return out, cancel, nil
}

func (r *messageRepository) AppendReadBy(ctx context.Context, messageId, userId string) error {
	patch := bson.M{"readBy": store.ArrayUnion(userId)}
	return r.store.Update(ctx, store.DocPath(messagesCollection, messageId), patch)
}

func (r *messageRepository) SetText(ctx context.Context, messageId, text string, editedAt time.Time) error {
	patch := bson.M{
		"text":     text,
		"editedAt": editedAt,
	}
	return r.store.Update(ctx, store.DocPath(messagesCollection, messageId), patch)
}

func (r *messageRepository) SoftDelete(ctx context.Context, messageId string) error {
	patch := bson.M{
		"text":            "",
		"attachmentUrls":  []string{},
		"attachmentTypes": []string{},
		"isDeleted":       true,
	}
	return r.store.Update(ctx, store.DocPath(messagesCollection, messageId), patch)
}

// toDoc round-trips a struct through bson so documents and decoded
// entities share one set of field names.
func toDoc(v any) (bson.M, error) {
	raw, err := bson.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc bson.M
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}
