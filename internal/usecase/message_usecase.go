package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"chatsync/internal/entity"
	"chatsync/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrEmptyMessage    = errors.New("message has no text and no attachments")
	ErrMessageNotFound = errors.New("message not found")
	ErrNotAuthor       = errors.New("you are not the author of this message")
)

// FileStore persists uploaded attachments and returns their public
// URLs alongside the recorded content types.
type FileStore interface {
	Save(ctx context.Context, attachments []entity.Attachment) (urls []string, contentTypes []string, err error)
}

type MessageUsecase interface {
	// Send persists a message and refreshes the conversation document,
	// creating the conversation implicitly on the first send.
	Send(ctx context.Context, senderId, receiverId, text string, attachments []entity.Attachment) (entity.Message, error)

	Edit(ctx context.Context, userId, messageId, text string) error

	// Delete soft-deletes: content is cleared, the document and its
	// position in the stream remain.
	Delete(ctx context.Context, userId, messageId string) error
}

type messageUsecase struct {
	convRepo repository.ConversationRepository
	msgRepo  repository.MessageRepository
	files    FileStore
	log      *zap.Logger
}

func NewMessageUsecase(convRepo repository.ConversationRepository, msgRepo repository.MessageRepository, files FileStore, log *zap.Logger) MessageUsecase {
	return &messageUsecase{
		convRepo: convRepo,
		msgRepo:  msgRepo,
		files:    files,
		log:      log,
	}
}

func (u *messageUsecase) Send(ctx context.Context, senderId, receiverId, text string, attachments []entity.Attachment) (entity.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" && len(attachments) == 0 {
		return entity.Message{}, ErrEmptyMessage
	}

	conversationId := entity.ConversationId(senderId, receiverId)
	conv, exists, err := u.convRepo.Get(ctx, conversationId)
	if err != nil {
		return entity.Message{}, err
	}

	// Timestamps are server-assigned and strictly increasing within the
	// conversation even if the wall clock steps backwards. Millisecond
	// precision matches what bson datetimes survive a round-trip with.
	timestamp := time.Now().UTC().Truncate(time.Millisecond)
	if exists && conv.LastMessage != nil && !timestamp.After(conv.LastMessage.Timestamp) {
		timestamp = conv.LastMessage.Timestamp.Add(time.Millisecond)
	}

	var urls, contentTypes []string
	if len(attachments) > 0 {
		urls, contentTypes, err = u.files.Save(ctx, attachments)
		if err != nil {
			return entity.Message{}, err
		}
	}

	message := entity.Message{
		Id:              uuid.New().String(),
		ConversationId:  conversationId,
		SenderId:        senderId,
		Text:            text,
		AttachmentUrls:  urls,
		AttachmentTypes: contentTypes,
		Timestamp:       timestamp,
		ReadBy:          []string{senderId},
	}
	if err := u.msgRepo.Insert(ctx, message); err != nil {
		return entity.Message{}, err
	}

	snippet := entity.MessageSnippet{
		Text:      text,
		SenderId:  senderId,
		Timestamp: timestamp,
	}
	receiverUnread := 1
	if exists {
		receiverUnread = conv.UnreadFor(receiverId) + 1
	}
	if err := u.convRepo.RecordMessage(ctx, senderId, receiverId, snippet, receiverUnread); err != nil {
		return entity.Message{}, err
	}

	return message, nil
}

func (u *messageUsecase) Edit(ctx context.Context, userId, messageId, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}

	message, exists, err := u.msgRepo.Get(ctx, messageId)
	if err != nil {
		return err
	}
	if !exists {
		return ErrMessageNotFound
	}
	if message.SenderId != userId {
		return ErrNotAuthor
	}
	if text == message.Text {
		return nil
	}

	if err := u.msgRepo.SetText(ctx, messageId, text, time.Now().UTC()); err != nil {
		return err
	}
	u.refreshSnippet(ctx, message, text)
	return nil
}

func (u *messageUsecase) Delete(ctx context.Context, userId, messageId string) error {
	message, exists, err := u.msgRepo.Get(ctx, messageId)
	if err != nil {
		return err
	}
	if !exists {
		return ErrMessageNotFound
	}
	if message.SenderId != userId {
		return ErrNotAuthor
	}

	if err := u.msgRepo.SoftDelete(ctx, messageId); err != nil {
		return err
	}
	u.refreshSnippet(ctx, message, "")
	return nil
}

// refreshSnippet keeps the conversation's lastMessage text in step when
// the mutated message is the current last one. Failure here only makes
// the list snippet stale, so it is logged and swallowed.
func (u *messageUsecase) refreshSnippet(ctx context.Context, message entity.Message, text string) {
	conv, exists, err := u.convRepo.Get(ctx, message.ConversationId)
	if err != nil || !exists || conv.LastMessage == nil {
		return
	}
	if !conv.LastMessage.Timestamp.Equal(message.Timestamp) || conv.LastMessage.SenderId != message.SenderId {
		return
	}
	if err := u.convRepo.UpdateLastMessageText(ctx, message.ConversationId, text); err != nil {
		u.log.Warn("snippet refresh failed",
			zap.String("conversationId", message.ConversationId), zap.Error(err))
	}
}
