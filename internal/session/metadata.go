package session

import (
	"context"

	"chatsync/internal/entity"
	"chatsync/internal/repository"

	"go.uber.org/zap"
)

// Metadata is the decoded conversation-metadata snapshot. A missing
// conversation synthesizes the not-found default; it is never an error
// because a brand-new chat has no document until the first send.
type Metadata struct {
	Exists       bool
	Typing       map[string]bool
	Conversation entity.Conversation
}

func notFoundMetadata() Metadata {
	return Metadata{Typing: map[string]bool{}}
}

// IsTyping reports the typing flag for a user, false when absent.
func (m Metadata) IsTyping(userId string) bool {
	return m.Typing[userId]
}

// MetadataWatcher tracks one conversation's metadata document.
type MetadataWatcher struct {
	conversationId string
	repo           repository.ConversationRepository
	log            *zap.Logger
}

func NewMetadataWatcher(repo repository.ConversationRepository, conversationId string, log *zap.Logger) *MetadataWatcher {
	return &MetadataWatcher{
		conversationId: conversationId,
		repo:           repo,
		log:            log,
	}
}

// Run subscribes and pumps decoded snapshots into sink until the
// subscription closes or done fires. A failed subscription logs and
// leaves the sink on the not-found default rather than propagating.
func (w *MetadataWatcher) Run(ctx context.Context, sink func(Metadata), done <-chan struct{}) func() {
	ch, cancel, err := w.repo.Watch(ctx, w.conversationId)
	if err != nil {
		w.log.Error("conversation subscription failed",
			zap.String("conversationId", w.conversationId), zap.Error(err))
		sink(notFoundMetadata())
		return func() {}
	}

	go func() {
		for snap := range ch {
			select {
			case <-done:
				return
			default:
			}

			if !snap.Exists {
				sink(notFoundMetadata())
				continue
			}
			typing := snap.Conversation.Typing
			if typing == nil {
				typing = map[string]bool{}
			}
			sink(Metadata{Exists: true, Typing: typing, Conversation: snap.Conversation})
		}
	}()
	return cancel
}

// MarkReadOnOpen zeroes the user's unread count once per selection.
// The repository skips the write when the count is already zero, and a
// failure here is logged, never surfaced.
func (w *MetadataWatcher) MarkReadOnOpen(ctx context.Context, userId string) {
	if err := w.repo.MarkRead(ctx, w.conversationId, userId); err != nil {
		w.log.Warn("mark read on open failed",
			zap.String("conversationId", w.conversationId), zap.Error(err))
	}
}
