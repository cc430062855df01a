package session

import (
	"context"
	"sync"

	"chatsync/internal/entity"
	"chatsync/internal/repository"

	"go.uber.org/zap"
)

// ConversationListItem is one row of the conversation list, annotated
// with the local user's unread badge.
type ConversationListItem struct {
	Conversation entity.Conversation `json:"conversation"`
	Peer         string              `json:"peer"`
	Unread       int                 `json:"unread"`
}

// ConversationListCoordinator maintains the list of conversations the
// user is part of, newest activity first, under the same subscription
// discipline as the per-conversation watchers.
type ConversationListCoordinator struct {
	self string
	repo repository.ConversationRepository
	log  *zap.Logger

	updates   chan []ConversationListItem
	done      chan struct{}
	closeOnce sync.Once
	cancel    func()

	mu    sync.RWMutex
	items []ConversationListItem
}

func NewConversationListCoordinator(repo repository.ConversationRepository, self string, log *zap.Logger) *ConversationListCoordinator {
	if log == nil {
		log = zap.NewNop()
	}
	return &ConversationListCoordinator{
		self:    self,
		repo:    repo,
		log:     log,
		updates: make(chan []ConversationListItem, 1),
		done:    make(chan struct{}),
	}
}

// Start opens the list subscription. A failed subscription logs and
// leaves the list empty.
func (c *ConversationListCoordinator) Start(ctx context.Context) {
	ch, cancel, err := c.repo.WatchByParticipant(ctx, c.self)
	if err != nil {
		c.log.Error("conversation list subscription failed",
			zap.String("userId", c.self), zap.Error(err))
		return
	}
	c.cancel = cancel

	go func() {
		for conversations := range ch {
			select {
			case <-c.done:
				return
			default:
			}

			items := make([]ConversationListItem, 0, len(conversations))
			for _, conv := range conversations {
				items = append(items, ConversationListItem{
					Conversation: conv,
					Peer:         conv.Other(c.self),
					Unread:       conv.UnreadFor(c.self),
				})
			}

			c.mu.Lock()
			c.items = items
			c.mu.Unlock()
			c.push(items)
		}
	}()
}

func (c *ConversationListCoordinator) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.cancel != nil {
			c.cancel()
		}
	})
}

func (c *ConversationListCoordinator) Done() <-chan struct{} { return c.done }

// Updates delivers coalesced list frames, latest wins.
func (c *ConversationListCoordinator) Updates() <-chan []ConversationListItem { return c.updates }

func (c *ConversationListCoordinator) Items() []ConversationListItem {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]ConversationListItem, len(c.items))
	copy(out, c.items)
	return out
}

// MarkReadUnread is the binary toggle from the per-item overflow menu:
// the unread slot becomes 1 for unread and 0 for read, never a general
// counter.
func (c *ConversationListCoordinator) MarkReadUnread(ctx context.Context, conversationId string, markUnread bool) error {
	count := 0
	if markUnread {
		count = 1
	}
	return c.repo.SetUnread(ctx, conversationId, c.self, count)
}

func (c *ConversationListCoordinator) push(items []ConversationListItem) {
	for {
		select {
		case c.updates <- items:
			return
		default:
			select {
			case <-c.updates:
			default:
			}
		}
	}
}
