package session

import (
	"context"
	"time"

	"chatsync/internal/entity"
	"chatsync/internal/repository"

	"go.uber.org/zap"
)

// MessageStream tracks the ordered message collection of one
// conversation and maintains the local user's read receipts.
type MessageStream struct {
	conversationId string
	self           string
	repo           repository.MessageRepository
	log            *zap.Logger
}

func NewMessageStream(repo repository.MessageRepository, conversationId, self string, log *zap.Logger) *MessageStream {
	return &MessageStream{
		conversationId: conversationId,
		self:           self,
		repo:           repo,
		log:            log,
	}
}

// Run subscribes to the message collection and pumps each snapshot into
// sink. A failed subscription logs and leaves the sink empty.
func (w *MessageStream) Run(ctx context.Context, sink func([]entity.Message), done <-chan struct{}) func() {
	ch, cancel, err := w.repo.Watch(ctx, w.conversationId)
	if err != nil {
		w.log.Error("message subscription failed",
			zap.String("conversationId", w.conversationId), zap.Error(err))
		sink(nil)
		return func() {}
	}

	go func() {
		issued := make(map[string]bool)
		for messages := range ch {
			select {
			case <-done:
				return
			default:
			}
			w.issueReceipts(ctx, messages, issued)
			sink(messages)
		}
	}()
	return cancel
}

// issueReceipts appends self to readBy for every unseen peer message.
// The issued set spans the watcher's lifetime, so redelivery of an
// identical snapshot never produces a second write; set-union semantics
// make the write itself idempotent on top of that.
func (w *MessageStream) issueReceipts(ctx context.Context, messages []entity.Message, issued map[string]bool) {
	for _, m := range messages {
		if m.SenderId == w.self || m.ReadByUser(w.self) || issued[m.Id] {
			continue
		}
		issued[m.Id] = true
		go func(messageId string) {
			if err := w.repo.AppendReadBy(ctx, messageId, w.self); err != nil {
				w.log.Warn("read receipt write failed",
					zap.String("messageId", messageId), zap.Error(err))
			}
		}(m.Id)
	}
}

type ItemType string

const (
	ItemDate    ItemType = "date"
	ItemMessage ItemType = "message"
)

// RenderItem is one element of the flat render sequence: either a
// synthetic date separator or a message.
type RenderItem struct {
	Type    ItemType        `json:"type"`
	Label   string          `json:"label,omitempty"`
	Message *entity.Message `json:"message,omitempty"`
}

// GroupMessages produces the date-grouped render sequence: a separator
// is emitted before the first message and whenever the calendar day
// changes. Pure and single-pass; recomputed on every change, never
// persisted.
func GroupMessages(messages []entity.Message, now time.Time) []RenderItem {
	items := make([]RenderItem, 0, len(messages)+4)
	for i := range messages {
		ts := messages[i].Timestamp.In(now.Location())
		if i == 0 || !sameDay(ts, messages[i-1].Timestamp.In(now.Location())) {
			items = append(items, RenderItem{Type: ItemDate, Label: dayLabel(ts, now)})
		}
		message := messages[i]
		items = append(items, RenderItem{Type: ItemMessage, Message: &message})
	}
	return items
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func dayLabel(ts, now time.Time) string {
	switch {
	case sameDay(ts, now):
		return "Today"
	case sameDay(ts, now.AddDate(0, 0, -1)):
		return "Yesterday"
	default:
		return ts.Format("January 2, 2006")
	}
}

// autoScrollThreshold is how close to the bottom, in pixels, the
// viewport must be for an update to pull it down to the newest message.
const autoScrollThreshold = 50.0

// ShouldAutoScroll decides the post-update scroll behavior: follow new
// messages when the user is at the bottom, leave a reader scrolled up
// in history alone.
func ShouldAutoScroll(distanceFromBottom float64) bool {
	return distanceFromBottom <= autoScrollThreshold
}
