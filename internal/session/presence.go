package session

import (
	"context"
	"sync"
	"time"

	"chatsync/internal/repository"

	"go.uber.org/zap"
)

const defaultTypingIdle = time.Second

// PresenceCoordinator debounces the local user's typing flag: the first
// keystroke raises it, an idle window with no further keystrokes lowers
// it, and blur or send lowers it immediately. Publishing is
// fire-and-forget; until the conversation document exists the write
// fails and is swallowed, since typing has no observable effect yet.
type PresenceCoordinator struct {
	conversationId string
	self           string
	repo           repository.ConversationRepository
	idle           time.Duration
	log            *zap.Logger

	mu     sync.Mutex
	typing bool
	gen    int
	timer  *time.Timer
}

func NewPresenceCoordinator(repo repository.ConversationRepository, conversationId, self string, idle time.Duration, log *zap.Logger) *PresenceCoordinator {
	if idle <= 0 {
		idle = defaultTypingIdle
	}
	return &PresenceCoordinator{
		conversationId: conversationId,
		self:           self,
		repo:           repo,
		idle:           idle,
		log:            log,
	}
}

// Keystroke raises the typing flag and restarts the idle timer. The
// flag is only published on the false-to-true transition; merge-writes
// of the same value would be invisible anyway.
func (p *PresenceCoordinator) Keystroke() {
	p.mu.Lock()
	p.gen++
	gen := p.gen
	if p.timer != nil {
		p.timer.Stop()
	}
	wasTyping := p.typing
	p.typing = true
	p.timer = time.AfterFunc(p.idle, func() { p.expire(gen) })
	p.mu.Unlock()

	if !wasTyping {
		p.publish(true)
	}
}

// Stop lowers the typing flag immediately and cancels any pending idle
// timer. Called on blur, on send, and on session teardown.
func (p *PresenceCoordinator) Stop() {
	p.mu.Lock()
	p.gen++
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	wasTyping := p.typing
	p.typing = false
	p.mu.Unlock()

	if wasTyping {
		p.publish(false)
	}
}

// expire is the idle-timer callback. The generation check makes a timer
// that lost the race against a newer keystroke or Stop a no-op.
func (p *PresenceCoordinator) expire(gen int) {
	p.mu.Lock()
	if gen != p.gen || !p.typing {
		p.mu.Unlock()
		return
	}
	p.typing = false
	p.mu.Unlock()

	p.publish(false)
}

func (p *PresenceCoordinator) publish(typing bool) {
	if err := p.repo.SetTyping(context.Background(), p.conversationId, p.self, typing); err != nil {
		p.log.Debug("typing publish failed",
			zap.String("conversationId", p.conversationId), zap.Bool("typing", typing), zap.Error(err))
	}
}
