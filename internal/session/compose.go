package session

import (
	"context"
	"errors"
	"strings"
	"sync"

	"chatsync/internal/entity"

	"go.uber.org/zap"
)

// ErrSendInFlight rejects a send attempted while another one is
// outstanding for this conversation. The caller retries; nothing is
// queued.
var ErrSendInFlight = errors.New("a send is already in flight")

// Draft is the compose box content.
type Draft struct {
	Text        string
	Attachments []entity.Attachment
}

func (d Draft) empty() bool {
	return strings.TrimSpace(d.Text) == "" && len(d.Attachments) == 0
}

// ComposePipeline performs the optimistic send: the draft is cleared
// and typing stopped before the request, and restored exactly as it was
// when the request fails. The pipeline never fabricates a sent bubble;
// the canonical message arrives through the stream subscription.
type ComposePipeline struct {
	peer     string
	api      MessageAPI
	presence *PresenceCoordinator
	log      *zap.Logger
	onChange func()

	mu       sync.Mutex
	draft    Draft
	inFlight bool
	lastErr  error
}

func NewComposePipeline(peer string, api MessageAPI, presence *PresenceCoordinator, log *zap.Logger) *ComposePipeline {
	return &ComposePipeline{
		peer:     peer,
		api:      api,
		presence: presence,
		log:      log,
	}
}

func (p *ComposePipeline) SetDraft(draft Draft) {
	p.mu.Lock()
	p.draft = draft
	p.mu.Unlock()
}

func (p *ComposePipeline) Draft() Draft {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.draft
}

// Status reports the in-flight flag and the last dismissible send
// error.
func (p *ComposePipeline) Status() (sending bool, lastErr error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inFlight, p.lastErr
}

// DismissError clears the inline send error.
func (p *ComposePipeline) DismissError() {
	p.mu.Lock()
	p.lastErr = nil
	p.mu.Unlock()
	p.changed()
}

// Send submits the current draft. An empty draft is a silent no-op; a
// draft sent while another send is outstanding is rejected with
// ErrSendInFlight, single-flight per conversation.
func (p *ComposePipeline) Send(ctx context.Context) error {
	p.mu.Lock()
	if p.inFlight {
		p.mu.Unlock()
		return ErrSendInFlight
	}
	if p.draft.empty() {
		p.mu.Unlock()
		return nil
	}
	sent := p.draft
	sent.Text = strings.TrimSpace(sent.Text)
	p.draft = Draft{}
	p.inFlight = true
	p.lastErr = nil
	p.mu.Unlock()
	p.changed()

	if p.presence != nil {
		p.presence.Stop()
	}

	err := p.api.SendMessage(ctx, p.peer, sent.Text, sent.Attachments)

	p.mu.Lock()
	p.inFlight = false
	if err != nil {
		// Put back exactly what was in flight so the user can retry.
		p.draft = sent
		p.lastErr = err
	}
	p.mu.Unlock()
	p.changed()

	if err != nil {
		p.log.Warn("send failed", zap.String("peer", p.peer), zap.Error(err))
	}
	return err
}

func (p *ComposePipeline) changed() {
	if p.onChange != nil {
		p.onChange()
	}
}
