package session

import (
	"context"
	"sync"
	"time"

	"chatsync/internal/entity"
	"chatsync/internal/repository"

	"go.uber.org/zap"
)

// MessageAPI is the consumed message endpoint contract. Its responses
// carry no authority: the canonical message always arrives through the
// message stream subscription.
type MessageAPI interface {
	SendMessage(ctx context.Context, receiverId, text string, attachments []entity.Attachment) error
	EditMessage(ctx context.Context, messageId, text string) error
	DeleteMessage(ctx context.Context, messageId string) error
}

type eventKind int

const (
	evMetadata eventKind = iota
	evMessages
	evBlock
	evCompose
)

type event struct {
	kind     eventKind
	meta     Metadata
	messages []entity.Message
	block    BlockState
}

// ViewState is the frame pushed to the hosting UI whenever anything the
// view depends on changes.
type ViewState struct {
	ConversationExists bool         `json:"conversationExists"`
	PeerTyping         bool         `json:"peerTyping"`
	Block              BlockState   `json:"block"`
	ComposeEnabled     bool         `json:"composeEnabled"`
	CanUnblock         bool         `json:"canUnblock"`
	Sending            bool         `json:"sending"`
	SendError          string       `json:"sendError,omitempty"`
	Items              []RenderItem `json:"items"`
}

type Config struct {
	Self          string
	Peer          string
	Conversations repository.ConversationRepository
	Messages      repository.MessageRepository
	Users         repository.UserRepository
	API           MessageAPI
	Logger        *zap.Logger

	// TypingIdle overrides the idle window after which the typing flag
	// is lowered. Zero means one second.
	TypingIdle time.Duration

	// Now is injectable for date-grouping tests. Zero means time.Now.
	Now func() time.Time
}

// Session owns one selected conversation. Every subscription runs as an
// independent pump feeding the single-consumer event channel, so state
// mutation stays on one logical thread even though deliveries from
// different streams interleave in any order.
type Session struct {
	self           string
	peer           string
	conversationId string

	convRepo repository.ConversationRepository
	log      *zap.Logger
	now      func() time.Time

	Compose  *ComposePipeline
	Mutator  *MutationController
	Presence *PresenceCoordinator
	Guard    *RelationshipGuard

	metadata *MetadataWatcher
	stream   *MessageStream

	events    chan event
	updates   chan ViewState
	done      chan struct{}
	closeOnce sync.Once
	cancels   []func()

	mu       sync.RWMutex
	meta     Metadata
	messages []entity.Message
	block    BlockState
}

func New(cfg Config) *Session {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	conversationId := entity.ConversationId(cfg.Self, cfg.Peer)

	s := &Session{
		self:           cfg.Self,
		peer:           cfg.Peer,
		conversationId: conversationId,
		convRepo:       cfg.Conversations,
		log:            cfg.Logger,
		now:            cfg.Now,
		events:         make(chan event, 16),
		updates:        make(chan ViewState, 1),
		done:           make(chan struct{}),
		meta:           notFoundMetadata(),
	}

	s.Presence = NewPresenceCoordinator(cfg.Conversations, conversationId, cfg.Self, cfg.TypingIdle, cfg.Logger)
	s.Compose = NewComposePipeline(cfg.Peer, cfg.API, s.Presence, cfg.Logger)
	s.Compose.onChange = func() { s.enqueue(event{kind: evCompose}) }
	s.Guard = NewRelationshipGuard(cfg.Users, cfg.Self, cfg.Peer, cfg.Logger)
	s.Guard.notify = func(state BlockState) { s.enqueue(event{kind: evBlock, block: state}) }
	s.Mutator = NewMutationController(cfg.Self, conversationId, cfg.API, cfg.Conversations, s.lookupMessage, s.lastMessage, cfg.Logger)
	s.metadata = NewMetadataWatcher(cfg.Conversations, conversationId, cfg.Logger)
	s.stream = NewMessageStream(cfg.Messages, conversationId, cfg.Self, cfg.Logger)

	return s
}

// Start opens all live subscriptions and performs the one-shot
// mark-read. Subscription failures degrade to the not-found defaults
// instead of failing the session.
func (s *Session) Start(ctx context.Context) {
	s.cancels = append(s.cancels,
		s.metadata.Run(ctx, func(m Metadata) { s.enqueue(event{kind: evMetadata, meta: m}) }, s.done),
		s.stream.Run(ctx, func(msgs []entity.Message) { s.enqueue(event{kind: evMessages, messages: msgs}) }, s.done),
		s.Guard.Run(ctx, s.done),
	)

	// Deliberately outside the watcher callback: the write would
	// otherwise re-trigger the watcher and loop.
	go s.metadata.MarkReadOnOpen(ctx, s.self)

	go s.run()
}

// Close tears the session down. Late-firing subscription callbacks
// become no-ops once done is closed.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		for _, cancel := range s.cancels {
			cancel()
		}
		s.Presence.Stop()
	})
}

func (s *Session) Done() <-chan struct{} { return s.done }

// Updates delivers coalesced view frames; only the latest pending frame
// is kept when the consumer lags.
func (s *Session) Updates() <-chan ViewState { return s.updates }

func (s *Session) View() ViewState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.buildViewLocked()
}

func (s *Session) Messages() []entity.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]entity.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Grouped returns the date-grouped render sequence for the current
// message list.
func (s *Session) Grouped() []RenderItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return GroupMessages(s.messages, s.now())
}

func (s *Session) run() {
	for {
		select {
		case <-s.done:
			return
		case ev := <-s.events:
			s.mu.Lock()
			switch ev.kind {
			case evMetadata:
				s.meta = ev.meta
			case evMessages:
				s.messages = ev.messages
			case evBlock:
				s.block = ev.block
			case evCompose:
				// compose state is read during render
			}
			view := s.buildViewLocked()
			s.mu.Unlock()
			s.push(view)
		}
	}
}

func (s *Session) buildViewLocked() ViewState {
	sending, sendErr := s.Compose.Status()
	view := ViewState{
		ConversationExists: s.meta.Exists,
		PeerTyping:         s.meta.IsTyping(s.peer),
		Block:              s.block,
		ComposeEnabled:     s.block == BlockUnknown || s.block == BlockAllowed,
		CanUnblock:         s.block == BlockedByMe || s.block == BlockedMutually,
		Sending:            sending,
		Items:              GroupMessages(s.messages, s.now()),
	}
	if sendErr != nil {
		view.SendError = sendErr.Error()
	}
	return view
}

func (s *Session) enqueue(ev event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

// push replaces any stale pending frame so the consumer always reads
// the newest state.
func (s *Session) push(view ViewState) {
	for {
		select {
		case s.updates <- view:
			return
		default:
			select {
			case <-s.updates:
			default:
			}
		}
	}
}

func (s *Session) lookupMessage(messageId string) (entity.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.messages {
		if m.Id == messageId {
			return m, true
		}
	}
	return entity.Message{}, false
}

func (s *Session) lastMessage() (entity.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.messages) == 0 {
		return entity.Message{}, false
	}
	return s.messages[len(s.messages)-1], true
}
