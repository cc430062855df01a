package session

import (
	"context"
	"errors"
	"strings"

	"chatsync/internal/entity"
	"chatsync/internal/repository"

	"go.uber.org/zap"
)

var (
	// ErrDeleteNotConfirmed guards the destructive path: without the
	// explicit confirmation no request is issued at all.
	ErrDeleteNotConfirmed = errors.New("delete requires confirmation")

	ErrMessageNotFound  = errors.New("message not found")
	ErrNotMessageAuthor = errors.New("only the author can modify a message")
)

// MutationController edits and soft-deletes existing messages. Author
// checks here only gate the controls client-side; the backend enforces
// them authoritatively.
type MutationController struct {
	self           string
	conversationId string
	api            MessageAPI
	convRepo       repository.ConversationRepository
	lookup         func(messageId string) (entity.Message, bool)
	last           func() (entity.Message, bool)
	log            *zap.Logger
}

func NewMutationController(
	self, conversationId string,
	api MessageAPI,
	convRepo repository.ConversationRepository,
	lookup func(string) (entity.Message, bool),
	last func() (entity.Message, bool),
	log *zap.Logger,
) *MutationController {
	return &MutationController{
		self:           self,
		conversationId: conversationId,
		api:            api,
		convRepo:       convRepo,
		lookup:         lookup,
		last:           last,
		log:            log,
	}
}

// Edit rewrites a message's text. Empty or unchanged text is a no-op
// with no request. After a successful edit of the conversation's
// current last message the list snippet is refreshed to match.
func (m *MutationController) Edit(ctx context.Context, messageId, newText string) error {
	text := strings.TrimSpace(newText)
	if text == "" {
		return nil
	}

	current, ok := m.lookup(messageId)
	if !ok {
		return ErrMessageNotFound
	}
	if current.SenderId != m.self {
		return ErrNotMessageAuthor
	}
	if text == current.Text {
		return nil
	}

	if err := m.api.EditMessage(ctx, messageId, text); err != nil {
		return err
	}

	if last, ok := m.last(); ok && last.Id == messageId {
		if err := m.convRepo.UpdateLastMessageText(ctx, m.conversationId, text); err != nil {
			m.log.Warn("last message snippet refresh failed",
				zap.String("conversationId", m.conversationId), zap.Error(err))
		}
	}
	return nil
}

// Delete soft-deletes a message after explicit confirmation. The
// message keeps its position in the stream; only its content goes.
func (m *MutationController) Delete(ctx context.Context, messageId string, confirmed bool) error {
	if !confirmed {
		return ErrDeleteNotConfirmed
	}

	current, ok := m.lookup(messageId)
	if !ok {
		return ErrMessageNotFound
	}
	if current.SenderId != m.self {
		return ErrNotMessageAuthor
	}

	return m.api.DeleteMessage(ctx, messageId)
}
