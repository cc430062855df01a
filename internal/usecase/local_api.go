package usecase

import (
	"context"

	"chatsync/internal/entity"
)

// LocalMessageAPI adapts the message usecase to the session engine's
// MessageAPI for sessions hosted in the same process, bypassing the
// HTTP round-trip. The returned message is discarded on send: the
// canonical copy reaches the engine through its store subscription.
type LocalMessageAPI struct {
	uc     MessageUsecase
	userId string
}

func NewLocalMessageAPI(uc MessageUsecase, userId string) *LocalMessageAPI {
	return &LocalMessageAPI{uc: uc, userId: userId}
}

func (a *LocalMessageAPI) SendMessage(ctx context.Context, receiverId, text string, attachments []entity.Attachment) error {
	_, err := a.uc.Send(ctx, a.userId, receiverId, text, attachments)
	return err
}

func (a *LocalMessageAPI) EditMessage(ctx context.Context, messageId, text string) error {
	return a.uc.Edit(ctx, a.userId, messageId, text)
}

func (a *LocalMessageAPI) DeleteMessage(ctx context.Context, messageId string) error {
	return a.uc.Delete(ctx, a.userId, messageId)
}
