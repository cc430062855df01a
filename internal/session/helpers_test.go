package session

import (
	"context"
	"sync"
	"time"

	"chatsync/internal/entity"
	"chatsync/internal/repository"
)

// fakeAPI records message calls and lets tests inject failures or hold
// a send open to exercise the in-flight path.
type fakeAPI struct {
	mu        sync.Mutex
	sends     int
	edits     int
	deletes   int
	sendErr   error
	editErr   error
	deleteErr error
	lastText  string
	lastPeer  string

	// blockSend, when non-nil, holds SendMessage open until closed.
	blockSend chan struct{}
}

func (f *fakeAPI) SendMessage(_ context.Context, receiverId, text string, _ []entity.Attachment) error {
	f.mu.Lock()
	f.sends++
	f.lastPeer = receiverId
	f.lastText = text
	block := f.blockSend
	err := f.sendErr
	f.mu.Unlock()

	if block != nil {
		<-block
	}
	return err
}

func (f *fakeAPI) EditMessage(_ context.Context, _, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits++
	f.lastText = text
	return f.editErr
}

func (f *fakeAPI) DeleteMessage(_ context.Context, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes++
	return f.deleteErr
}

func (f *fakeAPI) counts() (sends, edits, deletes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sends, f.edits, f.deletes
}

type typingCall struct {
	userId string
	typing bool
}

// fakeConvRepo records typing publications. The embedded interface is
// left nil; any other call is a test bug and panics loudly.
type fakeConvRepo struct {
	repository.ConversationRepository

	typingErr error
	calls     chan typingCall
}

func newFakeConvRepo() *fakeConvRepo {
	return &fakeConvRepo{calls: make(chan typingCall, 16)}
}

func (f *fakeConvRepo) SetTyping(_ context.Context, _, userId string, typing bool) error {
	f.calls <- typingCall{userId: userId, typing: typing}
	return f.typingErr
}

func (f *fakeConvRepo) waitTyping(timeout time.Duration) (typingCall, bool) {
	select {
	case call := <-f.calls:
		return call, true
	case <-time.After(timeout):
		return typingCall{}, false
	}
}

// fakeMsgRepo exposes the watch channel directly so tests can redeliver
// identical snapshots, and funnels read-receipt writes into a channel.
type fakeMsgRepo struct {
	repository.MessageRepository

	watch chan []entity.Message
	reads chan string
}

func newFakeMsgRepo() *fakeMsgRepo {
	return &fakeMsgRepo{
		watch: make(chan []entity.Message, 16),
		reads: make(chan string, 16),
	}
}

func (f *fakeMsgRepo) Watch(_ context.Context, _ string) (<-chan []entity.Message, func(), error) {
	return f.watch, func() {}, nil
}

func (f *fakeMsgRepo) AppendReadBy(_ context.Context, messageId, _ string) error {
	f.reads <- messageId
	return nil
}
