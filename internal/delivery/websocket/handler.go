package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"chatsync/internal/repository"
	"chatsync/internal/session"
	"chatsync/internal/usecase"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type WebsocketHandler struct {
	convRepo  repository.ConversationRepository
	msgRepo   repository.MessageRepository
	userRepo  repository.UserRepository
	messageUc usecase.MessageUsecase
	log       *zap.Logger
}

func NewWebsocketHandler(
	convRepo repository.ConversationRepository,
	msgRepo repository.MessageRepository,
	userRepo repository.UserRepository,
	messageUc usecase.MessageUsecase,
	log *zap.Logger,
) *WebsocketHandler {
	return &WebsocketHandler{
		convRepo:  convRepo,
		msgRepo:   msgRepo,
		userRepo:  userRepo,
		messageUc: messageUc,
		log:       log,
	}
}

// HandleWebSocket serves two connection modes. With ?peer= it opens a
// conversation session that streams ViewState frames and accepts
// composer and mutation commands. Without it the connection streams
// conversation list frames. Either way, connection close tears the
// whole thing down.
func (h *WebsocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userId := chi.URLParam(r, "userId")
	if userId == "" {
		http.Error(w, "Missing user ID", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	if peerId := r.URL.Query().Get("peer"); peerId != "" {
		h.serveSession(conn, userId, peerId)
	} else {
		h.serveList(conn, userId)
	}
}

func (h *WebsocketHandler) serveSession(conn *websocket.Conn, userId, peerId string) {
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sess := session.New(session.Config{
		Self:          userId,
		Peer:          peerId,
		Conversations: h.convRepo,
		Messages:      h.msgRepo,
		Users:         h.userRepo,
		API:           usecase.NewLocalMessageAPI(h.messageUc, userId),
		Logger:        h.log,
	})
	sess.Start(ctx)
	defer sess.Close()

	writer := newFrameWriter(conn)

	// The updates channel stays open across the session's lifetime, so
	// the pump must also watch Done or it outlives the connection.
	go func() {
		for {
			select {
			case <-sess.Done():
				return
			case view := <-sess.Updates():
				if err := writer.write(ViewFrame{Type: "view", View: view}); err != nil {
					return
				}
			}
		}
	}()
	writer.write(ViewFrame{Type: "view", View: sess.View()})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			h.log.Debug("unknown frame", zap.String("userId", userId), zap.Error(err))
			continue
		}
		h.dispatch(ctx, writer, sess, cmd)
	}
}

func (h *WebsocketHandler) dispatch(ctx context.Context, writer *frameWriter, sess *session.Session, cmd Command) {
	var err error
	switch cmd.Action {
	case "draft":
		sess.Compose.SetDraft(session.Draft{Text: cmd.Text})
	case "send":
		err = sess.Compose.Send(ctx)
	case "keystroke":
		sess.Presence.Keystroke()
	case "blur":
		sess.Presence.Stop()
	case "edit":
		err = sess.Mutator.Edit(ctx, cmd.MessageId, cmd.Text)
	case "delete":
		err = sess.Mutator.Delete(ctx, cmd.MessageId, cmd.Confirmed)
	case "toggleBlock":
		err = sess.Guard.Toggle(ctx)
	default:
		h.log.Debug("unknown action", zap.String("action", cmd.Action))
	}

	if err != nil {
		writer.write(ErrorFrame{Type: "error", Message: err.Error()})
	}
}

func (h *WebsocketHandler) serveList(conn *websocket.Conn, userId string) {
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	list := session.NewConversationListCoordinator(h.convRepo, userId, h.log)
	list.Start(ctx)
	defer list.Close()

	writer := newFrameWriter(conn)

	go func() {
		for {
			select {
			case <-list.Done():
				return
			case items := <-list.Updates():
				if err := writer.write(ListFrame{Type: "list", Items: items}); err != nil {
					return
				}
			}
		}
	}()
	writer.write(ListFrame{Type: "list", Items: list.Items()})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil || cmd.Action != "markReadUnread" {
			continue
		}
		if err := list.MarkReadUnread(ctx, cmd.ConversationId, cmd.MarkUnread); err != nil {
			writer.write(ErrorFrame{Type: "error", Message: err.Error()})
		}
	}
}

// frameWriter serializes concurrent writers onto one connection; the
// update pump and the command dispatcher both produce frames.
type frameWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func newFrameWriter(conn *websocket.Conn) *frameWriter {
	return &frameWriter{conn: conn}
}

func (w *frameWriter) write(frame any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteJSON(frame)
}
