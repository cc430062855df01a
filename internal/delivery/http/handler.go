package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"chatsync/internal/entity"
	"chatsync/internal/usecase"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const maxUploadBytes = 32 << 20

type HttpHandler struct {
	messageUc usecase.MessageUsecase
	log       *zap.Logger
}

func NewHttpHandler(messageUc usecase.MessageUsecase, log *zap.Logger) *HttpHandler {
	return &HttpHandler{
		messageUc: messageUc,
		log:       log,
	}
}

type Response struct {
	Message string `json:"message"`
	Data    any    `json:"data"`
}

func writeJSON(w http.ResponseWriter, status int, response Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(response)
}

// Method Post /messages
func (h *HttpHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserIdFrom(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, Response{Message: "unauthorized"})
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Message: "invalid multipart form"})
		return
	}

	receiverId := r.FormValue("receiverId")
	if receiverId == "" {
		writeJSON(w, http.StatusBadRequest, Response{Message: "receiverId is required"})
		return
	}
	text := r.FormValue("messageText")

	var attachments []entity.Attachment
	if r.MultipartForm != nil {
		for _, header := range r.MultipartForm.File["files"] {
			file, err := header.Open()
			if err != nil {
				writeJSON(w, http.StatusBadRequest, Response{Message: "unreadable attachment"})
				return
			}
			data, err := io.ReadAll(file)
			file.Close()
			if err != nil {
				writeJSON(w, http.StatusBadRequest, Response{Message: "unreadable attachment"})
				return
			}
			attachments = append(attachments, entity.Attachment{
				Name:        header.Filename,
				ContentType: header.Header.Get("Content-Type"),
				Data:        data,
			})
		}
	}

	message, err := h.messageUc.Send(r.Context(), userId, receiverId, text, attachments)
	if err != nil {
		if errors.Is(err, usecase.ErrEmptyMessage) {
			writeJSON(w, http.StatusBadRequest, Response{Message: "message is empty"})
			return
		}
		h.log.Error("send message failed", zap.String("userId", userId), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Response{Message: "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, Response{Message: "success", Data: message})
}

// Method Patch /messages/:messageId
func (h *HttpHandler) EditMessage(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserIdFrom(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, Response{Message: "unauthorized"})
		return
	}
	messageId := chi.URLParam(r, "messageId")

	var req struct {
		MessageText string `json:"messageText"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Message: "invalid request body"})
		return
	}

	if err := h.messageUc.Edit(r.Context(), userId, messageId, req.MessageText); err != nil {
		h.writeMutationError(w, userId, messageId, err)
		return
	}

	writeJSON(w, http.StatusOK, Response{Message: "success"})
}

// Method Delete /messages/:messageId
func (h *HttpHandler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserIdFrom(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, Response{Message: "unauthorized"})
		return
	}
	messageId := chi.URLParam(r, "messageId")

	if err := h.messageUc.Delete(r.Context(), userId, messageId); err != nil {
		h.writeMutationError(w, userId, messageId, err)
		return
	}

	writeJSON(w, http.StatusOK, Response{Message: "success"})
}

func (h *HttpHandler) writeMutationError(w http.ResponseWriter, userId, messageId string, err error) {
	switch {
	case errors.Is(err, usecase.ErrEmptyMessage):
		writeJSON(w, http.StatusBadRequest, Response{Message: "message is empty"})
	case errors.Is(err, usecase.ErrMessageNotFound):
		writeJSON(w, http.StatusNotFound, Response{Message: "message not found"})
	case errors.Is(err, usecase.ErrNotAuthor):
		writeJSON(w, http.StatusForbidden, Response{Message: "not the message author"})
	default:
		h.log.Error("message mutation failed",
			zap.String("userId", userId), zap.String("messageId", messageId), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Response{Message: "internal server error"})
	}
}
