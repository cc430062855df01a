package http

import (
	"net/http"

	wsDelivery "chatsync/internal/delivery/websocket"

	"github.com/go-chi/chi/v5"
)

func MapHttpRoutes(r *chi.Mux, httpHandler *HttpHandler, websocketHandler *wsDelivery.WebsocketHandler, authMiddleware *AuthMiddleware, uploadDir string) {
	r.Handle("/ws/{userId}", http.HandlerFunc(websocketHandler.HandleWebSocket))

	r.Handle("/uploads/*", http.StripPrefix("/uploads/", http.FileServer(http.Dir(uploadDir))))

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Authenticate)

		r.Route("/messages", func(r chi.Router) {
			r.Post("/", http.HandlerFunc(httpHandler.SendMessage))
			r.Patch("/{messageId}", http.HandlerFunc(httpHandler.EditMessage))
			r.Delete("/{messageId}", http.HandlerFunc(httpHandler.DeleteMessage))
		})
	})
}
