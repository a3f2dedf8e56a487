package http

import (
	"log/slog"
	"net/http"

	"trivia-session-service/internal/app"
)

// NewRouter wires health, websocket and admin routes.
func NewRouter(service *app.GameService, hub *Hub, logger *slog.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", NewWSHandler(service, hub, logger).ServeWS)
	NewAdminHandler(service, logger).Register(mux)
	return mux
}
