package realtime

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		// Tauri desktop builds and the Android webview send no Origin.
		if origin == "" {
			return true
		}
		return strings.Contains(origin, "localhost") || strings.Contains(origin, "127.0.0.1") ||
			strings.HasPrefix(origin, "tauri://")
	},
}

// ServeWS upgrades an authenticated request and hands the connection to the
// hub. Authentication already happened in middleware; identity comes from
// the verified token, the diagnostic tags from handshake query params.
func ServeWS(hub *Hub, w http.ResponseWriter, r *http.Request, identity Identity) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade WebSocket connection",
			"userID", identity.UserID, "error", err)
		return
	}

	s := newSession(hub, conn, identity)
	slog.Info("New realtime connection",
		"sessionID", s.ID(), "userID", identity.UserID, "clientType", identity.ClientType)

	select {
	case hub.register <- s:
	case <-time.After(5 * time.Second):
		slog.Error("Timeout registering session",
			"sessionID", s.ID(), "userID", identity.UserID)
		conn.Close()
		return
	}

	go s.writePump()
	go s.readPump()
}
