package handlers

import (
	"github.com/gin-gonic/gin"

	"homechat/internal/realtime"
)

type WebSocketHandler struct {
	hub *realtime.Hub
}

func NewWebSocketHandler(hub *realtime.Hub) *WebSocketHandler {
	return &WebSocketHandler{hub: hub}
}

// Serve upgrades the handshake. Identity comes from the verified token;
// clientType and appVersion query params only tag the session for
// diagnostics and never affect authorization.
func (h *WebSocketHandler) Serve(c *gin.Context) {
	identity := realtime.Identity{
		UserID:     c.GetUint("user_id"),
		Username:   c.GetString("username"),
		ClientType: c.Query("clientType"),
		AppVersion: c.Query("appVersionName"),
	}
	if identity.AppVersion == "" {
		identity.AppVersion = c.Query("appVersionCode")
	}

	realtime.ServeWS(h.hub, c.Writer, c.Request, identity)
}
