package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/mossy-p/lifecounter/internal/middleware"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking is handled by middleware
		return true
	},
}

// Subscribe streams the events of a lobby to the caller over a websocket
func (h *Handler) Subscribe(c *gin.Context) {
	code := lobbyID(c)
	actor := middleware.ActorID(c)

	// Validate lobby exists before upgrading
	if _, err := h.lobbies.Get(c.Request.Context(), code); err != nil {
		fail(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithError(err).Warn("Failed to upgrade connection")
		return
	}
	middleware.LogWebSocketConnect(h.logger, c.ClientIP(), code, actor)

	if err := h.hub.Attach(c.Request.Context(), conn, code, actor); err != nil {
		h.logger.WithError(err).WithField("lobby", code).Error("Failed to attach websocket")
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "subscription failed"))
		conn.Close()
	}
}
