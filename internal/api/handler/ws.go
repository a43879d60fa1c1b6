package handler

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Allows connections from any origin. Tighten in production.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeEventFeed upgrades the connection and streams the live violation
// event feed from Redis. Dashboards consume this; the durable history
// stays in the event log.
func (h *Handler) ServeEventFeed(c *gin.Context) {
	if _, ok := h.actorFromRequest(c); !ok {
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to upgrade connection"})
		return
	}
	defer conn.Close()

	pubsub := h.Storage.SubscribeToEventFeed()
	defer pubsub.Close()

	for msg := range pubsub.Channel() {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(msg.Payload)); err != nil {
			log.Printf("INFO: Event feed subscriber disconnected: %v", err)
			return
		}
	}
}
