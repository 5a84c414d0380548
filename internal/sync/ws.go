package sync

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSHandler streams the events of ?job=<id>, history first.
func WSHandler(hub *Hub, logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "ws")

	return func(c *gin.Context) {
		job := strings.TrimSpace(c.Query("job"))
		if job == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "job is required"})
			return
		}

		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		if err := hub.Join(job, ws); err != nil {
			logger.Warn("join failed", "job", job, "error", err)
			_ = ws.Close()
			return
		}
		logger.Info("client connected", "job", job)

		// incoming messages are ignored; the read loop detects disconnects
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				break
			}
		}

		hub.Leave(job, ws)
		logger.Info("client disconnected", "job", job)
	}
}

// HistoryHandler returns the buffered events of ?job=<id> as JSON.
func HistoryHandler(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		job := strings.TrimSpace(c.Query("job"))
		if job == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "job is required"})
			return
		}
		c.JSON(http.StatusOK, hub.History(job))
	}
}
