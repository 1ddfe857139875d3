package handlers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/scriptdeck/scriptdeck/internal/services"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Same-origin policy is enforced by the session middleware.
		return true
	},
}

// StreamHandler relays live execution output over a websocket. The buffered
// Execution record remains the authoritative output; the stream is a
// best-effort live view and lines may be dropped under backpressure.
type StreamHandler struct {
	executor *services.ExecutorService
	history  *services.HistoryService
}

// NewStreamHandler creates a new StreamHandler instance.
func NewStreamHandler(executor *services.ExecutorService, history *services.HistoryService) *StreamHandler {
	return &StreamHandler{executor: executor, history: history}
}

// Stream upgrades the connection and forwards output lines until the
// execution completes or the client disconnects.
func (h *StreamHandler) Stream(c *gin.Context) {
	executionID := c.Param("id")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[Stream] Upgrade failed for execution %s: %v", executionID, err)
		return
	}
	defer conn.Close()

	ch := h.executor.Subscribe(executionID)
	defer h.executor.Unsubscribe(executionID, ch)

	// Subscribing before the lookup closes the race with an execution that
	// finishes in between: either the record is already terminal, or the
	// completion message arrives on the channel.
	execution, err := h.history.Get(executionID)
	if err != nil {
		conn.WriteMessage(websocket.TextMessage, []byte("error:execution not found"))
		return
	}
	if execution.Status.Terminal() {
		conn.WriteMessage(websocket.TextMessage, []byte("complete:"+string(execution.Status)))
		return
	}

	// Reader goroutine detects client disconnects.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return
			}
			if len(msg) > 9 && msg[:9] == "complete:" {
				return
			}
		}
	}
}
