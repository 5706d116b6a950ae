package httpapi

import (
	"log"
	"net/http"

	"nhooyr.io/websocket"
)

// handleEvents upgrades to a websocket and subscribes the connection to the
// event hub, mirroring the teacher's WebSocketHub.ServeHTTP origin check and
// upgrade options.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"localhost:*", "127.0.0.1:*"},
	})
	if err != nil {
		log.Printf("httpapi: websocket upgrade failed: %v", err)
		return
	}
	s.events.ServeWS(conn)
}
