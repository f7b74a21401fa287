package hub

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ServeWs upgrades the HTTP connection and hands the socket to the
// dispatcher. The session is registered before its pumps start so the
// loop always sees the registration ahead of the first envelope.
func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return originAllowed(r, h.cfg.AllowedOrigins)
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Errorf("WebSocket upgrade error: %v", err)
		return
	}

	s := newSession(uuid.NewString(), conn, h, h.cfg.SendBuffer)
	select {
	case h.register <- s:
	case <-h.done:
		conn.Close()
		return
	}
	go s.writePump()
	go s.readPump()
}

// originAllowed matches the request Origin against the configured list.
// "*" allows everything; an absent Origin header (non-browser clients)
// is accepted.
func originAllowed(r *http.Request, allowed []string) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return false
	}
	normalized := strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host)
	for _, a := range allowed {
		if a == "*" || strings.ToLower(a) == normalized {
			return true
		}
	}
	return false
}
