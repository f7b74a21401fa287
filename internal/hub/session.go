package hub

import (
	"io"
	"time"

	"github.com/gorilla/websocket"

	"github.com/arvhov/chatrelay/internal/envelope"
)

// SessionState tracks a connection through its lifecycle. Transitions
// happen only on the dispatcher goroutine and never skip StateClosing.
type SessionState int8

const (
	StateConnecting SessionState = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// wsConn is the slice of *websocket.Conn the session uses, kept as an
// interface so tests can swap in an in-memory fake.
type wsConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	NextWriter(messageType int) (io.WriteCloser, error)
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(string) error)
	Close() error
}

// Session is the server-side representative of one connected client. The
// read and write pumps own the conn; room, username and state belong to
// the dispatcher goroutine.
type Session struct {
	id   string
	conn wsConn
	hub  *Hub
	send chan []byte

	room       string
	username   string
	state      SessionState
	sendClosed bool
}

func newSession(id string, conn wsConn, h *Hub, sendBuffer int) *Session {
	return &Session{
		id:    id,
		conn:  conn,
		hub:   h,
		send:  make(chan []byte, sendBuffer),
		state: StateConnecting,
	}
}

// ID returns the opaque per-connection identifier.
func (s *Session) ID() string { return s.id }

// readPump reads frames from the socket and forwards decoded envelopes
// to the dispatcher. It enforces the read limit and the idle threshold:
// a connection that stays silent past the deadline is closed by the
// server and surfaces to the peer as a network failure.
func (s *Session) readPump() {
	defer func() {
		select {
		case s.hub.unregister <- s:
		case <-s.hub.done:
		}
		s.conn.Close()
	}()

	s.conn.SetReadLimit(s.hub.cfg.MaxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(s.hub.cfg.IdleTimeout))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(s.hub.cfg.IdleTimeout))
		return nil
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.hub.logger.Warnf("Read error on session %s: %v", s.id, err)
			}
			return
		}
		s.conn.SetReadDeadline(time.Now().Add(s.hub.cfg.IdleTimeout))

		env, err := envelope.Decode(data)
		if err != nil {
			// Protocol error: drop the frame, keep the connection.
			s.hub.logger.Warnf("Dropping frame from session %s: %v", s.id, err)
			continue
		}

		select {
		case s.hub.inbound <- inboundEnvelope{sess: s, env: env}:
		case <-s.hub.done:
			return
		}
	}
}

// writePump drains the send channel to the socket and keeps the
// connection alive with pings. The dispatcher closing the send channel
// is the signal to write a close frame and stop.
func (s *Session) writePump() {
	pingPeriod := s.hub.cfg.IdleTimeout * 9 / 10
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case data, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(s.hub.cfg.WriteTimeout))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := s.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(data)
			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(s.hub.cfg.WriteTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
