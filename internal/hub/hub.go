// Package hub implements the server core: the room registry, the
// per-connection session state machine, and the dispatcher loop that
// interprets envelopes, persists chat messages, and fans them out to
// room members.
package hub

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/arvhov/chatrelay/internal/config"
	"github.com/arvhov/chatrelay/internal/envelope"
	"github.com/arvhov/chatrelay/internal/logger"
	"github.com/arvhov/chatrelay/internal/store"
)

const storeTimeout = 5 * time.Second

// MessageStore is the persistence contract the dispatcher depends on.
// Append must either commit the whole message or nothing.
type MessageStore interface {
	Append(ctx context.Context, room, username, content string) (*store.Message, error)
}

// MessageFeed receives every successfully persisted message. Delivery is
// best effort and must never fail the caller.
type MessageFeed interface {
	Publish(msg *store.Message)
}

type inboundEnvelope struct {
	sess *Session
	env  envelope.Envelope
}

// Hub drives all session and room state from a single goroutine. Every
// envelope for every room passes through Run's select loop, which gives
// per-room broadcasts the arrival order of their envelopes, with no
// locking on the registry or session state.
type Hub struct {
	rooms  *Rooms
	store  MessageStore
	feed   MessageFeed
	logger *logger.Logger
	cfg    *config.Config

	sessions   map[*Session]struct{}
	register   chan *Session
	unregister chan *Session
	inbound    chan inboundEnvelope
	done       chan struct{}

	sessionCount atomic.Int64
}

// NewHub creates a hub. The registry is passed in rather than created
// internally so tests can seed and inspect it; feed may be nil.
func NewHub(rooms *Rooms, messages MessageStore, feed MessageFeed, cfg *config.Config, log *logger.Logger) *Hub {
	return &Hub{
		rooms:      rooms,
		store:      messages,
		feed:       feed,
		logger:     log,
		cfg:        cfg,
		sessions:   make(map[*Session]struct{}),
		register:   make(chan *Session),
		unregister: make(chan *Session),
		inbound:    make(chan inboundEnvelope),
		done:       make(chan struct{}),
	}
}

// Run is the dispatcher loop. It exits when ctx is cancelled, after
// closing every session.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case s := <-h.register:
			h.onRegister(s)

		case s := <-h.unregister:
			h.drop(s)

		case in := <-h.inbound:
			h.dispatch(in.sess, in.env)
		}
	}
}

// SessionCount reports currently registered sessions. Safe off-loop.
func (h *Hub) SessionCount() int64 {
	return h.sessionCount.Load()
}

func (h *Hub) onRegister(s *Session) {
	h.sessions[s] = struct{}{}
	h.sessionCount.Store(int64(len(h.sessions)))
	s.state = StateOpen
	h.logger.Infof("Session %s connected", s.id)
}

func (h *Hub) dispatch(s *Session, env envelope.Envelope) {
	if s.state != StateOpen {
		return
	}
	switch env.Type {
	case envelope.TypeJoin:
		h.onJoin(s, env.Room, env.Username)
	case envelope.TypeChat:
		h.onChat(s, env.Content)
	case envelope.TypeLeave:
		h.drop(s)
	default:
		// Forward compatibility: unknown types are dropped, the
		// connection stays open.
		h.logger.Warnf("Dropping envelope with unknown type %q from session %s", env.Type, s.id)
	}
}

func (h *Hub) onJoin(s *Session, room, username string) {
	if room == "" {
		h.sendTo(s, envelope.Error("room is required"))
		return
	}
	if !validUsername(username) {
		h.sendTo(s, envelope.Error("invalid username: must be 3-20 characters, alphanumeric and underscore only"))
		return
	}

	if s.room == room {
		h.rooms.Register(room, s)
		return
	}
	if s.room != "" {
		h.leaveRoom(s)
	}

	s.username = username
	s.room = room
	h.rooms.Register(room, s)
	h.logger.Infof("Session %s joined room %s as %s", s.id, room, username)

	// Every member, including the joiner, sees the same join log.
	h.broadcastRoom(room, envelope.System(username+" joined"))
}

func (h *Hub) onChat(s *Session, content string) {
	if s.room == "" {
		h.sendTo(s, envelope.Error("join a room before sending messages"))
		return
	}
	content = normalizeContent(content)
	if !validContent(content) {
		h.sendTo(s, envelope.Error("invalid message content: must be 1-500 characters"))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	msg, err := h.store.Append(ctx, s.room, s.username, content)
	cancel()
	if err != nil {
		// Persistence failures are potentially systemic; the sender is
		// told, nobody else ever sees the message.
		h.logger.Errorf("Append failed for session %s in room %s: %v", s.id, s.room, err)
		h.sendTo(s, envelope.Error("message could not be saved and was not delivered"))
		return
	}

	if h.feed != nil {
		h.feed.Publish(msg)
	}

	// Members are fetched after the append returns, not before, so joins
	// that landed while the write was in flight are included.
	h.broadcastRoom(msg.Room, envelope.Envelope{
		Type:      envelope.TypeChat,
		Room:      msg.Room,
		Username:  msg.Username,
		Content:   msg.Content,
		ID:        msg.ID,
		CreatedAt: msg.CreatedAt.Format(time.RFC3339Nano),
	})
}

// broadcastRoom fans an envelope out to the room's current members.
// Delivery is best effort per recipient: a session whose buffer is full
// is scheduled for removal and the loop moves on.
func (h *Hub) broadcastRoom(room string, env envelope.Envelope) {
	data, err := envelope.Encode(env)
	if err != nil {
		h.logger.Errorf("Encoding broadcast for room %s: %v", room, err)
		return
	}

	var failed []*Session
	for _, member := range h.rooms.MembersOf(room) {
		if !h.trySend(member, data) {
			failed = append(failed, member)
		}
	}
	for _, member := range failed {
		h.logger.Warnf("Session %s cannot keep up, disconnecting", member.id)
		h.drop(member)
	}
}

// sendTo delivers an envelope to a single session, used for error
// replies. Failures follow the same slow-consumer policy as broadcast.
func (h *Hub) sendTo(s *Session, env envelope.Envelope) {
	data, err := envelope.Encode(env)
	if err != nil {
		h.logger.Errorf("Encoding reply for session %s: %v", s.id, err)
		return
	}
	if !h.trySend(s, data) {
		h.drop(s)
	}
}

func (h *Hub) trySend(s *Session, data []byte) bool {
	if s.state != StateOpen {
		// Already closing or closed: ignore silently.
		return true
	}
	select {
	case s.send <- data:
		return true
	default:
		return false
	}
}

// leaveRoom removes the session from its room and tells the remaining
// members. Atomic from the dispatcher's point of view: no broadcast can
// observe a half-removed member.
func (h *Hub) leaveRoom(s *Session) {
	room := s.room
	username := s.username
	s.room = ""
	h.rooms.Unregister(room, s)
	h.broadcastRoom(room, envelope.System(username+" left"))
}

// drop transitions a session to CLOSED, unregistering it from its room
// first. Safe to call more than once.
func (h *Hub) drop(s *Session) {
	if s.state == StateClosed {
		return
	}
	s.state = StateClosing
	if s.room != "" {
		h.leaveRoom(s)
	}

	delete(h.sessions, s)
	h.sessionCount.Store(int64(len(h.sessions)))
	s.state = StateClosed
	if !s.sendClosed {
		s.sendClosed = true
		close(s.send)
	}
	h.logger.Infof("Session %s closed", s.id)
}

func (h *Hub) shutdown() {
	h.logger.Infof("Closing %d sessions", len(h.sessions))
	for s := range h.sessions {
		h.drop(s)
	}
}
