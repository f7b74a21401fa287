// Package client implements the consumer side of the relay: connection
// lifecycle, history replay on connect, and reconnect with exponential
// backoff when the link drops.
package client

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/arvhov/chatrelay/internal/envelope"
	"github.com/arvhov/chatrelay/internal/logger"
	"github.com/arvhov/chatrelay/internal/store"
)

// ErrRetriesExhausted is the terminal error surfaced after the reconnect
// ceiling is reached.
var ErrRetriesExhausted = errors.New("reconnect attempts exhausted")

// State is the manager's connection lifecycle state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Conn is the duplex channel the manager drives, satisfied by
// *websocket.Conn and by test fakes.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dialer establishes the duplex channel.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

type wsDialer struct{}

func (wsDialer) Dial(ctx context.Context, url string) (Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Options configures a Manager. Dialer, Clock and Logger default to real
// implementations when nil; Fetcher may stay nil to skip history replay.
type Options struct {
	ServerURL    string // ws://host:port/ws
	Room         string
	Username     string
	HistoryLimit int

	Backoff     Backoff
	MaxAttempts int

	Dialer  Dialer
	Clock   Clock
	Fetcher HistoryFetcher
	Logger  *logger.Logger
}

// Manager owns the outbound connection lifecycle. Inbound envelopes and
// replayed history are delivered through the callbacks passed to
// NewManager; both are invoked from Run's goroutines.
type Manager struct {
	opts      Options
	state     atomic.Int32
	outbound  chan envelope.Envelope
	onInbound func(envelope.Envelope)
	onHistory func([]store.Message)
}

func NewManager(opts Options, onInbound func(envelope.Envelope), onHistory func([]store.Message)) *Manager {
	if opts.Dialer == nil {
		opts.Dialer = wsDialer{}
	}
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewLogger("client")
	}
	if opts.Backoff.Base <= 0 {
		opts.Backoff.Base = 500 * time.Millisecond
	}
	if opts.Backoff.Max <= 0 {
		opts.Backoff.Max = 30 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 8
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 50
	}
	return &Manager{
		opts:      opts,
		outbound:  make(chan envelope.Envelope, 16),
		onInbound: onInbound,
		onHistory: onHistory,
	}
}

// State reports the current lifecycle state. Safe from any goroutine.
func (m *Manager) State() State {
	return State(m.state.Load())
}

func (m *Manager) setState(s State) {
	m.state.Store(int32(s))
}

// Send queues a chat message for delivery on the current or next
// established connection.
func (m *Manager) Send(content string) error {
	if m.State() == StateFailed {
		return ErrRetriesExhausted
	}
	select {
	case m.outbound <- envelope.Envelope{Type: envelope.TypeChat, Content: content}:
		return nil
	default:
		return errors.New("outbound queue full")
	}
}

// Run drives the connection until ctx is cancelled or the retry ceiling
// is hit. A server-side idle close is handled the same way as any other
// link failure: the manager moves to reconnecting.
func (m *Manager) Run(ctx context.Context) error {
	attempts := 0
	for {
		m.setState(StateConnecting)
		conn, err := m.opts.Dialer.Dial(ctx, m.opts.ServerURL)
		if err != nil {
			if ctx.Err() != nil {
				m.setState(StateDisconnected)
				return ctx.Err()
			}
			m.opts.Logger.Warnf("Dial failed: %v", err)
			if waitErr := m.waitRetry(ctx, &attempts); waitErr != nil {
				return waitErr
			}
			continue
		}

		attempts = 0
		m.setState(StateConnected)
		m.opts.Logger.Infof("Connected to %s, joining room %s", m.opts.ServerURL, m.opts.Room)

		err = m.session(ctx, conn)
		conn.Close()
		if ctx.Err() != nil {
			m.setState(StateDisconnected)
			return ctx.Err()
		}
		m.opts.Logger.Warnf("Connection lost: %v", err)
		if waitErr := m.waitRetry(ctx, &attempts); waitErr != nil {
			return waitErr
		}
	}
}

// waitRetry schedules the next attempt, or fails terminally once the
// ceiling is reached.
func (m *Manager) waitRetry(ctx context.Context, attempts *int) error {
	*attempts++
	if *attempts > m.opts.MaxAttempts {
		m.setState(StateFailed)
		return ErrRetriesExhausted
	}
	m.setState(StateReconnecting)
	delay := m.opts.Backoff.Delay(*attempts)
	m.opts.Logger.Infof("Reconnecting in %s (attempt %d/%d)", delay, *attempts, m.opts.MaxAttempts)
	select {
	case <-m.opts.Clock.After(delay):
		return nil
	case <-ctx.Done():
		m.setState(StateDisconnected)
		return ctx.Err()
	}
}

// session runs one established connection: join, history replay, then
// full-duplex relay until the link drops.
func (m *Manager) session(ctx context.Context, conn Conn) error {
	if err := writeEnvelope(conn, envelope.Envelope{
		Type:     envelope.TypeJoin,
		Room:     m.opts.Room,
		Username: m.opts.Username,
	}); err != nil {
		return err
	}

	m.replayHistory(ctx)

	readerDone := make(chan error, 1)
	go func() {
		readerDone <- m.readLoop(conn)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readerDone:
			return err
		case env := <-m.outbound:
			if err := writeEnvelope(conn, env); err != nil {
				return err
			}
		}
	}
}

// replayHistory backfills messages sent before this connection existed.
// The endpoint returns newest first; delivery to the consumer is
// chronological.
func (m *Manager) replayHistory(ctx context.Context) {
	if m.opts.Fetcher == nil || m.onHistory == nil {
		return
	}
	messages, err := m.opts.Fetcher.Recent(ctx, m.opts.Room, m.opts.HistoryLimit)
	if err != nil {
		m.opts.Logger.Warnf("History fetch failed: %v", err)
		return
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	m.onHistory(messages)
}

func (m *Manager) readLoop(conn Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		env, err := envelope.Decode(data)
		if err != nil {
			// Malformed inbound frames never close the connection.
			m.opts.Logger.Warnf("Ignoring malformed envelope: %v", err)
			continue
		}
		switch env.Type {
		case envelope.TypeChat, envelope.TypeSystem, envelope.TypeError:
			if m.onInbound != nil {
				m.onInbound(env)
			}
		default:
			m.opts.Logger.Warnf("Ignoring envelope with unknown type %q", env.Type)
		}
	}
}

func writeEnvelope(conn Conn, env envelope.Envelope) error {
	data, err := envelope.Encode(env)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}
