// Package archive publishes persisted chat messages to a NATS JetStream
// stream. The feed is strictly best-effort: the server runs fine without
// a NATS connection, and a publish failure never affects delivery to
// connected clients.
package archive

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/arvhov/chatrelay/internal/logger"
	"github.com/arvhov/chatrelay/internal/store"
)

const (
	streamName      = "CHAT_MESSAGES"
	subjectPrefix   = "chat.messages."
	streamRetention = 24 * time.Hour
)

// Publisher mirrors persisted messages onto JetStream.
type Publisher struct {
	nc     *nats.Conn
	js     nats.JetStreamContext
	logger *logger.Logger
}

// Connect dials NATS and ensures the message stream exists. An empty URL
// or an unreachable server yields a disabled publisher rather than an
// error, matching the relay's soft dependency on the feed.
func Connect(url string, log *logger.Logger) *Publisher {
	p := &Publisher{logger: log}
	if url == "" {
		log.Info("NATS URL not configured, archive feed disabled")
		return p
	}

	nc, err := nats.Connect(url)
	if err != nil {
		log.Warnf("NATS connect failed, archive feed disabled: %v", err)
		return p
	}
	js, err := nc.JetStream()
	if err != nil {
		log.Warnf("JetStream unavailable, archive feed disabled: %v", err)
		nc.Close()
		return p
	}

	streamConfig := &nats.StreamConfig{
		Name:     streamName,
		Subjects: []string{subjectPrefix + "*"},
		Storage:  nats.FileStorage,
		MaxAge:   streamRetention,
	}
	if _, err := js.StreamInfo(streamName); err != nil {
		if _, err := js.AddStream(streamConfig); err != nil {
			log.Warnf("Creating stream %s failed, archive feed disabled: %v", streamName, err)
			nc.Close()
			return p
		}
		log.Infof("Created stream: %s", streamName)
	} else {
		if _, err := js.UpdateStream(streamConfig); err != nil {
			log.Warnf("Updating stream %s failed: %v", streamName, err)
		}
	}

	p.nc = nc
	p.js = js
	log.Infof("Archive feed connected to NATS at %s", url)
	return p
}

// Enabled reports whether the feed has a live JetStream context.
func (p *Publisher) Enabled() bool {
	return p.nc != nil && p.js != nil
}

// Connected reports the health of the underlying NATS connection.
func (p *Publisher) Connected() bool {
	return p.nc != nil && p.nc.Status() == nats.CONNECTED
}

// Publish mirrors one persisted message onto the stream. Failures are
// logged and swallowed.
func (p *Publisher) Publish(msg *store.Message) {
	if !p.Enabled() {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		p.logger.Errorf("Failed to marshal message %s for archive: %v", msg.ID, err)
		return
	}
	subject := fmt.Sprintf("%s%s", subjectPrefix, msg.Room)
	if _, err := p.js.Publish(subject, data); err != nil {
		p.logger.Errorf("Failed to publish message %s to archive: %v", msg.ID, err)
	}
}

// Close drains the NATS connection.
func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}
