package server

import (
	"log"
	"sync"
	"time"

	"github.com/room4-2/gensyn-guide/messages"
	"github.com/room4-2/gensyn-guide/session"

	"github.com/gorilla/websocket"
)

const (
	writeBufferSize = 256
	writeTimeout    = 10 * time.Second
	maxMessageSize  = 64 * 1024
)

// client is one connected front-end tab
type client struct {
	server *Server
	conn   *websocket.Conn

	// Use channels for non-blocking writes
	writeChan chan *messages.ServerMessage
	closeChan chan struct{}

	mu     sync.Mutex
	live   *session.Controller
	closed bool
}

func newClient(s *Server, conn *websocket.Conn) *client {
	conn.SetReadLimit(maxMessageSize)
	return &client{
		server:    s,
		conn:      conn,
		writeChan: make(chan *messages.ServerMessage, writeBufferSize),
		closeChan: make(chan struct{}),
	}
}

func (c *client) liveSession() *session.Controller {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.live
}

func (c *client) setLiveSession(ctrl *session.Controller) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.live = ctrl
}

// queueMessage adds a message to the write queue (non-blocking)
func (c *client) queueMessage(msg *messages.ServerMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.writeChan <- msg:
	default:
		// Queue full, drop message
		log.Printf("⚠️ Dropping %s message for slow client", msg.Type)
	}
}

// writePump handles all outgoing messages in a single goroutine
func (c *client) writePump() {
	keepalive := c.server.config.KeepAlivePeriod
	if keepalive <= 0 {
		keepalive = 30 * time.Second
	}
	ticker := time.NewTicker(keepalive)
	defer func() {
		ticker.Stop()
		// Send close message before exiting
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		c.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		c.conn.Close()
	}()

	for {
		select {
		case <-c.closeChan:
			return
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case msg := <-c.writeChan:
			data, err := messages.Encode(msg)
			if err != nil {
				log.Printf("❌ Failed to encode %s message: %v", msg.Type, err)
				continue
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}
}

func (c *client) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("❌ WebSocket read error: %v", err)
			}
			return
		}

		msg, err := messages.DecodeClientMessage(data)
		if err != nil {
			c.queueMessage(messages.NewErrorMessage("", messages.ErrCodeInvalidMessage, "Invalid message format"))
			continue
		}
		c.processClientMessage(msg)
	}
}

func (c *client) processClientMessage(msg *messages.ClientMessage) {
	switch msg.Type {
	case messages.TypeControl:
		payload, err := messages.DecodeControl(msg.Payload)
		if err != nil {
			c.queueMessage(messages.NewErrorMessage("", messages.ErrCodeInvalidMessage, "Invalid control payload"))
			return
		}
		c.handleControlMessage(payload)

	case messages.TypeSpeak:
		payload, err := messages.DecodeSpeak(msg.Payload)
		if err != nil {
			c.queueMessage(messages.NewErrorMessage("", messages.ErrCodeInvalidMessage, "Invalid speak payload"))
			return
		}
		c.server.speak(c, payload)

	default:
		c.queueMessage(messages.NewErrorMessage("", messages.ErrCodeInvalidMessage, "Unknown message type: "+msg.Type))
	}
}

func (c *client) handleControlMessage(payload *messages.ControlPayload) {
	switch payload.Action {
	case messages.ActionPing:
		c.queueMessage(messages.NewStatusMessage("", "pong", ""))
	case messages.ActionOpenLive:
		c.server.openLive(c)
	case messages.ActionCloseLive:
		c.server.closeLive(c)
	default:
		c.queueMessage(messages.NewErrorMessage("", messages.ErrCodeInvalidMessage, "Unknown control action: "+payload.Action))
	}
}

// forward relays a live session's updates until it closes or the client
// leaves.
func (c *client) forward(ctrl *session.Controller, updates <-chan session.Update, cancel func()) {
	defer cancel()
	for {
		select {
		case <-c.closeChan:
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			c.queueMessage(messages.NewStatusMessage(ctrl.ID, string(u.Status), u.Message))
			if u.Status == session.StatusError {
				// The stream failed after the session opened.
				c.queueMessage(messages.NewErrorMessage(ctrl.ID, messages.ErrCodeConnectionClosed, u.Message))
			}
			if len(u.Items) == 0 {
				continue
			}
			entries := make([]messages.TranscriptEntry, len(u.Items))
			for i, item := range u.Items {
				entries[i] = messages.TranscriptEntry{Speaker: string(item.Speaker), Text: item.Text}
			}
			c.queueMessage(messages.NewTranscriptMessage(ctrl.ID, entries))
		}
	}
}

// close ends the client's live session and stops its write pump.
func (c *client) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	live := c.live
	c.live = nil
	close(c.closeChan)
	c.mu.Unlock()

	if live != nil {
		c.server.sessionManager.RemoveSession(c.server.ctx, live.ID)
	}
}
