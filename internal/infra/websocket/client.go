package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/openlearn/admin-api/pkg/domain/authz"
	"github.com/openlearn/admin-api/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 256

	// A console watches a handful of operations at a time.
	maxSubscriptionsPerClient = 50
)

// Client is one authenticated console connection.
type Client struct {
	ID    string
	actor authz.Actor

	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	logger *logger.Logger

	subMu         sync.Mutex
	subscriptions map[string]struct{}

	// mu guards closed and the send channel close.
	mu     sync.Mutex
	closed bool
}

// NewClient creates a client bound to actor. conn may be nil in tests.
func NewClient(hub *Hub, conn *websocket.Conn, actor authz.Actor, log *logger.Logger) *Client {
	id := uuid.New().String()
	return &Client{
		ID:            id,
		actor:         actor,
		hub:           hub,
		conn:          conn,
		send:          make(chan []byte, sendBufferSize),
		logger:        log.With("client_id", id, "actor_id", actor.ID),
		subscriptions: make(map[string]struct{}),
	}
}

// Actor returns the identity the client authenticated as.
func (c *Client) Actor() authz.Actor {
	return c.actor
}

// addSubscription records channel. It reports false when already
// subscribed; errTooMany is returned at the per-client cap.
func (c *Client) addSubscription(channel string) (bool, error) {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	if _, ok := c.subscriptions[channel]; ok {
		return false, nil
	}
	if len(c.subscriptions) >= maxSubscriptionsPerClient {
		return false, errTooMany
	}
	c.subscriptions[channel] = struct{}{}
	return true, nil
}

func (c *Client) removeSubscription(channel string) bool {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	if _, ok := c.subscriptions[channel]; !ok {
		return false
	}
	delete(c.subscriptions, channel)
	return true
}

// Subscriptions returns the subscribed channels.
func (c *Client) Subscriptions() []string {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	out := make([]string, 0, len(c.subscriptions))
	for ch := range c.subscriptions {
		out = append(out, ch)
	}
	return out
}

// SendMessage queues msg. A full buffer drops the message: the console
// re-reads state over HTTP and later events supersede earlier ones.
func (c *Client) SendMessage(msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.enqueue(data)
	return nil
}

func (c *Client) enqueue(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		c.logger.Warn("client send buffer full, dropping message")
	}
}

// Close closes the send queue and the connection. It is idempotent.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true

	close(c.send)
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

// ReadPump reads console frames until the connection fails.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.UnregisterClient(c)
		c.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Debug("websocket read error", "error", err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.reply(MessageTypeError, "", "", ErrorData{Code: ErrCodeInvalidMessage, Message: "Invalid message format"})
			continue
		}
		c.handle(&msg)
	}
}

// WritePump writes queued frames and keepalive pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			// One frame per message; consoles parse each frame as JSON.
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handle(msg *Message) {
	switch msg.Type {
	case MessageTypeSubscribe:
		c.subscribe(msg.Channel, msg.RequestID)
	case MessageTypeUnsubscribe:
		c.unsubscribe(msg.Channel, msg.RequestID)
	case MessageTypePing:
		c.reply(MessageTypePong, "", msg.RequestID, nil)
	default:
		c.reply(MessageTypeError, "", msg.RequestID,
			ErrorData{Code: ErrCodeUnknownType, Message: "Unknown message type: " + string(msg.Type)})
	}
}

// subscribe acknowledges the subscription and, for channels with state,
// follows up with the current snapshot so late subscribers need no poll.
func (c *Client) subscribe(channel, requestID string) {
	if channel == "" {
		c.reply(MessageTypeError, "", requestID, ErrorData{Code: ErrCodeInvalidChannel, Message: "Channel is required"})
		return
	}
	if !c.hub.authorizeSubscription(c, channel) {
		c.logger.Debug("subscription denied", "channel", channel)
		c.reply(MessageTypeError, channel, requestID, ErrorData{Code: ErrCodeForbidden, Message: "Access denied to channel"})
		return
	}

	added, err := c.addSubscription(channel)
	if err != nil {
		c.logger.Warn("subscription limit exceeded", "max", maxSubscriptionsPerClient)
		c.reply(MessageTypeError, channel, requestID, ErrorData{Code: ErrCodeTooMany, Message: err.Error()})
		return
	}
	if added {
		c.hub.subscribeToChannel(c, channel)
	}
	c.reply(MessageTypeSubscribed, channel, requestID, nil)

	if snapshot, ok := c.hub.snapshot(channel); ok {
		c.reply(MessageTypeSnapshot, channel, requestID, snapshot)
	}
}

func (c *Client) unsubscribe(channel, requestID string) {
	if channel == "" {
		c.reply(MessageTypeError, "", requestID, ErrorData{Code: ErrCodeInvalidChannel, Message: "Channel is required"})
		return
	}
	if c.removeSubscription(channel) {
		c.hub.unsubscribeFromChannel(c, channel)
	}
	c.reply(MessageTypeUnsubscribed, channel, requestID, nil)
}

func (c *Client) reply(msgType MessageType, channel, requestID string, data any) {
	msg, err := newMessage(msgType, channel, requestID, data)
	if err != nil {
		c.logger.Error("failed to encode websocket reply", "type", msgType, "error", err)
		return
	}
	_ = c.SendMessage(msg)
}
