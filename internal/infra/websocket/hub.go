package websocket

import (
	"context"
	"errors"
	"sync"

	"github.com/openlearn/admin-api/pkg/domain/authz"
	"github.com/openlearn/admin-api/pkg/domain/bulkop"
	"github.com/openlearn/admin-api/pkg/logger"
)

const (
	maxConnectionsPerUser = 10
	broadcastBufferSize   = 256
)

var errTooMany = errors.New("subscription limit reached")

// AuthorizeFunc reports whether a client may subscribe to a channel.
type AuthorizeFunc func(client *Client, channel string) bool

// SnapshotFunc returns the current state of a channel, sent to a client
// right after it subscribes. ok is false for channels without state.
type SnapshotFunc func(channel string) (data any, ok bool)

type broadcast struct {
	channel string
	msg     *Message
}

// Hub tracks connected clients and fans channel events out to them.
// Registration and broadcast go through Run; subscriptions are applied
// directly under mu.
type Hub struct {
	logger *logger.Logger

	mu         sync.RWMutex
	clients    map[*Client]struct{}
	perActor   map[string]int
	channels   map[string]map[*Client]struct{}
	authorize  AuthorizeFunc
	snapshotFn SnapshotFunc

	broadcasts chan broadcast
	register   chan *Client
	unregister chan *Client
}

// NewHub creates a new Hub.
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		logger:     log.With("component", "websocket_hub"),
		clients:    make(map[*Client]struct{}),
		perActor:   make(map[string]int),
		channels:   make(map[string]map[*Client]struct{}),
		authorize:  defaultAuthorize,
		broadcasts: make(chan broadcast, broadcastBufferSize),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// defaultAuthorize allows the roles channel to everyone and denies
// operation channels, whose visibility depends on the operation owner.
func defaultAuthorize(client *Client, channel string) bool {
	return channel == RolesChannel && client.actor.ID != ""
}

// OperationAuthorizer allows the roles channel to every authenticated
// client and an operation channel to clients that may view the operation.
// owner resolves the actor that started an operation.
func OperationAuthorizer(owner func(operationID string) (string, error), canView func(authz.Actor, string) bool) AuthorizeFunc {
	return func(client *Client, channel string) bool {
		if defaultAuthorize(client, channel) {
			return true
		}
		kind, id := ParseChannel(channel)
		if kind != ChannelTypeBulkOperation || id == "" {
			return false
		}
		ownerID, err := owner(id)
		if err != nil {
			return false
		}
		return canView(client.actor, ownerID)
	}
}

// ProgressSnapshot serves the current progress of bulk_operation channels.
func ProgressSnapshot(get func(operationID string) (bulkop.Progress, error)) SnapshotFunc {
	return func(channel string) (any, bool) {
		kind, id := ParseChannel(channel)
		if kind != ChannelTypeBulkOperation || id == "" {
			return nil, false
		}
		p, err := get(id)
		if err != nil {
			return nil, false
		}
		return p, true
	}
}

// SetAuthorizeFunc replaces the subscription check.
func (h *Hub) SetAuthorizeFunc(fn AuthorizeFunc) {
	h.mu.Lock()
	h.authorize = fn
	h.mu.Unlock()
}

// SetSnapshotFunc sets the state sent after a successful subscribe.
func (h *Hub) SetSnapshotFunc(fn SnapshotFunc) {
	h.mu.Lock()
	h.snapshotFn = fn
	h.mu.Unlock()
}

// Run processes registrations and broadcasts until ctx is done, then
// closes every client.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("websocket hub started")
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("websocket hub stopping")
			h.closeAll()
			return
		case c := <-h.register:
			h.add(c)
		case c := <-h.unregister:
			h.remove(c)
		case b := <-h.broadcasts:
			h.fanOut(b)
		}
	}
}

// RegisterClient registers a new client.
func (h *Hub) RegisterClient(client *Client) {
	h.register <- client
}

// UnregisterClient unregisters a client.
func (h *Hub) UnregisterClient(client *Client) {
	h.unregister <- client
}

// BroadcastEvent queues an event for a channel. It never blocks: when the
// queue is full the event is dropped, since a fresher one follows or the
// state can be fetched over HTTP.
func (h *Hub) BroadcastEvent(channel string, data any) bool {
	msg, err := newMessage(MessageTypeEvent, channel, "", data)
	if err != nil {
		h.logger.Error("failed to encode event", "channel", channel, "error", err)
		return false
	}
	select {
	case h.broadcasts <- broadcast{channel: channel, msg: msg}:
		return true
	default:
		h.logger.Warn("broadcast queue full, dropping event", "channel", channel)
		return false
	}
}

// PublishProgress pushes a bulk operation snapshot to its subscribers.
func (h *Hub) PublishProgress(_ context.Context, p bulkop.Progress) {
	h.BroadcastEvent(MakeChannel(ChannelTypeBulkOperation, p.OperationID), p)
}

// PublishRolesReloaded announces that the role hierarchy changed.
func (h *Hub) PublishRolesReloaded(data any) {
	h.BroadcastEvent(RolesChannel, data)
}

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	n := h.perActor[c.actor.ID]
	if n >= maxConnectionsPerUser {
		h.mu.Unlock()
		h.logger.Warn("connection limit exceeded", "actor_id", c.actor.ID, "max", maxConnectionsPerUser)
		c.Close()
		return
	}
	h.perActor[c.actor.ID] = n + 1
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	h.logger.Debug("client registered", "client_id", c.ID, "actor_id", c.actor.ID)
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	for channel, members := range h.channels {
		delete(members, c)
		if len(members) == 0 {
			delete(h.channels, channel)
		}
	}
	if n := h.perActor[c.actor.ID]; n > 1 {
		h.perActor[c.actor.ID] = n - 1
	} else {
		delete(h.perActor, c.actor.ID)
	}
}

func (h *Hub) subscribeToChannel(c *Client, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members := h.channels[channel]
	if members == nil {
		members = make(map[*Client]struct{})
		h.channels[channel] = members
	}
	members[c] = struct{}{}
}

func (h *Hub) unsubscribeFromChannel(c *Client, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if members, ok := h.channels[channel]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.channels, channel)
		}
	}
}

func (h *Hub) authorizeSubscription(c *Client, channel string) bool {
	h.mu.RLock()
	fn := h.authorize
	h.mu.RUnlock()
	if fn == nil {
		return true
	}
	return fn(c, channel)
}

func (h *Hub) snapshot(channel string) (any, bool) {
	h.mu.RLock()
	fn := h.snapshotFn
	h.mu.RUnlock()
	if fn == nil {
		return nil, false
	}
	return fn(channel)
}

func (h *Hub) fanOut(b broadcast) {
	h.mu.RLock()
	members := make([]*Client, 0, len(h.channels[b.channel]))
	for c := range h.channels[b.channel] {
		members = append(members, c)
	}
	h.mu.RUnlock()

	for _, c := range members {
		if err := c.SendMessage(b.msg); err != nil {
			h.logger.Debug("failed to send event", "client_id", c.ID, "channel", b.channel, "error", err)
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		c.Close()
	}
	h.clients = make(map[*Client]struct{})
	h.channels = make(map[string]map[*Client]struct{})
	h.perActor = make(map[string]int)
}

// Stats returns hub statistics.
func (h *Hub) Stats() HubStats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	perChannel := make(map[string]int, len(h.channels))
	for channel, members := range h.channels {
		perChannel[channel] = len(members)
	}
	return HubStats{
		Clients:        len(h.clients),
		Channels:       len(h.channels),
		ChannelClients: perChannel,
	}
}

// HubStats contains hub statistics.
type HubStats struct {
	Clients        int            `json:"clients"`
	Channels       int            `json:"channels"`
	ChannelClients map[string]int `json:"channel_clients"`
}
