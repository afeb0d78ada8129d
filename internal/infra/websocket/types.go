// Package websocket pushes bulk operation progress and role hierarchy
// reloads to console sessions.
package websocket

import (
	"encoding/json"
	"strings"
	"time"
)

// MessageType defines the type of WebSocket message.
type MessageType string

// Sent by the console.
const (
	MessageTypeSubscribe   MessageType = "subscribe"
	MessageTypeUnsubscribe MessageType = "unsubscribe"
	MessageTypePing        MessageType = "ping"
)

// Sent by the server.
const (
	MessageTypePong         MessageType = "pong"
	MessageTypeSubscribed   MessageType = "subscribed"
	MessageTypeUnsubscribed MessageType = "unsubscribed"
	MessageTypeSnapshot     MessageType = "snapshot"
	MessageTypeEvent        MessageType = "event"
	MessageTypeError        MessageType = "error"
)

// Error codes carried in ErrorData.
const (
	ErrCodeInvalidMessage = "INVALID_MESSAGE"
	ErrCodeUnknownType    = "UNKNOWN_MESSAGE_TYPE"
	ErrCodeInvalidChannel = "INVALID_CHANNEL"
	ErrCodeForbidden      = "FORBIDDEN"
	ErrCodeTooMany        = "TOO_MANY_SUBSCRIPTIONS"
)

// Message is the frame exchanged in both directions. Clients name the
// channel in Channel; Data carries event payloads and error details.
type Message struct {
	Type      MessageType     `json:"type"`
	Channel   string          `json:"channel,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
	RequestID string          `json:"request_id,omitempty"`
}

func newMessage(msgType MessageType, channel, requestID string, data any) (*Message, error) {
	msg := &Message{
		Type:      msgType,
		Channel:   channel,
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		msg.Data = raw
	}
	return msg, nil
}

// ErrorData represents error information sent to client.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ChannelType is the part of a channel name before the colon.
type ChannelType string

const (
	// ChannelTypeBulkOperation channels are bulk_operation:{operation_id}.
	ChannelTypeBulkOperation ChannelType = "bulk_operation"
	ChannelTypeRoles         ChannelType = "roles"
)

// RolesChannel is the channel role hierarchy reloads are announced on.
const RolesChannel = "roles:hierarchy"

// ParseChannel splits "{type}:{id}". A name without a colon has no type.
func ParseChannel(channel string) (ChannelType, string) {
	kind, id, ok := strings.Cut(channel, ":")
	if !ok {
		return "", channel
	}
	return ChannelType(kind), id
}

// MakeChannel creates a channel string from type and ID.
func MakeChannel(channelType ChannelType, id string) string {
	return string(channelType) + ":" + id
}
