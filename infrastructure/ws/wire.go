// Package ws is the WebSocket edge of the relay. It decodes client frames,
// validates them, hands the intent to the chat service, and encodes domain
// events back into server frames.
package ws

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"encoding/json"
	"time"

	"github.com/samber/lo"
)

// ClientFrame is the envelope of every client-originated message.
type ClientFrame struct {
	Event string          `json:"event" validate:"required"`
	Data  json.RawMessage `json:"data"`
}

const (
	frameSetup       = "setup"
	frameJoinChat    = "join chat"
	frameTyping      = "typing"
	frameStopTyping  = "stop typing"
	frameNewMessage  = "new message"
	frameReadReceipt = "read receipt"
)

type SetupPayload struct {
	UserID string `json:"user_id" validate:"required,max=128"`
}

type JoinPayload struct {
	ConversationID string `json:"conversation_id" validate:"required,max=128"`
}

type TypingPayload struct {
	ConversationID string `json:"conversation_id" validate:"required,max=128"`
}

type NewMessagePayload struct {
	ConversationID string `json:"conversation_id" validate:"required,max=128"`
	Content        string `json:"content" validate:"required,max=4096"`
}

// ReadReceiptPayload accepts the acknowledged identities either as an array
// or as one flattened string, the shape naive clients send for a
// single-element batch.
type ReadReceiptPayload struct {
	MessageIDs FlexibleIDs `json:"message_ids" validate:"required,min=1"`
}

// FlexibleIDs decodes both `"id"` and `["id1","id2"]` into a slice.
type FlexibleIDs []string

func (f *FlexibleIDs) UnmarshalJSON(data []byte) error {
	var many []string
	if err := json.Unmarshal(data, &many); err == nil {
		*f = many
		return nil
	}
	var one string
	if err := json.Unmarshal(data, &one); err != nil {
		return err
	}
	*f = []string{one}
	return nil
}

func (f FlexibleIDs) MessageIDs() []domain.MessageID {
	return lo.Map(f, func(id string, _ int) domain.MessageID {
		return domain.MessageID(id)
	})
}

// ServerFrame is the envelope of every server-originated message.
type ServerFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

type WireMessage struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
	ReadBy         []string  `json:"read_by"`
}

type wireTyping struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
}

type wireReceipts struct {
	ConversationID string        `json:"conversation_id"`
	Messages       []WireMessage `json:"messages"`
}

type wireError struct {
	Event  string `json:"event"`
	Reason string `json:"reason"`
}

// EncodeEvent maps a domain event onto its server frame. The event names
// mirror the client frames so both sides speak one vocabulary.
func EncodeEvent(e event.DomainEvent) ServerFrame {
	switch evt := e.(type) {
	case event.MessageReceived:
		return ServerFrame{Event: "message received", Data: ToWireMessage(evt.Message)}
	case event.TypingStarted:
		return ServerFrame{Event: "typing", Data: wireTyping{
			ConversationID: string(evt.ConversationID),
			UserID:         string(evt.UserID),
		}}
	case event.TypingStopped:
		return ServerFrame{Event: "stop typing", Data: wireTyping{
			ConversationID: string(evt.ConversationID),
			UserID:         string(evt.UserID),
		}}
	case event.ReadReceiptsUpdated:
		return ServerFrame{Event: "read receipts updated", Data: wireReceipts{
			ConversationID: string(evt.ConversationID),
			Messages: lo.Map(evt.Messages, func(m domain.Message, _ int) WireMessage {
				return ToWireMessage(m)
			}),
		}}
	case errorEvent:
		return ServerFrame{Event: "error", Data: wireError{
			Event:  evt.source,
			Reason: evt.reason,
		}}
	default:
		return ServerFrame{Event: string(e.Kind())}
	}
}

func ToWireMessage(message domain.Message) WireMessage {
	return WireMessage{
		ID:             string(message.ID),
		ConversationID: string(message.ConversationID),
		SenderID:       string(message.SenderID),
		Content:        message.Content,
		CreatedAt:      message.CreatedAt,
		ReadBy: lo.Map(message.ReadBy, func(id domain.UserID, _ int) string {
			return string(id)
		}),
	}
}

// ToMessage rebuilds a domain message from its wire shape, used by the
// terminal client when folding server frames into its projection.
func ToMessage(wire WireMessage) domain.Message {
	return domain.Message{
		ID:             domain.MessageID(wire.ID),
		ConversationID: domain.ConversationID(wire.ConversationID),
		SenderID:       domain.UserID(wire.SenderID),
		Content:        wire.Content,
		CreatedAt:      wire.CreatedAt,
		ReadBy: lo.Map(wire.ReadBy, func(id string, _ int) domain.UserID {
			return domain.UserID(id)
		}),
	}
}
