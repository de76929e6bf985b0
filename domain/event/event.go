// Package event defines the closed set of events flowing through the relay.
// Every event carries a discriminant Kind and a payload shape fixed per
// variant; consumers switch on the concrete type, never on loose maps.
package event

import (
	"chat-relay/domain"
)

type Kind string

const (
	KindConnected           Kind = "connected"
	KindMessageReceived     Kind = "message received"
	KindTypingStarted       Kind = "typing"
	KindTypingStopped       Kind = "stop typing"
	KindReadReceiptsUpdated Kind = "read receipts updated"
	KindError               Kind = "error"
)

type DomainEvent interface {
	Kind() Kind
	Conversation() domain.ConversationID
}

// MessageReceived is fanned out to every member connection of the
// conversation, including the sender's other devices.
type MessageReceived struct {
	Message domain.Message
}

func (e MessageReceived) Kind() Kind                          { return KindMessageReceived }
func (e MessageReceived) Conversation() domain.ConversationID { return e.Message.ConversationID }

// TypingStarted is ephemeral UI state. Origin is the exact connection the
// signal came from; the router skips it to avoid self-echo, but the same
// user's other connections still receive the event.
type TypingStarted struct {
	ConversationID domain.ConversationID
	UserID         domain.UserID
	Origin         domain.ConnectionID
}

func (e TypingStarted) Kind() Kind                          { return KindTypingStarted }
func (e TypingStarted) Conversation() domain.ConversationID { return e.ConversationID }

type TypingStopped struct {
	ConversationID domain.ConversationID
	UserID         domain.UserID
	Origin         domain.ConnectionID
}

func (e TypingStopped) Kind() Kind                          { return KindTypingStopped }
func (e TypingStopped) Conversation() domain.ConversationID { return e.ConversationID }

// ReadReceiptsUpdated carries the messages whose ReadBy set grew. One event
// is emitted per conversation touched by a mark-read batch.
type ReadReceiptsUpdated struct {
	ConversationID domain.ConversationID
	Messages       []domain.Message
}

func (e ReadReceiptsUpdated) Kind() Kind                          { return KindReadReceiptsUpdated }
func (e ReadReceiptsUpdated) Conversation() domain.ConversationID { return e.ConversationID }

// ExcludedConnection returns the connection an event must never loop back to,
// or "" when the event is delivered to every member connection.
func ExcludedConnection(e DomainEvent) domain.ConnectionID {
	switch evt := e.(type) {
	case TypingStarted:
		return evt.Origin
	case TypingStopped:
		return evt.Origin
	default:
		return ""
	}
}
