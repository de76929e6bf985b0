// Package domain contains core concepts of the chat relay.
// This file defines conversations, messages and related invariants.
// No runtime, network, or UI logic should be added here.
package domain

import (
	"time"

	"github.com/google/uuid"
)

type (
	UserID         string
	ConversationID string
	MessageID      string
)

func NewMessageID() MessageID { return MessageID(uuid.NewString()) }

func NewConversationID() ConversationID { return ConversationID(uuid.NewString()) }

// Message represents one chat message. A message is append-only once
// created: the only field that mutates afterwards is ReadBy, and it only
// ever grows (union with the acknowledging user, never removal).
type Message struct {
	ID             MessageID
	ConversationID ConversationID
	SenderID       UserID
	Content        string
	CreatedAt      time.Time
	ReadBy         []UserID
}

// ReadByUser reports whether the given user already acknowledged the message.
func (m Message) ReadByUser(userID UserID) bool {
	for _, id := range m.ReadBy {
		if id == userID {
			return true
		}
	}
	return false
}

// UnreadFor reports whether the message counts as unread for the viewer.
// A sender never sees their own message as unread.
func (m Message) UnreadFor(viewer UserID) bool {
	if m.SenderID == viewer {
		return false
	}
	return !m.ReadByUser(viewer)
}

// Conversation is the persisted chat descriptor. The relay itself only
// caches the member set; everything else lives in the store.
type Conversation struct {
	ID            ConversationID
	Name          string
	Members       []UserID
	IsGroup       bool
	LatestMessage *Message
}

func (c Conversation) HasMember(userID UserID) bool {
	for _, id := range c.Members {
		if id == userID {
			return true
		}
	}
	return false
}
