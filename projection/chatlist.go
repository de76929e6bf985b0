// Package projection builds each client's local view from observed events.
// Handles recency ordering, dedupe, unread derivation, and the refetch
// fallback. It never emits events and never talks to the network itself.
package projection

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"fmt"
	"log/slog"
	"time"
)

// ChatList is one client's conversation list plus the message list of the
// conversation currently open. Processing is single-threaded by design: the
// owner folds one event to completion before the next, which removes every
// interleaving race from list mutation.
//
// The central invariant users observe: after every fold the list is ordered
// by most recent activity first. Read-state changes never reorder it.
type ChatList struct {
	viewer        domain.UserID
	log           *slog.Logger
	conversations []domain.Conversation
	open          *domain.ConversationID
	openMessages  []domain.Message
	indicator     *TypingIndicator
	refetching    bool
	pending       []event.DomainEvent
	needsRefetch  bool
}

func NewChatList(viewer domain.UserID, quietWindow time.Duration, log *slog.Logger) *ChatList {
	return &ChatList{
		viewer:    viewer,
		log:       log,
		indicator: NewTypingIndicator(quietWindow),
	}
}

// Load replaces the list with a freshly fetched base state, most recent
// first. Used for the initial fetch; CompleteRefetch is the mid-stream
// variant that also replays queued events.
func (l *ChatList) Load(conversations []domain.Conversation) {
	l.conversations = append([]domain.Conversation(nil), conversations...)
}

// Apply folds one event into the local view. While a full-list refetch is
// in flight every event is queued instead, then replayed against the fresh
// base once it lands, so nothing observed mid-refetch is lost.
func (l *ChatList) Apply(e event.DomainEvent) {
	if l.refetching {
		l.pending = append(l.pending, e)
		return
	}
	l.fold(e, false)
}

func (l *ChatList) fold(e event.DomainEvent, replaying bool) {
	switch evt := e.(type) {
	case event.MessageReceived:
		l.foldMessage(evt, replaying)
	case event.ReadReceiptsUpdated:
		l.foldReceipts(evt)
	case event.TypingStarted:
		if l.isOpen(evt.ConversationID) && evt.UserID != l.viewer {
			l.indicator.Set(evt.UserID)
		}
	case event.TypingStopped:
		if l.isOpen(evt.ConversationID) {
			l.indicator.Clear()
		}
	}
}

// foldMessage applies the recency rule: a known conversation gets the new
// latest message and floats to the top. An unknown conversation means the
// client is missing state it cannot safely synthesize, so it requests a
// full-list refetch instead; the event is parked for replay.
func (l *ChatList) foldMessage(evt event.MessageReceived, replaying bool) {
	idx := l.indexOf(evt.Message.ConversationID)
	if idx < 0 {
		if replaying {
			// The fresh base still doesn't know this conversation; give up
			// on this event rather than refetching in a loop.
			l.log.Warn(fmt.Sprintf("Conversation %s unknown after refetch, dropping message %s",
				evt.Message.ConversationID, evt.Message.ID))
			return
		}
		l.needsRefetch = true
		l.pending = append(l.pending, evt)
		return
	}

	conversation := l.conversations[idx]
	message := evt.Message
	conversation.LatestMessage = &message

	// Move to front, preserving the order of everything else.
	l.conversations = append(l.conversations[:idx], l.conversations[idx+1:]...)
	l.conversations = append([]domain.Conversation{conversation}, l.conversations...)

	if l.isOpen(evt.Message.ConversationID) {
		l.openMessages = append(l.openMessages, evt.Message)
		// A message landing in the open conversation ends its sender's
		// typing indicator even if the StopTyping signal got lost.
		if evt.Message.SenderID != l.viewer {
			l.indicator.Clear()
		}
	}
}

// foldReceipts swaps in the richer ReadBy copies wherever the latest
// message of a conversation is among the updated records. Positions are
// untouched: read-state changes must not affect recency order.
func (l *ChatList) foldReceipts(evt event.ReadReceiptsUpdated) {
	byID := make(map[domain.MessageID]domain.Message, len(evt.Messages))
	for _, message := range evt.Messages {
		byID[message.ID] = message
	}

	for i, conversation := range l.conversations {
		if conversation.LatestMessage == nil {
			continue
		}
		if updated, ok := byID[conversation.LatestMessage.ID]; ok {
			message := updated
			l.conversations[i].LatestMessage = &message
		}
	}

	if l.open != nil {
		for i, message := range l.openMessages {
			if updated, ok := byID[message.ID]; ok {
				l.openMessages[i] = updated
			}
		}
	}
}

// NeedsRefetch reports that an event referenced a conversation the client
// doesn't know. The owner is expected to fetch the full list and hand it to
// CompleteRefetch; BeginRefetch marks the flight so concurrent events queue.
func (l *ChatList) NeedsRefetch() bool { return l.needsRefetch }

func (l *ChatList) BeginRefetch() {
	l.refetching = true
	l.needsRefetch = false
}

// CompleteRefetch installs the freshly fetched base state and replays every
// event queued while the fetch was in flight, in arrival order.
func (l *ChatList) CompleteRefetch(conversations []domain.Conversation) {
	l.Load(conversations)
	l.refetching = false

	queued := l.pending
	l.pending = nil
	for _, e := range queued {
		l.fold(e, true)
	}
}

// Open sets the currently viewed conversation and its fetched history,
// oldest first. Events for this conversation now also append to the open
// message list.
func (l *ChatList) Open(conversationID domain.ConversationID, history []domain.Message) {
	l.open = &conversationID
	l.openMessages = append([]domain.Message(nil), history...)
	l.indicator.Clear()
}

func (l *ChatList) Close() {
	l.open = nil
	l.openMessages = nil
	l.indicator.Clear()
}

// Unread derives the unread flag for a conversation's latest message. It is
// computed, never cached: the latest message is unread for the viewer iff
// somebody else sent it and the viewer is absent from its ReadBy set.
func (l *ChatList) Unread(conversationID domain.ConversationID) bool {
	idx := l.indexOf(conversationID)
	if idx < 0 || l.conversations[idx].LatestMessage == nil {
		return false
	}
	return l.conversations[idx].LatestMessage.UnreadFor(l.viewer)
}

// Conversations returns the ordered list, most recently active first.
func (l *ChatList) Conversations() []domain.Conversation {
	return append([]domain.Conversation(nil), l.conversations...)
}

func (l *ChatList) OpenMessages() []domain.Message {
	return append([]domain.Message(nil), l.openMessages...)
}

// TypingActive reports whether the open conversation currently shows a
// typing indicator; it self-expires after the quiet window.
func (l *ChatList) TypingActive() bool { return l.indicator.Active() }

// Typist identifies who the active indicator is attributed to.
func (l *ChatList) Typist() domain.UserID { return l.indicator.Typist() }

func (l *ChatList) isOpen(conversationID domain.ConversationID) bool {
	return l.open != nil && *l.open == conversationID
}

func (l *ChatList) indexOf(conversationID domain.ConversationID) int {
	for i, conversation := range l.conversations {
		if conversation.ID == conversationID {
			return i
		}
	}
	return -1
}
