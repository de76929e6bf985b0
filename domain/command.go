package domain

import "time"

type Command interface {
	Conversation() ConversationID
}

type SendMessageCommand struct {
	ConversationID ConversationID
	SenderID       UserID
	Content        string
	CreatedAt      time.Time
}

func (c SendMessageCommand) Conversation() ConversationID { return c.ConversationID }

type MarkReadCommand struct {
	ReaderID   UserID
	MessageIDs []MessageID
}

// Conversation is unknown until the batch is resolved against the store;
// a read-receipt batch may even span several conversations.
func (c MarkReadCommand) Conversation() ConversationID { return "" }

type GetMessagesCommand struct {
	ConversationID ConversationID
	Cursor         *string
}

func (c GetMessagesCommand) Conversation() ConversationID { return c.ConversationID }
