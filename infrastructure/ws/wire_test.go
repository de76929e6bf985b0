package ws

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFlexibleIDs_Accepts_An_Array(t *testing.T) {
	req := require.New(t)
	var payload ReadReceiptPayload

	req.NoError(json.Unmarshal([]byte(`{"message_ids":["m1","m2"]}`), &payload))
	req.Equal([]domain.MessageID{"m1", "m2"}, payload.MessageIDs.MessageIDs())
}

func TestFlexibleIDs_Accepts_A_Flattened_Single_ID(t *testing.T) {
	req := require.New(t)
	var payload ReadReceiptPayload

	// Naive clients send a bare string for a single-element batch
	req.NoError(json.Unmarshal([]byte(`{"message_ids":"m1"}`), &payload))
	req.Equal([]domain.MessageID{"m1"}, payload.MessageIDs.MessageIDs())
}

func TestFlexibleIDs_Rejects_Other_Shapes(t *testing.T) {
	req := require.New(t)
	var payload ReadReceiptPayload

	req.Error(json.Unmarshal([]byte(`{"message_ids":42}`), &payload))
}

func TestEncodeEvent_Frame_Names_Mirror_The_Client_Vocabulary(t *testing.T) {
	req := require.New(t)
	message := domain.Message{
		ID:             "m1",
		ConversationID: "general",
		SenderID:       "alice",
		Content:        "hello",
		CreatedAt:      time.Now().UTC(),
	}

	tests := []struct {
		name     string
		input    event.DomainEvent
		expected string
	}{
		{"message", event.MessageReceived{Message: message}, "message received"},
		{"typing", event.TypingStarted{ConversationID: "general", UserID: "alice"}, "typing"},
		{"stop typing", event.TypingStopped{ConversationID: "general", UserID: "alice"}, "stop typing"},
		{"receipts", event.ReadReceiptsUpdated{ConversationID: "general"}, "read receipts updated"},
		{"error", errorEvent{source: "new message", reason: "boom"}, "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req.Equal(tt.expected, EncodeEvent(tt.input).Event)
		})
	}
}

func TestEncodeEvent_Message_Payload_Round_Trips(t *testing.T) {
	req := require.New(t)
	message := domain.Message{
		ID:             "m1",
		ConversationID: "general",
		SenderID:       "alice",
		Content:        "hello",
		CreatedAt:      time.Now().UTC().Truncate(time.Second),
		ReadBy:         []domain.UserID{"bob"},
	}

	frame := EncodeEvent(event.MessageReceived{Message: message})
	wire, ok := frame.Data.(WireMessage)
	req.True(ok)

	req.Equal(message, ToMessage(wire))
}
