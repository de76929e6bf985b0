package runtime

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"log/slog"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

type stubMessageRepository struct {
	records map[domain.MessageID]domain.Message
	batches [][]domain.MessageID
}

func (s *stubMessageRepository) CreateMessage(message domain.Message) error {
	if s.records == nil {
		s.records = map[domain.MessageID]domain.Message{}
	}
	s.records[message.ID] = message
	return nil
}
func (s *stubMessageRepository) MessagesByConversation(domain.ConversationID, *string) ([]domain.Message, *string, error) {
	return nil, nil, nil
}
func (s *stubMessageRepository) BatchMarkRead(messageIDs []domain.MessageID, userID domain.UserID) ([]domain.Message, error) {
	s.batches = append(s.batches, messageIDs)
	var updated []domain.Message
	for _, id := range messageIDs {
		message, ok := s.records[id]
		if !ok {
			continue
		}
		if !message.ReadByUser(userID) {
			message.ReadBy = append(message.ReadBy, userID)
			s.records[id] = message
		}
		updated = append(updated, message)
	}
	return updated, nil
}

func TestReceipts_MarkRead_One_Event_Per_Conversation(t *testing.T) {
	req := require.New(t)
	store := &stubMessageRepository{records: map[domain.MessageID]domain.Message{
		"m1": {ID: "m1", ConversationID: "general", SenderID: "alice"},
		"m2": {ID: "m2", ConversationID: "general", SenderID: "alice"},
		"m3": {ID: "m3", ConversationID: "random", SenderID: "clara"},
	}}
	aggregator := NewReadReceiptAggregator(store, slog.Default())

	// When a batch spanning two conversations is acknowledged
	events, err := aggregator.MarkRead("bob", []domain.MessageID{"m1", "m2", "m3"})
	req.NoError(err)

	// Then exactly one event per conversation was produced
	req.Len(events, 2)
	byConversation := lo.KeyBy(events, func(e event.ReadReceiptsUpdated) domain.ConversationID {
		return e.ConversationID
	})
	req.Len(byConversation["general"].Messages, 2)
	req.Len(byConversation["random"].Messages, 1)

	// And every carried record includes the reader
	for _, e := range events {
		for _, message := range e.Messages {
			req.True(message.ReadByUser("bob"))
		}
	}
}

func TestReceipts_MarkRead_Deduplicates_The_Batch(t *testing.T) {
	req := require.New(t)
	store := &stubMessageRepository{records: map[domain.MessageID]domain.Message{
		"m1": {ID: "m1", ConversationID: "general", SenderID: "alice"},
	}}
	aggregator := NewReadReceiptAggregator(store, slog.Default())

	// When the same identity appears twice, with an empty one mixed in
	events, err := aggregator.MarkRead("bob", []domain.MessageID{"m1", "", "m1"})
	req.NoError(err)

	// Then the store saw a single-element set
	req.Len(store.batches, 1)
	req.Equal([]domain.MessageID{"m1"}, store.batches[0])
	req.Len(events, 1)
	req.Len(events[0].Messages, 1)
}

func TestReceipts_MarkRead_Empty_Batch_Is_Nothing_To_Do(t *testing.T) {
	req := require.New(t)
	store := &stubMessageRepository{}
	aggregator := NewReadReceiptAggregator(store, slog.Default())

	// When the batch normalizes to nothing
	events, err := aggregator.MarkRead("bob", []domain.MessageID{"", ""})

	// Then no store call happened and no event was produced
	req.NoError(err)
	req.Empty(events)
	req.Empty(store.batches)
}

func TestReceipts_MarkRead_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	store := &stubMessageRepository{records: map[domain.MessageID]domain.Message{
		"m1": {ID: "m1", ConversationID: "general", SenderID: "alice"},
	}}
	aggregator := NewReadReceiptAggregator(store, slog.Default())

	// When the same reader acknowledges the same message twice
	_, err := aggregator.MarkRead("bob", []domain.MessageID{"m1"})
	req.NoError(err)
	events, err := aggregator.MarkRead("bob", []domain.MessageID{"m1"})
	req.NoError(err)

	// Then the reader appears exactly once in the stored record
	req.Len(events, 1)
	readBy := events[0].Messages[0].ReadBy
	req.Equal([]domain.UserID{"bob"}, readBy)
}
