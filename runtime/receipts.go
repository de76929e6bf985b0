package runtime

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/repositories"
	"fmt"
	"log/slog"

	"github.com/samber/lo"
)

// ReadReceiptAggregator turns client "message seen" acknowledgements into a
// single batched store update and the minimal delta events to re-broadcast.
type ReadReceiptAggregator struct {
	messages repositories.IMessageRepository
	log      *slog.Logger
}

func NewReadReceiptAggregator(messages repositories.IMessageRepository, log *slog.Logger) *ReadReceiptAggregator {
	return &ReadReceiptAggregator{messages: messages, log: log}
}

// MarkRead normalizes the acknowledged identities into a set, applies one
// batched "add reader if absent" update, and produces exactly one
// ReadReceiptsUpdated event per distinct conversation touched. A batch
// normally spans a single conversation but nothing here assumes it.
//
// An empty batch is nothing to do, not a failure. A message whose
// conversation cannot be determined is dropped from the delta (the store
// already skipped it) so one malformed record never sinks the batch.
func (a *ReadReceiptAggregator) MarkRead(readerID domain.UserID, messageIDs []domain.MessageID) ([]event.ReadReceiptsUpdated, error) {
	batch := normalize(messageIDs)
	if len(batch) == 0 {
		a.log.Debug(fmt.Sprintf("Empty read receipt batch from %s, nothing to do", readerID))
		return nil, nil
	}

	updated, err := a.messages.BatchMarkRead(batch, readerID)
	if err != nil {
		return nil, err
	}

	byConversation := lo.GroupBy(updated, func(message domain.Message) domain.ConversationID {
		return message.ConversationID
	})

	events := make([]event.ReadReceiptsUpdated, 0, len(byConversation))
	for conversationID, messages := range byConversation {
		if conversationID == "" {
			a.log.Warn(fmt.Sprintf("Dropping %d read message(s) without conversation reference", len(messages)))
			continue
		}
		events = append(events, event.ReadReceiptsUpdated{
			ConversationID: conversationID,
			Messages:       messages,
		})
	}
	return events, nil
}

// normalize deduplicates the batch and drops empty identities. Accepting a
// single identity where a set is expected is the caller-facing edge this
// flattening absorbs.
func normalize(messageIDs []domain.MessageID) []domain.MessageID {
	return lo.Uniq(lo.Filter(messageIDs, func(id domain.MessageID, _ int) bool {
		return id != ""
	}))
}
