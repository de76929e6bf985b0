//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"
)

type IMessageRepository interface {
	CreateMessage(message domain.Message) error
	MessagesByConversation(conversationID domain.ConversationID, cursor *string) ([]domain.Message, *string, error)
	BatchMarkRead(messageIDs []domain.MessageID, userID domain.UserID) ([]domain.Message, error)
}

type MessageRepository struct {
	db            *badger.DB
	log           *slog.Logger
	limitMessages *int
}

func NewMessageRepository(db *badger.DB, log *slog.Logger, limitMessages *int) MessageRepository {
	return MessageRepository{db: db, log: log, limitMessages: limitMessages}
}

// diskMessage is the stored shape of a message. ReadBy is the only field
// rewritten after creation, and only ever by union.
type diskMessage struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
	ReadBy         []string  `json:"read_by"`
}

// CreateMessage persists a message in BadgerDB under two keys:
//  1. "msg:{conversation_id}:{timestamp_padded}:{id}": the 19-digit zero
//     padding keeps messages chronologically sorted in lexicographical order,
//     with the ID as a collision disconnector for same-nanosecond arrivals.
//  2. "msgid:{id}": points back at the primary key so read-receipt batches
//     can resolve messages by identity alone.
func (m MessageRepository) CreateMessage(message domain.Message) error {
	primary := primaryKey(message)
	bytes, err := json.Marshal(fromMessage(message))
	if err != nil {
		return err
	}
	return m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(primary), bytes); err != nil {
			return err
		}
		return txn.Set(indexKey(message.ID), []byte(primary))
	})
}

// MessagesByConversation retrieves messages for a conversation using a
// reverse prefix scan, most recent first. Thanks to the padded timestamp in
// the key, no post-sorting is needed. It stops once limitMessages is reached
// and returns a cursor for the next page.
func (m MessageRepository) MessagesByConversation(conversationID domain.ConversationID, cursor *string) ([]domain.Message, *string, error) {
	var rawMessages [][]byte
	var lastKey string
	err := m.db.View(func(txn *badger.Txn) error {
		prefixStr := fmt.Sprintf("msg:%s:", conversationID)
		prefix := []byte(prefixStr)
		prefixLen := len(prefixStr)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch cursor {
		case nil:
			// Seek past the newest possible timestamp, then walk backwards
			seekKey = append(prefix, []byte("9999999999999999999")...)
		default:
			seekKey = append(prefix, []byte(*cursor)...)
		}

		it.Seek(seekKey)

		if cursor != nil && it.ValidForPrefix(prefix) {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if m.limitMessages != nil && len(rawMessages) == *m.limitMessages {
				m.log.Debug(fmt.Sprintf("Maximum of %d message reached", *m.limitMessages))
				break
			}
			item := it.Item()
			// Memorize cursor part of the actual key
			lastKey = string(item.Key()[prefixLen:])
			err := item.Value(func(value []byte) error {
				rawMessages = append(rawMessages, append([]byte(nil), value...))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	messages := make([]domain.Message, 0, len(rawMessages))
	for _, raw := range rawMessages {
		var dm diskMessage
		if err = json.Unmarshal(raw, &dm); err != nil {
			return nil, nil, err
		}
		messages = append(messages, toMessage(dm))
	}
	return messages, &lastKey, nil
}

// BatchMarkRead applies "add reader if absent" to every resolved message in
// a single transaction. The update is idempotent per message: a reader
// already present causes no rewrite. It returns the post-update records of
// every message it could resolve; unknown identities are skipped and logged
// rather than failing the whole batch.
func (m MessageRepository) BatchMarkRead(messageIDs []domain.MessageID, userID domain.UserID) ([]domain.Message, error) {
	var updated []domain.Message
	err := m.db.Update(func(txn *badger.Txn) error {
		updated = updated[:0]
		for _, messageID := range messageIDs {
			dm, primary, err := m.resolve(txn, messageID)
			if err != nil {
				m.log.Warn(fmt.Sprintf("Skipping unresolvable message %s: %v", messageID, err))
				continue
			}
			if dm.ConversationID == "" {
				m.log.Warn(fmt.Sprintf("Skipping message %s: %v", messageID, errors.ErrMissingConversation))
				continue
			}
			if !lo.Contains(dm.ReadBy, string(userID)) {
				dm.ReadBy = append(dm.ReadBy, string(userID))
				bytes, err := json.Marshal(dm)
				if err != nil {
					return err
				}
				if err = txn.Set(primary, bytes); err != nil {
					return err
				}
			}
			updated = append(updated, toMessage(dm))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// resolve follows the msgid index to load a message record by identity.
func (m MessageRepository) resolve(txn *badger.Txn, messageID domain.MessageID) (diskMessage, []byte, error) {
	item, err := txn.Get(indexKey(messageID))
	if err != nil {
		return diskMessage{}, nil, errors.ErrUnknownMessage
	}
	primary, err := item.ValueCopy(nil)
	if err != nil {
		return diskMessage{}, nil, err
	}
	record, err := txn.Get(primary)
	if err != nil {
		return diskMessage{}, nil, errors.ErrUnknownMessage
	}
	var dm diskMessage
	err = record.Value(func(value []byte) error {
		return json.Unmarshal(value, &dm)
	})
	if err != nil {
		return diskMessage{}, nil, err
	}
	return dm, primary, nil
}

func primaryKey(message domain.Message) string {
	return fmt.Sprintf("msg:%s:%019d:%s",
		message.ConversationID,
		message.CreatedAt.UnixNano(),
		message.ID,
	)
}

func indexKey(messageID domain.MessageID) []byte {
	return []byte(fmt.Sprintf("msgid:%s", messageID))
}

func fromMessage(message domain.Message) diskMessage {
	return diskMessage{
		ID:             string(message.ID),
		ConversationID: string(message.ConversationID),
		SenderID:       string(message.SenderID),
		Content:        message.Content,
		CreatedAt:      message.CreatedAt.UTC(),
		ReadBy: lo.Map(message.ReadBy, func(id domain.UserID, _ int) string {
			return string(id)
		}),
	}
}

func toMessage(dm diskMessage) domain.Message {
	return domain.Message{
		ID:             domain.MessageID(dm.ID),
		ConversationID: domain.ConversationID(dm.ConversationID),
		SenderID:       domain.UserID(dm.SenderID),
		Content:        dm.Content,
		CreatedAt:      dm.CreatedAt.UTC(),
		ReadBy: lo.Map(dm.ReadBy, func(id string, _ int) domain.UserID {
			return domain.UserID(id)
		}),
	}
}
