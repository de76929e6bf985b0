//go:generate go run go.uber.org/mock/mockgen -source=conversation.go -destination=../mocks/mock_conversation_repository.go -package=mocks
package repositories

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"
)

type IConversationRepository interface {
	Save(conversation domain.Conversation) error
	Get(conversationID domain.ConversationID) (domain.Conversation, error)
	Members(conversationID domain.ConversationID) ([]domain.UserID, error)
	UpdateLatestMessage(conversationID domain.ConversationID, message domain.Message) error
	AddMember(conversationID domain.ConversationID, userID domain.UserID) error
	RemoveMember(conversationID domain.ConversationID, userID domain.UserID) error
	ForUser(userID domain.UserID) ([]domain.Conversation, error)
}

type ConversationRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewConversationRepository(db *badger.DB, log *slog.Logger) ConversationRepository {
	return ConversationRepository{db: db, log: log}
}

type diskConversation struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	Members       []string     `json:"members"`
	IsGroup       bool         `json:"is_group"`
	LatestMessage *diskMessage `json:"latest_message,omitempty"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

func (c ConversationRepository) Save(conversation domain.Conversation) error {
	bytes, err := json.Marshal(fromConversation(conversation))
	if err != nil {
		return err
	}
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(conversationKey(conversation.ID), bytes)
	})
}

func (c ConversationRepository) Get(conversationID domain.ConversationID) (domain.Conversation, error) {
	var dc diskConversation
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(conversationKey(conversationID))
		if err != nil {
			return errors.ErrUnknownConversation
		}
		return item.Value(func(value []byte) error {
			return json.Unmarshal(value, &dc)
		})
	})
	if err != nil {
		return domain.Conversation{}, err
	}
	return toConversation(dc), nil
}

// Members returns the persisted member set of a conversation. A missing
// conversation is reported as ErrUnknownConversation so that the membership
// cache can degrade to an empty recipient set instead of failing a fan-out.
func (c ConversationRepository) Members(conversationID domain.ConversationID) ([]domain.UserID, error) {
	conversation, err := c.Get(conversationID)
	if err != nil {
		return nil, err
	}
	return conversation.Members, nil
}

// UpdateLatestMessage rewrites only the latest-message reference, keeping
// the conversation record the single place the chat list reads it from.
func (c ConversationRepository) UpdateLatestMessage(conversationID domain.ConversationID, message domain.Message) error {
	return c.mutate(conversationID, func(dc *diskConversation) error {
		dm := fromMessage(message)
		dc.LatestMessage = &dm
		dc.UpdatedAt = message.CreatedAt.UTC()
		return nil
	})
}

func (c ConversationRepository) AddMember(conversationID domain.ConversationID, userID domain.UserID) error {
	return c.mutate(conversationID, func(dc *diskConversation) error {
		if lo.Contains(dc.Members, string(userID)) {
			return nil
		}
		dc.Members = append(dc.Members, string(userID))
		return nil
	})
}

func (c ConversationRepository) RemoveMember(conversationID domain.ConversationID, userID domain.UserID) error {
	return c.mutate(conversationID, func(dc *diskConversation) error {
		dc.Members = lo.Without(dc.Members, string(userID))
		return nil
	})
}

// ForUser scans all conversation records and keeps those the user belongs
// to, most recently active first. A prefix scan is enough at this scale;
// the chat list itself is maintained client-side from events afterwards.
func (c ConversationRepository) ForUser(userID domain.UserID) ([]domain.Conversation, error) {
	var conversations []domain.Conversation
	err := c.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte("conv:")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(value []byte) error {
				var dc diskConversation
				if err := json.Unmarshal(value, &dc); err != nil {
					return err
				}
				if lo.Contains(dc.Members, string(userID)) {
					conversations = append(conversations, toConversation(dc))
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortByRecency(conversations)
	return conversations, nil
}

// mutate loads, edits, and rewrites one conversation record inside a single
// transaction.
func (c ConversationRepository) mutate(conversationID domain.ConversationID, edit func(*diskConversation) error) error {
	return c.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(conversationKey(conversationID))
		if err != nil {
			return errors.ErrUnknownConversation
		}
		var dc diskConversation
		err = item.Value(func(value []byte) error {
			return json.Unmarshal(value, &dc)
		})
		if err != nil {
			return err
		}
		if err = edit(&dc); err != nil {
			return err
		}
		bytes, err := json.Marshal(dc)
		if err != nil {
			return err
		}
		return txn.Set(conversationKey(conversationID), bytes)
	})
}

func sortByRecency(conversations []domain.Conversation) {
	sort.SliceStable(conversations, func(i, j int) bool {
		return latestAt(conversations[i]).After(latestAt(conversations[j]))
	})
}

func latestAt(conversation domain.Conversation) time.Time {
	if conversation.LatestMessage == nil {
		return time.Time{}
	}
	return conversation.LatestMessage.CreatedAt
}

func conversationKey(conversationID domain.ConversationID) []byte {
	return []byte(fmt.Sprintf("conv:%s", conversationID))
}

func fromConversation(conversation domain.Conversation) diskConversation {
	dc := diskConversation{
		ID:      string(conversation.ID),
		Name:    conversation.Name,
		IsGroup: conversation.IsGroup,
		Members: lo.Map(conversation.Members, func(id domain.UserID, _ int) string {
			return string(id)
		}),
	}
	if conversation.LatestMessage != nil {
		dm := fromMessage(*conversation.LatestMessage)
		dc.LatestMessage = &dm
		dc.UpdatedAt = conversation.LatestMessage.CreatedAt.UTC()
	}
	return dc
}

func toConversation(dc diskConversation) domain.Conversation {
	conversation := domain.Conversation{
		ID:      domain.ConversationID(dc.ID),
		Name:    dc.Name,
		IsGroup: dc.IsGroup,
		Members: lo.Map(dc.Members, func(id string, _ int) domain.UserID {
			return domain.UserID(id)
		}),
	}
	if dc.LatestMessage != nil {
		message := toMessage(*dc.LatestMessage)
		conversation.LatestMessage = &message
	}
	return conversation
}
