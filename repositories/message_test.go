package repositories

import (
	"chat-relay/domain"
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func storedMessage(conversationID domain.ConversationID, sender domain.UserID, content string, at time.Time) domain.Message {
	return domain.Message{
		ID:             domain.NewMessageID(),
		ConversationID: conversationID,
		SenderID:       sender,
		Content:        content,
		CreatedAt:      at,
	}
}

func Test_Record_Multiple_Messages(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default(), nil)

	conversationID := domain.ConversationID("general")
	at := time.Now().UTC()
	messages := []domain.Message{
		storedMessage(conversationID, "alice", "first", at),
		storedMessage(conversationID, "bob", "second", at.Add(1*time.Minute)),
		storedMessage(conversationID, "clara", "third", at.Add(2*time.Minute)),
	}
	for _, message := range messages {
		req.NoError(repository.CreateMessage(message))
	}

	fetched, _, err := repository.MessagesByConversation(conversationID, nil)
	req.NoError(err)
	req.Len(fetched, len(messages))

	// Most recent first, straight from the key order
	req.Equal("third", fetched[0].Content)
	req.Equal("second", fetched[1].Content)
	req.Equal("first", fetched[2].Content)
}

func Test_Messages_Are_Isolated_Per_Conversation(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default(), nil)
	at := time.Now().UTC()

	req.NoError(repository.CreateMessage(storedMessage("general", "alice", "here", at)))
	req.NoError(repository.CreateMessage(storedMessage("random", "bob", "elsewhere", at)))

	fetched, _, err := repository.MessagesByConversation("general", nil)
	req.NoError(err)
	req.Len(fetched, 1)
	req.Equal("here", fetched[0].Content)
}

func Test_Record_Multiple_Messages_And_Limit_With_Cursor(t *testing.T) {
	req := require.New(t)
	limit := 2
	repository := NewMessageRepository(openTestDB(t), slog.Default(), &limit)

	conversationID := domain.ConversationID("general")
	at := time.Now().UTC()
	for i, content := range []string{"first", "second", "third"} {
		req.NoError(repository.CreateMessage(
			storedMessage(conversationID, "alice", content, at.Add(time.Duration(i)*time.Minute))))
	}

	// First page holds the two most recent messages
	page, cursor, err := repository.MessagesByConversation(conversationID, nil)
	req.NoError(err)
	req.Len(page, limit)
	req.Equal("third", page[0].Content)
	req.Equal("second", page[1].Content)
	req.NotNil(cursor)

	// Second page resumes past the cursor
	page, _, err = repository.MessagesByConversation(conversationID, cursor)
	req.NoError(err)
	req.Len(page, 1)
	req.Equal("first", page[0].Content)
}

func Test_BatchMarkRead_Grows_ReadBy_Once(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default(), nil)

	message := storedMessage("general", "alice", "read me", time.Now().UTC())
	req.NoError(repository.CreateMessage(message))

	// When bob acknowledges twice
	updated, err := repository.BatchMarkRead([]domain.MessageID{message.ID}, "bob")
	req.NoError(err)
	req.Len(updated, 1)
	req.Equal([]domain.UserID{"bob"}, updated[0].ReadBy)

	updated, err = repository.BatchMarkRead([]domain.MessageID{message.ID}, "bob")
	req.NoError(err)

	// Then the reader set did not grow twice
	req.Equal([]domain.UserID{"bob"}, updated[0].ReadBy)
}

func Test_BatchMarkRead_Accumulates_Readers(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default(), nil)

	message := storedMessage("general", "alice", "popular", time.Now().UTC())
	req.NoError(repository.CreateMessage(message))

	_, err := repository.BatchMarkRead([]domain.MessageID{message.ID}, "bob")
	req.NoError(err)
	updated, err := repository.BatchMarkRead([]domain.MessageID{message.ID}, "clara")
	req.NoError(err)

	// Readers only ever accumulate
	req.True(lo.Contains(updated[0].ReadBy, domain.UserID("bob")))
	req.True(lo.Contains(updated[0].ReadBy, domain.UserID("clara")))
}

func Test_BatchMarkRead_Skips_Unknown_Messages(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default(), nil)

	message := storedMessage("general", "alice", "known", time.Now().UTC())
	req.NoError(repository.CreateMessage(message))

	// When the batch mixes a known and an unknown identity
	updated, err := repository.BatchMarkRead([]domain.MessageID{message.ID, "ghost"}, "bob")

	// Then the unknown one is skipped, not fatal
	req.NoError(err)
	req.Len(updated, 1)
	req.Equal(message.ID, updated[0].ID)
}
