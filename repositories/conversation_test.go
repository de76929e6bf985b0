package repositories

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"log/slog"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func Test_Save_And_Get_Conversation(t *testing.T) {
	req := require.New(t)
	repository := NewConversationRepository(openTestDB(t), slog.Default())

	conversation := domain.Conversation{
		ID:      "general",
		Name:    "General",
		Members: []domain.UserID{"alice", "bob"},
		IsGroup: true,
	}
	req.NoError(repository.Save(conversation))

	fetched, err := repository.Get("general")
	req.NoError(err)
	req.Equal(conversation, fetched)
}

func Test_Get_Unknown_Conversation(t *testing.T) {
	req := require.New(t)
	repository := NewConversationRepository(openTestDB(t), slog.Default())

	_, err := repository.Get("ghost")
	req.ErrorIs(err, errors.ErrUnknownConversation)
}

func Test_Add_And_Remove_Member(t *testing.T) {
	req := require.New(t)
	repository := NewConversationRepository(openTestDB(t), slog.Default())

	req.NoError(repository.Save(domain.Conversation{
		ID: "general", Name: "General", Members: []domain.UserID{"alice"},
	}))

	// When a member joins twice
	req.NoError(repository.AddMember("general", "bob"))
	req.NoError(repository.AddMember("general", "bob"))

	members, err := repository.Members("general")
	req.NoError(err)
	req.Equal([]domain.UserID{"alice", "bob"}, members)

	// When the member is removed
	req.NoError(repository.RemoveMember("general", "bob"))

	members, err = repository.Members("general")
	req.NoError(err)
	req.Equal([]domain.UserID{"alice"}, members)
}

func Test_UpdateLatestMessage(t *testing.T) {
	req := require.New(t)
	repository := NewConversationRepository(openTestDB(t), slog.Default())

	req.NoError(repository.Save(domain.Conversation{
		ID: "general", Name: "General", Members: []domain.UserID{"alice", "bob"},
	}))

	message := domain.Message{
		ID:             domain.NewMessageID(),
		ConversationID: "general",
		SenderID:       "alice",
		Content:        "latest words",
		CreatedAt:      time.Now().UTC(),
	}
	req.NoError(repository.UpdateLatestMessage("general", message))

	fetched, err := repository.Get("general")
	req.NoError(err)
	req.NotNil(fetched.LatestMessage)
	req.Equal("latest words", fetched.LatestMessage.Content)
}

func Test_ForUser_Filters_And_Sorts_By_Recency(t *testing.T) {
	req := require.New(t)
	repository := NewConversationRepository(openTestDB(t), slog.Default())
	at := time.Now().UTC()

	// Given three conversations, bob belonging to two
	req.NoError(repository.Save(domain.Conversation{
		ID: "general", Name: "General", Members: []domain.UserID{"alice", "bob"},
	}))
	req.NoError(repository.Save(domain.Conversation{
		ID: "random", Name: "Random", Members: []domain.UserID{"alice", "bob"},
	}))
	req.NoError(repository.Save(domain.Conversation{
		ID: "private", Name: "Private", Members: []domain.UserID{"alice", "clara"},
	}))

	// And activity making "general" the older one
	req.NoError(repository.UpdateLatestMessage("general", domain.Message{
		ID: domain.NewMessageID(), ConversationID: "general", SenderID: "alice",
		Content: "older", CreatedAt: at,
	}))
	req.NoError(repository.UpdateLatestMessage("random", domain.Message{
		ID: domain.NewMessageID(), ConversationID: "random", SenderID: "bob",
		Content: "newer", CreatedAt: at.Add(time.Minute),
	}))

	conversations, err := repository.ForUser("bob")
	req.NoError(err)

	// Then only bob's conversations come back, most recent first
	req.Len(conversations, 2)
	req.Equal(domain.ConversationID("random"), conversations[0].ID)
	req.Equal(domain.ConversationID("general"), conversations[1].ID)
	req.False(lo.ContainsBy(conversations, func(c domain.Conversation) bool {
		return c.ID == "private"
	}))
}
