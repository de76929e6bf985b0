package runtime

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubConversationRepository struct {
	members     map[domain.ConversationID][]domain.UserID
	memberCalls int
}

func (s *stubConversationRepository) Save(domain.Conversation) error { return nil }
func (s *stubConversationRepository) Get(domain.ConversationID) (domain.Conversation, error) {
	return domain.Conversation{}, nil
}
func (s *stubConversationRepository) Members(conversationID domain.ConversationID) ([]domain.UserID, error) {
	s.memberCalls++
	members, ok := s.members[conversationID]
	if !ok {
		return nil, errors.ErrUnknownConversation
	}
	return members, nil
}
func (s *stubConversationRepository) UpdateLatestMessage(domain.ConversationID, domain.Message) error {
	return nil
}
func (s *stubConversationRepository) AddMember(domain.ConversationID, domain.UserID) error {
	return nil
}
func (s *stubConversationRepository) RemoveMember(domain.ConversationID, domain.UserID) error {
	return nil
}
func (s *stubConversationRepository) ForUser(domain.UserID) ([]domain.Conversation, error) {
	return nil, nil
}

func TestMembership_MembersOf_Caches_The_Store_Result(t *testing.T) {
	req := require.New(t)
	conversationID := domain.ConversationID("general")
	store := &stubConversationRepository{members: map[domain.ConversationID][]domain.UserID{
		conversationID: {"alice", "bob"},
	}}
	table := NewMembershipTable(store, slog.Default())

	// When the member set is resolved twice
	first := table.MembersOf(conversationID)
	second := table.MembersOf(conversationID)

	// Then the store was hit once and both reads agree
	req.Equal(1, store.memberCalls)
	req.Equal([]domain.UserID{"alice", "bob"}, first)
	req.Equal(first, second)
}

func TestMembership_Invalidate_Forces_A_Refetch(t *testing.T) {
	req := require.New(t)
	conversationID := domain.ConversationID("general")
	store := &stubConversationRepository{members: map[domain.ConversationID][]domain.UserID{
		conversationID: {"alice", "bob"},
	}}
	table := NewMembershipTable(store, slog.Default())

	// Given a cached member set
	table.MembersOf(conversationID)

	// When membership changes in the store and the cache is invalidated
	store.members[conversationID] = []domain.UserID{"alice", "bob", "clara"}
	table.Invalidate(conversationID)

	// Then the next resolution sees the fresh set
	req.Len(table.MembersOf(conversationID), 3)
	req.Equal(2, store.memberCalls)
}

func TestMembership_MembersOf_Unknown_Conversation_Resolves_Empty(t *testing.T) {
	req := require.New(t)
	store := &stubConversationRepository{}
	table := NewMembershipTable(store, slog.Default())

	// Then an unknown conversation yields zero recipients, not a failure
	req.Empty(table.MembersOf("ghost"))
}

func TestMembership_Join_Tracks_Viewing_Presence(t *testing.T) {
	req := require.New(t)
	table := NewMembershipTable(&stubConversationRepository{}, slog.Default())
	conversationID := domain.ConversationID("general")
	conn := newStubConnection("alice")

	// When a connection opens the conversation
	table.Join(conversationID, conn)

	// Then it shows up in the viewing snapshot
	viewing := table.Viewing(conversationID)
	req.Len(viewing, 1)
	req.Contains(viewing, conn)
}

func TestMembership_Join_Second_Conversation_Leaves_The_First(t *testing.T) {
	req := require.New(t)
	table := NewMembershipTable(&stubConversationRepository{}, slog.Default())
	conn := newStubConnection("alice")

	// Given a connection viewing one conversation
	table.Join("general", conn)

	// When it opens another one
	table.Join("random", conn)

	// Then the first conversation lost the viewer
	req.Empty(table.Viewing("general"))
	req.Len(table.Viewing("random"), 1)
}

func TestMembership_Leave_Without_Join_Is_Safe(t *testing.T) {
	req := require.New(t)
	table := NewMembershipTable(&stubConversationRepository{}, slog.Default())
	conn := newStubConnection("alice")

	// When a connection leaves without ever joining
	table.Leave(conn)

	// Then nothing changed
	req.Empty(table.Viewing("general"))
}
