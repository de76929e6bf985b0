package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/repositories"
	"fmt"
	"log/slog"
	"sync"
)

// MembershipTable caches the persisted member set of each conversation and
// tracks connection-level viewing presence (which connections currently have
// a conversation open). Cache entries are created lazily on first resolution
// and live until explicitly invalidated; a stale set is acceptable, a
// blocking fan-out is not.
type MembershipTable struct {
	mu            sync.RWMutex
	members       map[domain.ConversationID][]domain.UserID
	viewing       map[domain.ConversationID]map[domain.ConnectionID]contract.Connection
	conversations repositories.IConversationRepository
	log           *slog.Logger
}

func NewMembershipTable(conversations repositories.IConversationRepository, log *slog.Logger) *MembershipTable {
	return &MembershipTable{
		members:       make(map[domain.ConversationID][]domain.UserID),
		viewing:       make(map[domain.ConversationID]map[domain.ConnectionID]contract.Connection),
		conversations: conversations,
		log:           log,
	}
}

// MembersOf serves the member set from cache, fetching from the store on a
// miss. An unknown or deleted conversation resolves to an empty set: the
// caller logs and proceeds with zero recipients instead of failing the
// whole fan-out.
func (t *MembershipTable) MembersOf(conversationID domain.ConversationID) []domain.UserID {
	t.mu.RLock()
	cached, ok := t.members[conversationID]
	t.mu.RUnlock()
	if ok {
		return cached
	}

	fetched, err := t.conversations.Members(conversationID)
	if err != nil {
		t.log.Warn(fmt.Sprintf("No members resolved for conversation %s: %v", conversationID, err))
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	// Another goroutine may have refilled the entry in the meantime; last
	// write wins, both reflect the same store state.
	t.members[conversationID] = fetched
	return fetched
}

// Invalidate drops the cached member set; the next MembersOf refetches.
// Called by every membership-changing operation (create group, add member,
// remove member).
func (t *MembershipTable) Invalidate(conversationID domain.ConversationID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.members, conversationID)
}

// Join records that this connection has the conversation open. A connection
// views at most one conversation at a time, mirroring a chat window: joining
// a second conversation implicitly leaves the first.
func (t *MembershipTable) Join(conversationID domain.ConversationID, conn contract.Connection) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.leaveLocked(conn)
	open, ok := t.viewing[conversationID]
	if !ok {
		open = make(map[domain.ConnectionID]contract.Connection)
		t.viewing[conversationID] = open
	}
	open[conn.ID()] = conn
}

// Leave clears the connection's viewing presence, wherever it was. Safe to
// call for a connection that never joined anything.
func (t *MembershipTable) Leave(conn contract.Connection) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.leaveLocked(conn)
}

func (t *MembershipTable) leaveLocked(conn contract.Connection) {
	for conversationID, open := range t.viewing {
		if _, ok := open[conn.ID()]; ok {
			delete(open, conn.ID())
			if len(open) == 0 {
				delete(t.viewing, conversationID)
			}
		}
	}
}

// Viewing returns a snapshot of the connections that currently have the
// conversation open.
func (t *MembershipTable) Viewing(conversationID domain.ConversationID) []contract.Connection {
	t.mu.RLock()
	defer t.mu.RUnlock()

	open, ok := t.viewing[conversationID]
	if !ok {
		return nil
	}
	snapshot := make([]contract.Connection, 0, len(open))
	for _, conn := range open {
		snapshot = append(snapshot, conn)
	}
	return snapshot
}
