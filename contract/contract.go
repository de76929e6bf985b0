//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"context"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// Connection is one live transport session owned by a user. Send enqueues
// without blocking: the transport drains its own buffer, and a full buffer
// or closed session returns an error that the router treats as "connection
// gone", never as a reason to abort the rest of a fan-out pass.
type Connection interface {
	ID() domain.ConnectionID
	Owner() domain.UserID
	Send(e event.DomainEvent) error
	Close()
}

// IConnectionRegistry maps a user to the set of their live connections.
// A user may own zero, one, or many simultaneous connections.
type IConnectionRegistry interface {
	Register(userID domain.UserID, conn Connection)
	Unregister(conn Connection)
	ConnectionsFor(userID domain.UserID) []Connection
}

// IMembership resolves the persisted member set of a conversation, cached
// until explicitly invalidated, and tracks which connections currently have
// the conversation open (viewing presence, distinct from membership).
type IMembership interface {
	MembersOf(conversationID domain.ConversationID) []domain.UserID
	Invalidate(conversationID domain.ConversationID)
	Join(conversationID domain.ConversationID, conn Connection)
	Leave(conn Connection)
	Viewing(conversationID domain.ConversationID) []Connection
}

type IRouter interface {
	Route(e event.DomainEvent)
}
