package runtime

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type stubConnection struct {
	id    domain.ConnectionID
	owner domain.UserID

	mu   sync.Mutex
	sent []event.DomainEvent
}

func newStubConnection(owner domain.UserID) *stubConnection {
	return &stubConnection{id: domain.ConnectionID(uuid.NewString()), owner: owner}
}

func (c *stubConnection) ID() domain.ConnectionID { return c.id }
func (c *stubConnection) Owner() domain.UserID    { return c.owner }
func (c *stubConnection) Send(e event.DomainEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, e)
	return nil
}
func (c *stubConnection) Close() {}

// Sent snapshots delivered events; the router runs in its own goroutine.
func (c *stubConnection) Sent() []event.DomainEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]event.DomainEvent(nil), c.sent...)
}

func TestRegistry_Register_One_User_One_Connection(t *testing.T) {
	req := require.New(t)
	registry := NewConnectionRegistry()
	alice := domain.UserID("alice")
	conn := newStubConnection(alice)

	// Given no connection is registered
	req.Empty(registry.ConnectionsFor(alice))

	// When the user connects
	registry.Register(alice, conn)

	// Then the connection is resolvable by owner
	connections := registry.ConnectionsFor(alice)
	req.Len(connections, 1)
	req.Contains(connections, conn)
}

func TestRegistry_Register_One_User_Multiple_Connections(t *testing.T) {
	req := require.New(t)
	registry := NewConnectionRegistry()
	alice := domain.UserID("alice")
	laptop := newStubConnection(alice)
	phone := newStubConnection(alice)

	// When the same user opens two sessions
	registry.Register(alice, laptop)
	registry.Register(alice, phone)

	// Then both are live at once
	connections := registry.ConnectionsFor(alice)
	req.Len(connections, 2)
	req.Contains(connections, laptop)
	req.Contains(connections, phone)
}

func TestRegistry_Register_Same_Connection_Twice(t *testing.T) {
	req := require.New(t)
	registry := NewConnectionRegistry()
	alice := domain.UserID("alice")
	conn := newStubConnection(alice)

	// When the same handle registers twice
	registry.Register(alice, conn)
	registry.Register(alice, conn)

	// Then only one entry exists
	req.Len(registry.ConnectionsFor(alice), 1)
}

func TestRegistry_Unregister_Removes_Only_One_Connection(t *testing.T) {
	req := require.New(t)
	registry := NewConnectionRegistry()
	alice := domain.UserID("alice")
	laptop := newStubConnection(alice)
	phone := newStubConnection(alice)

	// Given two live connections
	registry.Register(alice, laptop)
	registry.Register(alice, phone)

	// When one disconnects
	registry.Unregister(laptop)

	// Then the other stays registered
	connections := registry.ConnectionsFor(alice)
	req.Len(connections, 1)
	req.Contains(connections, phone)
}

func TestRegistry_Unregister_Twice_Is_A_NoOp(t *testing.T) {
	req := require.New(t)
	registry := NewConnectionRegistry()
	alice := domain.UserID("alice")
	conn := newStubConnection(alice)

	registry.Register(alice, conn)

	// When the same handle unregisters twice
	registry.Unregister(conn)
	registry.Unregister(conn)

	// Then no entry is left and nothing blew up
	req.Empty(registry.ConnectionsFor(alice))
}

func TestRegistry_ConnectionsFor_Unknown_User(t *testing.T) {
	req := require.New(t)
	registry := NewConnectionRegistry()

	// Then a user who never connected resolves to no connections
	req.Empty(registry.ConnectionsFor("ghost"))
}
