// Package runtime owns the live state of the relay: which connections
// exist, who is in which conversation, and how events reach them. It
// orchestrates the system without containing domain rules.
package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"hash/fnv"
	"sync"
)

const registryShards = 32

// ConnectionRegistry maps a user to the set of their live connections.
// It is sharded by user so that a burst of connects and disconnects never
// serializes on one global lock; delivery code only ever reads snapshots.
type ConnectionRegistry struct {
	shards [registryShards]*registryShard
}

type registryShard struct {
	mu          sync.RWMutex
	connections map[domain.UserID]map[domain.ConnectionID]contract.Connection
}

func NewConnectionRegistry() *ConnectionRegistry {
	r := &ConnectionRegistry{}
	for i := range r.shards {
		r.shards[i] = &registryShard{
			connections: make(map[domain.UserID]map[domain.ConnectionID]contract.Connection),
		}
	}
	return r
}

func (r *ConnectionRegistry) shardFor(userID domain.UserID) *registryShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return r.shards[h.Sum32()%registryShards]
}

// Register adds the connection under its owner. Registering the same handle
// twice is a no-op, there is no limit on concurrent connections per user.
func (r *ConnectionRegistry) Register(userID domain.UserID, conn contract.Connection) {
	shard := r.shardFor(userID)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	owned, ok := shard.connections[userID]
	if !ok {
		owned = make(map[domain.ConnectionID]contract.Connection)
		shard.connections[userID] = owned
	}
	owned[conn.ID()] = conn
}

// Unregister removes the connection. Removing an already-removed handle is
// a no-op, not an error. When the last connection of a user goes, the user
// entry goes with it; the registry itself never broadcasts presence.
func (r *ConnectionRegistry) Unregister(conn contract.Connection) {
	shard := r.shardFor(conn.Owner())
	shard.mu.Lock()
	defer shard.mu.Unlock()

	owned, ok := shard.connections[conn.Owner()]
	if !ok {
		return
	}
	delete(owned, conn.ID())
	if len(owned) == 0 {
		delete(shard.connections, conn.Owner())
	}
}

// ConnectionsFor returns a snapshot of the user's live connections. It never
// fails and never blocks on anything but the shard lock.
func (r *ConnectionRegistry) ConnectionsFor(userID domain.UserID) []contract.Connection {
	shard := r.shardFor(userID)
	shard.mu.RLock()
	defer shard.mu.RUnlock()

	owned, ok := shard.connections[userID]
	if !ok {
		return nil
	}
	snapshot := make([]contract.Connection, 0, len(owned))
	for _, conn := range owned {
		snapshot = append(snapshot, conn)
	}
	return snapshot
}
