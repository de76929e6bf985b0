package event

import (
	"sync"
	"time"

	"chat-relay/domain"
)

type Type string

const (
	DeliveredType       Type = "EVENT_DELIVERED"
	DroppedType         Type = "EVENT_DROPPED"
	ChannelCapacityType Type = "CHANNEL_CAPACITY"
	RestartedAfterPanic Type = "WORKER_RESTARTED_AFTER_PANIC"
)

// Event is the technical envelope used on the telemetry path. The domain
// path uses DomainEvent directly; telemetry stays loosely typed on purpose
// so new probes don't ripple through the pipeline.
type Event struct {
	Type      Type
	CreatedAt time.Time
	Payload   any
}

type Delivered struct {
	Kind           Kind
	ConversationID domain.ConversationID
	ConnectionID   domain.ConnectionID
}

type Dropped struct {
	Kind         Kind
	ConnectionID domain.ConnectionID
	Reason       string
}

type ChannelCapacity struct {
	ChannelName string
	Capacity    int
	Length      int
}

type WorkerRestartedAfterPanic struct {
	WorkerName string
}

// Counter tracks how many technical events of each type were observed.
type Counter struct {
	mu     sync.Mutex
	counts map[Type]uint64
}

func NewCounter() *Counter {
	return &Counter{counts: make(map[Type]uint64)}
}

func (c *Counter) Increment(t Type) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[t]++
}

func (c *Counter) Get(t Type) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[t]
}
