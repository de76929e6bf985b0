package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/moderation"
	"chat-relay/repositories"
	"chat-relay/runtime/workers"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/abadojack/whatlanggo"
	"github.com/samber/lo"
)

// Orchestrator owns the event pipeline and the live registries. Operations
// follow one rule without exception: an event is published only after the
// corresponding store write succeeded. A failed write surfaces to the acting
// caller and nothing is fanned out, so no client is ever notified of data
// that doesn't exist.
type Orchestrator struct {
	log                  *slog.Logger
	supervisor           contract.ISupervisor
	registry             contract.IConnectionRegistry
	membership           contract.IMembership
	aggregator           *ReadReceiptAggregator
	messages             repositories.IMessageRepository
	conversations        repositories.IConversationRepository
	moderator            moderation.Moderator
	domainEvents         chan event.DomainEvent
	telemetryEvents      chan event.Event
	counter              *event.Counter
	metricInterval       time.Duration
	lowCapacityThreshold int
}

func NewOrchestrator(
	log *slog.Logger,
	supervisor contract.ISupervisor,
	registry contract.IConnectionRegistry,
	membership contract.IMembership,
	aggregator *ReadReceiptAggregator,
	messages repositories.IMessageRepository,
	conversations repositories.IConversationRepository,
	moderator moderation.Moderator,
	bufferSize int,
	telemetryEvents chan event.Event,
	metricInterval time.Duration,
	lowCapacityThreshold int) *Orchestrator {
	return &Orchestrator{
		log:                  log,
		supervisor:           supervisor,
		registry:             registry,
		membership:           membership,
		aggregator:           aggregator,
		messages:             messages,
		conversations:        conversations,
		moderator:            moderator,
		domainEvents:         make(chan event.DomainEvent, bufferSize),
		telemetryEvents:      telemetryEvents,
		counter:              event.NewCounter(),
		metricInterval:       metricInterval,
		lowCapacityThreshold: lowCapacityThreshold,
	}
}

// Start registers the router and telemetry workers with the supervisor and
// launches supervision. It returns immediately; Stop tears everything down.
func (o *Orchestrator) Start(ctx context.Context) {
	router := workers.NewRouterWorker(o.log, o.registry, o.membership, o.domainEvents, o.telemetryEvents)
	telemetry := workers.NewTelemetryWorker(o.log, o.telemetryEvents, []event.Handler{
		event.NewDeliveryHandler(o.log, o.counter),
		event.NewChannelCapacityHandler(o.log, o.lowCapacityThreshold),
	})
	capacity := workers.NewChannelCapacityWorker(o.log, []workers.NamedChannel{
		{Name: "domainEvents", Channel: o.domainEvents},
		{Name: "telemetryEvents", Channel: o.telemetryEvents},
	}, o.telemetryEvents, o.metricInterval)

	o.supervisor.Add(router, telemetry, capacity)
	o.log.Info("Starting orchestrator and all supervised workers")
	go o.supervisor.Run(ctx)
}

// Stop cancels supervision; workers drain and exit.
func (o *Orchestrator) Stop() {
	o.log.Info("Requesting orchestrator shutdown")
	o.supervisor.Stop()
}

// Connect registers a live connection under its owner.
func (o *Orchestrator) Connect(userID domain.UserID, conn contract.Connection) {
	o.registry.Register(userID, conn)
	o.log.Info("Connection registered", "user_id", userID, "connection_id", conn.ID())
}

// Disconnect removes the connection from viewing presence and from the
// registry. Idempotent with any in-flight fan-out: deliveries already
// enqueued to the dead connection fail safe in the router.
func (o *Orchestrator) Disconnect(conn contract.Connection) {
	o.membership.Leave(conn)
	o.registry.Unregister(conn)
	o.log.Info("Connection unregistered", "user_id", conn.Owner(), "connection_id", conn.ID())
}

// JoinConversation records that the connection has the conversation open.
func (o *Orchestrator) JoinConversation(conversationID domain.ConversationID, conn contract.Connection) {
	o.membership.Join(conversationID, conn)
	o.log.Debug(fmt.Sprintf("Connection %s viewing conversation %s", conn.ID(), conversationID))
}

// SendMessage sanitizes, persists, then publishes. The latest-message
// reference is updated in the same pass so every chat list derives from the
// same record.
func (o *Orchestrator) SendMessage(_ context.Context, cmd domain.SendMessageCommand) (domain.Message, error) {
	if cmd.Content == "" {
		return domain.Message{}, errors.ErrEmptyContent
	}
	if !lo.Contains(o.membership.MembersOf(cmd.ConversationID), cmd.SenderID) {
		return domain.Message{}, errors.ErrNotAMember
	}

	sanitized, foundWords := o.moderator.Censor(cmd.Content)
	if len(foundWords) > 0 {
		info := whatlanggo.Detect(cmd.Content)
		o.log.Warn("Censored message content",
			"sender_id", cmd.SenderID,
			"conversation_id", cmd.ConversationID,
			"lang", info.Lang.Iso6391(),
			"hits", len(foundWords))
	}

	message := domain.Message{
		ID:             domain.NewMessageID(),
		ConversationID: cmd.ConversationID,
		SenderID:       cmd.SenderID,
		Content:        sanitized,
		CreatedAt:      cmd.CreatedAt.UTC(),
	}

	if err := o.messages.CreateMessage(message); err != nil {
		return domain.Message{}, fmt.Errorf("create message: %w", err)
	}
	if err := o.conversations.UpdateLatestMessage(cmd.ConversationID, message); err != nil {
		return domain.Message{}, fmt.Errorf("update latest message: %w", err)
	}

	o.Publish(event.MessageReceived{Message: message})
	o.markDeliveredWhileOpen(message)
	return message, nil
}

// markDeliveredWhileOpen acknowledges the new message on behalf of every
// user whose connection currently has the conversation open. Their window
// shows the message the moment it lands, so folding the receipt here spares
// each viewer an explicit round-trip.
func (o *Orchestrator) markDeliveredWhileOpen(message domain.Message) {
	viewers := lo.Uniq(lo.FilterMap(o.membership.Viewing(message.ConversationID),
		func(conn contract.Connection, _ int) (domain.UserID, bool) {
			return conn.Owner(), conn.Owner() != message.SenderID
		}))
	for _, viewer := range viewers {
		if _, err := o.MarkRead(viewer, []domain.MessageID{message.ID}); err != nil {
			o.log.Warn(fmt.Sprintf("Could not mark message %s read for viewer %s: %v",
				message.ID, viewer, err))
		}
	}
}

// MarkRead applies a read-receipt batch and publishes one delta event per
// conversation touched. Returns the updated message records for the caller.
func (o *Orchestrator) MarkRead(readerID domain.UserID, messageIDs []domain.MessageID) ([]domain.Message, error) {
	receiptEvents, err := o.aggregator.MarkRead(readerID, messageIDs)
	if err != nil {
		return nil, fmt.Errorf("batch mark read: %w", err)
	}

	var updated []domain.Message
	for _, e := range receiptEvents {
		updated = append(updated, e.Messages...)
		o.Publish(e)
	}
	return updated, nil
}

// Typing and StopTyping are ephemeral: nothing is persisted, the event is
// published as-is with the originating connection marked for exclusion.
func (o *Orchestrator) Typing(conversationID domain.ConversationID, userID domain.UserID, origin domain.ConnectionID) {
	o.Publish(event.TypingStarted{ConversationID: conversationID, UserID: userID, Origin: origin})
}

func (o *Orchestrator) StopTyping(conversationID domain.ConversationID, userID domain.UserID, origin domain.ConnectionID) {
	o.Publish(event.TypingStopped{ConversationID: conversationID, UserID: userID, Origin: origin})
}

// Publish enqueues for the router worker. The channel is buffered; when it
// is saturated the event is dropped with a warning rather than blocking a
// transport goroutine.
func (o *Orchestrator) Publish(e event.DomainEvent) {
	select {
	case o.domainEvents <- e:
	default:
		o.log.Warn(fmt.Sprintf("Domain event channel full, dropping %s event for conversation %s",
			e.Kind(), e.Conversation()))
	}
}

// Messages pages through a conversation's history, most recent first.
func (o *Orchestrator) Messages(cmd domain.GetMessagesCommand) ([]domain.Message, *string, error) {
	return o.messages.MessagesByConversation(cmd.ConversationID, cmd.Cursor)
}

// ConversationsFor returns the caller's chat list base state.
func (o *Orchestrator) ConversationsFor(userID domain.UserID) ([]domain.Conversation, error) {
	return o.conversations.ForUser(userID)
}

// CreateGroup persists a new group conversation. The membership cache needs
// no invalidation here: no entry can exist yet for a fresh identity.
func (o *Orchestrator) CreateGroup(name string, members []domain.UserID) (domain.Conversation, error) {
	conversation := domain.Conversation{
		ID:      domain.NewConversationID(),
		Name:    name,
		Members: members,
		IsGroup: true,
	}
	if err := o.conversations.Save(conversation); err != nil {
		return domain.Conversation{}, fmt.Errorf("save conversation: %w", err)
	}
	return conversation, nil
}

// AddMember and RemoveMember mutate persistent membership and invalidate
// the cached member set so the next fan-out resolves the fresh one.
func (o *Orchestrator) AddMember(conversationID domain.ConversationID, userID domain.UserID) error {
	if err := o.conversations.AddMember(conversationID, userID); err != nil {
		return err
	}
	o.membership.Invalidate(conversationID)
	return nil
}

func (o *Orchestrator) RemoveMember(conversationID domain.ConversationID, userID domain.UserID) error {
	if err := o.conversations.RemoveMember(conversationID, userID); err != nil {
		return err
	}
	o.membership.Invalidate(conversationID)
	return nil
}

// DeliveredCount and DroppedCount expose the fan-out counters served by the
// telemetry endpoint.
func (o *Orchestrator) DeliveredCount() uint64 { return o.counter.Get(event.DeliveredType) }

func (o *Orchestrator) DroppedCount() uint64 { return o.counter.Get(event.DroppedType) }
