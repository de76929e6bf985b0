//go:generate go run go.uber.org/mock/mockgen -source=chat_service.go -destination=../mocks/mock_chat_service.go -package=mocks
package services

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/runtime"
	"context"
)

type IChatService interface {
	Connect(userID domain.UserID, conn contract.Connection)
	Disconnect(conn contract.Connection)
	JoinConversation(conversationID domain.ConversationID, conn contract.Connection)
	SendMessage(ctx context.Context, cmd domain.SendMessageCommand) (domain.Message, error)
	MarkRead(readerID domain.UserID, messageIDs []domain.MessageID) ([]domain.Message, error)
	Typing(conversationID domain.ConversationID, userID domain.UserID, origin domain.ConnectionID)
	StopTyping(conversationID domain.ConversationID, userID domain.UserID, origin domain.ConnectionID)
	Messages(cmd domain.GetMessagesCommand) ([]domain.Message, *string, error)
	ConversationsFor(userID domain.UserID) ([]domain.Conversation, error)
	CreateGroup(name string, members []domain.UserID) (domain.Conversation, error)
	AddMember(conversationID domain.ConversationID, userID domain.UserID) error
	RemoveMember(conversationID domain.ConversationID, userID domain.UserID) error
	Telemetry() Telemetry
}

// Telemetry is the fan-out counters snapshot served by the debug endpoint.
type Telemetry struct {
	Delivered uint64 `json:"delivered"`
	Dropped   uint64 `json:"dropped"`
}

// ChatService is the single entry point transports talk to. It delegates to
// the orchestrator; keeping the indirection means handlers depend on an
// interface that mocks cleanly.
type ChatService struct {
	orchestrator *runtime.Orchestrator
}

func NewChatService(orchestrator *runtime.Orchestrator) *ChatService {
	return &ChatService{orchestrator: orchestrator}
}

func (s *ChatService) Connect(userID domain.UserID, conn contract.Connection) {
	s.orchestrator.Connect(userID, conn)
}

func (s *ChatService) Disconnect(conn contract.Connection) {
	s.orchestrator.Disconnect(conn)
}

func (s *ChatService) JoinConversation(conversationID domain.ConversationID, conn contract.Connection) {
	s.orchestrator.JoinConversation(conversationID, conn)
}

func (s *ChatService) SendMessage(ctx context.Context, cmd domain.SendMessageCommand) (domain.Message, error) {
	return s.orchestrator.SendMessage(ctx, cmd)
}

func (s *ChatService) MarkRead(readerID domain.UserID, messageIDs []domain.MessageID) ([]domain.Message, error) {
	return s.orchestrator.MarkRead(readerID, messageIDs)
}

func (s *ChatService) Typing(conversationID domain.ConversationID, userID domain.UserID, origin domain.ConnectionID) {
	s.orchestrator.Typing(conversationID, userID, origin)
}

func (s *ChatService) StopTyping(conversationID domain.ConversationID, userID domain.UserID, origin domain.ConnectionID) {
	s.orchestrator.StopTyping(conversationID, userID, origin)
}

func (s *ChatService) Messages(cmd domain.GetMessagesCommand) ([]domain.Message, *string, error) {
	return s.orchestrator.Messages(cmd)
}

func (s *ChatService) ConversationsFor(userID domain.UserID) ([]domain.Conversation, error) {
	return s.orchestrator.ConversationsFor(userID)
}

func (s *ChatService) CreateGroup(name string, members []domain.UserID) (domain.Conversation, error) {
	return s.orchestrator.CreateGroup(name, members)
}

func (s *ChatService) AddMember(conversationID domain.ConversationID, userID domain.UserID) error {
	return s.orchestrator.AddMember(conversationID, userID)
}

func (s *ChatService) RemoveMember(conversationID domain.ConversationID, userID domain.UserID) error {
	return s.orchestrator.RemoveMember(conversationID, userID)
}

func (s *ChatService) Telemetry() Telemetry {
	return Telemetry{
		Delivered: s.orchestrator.DeliveredCount(),
		Dropped:   s.orchestrator.DroppedCount(),
	}
}
