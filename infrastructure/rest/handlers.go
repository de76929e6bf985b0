// Package rest exposes the minimal HTTP surface of the relay: message
// history, message submission, read receipts, and group membership
// management. Authentication and session issuance happen upstream; the
// caller identity arrives in the X-User-ID header.
package rest

import (
	"chat-relay/domain"
	"chat-relay/infrastructure/ws"
	"chat-relay/services"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	relayerrors "chat-relay/errors"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

type Handler struct {
	service  services.IChatService
	log      *slog.Logger
	validate *validator.Validate
}

func NewHandler(service services.IChatService, log *slog.Logger) *Handler {
	return &Handler{service: service, log: log, validate: validator.New()}
}

// Router wires the REST routes. The WebSocket handler is mounted by main
// alongside these.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Get("/api/chat", h.listConversations)
	r.Post("/api/chat/group", h.createGroup)
	r.Put("/api/chat/group/{chatID}/members", h.updateMembers)
	r.Get("/api/message/{chatID}", h.listMessages)
	r.Post("/api/message", h.sendMessage)
	r.Put("/api/message/read", h.markRead)
	r.Get("/api/telemetry", h.telemetry)
	return r
}

// telemetry serves the fan-out counters for operational checks. No identity
// required, there is nothing user-scoped in it.
func (h *Handler) telemetry(w http.ResponseWriter, _ *http.Request) {
	h.respond(w, http.StatusOK, h.service.Telemetry())
}

type sendMessageRequest struct {
	ConversationID string `json:"conversation_id" validate:"required,max=128"`
	Content        string `json:"content" validate:"required,max=4096"`
}

func (h *Handler) sendMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.identity(w, r)
	if !ok {
		return
	}
	var req sendMessageRequest
	if !h.decode(w, r, &req) {
		return
	}

	message, err := h.service.SendMessage(r.Context(), domain.SendMessageCommand{
		ConversationID: domain.ConversationID(req.ConversationID),
		SenderID:       userID,
		Content:        req.Content,
		CreatedAt:      time.Now().UTC(),
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	h.respond(w, http.StatusCreated, ws.ToWireMessage(message))
}

type markReadRequest struct {
	MessageIDs ws.FlexibleIDs `json:"message_ids" validate:"required,min=1"`
}

func (h *Handler) markRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.identity(w, r)
	if !ok {
		return
	}
	var req markReadRequest
	if !h.decode(w, r, &req) {
		return
	}

	updated, err := h.service.MarkRead(userID, req.MessageIDs.MessageIDs())
	if err != nil {
		h.fail(w, err)
		return
	}
	h.respond(w, http.StatusOK, lo.Map(updated, func(m domain.Message, _ int) ws.WireMessage {
		return ws.ToWireMessage(m)
	}))
}

func (h *Handler) listMessages(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.identity(w, r); !ok {
		return
	}
	conversationID := domain.ConversationID(chi.URLParam(r, "chatID"))
	var cursor *string
	if raw := r.URL.Query().Get("cursor"); raw != "" {
		cursor = &raw
	}

	messages, next, err := h.service.Messages(domain.GetMessagesCommand{
		ConversationID: conversationID,
		Cursor:         cursor,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	h.respond(w, http.StatusOK, map[string]any{
		"messages": lo.Map(messages, func(m domain.Message, _ int) ws.WireMessage {
			return ws.ToWireMessage(m)
		}),
		"cursor": next,
	})
}

type conversationResponse struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Members       []string        `json:"members"`
	IsGroup       bool            `json:"is_group"`
	LatestMessage *ws.WireMessage `json:"latest_message,omitempty"`
}

func (h *Handler) listConversations(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.identity(w, r)
	if !ok {
		return
	}
	conversations, err := h.service.ConversationsFor(userID)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.respond(w, http.StatusOK, lo.Map(conversations, func(c domain.Conversation, _ int) conversationResponse {
		return toConversationResponse(c)
	}))
}

type createGroupRequest struct {
	Name    string   `json:"name" validate:"required,max=256"`
	Members []string `json:"members" validate:"required,min=2,dive,required"`
}

func (h *Handler) createGroup(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.identity(w, r)
	if !ok {
		return
	}
	var req createGroupRequest
	if !h.decode(w, r, &req) {
		return
	}

	members := lo.Uniq(append(lo.Map(req.Members, func(id string, _ int) domain.UserID {
		return domain.UserID(id)
	}), userID))
	conversation, err := h.service.CreateGroup(req.Name, members)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.respond(w, http.StatusCreated, toConversationResponse(conversation))
}

type updateMembersRequest struct {
	Action string `json:"action" validate:"required,oneof=add remove"`
	UserID string `json:"user_id" validate:"required,max=128"`
}

// updateMembers mutates persistent group membership. The service
// invalidates the cached member set so the next fan-out sees the change.
func (h *Handler) updateMembers(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.identity(w, r); !ok {
		return
	}
	conversationID := domain.ConversationID(chi.URLParam(r, "chatID"))
	var req updateMembersRequest
	if !h.decode(w, r, &req) {
		return
	}

	var err error
	switch req.Action {
	case "add":
		err = h.service.AddMember(conversationID, domain.UserID(req.UserID))
	case "remove":
		err = h.service.RemoveMember(conversationID, domain.UserID(req.UserID))
	}
	if err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toConversationResponse(c domain.Conversation) conversationResponse {
	resp := conversationResponse{
		ID:      string(c.ID),
		Name:    c.Name,
		IsGroup: c.IsGroup,
		Members: lo.Map(c.Members, func(id domain.UserID, _ int) string {
			return string(id)
		}),
	}
	if c.LatestMessage != nil {
		wire := ws.ToWireMessage(*c.LatestMessage)
		resp.LatestMessage = &wire
	}
	return resp
}

func (h *Handler) identity(w http.ResponseWriter, r *http.Request) (domain.UserID, bool) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		http.Error(w, "missing X-User-ID header", http.StatusUnauthorized)
		return "", false
	}
	return domain.UserID(userID), true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, req any) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	if err := h.validate.Struct(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func (h *Handler) respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Error("Response encoding failed", "error", err)
	}
}

// fail maps store-level failures onto HTTP statuses. The operation failed
// for the acting caller only; nothing was fanned out.
func (h *Handler) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, relayerrors.ErrUnknownConversation),
		errors.Is(err, relayerrors.ErrUnknownMessage):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, relayerrors.ErrEmptyContent):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, relayerrors.ErrNotAMember):
		http.Error(w, err.Error(), http.StatusForbidden)
	default:
		h.log.Error("Request failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
