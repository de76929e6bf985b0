package ws

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/services"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
)

// Handler upgrades HTTP requests to WebSocket sessions and runs the frame
// dispatch loop for each. The first frame of a session must be "setup";
// everything before it is ignored since the connection has no owner yet.
type Handler struct {
	service    services.IChatService
	log        *slog.Logger
	sendBuffer int
	upgrader   websocket.Upgrader
	validate   *validator.Validate
}

func NewHandler(service services.IChatService, log *slog.Logger, sendBuffer int) *Handler {
	return &Handler{
		service:    service,
		log:        log,
		sendBuffer: sendBuffer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origin enforcement belongs to the reverse proxy in this
			// deployment; the relay accepts any origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		validate: validator.New(),
	}
}

func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	socket, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("WebSocket upgrade failed", "error", err)
		return
	}

	userID, err := h.awaitSetup(socket)
	if err != nil {
		h.log.Warn(fmt.Sprintf("Session rejected before setup: %v", err))
		_ = socket.Close()
		return
	}

	conn := NewConnection(userID, socket, h.sendBuffer, h.log)
	h.service.Connect(userID, conn)
	conn.Ack()
	go conn.WritePump()

	defer func() {
		h.service.Disconnect(conn)
		conn.Close()
	}()

	h.readLoop(conn, socket)
}

// awaitSetup reads frames until the setup frame arrives, identifying the
// session owner. Authentication happens upstream; the relay trusts the
// identity the session presents.
func (h *Handler) awaitSetup(socket *websocket.Conn) (domain.UserID, error) {
	_ = socket.SetReadDeadline(time.Now().Add(pongWait))
	for {
		frame, err := h.readFrame(socket)
		if err != nil {
			return "", err
		}
		if frame.Event != frameSetup {
			h.log.Debug(fmt.Sprintf("Ignoring %q frame before setup", frame.Event))
			continue
		}
		var payload SetupPayload
		if err := h.decode(frame.Data, &payload); err != nil {
			return "", err
		}
		return domain.UserID(payload.UserID), nil
	}
}

// readLoop dispatches client frames until the socket dies. Malformed frames
// are skipped and logged, never fatal to the session.
func (h *Handler) readLoop(conn *Connection, socket *websocket.Conn) {
	socket.SetPongHandler(func(string) error {
		return socket.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_ = socket.SetReadDeadline(time.Now().Add(pongWait))
		frame, err := h.readFrame(socket)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Warn(fmt.Sprintf("Connection %s read error: %v", conn.ID(), err))
			}
			return
		}
		if err := h.dispatch(conn, frame); err != nil {
			h.reject(conn, frame.Event, err)
		}
	}
}

func (h *Handler) dispatch(conn *Connection, frame ClientFrame) error {
	switch frame.Event {
	case frameSetup:
		// Re-registering the same handle is a no-op upstream.
		h.service.Connect(conn.Owner(), conn)
		return nil

	case frameJoinChat:
		var payload JoinPayload
		if err := h.decode(frame.Data, &payload); err != nil {
			return err
		}
		h.service.JoinConversation(domain.ConversationID(payload.ConversationID), conn)
		return nil

	case frameTyping:
		var payload TypingPayload
		if err := h.decode(frame.Data, &payload); err != nil {
			return err
		}
		h.service.Typing(domain.ConversationID(payload.ConversationID), conn.Owner(), conn.ID())
		return nil

	case frameStopTyping:
		var payload TypingPayload
		if err := h.decode(frame.Data, &payload); err != nil {
			return err
		}
		h.service.StopTyping(domain.ConversationID(payload.ConversationID), conn.Owner(), conn.ID())
		return nil

	case frameNewMessage:
		var payload NewMessagePayload
		if err := h.decode(frame.Data, &payload); err != nil {
			return err
		}
		_, err := h.service.SendMessage(context.Background(), domain.SendMessageCommand{
			ConversationID: domain.ConversationID(payload.ConversationID),
			SenderID:       conn.Owner(),
			Content:        payload.Content,
			CreatedAt:      time.Now().UTC(),
		})
		return err

	case frameReadReceipt:
		var payload ReadReceiptPayload
		if err := h.decode(frame.Data, &payload); err != nil {
			return err
		}
		_, err := h.service.MarkRead(conn.Owner(), payload.MessageIDs.MessageIDs())
		return err

	default:
		return fmt.Errorf("unknown event %q", frame.Event)
	}
}

// reject logs the failed frame and pushes an error frame to the acting
// session. The operation failed for this caller only; nothing was fanned
// out, so no other client needs to hear about it.
func (h *Handler) reject(conn contract.Connection, frameEvent string, err error) {
	h.log.Warn("Frame rejected",
		"connection_id", conn.ID(),
		"event", frameEvent,
		"error", err)
	_ = conn.Send(errorEvent{source: frameEvent, reason: err.Error()})
}

func (h *Handler) readFrame(socket *websocket.Conn) (ClientFrame, error) {
	var frame ClientFrame
	if err := socket.ReadJSON(&frame); err != nil {
		return ClientFrame{}, err
	}
	if err := h.validate.Struct(frame); err != nil {
		return ClientFrame{}, err
	}
	return frame, nil
}

func (h *Handler) decode(data json.RawMessage, payload any) error {
	if err := json.Unmarshal(data, payload); err != nil {
		return err
	}
	return h.validate.Struct(payload)
}
