package ws

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Ensure *Connection satisfies the registry-facing contract at compile time.
var _ contract.Connection = (*Connection)(nil)

// Connection wraps one WebSocket session. Send enqueues into a bounded
// buffer drained by the write pump; it returns immediately, so the router
// never blocks on a slow socket. A full buffer means the consumer cannot
// keep up and the error lets the router treat the connection as gone.
type Connection struct {
	id     domain.ConnectionID
	owner  domain.UserID
	ws     *websocket.Conn
	send   chan event.DomainEvent
	done   chan struct{}
	closer sync.Once
	log    *slog.Logger
}

func NewConnection(owner domain.UserID, ws *websocket.Conn, sendBuffer int, log *slog.Logger) *Connection {
	return &Connection{
		id:    domain.NewConnectionID(),
		owner: owner,
		ws:    ws,
		send:  make(chan event.DomainEvent, sendBuffer),
		done:  make(chan struct{}),
		log:   log,
	}
}

func (c *Connection) ID() domain.ConnectionID { return c.id }

func (c *Connection) Owner() domain.UserID { return c.owner }

// Send enqueues the event for delivery, fire-and-forget. Never blocks.
func (c *Connection) Send(e event.DomainEvent) error {
	select {
	case <-c.done:
		return errors.ErrConnectionClosed
	default:
	}
	select {
	case c.send <- e:
		return nil
	default:
		return fmt.Errorf("send buffer full for connection %s", c.id)
	}
}

// Close tears the session down. Idempotent; in-flight deliveries to this
// connection fail safe afterwards.
func (c *Connection) Close() {
	c.closer.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

// Ack pushes the connected acknowledgement straight into the send buffer.
func (c *Connection) Ack() {
	select {
	case c.send <- ackEvent{}:
	default:
	}
}

// ackEvent is the transport-level "connected" acknowledgement. It targets
// no conversation and never goes through the router.
type ackEvent struct{}

func (ackEvent) Kind() event.Kind                    { return event.KindConnected }
func (ackEvent) Conversation() domain.ConversationID { return "" }

// errorEvent reports a rejected frame back to the acting session only, so a
// failed send or mark-read surfaces to the client that issued it. Like the
// ack it never goes through the router.
type errorEvent struct {
	source string
	reason string
}

func (errorEvent) Kind() event.Kind                    { return event.KindError }
func (errorEvent) Conversation() domain.ConversationID { return "" }

// WritePump drains the send buffer onto the socket and keeps the session
// alive with pings. Runs in its own goroutine; exits when the connection is
// closed or a write fails.
func (c *Connection) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case e := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(EncodeEvent(e)); err != nil {
				c.log.Debug(fmt.Sprintf("Write failed on connection %s: %v", c.id, err))
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
