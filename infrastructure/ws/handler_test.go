package ws

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

var _ contract.Connection = (*recordingConnection)(nil)

type recordingConnection struct {
	id   domain.ConnectionID
	sent []event.DomainEvent
}

func (c *recordingConnection) ID() domain.ConnectionID { return c.id }
func (c *recordingConnection) Owner() domain.UserID    { return "alice" }
func (c *recordingConnection) Send(e event.DomainEvent) error {
	c.sent = append(c.sent, e)
	return nil
}
func (c *recordingConnection) Close() {}

func TestHandler_Reject_Surfaces_The_Failure_To_The_Acting_Session(t *testing.T) {
	req := require.New(t)
	h := NewHandler(nil, slog.Default(), 8)
	conn := &recordingConnection{id: "c1"}

	// When a frame is rejected, e.g. because the store write failed
	h.reject(conn, "new message", fmt.Errorf("disk on fire"))

	// Then the session that issued it gets an error frame back
	req.Len(conn.sent, 1)
	frame := EncodeEvent(conn.sent[0])
	req.Equal("error", frame.Event)
	req.Equal(wireError{Event: "new message", Reason: "disk on fire"}, frame.Data)
}
