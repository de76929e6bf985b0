package main

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/projection"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
)

func newTestClient() *client {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &client{
		log:      log,
		userID:   "alice",
		chatList: projection.NewChatList("alice", time.Minute, log),
		events:   make(chan event.DomainEvent, 64),
		commands: make(chan func(), 16),
		out:      io.Discard,
	}
}

func Test_Client_Loop_Serializes_Events_And_Commands(t *testing.T) {
	req := require.New(t)
	c := newTestClient()
	c.chatList.Load([]domain.Conversation{
		{ID: "general", Name: "General", Members: []domain.UserID{"alice", "bob"}},
	})

	result := make(chan error, 1)
	go func() {
		_, err := c.loop(context.Background())
		result <- err
	}()

	// Given one goroutine playing the server stream and one playing the
	// keyboard, both feeding the fold loop concurrently
	var producers sync.WaitGroup
	producers.Add(2)
	go func() {
		defer producers.Done()
		for i := 0; i < 200; i++ {
			c.events <- event.MessageReceived{Message: domain.Message{
				ID:             domain.MessageID(fmt.Sprintf("m%d", i)),
				ConversationID: "general",
				SenderID:       "bob",
				Content:        "hi",
				CreatedAt:      time.Now(),
			}}
		}
	}()
	go func() {
		defer producers.Done()
		for i := 0; i < 200; i++ {
			c.commands <- func() {
				c.chatList.Open("general", nil)
				_ = c.chatList.Conversations()
			}
		}
	}()

	// When the stream ends
	producers.Wait()
	close(c.events)

	// Then the loop exits and every message was folded without any other
	// goroutine ever touching the chat list
	req.Error(<-result)
	list := c.chatList.Conversations()
	req.Len(list, 1)
	req.Equal("hi", list[0].LatestMessage.Content)
}

func Test_Client_Typing_Emissions_Never_Block_The_Loop(t *testing.T) {
	req := require.New(t)
	c := newTestClient()

	// Given the command buffer is saturated
	for i := 0; i < cap(c.commands); i++ {
		c.commands <- func() {}
	}

	// When a typing signal fires, it is dropped instead of deadlocking
	done := make(chan struct{})
	go func() {
		c.enqueue(func() { t.Error("dropped command must not run") })
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		req.Fail("enqueue blocked on a full command buffer")
	}
	req.Len(c.commands, cap(c.commands))
}

func Test_Truncate_Cuts_On_Rune_Boundaries(t *testing.T) {
	req := require.New(t)
	req.Equal("short", truncate("short", 40))

	long := strings.Repeat("é", 45)
	got := truncate(long, 40)
	req.Equal(strings.Repeat("é", 37)+"...", got)
	req.True(utf8.ValidString(got))
}
