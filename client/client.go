// Command client is a terminal chat client against the relay. It maintains
// its local view purely from the event stream: the conversation list is
// fetched once, then kept consistent by folding server frames, with a full
// refetch only when an unknown conversation shows up.
package main

import (
	"bufio"
	"bytes"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/infrastructure/ws"
	"chat-relay/internal"
	"chat-relay/projection"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// Config defines the client-side environment variables.
type Config struct {
	ServerAddress string        `env:"CHAT_SERVER_ADDR,default=localhost:5000"`
	UserID        string        `env:"CHAT_USER_ID,required=true"`
	LogLevel      string        `env:"LOG_LEVEL,default=warn"`
	QuietWindow   time.Duration `env:"TYPING_QUIET_WINDOW,default=3s"`
}

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	log := internal.LoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := &client{
		config:   config,
		log:      log,
		userID:   domain.UserID(config.UserID),
		chatList: projection.NewChatList(domain.UserID(config.UserID), config.QuietWindow, log),
		events:   make(chan event.DomainEvent, 64),
		commands: make(chan func(), 16),
		out:      os.Stdout,
	}
	return c.run(ctx)
}

// client folds everything on one goroutine: chatList, open, the socket
// writer, and the screen are owned by the fold loop. The receive and stdin
// goroutines only feed the events and commands channels.
type client struct {
	config   Config
	log      *slog.Logger
	userID   domain.UserID
	socket   *websocket.Conn
	chatList *projection.ChatList
	debounce *projection.TypingDebouncer
	open     *domain.ConversationID
	events   chan event.DomainEvent
	commands chan func()
	out      io.Writer
}

func (c *client) run(ctx context.Context) (int, error) {
	base, err := c.fetchConversations()
	if err != nil {
		return exitRuntime, fmt.Errorf("could not fetch conversations: %w", err)
	}
	c.chatList.Load(base)

	socket, _, err := websocket.DefaultDialer.Dial(fmt.Sprintf("ws://%s/ws", c.config.ServerAddress), nil)
	if err != nil {
		return exitRuntime, fmt.Errorf("could not connect to relay at %s: %w", c.config.ServerAddress, err)
	}
	c.socket = socket
	defer func() {
		c.log.Info("Closing connection...")
		_ = socket.Close()
	}()

	if err := c.emit("setup", ws.SetupPayload{UserID: string(c.userID)}); err != nil {
		return exitRuntime, err
	}

	c.debounce = projection.NewTypingDebouncer(c.config.QuietWindow,
		func() { c.enqueue(func() { c.emitTyping("typing") }) },
		func() { c.enqueue(func() { c.emitTyping("stop typing") }) },
	)

	go c.receiveLoop()
	go c.inputLoop()

	c.render()
	return c.loop(ctx)
}

// loop is the reconciliation loop, single-threaded on purpose: one event or
// one stdin command folds to completion before the next is looked at, so no
// other goroutine ever touches the chat list or writes to the socket.
func (c *client) loop(ctx context.Context) (int, error) {
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(c.out, "Bye.")
			return exitOK, nil
		case cmd := <-c.commands:
			cmd()
		case e, ok := <-c.events:
			if !ok {
				return exitRuntime, fmt.Errorf("stream closed by server")
			}
			c.chatList.Apply(e)
			if c.chatList.NeedsRefetch() {
				c.refetch()
			}
			c.render()
		}
	}
}

// enqueue hands a command to the fold loop without blocking the caller. The
// debounce timer fires on its own goroutine and Flush can fire from inside
// the loop itself, so a blocking send could deadlock; typing signals are
// ephemeral enough to drop under backpressure.
func (c *client) enqueue(cmd func()) {
	select {
	case c.commands <- cmd:
	default:
	}
}

// receiveLoop decodes server frames into domain events for the fold loop.
func (c *client) receiveLoop() {
	defer close(c.events)
	for {
		var frame struct {
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
		}
		if err := c.socket.ReadJSON(&frame); err != nil {
			c.log.Debug(fmt.Sprintf("Receive loop ended: %v", err))
			return
		}
		e, ok := c.decode(frame.Event, frame.Data)
		if !ok {
			continue
		}
		c.events <- e
	}
}

func (c *client) decode(name string, data json.RawMessage) (event.DomainEvent, bool) {
	switch name {
	case "connected":
		c.log.Info("Connected to relay")
		return nil, false
	case "error":
		var payload struct {
			Event  string `json:"event"`
			Reason string `json:"reason"`
		}
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, false
		}
		c.log.Warn(fmt.Sprintf("Server rejected %q: %s", payload.Event, payload.Reason))
		return nil, false
	case "message received":
		var wire ws.WireMessage
		if err := json.Unmarshal(data, &wire); err != nil {
			return nil, false
		}
		return event.MessageReceived{Message: ws.ToMessage(wire)}, true
	case "typing", "stop typing":
		var payload struct {
			ConversationID string `json:"conversation_id"`
			UserID         string `json:"user_id"`
		}
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, false
		}
		if name == "typing" {
			return event.TypingStarted{
				ConversationID: domain.ConversationID(payload.ConversationID),
				UserID:         domain.UserID(payload.UserID),
			}, true
		}
		return event.TypingStopped{
			ConversationID: domain.ConversationID(payload.ConversationID),
			UserID:         domain.UserID(payload.UserID),
		}, true
	case "read receipts updated":
		var payload struct {
			ConversationID string           `json:"conversation_id"`
			Messages       []ws.WireMessage `json:"messages"`
		}
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, false
		}
		return event.ReadReceiptsUpdated{
			ConversationID: domain.ConversationID(payload.ConversationID),
			Messages: lo.Map(payload.Messages, func(wire ws.WireMessage, _ int) domain.Message {
				return ws.ToMessage(wire)
			}),
		}, true
	default:
		c.log.Debug(fmt.Sprintf("Ignoring unknown server event %q", name))
		return nil, false
	}
}

// inputLoop reads commands from stdin:
//
//	/open <n>   open the n-th conversation of the list
//	/read       acknowledge every message of the open conversation
//	<text>      send <text> to the open conversation
//
// It only parses; execution happens on the fold loop.
func (c *client) inputLoop() {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
		case strings.HasPrefix(line, "/open "):
			arg := strings.TrimPrefix(line, "/open ")
			c.commands <- func() { c.openConversation(arg) }
		case line == "/read":
			c.commands <- func() { c.markOpenRead() }
		default:
			c.commands <- func() { c.sendMessage(line) }
		}
	}
}

func (c *client) openConversation(arg string) {
	idx := 0
	if _, err := fmt.Sscanf(arg, "%d", &idx); err != nil {
		color.Red.Println("Usage: /open <n>")
		return
	}
	conversations := c.chatList.Conversations()
	if idx < 1 || idx > len(conversations) {
		color.Red.Printf("No conversation #%d\n", idx)
		return
	}
	conversation := conversations[idx-1]

	history, err := c.fetchMessages(conversation.ID)
	if err != nil {
		color.Red.Printf("Could not fetch history: %v\n", err)
		return
	}
	c.open = &conversation.ID
	c.chatList.Open(conversation.ID, history)
	_ = c.emit("join chat", ws.JoinPayload{ConversationID: string(conversation.ID)})
	c.render()
}

func (c *client) sendMessage(content string) {
	if c.open == nil {
		color.Red.Println("Open a conversation first: /open <n>")
		return
	}
	c.debounce.Keystroke()
	c.debounce.Flush()
	if err := c.emit("new message", ws.NewMessagePayload{
		ConversationID: string(*c.open),
		Content:        content,
	}); err != nil {
		color.Red.Printf("Send failed: %v\n", err)
	}
}

func (c *client) markOpenRead() {
	if c.open == nil {
		return
	}
	unread := lo.FilterMap(c.chatList.OpenMessages(), func(m domain.Message, _ int) (string, bool) {
		return string(m.ID), m.UnreadFor(c.userID)
	})
	if len(unread) == 0 {
		return
	}
	_ = c.emit("read receipt", map[string]any{"message_ids": unread})
}

func (c *client) emit(name string, payload any) error {
	return c.socket.WriteJSON(map[string]any{"event": name, "data": payload})
}

func (c *client) emitTyping(name string) {
	if c.open == nil {
		return
	}
	_ = c.emit(name, ws.TypingPayload{ConversationID: string(*c.open)})
}

func (c *client) refetch() {
	c.chatList.BeginRefetch()
	base, err := c.fetchConversations()
	if err != nil {
		c.log.Warn(fmt.Sprintf("Refetch failed, keeping stale list: %v", err))
		c.chatList.CompleteRefetch(c.chatList.Conversations())
		return
	}
	c.chatList.CompleteRefetch(base)
}

type wireConversation struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Members       []string        `json:"members"`
	IsGroup       bool            `json:"is_group"`
	LatestMessage *ws.WireMessage `json:"latest_message"`
}

func (c *client) fetchConversations() ([]domain.Conversation, error) {
	var body []wireConversation
	if err := c.get("/api/chat", &body); err != nil {
		return nil, err
	}
	return lo.Map(body, func(raw wireConversation, _ int) domain.Conversation {
		conversation := domain.Conversation{
			ID:      domain.ConversationID(raw.ID),
			Name:    raw.Name,
			IsGroup: raw.IsGroup,
			Members: lo.Map(raw.Members, func(id string, _ int) domain.UserID {
				return domain.UserID(id)
			}),
		}
		if raw.LatestMessage != nil {
			message := ws.ToMessage(*raw.LatestMessage)
			conversation.LatestMessage = &message
		}
		return conversation
	}), nil
}

func (c *client) fetchMessages(conversationID domain.ConversationID) ([]domain.Message, error) {
	var body struct {
		Messages []ws.WireMessage `json:"messages"`
	}
	if err := c.get(fmt.Sprintf("/api/message/%s", conversationID), &body); err != nil {
		return nil, err
	}
	messages := lo.Map(body.Messages, func(wire ws.WireMessage, _ int) domain.Message {
		return ws.ToMessage(wire)
	})
	// History arrives most recent first; the open view appends oldest first.
	lo.Reverse(messages)
	return messages, nil
}

func (c *client) get(path string, out any) error {
	req, err := http.NewRequest(http.MethodGet, fmt.Sprintf("http://%s%s", c.config.ServerAddress, path), nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-User-ID", string(c.userID))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// render repaints the conversation table and, when open, the message view.
func (c *client) render() {
	buf := &bytes.Buffer{}
	table := tablewriter.NewWriter(buf)
	table.SetHeader([]string{"#", "Conversation", "Latest", "From", "Unread"})
	table.SetAutoWrapText(false)
	table.SetBorder(false)

	for i, conversation := range c.chatList.Conversations() {
		latest, from := "", ""
		if conversation.LatestMessage != nil {
			latest = truncate(conversation.LatestMessage.Content, 40)
			from = string(conversation.LatestMessage.SenderID)
		}
		unread := ""
		if c.chatList.Unread(conversation.ID) {
			unread = color.Bold.Render("*")
		}
		table.Append([]string{fmt.Sprintf("%d", i+1), conversation.Name, latest, from, unread})
	}
	table.Render()

	fmt.Fprint(c.out, "\033[H\033[2J")
	fmt.Fprint(c.out, color.Cyan.Sprintf("=== %s ===\n", c.userID))
	fmt.Fprint(c.out, buf.String())

	if c.open != nil {
		fmt.Fprintln(c.out)
		for _, message := range c.chatList.OpenMessages() {
			line := fmt.Sprintf("[%s] %s: %s",
				message.CreatedAt.Format(time.TimeOnly), message.SenderID, message.Content)
			if message.SenderID == c.userID {
				fmt.Fprintln(c.out, color.Green.Render(line))
			} else {
				fmt.Fprintln(c.out, line)
			}
		}
		if c.chatList.TypingActive() {
			fmt.Fprint(c.out, color.Gray.Sprintf("%s is typing...\n", c.chatList.Typist()))
		}
	}
}

// truncate cuts on rune boundaries so a multibyte character at the limit
// never renders as broken bytes.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}
