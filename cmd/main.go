package main

import (
	"chat-relay/domain/event"
	"chat-relay/infrastructure/rest"
	"chat-relay/infrastructure/ws"
	"chat-relay/internal"
	"chat-relay/moderation"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/services"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the server lifecycle, and centralizes error reporting.
// This pattern is preferred over calling os.Exit or panic directly because:
// 1. It ensures all 'defer' statements (like database cleanup) are executed before the program exits.
// 2. It improves testability by decoupling the initialization logic from the main entry point.
// 3. It provides a structured way to handle graceful shutdowns for the HTTP server and background workers.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := internal.LoggerFromString(config.LogLevel)

	// 2. Database (BadgerDB)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Moderation automaton
	censored, err := moderation.LoadCensoredWords()
	if err != nil {
		return fmt.Errorf("censored words loading failed: %w", err)
	}
	log.Info(fmt.Sprintf("%d censored words loaded [%s]",
		len(censored.Words), strings.Join(censored.Languages, ",")))

	moderator, err := moderation.NewModerator(censored.Words, []rune(config.CharReplacement)[0], log)
	if err != nil {
		return fmt.Errorf("moderator build failed: %w", err)
	}

	// 4. Registries, repositories, orchestration
	messageRepository := repositories.NewMessageRepository(db, log, config.LimitMessages)
	conversationRepository := repositories.NewConversationRepository(db, log)

	registry := runtime.NewConnectionRegistry()
	membership := runtime.NewMembershipTable(conversationRepository, log)
	aggregator := runtime.NewReadReceiptAggregator(messageRepository, log)

	// The supervisor and the orchestrator share the telemetry channel so
	// worker restarts surface next to delivery counters.
	telemetryEvents := make(chan event.Event, config.BufferSize)
	supervisor := workers.NewSupervisor(log, telemetryEvents)

	orchestrator := runtime.NewOrchestrator(
		log,
		supervisor,
		registry,
		membership,
		aggregator,
		messageRepository,
		conversationRepository,
		moderator,
		config.BufferSize,
		telemetryEvents,
		config.MetricInterval,
		config.LowCapacityThreshold,
	)
	chatService := services.NewChatService(orchestrator)

	// 5. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	orchestrator.Start(ctx)

	// 6. HTTP & WebSocket surface
	wsHandler := ws.NewHandler(chatService, log, config.ConnectionBufferSize)
	restHandler := rest.NewHandler(chatService, log)

	router := chi.NewRouter()
	router.Mount("/", restHandler.Router())
	router.Get("/ws", wsHandler.ServeWS)

	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	server := &http.Server{Addr: address, Handler: router}

	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "address", address)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// 7. Wait for Stop or Error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return err
	}

	// 8. Final Cleanup
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
	orchestrator.Stop()
	log.Info("Program stopped cleanly")

	return nil
}
