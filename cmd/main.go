package main

import (
	"chatline/auth"
	"chatline/internal/logger"
	"chatline/moderation"
	"chatline/observability"
	"chatline/repositories"
	"chatline/runtime"
	"chatline/runtime/workers"
	"chatline/server"
	"chatline/services"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run wires every component and owns the server lifecycle, so all defers fire
// before the process exits and main stays trivially testable.
func run() error {
	// Configuration & logger. A local .env overrides nothing already set.
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logger.FromString(config.LogLevel)

	// Database.
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// Shared infrastructure.
	metrics := observability.NewCollector()
	registry := runtime.NewRegistry()
	router := runtime.NewRouter(log, registry, config.RouterBufferSize, config.SinkTimeout, metrics)

	moderator, err := moderation.NewModerator(moderation.DefaultWords(), config.ModerationCharReplacement)
	if err != nil {
		return fmt.Errorf("moderator setup failed: %w", err)
	}

	// Repositories & services.
	messageRepository := repositories.NewMessageRepository(db, log)
	groupRepository := repositories.NewGroupRepository(db)
	userRepository := repositories.NewUserRepository(db)

	tokens := auth.NewTokenManager(config.JWTSecret, config.TokenDuration)
	authService := services.NewAuthService(log, userRepository, tokens)
	groupService := services.NewGroupService(log, groupRepository, router)
	messageService := services.NewMessageService(log, messageRepository, groupService, router, moderator, metrics)

	// Context & signals.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The router runs as a supervised worker: a panic in fan-out restarts the
	// loop instead of killing the process.
	sup := workers.NewSupervisor(log, config.RestartInterval)
	sup.Add(router)
	go sup.Run(ctx)

	// HTTP surface.
	gateway := server.NewGateway(log, registry, messageService, groupService, tokens, metrics, config.ConnectionBufferSize)
	handlers := server.NewHandlers(log, authService, groupService, messageService)
	apiLimiter := server.NewRateLimiter(config.APIRatePerSecond, config.APIRateBurst)
	createLimiter := server.NewRateLimiter(config.CreateRatePerSecond, config.CreateRateBurst)

	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	httpServer := &http.Server{
		Addr:              address,
		Handler:           server.NewHTTPRouter(handlers, gateway, tokens, apiLimiter, createLimiter, metrics.Handler()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "address", address)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown did not finish cleanly", "error", err)
	}
	sup.Stop()
	log.Info("Program stopped cleanly")

	return nil
}
