package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jeffbot/soundboard/auth"
	"github.com/jeffbot/soundboard/config"
	"github.com/jeffbot/soundboard/playback"
	"github.com/jeffbot/soundboard/server"
	"github.com/jeffbot/soundboard/session"
	"github.com/jeffbot/soundboard/sound"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Open the sound library
	library, err := sound.Open(cfg.SoundsDir)
	if err != nil {
		log.Fatalf("Failed to open sound library: %v", err)
	}

	// Wire the protocol core: verifier -> backend -> dispatcher -> manager
	verifier := auth.NewVerifier(cfg.JWTSecret, cfg.TokenTTL)
	engine := playback.NewEngine(library, playback.StaticChannel(cfg.VoiceChannel))
	dispatcher := session.NewDispatcher(verifier, engine)

	sessionManager, err := session.NewManager(cfg, dispatcher)
	if err != nil {
		log.Fatalf("Failed to create session manager: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go sessionManager.StartCleanupRoutine(ctx)
	go func() {
		if err := library.Watch(ctx); err != nil {
			log.Printf("Sound watcher stopped: %v", err)
		}
	}()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	srv := server.NewServerWebsocket(cfg, sessionManager)

	go func() {
		<-sigChan
		log.Println("\nReceived shutdown signal...")
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	if err := srv.Start(); err != nil && err.Error() != "http: Server closed" {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server stopped")
}
