package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/quietriver/avatar-stage/backend/internal/config"
	"github.com/quietriver/avatar-stage/backend/internal/handler"
	"github.com/quietriver/avatar-stage/backend/internal/service/avatar"
	"github.com/quietriver/avatar-stage/backend/internal/service/dialogue"
	"github.com/quietriver/avatar-stage/backend/internal/service/orchestrator"
	"github.com/quietriver/avatar-stage/backend/internal/service/speech"
	"github.com/quietriver/avatar-stage/backend/internal/transcript"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	transcriptLog := transcript.NewLogger(cfg.Transcript.Path)
	log.Printf("transcript log at %s", transcriptLog.Path())

	deps := orchestrator.Deps{Transcript: transcriptLog}

	if cfg.Avatar.Enabled() {
		deps.Avatar = avatar.NewClient(avatar.Config{
			APIKey:          cfg.Avatar.APIKey,
			PersonaID:       cfg.Avatar.PersonaID,
			ReplicaID:       cfg.Avatar.ReplicaID,
			BaseURL:         cfg.Avatar.BaseURL,
			InteractionsURL: cfg.Avatar.InteractionsURL,
			CreateTimeout:   cfg.Avatar.CreateTimeout,
			EndTimeout:      cfg.Avatar.EndTimeout,
			SpeakTimeout:    cfg.Avatar.SpeakTimeout,
		})
		log.Println("avatar service initialized successfully")
	} else {
		log.Println("avatar credentials not configured, skipping avatar initialization")
	}

	if cfg.OpenAI.Enabled() {
		deps.Speech = speech.NewService(speech.Config{
			APIKey:  cfg.OpenAI.APIKey,
			BaseURL: cfg.OpenAI.BaseURL,
			Model:   cfg.OpenAI.ASRModel,
			Timeout: cfg.OpenAI.ASRTimeout,
		})

		dialogueSvc := dialogue.NewService(dialogue.Config{
			APIKey:       cfg.OpenAI.APIKey,
			BaseURL:      cfg.OpenAI.BaseURL,
			Model:        cfg.OpenAI.ChatModel,
			SystemPrompt: cfg.OpenAI.SystemPrompt,
			Temperature:  cfg.OpenAI.Temperature,
			Timeout:      cfg.OpenAI.ChatTimeout,
		})
		deps.Dialogue = dialogueSvc
		if cfg.OpenAI.ValidateOnStart {
			deps.Validator = dialogueSvc
		}
		log.Println("speech and dialogue services initialized successfully")
	} else {
		log.Println("OpenAI credentials not configured, skipping speech and dialogue initialization")
	}

	orch := orchestrator.NewService(deps)
	router := handler.NewRouter(orch, transcriptLog)

	startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("avatar stage backend listening on %s", serverCfg.Addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
