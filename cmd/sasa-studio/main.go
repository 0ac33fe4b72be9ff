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

	"github.com/sasa-studio/studio/internal/config"
	"github.com/sasa-studio/studio/internal/gemini"
	"github.com/sasa-studio/studio/internal/httpapi"
	"github.com/sasa-studio/studio/internal/observability"
	"github.com/sasa-studio/studio/internal/session"
	"github.com/sasa-studio/studio/internal/studio"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Print("no .env file found; using process environment")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if cfg.GeminiAPIKey == "" {
		log.Printf("no GEMINI_API_KEY set; panels wait for a selected key")
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	creds := studio.NewCredentials(cfg.GeminiAPIKey)
	client := gemini.New(cfg.Gemini(), creds)
	svc := studio.NewService(client, creds, cfg.HistoryLimit)

	sessions := session.NewManager(cfg.SessionInactivityTimeout)
	sessions.SetExpireHook(func(_ *session.Session) {
		metrics.SessionEvents.WithLabelValues("expired").Inc()
		metrics.ActiveSessions.Set(float64(sessions.ActiveCount()))
	})

	api := httpapi.New(cfg, sessions, svc, client.Live(), metrics)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	sessions.StartJanitor(runCtx, 5*time.Second)

	go func() {
		log.Printf("server listening on %s (live model %s)", cfg.BindAddr, client.Config().LiveModel)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}
