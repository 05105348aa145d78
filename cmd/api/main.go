package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang/glog"
	"github.com/joho/godotenv"

	"github.com/zhouzirui/city-explorer/internal/config"
	"github.com/zhouzirui/city-explorer/internal/handler"
	"github.com/zhouzirui/city-explorer/internal/model/persona"
	"github.com/zhouzirui/city-explorer/internal/service/ai"
	"github.com/zhouzirui/city-explorer/internal/service/chat"
)

func main() {
	_ = flag.Set("logtostderr", "true")
	flag.Parse()
	defer glog.Flush()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		glog.Warningf("failed to load .env file: %v", err)
		glog.Info("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		glog.Exitf("failed to load configuration: %v", err)
	}

	base := persona.Default()
	if cfg.Console.PersonaFile != "" {
		base, err = persona.LoadFile(cfg.Console.PersonaFile)
		if err != nil {
			glog.Exitf("failed to load persona: %v", err)
		}
	}

	chatService := chat.NewService()

	var aiService *ai.Service
	if missing := cfg.AI.MissingEnv(); missing == "" {
		aiService, err = ai.NewService(ctx, cfg.AI)
		if err != nil {
			glog.Warningf("failed to initialize AI service: %v", err)
			glog.Info("continuing without AI functionality")
		} else {
			glog.Infof("AI service initialized provider=%s model=%s", cfg.AI.ProviderLabel(), cfg.AI.Model)
		}
	} else {
		glog.Warningf("%s not set, AI endpoints disabled", missing)
	}

	router := handler.NewRouter(cfg.Server.CORSOrigin, base, chatService, aiService)

	startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	glog.Infof("City Explorer API listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		glog.Exitf("server error: %v", err)
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
