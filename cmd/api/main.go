package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/zhouzirui/trailchat/backend/internal/config"
	"github.com/zhouzirui/trailchat/backend/internal/handler"
	"github.com/zhouzirui/trailchat/backend/internal/handler/ws"
	"github.com/zhouzirui/trailchat/backend/internal/logging"
	"github.com/zhouzirui/trailchat/backend/internal/model/persona"
	"github.com/zhouzirui/trailchat/backend/internal/service/ai"
	"github.com/zhouzirui/trailchat/backend/internal/service/chat"
	"github.com/zhouzirui/trailchat/backend/internal/service/search"
	"github.com/zhouzirui/trailchat/backend/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	log := logging.New(cfg.Log.Level)
	if envErr != nil {
		log.Info("no .env file loaded, using system environment only", "reason", envErr.Error())
	}

	rdb := store.NewRedisClient(cfg.Redis)
	defer func() { _ = rdb.Close() }()

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Redis.DialTimeout)
	if err := store.Ping(pingCtx, rdb); err != nil {
		// Requests surface backend failures as 503 until Redis comes back.
		log.Warn("redis not reachable at startup", "addr", cfg.Redis.Addr, "error", err)
	} else {
		log.Info("redis connected", "addr", cfg.Redis.Addr)
	}
	cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	chatService := chat.NewService(rdb, chat.Options{
		Logger:           log.With("component", "chat"),
		Metrics:          chat.NewMetrics(reg),
		OpTimeout:        cfg.Redis.OpTimeout,
		MaxTxRetries:     cfg.Redis.MaxTxRetries,
		RetentionSeconds: cfg.Retention.WindowSeconds(),
	})
	searchService := search.NewService(rdb, log, 0)

	personaStore := persona.NewMemoryStore(persona.Seed())
	activePersona, _ := persona.Resolve(personaStore, cfg.AI.PersonaID)

	var responder ws.Responder
	if cfg.AI.Enabled() {
		responder = newResponder(ctx, log, cfg.AI, activePersona)
	} else {
		log.Info("Ark 凭证未配置，跳过 AI 功能初始化")
	}

	router := handler.NewRouter(handler.Deps{
		Chat:      chatService,
		Search:    searchService,
		Personas:  personaStore,
		PersonaID: activePersona.ID,
		Responder: responder,
		Health:    func(ctx context.Context) error { return store.Ping(ctx, rdb) },
		Gatherer:  reg,
		Logger:    log,
		Origins:   cfg.CORS.Origins,
	})

	startServer(ctx, log, cfg.Server, router)
}

// newResponder returns nil when the model cannot be built so callers get the
// apology reply instead of a crash.
func newResponder(ctx context.Context, log *slog.Logger, cfg config.AIConfig, p persona.Persona) ws.Responder {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		log.Warn("failed to create chat model, continuing without AI", "error", err)
		return nil
	}
	responder, err := ai.NewResponder(ctx, chatModel, p, log)
	if err != nil {
		log.Warn("failed to initialize AI responder, continuing without AI", "error", err)
		return nil
	}
	log.Info("AI responder initialized", "persona", p.ID, "model", cfg.Model)
	return responder
}

func startServer(ctx context.Context, log *slog.Logger, serverCfg config.ServerConfig, router http.Handler) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Info("trailchat backend listening", "addr", serverCfg.Addr)
	if err := runServer(ctx, srv); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
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
