// Package main implements the DocSense API server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/DocSenseAI/docsense-mvp/engine/index"
	"github.com/DocSenseAI/docsense-mvp/engine/rag"
	"github.com/DocSenseAI/docsense-mvp/engine/retrieve"
	"github.com/DocSenseAI/docsense-mvp/engine/semantic"
	"github.com/DocSenseAI/docsense-mvp/pkg/auth"
	"github.com/DocSenseAI/docsense-mvp/pkg/config"
	"github.com/DocSenseAI/docsense-mvp/pkg/metrics"
	"github.com/DocSenseAI/docsense-mvp/pkg/mid"
	"github.com/DocSenseAI/docsense-mvp/pkg/ollama"
	"github.com/DocSenseAI/docsense-mvp/pkg/repo"
	"github.com/DocSenseAI/docsense-mvp/pkg/resilience"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load("config.yaml")
	if err != nil {
		logger.Error("config load failed", "err", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Persistence ---
	store, err := repo.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	if err := os.MkdirAll(cfg.Storage.Dir, 0o755); err != nil {
		return fmt.Errorf("create storage dir: %w", err)
	}

	// --- Connect to Qdrant ---
	vectors, err := semantic.New(cfg.Qdrant.Addr, cfg.Qdrant.Collection)
	if err != nil {
		return fmt.Errorf("qdrant connect: %w", err)
	}
	defer vectors.Close()

	// --- Model gateways ---
	embedder := ollama.NewEmbedClient(cfg.Ollama.BaseURL, cfg.Ollama.EmbedModel)
	chat := &guardedChat{
		chat:    ollama.NewChatClient(cfg.Ollama.BaseURL, cfg.Ollama.ChatModel),
		breaker: resilience.NewBreaker(resilience.DefaultBreakerOpts),
	}

	// --- Engine ---
	indexer := index.New(embedder, vectors, index.Options{
		ChunkSize:    cfg.Chunking.Size,
		Overlap:      cfg.Chunking.Overlap,
		EmbedWorkers: 4,
	}, logger)
	retriever := retrieve.New(embedder, vectors, logger)
	ragSvc := rag.New(retriever, chat, rag.Options{TopK: cfg.TopK}, logger)

	// --- Optional NATS for async re-indexing ---
	var nc *nats.Conn
	if cfg.NATS.URL != "" {
		nc, err = nats.Connect(cfg.NATS.URL, nats.Name("docsense-api"))
		if err != nil {
			return fmt.Errorf("nats connect: %w", err)
		}
		defer nc.Close()
	}

	reg := metrics.New()
	srvDeps := &server{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		vectors: vectors,
		indexer: indexer,
		rag:     ragSvc,
		tokens:  auth.NewTokenIssuer(cfg.Auth.Secret, cfg.Auth.TokenTTL()),
		nc:      nc,

		uploads: reg.Counter("docsense_uploads_total", "Documents uploaded."),
		reports: reg.Counter("docsense_reports_total", "Reports generated."),
		askTime: reg.Histogram("docsense_ask_seconds", "Report generation latency.", nil),
	}

	// --- Build HTTP server ---
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", handleHealth)
	mux.Handle("GET /metrics", reg.Handler())
	mux.HandleFunc("POST /api/auth/register", srvDeps.handleRegister)
	mux.HandleFunc("POST /api/auth/login", srvDeps.handleLogin)

	protect := mid.Auth(srvDeps.tokens)
	mux.Handle("GET /api/me", protect(http.HandlerFunc(srvDeps.handleMe)))
	mux.Handle("POST /api/documents/upload", protect(http.HandlerFunc(srvDeps.handleUpload)))
	mux.Handle("GET /api/documents", protect(http.HandlerFunc(srvDeps.handleListDocuments)))
	mux.Handle("DELETE /api/documents/{id}", protect(http.HandlerFunc(srvDeps.handleDeleteDocument)))
	mux.Handle("POST /api/documents/{id}/reindex", protect(http.HandlerFunc(srvDeps.handleReindexDocument)))
	mux.Handle("POST /api/reports/generate", protect(http.HandlerFunc(srvDeps.handleGenerateReport)))
	mux.Handle("GET /api/reports/history", protect(http.HandlerFunc(srvDeps.handleReportHistory)))
	mux.Handle("GET /api/reports/{id}", protect(http.HandlerFunc(srvDeps.handleReportByID)))

	handler := mid.Chain(mux,
		mid.Recover(logger),
		mid.Logger(logger),
		mid.CORS(cfg.HTTP.CORSOrigin),
		mid.OTel("docsense-api"),
		mid.RateLimit(cfg.HTTP.RateRPS, cfg.HTTP.RateBurst),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTP.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// --- Graceful shutdown ---
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.HTTP.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

// guardedChat runs chat calls through a circuit breaker so a dead model
// backend fails fast instead of piling up requests.
type guardedChat struct {
	chat    *ollama.ChatClient
	breaker *resilience.Breaker
}

func (g *guardedChat) Chat(ctx context.Context, system, user string) (string, error) {
	var out string
	err := g.breaker.Call(ctx, func(ctx context.Context) error {
		reply, err := g.chat.Chat(ctx, system, user)
		out = reply
		return err
	})
	return out, err
}
