// Package main implements the re-index worker. It drains re-index jobs
// from NATS and replays stored uploads through the indexer.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"

	"github.com/DocSenseAI/docsense-mvp/engine/extract"
	"github.com/DocSenseAI/docsense-mvp/engine/index"
	"github.com/DocSenseAI/docsense-mvp/engine/semantic"
	"github.com/DocSenseAI/docsense-mvp/pkg/config"
	"github.com/DocSenseAI/docsense-mvp/pkg/metrics"
	"github.com/DocSenseAI/docsense-mvp/pkg/natsutil"
	"github.com/DocSenseAI/docsense-mvp/pkg/ollama"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load("config.yaml")
	if err != nil {
		logger.Error("config load failed", "err", err)
		os.Exit(1)
	}
	if cfg.NATS.URL == "" {
		logger.Error("NATS_URL is required for the re-index worker")
		os.Exit(2)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("worker exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	nc, err := nats.Connect(cfg.NATS.URL, nats.Name("docsense-reindex"))
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	defer nc.Close()

	vectors, err := semantic.New(cfg.Qdrant.Addr, cfg.Qdrant.Collection)
	if err != nil {
		return fmt.Errorf("qdrant connect: %w", err)
	}
	defer vectors.Close()

	embedder := ollama.NewEmbedClient(cfg.Ollama.BaseURL, cfg.Ollama.EmbedModel)
	indexer := index.New(embedder, vectors, index.Options{
		ChunkSize:    cfg.Chunking.Size,
		Overlap:      cfg.Chunking.Overlap,
		EmbedWorkers: 4,
	}, logger)

	reg := metrics.New()
	sub, err := index.StartConsumer(nc, index.ConsumerDeps{
		Indexer:  indexer,
		LoadText: extract.FromFile,
		Logger:   logger,

		Processed:    reg.Counter("docsense_reindex_jobs_total", "Jobs re-indexed."),
		Failed:       reg.Counter("docsense_reindex_failures_total", "Job attempts that failed."),
		DeadLettered: reg.Counter("docsense_reindex_dlq_total", "Jobs sent to the DLQ."),
	})
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	defer sub.Drain()

	// Dead-lettered jobs need operator attention; surface them in the log.
	dlqSub, err := natsutil.Subscribe(nc, index.SubjectReindexDLQ, func(_ context.Context, dl index.DeadLetter) {
		logger.Error("job dead-lettered",
			"tenant_id", dl.Job.TenantID,
			"document_id", dl.Job.DocumentID,
			"retries", dl.Retries,
			"err", dl.Error,
		)
	})
	if err != nil {
		return fmt.Errorf("subscribe dlq: %w", err)
	}
	defer dlqSub.Drain()

	reg.ServeAsync(cfg.MetricsPort)

	logger.Info("reindex worker started", "subject", index.SubjectReindex, "metrics_port", cfg.MetricsPort)
	<-ctx.Done()
	logger.Info("shutdown signal received")
	return nil
}
