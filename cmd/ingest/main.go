// Package main implements the bulk ingest CLI. It walks a directory of
// text files and indexes every file for a single tenant. Point ids are
// deterministic, so re-running over the same tree converges instead of
// duplicating records.
package main

import (
	"context"
	"flag"
	"fmt"
	"hash/fnv"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/DocSenseAI/docsense-mvp/engine/chunk"
	"github.com/DocSenseAI/docsense-mvp/engine/extract"
	"github.com/DocSenseAI/docsense-mvp/engine/index"
	"github.com/DocSenseAI/docsense-mvp/engine/semantic"
	"github.com/DocSenseAI/docsense-mvp/pkg/fn"
	"github.com/DocSenseAI/docsense-mvp/pkg/ollama"
	"github.com/DocSenseAI/docsense-mvp/pkg/resilience"
)

func main() {
	var (
		dir        = flag.String("dir", ".", "directory to ingest")
		tenant     = flag.Int64("tenant", 0, "tenant id to index under (required)")
		ollamaURL  = flag.String("ollama", "http://localhost:11434", "Ollama base URL")
		model      = flag.String("model", "nomic-embed-text", "embedding model")
		qdrantAddr = flag.String("qdrant", "localhost:6334", "Qdrant gRPC address")
		collection = flag.String("collection", "firm_documents", "Qdrant collection")
		chunkSize  = flag.Int("chunk-size", chunk.DefaultSize, "chunk size in bytes")
		overlap    = flag.Int("overlap", chunk.DefaultOverlap, "chunk overlap in bytes")
		rate       = flag.Float64("rate", 10, "max embedding calls per second")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if *tenant <= 0 {
		logger.Error("a positive -tenant is required")
		os.Exit(2)
	}

	if err := run(*dir, *tenant, *ollamaURL, *model, *qdrantAddr, *collection, *chunkSize, *overlap, *rate, logger); err != nil {
		logger.Error("ingest failed", "err", err)
		os.Exit(1)
	}
}

func run(dir string, tenant int64, ollamaURL, model, qdrantAddr, collection string, chunkSize, overlap int, rate float64, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	vectors, err := semantic.New(qdrantAddr, collection)
	if err != nil {
		return fmt.Errorf("qdrant connect: %w", err)
	}
	defer vectors.Close()

	embedder := &throttledEmbedder{
		inner:   ollama.NewEmbedClient(ollamaURL, model),
		limiter: resilience.NewLimiter(resilience.LimiterOpts{Rate: rate, Burst: 1}),
	}
	indexer := index.New(embedder, vectors, index.Options{
		ChunkSize:    chunkSize,
		Overlap:      overlap,
		EmbedWorkers: 4,
	}, logger)

	var files, failed, chunks int
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".txt" && ext != ".md" {
			return nil
		}

		text, err := extract.FromFile(path)
		if err != nil {
			logger.Error("extract failed", "path", path, "err", err)
			failed++
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = path
		}
		doc := index.Document{
			TenantID:   tenant,
			DocumentID: pathID(rel),
			Source:     rel,
			Text:       text,
		}

		result := fn.Retry(ctx, fn.DefaultRetry, func(ctx context.Context) fn.Result[int] {
			return fn.FromPair(indexer.Index(ctx, doc))
		})
		n, err := result.Unwrap()
		if err != nil {
			logger.Error("index failed", "path", rel, "err", err)
			failed++
			return nil
		}

		files++
		chunks += n
		logger.Info("indexed", "path", rel, "chunks", n)
		return nil
	})
	if err != nil {
		return err
	}

	logger.Info("ingest finished", "files", files, "failed", failed, "chunks", chunks)
	if failed > 0 {
		return fmt.Errorf("%d file(s) failed", failed)
	}
	return nil
}

// pathID derives a stable positive document id from a relative path.
func pathID(rel string) int64 {
	h := fnv.New64a()
	h.Write([]byte(filepath.ToSlash(rel)))
	return int64(h.Sum64() & (1<<63 - 1))
}

// throttledEmbedder paces embedding calls so a local model server is not
// flooded by the chunk fan-out.
type throttledEmbedder struct {
	inner   *ollama.EmbedClient
	limiter *resilience.Limiter
}

func (t *throttledEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return t.inner.Embed(ctx, text)
}
