// Package index turns extracted document text into vector records persisted
// in the similarity index.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/DocSenseAI/docsense-mvp/engine/chunk"
	"github.com/DocSenseAI/docsense-mvp/engine/domain"
	"github.com/DocSenseAI/docsense-mvp/engine/semantic"
	"github.com/DocSenseAI/docsense-mvp/pkg/fn"
)

// Embedder maps text to a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorIndex is the slice of the vector store the Indexer needs.
type VectorIndex interface {
	EnsureCollection(ctx context.Context, dims int) error
	Upsert(ctx context.Context, records []semantic.VectorRecord) error
}

// Document is one unit of indexable text.
type Document struct {
	TenantID   int64
	DocumentID int64
	Source     string
	Text       string
}

// Options configures chunking and embedding concurrency.
type Options struct {
	ChunkSize    int
	Overlap      int
	EmbedWorkers int
}

// DefaultOptions returns the defaults used by the API server.
func DefaultOptions() Options {
	return Options{
		ChunkSize:    chunk.DefaultSize,
		Overlap:      chunk.DefaultOverlap,
		EmbedWorkers: 4,
	}
}

// Indexer chunks, embeds, and upserts documents.
type Indexer struct {
	embed  Embedder
	store  VectorIndex
	opts   Options
	logger *slog.Logger
}

// New creates an Indexer.
func New(embed Embedder, store VectorIndex, opts Options, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = chunk.DefaultSize
	}
	if opts.EmbedWorkers <= 0 {
		opts.EmbedWorkers = 1
	}
	return &Indexer{embed: embed, store: store, opts: opts, logger: logger}
}

// PointID returns the deterministic id of one chunk of one document. It is a
// pure function of (tenant, document, chunk index), so re-indexing the same
// logical chunk always overwrites the same point.
func PointID(tenantID, documentID int64, idx int) string {
	name := fmt.Sprintf("%d:%d:%d", tenantID, documentID, idx)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}

// Index writes one document into the vector index and returns the number of
// records written. A document that chunks to nothing returns 0 without any
// external call. Any embedding or index failure aborts the whole operation;
// partial upserts may remain and rolling back the caller's own document
// bookkeeping is the caller's job.
func (ix *Indexer) Index(ctx context.Context, doc Document) (int, error) {
	parts, err := chunk.Split(doc.Text, ix.opts.ChunkSize, ix.opts.Overlap)
	if err != nil {
		return 0, err
	}
	if len(parts) == 0 {
		return 0, nil
	}

	// The first embedding's dimension is authoritative for the collection.
	first, err := ix.embed.Embed(ctx, parts[0])
	if err != nil {
		return 0, fmt.Errorf("index: embed chunk 0: %w", errors.Join(domain.ErrEmbeddingUnavailable, err))
	}
	if err := ix.store.EnsureCollection(ctx, len(first)); err != nil {
		return 0, fmt.Errorf("index: ensure collection: %w", err)
	}

	embeddings := make([][]float32, len(parts))
	embeddings[0] = first
	if len(parts) > 1 {
		results := fn.ParMapResult(parts[1:], ix.opts.EmbedWorkers, func(p string) fn.Result[[]float32] {
			return fn.FromPair(ix.embed.Embed(ctx, p))
		})
		rest, err := fn.Collect(results).Unwrap()
		if err != nil {
			return 0, fmt.Errorf("index: embed: %w", errors.Join(domain.ErrEmbeddingUnavailable, err))
		}
		copy(embeddings[1:], rest)
	}

	records := make([]semantic.VectorRecord, len(parts))
	for i, p := range parts {
		records[i] = semantic.VectorRecord{
			ID:        PointID(doc.TenantID, doc.DocumentID, i),
			Embedding: embeddings[i],
			Payload: semantic.Payload{
				TenantID:   doc.TenantID,
				DocumentID: doc.DocumentID,
				Source:     doc.Source,
				Text:       p,
			},
		}
	}
	if err := ix.store.Upsert(ctx, records); err != nil {
		return 0, fmt.Errorf("index: upsert: %w", err)
	}

	ix.logger.Info("document indexed",
		"tenant_id", doc.TenantID,
		"document_id", doc.DocumentID,
		"source", doc.Source,
		"chunks", len(records),
	)
	return len(records), nil
}
