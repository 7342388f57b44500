// Package retrieve maps a question to the owning tenant's most similar
// stored chunks.
package retrieve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/DocSenseAI/docsense-mvp/engine/domain"
	"github.com/DocSenseAI/docsense-mvp/engine/semantic"
	"github.com/DocSenseAI/docsense-mvp/pkg/fn"
)

// DefaultTopK is the recommended result count.
const DefaultTopK = 4

// Embedder maps text to a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Searcher is the slice of the vector store the Retriever needs.
type Searcher interface {
	SearchTenant(ctx context.Context, embedding []float32, topK int, tenantID int64) ([]semantic.Hit, error)
}

// Retriever embeds questions and searches the tenant's records.
type Retriever struct {
	embed  Embedder
	search Searcher
	logger *slog.Logger
}

// New creates a Retriever.
func New(embed Embedder, search Searcher, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{embed: embed, search: search, logger: logger}
}

// Retrieve returns the tenant's nearest chunks, best first. Malformed hits
// are dropped. An unavailable index degrades to an empty result so the
// caller can still answer from no context; an embedding failure propagates.
func (r *Retriever) Retrieve(ctx context.Context, question string, tenantID int64, topK int) ([]domain.Chunk, error) {
	if topK < 1 {
		return nil, domain.NewParamError("top_k", "must be >= 1")
	}

	vec, err := r.embed.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("retrieve: embed question: %w", errors.Join(domain.ErrEmbeddingUnavailable, err))
	}

	hits, err := r.search.SearchTenant(ctx, vec, topK, tenantID)
	if err != nil {
		if errors.Is(err, domain.ErrIndexUnavailable) {
			r.logger.Warn("retrieve: search unavailable, answering from no context",
				"tenant_id", tenantID, "error", err)
			return nil, nil
		}
		return nil, fmt.Errorf("retrieve: search: %w", err)
	}

	chunks := fn.FilterMap(hits, func(h semantic.Hit) (domain.Chunk, bool) {
		if h.Malformed {
			return domain.Chunk{}, false
		}
		return domain.Chunk{Source: h.Source, Text: h.Text}, true
	})
	return chunks, nil
}
