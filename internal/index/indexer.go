// Package index turns document chunks into vector store points.
package index

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"pdfchat/internal/ai"
	"pdfchat/internal/pkg/chunker"
	"pdfchat/internal/platform/logger"
	"pdfchat/internal/platform/qdrant"
)

// Store is the vector store surface the indexer writes to.
type Store interface {
	EnsureCollection(ctx context.Context) error
	Upsert(ctx context.Context, points []qdrant.Point) error
	DeleteByFilter(ctx context.Context, filter qdrant.Filter) error
}

// Embedder produces an embedding vector for one text.
type Embedder interface {
	Embed(ctx context.Context, cfg ai.EmbeddingConfig, text string) ([]float32, error)
}

// DocumentRef identifies the document a batch of chunks belongs to. Every
// field ends up in each point's payload; retrieval formatting and user
// scoping depend on all of them.
type DocumentRef struct {
	ID          string
	Filename    string
	DisplayName string
	OwnerUserID string
}

type Indexer struct {
	log     *logger.Logger
	store   Store
	llm     Embedder
	embCfg  ai.EmbeddingConfig
	workers int
}

func NewIndexer(log *logger.Logger, store Store, llm Embedder, embCfg ai.EmbeddingConfig, workers int) *Indexer {
	if workers <= 0 {
		workers = 4
	}
	return &Indexer{
		log:     log.With("component", "indexer"),
		store:   store,
		llm:     llm,
		embCfg:  embCfg,
		workers: workers,
	}
}

// Index embeds and upserts every chunk. Each chunk is an independent unit of
// work running under a bounded worker pool; one failure surfaces and stops
// the rest, already-committed points stay committed. All points are durably
// stored when Index returns nil.
func (ix *Indexer) Index(ctx context.Context, chunks []chunker.Chunk, ref DocumentRef) error {
	if len(chunks) == 0 {
		return fmt.Errorf("no chunks to index for document %s", ref.ID)
	}
	if err := ix.store.EnsureCollection(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.workers)
	for _, chunk := range chunks {
		chunk := chunk
		g.Go(func() error {
			vector, err := ix.llm.Embed(gctx, ix.embCfg, chunk.Text)
			if err != nil {
				return fmt.Errorf("embed chunk page %d failed: %w", chunk.Page, err)
			}
			point := qdrant.Point{
				// Unique across repeated ingests of the same document id.
				ID:     fmt.Sprintf("%s_p%d_%s", ref.ID, chunk.Page, uuid.NewString()),
				Vector: vector,
				Payload: map[string]any{
					"document":        chunk.Text,
					"source":          ref.Filename,
					"pdf_id":          ref.ID,
					"page":            chunk.Page,
					"current_user_id": ref.OwnerUserID,
					"document_name":   ref.DisplayName,
				},
			}
			return ix.store.Upsert(gctx, []qdrant.Point{point})
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	ix.log.Info("document indexed",
		"document_id", ref.ID,
		"chunks", len(chunks),
		"user_id", ref.OwnerUserID,
	)
	return nil
}

// DeleteDocument removes every point belonging to one document. The filter
// is strict on pdf_id so other documents in the shared collection are never
// touched.
func (ix *Indexer) DeleteDocument(ctx context.Context, documentID string) error {
	if documentID == "" {
		return fmt.Errorf("document id is required")
	}
	return ix.store.DeleteByFilter(ctx, qdrant.Filter{qdrant.Match("pdf_id", documentID)})
}
