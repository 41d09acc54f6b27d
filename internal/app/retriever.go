package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"pdfchat/internal/ai"
	"pdfchat/internal/platform/qdrant"
)

// NoResultsSentinel is returned instead of an empty context when retrieval
// matches nothing. The generator consumes it as-is and can answer "I found
// nothing" gracefully.
const NoResultsSentinel = "No results found."

// VectorSearcher is the read side of the vector store.
type VectorSearcher interface {
	Search(ctx context.Context, vector []float32, limit int, filter qdrant.Filter) ([]qdrant.ScoredPoint, error)
}

// LLMClient is the slice of the AI client the app services use.
type LLMClient interface {
	Embed(ctx context.Context, cfg ai.EmbeddingConfig, text string) ([]float32, error)
	Complete(ctx context.Context, cfg ai.ChatConfig, messages []ai.ChatMessage) (string, error)
	CompleteJSON(ctx context.Context, cfg ai.ChatConfig, messages []ai.ChatMessage) (string, error)
}

// Retriever fetches the top-K chunks relevant to a query and formats them
// with document/page provenance.
type Retriever struct {
	store  VectorSearcher
	llm    LLMClient
	embCfg ai.EmbeddingConfig
	topK   int
}

func NewRetriever(store VectorSearcher, llm LLMClient, embCfg ai.EmbeddingConfig, topK int) *Retriever {
	if topK <= 0 {
		topK = 20
	}
	return &Retriever{store: store, llm: llm, embCfg: embCfg, topK: topK}
}

// Retrieve embeds the query and searches the shared collection. Results are
// always scoped to the owning user's chunks; documentIDs narrows them
// further to specific documents. Callers must verify ownership of explicit
// document ids before calling.
func (r *Retriever) Retrieve(ctx context.Context, userID, query string, documentIDs []string) (string, error) {
	filter := qdrant.Filter{qdrant.Match("current_user_id", userID)}
	switch len(documentIDs) {
	case 0:
	case 1:
		filter = append(filter, qdrant.Match("pdf_id", documentIDs[0]))
	default:
		filter = append(filter, qdrant.MatchAny("pdf_id", documentIDs))
	}

	vector, err := r.llm.Embed(ctx, r.embCfg, query)
	if err != nil {
		return "", fmt.Errorf("embed query failed: %w", err)
	}

	hits, err := r.store.Search(ctx, vector, r.topK, filter)
	if err != nil {
		if errors.Is(err, qdrant.ErrCollectionNotFound) {
			return "", ErrNoDocumentsIndexed
		}
		return "", err
	}
	if len(hits) == 0 {
		return NoResultsSentinel, nil
	}

	blocks := make([]string, 0, len(hits))
	for _, hit := range hits {
		blocks = append(blocks, formatHit(hit))
	}
	return strings.Join(blocks, "\n\n"), nil
}

func formatHit(hit qdrant.ScoredPoint) string {
	name, _ := hit.Payload["document_name"].(string)
	if name == "" {
		name = "Unknown"
	}
	text, _ := hit.Payload["document"].(string)
	return fmt.Sprintf("[Document: %s, Page: %s]\n%s", name, formatPage(hit.Payload["page"]), text)
}

// formatPage renders the page number, which arrives as float64 after JSON
// decoding but may be an int from in-process fakes.
func formatPage(v any) string {
	switch n := v.(type) {
	case float64:
		return fmt.Sprintf("%d", int(n))
	case int:
		return fmt.Sprintf("%d", n)
	case string:
		return n
	default:
		return "Unknown"
	}
}
