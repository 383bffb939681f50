package retrieval

import (
	"context"
	"fmt"

	"knowledge/model"
	"knowledge/types"

	"github.com/google/uuid"
)

const (
	DefaultPoolSize = 30
	DefaultTopK     = 6
)

// Retriever produces scored candidates for a question within one collection.
// Scores are only comparable between candidates of the same strategy.
type Retriever interface {
	Retrieve(ctx context.Context, question string, collectionID uuid.UUID, limit int) ([]types.Candidate, error)
	Strategy() types.Strategy
}

type VectorSearcher interface {
	SearchVector(ctx context.Context, vec []float32, collectionID uuid.UUID, limit int, minScore float64) ([]types.Candidate, error)
}

type LexicalSearcher interface {
	SearchLexical(ctx context.Context, query string, collectionID uuid.UUID, limit int) ([]types.Candidate, error)
}

type SearchStore interface {
	VectorSearcher
	LexicalSearcher
}

// New picks the retriever for the process-wide strategy.
func New(strategy types.Strategy, embedder model.Embedder, store SearchStore, minSimilarity float64) (Retriever, error) {
	switch strategy {
	case types.StrategySemantic:
		if embedder == nil {
			return nil, fmt.Errorf("semantic retrieval needs an embedder")
		}
		return NewSemanticRetriever(embedder, store, minSimilarity), nil
	case types.StrategyLexical:
		return NewLexicalRetriever(store), nil
	}
	return nil, fmt.Errorf("unknown retrieval strategy %q", strategy)
}

// SemanticRetriever embeds the question and asks for the nearest chunks by
// cosine similarity, dropping those under minSimilarity.
type SemanticRetriever struct {
	embedder      model.Embedder
	store         VectorSearcher
	minSimilarity float64
}

func NewSemanticRetriever(embedder model.Embedder, store VectorSearcher, minSimilarity float64) *SemanticRetriever {
	return &SemanticRetriever{embedder: embedder, store: store, minSimilarity: minSimilarity}
}

func (r *SemanticRetriever) Strategy() types.Strategy {
	return types.StrategySemantic
}

func (r *SemanticRetriever) Retrieve(ctx context.Context, question string, collectionID uuid.UUID, limit int) ([]types.Candidate, error) {
	vec, err := r.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	candidates, err := r.store.SearchVector(ctx, vec, collectionID, limit, r.minSimilarity)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	return candidates, nil
}

type LexicalRetriever struct {
	store LexicalSearcher
}

func NewLexicalRetriever(store LexicalSearcher) *LexicalRetriever {
	return &LexicalRetriever{store: store}
}

func (r *LexicalRetriever) Strategy() types.Strategy {
	return types.StrategyLexical
}

func (r *LexicalRetriever) Retrieve(ctx context.Context, question string, collectionID uuid.UUID, limit int) ([]types.Candidate, error) {
	candidates, err := r.store.SearchLexical(ctx, question, collectionID, limit)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}
	return candidates, nil
}
