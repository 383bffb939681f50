package retrieval

import (
	"context"
	"log/slog"

	"knowledge/types"

	"github.com/google/uuid"
)

type Pipeline struct {
	retriever Retriever
	gate      Gate
	poolSize  int
	topK      int
	logger    *slog.Logger
}

type PipelineOptions struct {
	PoolSize       int
	TopK           int
	WeakMatchFloor float64
	Logger         *slog.Logger
}

func NewPipeline(retriever Retriever, opts PipelineOptions) *Pipeline {
	if opts.PoolSize <= 0 {
		opts.PoolSize = DefaultPoolSize
	}
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Pipeline{
		retriever: retriever,
		gate:      NewGate(retriever.Strategy(), opts.WeakMatchFloor),
		poolSize:  opts.PoolSize,
		topK:      opts.TopK,
		logger:    opts.Logger,
	}
}

func (p *Pipeline) Strategy() types.Strategy {
	return p.retriever.Strategy()
}

// Run retrieves, reranks and classifies candidates for question. A weak match
// is reported through Groundable, never as an error.
func (p *Pipeline) Run(ctx context.Context, question string, collectionID uuid.UUID) (types.QueryOutcome, error) {
	candidates, err := p.retriever.Retrieve(ctx, question, collectionID, p.poolSize)
	if err != nil {
		return types.QueryOutcome{}, err
	}

	ranked := Rerank(candidates, p.topK)
	confidence := Classify(ranked, p.retriever.Strategy())
	groundable := p.gate.Groundable(ranked, confidence)

	p.logger.Info("retrieval_done",
		slog.String("strategy", string(p.retriever.Strategy())),
		slog.String("collection_id", collectionID.String()),
		slog.Int("candidates", len(candidates)),
		slog.Int("reranked", len(ranked)),
		slog.String("confidence", string(confidence)),
		slog.Bool("groundable", groundable))

	return types.QueryOutcome{
		Confidence: confidence,
		Groundable: groundable,
		Reranked:   ranked,
	}, nil
}
