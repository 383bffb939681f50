package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"knowledge/chunker"
	"knowledge/model"
	"knowledge/types"

	"github.com/google/uuid"
)

type Pipeline interface {
	Run(ctx context.Context, question string, collectionID uuid.UUID) (types.QueryOutcome, error)
	Strategy() types.Strategy
}

type QueryLogger interface {
	SaveQueryLog(ctx context.Context, q types.QueryLog) error
}

type Request struct {
	UserID       string
	CollectionID uuid.UUID
	Mode         string
	Question     string
	Constraints  string
	Language     string
}

// Agent answers questions from the chunks of one collection.
type Agent struct {
	pipeline        Pipeline
	generator       model.Generator
	queries         QueryLogger
	tokenizer       chunker.Tokenizer
	defaultLanguage string
	logger          *slog.Logger
}

type Options struct {
	DefaultLanguage string
	// Tokenizer, when set, is used to log prompt sizes.
	Tokenizer chunker.Tokenizer
	Logger    *slog.Logger
}

func New(pipeline Pipeline, generator model.Generator, queries QueryLogger, opts Options) *Agent {
	if opts.DefaultLanguage == "" {
		opts.DefaultLanguage = "sv"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Agent{
		pipeline:        pipeline,
		generator:       generator,
		queries:         queries,
		tokenizer:       opts.Tokenizer,
		defaultLanguage: opts.DefaultLanguage,
		logger:          opts.Logger,
	}
}

// Ask runs retrieval and, when the match is strong enough, generation.
// A weak match returns the fixed no-answer reply without calling the model.
func (a *Agent) Ask(ctx context.Context, req Request) (*types.QueryResponse, error) {
	start := time.Now()
	queryID := uuid.New()
	language := req.Language
	if language == "" {
		language = a.defaultLanguage
	}

	outcome, err := a.pipeline.Run(ctx, req.Question, req.CollectionID)
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}

	resp := &types.QueryResponse{
		QueryID:         queryID,
		Answer:          NoAnswer(language),
		Citations:       []types.Citation{},
		RetrievedChunks: []types.RetrievedChunk{},
		Confidence:      outcome.Confidence,
	}

	if outcome.Groundable {
		assembled := Assemble(outcome.Reranked)
		system := SystemPrompt(req.Mode, language, assembled.Context)
		user := UserPrompt(req.Question, req.Constraints, language)
		a.logPromptSize(queryID, system, user)

		answer, err := a.generator.Complete(ctx, system, user)
		if err != nil {
			return nil, fmt.Errorf("generate: %w", err)
		}
		resp.Answer = answer
		resp.Citations = assembled.Citations
		resp.RetrievedChunks = assembled.Retrieved
	} else {
		a.logger.Info("weak_match",
			slog.String("query_id", queryID.String()),
			slog.String("confidence", string(outcome.Confidence)),
			slog.Int("reranked", len(outcome.Reranked)))
	}
	resp.LatencyMS = time.Since(start).Milliseconds()

	a.saveLog(ctx, req, resp, outcome.Reranked)
	return resp, nil
}

// saveLog records the query. Failures are logged and never reach the caller.
func (a *Agent) saveLog(ctx context.Context, req Request, resp *types.QueryResponse, ranked []types.RankedResult) {
	if a.queries == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	err := a.queries.SaveQueryLog(ctx, types.QueryLog{
		ID:           resp.QueryID,
		UserID:       req.UserID,
		CollectionID: req.CollectionID,
		Mode:         req.Mode,
		Question:     req.Question,
		Answer:       resp.Answer,
		Citations:    resp.Citations,
		Confidence:   resp.Confidence,
		LatencyMS:    resp.LatencyMS,
		Chunks:       ranked,
	})
	if err != nil {
		a.logger.Warn("query_log_failed",
			slog.String("query_id", resp.QueryID.String()),
			slog.String("error", err.Error()))
	}
}

func (a *Agent) logPromptSize(queryID uuid.UUID, system, user string) {
	if a.tokenizer == nil {
		return
	}
	a.logger.Debug("prompt_ready",
		slog.String("query_id", queryID.String()),
		slog.Int("system_tokens", a.tokenizer.CountTokens(system)),
		slog.Int("user_tokens", a.tokenizer.CountTokens(user)))
}
