package retrieval

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand/v2"
	"sort"
	"testing"

	"knowledge/types"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockSearchStore struct {
	mock.Mock
}

func (m *MockSearchStore) SearchVector(ctx context.Context, vec []float32, collectionID uuid.UUID, limit int, minScore float64) ([]types.Candidate, error) {
	args := m.Called(ctx, vec, collectionID, limit, minScore)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.Candidate), args.Error(1)
}

func (m *MockSearchStore) SearchLexical(ctx context.Context, query string, collectionID uuid.UUID, limit int) ([]types.Candidate, error) {
	args := m.Called(ctx, query, collectionID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.Candidate), args.Error(1)
}

type MockEmbedder struct {
	mock.Mock
}

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

func (m *MockEmbedder) ModelName() string { return "mock" }

var testLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))

func candidates(scores ...float64) []types.Candidate {
	out := make([]types.Candidate, len(scores))
	for i, s := range scores {
		out[i] = types.Candidate{ChunkID: uuid.New(), DocumentTitle: "doc", Score: s}
	}
	return out
}

func ranked(scores ...float64) []types.RankedResult {
	return Rerank(candidates(scores...), len(scores))
}

func TestRerank(t *testing.T) {
	t.Run("orders by score and truncates", func(t *testing.T) {
		in := candidates(0.2, 0.9, 0.5, 0.7, 0.1, 0.8, 0.3, 0.6)

		out := Rerank(in, DefaultTopK)

		require.Len(t, out, 6)
		want := []float64{0.9, 0.8, 0.7, 0.6, 0.5, 0.3}
		for i, r := range out {
			assert.Equal(t, want[i], r.Score)
			assert.Equal(t, i+1, r.Rank)
		}
	})

	t.Run("ties keep input order", func(t *testing.T) {
		in := candidates(0.5, 0.7, 0.5, 0.5)

		out := Rerank(in, DefaultTopK)

		require.Len(t, out, 4)
		assert.Equal(t, in[1].ChunkID, out[0].ChunkID)
		assert.Equal(t, in[0].ChunkID, out[1].ChunkID)
		assert.Equal(t, in[2].ChunkID, out[2].ChunkID)
		assert.Equal(t, in[3].ChunkID, out[3].ChunkID)
	})

	t.Run("does not modify input", func(t *testing.T) {
		in := candidates(0.1, 0.9)
		first := in[0].ChunkID
		Rerank(in, DefaultTopK)
		assert.Equal(t, first, in[0].ChunkID)
	})

	t.Run("empty", func(t *testing.T) {
		assert.Empty(t, Rerank(nil, DefaultTopK))
	})

	t.Run("output is a prefix of the sorted input", func(t *testing.T) {
		r := rand.New(rand.NewPCG(3, 5))
		for run := 0; run < 100; run++ {
			scores := make([]float64, r.IntN(40))
			for i := range scores {
				scores[i] = float64(r.IntN(10)) / 10
			}
			in := candidates(scores...)
			expected := make([]types.Candidate, len(in))
			copy(expected, in)
			sort.SliceStable(expected, func(i, j int) bool { return expected[i].Score > expected[j].Score })

			out := Rerank(in, DefaultTopK)

			require.LessOrEqual(t, len(out), DefaultTopK)
			for i, r := range out {
				assert.Equal(t, expected[i].ChunkID, r.ChunkID)
			}
		}
	})
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name     string
		strategy types.Strategy
		scores   []float64
		want     types.Confidence
	}{
		{"semantic high", types.StrategySemantic, []float64{0.9, 0.8, 0.7}, types.ConfidenceHigh},
		{"semantic medium", types.StrategySemantic, []float64{0.6, 0.55, 0.5}, types.ConfidenceMedium},
		{"semantic low", types.StrategySemantic, []float64{0.3, 0.2}, types.ConfidenceLow},
		{"semantic boundary high", types.StrategySemantic, []float64{0.75}, types.ConfidenceHigh},
		{"semantic boundary medium", types.StrategySemantic, []float64{0.5}, types.ConfidenceMedium},
		{"lexical high", types.StrategyLexical, []float64{0.2, 0.05}, types.ConfidenceHigh},
		{"lexical medium", types.StrategyLexical, []float64{0.02, 0.03}, types.ConfidenceMedium},
		{"lexical low", types.StrategyLexical, []float64{0.005}, types.ConfidenceLow},
		{"empty semantic", types.StrategySemantic, nil, types.ConfidenceLow},
		{"empty lexical", types.StrategyLexical, nil, types.ConfidenceLow},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(ranked(tc.scores...), tc.strategy))
		})
	}
}

func TestGate(t *testing.T) {
	semantic := NewGate(types.StrategySemantic, DefaultWeakMatchFloor)
	lexical := NewGate(types.StrategyLexical, DefaultWeakMatchFloor)

	t.Run("empty is never groundable", func(t *testing.T) {
		assert.False(t, semantic.Groundable(nil, types.ConfidenceHigh))
		assert.False(t, lexical.Groundable(nil, types.ConfidenceHigh))
	})

	t.Run("low confidence is never groundable", func(t *testing.T) {
		assert.False(t, semantic.Groundable(ranked(0.99), types.ConfidenceLow))
		assert.False(t, lexical.Groundable(ranked(0.99), types.ConfidenceLow))
	})

	t.Run("semantic max below floor", func(t *testing.T) {
		assert.False(t, semantic.Groundable(ranked(0.49, 0.45), types.ConfidenceMedium))
		assert.True(t, semantic.Groundable(ranked(0.50, 0.45), types.ConfidenceMedium))
	})

	t.Run("lexical skips the floor", func(t *testing.T) {
		assert.True(t, lexical.Groundable(ranked(0.03, 0.02), types.ConfidenceMedium))
	})
}

func TestPipeline_Semantic(t *testing.T) {
	ctx := context.Background()
	collection := uuid.New()
	store := new(MockSearchStore)
	embedder := new(MockEmbedder)
	qvec := []float32{0.1, 0.2}
	embedder.On("Embed", ctx, "Vad är maxeffekten?").Return(qvec, nil)
	store.On("SearchVector", ctx, qvec, collection, 30, 0.30).Return(candidates(0.9, 0.8, 0.7, 0.6, 0.85, 0.75, 0.4), nil)

	r, err := New(types.StrategySemantic, embedder, store, 0.30)
	require.NoError(t, err)
	p := NewPipeline(r, PipelineOptions{PoolSize: 30, TopK: 6, WeakMatchFloor: 0.50, Logger: testLogger})

	out, err := p.Run(ctx, "Vad är maxeffekten?", collection)

	require.NoError(t, err)
	require.Len(t, out.Reranked, 6)
	assert.Equal(t, 0.9, out.Reranked[0].Score)
	assert.Equal(t, types.ConfidenceHigh, out.Confidence)
	assert.True(t, out.Groundable)
	store.AssertExpectations(t)
}

func TestPipeline_WeakSemanticMatch(t *testing.T) {
	ctx := context.Background()
	collection := uuid.New()
	store := new(MockSearchStore)
	embedder := new(MockEmbedder)
	embedder.On("Embed", ctx, mock.Anything).Return([]float32{1}, nil)
	store.On("SearchVector", ctx, mock.Anything, collection, 30, 0.30).Return(candidates(0.3, 0.2), nil)

	p := NewPipeline(NewSemanticRetriever(embedder, store, 0.30), PipelineOptions{WeakMatchFloor: 0.50, Logger: testLogger})
	out, err := p.Run(ctx, "q", collection)

	require.NoError(t, err)
	assert.Equal(t, types.ConfidenceLow, out.Confidence)
	assert.False(t, out.Groundable)
}

func TestPipeline_EmptyRetrieval(t *testing.T) {
	ctx := context.Background()
	collection := uuid.New()
	store := new(MockSearchStore)
	store.On("SearchLexical", ctx, "q", collection, 30).Return([]types.Candidate{}, nil)

	p := NewPipeline(NewLexicalRetriever(store), PipelineOptions{Logger: testLogger})
	out, err := p.Run(ctx, "q", collection)

	require.NoError(t, err)
	assert.Empty(t, out.Reranked)
	assert.Equal(t, types.ConfidenceLow, out.Confidence)
	assert.False(t, out.Groundable)
	assert.Equal(t, types.StrategyLexical, p.Strategy())
}

func TestPipeline_LexicalNoEmbedding(t *testing.T) {
	ctx := context.Background()
	collection := uuid.New()
	store := new(MockSearchStore)
	store.On("SearchLexical", ctx, "batterilager", collection, 30).Return(candidates(0.04, 0.02), nil)

	r, err := New(types.StrategyLexical, nil, store, 0.30)
	require.NoError(t, err)
	out, err := NewPipeline(r, PipelineOptions{WeakMatchFloor: 0.50, Logger: testLogger}).Run(ctx, "batterilager", collection)

	require.NoError(t, err)
	assert.Equal(t, types.ConfidenceMedium, out.Confidence)
	assert.True(t, out.Groundable)
	store.AssertNotCalled(t, "SearchVector", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPipeline_CollaboratorFailure(t *testing.T) {
	ctx := context.Background()
	embedder := new(MockEmbedder)
	embedder.On("Embed", ctx, "q").Return(nil, errors.New("timeout"))

	p := NewPipeline(NewSemanticRetriever(embedder, new(MockSearchStore), 0.3), PipelineOptions{Logger: testLogger})
	_, err := p.Run(ctx, "q", uuid.New())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "embed question")
}

func TestNew(t *testing.T) {
	_, err := New(types.StrategySemantic, nil, new(MockSearchStore), 0.3)
	require.Error(t, err)

	_, err = New("hybrid", new(MockEmbedder), new(MockSearchStore), 0.3)
	require.Error(t, err)
}
