package embedcache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"knowledge/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) LookupEmbedding(ctx context.Context, contentHash string) ([]float32, bool, error) {
	args := m.Called(ctx, contentHash)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).([]float32), args.Bool(1), args.Error(2)
}

func (m *MockStore) PutEmbedding(ctx context.Context, e types.CachedEmbedding) error {
	args := m.Called(ctx, e)
	return args.Error(0)
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

func (m *MockEmbedder) ModelName() string { return "text-embedding-3-small" }

type runeCounter struct{}

func (runeCounter) CountTokens(text string) int { return len([]rune(text)) }

// memStore is a content-addressed map that keeps the first write.
type memStore struct {
	mu   sync.Mutex
	rows map[string]types.CachedEmbedding
}

func (s *memStore) LookupEmbedding(ctx context.Context, hash string) ([]float32, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[hash]
	return row.Embedding, ok, nil
}

func (s *memStore) PutEmbedding(ctx context.Context, e types.CachedEmbedding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[e.ContentHash]; !ok {
		s.rows[e.ContentHash] = e
	}
	return nil
}

var testLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))

func TestGateway_Disabled(t *testing.T) {
	store := new(MockStore)
	embedder := new(MockEmbedder)
	g, err := New(embedder, runeCounter{}, store, Options{Enabled: false, Logger: testLogger})
	require.NoError(t, err)

	res, err := g.GetOrCreate(context.Background(), "text", "hash")

	require.NoError(t, err)
	assert.Nil(t, res.Vector)
	assert.False(t, g.Enabled())
	store.AssertNotCalled(t, "LookupEmbedding", mock.Anything, mock.Anything)
	embedder.AssertNotCalled(t, "Embed", mock.Anything, mock.Anything)
}

func TestGateway_StoreHit(t *testing.T) {
	ctx := context.Background()
	store := new(MockStore)
	embedder := new(MockEmbedder)
	stored := []float32{0.1, 0.2, 0.3}
	store.On("LookupEmbedding", mock.Anything, "h1").Return(stored, true, nil).Once()

	g, err := New(embedder, runeCounter{}, store, Options{Enabled: true, Logger: testLogger})
	require.NoError(t, err)

	res, err := g.GetOrCreate(ctx, "content", "h1")

	require.NoError(t, err)
	assert.True(t, res.Hit)
	assert.Equal(t, stored, res.Vector)
	embedder.AssertNotCalled(t, "Embed", mock.Anything, mock.Anything)
	store.AssertExpectations(t)
}

func TestGateway_MissEmbedsAndStores(t *testing.T) {
	ctx := context.Background()
	store := new(MockStore)
	embedder := new(MockEmbedder)
	vec := []float32{1, 0}
	store.On("LookupEmbedding", mock.Anything, "h2").Return(nil, false, nil)
	embedder.On("Embed", mock.Anything, "hello").Return(vec, nil).Once()
	store.On("PutEmbedding", mock.Anything, mock.MatchedBy(func(e types.CachedEmbedding) bool {
		return e.ContentHash == "h2" && e.Tokens == 5 && e.ModelVersion == "text-embedding-3-small" && len(e.Embedding) == 2
	})).Return(nil).Once()

	g, err := New(embedder, runeCounter{}, store, Options{Enabled: true, Logger: testLogger})
	require.NoError(t, err)

	res, err := g.GetOrCreate(ctx, "hello", "h2")

	require.NoError(t, err)
	assert.False(t, res.Hit)
	assert.Equal(t, vec, res.Vector)
	assert.NoError(t, res.StoreErr)
	store.AssertExpectations(t)
	embedder.AssertExpectations(t)
}

func TestGateway_Idempotent(t *testing.T) {
	ctx := context.Background()
	embedder := new(MockEmbedder)
	embedder.On("Embed", mock.Anything, "same text").Return([]float32{0.5, 0.5}, nil).Once()
	store := &memStore{rows: map[string]types.CachedEmbedding{}}

	for _, size := range []int{0, 16} {
		t.Run("memory size", func(t *testing.T) {
			g, err := New(embedder, runeCounter{}, store, Options{Enabled: true, MemorySize: size, Logger: testLogger})
			require.NoError(t, err)

			first, err := g.GetOrCreate(ctx, "same text", "h3")
			require.NoError(t, err)
			second, err := g.GetOrCreate(ctx, "same text", "h3")
			require.NoError(t, err)

			assert.Equal(t, first.Vector, second.Vector)
			assert.True(t, second.Hit)
		})
	}
	embedder.AssertNumberOfCalls(t, "Embed", 1)
}

func TestGateway_StoreFailureKeepsVector(t *testing.T) {
	ctx := context.Background()
	store := new(MockStore)
	embedder := new(MockEmbedder)
	storeErr := errors.New("connection reset")
	store.On("LookupEmbedding", mock.Anything, "h4").Return(nil, false, nil)
	embedder.On("Embed", mock.Anything, "text").Return([]float32{1}, nil)
	store.On("PutEmbedding", mock.Anything, mock.Anything).Return(storeErr)

	g, err := New(embedder, runeCounter{}, store, Options{Enabled: true, Logger: testLogger})
	require.NoError(t, err)

	res, err := g.GetOrCreate(ctx, "text", "h4")

	require.NoError(t, err)
	assert.Equal(t, []float32{1}, res.Vector)
	assert.ErrorIs(t, res.StoreErr, storeErr)
}

func TestGateway_CollaboratorFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("lookup failure is fatal", func(t *testing.T) {
		store := new(MockStore)
		store.On("LookupEmbedding", mock.Anything, "h5").Return(nil, false, errors.New("db down"))
		g, err := New(new(MockEmbedder), runeCounter{}, store, Options{Enabled: true, Logger: testLogger})
		require.NoError(t, err)

		_, err = g.GetOrCreate(ctx, "text", "h5")
		require.Error(t, err)
	})

	t.Run("embedding failure is fatal and nothing is stored", func(t *testing.T) {
		store := new(MockStore)
		embedder := new(MockEmbedder)
		store.On("LookupEmbedding", mock.Anything, "h6").Return(nil, false, nil)
		embedder.On("Embed", mock.Anything, "text").Return(nil, errors.New("quota exceeded"))
		g, err := New(embedder, runeCounter{}, store, Options{Enabled: true, Logger: testLogger})
		require.NoError(t, err)

		_, err = g.GetOrCreate(ctx, "text", "h6")
		require.Error(t, err)
		store.AssertNotCalled(t, "PutEmbedding", mock.Anything, mock.Anything)
	})
}

// gatedEmbedder blocks every Embed until release is closed or ctx ends.
type gatedEmbedder struct {
	started chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func newGatedEmbedder() *gatedEmbedder {
	return &gatedEmbedder{started: make(chan struct{}, 1), release: make(chan struct{})}
}

func (e *gatedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.calls.Add(1)
	select {
	case e.started <- struct{}{}:
	default:
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-e.release:
		return []float32{0.6, 0.8}, nil
	}
}

func (e *gatedEmbedder) ModelName() string { return "text-embedding-3-small" }

func TestGateway_CancelledCallerDoesNotFailOthers(t *testing.T) {
	embedder := newGatedEmbedder()
	store := &memStore{rows: map[string]types.CachedEmbedding{}}
	g, err := New(embedder, runeCounter{}, store, Options{Enabled: true, MemorySize: 16, Logger: testLogger})
	require.NoError(t, err)

	ctxA, cancelA := context.WithCancel(context.Background())
	defer cancelA()
	errA := make(chan error, 1)
	go func() {
		_, err := g.GetOrCreate(ctxA, "shared text", "h7")
		errA <- err
	}()
	<-embedder.started

	type outcome struct {
		res Result
		err error
	}
	doneB := make(chan outcome, 1)
	go func() {
		res, err := g.GetOrCreate(context.Background(), "shared text", "h7")
		doneB <- outcome{res, err}
	}()

	cancelA()
	require.ErrorIs(t, <-errA, context.Canceled)

	close(embedder.release)
	b := <-doneB
	require.NoError(t, b.err)
	assert.Equal(t, []float32{0.6, 0.8}, b.res.Vector)
	assert.EqualValues(t, 1, embedder.calls.Load())

	_, stored, err := store.LookupEmbedding(context.Background(), "h7")
	require.NoError(t, err)
	assert.True(t, stored)
}

func TestGateway_ReturnsPrivateCopy(t *testing.T) {
	ctx := context.Background()
	for _, size := range []int{0, 16} {
		t.Run("memory size", func(t *testing.T) {
			embedder := new(MockEmbedder)
			embedder.On("Embed", mock.Anything, "text").Return([]float32{0.1, 0.2}, nil).Once()
			store := &memStore{rows: map[string]types.CachedEmbedding{}}
			g, err := New(embedder, runeCounter{}, store, Options{Enabled: true, MemorySize: size, Logger: testLogger})
			require.NoError(t, err)

			first, err := g.GetOrCreate(ctx, "text", "h8")
			require.NoError(t, err)
			first.Vector[0] = 99

			second, err := g.GetOrCreate(ctx, "text", "h8")
			require.NoError(t, err)
			assert.True(t, second.Hit)
			assert.Equal(t, []float32{0.1, 0.2}, second.Vector)
		})
	}
}

func TestNew_RequiresCollaboratorsWhenEnabled(t *testing.T) {
	_, err := New(nil, nil, nil, Options{Enabled: true})
	require.Error(t, err)

	_, err = New(nil, nil, nil, Options{Enabled: false})
	require.NoError(t, err)
}
