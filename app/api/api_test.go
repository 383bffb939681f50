package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"knowledge/app/agent"
	"knowledge/config"
	"knowledge/loader/service"
	"knowledge/store"
	"knowledge/types"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockAsker struct {
	mock.Mock
}

func (m *MockAsker) Ask(ctx context.Context, req agent.Request) (*types.QueryResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*types.QueryResponse)
	return resp, args.Error(1)
}

type MockStore struct {
	mock.Mock
}

func (m *MockStore) GetDocument(ctx context.Context, id uuid.UUID) (*types.Document, error) {
	args := m.Called(ctx, id)
	doc, _ := args.Get(0).(*types.Document)
	return doc, args.Error(1)
}

func (m *MockStore) ListDocuments(ctx context.Context, filter types.DocumentFilter) ([]types.Document, error) {
	args := m.Called(ctx, filter)
	docs, _ := args.Get(0).([]types.Document)
	return docs, args.Error(1)
}

func (m *MockStore) SetDocumentStatus(ctx context.Context, id uuid.UUID, status types.DocumentStatus) error {
	return m.Called(ctx, id, status).Error(0)
}

func (m *MockStore) CreateCollection(ctx context.Context, c *types.Collection) error {
	return m.Called(ctx, c).Error(0)
}

func (m *MockStore) GetCollection(ctx context.Context, id uuid.UUID) (*types.Collection, error) {
	args := m.Called(ctx, id)
	c, _ := args.Get(0).(*types.Collection)
	return c, args.Error(1)
}

func (m *MockStore) ListCollections(ctx context.Context) ([]types.Collection, error) {
	args := m.Called(ctx)
	cols, _ := args.Get(0).([]types.Collection)
	return cols, args.Error(1)
}

func (m *MockStore) GetQueryOwner(ctx context.Context, queryID uuid.UUID) (string, error) {
	args := m.Called(ctx, queryID)
	return args.String(0), args.Error(1)
}

func (m *MockStore) SaveFeedback(ctx context.Context, f *types.Feedback) error {
	return m.Called(ctx, f).Error(0)
}

func (m *MockStore) ListFeedback(ctx context.Context, userID string) ([]types.Feedback, error) {
	args := m.Called(ctx, userID)
	list, _ := args.Get(0).([]types.Feedback)
	return list, args.Error(1)
}

type MockUploader struct {
	mock.Mock
}

func (m *MockUploader) Upload(ctx context.Context, doc *types.Document, collectionIDs []uuid.UUID, data []byte, filename string) (service.IngestResult, error) {
	args := m.Called(ctx, doc, collectionIDs, data, filename)
	return args.Get(0).(service.IngestResult), args.Error(1)
}

func newApp(user string) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	app.Use(func(c *fiber.Ctx) error {
		if user != "" {
			c.Locals(UserIDKey, user)
		}
		return c.Next()
	})
	return app
}

func jsonRequest(method, target string, body any) *http.Request {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(method, target, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(body, &out), string(body))
	return out
}

func TestHandleQuery(t *testing.T) {
	collection := uuid.New()

	t.Run("answers", func(t *testing.T) {
		asker := new(MockAsker)
		asker.On("Ask", mock.Anything, agent.Request{
			UserID:       "user-1",
			CollectionID: collection,
			Mode:         "technical",
			Question:     "Vad är maxtrycket?",
		}).Return(&types.QueryResponse{Answer: "200 bar", Confidence: types.ConfidenceHigh}, nil)

		app := newApp("user-1")
		app.Post("/query", NewQueryHandler(asker).HandleQuery)
		resp, err := app.Test(jsonRequest(http.MethodPost, "/query", map[string]any{
			"collection_id": collection.String(),
			"mode":          "technical",
			"question":      "Vad är maxtrycket?",
		}))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		out := decode[types.QueryResponse](t, resp)
		assert.Equal(t, "200 bar", out.Answer)
		asker.AssertExpectations(t)
	})

	t.Run("validation", func(t *testing.T) {
		app := newApp("")
		app.Post("/query", NewQueryHandler(new(MockAsker)).HandleQuery)
		resp, err := app.Test(jsonRequest(http.MethodPost, "/query", map[string]any{
			"collection_id": "nope",
			"mode":          "poetry",
			"question":      "x",
		}))
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

		out := decode[ValidationError](t, resp)
		assert.Contains(t, out.Errors, "CollectionID")
		assert.Contains(t, out.Errors, "Mode")
		assert.Contains(t, out.Errors, "Question")
	})

	t.Run("malformed json", func(t *testing.T) {
		app := newApp("")
		app.Post("/query", NewQueryHandler(new(MockAsker)).HandleQuery)
		req := httptest.NewRequest(http.MethodPost, "/query", bytes.NewReader([]byte("{")))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("collaborator failure is a generic 500", func(t *testing.T) {
		asker := new(MockAsker)
		asker.On("Ask", mock.Anything, mock.Anything).Return(nil, errors.New("dial tcp: secret-host"))

		app := newApp("")
		app.Post("/query", NewQueryHandler(asker).HandleQuery)
		resp, err := app.Test(jsonRequest(http.MethodPost, "/query", map[string]any{
			"collection_id": collection.String(),
			"mode":          "sales",
			"question":      "Pris?",
		}))
		require.NoError(t, err)
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

		out := decode[Error](t, resp)
		assert.Equal(t, "query failed", out.Message)
	})
}

func multipartUpload(t *testing.T, fields map[string]string, filename, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if filename != "" {
		part, err := w.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/documents", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestHandleUpload(t *testing.T) {
	colA, colB := uuid.New(), uuid.New()

	t.Run("creates and ingests", func(t *testing.T) {
		uploader := new(MockUploader)
		uploader.On("Upload", mock.Anything, mock.MatchedBy(func(d *types.Document) bool {
			return d.Title == "Pumpmanual" && d.Version == "v1.0" && d.Language == "sv" && d.Category == "manual"
		}), []uuid.UUID{colA, colB}, []byte("Text."), "pump.txt").
			Run(func(args mock.Arguments) {
				d := args.Get(1).(*types.Document)
				d.ID = uuid.New()
				d.Status = types.StatusDraft
			}).
			Return(service.IngestResult{Chunks: 1}, nil)

		app := newApp("")
		app.Post("/documents", NewDocumentHandler(new(MockStore), uploader).HandleUpload)
		resp, err := app.Test(multipartUpload(t, map[string]string{
			"title":          "Pumpmanual",
			"category":       "manual",
			"collection_ids": colA.String() + ", " + colB.String() + ",",
		}, "pump.txt", "Text."))
		require.NoError(t, err)
		assert.Equal(t, http.StatusCreated, resp.StatusCode)

		out := decode[types.IngestResponse](t, resp)
		assert.Equal(t, 1, out.Chunks)
		assert.Equal(t, types.StatusDraft, out.Document.Status)
		uploader.AssertExpectations(t)
	})

	t.Run("missing file", func(t *testing.T) {
		app := newApp("")
		app.Post("/documents", NewDocumentHandler(new(MockStore), new(MockUploader)).HandleUpload)
		resp, err := app.Test(multipartUpload(t, map[string]string{"title": "x"}, "", ""))
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("bad collection id", func(t *testing.T) {
		app := newApp("")
		app.Post("/documents", NewDocumentHandler(new(MockStore), new(MockUploader)).HandleUpload)
		resp, err := app.Test(multipartUpload(t, map[string]string{
			"title":          "x",
			"collection_ids": "not-a-uuid",
		}, "a.txt", "x"))
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	})

	t.Run("unsupported type", func(t *testing.T) {
		uploader := new(MockUploader)
		uploader.On("Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(service.IngestResult{}, service.ErrUnsupportedFileType)

		app := newApp("")
		app.Post("/documents", NewDocumentHandler(new(MockStore), uploader).HandleUpload)
		resp, err := app.Test(multipartUpload(t, map[string]string{"title": "x"}, "a.png", "x"))
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
	})

	t.Run("unknown canonical family", func(t *testing.T) {
		uploader := new(MockUploader)
		uploader.On("Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(service.IngestResult{}, store.ErrNotFound)

		app := newApp("")
		app.Post("/documents", NewDocumentHandler(new(MockStore), uploader).HandleUpload)
		resp, err := app.Test(multipartUpload(t, map[string]string{
			"title":        "x",
			"canonical_id": uuid.NewString(),
		}, "a.txt", "x"))
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestDocumentReads(t *testing.T) {
	id := uuid.New()
	col := uuid.New()

	st := new(MockStore)
	st.On("GetDocument", mock.Anything, id).Return(&types.Document{ID: id, Title: "Manual"}, nil)
	st.On("GetDocument", mock.Anything, mock.Anything).Return(nil, store.ErrNotFound)
	st.On("ListDocuments", mock.Anything, types.DocumentFilter{
		Category:     "manual",
		Status:       types.StatusActive,
		CollectionID: uuid.NullUUID{UUID: col, Valid: true},
	}).Return([]types.Document{{ID: id}}, nil)
	st.On("SetDocumentStatus", mock.Anything, id, types.StatusActive).Return(nil)
	st.On("SetDocumentStatus", mock.Anything, mock.Anything, types.StatusArchived).Return(store.ErrNotFound)

	h := NewDocumentHandler(st, new(MockUploader))
	app := newApp("")
	app.Get("/documents", h.HandleList)
	app.Get("/documents/:id", h.HandleGet)
	app.Post("/documents/:id/activate", h.HandleActivate)
	app.Post("/documents/:id/archive", h.HandleArchive)

	cases := []struct {
		name   string
		method string
		target string
		status int
	}{
		{"get", http.MethodGet, "/documents/" + id.String(), http.StatusOK},
		{"get missing", http.MethodGet, "/documents/" + uuid.NewString(), http.StatusNotFound},
		{"get bad id", http.MethodGet, "/documents/abc", http.StatusBadRequest},
		{"list filtered", http.MethodGet, "/documents?category=manual&status_filter=active&collection_id=" + col.String(), http.StatusOK},
		{"list bad collection", http.MethodGet, "/documents?collection_id=x", http.StatusBadRequest},
		{"activate", http.MethodPost, "/documents/" + id.String() + "/activate", http.StatusOK},
		{"archive missing", http.MethodPost, "/documents/" + uuid.NewString() + "/archive", http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest(tc.method, tc.target, nil))
			require.NoError(t, err)
			assert.Equal(t, tc.status, resp.StatusCode)
		})
	}
}

func TestCollections(t *testing.T) {
	id := uuid.New()
	st := new(MockStore)
	st.On("CreateCollection", mock.Anything, mock.MatchedBy(func(c *types.Collection) bool {
		return c.Name == "Produkter" && c.IsDefault
	})).Return(nil)
	st.On("ListCollections", mock.Anything).Return([]types.Collection{{ID: id, Name: "Produkter"}}, nil)
	st.On("GetCollection", mock.Anything, id).Return(&types.Collection{ID: id}, nil)
	st.On("GetCollection", mock.Anything, mock.Anything).Return(nil, store.ErrNotFound)
	st.On("ListDocuments", mock.Anything, types.DocumentFilter{CollectionID: uuid.NullUUID{UUID: id, Valid: true}}).
		Return([]types.Document{{ID: uuid.New()}, {ID: uuid.New()}}, nil)

	h := NewCollectionHandler(st)
	app := newApp("")
	app.Post("/collections", h.HandleCreate)
	app.Get("/collections", h.HandleList)
	app.Get("/collections/:id", h.HandleGet)
	app.Get("/collections/:id/documents", h.HandleDocuments)

	resp, err := app.Test(jsonRequest(http.MethodPost, "/collections", map[string]any{"name": "Produkter", "is_default": true}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, err = app.Test(jsonRequest(http.MethodPost, "/collections", map[string]any{"description": "no name"}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/collections", nil))
	require.NoError(t, err)
	assert.Len(t, decode[[]types.Collection](t, resp), 1)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/collections/"+uuid.NewString(), nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/collections/"+id.String()+"/documents", nil))
	require.NoError(t, err)
	assert.Equal(t, 2, decode[types.DocumentListResponse](t, resp).Total)
}

func TestFeedback(t *testing.T) {
	own, foreign, anonymous, missing := uuid.New(), uuid.New(), uuid.New(), uuid.New()

	st := new(MockStore)
	st.On("GetQueryOwner", mock.Anything, own).Return("alice", nil)
	st.On("GetQueryOwner", mock.Anything, foreign).Return("bob", nil)
	st.On("GetQueryOwner", mock.Anything, anonymous).Return("", nil)
	st.On("GetQueryOwner", mock.Anything, missing).Return("", store.ErrNotFound)
	st.On("SaveFeedback", mock.Anything, mock.AnythingOfType("*types.Feedback")).Return(nil)
	st.On("ListFeedback", mock.Anything, "alice").Return([]types.Feedback{{Rating: 5}}, nil)

	h := NewFeedbackHandler(st)
	app := newApp("alice")
	app.Post("/feedback", h.HandleSubmit)
	app.Get("/feedback", h.HandleList)

	submit := func(queryID uuid.UUID, rating int) int {
		resp, err := app.Test(jsonRequest(http.MethodPost, "/feedback", map[string]any{
			"query_id":   queryID.String(),
			"rating":     rating,
			"issue_type": "unclear",
		}))
		require.NoError(t, err)
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusCreated, submit(own, 4))
	assert.Equal(t, http.StatusCreated, submit(anonymous, 4))
	assert.Equal(t, http.StatusForbidden, submit(foreign, 4))
	assert.Equal(t, http.StatusForbidden, submit(missing, 4))
	assert.Equal(t, http.StatusUnprocessableEntity, submit(own, 6))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/feedback", nil))
	require.NoError(t, err)
	list := decode[[]types.Feedback](t, resp)
	require.Len(t, list, 1)
	assert.Equal(t, 5, list[0].Rating)
}

func TestConfigAndCheck(t *testing.T) {
	cfg := &config.Config{
		Strategy:       types.StrategyLexical,
		EmbeddingModel: "text-embedding-3-small",
		Chunk:          config.ChunkConfig{TargetTokens: 1000, OverlapTokens: 125, MaxTokens: 1200},
		Retrieval:      config.RetrievalConfig{PoolSize: 30, TopK: 6, ScoreThreshold: 0.3, WeakMatchThreshold: 0.5},
	}
	app := newApp("")
	app.Get("/config", NewConfigHandler(cfg).HandleGetConfig)
	app.Get("/healthy", NewCheckHandler(nil).HandleHealthy)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/config", nil))
	require.NoError(t, err)
	out := decode[types.ConfigResponse](t, resp)
	assert.Equal(t, types.StrategyLexical, out.Strategy)
	assert.Empty(t, out.EmbeddingModel)
	assert.Equal(t, 6, out.TopK)
	assert.Equal(t, 1200, out.ChunkMaxTokens)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/healthy", nil))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"result": "ok"}, decode[map[string]string](t, resp))
}

func TestErrorHandler(t *testing.T) {
	app := newApp("")
	app.Get("/boom", func(c *fiber.Ctx) error { return errors.New("db password leaked") })
	app.Get("/fiber", func(c *fiber.Ctx) error { return fiber.ErrTeapot })

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/boom", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "internal error", decode[Error](t, resp).Message)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/fiber", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusTeapot, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/missing", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
