package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"

	"knowledge/loader/service"
	"knowledge/store"
	"knowledge/types"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type DocumentStore interface {
	GetDocument(ctx context.Context, id uuid.UUID) (*types.Document, error)
	ListDocuments(ctx context.Context, filter types.DocumentFilter) ([]types.Document, error)
	SetDocumentStatus(ctx context.Context, id uuid.UUID, status types.DocumentStatus) error
}

type Uploader interface {
	Upload(ctx context.Context, doc *types.Document, collectionIDs []uuid.UUID, data []byte, filename string) (service.IngestResult, error)
}

type DocumentHandler struct {
	store    DocumentStore
	uploader Uploader
	logger   *slog.Logger
}

func NewDocumentHandler(s DocumentStore, u Uploader) *DocumentHandler {
	return &DocumentHandler{
		store:    s,
		uploader: u,
		logger:   slog.Default(),
	}
}

// HandleUpload registers a multipart upload as a draft document and
// ingests it before responding.
func (h *DocumentHandler) HandleUpload(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return NewError(fiber.StatusBadRequest, "file is required")
	}

	var params types.DocumentParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	params.CollectionIDs = splitIDs(c.FormValue("collection_ids"))
	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}

	file, err := fileHeader.Open()
	if err != nil {
		return err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return err
	}

	doc := &types.Document{
		Title:         params.Title,
		Source:        params.Source,
		Category:      params.Category,
		ProductFamily: params.ProductFamily,
		Version:       params.Version,
		Language:      params.Language,
	}
	if doc.Version == "" {
		doc.Version = "v1.0"
	}
	if doc.Language == "" {
		doc.Language = "sv"
	}
	if params.CanonicalID != "" {
		doc.CanonicalID = uuid.MustParse(params.CanonicalID)
	}
	collections := make([]uuid.UUID, len(params.CollectionIDs))
	for i, id := range params.CollectionIDs {
		collections[i] = uuid.MustParse(id)
	}

	res, err := h.uploader.Upload(c.UserContext(), doc, collections, data, fileHeader.Filename)
	switch {
	case err == nil:
	case errors.Is(err, store.ErrNotFound):
		return NewError(fiber.StatusNotFound, "canonical document or collection not found")
	case errors.Is(err, service.ErrUnsupportedFileType):
		return NewError(fiber.StatusUnsupportedMediaType, "unsupported file type")
	default:
		h.logger.Error("upload_failed",
			slog.String("filename", fileHeader.Filename),
			slog.Any("error", err))
		return ErrInternal("ingestion failed")
	}

	return c.Status(fiber.StatusCreated).JSON(types.IngestResponse{
		Document: *doc,
		Chunks:   res.Chunks,
		Warnings: res.Warnings,
	})
}

func splitIDs(raw string) []string {
	var ids []string
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func (h *DocumentHandler) HandleList(c *fiber.Ctx) error {
	filter := types.DocumentFilter{
		Category: c.Query("category"),
		Status:   types.DocumentStatus(c.Query("status_filter")),
	}
	if raw := c.Query("collection_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return ErrInvalidID()
		}
		filter.CollectionID = uuid.NullUUID{UUID: id, Valid: true}
	}

	docs, err := h.store.ListDocuments(c.UserContext(), filter)
	if err != nil {
		return err
	}
	return c.JSON(types.DocumentListResponse{Documents: docs, Total: len(docs)})
}

func (h *DocumentHandler) HandleGet(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return ErrInvalidID()
	}
	doc, err := h.store.GetDocument(c.UserContext(), id)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound(id, "document")
	}
	if err != nil {
		return err
	}
	return c.JSON(doc)
}

func (h *DocumentHandler) HandleActivate(c *fiber.Ctx) error {
	return h.setStatus(c, types.StatusActive)
}

func (h *DocumentHandler) HandleArchive(c *fiber.Ctx) error {
	return h.setStatus(c, types.StatusArchived)
}

func (h *DocumentHandler) setStatus(c *fiber.Ctx, status types.DocumentStatus) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return ErrInvalidID()
	}
	err = h.store.SetDocumentStatus(c.UserContext(), id, status)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound(id, "document")
	}
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"id": id, "status": status})
}
