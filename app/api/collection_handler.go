package api

import (
	"context"
	"errors"

	"knowledge/store"
	"knowledge/types"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type CollectionStore interface {
	CreateCollection(ctx context.Context, c *types.Collection) error
	GetCollection(ctx context.Context, id uuid.UUID) (*types.Collection, error)
	ListCollections(ctx context.Context) ([]types.Collection, error)
	ListDocuments(ctx context.Context, filter types.DocumentFilter) ([]types.Document, error)
}

type CollectionHandler struct {
	store CollectionStore
}

func NewCollectionHandler(s CollectionStore) *CollectionHandler {
	return &CollectionHandler{store: s}
}

func (h *CollectionHandler) HandleCreate(c *fiber.Ctx) error {
	var params types.CollectionParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}

	col := &types.Collection{
		Name:        params.Name,
		Description: params.Description,
		IsDefault:   params.IsDefault,
	}
	if err := h.store.CreateCollection(c.UserContext(), col); err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(col)
}

func (h *CollectionHandler) HandleList(c *fiber.Ctx) error {
	cols, err := h.store.ListCollections(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(cols)
}

func (h *CollectionHandler) HandleGet(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return ErrInvalidID()
	}
	col, err := h.store.GetCollection(c.UserContext(), id)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound(id, "collection")
	}
	if err != nil {
		return err
	}
	return c.JSON(col)
}

func (h *CollectionHandler) HandleDocuments(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return ErrInvalidID()
	}
	if _, err := h.store.GetCollection(c.UserContext(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound(id, "collection")
		}
		return err
	}
	docs, err := h.store.ListDocuments(c.UserContext(), types.DocumentFilter{
		CollectionID: uuid.NullUUID{UUID: id, Valid: true},
	})
	if err != nil {
		return err
	}
	return c.JSON(types.DocumentListResponse{Documents: docs, Total: len(docs)})
}
