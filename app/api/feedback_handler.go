package api

import (
	"context"
	"errors"

	"knowledge/store"
	"knowledge/types"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type FeedbackStore interface {
	GetQueryOwner(ctx context.Context, queryID uuid.UUID) (string, error)
	SaveFeedback(ctx context.Context, f *types.Feedback) error
	ListFeedback(ctx context.Context, userID string) ([]types.Feedback, error)
}

type FeedbackHandler struct {
	store FeedbackStore
}

func NewFeedbackHandler(s FeedbackStore) *FeedbackHandler {
	return &FeedbackHandler{store: s}
}

// HandleSubmit records feedback on a query. The query must exist and,
// when both sides are known, belong to the caller.
func (h *FeedbackHandler) HandleSubmit(c *fiber.Ctx) error {
	var params types.FeedbackParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}
	queryID := uuid.MustParse(params.QueryID)
	userID := UserID(c)

	owner, err := h.store.GetQueryOwner(c.UserContext(), queryID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrForbidden("cannot submit feedback: query not found or not owned by you")
	}
	if err != nil {
		return err
	}
	if owner != "" && userID != "" && owner != userID {
		return ErrForbidden("cannot submit feedback: query not found or not owned by you")
	}

	fb := &types.Feedback{
		QueryID:   queryID,
		UserID:    userID,
		Rating:    params.Rating,
		IssueType: params.IssueType,
		Comment:   params.Comment,
	}
	if err := h.store.SaveFeedback(c.UserContext(), fb); err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fb)
}

func (h *FeedbackHandler) HandleList(c *fiber.Ctx) error {
	userID := UserID(c)
	if userID == "" {
		return c.JSON([]types.Feedback{})
	}
	list, err := h.store.ListFeedback(c.UserContext(), userID)
	if err != nil {
		return err
	}
	return c.JSON(list)
}
