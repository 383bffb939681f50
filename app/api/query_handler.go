package api

import (
	"context"
	"log/slog"

	"knowledge/app/agent"
	"knowledge/types"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type Asker interface {
	Ask(ctx context.Context, req agent.Request) (*types.QueryResponse, error)
}

type QueryHandler struct {
	agent  Asker
	logger *slog.Logger
}

func NewQueryHandler(a Asker) *QueryHandler {
	return &QueryHandler{
		agent:  a,
		logger: slog.Default(),
	}
}

func (h *QueryHandler) HandleQuery(c *fiber.Ctx) error {
	var params types.QueryParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}

	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}
	collectionID, err := uuid.Parse(params.CollectionID)
	if err != nil {
		return ErrInvalidID()
	}

	resp, err := h.agent.Ask(c.UserContext(), agent.Request{
		UserID:       UserID(c),
		CollectionID: collectionID,
		Mode:         params.Mode,
		Question:     params.Question,
		Constraints:  params.Constraints,
		Language:     params.Language,
	})
	if err != nil {
		h.logger.Error("query_failed",
			slog.String("collection_id", collectionID.String()),
			slog.Any("error", err))
		return ErrInternal("query failed")
	}
	return c.JSON(resp)
}
