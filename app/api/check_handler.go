package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type CheckHandler struct {
	db Pinger
}

func NewCheckHandler(db Pinger) *CheckHandler {
	return &CheckHandler{db: db}
}

func (h CheckHandler) HandleHealthy(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"result": "ok"})
}

// HandleReady reports whether the database answers.
func (h CheckHandler) HandleReady(c *fiber.Ctx) error {
	if h.db == nil {
		return c.JSON(fiber.Map{"result": "ok"})
	}
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()
	if err := h.db.Ping(ctx); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"result": "unavailable"})
	}
	return c.JSON(fiber.Map{"result": "ok"})
}
