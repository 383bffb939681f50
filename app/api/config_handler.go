package api

import (
	"knowledge/config"
	"knowledge/types"

	"github.com/gofiber/fiber/v2"
)

// ConfigHandler exposes the retrieval settings in effect. It is read-only.
type ConfigHandler struct {
	cfg *config.Config
}

func NewConfigHandler(cfg *config.Config) *ConfigHandler {
	return &ConfigHandler{cfg: cfg}
}

func (h *ConfigHandler) HandleGetConfig(c *fiber.Ctx) error {
	resp := types.ConfigResponse{
		Strategy:           h.cfg.Strategy,
		ChunkTargetTokens:  h.cfg.Chunk.TargetTokens,
		ChunkOverlapTokens: h.cfg.Chunk.OverlapTokens,
		ChunkMaxTokens:     h.cfg.Chunk.MaxTokens,
		PoolSize:           h.cfg.Retrieval.PoolSize,
		TopK:               h.cfg.Retrieval.TopK,
		ScoreThreshold:     h.cfg.Retrieval.ScoreThreshold,
		WeakMatchThreshold: h.cfg.Retrieval.WeakMatchThreshold,
	}
	if h.cfg.Strategy == types.StrategySemantic {
		resp.EmbeddingModel = h.cfg.EmbeddingModel
	}
	return c.JSON(resp)
}
