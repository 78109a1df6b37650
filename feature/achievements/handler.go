package achievements

import (
	"errors"

	"trophy-manager/core/logger"
	"trophy-manager/feature/achievements/store"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Handler handles HTTP requests for cached achievement data.
type Handler struct {
	service *Service
}

// NewHandler creates a new HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers the achievement routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	group := app.Group("/titles")
	group.Get("/", h.HandleListTitles)
	group.Get("/:provider/:gameID", h.HandleTitleDetail)
}

// HandleListTitles returns summaries for every cached title.
func (h *Handler) HandleListTitles(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)

	summaries, err := h.service.ListTitles(c.Context())
	if err != nil {
		l.Error("Title list failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(summaries)
}

// HandleTitleDetail returns the full achievement view for one title.
func (h *Handler) HandleTitleDetail(c *fiber.Ctx) error {
	provider := c.Params("provider")
	gameID := c.Params("gameID")
	l := logger.WithRayID(h.service.logger, c)

	detail, err := h.service.TitleDetail(c.Context(), provider, gameID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "title not cached",
			})
		}
		l.Error("Title detail failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(detail)
}
