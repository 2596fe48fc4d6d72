package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/skyqueue/internal/service"
	"github.com/maheshrc27/skyqueue/internal/transfer"
)

type SettingsHandler struct {
	s service.SettingsService
}

func NewSettingsHandler(service service.SettingsService) *SettingsHandler {
	return &SettingsHandler{s: service}
}

func (h *SettingsHandler) GetOptions(c *fiber.Ctx) error {
	opts, err := h.s.GetOptions(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to read options",
		})
	}

	return c.JSON(opts)
}

func (h *SettingsHandler) UpdateOptions(c *fiber.Ctx) error {
	var update transfer.OptionsUpdate
	err := c.BodyParser(&update)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse json",
		})
	}

	opts, err := h.s.UpdateOptions(c.Context(), update)
	if err != nil {
		return errorResponse(c, err)
	}

	return c.JSON(opts)
}
