package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/skyqueue/internal/models"
)

type ActivityLog interface {
	Entries() []models.LogEntry
	Clear()
}

type LogsHandler struct {
	log ActivityLog
}

func NewLogsHandler(log ActivityLog) *LogsHandler {
	return &LogsHandler{log: log}
}

func (h *LogsHandler) ListLogs(c *fiber.Ctx) error {
	return c.JSON(h.log.Entries())
}

func (h *LogsHandler) ClearLogs(c *fiber.Ctx) error {
	h.log.Clear()
	return c.SendStatus(fiber.StatusOK)
}
