package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/skyqueue/internal/models"
	"github.com/maheshrc27/skyqueue/internal/transfer"
)

type QueueService interface {
	List(ctx context.Context) ([]models.ScheduledPost, error)
	CancelAll(ctx context.Context) (int, error)
	TestAlarm(ctx context.Context) (*models.ScheduledPost, error)
	Debug(ctx context.Context) (*models.QueueDebug, error)
}

type QueueHandler struct {
	q QueueService
}

func NewQueueHandler(q QueueService) *QueueHandler {
	return &QueueHandler{q: q}
}

func (h *QueueHandler) ListQueue(c *fiber.Ctx) error {
	posts, err := h.q.List(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to read queue",
		})
	}

	// media payloads are large and not needed by the list view
	for i := range posts {
		for j := range posts[i].MediaRaw {
			posts[i].MediaRaw[j].Payload = ""
		}
	}
	return c.Status(fiber.StatusOK).JSON(posts)
}

func (h *QueueHandler) ClearQueue(c *fiber.Ctx) error {
	cleared, err := h.q.CancelAll(c.Context())
	if err != nil {
		return errorResponse(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(transfer.ClearResult{Cleared: cleared})
}

func (h *QueueHandler) TestAlarm(c *fiber.Ctx) error {
	post, err := h.q.TestAlarm(c.Context())
	if err != nil {
		return errorResponse(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(transfer.TestAlarmResult{
		TestID:       post.ID,
		ScheduledFor: post.Time().Format(time.RFC3339),
	})
}

func (h *QueueHandler) DebugQueue(c *fiber.Ctx) error {
	debug, err := h.q.Debug(c.Context())
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(debug)
}
