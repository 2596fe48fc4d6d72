package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/skyqueue/internal/models"
	"github.com/maheshrc27/skyqueue/internal/service"
	"github.com/maheshrc27/skyqueue/internal/transfer"
)

type Scheduler interface {
	Schedule(ctx context.Context, text string, media []models.MediaAttachment, date string, times []string) (int, error)
}

type PostHandler struct {
	s     service.PostService
	queue Scheduler
}

func NewPostHandler(service service.PostService, queue Scheduler) *PostHandler {
	return &PostHandler{s: service, queue: queue}
}

func (h *PostHandler) SchedulePost(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		slog.Error(err.Error())
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse form",
		})
	}

	text := firstValue(form, "text")
	date := strings.TrimSpace(firstValue(form, "date"))
	times := splitTimes(form.Value["times"])
	if date == "" || len(times) == 0 {
		return errorResponse(c, fmt.Errorf("%w: date and at least one time are required", models.ErrValidation))
	}

	uploads, err := readUploads(form)
	if err != nil {
		return errorResponse(c, err)
	}
	if strings.TrimSpace(text) == "" && len(uploads) == 0 {
		return errorResponse(c, fmt.Errorf("%w: write something or attach media", models.ErrValidation))
	}

	media, err := h.s.PrepareMedia(c.Context(), uploads)
	if err != nil {
		return errorResponse(c, err)
	}

	created, err := h.queue.Schedule(c.Context(), text, media, date, times)
	if err != nil {
		h.s.ReleaseMedia(c.Context(), media)
		return errorResponse(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(transfer.ScheduleResult{Created: created})
}

func (h *PostHandler) PostNow(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		slog.Error(err.Error())
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse form",
		})
	}

	text := firstValue(form, "text")
	uploads, err := readUploads(form)
	if err != nil {
		return errorResponse(c, err)
	}
	if strings.TrimSpace(text) == "" && len(uploads) == 0 {
		return errorResponse(c, fmt.Errorf("%w: write something or attach media", models.ErrValidation))
	}

	ref, err := h.s.PostNow(c.Context(), text, uploads)
	if err != nil {
		return errorResponse(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(transfer.PostNowResult{URI: ref.URI, CID: ref.CID})
}

func (h *PostHandler) UploadMedia(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		slog.Error(err.Error())
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse form",
		})
	}

	uploads, err := readUploads(form)
	if err != nil {
		return errorResponse(c, err)
	}
	if len(uploads) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "No files selected",
		})
	}

	media, err := h.s.PrepareMedia(c.Context(), uploads)
	if err != nil {
		return errorResponse(c, err)
	}
	defer h.s.ReleaseMedia(c.Context(), media)

	blobs, err := h.s.UploadMedia(c.Context(), media)
	if err != nil {
		return errorResponse(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(transfer.UploadedMedia{Blobs: blobs})
}
