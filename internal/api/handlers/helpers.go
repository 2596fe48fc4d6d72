package handlers

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/skyqueue/internal/models"
	"github.com/maheshrc27/skyqueue/internal/transfer"
)

func GetHandle(c *fiber.Ctx) string {
	handle, _ := c.Locals("handle").(string)
	return handle
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, models.ErrAuth):
		return fiber.StatusUnauthorized
	case errors.Is(err, models.ErrTranscode):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, models.ErrUpload), errors.Is(err, models.ErrPublish):
		return fiber.StatusBadGateway
	}
	return fiber.StatusInternalServerError
}

func errorResponse(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	if status >= fiber.StatusInternalServerError {
		slog.Error(err.Error(), "path", c.Path())
	}
	return c.Status(status).JSON(fiber.Map{
		"error": err.Error(),
	})
}

// splitTimes accepts repeated fields as well as comma separated lists.
func splitTimes(values []string) []string {
	var times []string
	for _, v := range values {
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				times = append(times, t)
			}
		}
	}
	return times
}

// readUploads loads the files[] parts of a form, pairing each with the alts[]
// value at the same position.
func readUploads(form *multipart.Form) ([]transfer.MediaUpload, error) {
	files := form.File["files"]
	alts := form.Value["alts"]

	uploads := make([]transfer.MediaUpload, 0, len(files))
	for i, fh := range files {
		data, err := readFile(fh)
		if err != nil {
			return nil, fmt.Errorf("%w: read %s: %v", models.ErrValidation, fh.Filename, err)
		}

		alt := ""
		if i < len(alts) {
			alt = strings.TrimSpace(alts[i])
		}
		uploads = append(uploads, transfer.MediaUpload{
			Name:     fh.Filename,
			MimeType: fh.Header.Get("Content-Type"),
			AltText:  alt,
			Data:     data,
		})
	}
	return uploads, nil
}

func readFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func firstValue(form *multipart.Form, key string) string {
	if v := form.Value[key]; len(v) > 0 {
		return v[0]
	}
	return ""
}
