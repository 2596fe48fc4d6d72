package api

import (
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	config "github.com/maheshrc27/skyqueue/configs"
	"github.com/maheshrc27/skyqueue/internal/api/handlers"
	"github.com/maheshrc27/skyqueue/internal/api/middleware"
)

type Handlers struct {
	Auth     *handlers.AuthHandler
	Post     *handlers.PostHandler
	Queue    *handlers.QueueHandler
	Settings *handlers.SettingsHandler
	Logs     *handlers.LogsHandler
}

func NewApp(cfg config.Config, h Handlers) *fiber.App {
	app := fiber.New(fiber.Config{
		ReadTimeout:  10 * time.Minute,
		WriteTimeout: 10 * time.Minute,
		BodyLimit:    200 * 1024 * 1024, // 4 videos before compression
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			slog.Error("request failed", "path", c.Path(), "error", err)
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	if cfg.AppEnv != "test" {
		app.Use(logger.New())
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(cfg.CORSOrigins(), ","),
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-API-Key",
		AllowCredentials: true,
		MaxAge:           3600,
	}))

	app.Post("/login", h.Auth.Login)

	authMiddleware := middleware.NewAuthMiddleware(cfg)
	api := app.Group("/api")
	api.Use(authMiddleware.AuthMiddleware())

	api.Post("/logout", h.Auth.Logout)
	api.Post("/session/ensure", h.Auth.EnsureSession)

	api.Post("/media/upload", h.Post.UploadMedia)
	api.Post("/posts/schedule", h.Post.SchedulePost)
	api.Post("/posts/now", h.Post.PostNow)

	api.Get("/queue", h.Queue.ListQueue)
	api.Post("/queue/clear", h.Queue.ClearQueue)
	api.Post("/queue/test", h.Queue.TestAlarm)
	api.Get("/queue/debug", h.Queue.DebugQueue)

	api.Get("/logs", h.Logs.ListLogs)
	api.Post("/logs/clear", h.Logs.ClearLogs)

	api.Get("/options", h.Settings.GetOptions)
	api.Post("/options", h.Settings.UpdateOptions)

	return app
}
