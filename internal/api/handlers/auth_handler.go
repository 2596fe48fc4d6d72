package handlers

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	config "github.com/maheshrc27/skyqueue/configs"
	"github.com/maheshrc27/skyqueue/internal/service"
	"github.com/maheshrc27/skyqueue/internal/transfer"
	"github.com/maheshrc27/skyqueue/pkg/utils"
)

const sessionCookieTTL = 24 * time.Hour

type AuthHandler struct {
	s   service.AuthService
	cfg config.Config
}

func NewAuthHandler(cfg config.Config, service service.AuthService) *AuthHandler {
	return &AuthHandler{s: service, cfg: cfg}
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req transfer.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse request",
		})
	}

	session, err := h.s.Login(c.Context(), req.Identifier, req.Password)
	if err != nil {
		return errorResponse(c, err)
	}

	token, err := utils.GenerateToken(h.cfg.SecretKey, session.Handle, sessionCookieTTL)
	if err != nil {
		return errorResponse(c, err)
	}

	c.Cookie(&fiber.Cookie{
		Name:     h.cfg.CookieName,
		Value:    token,
		HTTPOnly: true,
		Secure:   h.cfg.AppEnv == "production",
		SameSite: fiber.CookieSameSiteLaxMode,
		Path:     "/",
		Expires:  time.Now().Add(sessionCookieTTL),
	})

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"did":    session.DID,
		"handle": session.Handle,
	})
}

func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	if err := h.s.Logout(c.Context()); err != nil {
		return errorResponse(c, err)
	}

	c.Cookie(&fiber.Cookie{
		Name:   h.cfg.CookieName,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
	slog.Info("logged out", "handle", GetHandle(c))
	return c.SendStatus(fiber.StatusOK)
}

func (h *AuthHandler) EnsureSession(c *fiber.Ctx) error {
	session, err := h.s.EnsureLoggedIn(c.Context())
	if err != nil {
		return errorResponse(c, err)
	}

	return c.JSON(fiber.Map{
		"did":     session.DID,
		"handle":  session.Handle,
		"service": session.Service,
	})
}
