package middleware

import (
	"crypto/subtle"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	config "github.com/maheshrc27/skyqueue/configs"
	"github.com/maheshrc27/skyqueue/pkg/utils"
)

const apiKeyHandle = "api-key"

type AuthMiddleware struct {
	cfg config.Config
}

func NewAuthMiddleware(cfg config.Config) *AuthMiddleware {
	return &AuthMiddleware{cfg: cfg}
}

// AuthMiddleware accepts the dashboard cookie or, when API_KEY is set, the
// api_key query parameter or X-API-Key header.
func (m *AuthMiddleware) AuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString := c.Cookies(m.cfg.CookieName)
		apiKey := c.Query("api_key")
		if apiKey == "" {
			apiKey = c.Get("X-API-Key")
		}

		if tokenString == "" && apiKey == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing Keys or cookies",
			})
		}

		if apiKey != "" {
			if m.cfg.APIKey == "" || subtle.ConstantTimeCompare([]byte(apiKey), []byte(m.cfg.APIKey)) != 1 {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error": "Invalid api key",
				})
			}
			c.Locals("handle", apiKeyHandle)
		} else {
			claims, err := utils.ValidateToken(m.cfg.SecretKey, tokenString)
			if err != nil {
				c.Cookie(&fiber.Cookie{
					Name:   m.cfg.CookieName,
					Value:  "",
					Path:   "/",
					MaxAge: -1, // Delete cookie
				})

				slog.Info("token validation failed", "error", err)
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error": "Invalid or expired token",
				})
			}

			c.Locals("handle", claims.Handle)
		}
		return c.Next()
	}
}
