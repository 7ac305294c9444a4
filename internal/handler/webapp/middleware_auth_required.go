package webapp

import (
	"github.com/gofiber/fiber/v2"
	"github.com/romanzh1/mood-diary/internal/models"
	"github.com/romanzh1/mood-diary/pkg/initdata"
	"go.uber.org/zap"
)

const (
	headerInitData = "X-Telegram-Init-Data"
	headerPlatform = "X-Telegram-Platform"

	contextIdentityKey = "identity"
)

// AuthRequired accepts only requests carrying init data signed for our bot.
func (handler *Handler) AuthRequired(c *fiber.Ctx) error {
	raw := c.Get(headerInitData)
	if raw == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	data, err := initdata.Validate(raw, handler.botToken, handler.initDataMaxAge, handler.now())
	if err != nil {
		zap.S().Info("reject init data", zap.Error(err), zap.String("path", c.Path()))
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	c.Locals(contextIdentityKey, models.Identity{
		UserID:    data.User.ID,
		FirstName: data.User.FirstName,
		Platform:  models.ParsePlatform(c.Get(headerPlatform)),
	})

	return c.Next()
}

func currentIdentity(c *fiber.Ctx) models.Identity {
	identity, _ := c.Locals(contextIdentityKey).(models.Identity)
	return identity
}
