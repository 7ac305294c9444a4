// Package webapp serves the JSON API behind the Telegram Mini App.
package webapp

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/romanzh1/mood-diary/internal/models"
	"go.uber.org/zap"
)

type Service interface {
	RegisterUser(ctx context.Context, identity models.Identity) error
	Now(ctx context.Context, telegramID int64) time.Time

	GetEntry(ctx context.Context, telegramID int64, date time.Time) (*models.MoodEntry, error)
	SaveEntry(ctx context.Context, telegramID int64, date time.Time, score int, note string) (*models.MoodEntry, error)
	GetAllEntries(ctx context.Context, telegramID int64) (models.MonthBucket, error)

	GetSettings(ctx context.Context, telegramID int64) (*models.UserSettings, error)
	SaveSettings(ctx context.Context, telegramID int64, reminderTime, timezone string) (*models.UserSettings, *models.ReminderReport, error)

	BuildExport(ctx context.Context, telegramID int64) (string, error)
}

type Handler struct {
	service        Service
	botToken       string
	initDataMaxAge time.Duration
	now            func() time.Time
}

func NewHandler(service Service, botToken string, initDataMaxAge time.Duration) *Handler {
	return &Handler{
		service:        service,
		botToken:       botToken,
		initDataMaxAge: initDataMaxAge,
		now:            time.Now,
	}
}

// NewApp builds the fiber application with every route registered.
func NewApp(handler *Handler, allowOrigins string) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "mood-diary",
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})

	app.Use(recover.New())
	if allowOrigins == "" {
		allowOrigins = "*"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: allowOrigins,
		AllowHeaders: "Content-Type, " + headerInitData + ", " + headerPlatform,
		AllowMethods: "GET,PUT,OPTIONS",
	}))
	app.Use(requestLogger)

	RegisterRoutes(app, handler)

	return app
}

func (handler *Handler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func errorHandler(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	message := "internal error"

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		status = fiberErr.Code
		message = fiberErr.Message
	} else {
		zap.S().Error("handle request", zap.Error(err), zap.String("path", c.Path()))
	}

	return c.Status(status).JSON(fiber.Map{"error": message})
}

func requestLogger(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()

	zap.S().Debug("request", zap.String("method", c.Method()), zap.String("path", c.Path()),
		zap.Int("status", c.Response().StatusCode()), zap.Duration("took", time.Since(start)))

	return err
}
