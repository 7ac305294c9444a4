package webapp

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/romanzh1/mood-diary/internal/service"
	"github.com/romanzh1/mood-diary/internal/service/reminder"
)

type settingsPayload struct {
	ReminderTime string `json:"reminder_time"`
	Timezone     string `json:"timezone"`
}

func (handler *Handler) GetSettings(c *fiber.Ctx) error {
	identity := currentIdentity(c)

	settings, err := handler.service.GetSettings(c.UserContext(), identity.UserID)
	if err != nil {
		return err
	}

	return c.JSON(settings)
}

func (handler *Handler) PutSettings(c *fiber.Ctx) error {
	identity := currentIdentity(c)

	var payload settingsPayload
	if err := c.BodyParser(&payload); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
	}

	settings, report, err := handler.service.SaveSettings(c.UserContext(), identity.UserID, payload.ReminderTime, payload.Timezone)
	switch {
	case errors.Is(err, reminder.ErrInvalidTime):
		return fiber.NewError(fiber.StatusBadRequest, "invalid reminder time, expected HH:MM")
	case errors.Is(err, service.ErrInvalidTimezone):
		return fiber.NewError(fiber.StatusBadRequest, "invalid timezone")
	case err != nil:
		return err
	}

	response := fiber.Map{"settings": settings}
	if report != nil {
		response["reminder"] = fiber.Map{
			"batch_id":  report.BatchID,
			"mode":      report.Mode,
			"scheduled": report.Scheduled,
			"failed":    report.Failed,
			"skipped":   report.Skipped,
		}
	}

	return c.JSON(response)
}
