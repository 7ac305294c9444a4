package webapp

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/romanzh1/mood-diary/pkg/utils"
)

type entryPayload struct {
	Score int    `json:"score"`
	Note  string `json:"note"`
}

// GetMe registers the user on launch and tells the frontend how to lay itself out.
func (handler *Handler) GetMe(c *fiber.Ctx) error {
	identity := currentIdentity(c)

	if err := handler.service.RegisterUser(c.UserContext(), identity); err != nil {
		return err
	}

	settings, err := handler.service.GetSettings(c.UserContext(), identity.UserID)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"user_id":    identity.UserID,
		"first_name": identity.FirstName,
		"platform":   identity.Platform,
		"desktop":    identity.Platform.IsDesktop(),
		"onboarded":  settings.Onboarded,
		"today":      utils.DateKey(handler.service.Now(c.UserContext(), identity.UserID)),
	})
}

func (handler *Handler) GetEntries(c *fiber.Ctx) error {
	identity := currentIdentity(c)

	entries, err := handler.service.GetAllEntries(c.UserContext(), identity.UserID)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"entries": entries})
}

func (handler *Handler) GetEntry(c *fiber.Ctx) error {
	identity := currentIdentity(c)

	date, err := parseDateParam(c)
	if err != nil {
		return err
	}

	entry, err := handler.service.GetEntry(c.UserContext(), identity.UserID, date)
	if err != nil {
		return err
	}
	if entry == nil {
		return fiber.NewError(fiber.StatusNotFound, "entry not found")
	}

	return c.JSON(entry)
}

func (handler *Handler) PutEntry(c *fiber.Ctx) error {
	identity := currentIdentity(c)

	date, err := parseDateParam(c)
	if err != nil {
		return err
	}

	var payload entryPayload
	if err := c.BodyParser(&payload); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
	}

	entry, err := handler.service.SaveEntry(c.UserContext(), identity.UserID, date, payload.Score, payload.Note)
	if err != nil {
		return err
	}

	return c.JSON(entry)
}

func parseDateParam(c *fiber.Ctx) (time.Time, error) {
	date, err := utils.ParseDateKey(c.Params("date"), time.UTC)
	if err != nil {
		return time.Time{}, fiber.NewError(fiber.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
	}
	return date, nil
}
