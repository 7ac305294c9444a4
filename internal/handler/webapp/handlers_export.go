package webapp

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/romanzh1/mood-diary/internal/service/export"
)

// Export is the download fallback for clients without clipboard access.
func (handler *Handler) Export(c *fiber.Ctx) error {
	identity := currentIdentity(c)

	text, err := handler.service.BuildExport(c.UserContext(), identity.UserID)
	if err != nil {
		return err
	}

	setExportAttachmentHeaders(c, "text/plain; charset=utf-8", export.FileName)
	return c.SendString(text)
}

func setExportAttachmentHeaders(c *fiber.Ctx, contentType string, filename string) {
	c.Set(fiber.HeaderContentType, contentType)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%s", filename))
}
