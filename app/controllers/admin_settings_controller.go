package controllers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/SubFox/app/repository"
	"github.com/ManuelReschke/SubFox/internal/pkg/usercontext"
)

// AdminSettingsController reads and updates the billing settings
type AdminSettingsController struct {
	settings repository.SettingRepository
}

// NewAdminSettingsController creates a new admin settings controller
func NewAdminSettingsController(settings repository.SettingRepository) *AdminSettingsController {
	return &AdminSettingsController{settings: settings}
}

// HandleGetSettings returns the current billing settings
func (sc *AdminSettingsController) HandleGetSettings(c *fiber.Ctx) error {
	return c.JSON(sc.settings.Get())
}

// HandleUpdateSettings merges the request body into the current settings and saves them.
// Fields left out of the body keep their value.
func (sc *AdminSettingsController) HandleUpdateSettings(c *fiber.Ctx) error {
	next := sc.settings.Get()
	if err := c.BodyParser(&next); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid JSON body")
	}
	if err := next.Validate(); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := sc.settings.Save(next); err != nil {
		return handleServiceError(c, "save settings", err)
	}
	log.Infof("[Settings] Billing settings updated by user %d", usercontext.GetUserID(c))
	return c.JSON(sc.settings.Get())
}
