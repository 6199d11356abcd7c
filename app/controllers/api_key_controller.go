package controllers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/SubFox/app/models"
	"github.com/ManuelReschke/SubFox/app/repository"
	"github.com/ManuelReschke/SubFox/internal/pkg/usercontext"
)

// APIKeyController lets users manage their own API keys
type APIKeyController struct {
	keys repository.APIKeyRepository
}

// NewAPIKeyController creates a new API key controller
func NewAPIKeyController(keys repository.APIKeyRepository) *APIKeyController {
	return &APIKeyController{keys: keys}
}

type createAPIKeyRequest struct {
	Name string `json:"name" validate:"max=100"`
}

// HandleListAPIKeys lists the caller's keys without their secrets
func (kc *APIKeyController) HandleListAPIKeys(c *fiber.Ctx) error {
	keys, err := kc.keys.ListByUserID(usercontext.GetUserID(c))
	if err != nil {
		return handleServiceError(c, "list API keys", err)
	}
	return c.JSON(fiber.Map{"data": keys})
}

// HandleCreateAPIKey issues a new key. The raw key is only returned once.
func (kc *APIKeyController) HandleCreateAPIKey(c *fiber.Ctx) error {
	var req createAPIKeyRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	raw, prefix, hash, err := models.GenerateAPIKey()
	if err != nil {
		return handleServiceError(c, "generate API key", err)
	}
	key := &models.APIKey{
		UserID:  usercontext.GetUserID(c),
		Name:    req.Name,
		Prefix:  prefix,
		KeyHash: hash,
	}
	if err := kc.keys.Create(key); err != nil {
		return handleServiceError(c, "store API key", err)
	}
	log.Infof("[API] Issued API key %d for user %d", key.ID, key.UserID)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"key": raw, "api_key": key})
}

// HandleRevokeAPIKey revokes one of the caller's keys
func (kc *APIKeyController) HandleRevokeAPIKey(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	userID := usercontext.GetUserID(c)
	keys, err := kc.keys.ListByUserID(userID)
	if err != nil {
		return handleServiceError(c, "list API keys", err)
	}
	owned := false
	for _, k := range keys {
		if k.ID == id {
			owned = true
			break
		}
	}
	if !owned {
		return fiber.NewError(fiber.StatusNotFound, "API key not found")
	}
	if err := kc.keys.Revoke(id, time.Now().UTC()); err != nil {
		return handleServiceError(c, "revoke API key", err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
