package controllers

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/SubFox/app/models"
	"github.com/ManuelReschke/SubFox/internal/pkg/billing"
)

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

var validate = validator.New()

func jsonError(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{"error": code, "message": message})
}

// handleServiceError maps billing and repository errors to JSON responses.
func handleServiceError(c *fiber.Ctx, action string, err error) error {
	switch {
	case errors.Is(err, billing.ErrNotFound), errors.Is(err, gorm.ErrRecordNotFound):
		return jsonError(c, fiber.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, billing.ErrValidation):
		return jsonError(c, fiber.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, billing.ErrInvalidPlan), errors.Is(err, models.ErrPlanDefinition):
		return jsonError(c, fiber.StatusUnprocessableEntity, "invalid_plan", err.Error())
	case errors.Is(err, billing.ErrUsageLimitExceeded):
		return jsonError(c, fiber.StatusUnprocessableEntity, "usage_limit_exceeded", err.Error())
	case errors.Is(err, billing.ErrInvalidTransition):
		return jsonError(c, fiber.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, billing.ErrConcurrentUpdate):
		return jsonError(c, fiber.StatusConflict, "conflict", err.Error())
	case errors.Is(err, billing.ErrPaymentFailed):
		return jsonError(c, fiber.StatusPaymentRequired, "payment_failed", err.Error())
	}
	log.Errorf("[API] %s: %v", action, err)
	return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to "+action)
}

// ErrorHandler renders errors returned by handlers as JSON.
func ErrorHandler(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	message := "internal server error"
	var fe *fiber.Error
	if errors.As(err, &fe) {
		status = fe.Code
		message = fe.Message
	} else {
		log.Errorf("[API] %s %s: %v", c.Method(), c.Path(), err)
	}
	return jsonError(c, status, errorCode(status), message)
}

func errorCode(status int) string {
	switch status {
	case fiber.StatusBadRequest:
		return "bad_request"
	case fiber.StatusUnauthorized:
		return "unauthorized"
	case fiber.StatusForbidden:
		return "forbidden"
	case fiber.StatusNotFound:
		return "not_found"
	case fiber.StatusMethodNotAllowed:
		return "method_not_allowed"
	case fiber.StatusConflict:
		return "conflict"
	case fiber.StatusUnprocessableEntity:
		return "unprocessable_entity"
	case fiber.StatusTooManyRequests:
		return "too_many_requests"
	case fiber.StatusServiceUnavailable:
		return "service_unavailable"
	}
	return "internal_server_error"
}

// parseID reads a positive numeric route parameter.
func parseID(c *fiber.Ctx, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Params(name), 10, 64)
	if err != nil || id == 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid "+name)
	}
	return uint(id), nil
}

// pagination reads page and per_page query parameters.
func pagination(c *fiber.Ctx) (page, perPage, offset int) {
	page = c.QueryInt("page", 1)
	if page < 1 {
		page = 1
	}
	perPage = c.QueryInt("per_page", defaultPerPage)
	if perPage < 1 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	return page, perPage, (page - 1) * perPage
}

func paginationMeta(page, perPage int, total int64) fiber.Map {
	pages := (total + int64(perPage) - 1) / int64(perPage)
	return fiber.Map{"page": page, "per_page": perPage, "total": total, "total_pages": pages}
}

// bindJSON parses the body into dst and runs struct validation. An empty body leaves dst untouched.
func bindJSON(c *fiber.Ctx, dst interface{}) error {
	if len(c.Body()) > 0 {
		if err := c.BodyParser(dst); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid JSON body")
		}
	}
	if err := validate.Struct(dst); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return nil
}

// parseTimeQuery parses an RFC3339 or YYYY-MM-DD query parameter.
func parseTimeQuery(c *fiber.Ctx, name string) (time.Time, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, fiber.NewError(fiber.StatusBadRequest, "invalid "+name)
	}
	return t, nil
}
