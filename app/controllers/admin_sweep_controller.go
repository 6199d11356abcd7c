package controllers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/SubFox/app/repository"
	"github.com/ManuelReschke/SubFox/internal/pkg/billing"
	"github.com/ManuelReschke/SubFox/internal/pkg/scheduler"
	"github.com/ManuelReschke/SubFox/internal/pkg/usercontext"
)

// SweepRunner triggers scheduled jobs on demand. Implemented by *scheduler.Manager.
type SweepRunner interface {
	Jobs() []string
	RunOnce(ctx context.Context, name string) (billing.SweepResult, error)
}

// AdminSweepController runs sweeps manually and inspects their locks
type AdminSweepController struct {
	runner SweepRunner
	locks  repository.LockRepository
}

// NewAdminSweepController creates a new admin sweep controller
func NewAdminSweepController(runner SweepRunner, locks repository.LockRepository) *AdminSweepController {
	return &AdminSweepController{runner: runner, locks: locks}
}

// HandleListSweeps lists the registered jobs
func (sc *AdminSweepController) HandleListSweeps(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": sc.runner.Jobs()})
}

// HandleRunSweep runs one job now and returns its result
func (sc *AdminSweepController) HandleRunSweep(c *fiber.Ctx) error {
	name := c.Params("name")
	log.Infof("[Scheduler] Manual %s run requested by user %d", name, usercontext.GetUserID(c))
	res, err := sc.runner.RunOnce(c.UserContext(), name)
	switch {
	case errors.Is(err, scheduler.ErrUnknownJob):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, scheduler.ErrLocked):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case err != nil:
		return handleServiceError(c, "run "+name, err)
	}
	return c.JSON(res)
}

// HandleListLocks lists the sweep locks currently held in the cache
func (sc *AdminSweepController) HandleListLocks(c *fiber.Ctx) error {
	locks, err := sc.locks.List()
	if err != nil {
		log.Errorf("[Scheduler] Failed to list locks: %v", err)
		return fiber.NewError(fiber.StatusServiceUnavailable, "lock store unavailable")
	}
	return c.JSON(fiber.Map{"data": locks})
}

// HandleReleaseLock force-releases a stuck sweep lock
func (sc *AdminSweepController) HandleReleaseLock(c *fiber.Ctx) error {
	name := c.Params("name")
	n, err := sc.locks.ForceRelease(name)
	if err != nil {
		log.Errorf("[Scheduler] Failed to release lock %s: %v", name, err)
		return fiber.NewError(fiber.StatusServiceUnavailable, "lock store unavailable")
	}
	if n == 0 {
		return fiber.NewError(fiber.StatusNotFound, "lock not held")
	}
	log.Warnf("[Scheduler] Lock %s force-released by user %d", name, usercontext.GetUserID(c))
	return c.SendStatus(fiber.StatusNoContent)
}
