package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/SubFox/internal/pkg/statistics"
)

// AdminStatisticsController serves the billing dashboard
type AdminStatisticsController struct {
	stats *statistics.Service
}

func NewAdminStatisticsController(stats *statistics.Service) *AdminStatisticsController {
	return &AdminStatisticsController{stats: stats}
}

// HandleDashboard returns today's billing figures
func (sc *AdminStatisticsController) HandleDashboard(c *fiber.Ctx) error {
	d, cached, err := sc.stats.Dashboard()
	if err != nil {
		return handleServiceError(c, "load statistics", err)
	}
	if cached {
		c.Set("X-Cache", "HIT")
	} else {
		c.Set("X-Cache", "MISS")
	}
	return c.JSON(d)
}
