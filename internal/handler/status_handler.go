package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/kursadbilgin/outreach-engine/internal/observability"
	"github.com/kursadbilgin/outreach-engine/internal/runstate"
)

// RegisterStatusRoutes exposes the scheduler's run state.
func RegisterStatusRoutes(router fiber.Router, state *runstate.RunState) {
	router.Get("/v1/status", StatusHandler(state))
}

func StatusHandler(state *runstate.RunState) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if state == nil {
			return fiber.NewError(fiber.StatusServiceUnavailable, "run state unavailable")
		}
		return c.Status(fiber.StatusOK).JSON(state.Snapshot())
	}
}

func RegisterMetricsRoute(router fiber.Router, metrics *observability.Metrics) {
	router.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
}
