package trip

import (
	"backend-ridetrack/internal/routing"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, directions routing.Directions) {
	r.Post("/", func(c *fiber.Ctx) error {
		var req Trip
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if req.RouteName == "" || req.VehicleID == "" {
			return fiber.NewError(fiber.StatusBadRequest, "route_name and vehicle_id required")
		}
		created, err := svc.CreateTrip(c.Context(), req)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.Status(fiber.StatusCreated).JSON(created)
	})

	r.Get("/:id", func(c *fiber.Ctx) error {
		t, err := svc.GetTrip(c.Context(), c.Params("id"))
		if err != nil {
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		}
		return c.JSON(t)
	})

	r.Delete("/:id", func(c *fiber.Ctx) error {
		if err := svc.DeleteTrip(c.Context(), c.Params("id")); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	r.Post("/:id/stops", func(c *fiber.Ctx) error {
		var req Stop
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		req.TripID = c.Params("id")
		stop, err := svc.AddStop(c.Context(), req)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.Status(fiber.StatusCreated).JSON(stop)
	})

	r.Get("/:id/stops", func(c *fiber.Ctx) error {
		stops, err := svc.Stops(c.Context(), c.Params("id"))
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(stops)
	})

	r.Get("/:id/route", func(c *fiber.Ctx) error {
		path, err := svc.PlannedPath(c.Context(), c.Params("id"))
		if err != nil {
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		}
		return c.JSON(path)
	})

	// Plan the initial road route over the full itinerary and store it.
	r.Post("/:id/route/plan", func(c *fiber.Ctx) error {
		if directions == nil {
			return fiber.NewError(fiber.StatusServiceUnavailable, "directions provider not configured")
		}
		points, err := svc.StopPoints(c.Context(), c.Params("id"))
		if err != nil {
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		}
		planned, err := directions.Route(c.Context(), points)
		if err != nil {
			return fiber.NewError(fiber.StatusBadGateway, err.Error())
		}
		route, err := svc.SetPlannedRoute(c.Context(), c.Params("id"), planned.Geometry, planned.DistanceKm, planned.DurationMinutes)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.Status(fiber.StatusCreated).JSON(route)
	})
}
