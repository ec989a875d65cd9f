package server

import (
	"context"

	"github.com/gofiber/fiber/v2"
)

// Action is the typed handler behind a route. It never sees the request,
// only the parameters resolved for it.
type Action func(ctx context.Context, params Params) (interface{}, error)

type Route struct {
	Method string
	Path   string
	Name   string
	Action Action
}

func routes(h *handlers) []Route {
	return []Route{
		{fiber.MethodGet, "/healthz", "healthz", h.healthz},

		{fiber.MethodPost, "/feed", "createFeed", h.createFeed},
		{fiber.MethodPost, "/feed/:owner", "createFeedForOwner", h.createFeed},
		{fiber.MethodGet, "/feed", "listFeeds", h.listFeeds},
		{fiber.MethodGet, "/feed/:owner", "nextContent", h.nextContent},
		{fiber.MethodPatch, "/feed", "expandFeed", h.expandFeed},
		{fiber.MethodPatch, "/feed/:owner", "expandFeedForOwner", h.expandFeed},
		{fiber.MethodDelete, "/feed/:owner", "deleteFeed", h.deleteFeed},

		{fiber.MethodPost, "/content", "addContent", h.addContent},
	}
}

// handler adapts the route's action to fiber
func (r Route) handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		params, err := resolveParams(c)
		if err != nil {
			return err
		}

		result, err := r.Action(c.UserContext(), params)
		if err != nil {
			return err
		}

		return c.Status(fiber.StatusOK).JSON(result)
	}
}
