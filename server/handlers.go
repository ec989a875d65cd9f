package server

import (
	"context"
	"fmt"
	"strings"

	"feedq/feeds"
	"feedq/models"
	"feedq/store"

	"github.com/gofiber/fiber/v2"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
)

type handlers struct {
	feeds       *feeds.Store
	content     store.ContentCatalog
	maxNumItems int
}

func (h *handlers) healthz(ctx context.Context, _ Params) (interface{}, error) {
	return fiber.Map{"status": "ok"}, nil
}

func (h *handlers) createFeed(ctx context.Context, p Params) (interface{}, error) {
	feed, err := h.feeds.Create(ctx, p.Owner)
	if err != nil {
		return nil, err
	}
	return models.CreateFeedResponse{
		Msg:  "Feed successfully created!",
		Feed: feed,
	}, nil
}

func (h *handlers) listFeeds(ctx context.Context, _ Params) (interface{}, error) {
	return h.feeds.List(ctx)
}

func (h *handlers) nextContent(ctx context.Context, p Params) (interface{}, error) {
	id, err := h.feeds.GetNext(ctx, p.Owner)
	if err != nil {
		return nil, err
	}
	return models.NextContentResponse{
		Msg: "Content found!",
		Id:  id,
	}, nil
}

// expandFeed offers the numItems most recent catalog ids plus any explicit
// ids to the owner's feed
func (h *handlers) expandFeed(ctx context.Context, p Params) (interface{}, error) {
	numItems := p.NumItems
	if h.maxNumItems > 0 && numItems > h.maxNumItems {
		numItems = h.maxNumItems
	}

	candidates := []string{}
	if numItems > 0 && h.content != nil {
		recent, err := h.content.RecentContent(ctx, numItems)
		if err != nil {
			return nil, fmt.Errorf("resolve recent content: %w", err)
		}
		candidates = append(candidates, recent...)
	}
	candidates = lo.Uniq(append(candidates, p.IDs...))

	admitted, err := h.feeds.AddToFeed(ctx, p.Owner, candidates)
	if err != nil {
		return nil, err
	}
	return models.AddToFeedResponse{
		Msg:      fmt.Sprintf("Added %d items to feed!", admitted),
		Admitted: admitted,
	}, nil
}

func (h *handlers) deleteFeed(ctx context.Context, p Params) (interface{}, error) {
	if err := h.feeds.Delete(ctx, p.Owner); err != nil {
		return nil, err
	}
	return models.MessageResponse{Msg: "Deleted Feed successfully!"}, nil
}

func (h *handlers) addContent(ctx context.Context, p Params) (interface{}, error) {
	if strings.TrimSpace(p.ContentID) == "" {
		return nil, fiber.NewError(fiber.StatusBadRequest, "id must not be empty")
	}
	if h.content == nil {
		return nil, fmt.Errorf("no content catalog configured")
	}

	added, err := h.content.AddContent(ctx, p.ContentID)
	if err != nil {
		return nil, fmt.Errorf("register content: %w", err)
	}

	msg := "Content registered!"
	if !added {
		msg = "Content already registered!"
	}

	log.WithFields(log.Fields{
		"id":    p.ContentID,
		"added": added,
	}).Info("Register content")

	return models.AddContentResponse{
		Msg:   msg,
		Added: added,
	}, nil
}
