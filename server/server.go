package server

import (
	"errors"
	"strconv"
	"time"

	"feedq/feeds"
	"feedq/models"
	"feedq/store"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

var requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "feedq_http_request_duration_seconds",
	Help:    "Latency of HTTP requests by route and status",
	Buckets: prometheus.DefBuckets,
}, []string{"method", "route", "status"})

type ServerConfig struct {

	// The hostname the server is reachable on, used in logs only
	Hostname string

	// Feed queue the routes operate on
	Feeds *feeds.Store

	// Source of candidate content ids for PATCH /feed
	Content store.ContentCatalog

	// Comma separated list of origins allowed by CORS
	AllowOrigins string

	// Upper bound for numItems on PATCH /feed. Zero means unbounded.
	MaxNumItems int
}

// Returns a fiber.App instance serving the feed queue routes
func Server(config *ServerConfig) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "feedq",
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})

	// Middleware to track the latency of each request
	app.Use(func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		// Resolve the error here so the final status is known
		if err != nil {
			if handlerErr := c.App().Config().ErrorHandler(c, err); handlerErr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
			err = nil
		}

		latency := time.Since(start)
		status := c.Response().StatusCode()
		requestDuration.WithLabelValues(c.Method(), c.Route().Path, strconv.Itoa(status)).Observe(latency.Seconds())

		log.WithFields(log.Fields{
			"method":  c.Method(),
			"route":   c.Route().Path,
			"status":  status,
			"latency": latency,
		}).Info("Request")
		return err
	})

	app.Use(recover.New())
	app.Use(requestid.New(requestid.ConfigDefault))
	app.Use(compress.New())

	allowOrigins := config.AllowOrigins
	if allowOrigins == "" {
		allowOrigins = "*"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: allowOrigins,
		AllowMethods: "GET,POST,PATCH,DELETE",
		AllowHeaders: "Content-Type",
	}))

	h := &handlers{
		feeds:       config.Feeds,
		content:     config.Content,
		maxNumItems: config.MaxNumItems,
	}
	for _, route := range routes(h) {
		app.Add(route.Method, route.Path, route.handler()).Name(route.Name)
	}

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler())).Name("metrics")

	log.WithFields(log.Fields{
		"hostname": config.Hostname,
		"routes":   len(app.GetRoutes(true)),
	}).Debug("Server configured")

	return app
}

// errorHandler maps domain errors to status codes. Unknown errors are logged
// and answered with a generic message.
func errorHandler(c *fiber.Ctx, err error) error {
	code, kind, msg := classify(err)

	if code == fiber.StatusInternalServerError {
		log.WithFields(log.Fields{
			"method": c.Method(),
			"path":   c.Path(),
			"error":  err,
		}).Error("Request failed")
	}

	return c.Status(code).JSON(models.ErrorResponse{
		Msg:   msg,
		Error: kind,
	})
}

func classify(err error) (int, string, string) {
	var fiberErr *fiber.Error
	switch {
	case errors.As(err, &fiberErr):
		if fiberErr.Code == fiber.StatusBadRequest {
			return fiberErr.Code, "InvalidRequest", fiberErr.Message
		}
		return fiberErr.Code, "Request", fiberErr.Message
	case errors.Is(err, feeds.ErrNotFound):
		return fiber.StatusNotFound, "NotFound", err.Error()
	case errors.Is(err, feeds.ErrFeedExists):
		return fiber.StatusConflict, "AlreadyExists", err.Error()
	case errors.Is(err, feeds.ErrInvalidOwner):
		return fiber.StatusBadRequest, "InvalidRequest", err.Error()
	default:
		return fiber.StatusInternalServerError, "Internal", "Something went wrong"
	}
}
