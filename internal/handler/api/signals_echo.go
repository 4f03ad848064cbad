package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	models "SignalFeed/internal/domain/models"
	domrepo "SignalFeed/internal/domain/repository"
	"SignalFeed/internal/usecase"
	xhttp "SignalFeed/pkg/http"
	"SignalFeed/pkg/http/middleware"
	xlogger "SignalFeed/pkg/logger"

	"github.com/labstack/echo/v4"
)

type PageService interface {
	GetPage(ctx context.Context, page, limit int) (models.Page, error)
	EffectiveLimit(limit int) int
}

type IngestService interface {
	Ingest(ctx context.Context, cmd usecase.IngestCommand) (models.SignalEvent, error)
}

// HealthChecker is anything /healthz should ping.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// HealthFunc adapts a ping function to HealthChecker.
type HealthFunc func(ctx context.Context) error

func (f HealthFunc) Health(ctx context.Context) error { return f(ctx) }

// SignalsEchoHandler serves the feed read path, the webhook and health.
type SignalsEchoHandler struct {
	logger  *xlogger.Logger
	pages   PageService
	ingest  IngestService
	cache   domrepo.PageCache
	limiter middleware.Limiter
	metrics domrepo.Metrics
	checks  map[string]HealthChecker
}

type SignalsOption func(*SignalsEchoHandler)

// WithPageCache serves repeated page reads from c until the next change hint.
func WithPageCache(c domrepo.PageCache) SignalsOption {
	return func(h *SignalsEchoHandler) {
		h.cache = c
	}
}

func WithWebhookLimiter(l middleware.Limiter) SignalsOption {
	return func(h *SignalsEchoHandler) {
		h.limiter = l
	}
}

func WithHealthCheck(name string, c HealthChecker) SignalsOption {
	return func(h *SignalsEchoHandler) {
		if c != nil {
			h.checks[name] = c
		}
	}
}

func NewSignalsEchoHandler(logger *xlogger.Logger, pages PageService, ingest IngestService, metrics domrepo.Metrics, opts ...SignalsOption) *SignalsEchoHandler {
	h := &SignalsEchoHandler{
		logger:  logger,
		pages:   pages,
		ingest:  ingest,
		metrics: metrics,
		checks:  make(map[string]HealthChecker),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *SignalsEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/data", h.Data)
	if h.limiter != nil {
		g.POST("/webhook", h.Webhook, middleware.RateLimit(h.limiter))
	} else {
		g.POST("/webhook", h.Webhook)
	}
	e.GET("/healthz", h.Health)
}

// Data serves GET /api/data?page=&limit=.
func (h *SignalsEchoHandler) Data(c echo.Context) error {
	req := &models.PageRequest{}
	if verr := xhttp.ReadAndValidateQuery(c, req); verr != nil {
		return xhttp.AppErrorResponse(c, verr.WithMessage("Invalid page or limit"))
	}
	limit := h.pages.EffectiveLimit(req.Limit)
	ctx := c.Request().Context()

	var gen uint64
	if h.cache != nil {
		b, g, ok := h.cache.Get(ctx, req.Page, limit)
		if ok {
			h.metrics.RecordPageServed(true)
			return c.JSONBlob(http.StatusOK, b)
		}
		gen = g
	}

	page, err := h.pages.GetPage(ctx, req.Page, limit)
	if err != nil {
		h.logger.Error("page query failed",
			xlogger.Int("page", req.Page),
			xlogger.Int("limit", limit),
			xlogger.Error(err),
		)
		return xhttp.AppErrorResponse(c, mapError(err))
	}
	h.metrics.RecordPageServed(false)

	body, err := json.Marshal(models.PageResponse{
		Success:     true,
		Data:        page.Items,
		TotalPages:  page.TotalPages,
		CurrentPage: page.CurrentPage,
	})
	if err != nil {
		h.logger.Error("page encode failed", xlogger.Error(err))
		return xhttp.InternalServerErrorResponse(c)
	}
	if h.cache != nil {
		h.cache.Set(ctx, gen, req.Page, limit, body)
	}
	return c.JSONBlob(http.StatusOK, body)
}

// Webhook serves POST /api/webhook. The body is JSON whatever the content type.
func (h *SignalsEchoHandler) Webhook(c echo.Context) error {
	req := &models.WebhookRequest{}
	if verr := xhttp.ReadAndValidateJSON(c, req); verr != nil {
		if xhttp.IsMissingField(verr.Details) {
			verr = verr.WithMessage("Missing required fields")
		}
		h.logger.Warn("webhook rejected", xlogger.String("remote", c.RealIP()), xlogger.Error(verr))
		return xhttp.AppErrorResponse(c, verr)
	}

	ev, err := h.ingest.Ingest(c.Request().Context(), usecase.IngestCommand{
		Symbol:         req.Symbol,
		Price:          req.Price,
		Signal:         req.Signal,
		Timestamp:      req.Timestamp,
		AdditionalInfo: req.AdditionalInfo,
	})
	if err != nil {
		if errors.Is(err, domrepo.ErrValidation) {
			return xhttp.ErrorResponse(c, http.StatusBadRequest, "Missing required fields")
		}
		return xhttp.AppErrorResponse(c, mapError(err))
	}

	h.logger.Info("webhook accepted",
		xlogger.Int64("id", ev.ID),
		xlogger.String("symbol", ev.Symbol),
		xlogger.String("signal", ev.Signal),
	)
	return xhttp.MessageResponse(c, "Data received successfully")
}

// Health serves GET /healthz.
func (h *SignalsEchoHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	status := make(map[string]string, len(h.checks))
	healthy := true
	for name, chk := range h.checks {
		if err := chk.Health(ctx); err != nil {
			healthy = false
			status[name] = err.Error()
			continue
		}
		status[name] = "ok"
	}

	code := http.StatusOK
	if !healthy {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, xhttp.Envelope{Success: healthy, Data: status})
}

func mapError(err error) *xhttp.AppError {
	switch {
	case errors.Is(err, domrepo.ErrValidation):
		return xhttp.BadRequestError(err.Error()).WithError(err)
	case errors.Is(err, domrepo.ErrStorageUnavailable):
		return xhttp.ServiceUnavailableError("Storage unavailable").WithError(err)
	default:
		return xhttp.InternalError("Internal Server Error").WithError(err)
	}
}
