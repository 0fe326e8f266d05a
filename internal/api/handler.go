package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mr1hm/disaster-sentinel/internal/alerting"
	"github.com/mr1hm/disaster-sentinel/internal/classifier"
	"github.com/mr1hm/disaster-sentinel/internal/ingestion"
	"github.com/mr1hm/disaster-sentinel/internal/logging"
	"github.com/mr1hm/disaster-sentinel/internal/models"
	"github.com/mr1hm/disaster-sentinel/internal/realtime"
	"github.com/mr1hm/disaster-sentinel/internal/repository"
)

const defaultKeepAlive = 15 * time.Second

// DisasterService is the disaster lifecycle the handlers drive.
type DisasterService interface {
	Simulate(ctx context.Context, disasterType string, raw map[string]any) (*models.DisasterEvent, error)
	Create(ctx context.Context, d *models.DisasterEvent) error
	Get(ctx context.Context, id string) (*models.DisasterEvent, error)
	List(ctx context.Context, filter repository.DisasterFilter) ([]models.DisasterEvent, error)
	Nearby(ctx context.Context, q repository.NearbyQuery) ([]models.DisasterEvent, error)
	Update(ctx context.Context, id string, patch ingestion.DisasterPatch) (*models.DisasterEvent, error)
	Delete(ctx context.Context, id string) error
	AddReading(ctx context.Context, id string, r models.Reading) (*models.DisasterEvent, error)
}

// Matcher runs a matching pass synchronously.
type Matcher interface {
	Process(ctx context.Context, disasterID string) (alerting.Result, error)
}

type Subscriber interface {
	Subscribe(topics ...string) (uint64, <-chan realtime.Message)
	Unsubscribe(id uint64)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators behind the HTTP surface.
type Deps struct {
	Disasters  DisasterService
	Configs    repository.AlertConfigRepository
	Dispatches repository.DispatchRepository
	Matcher    Matcher
	Stream     Subscriber
	DB         Pinger
	Clock      clockwork.Clock
	// KeepAlive is the interval between SSE keepalive events.
	KeepAlive time.Duration
}

type Handler struct {
	disasters  DisasterService
	configs    repository.AlertConfigRepository
	dispatches repository.DispatchRepository
	matcher    Matcher
	stream     Subscriber
	db         Pinger
	clock      clockwork.Clock
	keepAlive  time.Duration
	logger     *slog.Logger
}

func NewHandler(deps Deps) *Handler {
	h := &Handler{
		disasters:  deps.Disasters,
		configs:    deps.Configs,
		dispatches: deps.Dispatches,
		matcher:    deps.Matcher,
		stream:     deps.Stream,
		db:         deps.DB,
		clock:      deps.Clock,
		keepAlive:  deps.KeepAlive,
		logger:     logging.Component("api"),
	}
	if h.clock == nil {
		h.clock = clockwork.NewRealClock()
	}
	if h.keepAlive <= 0 {
		h.keepAlive = defaultKeepAlive
	}
	return h
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	disasters := r.Group("/api/disasters")
	disasters.GET("", h.listDisasters)
	disasters.GET("/nearby", h.nearbyDisasters)
	disasters.GET("/:id", h.getDisaster)
	disasters.POST("", h.createDisaster)
	disasters.PUT("/:id", h.updateDisaster)
	disasters.DELETE("/:id", h.deleteDisaster)
	disasters.POST("/:id/readings", h.addReading)

	alerts := r.Group("/api/alerts")
	alerts.GET("", h.listConfigs)
	alerts.GET("/:id", h.getConfig)
	alerts.POST("", h.createConfig)
	alerts.PUT("/:id", h.updateConfig)
	alerts.DELETE("/:id", h.deleteConfig)
	alerts.POST("/trigger/:disasterId", h.triggerAlerts)
	alerts.GET("/dispatches/:disasterId", h.listDispatches)

	r.POST("/api/simulate/:type", h.simulate)
	r.GET("/api/stream", h.streamEvents)
}

func (h *Handler) health(c *gin.Context) {
	if h.db != nil {
		if err := h.db.Ping(c.Request.Context()); err != nil {
			h.logger.Error("health check failed", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func respond(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

func respondList[T any](c *gin.Context, items []T) {
	if items == nil {
		items = []T{}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "count": len(items), "data": items})
}

func respondMessage(c *gin.Context, status int, message string, data any) {
	body := gin.H{"success": true, "message": message}
	if data != nil {
		body["data"] = data
	}
	c.JSON(status, body)
}

// respondError maps sentinel errors onto status codes. Internal failures are
// logged and reported without detail.
func (h *Handler) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, classifier.ErrNoSeverityFormula):
		status = http.StatusNotImplemented
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
		msg = "Server Error"
	}
	c.AbortWithStatusJSON(status, gin.H{"success": false, "error": msg})
}
