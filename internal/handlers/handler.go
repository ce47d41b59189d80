package handlers

import (
	"potion_master/internal/broadcast"
	"potion_master/internal/logger"
	"potion_master/internal/models"
	"potion_master/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Feed is the observer registry behind the SSE and WebSocket streams.
type Feed interface {
	Subscribe(name string) *broadcast.Observer
	Unsubscribe(o *broadcast.Observer)
	Send(o *broadcast.Observer, kind models.EventKind, payload any) bool
}

// Handler wires HTTP layer to services and logging.
type Handler struct {
	services *service.Service
	feed     Feed
	gatherer prometheus.Gatherer
	log      *logger.Logger
}

// NewHandler constructs the HTTP handler. feed and gatherer may be nil, in
// which case the stream and metrics routes are not registered.
func NewHandler(services *service.Service, feed Feed, gatherer prometheus.Gatherer, log *logger.Logger) *Handler {
	return &Handler{services: services, feed: feed, gatherer: gatherer, log: log}
}

// InitRoutes builds and returns the Gin router with all routes registered.
func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/health", h.health)
	if h.gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))
	}

	if h.feed != nil {
		router.GET("/api/events", h.streamEvents)
		router.GET("/api/hardware/stream", h.streamEvents)
		router.GET("/ws", h.wsConnect)
	}

	h.registerAuthRoutes(router)
	h.registerAPIRoutes(router)

	return router
}

func (h *Handler) registerAuthRoutes(r *gin.Engine) {
	auth := r.Group("/auth")
	{
		auth.POST("/sign-up", h.signUp)
		auth.POST("/sign-in", h.signIn)
	}
}

func (h *Handler) registerAPIRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")
	{
		hardware := api.Group("/hardware")
		hardware.GET("/status", h.hardwareStatus)
		hardware.POST("/tare", h.tare)

		cocktails := api.Group("/cocktails")
		cocktails.POST("/prepare", h.prepareCocktail)
		cocktails.POST("/stop", h.stopCocktail)
		cocktails.GET("/current", h.currentPreparation)

		maintenance := api.Group("/maintenance", h.operatorMiddleware)
		maintenance.POST("/relay/:id", h.setRelay)
		maintenance.POST("/cleaning-cycle", h.startCleaning)
		maintenance.GET("/logs", h.getLogs)
	}
}
