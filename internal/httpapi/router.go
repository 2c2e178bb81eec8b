// Package httpapi is the HTTP boundary of the gateway: routing, bearer-token
// auth, rate limiting and the mapping of error kinds to status codes.
package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"xdao.co/titlegate/logger"
	"xdao.co/titlegate/metrics"
	"xdao.co/titlegate/titles"
)

// TitleService is satisfied by *titles.Service.
type TitleService interface {
	Create(ctx context.Context, req titles.CreateRequest) (titles.Created, error)
	Read(ctx context.Context, id string) (titles.Record, error)
	Update(ctx context.Context, id string, req titles.UpdateRequest) (titles.Payload, error)
	Transfer(ctx context.Context, id string, req titles.TransferRequest) (titles.Payload, error)
	List(ctx context.Context) ([]titles.Record, error)
	Document(ctx context.Context, id string) ([]byte, titles.Record, error)
}

type RouterConfig struct {
	Titles  TitleService
	Auth    *Authenticator
	Limiter *RateLimiter
	Metrics *metrics.Metrics
	Log     *logger.Logger
	// MaxBodyBytes caps request bodies, documents included. Zero means 32 MiB.
	MaxBodyBytes int64
}

type handler struct {
	titles  TitleService
	auth    *Authenticator
	limiter *RateLimiter
	metrics *metrics.Metrics
	log     *logger.Logger
	maxBody int64
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	log := cfg.Log
	if log == nil {
		log = logger.Nop()
	}
	h := &handler{
		titles:  cfg.Titles,
		auth:    cfg.Auth,
		limiter: cfg.Limiter,
		metrics: cfg.Metrics,
		log:     log.With("component", "httpapi"),
		maxBody: cfg.MaxBodyBytes,
	}
	if h.maxBody <= 0 {
		h.maxBody = 32 << 20
	}

	r := gin.New()
	r.Use(gin.Recovery(), h.requestContext(), h.observe())

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))

	r.POST("/auth/login", h.limitBy(byClientIP), h.login)

	api := r.Group("/api", h.requireAuth(), h.limitBy(bySubject))
	{
		api.GET("/landtitles", h.listTitles)
		api.POST("/landtitles", h.createTitle)
		api.GET("/landtitles/:id", h.readTitle)
		api.PUT("/landtitles/:id", h.updateTitle)
		api.POST("/landtitles/:id/transfer", h.transferTitle)
		api.GET("/landtitles/:id/document", h.titleDocument)
	}
	return r
}

const headerRequestID = "X-Request-ID"

func (h *handler) requestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(headerRequestID, id)
		c.Header(headerRequestID, id)
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBody)
		c.Next()
	}
}

func requestID(c *gin.Context) string { return c.GetString(headerRequestID) }

func (h *handler) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		h.metrics.APIInflightInc()
		defer h.metrics.APIInflightDec()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		dur := time.Since(start)
		h.metrics.ObserveAPI(c.Request.Method, route, strconv.Itoa(status), dur)
		h.log.Debug("request",
			"method", c.Request.Method,
			"route", route,
			"status", status,
			"duration", dur,
			"requestId", requestID(c),
			"subject", c.GetString(ctxSubject),
		)
	}
}
