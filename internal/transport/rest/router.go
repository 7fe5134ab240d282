package rest

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type RouterConfig struct {
	Reservations *ReservationsHandler

	// Auth serves /login. Verifier guards every route except /login and
	// /healthz; nil disables authentication.
	Auth     *AuthHandler
	Verifier tokenVerifier

	// Ping reports storage health for /healthz.
	Ping func(ctx context.Context) error

	RequestTimeout  time.Duration
	RateLimitPerMin int
	AllowedOrigins  []string
}

func NewRouter(cfg RouterConfig, log *slog.Logger) *gin.Engine {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	r := gin.New()
	r.Use(gin.Recovery(), RequestID(), AccessLog(log))
	if mw := CORS(cfg.AllowedOrigins); mw != nil {
		r.Use(mw)
	}
	r.Use(RateLimit(cfg.RateLimitPerMin, log), RequestTimeout(cfg.RequestTimeout))

	r.GET("/healthz", healthz(cfg.Ping))
	if cfg.Auth != nil {
		r.POST("/login", cfg.Auth.login)
	}

	protected := r.Group("/")
	if cfg.Verifier != nil {
		protected.Use(RequireAuth(cfg.Verifier))
	}
	protected.GET("/authtest", authTest)
	if cfg.Reservations != nil {
		cfg.Reservations.register(protected)
	}

	return r
}

func healthz(ping func(ctx context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if ping != nil {
			if err := ping(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
