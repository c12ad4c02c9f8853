package http

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"parking-service/internal/config"
	"parking-service/internal/metrics"
)

// NewRouter builds the gin engine with CORS, metrics, request logging and
// every API route.
func NewRouter(cfg *config.Config, handler *Handler, log zerolog.Logger) *gin.Engine {
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(log))
	r.Use(metrics.Middleware())
	r.Use(cors.New(corsConfig(cfg.Server.CORSOrigins)))

	r.GET("/metrics", metrics.Handler())
	handler.Register(r, AuthMiddleware(cfg.Auth.JWTSecret, cfg.Auth.Issuer, log))

	return r
}

func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Disposition", "X-Request-ID"},
		MaxAge:           12 * time.Hour,
		AllowCredentials: false,
	}

	for _, o := range origins {
		if o == "*" {
			c.AllowAllOrigins = true
			return c
		}
	}
	if len(origins) == 0 {
		c.AllowAllOrigins = true
		return c
	}
	c.AllowOrigins = origins
	return c
}
