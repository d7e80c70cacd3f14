package routers

import (
	"net/http"
	"time"

	ratelimit "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/NEDA-LABS/mintrelay/config"
	"github.com/NEDA-LABS/mintrelay/controllers"
	"github.com/gin-gonic/gin"
)

// RegisterRoutes add all routing list here
func RegisterRoutes(route *gin.Engine, engine controllers.Minter, conf *config.ServerConfiguration) {
	ctrl := controllers.NewController(engine)

	route.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"status": "error", "message": "Route not found"})
	})

	route.GET("/health", ctrl.Health)

	v1 := route.Group("/v1")
	v1.Use(RateLimitMiddleware(conf.RateLimitPerSecond, time.Second))
	v1.POST("/mint", ctrl.Mint)
	v1.POST("/dispatch", ctrl.Dispatch)
	v1.GET("/dispatches/:key/receipt", ctrl.GetReceipt)
	v1.GET("/diagnostics", ctrl.GetDiagnostics)
}

// RateLimitMiddleware allows limit requests per window for each client IP.
// A zero limit disables rate limiting.
func RateLimitMiddleware(limit uint, window time.Duration) gin.HandlerFunc {
	if limit == 0 {
		return func(c *gin.Context) { c.Next() }
	}

	store := ratelimit.InMemoryStore(&ratelimit.InMemoryOptions{
		Rate:  window,
		Limit: limit,
	})

	return ratelimit.RateLimiter(store, &ratelimit.Options{
		ErrorHandler: func(c *gin.Context, info ratelimit.Info) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"status":  "error",
				"message": "Too many requests. Try again in " + time.Until(info.ResetTime).Round(time.Millisecond).String(),
			})
		},
		KeyFunc: func(c *gin.Context) string {
			return c.ClientIP()
		},
	})
}
