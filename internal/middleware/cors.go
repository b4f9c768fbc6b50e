package middleware

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORS returns a configured CORS middleware. The session and API key headers
// are always allowed so browser-side CMS hooks can reach the event API.
func CORS(origins, methods, headers []string) gin.HandlerFunc {
	if len(methods) == 0 {
		methods = []string{"GET", "POST"}
	}
	headers = append([]string{"Content-Type", apiKeyHeader, "X-Session-ID"}, headers...)

	cfg := cors.Config{
		AllowOrigins:  origins,
		AllowMethods:  methods,
		AllowHeaders:  headers,
		ExposeHeaders: []string{requestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	}
	return cors.New(cfg)
}
