package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

type CORSConfig struct {
	AllowOrigins     []string
	AllowMethods     []string
	AllowHeaders     []string
	ExposeHeaders    []string
	AllowCredentials bool
	MaxAge           int
}

func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowHeaders: []string{
			"Origin",
			"Content-Type",
			"Accept",
			"Authorization",
			HeaderXRequestID,
		},
		ExposeHeaders: []string{
			"Content-Length",
			"Content-Type",
			HeaderXRequestID,
		},
		MaxAge: 86400,
	}
}

// CORS answers preflight requests and sets the allow headers. A request
// from an origin that is not allowed gets no Access-Control-Allow-Origin.
func CORS(config CORSConfig) gin.HandlerFunc {
	methods := strings.Join(config.AllowMethods, ", ")
	headers := strings.Join(config.AllowHeaders, ", ")
	expose := strings.Join(config.ExposeHeaders, ", ")
	maxAge := strconv.Itoa(config.MaxAge)

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" {
			if allowed := allowedOrigin(config, origin); allowed != "" {
				c.Header("Access-Control-Allow-Origin", allowed)
				c.Header("Access-Control-Allow-Methods", methods)
				c.Header("Access-Control-Allow-Headers", headers)
				c.Header("Access-Control-Expose-Headers", expose)
				c.Header("Access-Control-Max-Age", maxAge)
				if config.AllowCredentials {
					c.Header("Access-Control-Allow-Credentials", "true")
				}
				if allowed != "*" {
					c.Header("Vary", "Origin")
				}
			}
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func allowedOrigin(config CORSConfig, origin string) string {
	for _, o := range config.AllowOrigins {
		if o == origin {
			return o
		}
		if o == "*" {
			// credentials cannot be combined with a wildcard
			if config.AllowCredentials {
				return origin
			}
			return "*"
		}
	}
	return ""
}
