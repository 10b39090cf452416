package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/physio-api/pkg/httputil"
)

// SizeLimitConfig represents size limit configuration
type SizeLimitConfig struct {
	MaxBodySize int64 // in bytes
	SkipPaths   []string
}

func DefaultSizeLimitConfig() SizeLimitConfig {
	return SizeLimitConfig{
		MaxBodySize: 1 << 20, // 1MB
	}
}

// SizeLimit rejects declared oversize bodies up front and caps the reader
// for chunked ones, which then fail to bind.
func SizeLimit(config SizeLimitConfig) gin.HandlerFunc {
	skip := make(map[string]bool, len(config.SkipPaths))
	for _, p := range config.SkipPaths {
		skip[p] = true
	}

	return func(c *gin.Context) {
		if skip[c.Request.URL.Path] || config.MaxBodySize <= 0 {
			c.Next()
			return
		}

		if c.Request.ContentLength > config.MaxBodySize {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, httputil.ErrorBody{
				Error: fmt.Sprintf("request body exceeds %d bytes", config.MaxBodySize),
				Kind:  "validation_error",
			})
			return
		}

		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, config.MaxBodySize)
		}
		c.Next()
	}
}
