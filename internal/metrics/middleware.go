package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// GinMiddleware returns gin middleware that instruments HTTP requests.
// The path label uses the matched route template so cardinality stays
// bounded even under path scanning.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		duration := float64(time.Since(start).Milliseconds())
		statusCode := strconv.Itoa(c.Writer.Status())

		RecordAPIRequest(c.Request.Method, path, statusCode, duration)
	}
}
