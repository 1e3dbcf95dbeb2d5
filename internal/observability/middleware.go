package observability

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const (
	// FiberParam is the route parameter naming a fiber.
	FiberParam = "name"
	// MessageTermsKey is set by message handlers to the number of terms queued.
	MessageTermsKey = "mantra.message_terms"
	// MessageFormatKey is set by message handlers to "text" or "tlv".
	MessageFormatKey = "mantra.message_format"
)

// RequestLogger logs one event per admin request, tagged with the fiber the
// route addresses and, for message posts, the queued term count.
func RequestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		event := logger.Info()
		if status >= 500 {
			event = logger.Error()
		} else if status >= 400 {
			event = logger.Warn()
		}

		event = event.
			Str("method", c.Request.Method).
			Str("route", routeOf(c)).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Int("bytes", c.Writer.Size())
		if name := c.Param(FiberParam); name != "" {
			event = event.Str("fiber", name)
		}
		if terms, ok := c.Get(MessageTermsKey); ok {
			event = event.Interface("terms", terms).Str("format", c.GetString(MessageFormatKey))
		}
		event.Msg("observability.RequestLogger admin request")
	}
}

// RequestMetricsMiddleware records every request by route, and accepted fiber
// messages separately by wire format.
func RequestMetricsMiddleware(node string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		RecordHTTPRequest(node, c.Request.Method, routeOf(c), c.Writer.Status(), time.Since(start))
		if terms, ok := c.Get(MessageTermsKey); ok {
			n, _ := terms.(int)
			RecordHTTPMessage(node, c.GetString(MessageFormatKey), n)
		}
	}
}

// routeOf prefers the route template so fiber names do not become labels.
func routeOf(c *gin.Context) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	if strings.HasPrefix(c.Request.URL.Path, "/fibers/") {
		return "/fibers/*unmatched"
	}
	return "unmatched"
}
