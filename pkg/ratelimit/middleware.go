package ratelimit

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// Header names set by Middleware.
const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderStatus     = "X-RateLimit-Status"
	HeaderRetryAfter = "Retry-After"
	HeaderDeviceID   = "X-Device-ID"
)

// KeyFromRequest builds the rate limit key of a request. The client IP is the
// first X-Forwarded-For hop, then X-Real-IP, then the connection address. An
// X-Device-ID that fails ValidDeviceID is ignored.
func KeyFromRequest(c *gin.Context, t TransactionType) Key {
	ip := ""
	if fwd := c.GetHeader("X-Forwarded-For"); fwd != "" {
		ip = strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	if ip == "" {
		ip = strings.TrimSpace(c.GetHeader("X-Real-IP"))
	}
	if ip == "" {
		ip = c.ClientIP()
	}
	if ip == "" {
		ip = "unknown"
	}

	device := c.GetHeader(HeaderDeviceID)
	if !ValidDeviceID(device) {
		device = ""
	}

	return Key{IP: ip, DeviceID: device, Type: t}
}

// Middleware limits modifying requests (anything but GET, HEAD and OPTIONS)
// of type t. Allowed responses carry the X-RateLimit-* headers; limited ones
// are aborted with 429. Degraded checks are marked with X-RateLimit-Status.
func Middleware(l *Limiter, t TransactionType) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}

		res := l.Check(c.Request.Context(), KeyFromRequest(c, t))

		if res.Degraded {
			c.Header(HeaderStatus, "degraded")
			c.Next()
			return
		}

		c.Header(HeaderLimit, strconv.Itoa(res.Limit))
		c.Header(HeaderRemaining, strconv.Itoa(res.Remaining))
		c.Header(HeaderReset, strconv.FormatInt(res.ResetAt.Unix(), 10))

		if !res.Allowed {
			retryAfter := int(res.RetryAfter.Seconds())
			c.Header(HeaderRetryAfter, strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"message":     "Too many requests for " + string(res.Type),
				"retry_after": retryAfter,
				"reset_at":    res.ResetAt.Unix(),
				"limit_type":  res.Type,
			})
			return
		}

		c.Next()
	}
}
