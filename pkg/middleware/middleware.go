package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"skyprefs/pkg/clients/bsky"
	"skyprefs/pkg/logging"
)

const xrpcPrefix = "/xrpc/"

// XRPCError aborts with the lexicon error body {"error", "message"}.
func XRPCError(c *gin.Context, status int, name, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": name, "message": message})
}

// NSID returns the method of an /xrpc/<nsid> request, or "" for other paths.
func NSID(c *gin.Context) string {
	path := c.Request.URL.Path
	if !strings.HasPrefix(path, xrpcPrefix) {
		return ""
	}
	return strings.TrimPrefix(path, xrpcPrefix)
}

// LoggingMiddleware logs every request once it completes, with the XRPC
// method and the service it was proxied to. 4xx answers log at warn, 5xx
// at error.
func LoggingMiddleware(logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		status := c.Writer.Status()
		fields := logging.Fields{
			"status":     status,
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"latency":    time.Since(start),
			"client_ip":  c.ClientIP(),
			"request_id": c.GetString(requestIDKey),
		}
		if nsid := NSID(c); nsid != "" {
			fields["nsid"] = nsid
		}
		if proxy := c.GetHeader(bsky.ProxyHeader); proxy != "" {
			fields["proxy"] = proxy
		}
		if did := c.GetString("did"); did != "" {
			fields["did"] = did
		}

		entry := logger.WithFields(fields)
		switch {
		case status >= http.StatusInternalServerError:
			entry.Error("XRPC request failed")
		case status >= http.StatusBadRequest:
			entry.Warn("XRPC request rejected")
		default:
			entry.Info("XRPC request")
		}
	}
}

// CORSMiddleware lets browser clients send the atproto routing headers.
func CORSMiddleware() gin.HandlerFunc {
	allowed := strings.Join([]string{"Content-Type", "Authorization", bsky.ProxyHeader, bsky.AcceptLabelersHeader}, ", ")
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", allowed)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// RecoveryMiddleware turns a handler panic into an InternalServerError
// XRPC response.
func RecoveryMiddleware(logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.WithFields(logging.Fields{
					"error":      err,
					"nsid":       NSID(c),
					"request_id": c.GetString(requestIDKey),
					"client_ip":  c.ClientIP(),
				}).Error("Request handler panic")

				XRPCError(c, http.StatusInternalServerError, "InternalServerError", "Internal Server Error")
			}
		}()

		c.Next()
	}
}

const requestIDKey = "request_id"

// RequestIDMiddleware keeps the caller's X-Request-ID or assigns one.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}

		c.Set(requestIDKey, requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

// TimeoutMiddleware bounds the request context. Handlers must stop when it
// is done; if one returns without writing, the caller gets UpstreamTimeout.
func TimeoutMiddleware(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if timeout <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		if errors.Is(ctx.Err(), context.DeadlineExceeded) && !c.Writer.Written() {
			XRPCError(c, http.StatusGatewayTimeout, "UpstreamTimeout", "Request timed out")
		}
	}
}
