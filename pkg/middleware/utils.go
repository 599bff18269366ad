package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"skyprefs/pkg/clients/bsky"
	"skyprefs/pkg/logging"
)

// SetupCommonMiddleware installs request ids, logging, recovery and CORS.
func SetupCommonMiddleware(r *gin.Engine, logger logging.Logger) {
	r.Use(RequestIDMiddleware())
	r.Use(LoggingMiddleware(logger))
	r.Use(RecoveryMiddleware(logger))
	r.Use(CORSMiddleware())
}

// GetContextLogger returns logger scoped to the request: its id, XRPC
// method, caller DID and proxy target.
func GetContextLogger(c *gin.Context, logger logging.Logger) *logrus.Entry {
	return logger.WithFields(logging.Fields{
		"request_id": c.GetString(requestIDKey),
		"nsid":       NSID(c),
		"did":        c.GetString("did"),
		"proxy":      c.GetHeader(bsky.ProxyHeader),
	})
}
