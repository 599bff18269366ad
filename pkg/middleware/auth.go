package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// TokenValidator resolves a bearer token to the DID it was issued for. The
// returned error name is sent back as the XRPC error name.
type TokenValidator func(token string) (did string, errName string, err error)

// BearerToken returns the bearer credential from the Authorization header.
func BearerToken(c *gin.Context) (string, bool) {
	auth := c.GetHeader("Authorization")
	parts := strings.Split(auth, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// BearerAuthMiddleware validates the bearer token and stores the caller's DID
// under "did". Failures are answered with an XRPC error body.
func BearerAuthMiddleware(validate TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := BearerToken(c)
		if !ok {
			XRPCError(c, http.StatusUnauthorized, "AuthenticationRequired", "Authentication Required")
			return
		}

		did, errName, err := validate(token)
		if err != nil {
			if errName == "" {
				errName = "InvalidToken"
			}
			XRPCError(c, http.StatusBadRequest, errName, err.Error())
			return
		}

		c.Set("did", did)
		c.Next()
	}
}
