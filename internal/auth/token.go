package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ExtractToken pulls the client token from a websocket upgrade
// request, checking in order: Authorization header, websocket
// subprotocol, query parameter, cookie. The returned subprotocol must
// be echoed back on the handshake when non-empty.
func ExtractToken(r *http.Request) (token string, subprotocol string) {
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer ")), ""
	}

	// Browsers cannot set arbitrary headers on websocket upgrades, so
	// clients smuggle the token through the subprotocol list as
	// "<protocol>, <scheme>:<token>".
	if proto := r.Header.Get("Sec-WebSocket-Protocol"); proto != "" {
		parts := strings.Split(proto, ",")
		if len(parts) == 2 {
			candidate := strings.TrimSpace(parts[1])
			if idx := strings.LastIndex(candidate, ":"); idx != -1 {
				return candidate[idx+1:], strings.TrimSpace(parts[0])
			}
		}
	}

	if token := r.URL.Query().Get("token"); token != "" {
		return token, ""
	}

	if cookie, err := r.Cookie("token"); err == nil {
		return cookie.Value, ""
	}
	return "", ""
}

// VerifyToken compares a client token against the expected key in
// constant time.
func VerifyToken(token, expected string) bool {
	if token == "" || expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(expected)) == 1
}

// AdminAuth is gin middleware enforcing a bearer token on the admin
// API.
func AdminAuth(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if !VerifyToken(token, apiKey) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid token"})
			return
		}
		c.Next()
	}
}
