package middleware

import (
	"github.com/gin-gonic/gin"
)

const (
	// SessionIDKey is the context key for the console session ID
	SessionIDKey = "session_id"
	// SessionIDHeader is the HTTP header name for the console session ID
	SessionIDHeader = "X-Session-ID"
	// SessionCookie is the cookie carrying the console session ID
	SessionCookie = "land_session"
)

// SessionID copies the caller's console session ID into the context.
// The header wins over the cookie. Nothing is validated here; handlers
// look the session up and reject unknown IDs.
func SessionID() gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.GetHeader(SessionIDHeader)
		if sessionID == "" {
			if cookie, err := c.Cookie(SessionCookie); err == nil {
				sessionID = cookie
			}
		}

		if sessionID != "" {
			c.Set(SessionIDKey, sessionID)
		}

		c.Next()
	}
}

// GetSessionID retrieves the console session ID from the Gin context.
// Returns an empty string if not found.
func GetSessionID(c *gin.Context) string {
	return contextString(c, SessionIDKey)
}
