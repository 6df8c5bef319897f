package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"easierfocus/internal/auth"
	"easierfocus/internal/model"
)

const UserKey = "user"

type StateReader interface {
	State() auth.State
}

// Auth is a middleware to protect routes that require a signed-in user. While
// the persisted session is still being restored it answers 503.
func Auth(sessions StateReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		state := sessions.State()

		if state.Loading {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error":   "loading",
				"message": "session is still loading",
			})
			return
		}

		if !state.Authenticated() || state.User == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "sign in required",
			})
			return
		}

		c.Set(UserKey, state.User)
		c.Next()
	}
}

// CurrentUser returns the user stored by Auth.
func CurrentUser(c *gin.Context) *model.User {
	v, ok := c.Get(UserKey)
	if !ok {
		return nil
	}
	user, _ := v.(*model.User)
	return user
}
