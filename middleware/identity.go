package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"clinic-booking-chatbot/models"
)

const (
	UserIDHeader   = "X-User-ID"
	UserNameHeader = "X-User-Name"

	userContextKey = "chat_user"
)

// Identity reads the signed-in user forwarded by the auth gateway. Requests
// without a user id are treated as signed out.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if id := strings.TrimSpace(c.GetHeader(UserIDHeader)); id != "" {
			c.Set(userContextKey, &models.User{
				ID:          id,
				DisplayName: strings.TrimSpace(c.GetHeader(UserNameHeader)),
			})
		}
		c.Next()
	}
}

// CurrentUser returns the user set by Identity, or nil.
func CurrentUser(c *gin.Context) *models.User {
	v, ok := c.Get(userContextKey)
	if !ok {
		return nil
	}
	user, _ := v.(*models.User)
	return user
}
