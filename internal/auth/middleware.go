package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/williamalexakis/stcats-ops/internal/models"
	"github.com/williamalexakis/stcats-ops/internal/response"
	"github.com/williamalexakis/stcats-ops/internal/storage"
)

// AuthMiddleware validates the bearer token and loads the account onto the
// context as "userID" and "user".
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, response.ErrorResponse{
				Code:    "NO_AUTH_HEADER",
				Message: "Authorization required",
			})
			c.Abort()
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		userID, ok := ParseUserID(tokenString, AccessSecret)
		if !ok {
			c.JSON(http.StatusUnauthorized, response.ErrorResponse{
				Code:    "INVALID_TOKEN",
				Message: "Invalid or expired token",
			})
			c.Abort()
			return
		}

		var user models.User
		if err := storage.DB.First(&user, userID).Error; err != nil {
			c.JSON(http.StatusUnauthorized, response.ErrorResponse{
				Code:    "USER_NOT_FOUND",
				Message: "Account no longer exists",
			})
			c.Abort()
			return
		}

		c.Set("userID", userID)
		c.Set("user", &user)
		c.Next()
	}
}

// RequireAdmin aborts with 403 unless the authenticated user is an admin or
// superuser. Must run after AuthMiddleware.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil || !user.IsAdmin() {
			c.JSON(http.StatusForbidden, response.ErrorResponse{
				Code:    response.CodeForbidden,
				Message: "You do not have permission to perform this action.",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// CurrentUser returns the account loaded by AuthMiddleware, or nil.
func CurrentUser(c *gin.Context) *models.User {
	value, ok := c.Get("user")
	if !ok {
		return nil
	}
	user, _ := value.(*models.User)
	return user
}
