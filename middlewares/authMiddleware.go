package middlewares

import (
	"net/http"

	"debateserver/auth"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const userIDKey = "UserID"

// AuthRequired はトークンを検証し、ユーザーIDをコンテキストにセットする
func AuthRequired(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := auth.ParseToken(auth.BearerToken(c.GetHeader("Authorization")))
		if err != nil {
			logger.Warn("認証失敗", zap.String("path", c.FullPath()), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Set(userIDKey, claims.UserID)
		c.Next()
	}
}

// UserIDFromContext は AuthRequired がセットしたユーザーIDを返す
func UserIDFromContext(c *gin.Context) (uint, bool) {
	v, ok := c.Get(userIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint)
	return id, ok
}
