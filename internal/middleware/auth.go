// Package middleware 提供了处理 HTTP 请求的中间件。
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"catalog-assist-go/internal/model"
	"catalog-assist-go/pkg/log"
	"catalog-assist-go/pkg/token"

	"github.com/gin-gonic/gin"
)

// 上下文中存放身份信息的键
const (
	ContextUserKey   = "user"
	ContextClaimsKey = "claims"
)

// UserFinder 按 ID 查询用户，由 repository.UserRepository 满足。
type UserFinder interface {
	FindByID(ctx context.Context, userID uint) (*model.User, error)
}

// AuthMiddleware 创建一个 Gin 中间件，用于 JWT 认证。
// 它会从请求头中提取 token，验证其有效性，并将 User 对象存入 Gin 的上下文中。
func AuthMiddleware(jwtManager *token.JWTManager, users UserFinder) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "请求未包含授权头", "data": nil})
			return
		}

		// Token 以 "Bearer <token>" 的形式提供
		const bearerPrefix = "Bearer "
		if !strings.HasPrefix(authHeader, bearerPrefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效的授权头格式", "data": nil})
			return
		}

		user, claims, err := Authenticate(c.Request.Context(), jwtManager, users, strings.TrimPrefix(authHeader, bearerPrefix))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": err.Error(), "data": nil})
			return
		}

		c.Set(ContextUserKey, user)
		c.Set(ContextClaimsKey, claims)
		c.Next()
	}
}

// Authenticate 校验 token 并确认用户仍然存在。WebSocket 握手等无法携带请求头的场景直接调用。
func Authenticate(ctx context.Context, jwtManager *token.JWTManager, users UserFinder, tokenString string) (*model.User, *token.CustomClaims, error) {
	claims, err := jwtManager.VerifyToken(tokenString)
	if err != nil {
		return nil, nil, errors.New("无效或已过期的 token")
	}
	user, err := users.FindByID(ctx, claims.UserID)
	if err != nil {
		if !errors.Is(err, model.ErrNotFound) {
			log.Errorf("认证时查询用户 %d 失败: %v", claims.UserID, err)
		}
		return nil, nil, errors.New("用户不存在")
	}
	return user, claims, nil
}

// CurrentUser 返回 AuthMiddleware 存入上下文的用户。
func CurrentUser(c *gin.Context) (*model.User, bool) {
	v, ok := c.Get(ContextUserKey)
	if !ok {
		return nil, false
	}
	user, ok := v.(*model.User)
	return user, ok
}
