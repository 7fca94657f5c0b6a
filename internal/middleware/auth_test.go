package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"catalog-assist-go/internal/model"
	"catalog-assist-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapUsers map[uint]*model.User

func (m mapUsers) FindByID(_ context.Context, id uint) (*model.User, error) {
	if u, ok := m[id]; ok {
		return u, nil
	}
	return nil, fmt.Errorf("user %d: %w", id, model.ErrNotFound)
}

func newRouter(jwt *token.JWTManager, users UserFinder) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestLogger())
	authed := r.Group("/", AuthMiddleware(jwt, users))
	authed.GET("/me", func(c *gin.Context) {
		u, _ := CurrentUser(c)
		c.JSON(http.StatusOK, gin.H{"username": u.Username})
	})
	authed.GET("/admin", AdminAuthMiddleware(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func TestAuthMiddleware(t *testing.T) {
	jwt := token.NewJWTManager("secret", 1)
	users := mapUsers{
		1: {ID: 1, Username: "ana", Role: "USER"},
		2: {ID: 2, Username: "root", Role: model.UserRoleAdmin},
	}
	r := newRouter(jwt, users)

	sign := func(id uint, name, role string) string {
		tok, err := jwt.GenerateToken(id, name, role)
		require.NoError(t, err)
		return "Bearer " + tok
	}

	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"missing header", "/me", "", http.StatusUnauthorized},
		{"not a bearer token", "/me", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "/me", "Bearer abc", http.StatusUnauthorized},
		{"wrong secret", "/me", func() string {
			tok, _ := token.NewJWTManager("other", 1).GenerateToken(1, "ana", "USER")
			return "Bearer " + tok
		}(), http.StatusUnauthorized},
		{"unknown user", "/me", sign(9, "ghost", "USER"), http.StatusUnauthorized},
		{"valid", "/me", sign(1, "ana", "USER"), http.StatusOK},
		{"admin route as user", "/admin", sign(1, "ana", "USER"), http.StatusForbidden},
		// 角色以库中记录为准，而不是 token 中的声明
		{"admin claim for plain user", "/admin", sign(1, "ana", model.UserRoleAdmin), http.StatusForbidden},
		{"admin route as admin", "/admin", sign(2, "root", model.UserRoleAdmin), http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
			assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
		})
	}
}

func TestRequestLogger_KeepsIncomingRequestID(t *testing.T) {
	r := newRouter(token.NewJWTManager("secret", 1), mapUsers{})
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "req-42", w.Header().Get(RequestIDHeader))
}
