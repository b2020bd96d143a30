package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"school-chat/internal/models"
)

type stubAuthenticator map[string]models.User

func (s stubAuthenticator) Authenticate(_ context.Context, token string) (models.User, error) {
	u, ok := s[token]
	if !ok {
		return models.User{}, errors.New("invalid")
	}
	return u, nil
}

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	r.Use(AuthMiddleware(stubAuthenticator{
		"admin":   {ID: 1, Role: models.RoleAdmin},
		"student": {ID: 2, Role: models.RoleStudent},
	}))
	r.GET("/me", func(c *gin.Context) {
		user, _ := CurrentUser(c)
		c.JSON(http.StatusOK, gin.H{"id": c.GetInt("userID"), "role": user.Role, "request_id": RequestIDFrom(c)})
	})
	r.GET("/admin", RequireRoles(models.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func do(r *gin.Engine, path, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestAuthMiddleware(t *testing.T) {
	r := newRouter()

	require.Equal(t, http.StatusUnauthorized, do(r, "/me", "").Code)
	require.Equal(t, http.StatusUnauthorized, do(r, "/me", "Token abc").Code)
	require.Equal(t, http.StatusUnauthorized, do(r, "/me", "Bearer nope").Code)

	rec := do(r, "/me", "Bearer student")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"role":"student"`)
	require.NotEmpty(t, rec.Header().Get(RequestIDHeader))
}

func TestRequireRoles(t *testing.T) {
	r := newRouter()
	require.Equal(t, http.StatusForbidden, do(r, "/admin", "Bearer student").Code)
	require.Equal(t, http.StatusNoContent, do(r, "/admin", "Bearer admin").Code)
}

func TestRequestIDPropagates(t *testing.T) {
	r := newRouter()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer admin")
	req.Header.Set(RequestIDHeader, "req-123")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, "req-123", rec.Header().Get(RequestIDHeader))
	require.Contains(t, rec.Body.String(), `"request_id":"req-123"`)
}
