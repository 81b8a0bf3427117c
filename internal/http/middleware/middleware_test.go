package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goodnight000/kittycourt-backend/internal/service"
)

func TestRateLimitMiddleware_PerUser(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tokens := service.NewTokenManager("middleware-secret", time.Minute)

	r := gin.New()
	r.GET("/limited", AuthMiddleware(tokens), RateLimitMiddleware(1, time.Minute), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	call := func(id service.Identity) *httptest.ResponseRecorder {
		raw, _, err := tokens.IssueAccess(id)
		require.NoError(t, err)
		req, _ := http.NewRequest("GET", "/limited", nil)
		req.Header.Set("Authorization", "Bearer "+raw)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	first := service.Identity{UserID: uuid.New()}
	assert.Equal(t, http.StatusNoContent, call(first).Code)

	w := call(first)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	// Лимит считается на пользователя, а не на общий IP.
	assert.Equal(t, http.StatusNoContent, call(service.Identity{UserID: uuid.New()}).Code)
}

func TestAuthMiddleware_RejectsBadToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tokens := service.NewTokenManager("middleware-secret", time.Minute)

	r := gin.New()
	r.GET("/private", AuthMiddleware(tokens), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for _, header := range []string{"", "Token abc", "Bearer not-a-jwt"} {
		req, _ := http.NewRequest("GET", "/private", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code, header)
	}
}

func TestCORSMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(CORSMiddleware([]string{"https://court.example"}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	req, _ := http.NewRequest("OPTIONS", "/x", nil)
	req.Header.Set("Origin", "https://court.example")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://court.example", w.Header().Get("Access-Control-Allow-Origin"))

	req, _ = http.NewRequest("GET", "/x", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
