package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salesplan/backend/internal/infrastructure/auth"
	"github.com/salesplan/backend/internal/infrastructure/config"
	"github.com/salesplan/backend/internal/interfaces/http/dto"
)

func newTestJWTService() *auth.JWTService {
	return auth.NewJWTService(config.JWTConfig{
		Enabled:  true,
		Secret:   "test-secret-key-at-least-32-chars",
		Issuer:   "salesplan-test",
		TokenTTL: time.Hour,
	})
}

func newAuthRouter(svc *auth.JWTService, scope string) *gin.Engine {
	router := gin.New()
	cfg := DefaultJWTConfig(svc)
	cfg.SkipPathPrefixes = []string{"/public"}
	router.Use(RequestID(), JWTAuthMiddlewareWithConfig(cfg))
	handler := func(c *gin.Context) {
		c.String(http.StatusOK, GetJWTSubject(c))
	}
	router.GET("/health", handler)
	router.GET("/public/info", handler)
	if scope != "" {
		router.GET("/test", RequireScope(scope), handler)
	} else {
		router.GET("/test", handler)
	}
	return router
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) *dto.ErrorInfo {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	return resp.Error
}

func TestJWTAuthMiddleware_ValidToken(t *testing.T) {
	svc := newTestJWTService()
	token, _, err := svc.GenerateToken("analyst@example.com", nil, 0)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(AuthHeaderKey, BearerPrefix+token)
	rec := httptest.NewRecorder()
	newAuthRouter(svc, "").ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "analyst@example.com", rec.Body.String())
}

func TestJWTAuthMiddleware_Rejections(t *testing.T) {
	svc := newTestJWTService()

	past := time.Now().Add(-2 * time.Hour)
	expiredToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "salesplan-test",
			Subject:   "analyst",
			IssuedAt:  jwt.NewNumericDate(past),
			ExpiresAt: jwt.NewNumericDate(past.Add(time.Hour)),
		},
	}).SignedString([]byte("test-secret-key-at-least-32-chars"))
	require.NoError(t, err)

	other := auth.NewJWTService(config.JWTConfig{Secret: "another-secret-key-of-32-characters", Issuer: "salesplan-test"})
	foreignToken, _, err := other.GenerateToken("analyst", nil, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		code   string
	}{
		{"missing header", "", dto.ErrCodeTokenInvalid},
		{"wrong scheme", "Basic abc", dto.ErrCodeTokenInvalid},
		{"empty bearer", "Bearer ", dto.ErrCodeTokenInvalid},
		{"garbage token", "Bearer not.a.jwt", dto.ErrCodeTokenInvalid},
		{"expired token", "Bearer " + expiredToken, dto.ErrCodeTokenExpired},
		{"foreign signature", "Bearer " + foreignToken, dto.ErrCodeTokenInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.header != "" {
				req.Header.Set(AuthHeaderKey, tt.header)
			}
			rec := httptest.NewRecorder()
			newAuthRouter(svc, "").ServeHTTP(rec, req)

			require.Equal(t, http.StatusUnauthorized, rec.Code)
			info := decodeError(t, rec)
			assert.Equal(t, tt.code, info.Code)
			assert.NotEmpty(t, info.RequestID)
		})
	}
}

func TestJWTAuthMiddleware_SkipPaths(t *testing.T) {
	router := newAuthRouter(newTestJWTService(), "")

	for _, path := range []string{"/health", "/public/info"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Empty(t, rec.Body.String())
	}
}

func TestRequireScope(t *testing.T) {
	svc := newTestJWTService()

	t.Run("token with scope passes", func(t *testing.T) {
		token, _, err := svc.GenerateToken("bot", []string{auth.ScopeRead, auth.ScopeAsk}, 0)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set(AuthHeaderKey, BearerPrefix+token)
		rec := httptest.NewRecorder()
		newAuthRouter(svc, auth.ScopeAsk).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("read-only token is refused ask", func(t *testing.T) {
		token, _, err := svc.GenerateToken("viewer", nil, 0)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set(AuthHeaderKey, BearerPrefix+token)
		rec := httptest.NewRecorder()
		newAuthRouter(svc, auth.ScopeAsk).ServeHTTP(rec, req)

		require.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, dto.ErrCodeForbidden, decodeError(t, rec).Code)
	})

	t.Run("no claims means auth is off", func(t *testing.T) {
		router := gin.New()
		router.GET("/test", RequireScope(auth.ScopeExport), func(c *gin.Context) {
			c.Status(http.StatusNoContent)
		})
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", nil))
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})
}
