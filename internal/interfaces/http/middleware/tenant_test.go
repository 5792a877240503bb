package middleware

import (
	"net/http"
	"testing"

	"github.com/coccinelle/backend/internal/infrastructure/logger"
	"github.com/coccinelle/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func tenantRouter(cfg TenantMiddlewareConfig) (*gin.Engine, *uuid.UUID, *uuid.UUID) {
	var fromGin, fromCtx uuid.UUID
	router := gin.New()
	router.Use(RequestID(), TenantMiddlewareWithConfig(cfg))
	handler := func(c *gin.Context) {
		fromGin, _ = GetTenantID(c)
		fromCtx = logger.GetTenantID(c.Request.Context())
		c.Status(http.StatusOK)
	}
	router.GET("/api/v1/reservations/:id", handler)
	router.GET("/health", handler)
	return router, &fromGin, &fromCtx
}

func TestTenantMiddleware(t *testing.T) {
	tenantID := uuid.New()

	t.Run("valid header is propagated", func(t *testing.T) {
		router, fromGin, fromCtx := tenantRouter(DefaultTenantConfig())

		w := serve(router, http.MethodGet, "/api/v1/reservations/1", http.Header{TenantHeaderKey: {tenantID.String()}})

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, tenantID, *fromGin)
		assert.Equal(t, tenantID, *fromCtx)
	})

	t.Run("missing header is rejected", func(t *testing.T) {
		router, _, _ := tenantRouter(DefaultTenantConfig())

		w := serve(router, http.MethodGet, "/api/v1/reservations/1", nil)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		errInfo := decodeError(t, w)
		assert.Equal(t, dto.ErrCodeTenantRequired, errInfo.Code)
		assert.NotEmpty(t, errInfo.RequestID)
	})

	t.Run("malformed header is rejected", func(t *testing.T) {
		router, _, _ := tenantRouter(DefaultTenantConfig())

		for _, bad := range []string{"acme", "00000000-0000-0000-0000-000000000000"} {
			w := serve(router, http.MethodGet, "/api/v1/reservations/1", http.Header{TenantHeaderKey: {bad}})
			assert.Equal(t, http.StatusBadRequest, w.Code, bad)
		}
	})

	t.Run("skip paths pass without tenant", func(t *testing.T) {
		router, fromGin, _ := tenantRouter(DefaultTenantConfig())

		w := serve(router, http.MethodGet, "/health", nil)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, uuid.Nil, *fromGin)
	})

	t.Run("optional tenant", func(t *testing.T) {
		cfg := DefaultTenantConfig()
		cfg.Required = false
		router, _, _ := tenantRouter(cfg)

		w := serve(router, http.MethodGet, "/api/v1/reservations/1", nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestGetTenantID_Absent(t *testing.T) {
	c, _ := gin.CreateTestContext(nil)
	_, ok := GetTenantID(c)
	assert.False(t, ok)
}
